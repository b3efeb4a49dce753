package esstore

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"elasticrag/internal/domain"
)

// ModelStore provisions the per-model resources: inference endpoint, ingest
// pipeline and index template. All writes are idempotent PUTs, so a retry
// after a partial failure converges.
type ModelStore struct {
	client *Client
}

func NewModelStore(client *Client) *ModelStore {
	return &ModelStore{client: client}
}

func (s *ModelStore) PutInference(ctx context.Context, cfg domain.ModelConfig) error {
	settings := make(map[string]any, len(cfg.ServiceSettings)+1)
	for k, v := range cfg.ServiceSettings {
		settings[k] = v
	}
	settings["dimensions"] = cfg.Dimensions

	body := map[string]any{
		"service":          string(cfg.Service),
		"service_settings": settings,
	}
	path := "/_inference/text_embedding/" + pathEscape(cfg.InferenceID())
	status, data, err := s.client.send(ctx, "put_inference", http.MethodPut, path, body)
	if err != nil {
		return err
	}
	if status == http.StatusBadRequest && alreadyExists(data) {
		return nil
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return unexpectedStatus("put_inference", status, data)
	}
	slog.DebugContext(ctx, "inference_endpoint_put", slog.String("inference_id", cfg.InferenceID()))
	return nil
}

type inferenceEndpoint struct {
	InferenceID     string         `json:"inference_id"`
	Service         string         `json:"service"`
	ServiceSettings map[string]any `json:"service_settings"`
}

type inferenceListResponse struct {
	Endpoints []inferenceEndpoint `json:"endpoints"`
}

func (s *ModelStore) GetInference(ctx context.Context, inferenceID string) (*domain.ModelConfig, error) {
	path := "/_inference/text_embedding/" + pathEscape(inferenceID)
	status, data, err := s.client.send(ctx, "get_inference", http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, unexpectedStatus("get_inference", status, data)
	}

	var resp inferenceListResponse
	if err := decode("get_inference", data, &resp); err != nil {
		return nil, err
	}
	if len(resp.Endpoints) == 0 {
		return nil, nil
	}
	cfg := configFromEndpoint(resp.Endpoints[0])
	return &cfg, nil
}

func (s *ModelStore) ListInferences(ctx context.Context) ([]domain.ModelConfig, error) {
	status, data, err := s.client.send(ctx, "list_inferences", http.MethodGet, "/_inference/text_embedding/_all", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, unexpectedStatus("list_inferences", status, data)
	}

	var resp inferenceListResponse
	if err := decode("list_inferences", data, &resp); err != nil {
		return nil, err
	}

	var configs []domain.ModelConfig
	for _, ep := range resp.Endpoints {
		// Skip endpoints this system did not provision.
		if domain.ModelIDFromInferenceID(ep.InferenceID) == "" {
			continue
		}
		configs = append(configs, configFromEndpoint(ep))
	}
	return configs, nil
}

func (s *ModelStore) DeleteInference(ctx context.Context, inferenceID string) error {
	path := "/_inference/text_embedding/" + pathEscape(inferenceID)
	status, data, err := s.client.send(ctx, "delete_inference", http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNotFound {
		return unexpectedStatus("delete_inference", status, data)
	}
	return nil
}

func (s *ModelStore) PutPipeline(ctx context.Context, pipelineID, inferenceID string) error {
	body := map[string]any{
		"description": fmt.Sprintf("embedding pipeline for %s", inferenceID),
		"processors": []map[string]any{
			{
				"inference": map[string]any{
					"model_id": inferenceID,
					"input_output": map[string]any{
						"input_field":  "content",
						"output_field": "embedding",
					},
				},
			},
		},
	}
	path := "/_ingest/pipeline/" + pathEscape(pipelineID)
	status, data, err := s.client.send(ctx, "put_pipeline", http.MethodPut, path, body)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return unexpectedStatus("put_pipeline", status, data)
	}
	slog.DebugContext(ctx, "ingest_pipeline_put", slog.String("pipeline_id", pipelineID))
	return nil
}

func (s *ModelStore) HasPipeline(ctx context.Context, pipelineID string) (bool, error) {
	path := "/_ingest/pipeline/" + pathEscape(pipelineID)
	status, data, err := s.client.send(ctx, "has_pipeline", http.MethodGet, path, nil)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, unexpectedStatus("has_pipeline", status, data)
	}
}

func (s *ModelStore) DeletePipeline(ctx context.Context, pipelineID string) error {
	path := "/_ingest/pipeline/" + pathEscape(pipelineID)
	status, data, err := s.client.send(ctx, "delete_pipeline", http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNotFound {
		return unexpectedStatus("delete_pipeline", status, data)
	}
	return nil
}

func (s *ModelStore) PutTemplate(ctx context.Context, name, indexPattern, pipelineID string, dimensions int) error {
	body := map[string]any{
		"index_patterns": []string{indexPattern},
		"template": map[string]any{
			"settings": map[string]any{
				"index": map[string]any{
					"default_pipeline": pipelineID,
				},
			},
			"mappings": map[string]any{
				"properties": chunkProperties(dimensions),
			},
		},
	}
	path := "/_index_template/" + pathEscape(name)
	status, data, err := s.client.send(ctx, "put_template", http.MethodPut, path, body)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return unexpectedStatus("put_template", status, data)
	}
	slog.DebugContext(ctx, "index_template_put", slog.String("template", name))
	return nil
}

func (s *ModelStore) HasTemplate(ctx context.Context, name string) (bool, error) {
	path := "/_index_template/" + pathEscape(name)
	status, data, err := s.client.send(ctx, "has_template", http.MethodGet, path, nil)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, unexpectedStatus("has_template", status, data)
	}
}

func (s *ModelStore) DeleteTemplate(ctx context.Context, name string) error {
	path := "/_index_template/" + pathEscape(name)
	status, data, err := s.client.send(ctx, "delete_template", http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNotFound {
		return unexpectedStatus("delete_template", status, data)
	}
	return nil
}

func configFromEndpoint(ep inferenceEndpoint) domain.ModelConfig {
	settings := make(map[string]any, len(ep.ServiceSettings))
	dims := 0
	for k, v := range ep.ServiceSettings {
		if k == "dimensions" {
			if f, ok := v.(float64); ok {
				dims = int(f)
			}
			continue
		}
		settings[k] = v
	}
	return domain.ModelConfig{
		ModelID:         domain.ModelIDFromInferenceID(ep.InferenceID),
		Service:         domain.ServiceKind(ep.Service),
		ServiceSettings: settings,
		Dimensions:      dims,
	}
}

// chunkProperties is the chunk document mapping. dimensions <= 0 omits the
// vector field for lexical-only collections.
func chunkProperties(dimensions int) map[string]any {
	props := map[string]any{
		"document_id":   map[string]any{"type": "keyword"},
		"document_name": map[string]any{"type": "keyword"},
		"ordinal":       map[string]any{"type": "integer"},
		"content":       map[string]any{"type": "text"},
		"metadata":      map[string]any{"type": "object", "dynamic": true},
		"added_at":      map[string]any{"type": "date"},
	}
	if dimensions > 0 {
		props["embedding"] = map[string]any{
			"type":       "dense_vector",
			"dims":       dimensions,
			"index":      true,
			"similarity": "cosine",
		}
	}
	return props
}

var _ domain.ModelResourceStore = (*ModelStore)(nil)
