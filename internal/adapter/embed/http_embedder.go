package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"elasticrag/internal/domain"
)

const defaultOpenAIURL = "https://api.openai.com/v1/embeddings"

// HTTPEmbedder encodes query text against the same provider a model's
// inference endpoint was provisioned with, so query vectors live in the same
// space as stored chunk vectors.
type HTTPEmbedder struct {
	url     string
	apiKey  string
	modelID string
	service domain.ServiceKind
	client  *http.Client
}

// NewFromModel builds an embedder from a registered model's service settings.
func NewFromModel(cfg domain.ModelConfig, httpClient *http.Client) (*HTTPEmbedder, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	e := &HTTPEmbedder{
		apiKey:  cfg.Setting("api_key"),
		modelID: cfg.ModelID,
		service: cfg.Service,
		client:  httpClient,
	}
	switch cfg.Service {
	case domain.ServiceHuggingFace:
		e.url = cfg.Setting("url")
		if e.url == "" {
			return nil, fmt.Errorf("hugging_face model %q has no url: %w", cfg.ModelID, domain.ErrInvalidConfig)
		}
	case domain.ServiceOpenAI:
		e.url = cfg.Setting("url")
		if e.url == "" {
			e.url = defaultOpenAIURL
		}
		e.modelID = cfg.Setting("model_id")
	default:
		return nil, fmt.Errorf("unknown service %q: %w", cfg.Service, domain.ErrInvalidConfig)
	}
	return e, nil
}

func (e *HTTPEmbedder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()

	var body any
	switch e.service {
	case domain.ServiceHuggingFace:
		body = map[string]any{"inputs": texts}
	case domain.ServiceOpenAI:
		body = map[string]any{"model": e.modelID, "input": texts}
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		slog.ErrorContext(ctx, "embed_request_failed",
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(start)),
		)
		return nil, &domain.TransientError{Op: "encode", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, &domain.TransientError{
			Op:  "encode",
			Err: fmt.Errorf("embedding provider returned status %d", resp.StatusCode),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding provider returned status %d", resp.StatusCode)
	}

	vectors, err := e.decodeVectors(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding provider returned %d vectors for %d texts", len(vectors), len(texts))
	}

	slog.DebugContext(ctx, "embed_completed",
		slog.Int("text_count", len(texts)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return vectors, nil
}

func (e *HTTPEmbedder) decodeVectors(body io.Reader) ([][]float32, error) {
	switch e.service {
	case domain.ServiceOpenAI:
		var resp struct {
			Data []struct {
				Embedding []float32 `json:"embedding"`
			} `json:"data"`
		}
		if err := json.NewDecoder(body).Decode(&resp); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		vectors := make([][]float32, 0, len(resp.Data))
		for _, d := range resp.Data {
			vectors = append(vectors, d.Embedding)
		}
		return vectors, nil
	default:
		var vectors [][]float32
		if err := json.NewDecoder(body).Decode(&vectors); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return vectors, nil
	}
}

func (e *HTTPEmbedder) Version() string {
	return e.modelID
}

var _ domain.VectorEncoder = (*HTTPEmbedder)(nil)
