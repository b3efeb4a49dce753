package esstore

import (
	"context"
	"net/http"
	"testing"

	"elasticrag/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testModelConfig() domain.ModelConfig {
	return domain.ModelConfig{
		ModelID:         "bge-small",
		Service:         domain.ServiceHuggingFace,
		ServiceSettings: map[string]any{"url": "http://embeddings:8080"},
		Dimensions:      384,
	}
}

func TestPutInference_InjectsDimensions(t *testing.T) {
	client, calls := recordingServer(t, http.StatusOK, `{}`)
	store := NewModelStore(client)

	require.NoError(t, store.PutInference(context.Background(), testModelConfig()))

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, http.MethodPut, call.method)
	assert.Equal(t, "/_inference/text_embedding/bge-small__inference", call.path)
	assert.Equal(t, "hugging_face", call.body["service"])
	settings, ok := call.body["service_settings"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "http://embeddings:8080", settings["url"])
	assert.Equal(t, float64(384), settings["dimensions"])
}

func TestPutInference_AlreadyExistsIsSuccess(t *testing.T) {
	client, _ := recordingServer(t, http.StatusBadRequest,
		`{"error":{"type":"resource_already_exists_exception"}}`)
	store := NewModelStore(client)

	assert.NoError(t, store.PutInference(context.Background(), testModelConfig()))
}

func TestPutInference_UnexpectedStatus(t *testing.T) {
	client, _ := recordingServer(t, http.StatusForbidden, `{"error":{"type":"security_exception"}}`)
	store := NewModelStore(client)

	err := store.PutInference(context.Background(), testModelConfig())

	var driverErr *DriverError
	require.ErrorAs(t, err, &driverErr)
	assert.Equal(t, http.StatusForbidden, driverErr.Status)
	assert.False(t, domain.IsTransient(err))
}

func TestGetInference_Absent(t *testing.T) {
	client, _ := recordingServer(t, http.StatusNotFound, `{"error":{"type":"resource_not_found_exception"}}`)
	store := NewModelStore(client)

	cfg, err := store.GetInference(context.Background(), "missing__inference")

	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestGetInference_ParsesEndpoint(t *testing.T) {
	response := `{"endpoints":[{
		"inference_id":"bge-small__inference",
		"task_type":"text_embedding",
		"service":"hugging_face",
		"service_settings":{"url":"http://embeddings:8080","dimensions":384}
	}]}`
	client, _ := recordingServer(t, http.StatusOK, response)
	store := NewModelStore(client)

	cfg, err := store.GetInference(context.Background(), "bge-small__inference")

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "bge-small", cfg.ModelID)
	assert.Equal(t, domain.ServiceHuggingFace, cfg.Service)
	assert.Equal(t, 384, cfg.Dimensions)
	assert.Equal(t, map[string]any{"url": "http://embeddings:8080"}, cfg.ServiceSettings)
}

func TestListInferences_SkipsForeignEndpoints(t *testing.T) {
	response := `{"endpoints":[
		{"inference_id":"bge-small__inference","service":"hugging_face","service_settings":{"dimensions":384}},
		{"inference_id":".elser-preconfigured","service":"elser","service_settings":{}}
	]}`
	client, _ := recordingServer(t, http.StatusOK, response)
	store := NewModelStore(client)

	configs, err := store.ListInferences(context.Background())

	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, "bge-small", configs[0].ModelID)
}

func TestPutPipeline_WiresInferenceProcessor(t *testing.T) {
	client, calls := recordingServer(t, http.StatusOK, `{"acknowledged":true}`)
	store := NewModelStore(client)

	require.NoError(t, store.PutPipeline(context.Background(), "bge-small__pipeline", "bge-small__inference"))

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, "/_ingest/pipeline/bge-small__pipeline", call.path)
	processors, ok := call.body["processors"].([]any)
	require.True(t, ok)
	require.Len(t, processors, 1)
	inference := processors[0].(map[string]any)["inference"].(map[string]any)
	assert.Equal(t, "bge-small__inference", inference["model_id"])
	io := inference["input_output"].(map[string]any)
	assert.Equal(t, "content", io["input_field"])
	assert.Equal(t, "embedding", io["output_field"])
}

func TestPutTemplate_MapsDenseVector(t *testing.T) {
	client, calls := recordingServer(t, http.StatusOK, `{"acknowledged":true}`)
	store := NewModelStore(client)

	err := store.PutTemplate(context.Background(), "bge-small__template", "bge-small__*", "bge-small__pipeline", 384)
	require.NoError(t, err)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, "/_index_template/bge-small__template", call.path)
	assert.Equal(t, []any{"bge-small__*"}, call.body["index_patterns"])

	template := call.body["template"].(map[string]any)
	index := template["settings"].(map[string]any)["index"].(map[string]any)
	assert.Equal(t, "bge-small__pipeline", index["default_pipeline"])

	props := template["mappings"].(map[string]any)["properties"].(map[string]any)
	embedding := props["embedding"].(map[string]any)
	assert.Equal(t, "dense_vector", embedding["type"])
	assert.Equal(t, float64(384), embedding["dims"])
	assert.Equal(t, "cosine", embedding["similarity"])
}

func TestDeleteResources_AbsentIsSuccess(t *testing.T) {
	client, _ := recordingServer(t, http.StatusNotFound, `{}`)
	store := NewModelStore(client)
	ctx := context.Background()

	assert.NoError(t, store.DeleteInference(ctx, "bge-small__inference"))
	assert.NoError(t, store.DeletePipeline(ctx, "bge-small__pipeline"))
	assert.NoError(t, store.DeleteTemplate(ctx, "bge-small__template"))
}
