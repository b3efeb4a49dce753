package domain

import (
	"fmt"
	"strings"
)

// ServiceKind identifies the embedding inference provider behind a model.
type ServiceKind string

const (
	ServiceHuggingFace ServiceKind = "hugging_face"
	ServiceOpenAI      ServiceKind = "openai"
)

// requiredSettings lists the service_settings keys each service needs for
// provisioning. Everything else in the bag is opaque and passed through.
var requiredSettings = map[ServiceKind][]string{
	ServiceHuggingFace: {"url"},
	ServiceOpenAI:      {"model_id"},
}

// ModelConfig describes a registered embedding model and the resources
// derived from it.
type ModelConfig struct {
	ModelID string
	Service ServiceKind
	// ServiceSettings is opaque to the core apart from the per-service
	// required keys; it is passed through to inference provisioning.
	ServiceSettings map[string]any
	Dimensions      int
}

// Validate rejects configs before any provisioning write happens.
func (c ModelConfig) Validate() error {
	if c.ModelID == "" {
		return fmt.Errorf("model id is empty: %w", ErrInvalidIdentifier)
	}
	if strings.Contains(SanitizeModelID(c.ModelID), "__") {
		return fmt.Errorf("model id %q contains reserved separator: %w", c.ModelID, ErrInvalidIdentifier)
	}
	required, known := requiredSettings[c.Service]
	if !known {
		return fmt.Errorf("unknown service %q: %w", c.Service, ErrInvalidConfig)
	}
	if c.Dimensions <= 0 {
		return fmt.Errorf("dimensions %d must be positive: %w", c.Dimensions, ErrInvalidConfig)
	}
	for _, key := range required {
		if v, ok := c.ServiceSettings[key]; !ok || v == "" {
			return fmt.Errorf("service %q requires setting %q: %w", c.Service, key, ErrInvalidConfig)
		}
	}
	return nil
}

// Setting returns a string-valued service setting, or "" when absent.
func (c ModelConfig) Setting(key string) string {
	if v, ok := c.ServiceSettings[key].(string); ok {
		return v
	}
	return ""
}

// Derived resource names. All deterministic functions of the model id.

func (c ModelConfig) InferenceID() string  { return InferenceID(c.ModelID) }
func (c ModelConfig) PipelineID() string   { return PipelineID(c.ModelID) }
func (c ModelConfig) TemplateName() string { return TemplateName(c.ModelID) }
func (c ModelConfig) IndexPattern() string { return IndexPattern(c.ModelID) }
