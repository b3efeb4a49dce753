package domain

import (
	"fmt"
	"strings"
)

const (
	inferenceSuffix = "__inference"
	pipelineSuffix  = "__pipeline"
	templateSuffix  = "__template"

	// MaxIndexNameLength is the store's limit on index names in bytes.
	MaxIndexNameLength = 255
)

// SanitizeModelID maps a model id to a form the store accepts as part of a
// resource name: lowercased, with every character outside [a-z0-9._-]
// replaced by '-'. The sanitized id is fixed at registration and used for
// every later lookup, so it must stay deterministic.
func SanitizeModelID(modelID string) string {
	lowered := strings.ToLower(modelID)
	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

// InferenceID derives the inference endpoint name for a model.
func InferenceID(modelID string) string {
	return SanitizeModelID(modelID) + inferenceSuffix
}

// PipelineID derives the ingest pipeline name for a model.
func PipelineID(modelID string) string {
	return SanitizeModelID(modelID) + pipelineSuffix
}

// TemplateName derives the index template name for a model.
func TemplateName(modelID string) string {
	return SanitizeModelID(modelID) + templateSuffix
}

// IndexPattern is the template's index pattern covering every collection
// bound to the model.
func IndexPattern(modelID string) string {
	return SanitizeModelID(modelID) + "__*"
}

// ModelIDFromInferenceID recovers the sanitized model id from an inference
// endpoint name, or "" when the endpoint was not provisioned by this system.
func ModelIDFromInferenceID(inferenceID string) string {
	if !strings.HasSuffix(inferenceID, inferenceSuffix) {
		return ""
	}
	return strings.TrimSuffix(inferenceID, inferenceSuffix)
}

// ValidateNamePart checks a username or collection name for use inside an
// index name. Parts are validated, not rewritten: silently rewriting them
// would let two distinct inputs collide on the same index.
func ValidateNamePart(part string) error {
	if part == "" {
		return fmt.Errorf("empty name component: %w", ErrInvalidIdentifier)
	}
	if strings.Contains(part, "__") {
		return fmt.Errorf("name component %q contains reserved separator: %w", part, ErrInvalidIdentifier)
	}
	if strings.HasPrefix(part, "-") || strings.HasPrefix(part, "_") || strings.HasPrefix(part, ".") {
		return fmt.Errorf("name component %q starts with a reserved character: %w", part, ErrInvalidIdentifier)
	}
	for _, r := range part {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			continue
		}
		return fmt.Errorf("name component %q contains %q: %w", part, string(r), ErrInvalidIdentifier)
	}
	return nil
}

// IndexName derives the backing index for a collection:
// "{model}__{username}__{collection}" when a model is bound, else
// "{username}__{collection}". The derivation is injective for valid inputs
// and used identically at provisioning time and at every later lookup.
func IndexName(username, collection, modelID string) (string, error) {
	if err := ValidateNamePart(username); err != nil {
		return "", err
	}
	if err := ValidateNamePart(collection); err != nil {
		return "", err
	}
	name := username + "__" + collection
	if modelID != "" {
		sanitized := SanitizeModelID(modelID)
		if strings.Contains(sanitized, "__") {
			return "", fmt.Errorf("model id %q contains reserved separator: %w", modelID, ErrInvalidIdentifier)
		}
		name = sanitized + "__" + name
	}
	if len(name) > MaxIndexNameLength {
		return "", fmt.Errorf("index name %q exceeds %d bytes: %w", name, MaxIndexNameLength, ErrInvalidIdentifier)
	}
	return name, nil
}
