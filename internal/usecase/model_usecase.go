package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"elasticrag/internal/domain"

	lru "github.com/hashicorp/golang-lru/v2"
)

const modelCacheSize = 64

type ModelRegistry interface {
	// Register provisions the model's inference endpoint, ingest pipeline
	// and index template, in that order. Registering an identical config
	// again is a no-op; a differing config is rejected unless force, which
	// tears the resources down and recreates them.
	Register(ctx context.Context, cfg domain.ModelConfig, force bool) error
	// Get returns a registered model's config.
	Get(ctx context.Context, modelID string) (*domain.ModelConfig, error)
	// List returns every model provisioned by this system.
	List(ctx context.Context) ([]domain.ModelConfig, error)
	// Delete removes the model's resources. It refuses while collection
	// indices still match the model's pattern unless force, which drops
	// them first.
	Delete(ctx context.Context, modelID string, force bool) error
}

type modelRegistry struct {
	resources domain.ModelResourceStore
	indices   domain.IndexAdmin
	cache     *lru.Cache[string, domain.ModelConfig]
}

func NewModelRegistry(resources domain.ModelResourceStore, indices domain.IndexAdmin) (ModelRegistry, error) {
	cache, err := lru.New[string, domain.ModelConfig](modelCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create model cache: %w", err)
	}
	return &modelRegistry{
		resources: resources,
		indices:   indices,
		cache:     cache,
	}, nil
}

func (r *modelRegistry) Register(ctx context.Context, cfg domain.ModelConfig, force bool) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.cache.Remove(cacheKey(cfg.ModelID))

	existing, err := r.resources.GetInference(ctx, cfg.InferenceID())
	if err != nil {
		return fmt.Errorf("failed to get inference endpoint: %w", err)
	}

	if existing != nil {
		if !force && !sameProvisioning(*existing, cfg) {
			return fmt.Errorf("model %q already registered with a different config: %w", cfg.ModelID, domain.ErrInvalidConfig)
		}
		if force {
			if err := r.teardown(ctx, cfg.ModelID); err != nil {
				return err
			}
			existing = nil
		}
	}

	// Each step is check-then-create, so a retry after a partial failure
	// completes the remainder.
	if existing == nil {
		if err := r.resources.PutInference(ctx, cfg); err != nil {
			return fmt.Errorf("failed to put inference endpoint: %w", err)
		}
	}

	hasPipeline, err := r.resources.HasPipeline(ctx, cfg.PipelineID())
	if err != nil {
		return fmt.Errorf("failed to check pipeline: %w", err)
	}
	if !hasPipeline {
		if err := r.resources.PutPipeline(ctx, cfg.PipelineID(), cfg.InferenceID()); err != nil {
			return fmt.Errorf("failed to put pipeline: %w", err)
		}
	}

	hasTemplate, err := r.resources.HasTemplate(ctx, cfg.TemplateName())
	if err != nil {
		return fmt.Errorf("failed to check template: %w", err)
	}
	if !hasTemplate {
		if err := r.resources.PutTemplate(ctx, cfg.TemplateName(), cfg.IndexPattern(), cfg.PipelineID(), cfg.Dimensions); err != nil {
			return fmt.Errorf("failed to put template: %w", err)
		}
	}

	// A concurrent Get may have re-cached the pre-mutation config between
	// the invalidation above and the writes, so invalidate once more.
	r.cache.Remove(cacheKey(cfg.ModelID))

	slog.InfoContext(ctx, "model_registered",
		slog.String("model_id", cfg.ModelID),
		slog.String("service", string(cfg.Service)),
		slog.Int("dimensions", cfg.Dimensions),
		slog.Bool("force", force),
	)
	return nil
}

func (r *modelRegistry) Get(ctx context.Context, modelID string) (*domain.ModelConfig, error) {
	key := cacheKey(modelID)
	if cfg, ok := r.cache.Get(key); ok {
		return &cfg, nil
	}

	cfg, err := r.resources.GetInference(ctx, domain.InferenceID(modelID))
	if err != nil {
		return nil, fmt.Errorf("failed to get inference endpoint: %w", err)
	}
	if cfg == nil {
		return nil, fmt.Errorf("model %q: %w", modelID, domain.ErrModelNotFound)
	}
	r.cache.Add(key, *cfg)
	return cfg, nil
}

func (r *modelRegistry) List(ctx context.Context) ([]domain.ModelConfig, error) {
	configs, err := r.resources.ListInferences(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list inference endpoints: %w", err)
	}
	return configs, nil
}

func (r *modelRegistry) Delete(ctx context.Context, modelID string, force bool) error {
	r.cache.Remove(cacheKey(modelID))

	existing, err := r.resources.GetInference(ctx, domain.InferenceID(modelID))
	if err != nil {
		return fmt.Errorf("failed to get inference endpoint: %w", err)
	}
	if existing == nil {
		return fmt.Errorf("model %q: %w", modelID, domain.ErrModelNotFound)
	}

	backing, err := r.indices.ListIndices(ctx, []string{domain.IndexPattern(modelID)})
	if err != nil {
		return fmt.Errorf("failed to list backing indices: %w", err)
	}
	if len(backing) > 0 {
		if !force {
			return fmt.Errorf("model %q still backs %d collection indices: %w", modelID, len(backing), domain.ErrInvalidInput)
		}
		for _, info := range backing {
			if err := r.indices.DeleteIndex(ctx, info.Name); err != nil {
				return fmt.Errorf("failed to delete index %q: %w", info.Name, err)
			}
		}
	}

	if err := r.teardown(ctx, modelID); err != nil {
		return err
	}
	// Drop whatever a concurrent Get cached while the teardown was running.
	r.cache.Remove(cacheKey(modelID))

	slog.InfoContext(ctx, "model_deleted", slog.String("model_id", modelID), slog.Bool("force", force))
	return nil
}

// teardown removes the three derived resources in reverse provisioning
// order. Absent resources are not errors, so it converges after partial
// provisioning too.
func (r *modelRegistry) teardown(ctx context.Context, modelID string) error {
	if err := r.resources.DeleteTemplate(ctx, domain.TemplateName(modelID)); err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	if err := r.resources.DeletePipeline(ctx, domain.PipelineID(modelID)); err != nil {
		return fmt.Errorf("failed to delete pipeline: %w", err)
	}
	if err := r.resources.DeleteInference(ctx, domain.InferenceID(modelID)); err != nil {
		return fmt.Errorf("failed to delete inference endpoint: %w", err)
	}
	return nil
}

// sameProvisioning compares the parts of a config that shape provisioned
// resources. Stored service settings may carry provider defaults the caller
// never set, so only caller-supplied keys are compared.
func sameProvisioning(stored, requested domain.ModelConfig) bool {
	if stored.Service != requested.Service || stored.Dimensions != requested.Dimensions {
		return false
	}
	for key, want := range requested.ServiceSettings {
		if got, ok := stored.ServiceSettings[key]; ok && fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func cacheKey(modelID string) string {
	return domain.SanitizeModelID(modelID)
}
