package di

import (
	"fmt"
	"log/slog"

	"elasticrag/internal/adapter/embed"
	"elasticrag/internal/adapter/esstore"
	"elasticrag/internal/adapter/extract"
	"elasticrag/internal/domain"
	"elasticrag/internal/infra/config"
	"elasticrag/internal/infra/httpclient"
	"elasticrag/internal/usecase"
	"elasticrag/internal/worker"
)

// ApplicationComponents holds all wired dependencies for the application.
type ApplicationComponents struct {
	Store  *esstore.Client
	Client *usecase.Client
	Worker *worker.IngestWorker
}

// NewApplicationComponents wires every layer from config.
func NewApplicationComponents(cfg *config.Config, log *slog.Logger) (*ApplicationComponents, error) {
	storeHTTP := httpclient.NewPooledClient(cfg.ElasticTimeout)
	store := esstore.NewClient(cfg.ElasticURL, cfg.ElasticUser, cfg.ElasticPassword, storeHTTP)

	userRepo := esstore.NewUserRepository(store)
	modelStore := esstore.NewModelStore(store)
	indexAdmin := esstore.NewIndexAdmin(store)
	chunkRepo := esstore.NewChunkRepository(store)
	searcher := esstore.NewSearcher(store)

	chunker, err := domain.NewWindowChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("failed to build chunker: %w", err)
	}

	users := usecase.NewUserStore(userRepo)
	models, err := usecase.NewModelRegistry(modelStore, indexAdmin)
	if err != nil {
		return nil, fmt.Errorf("failed to build model registry: %w", err)
	}

	embedHTTP := httpclient.NewPooledClient(cfg.EmbeddingTimeout)
	encoderFactory := func(model domain.ModelConfig) (domain.VectorEncoder, error) {
		return embed.NewFromModel(model, embedHTTP)
	}

	collections := usecase.NewCollectionManager(
		models,
		indexAdmin,
		chunkRepo,
		searcher,
		extract.NewExtractor(),
		chunker,
		encoderFactory,
	)

	client := usecase.NewClient(users, models, collections, indexAdmin)
	ingestWorker := worker.NewIngestWorker(collections, log)

	return &ApplicationComponents{
		Store:  store,
		Client: client,
		Worker: ingestWorker,
	}, nil
}
