package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/custodia-labs/milo/internal/adapters/driven/ai"
	"github.com/custodia-labs/milo/internal/adapters/driven/config/file"
	"github.com/custodia-labs/milo/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/milo/internal/adapters/driven/storage/postgres"
	"github.com/custodia-labs/milo/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/milo/internal/config"
	"github.com/custodia-labs/milo/internal/connectors/filesystem"
	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/core/ports/driven"
	"github.com/custodia-labs/milo/internal/core/ports/driving"
	"github.com/custodia-labs/milo/internal/core/services"
	"github.com/custodia-labs/milo/internal/logger"
	"github.com/custodia-labs/milo/internal/postprocessors"
)

// Services bundles what a command needs. Close releases everything.
type Services struct {
	Config *config.Config
	Ingest driving.IngestService
	Query  driving.QueryService
	Store  driven.VectorStore
	Loader *filesystem.Loader

	// LLMModel is empty when no generator is available.
	LLMModel string

	closers []func()
}

// Close releases the store and the gateways.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// needs states which optional collaborators a command requires.
type needs struct {
	llm bool
}

// openServices builds the pipeline from cfg. Tests replace it.
var openServices = defaultOpenServices

func defaultOpenServices(ctx context.Context, cfg *config.Config, n needs) (*Services, error) {
	svc := &Services{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			svc.Close()
		}
	}()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	svc.closers = append(svc.closers, func() { store.Close() })
	if err := store.Setup(ctx); err != nil {
		return nil, err
	}
	svc.Store = store

	gateways, err := ai.Init(ctx, cfg.EmbeddingSettings(), cfg.LLMSettings(), n.llm)
	if err != nil {
		return nil, err
	}
	svc.closers = append(svc.closers, gateways.Close)
	if gateways.LLMService != nil {
		svc.LLMModel = gateways.LLMService.ModelName()
	}

	prompts, err := file.NewPromptStore(cfg.PromptDir)
	if err != nil {
		return nil, err
	}

	registry := postprocessors.NewRegistry()
	postprocessors.RegisterDefaults(registry, gateways.LLMService, prompts)
	chunker, err := registry.Build(cfg.Chunking.Strategy, cfg.ChunkingOptions())
	if err != nil {
		return nil, err
	}

	svc.Loader = filesystem.NewLoader()
	ingest := services.NewIngestService(svc.Loader, chunker, gateways.EmbeddingService, store, cfg.StoreTimeout())
	ingest.SetBatchSize(cfg.Embedding.BatchSize)
	ingest.SetRunIDFunc(uuid.NewString)
	svc.Ingest = ingest

	query := services.NewQueryService(
		gateways.EmbeddingService,
		services.NewRetriever(store, cfg.StoreTimeout()),
		gateways.LLMService,
	)
	query.SetPromptStore(prompts)
	query.SetInstruction(cfg.Embedding.Instruction)
	query.SetGenerateOptions(driven.GenerateOptions{
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})
	query.SetCiteAttempts(cfg.LLM.CiteAttempts)
	svc.Query = query

	ok = true
	return svc, nil
}

// openStore connects to the configured backend without running Setup.
func openStore(ctx context.Context, cfg *config.Config) (driven.VectorStore, error) {
	backend := cfg.StoreBackend()
	logger.Debug("opening %s store (%d dims)", backend, cfg.Store.Dimensions)

	switch backend {
	case domain.StoreBackendPostgres:
		return postgres.NewStore(ctx, cfg.Store.Connection, cfg.Store.Dimensions,
			postgres.WithIndexLists(cfg.Store.IndexLists))
	case domain.StoreBackendSQLite:
		dir, err := cfg.DataDir()
		if err != nil {
			return nil, err
		}
		return sqlite.NewStore(dir, cfg.Store.Dimensions)
	case domain.StoreBackendMemory:
		logger.Warn("memory store: records are discarded when milo exits")
		return memory.NewVectorStore(cfg.Store.Dimensions), nil
	default:
		return nil, fmt.Errorf("%w: store backend %q", domain.ErrUnsupportedType, backend)
	}
}

// withServices loads config, applies adjust, opens the pipeline and runs fn.
func withServices(
	ctx context.Context, n needs, adjust func(*config.Config) error, fn func(*Services) error,
) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if adjust != nil {
		if err := adjust(cfg); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	svc, err := openServices(ctx, cfg, n)
	if err != nil {
		return describeError(err)
	}
	defer svc.Close()

	return describeError(fn(svc))
}
