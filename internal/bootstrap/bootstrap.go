package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/kirillkom/brand-soul/internal/config"
	"github.com/kirillkom/brand-soul/internal/core/domain"
	"github.com/kirillkom/brand-soul/internal/core/ports"
	"github.com/kirillkom/brand-soul/internal/core/usecase"
	"github.com/kirillkom/brand-soul/internal/infrastructure/cache/memcache"
	"github.com/kirillkom/brand-soul/internal/infrastructure/cache/rediscache"
	"github.com/kirillkom/brand-soul/internal/infrastructure/docstore/badgerstore"
	"github.com/kirillkom/brand-soul/internal/infrastructure/docstore/pgstore"
	"github.com/kirillkom/brand-soul/internal/infrastructure/extractor"
	"github.com/kirillkom/brand-soul/internal/infrastructure/llm/extraction"
	"github.com/kirillkom/brand-soul/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/brand-soul/internal/infrastructure/llm/openai"
	"github.com/kirillkom/brand-soul/internal/infrastructure/queue/nats"
	"github.com/kirillkom/brand-soul/internal/infrastructure/repository/docrepo"
	"github.com/kirillkom/brand-soul/internal/infrastructure/resilience"
	"github.com/kirillkom/brand-soul/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/brand-soul/internal/observability/metrics"
	"github.com/kirillkom/brand-soul/internal/worker"
)

const memoryCacheSize = 1024

type App struct {
	Config config.Config
	Logger *slog.Logger

	Blobs    *localfs.Storage
	Notifier *nats.Notifier
	Queue    *usecase.JobQueue
	Members  *docrepo.MembershipGate

	IngestUC    ports.ArtifactIngestor
	ArtifactsUC ports.ArtifactService
	SoulsUC     ports.BrandSoulService
	ContextUC   ports.ContextBuilder
	JobsUC      ports.JobService

	Worker        *worker.Worker
	HTTPMetrics   *metrics.HTTPServerMetrics
	WorkerMetrics *metrics.WorkerMetrics

	closers []func()
}

// New wires every adapter and use case. service names the process in metrics
// labels ("api" or "worker").
func New(ctx context.Context, cfg config.Config, service string, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	docs, err := app.openDocumentStore(ctx)
	if err != nil {
		return nil, err
	}

	blobs, err := localfs.New(cfg.BlobStoragePath, []byte(cfg.BlobSigningKey), cfg.BlobPublicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("init blob storage: %w", err)
	}
	app.Blobs = blobs
	content := usecase.NewContentStore(docs, blobs, cfg.InlineContentThreshold, logger)

	cache, err := app.openCache(ctx)
	if err != nil {
		return nil, err
	}

	executor := resilience.NewExecutor(resilienceConfig(cfg), logger)
	notifier, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init job notifier: %w", err)
	}
	app.Notifier = notifier
	app.closers = append(app.closers, notifier.Close)

	insightExtractor, err := newInsightExtractor(cfg, executor, logger)
	if err != nil {
		return nil, err
	}

	gate := docrepo.NewMembershipGate(docs)
	app.Members = gate
	registry := usecase.NewArtifactRegistry(docrepo.NewArtifactRepository(docs), cfg.JobMaxRetries)
	souls := docrepo.NewBrandSoulRepository(docs)
	queue := usecase.NewJobQueue(docrepo.NewJobRepository(docs), notifier, cfg.JobMaxRetries, logger)
	app.Queue = queue

	app.HTTPMetrics = metrics.NewHTTPServerMetrics(service)
	app.WorkerMetrics = metrics.NewWorkerMetrics(service)

	extractUC := usecase.NewExtractInsightsUseCase(registry, content, extractor.NewRouter(), insightExtractor, queue, cfg.AutoSynthesize, logger)
	synthesis := usecase.NewSynthesisEngine(registry, content, souls, cache, cfg.SynthesisFreshness, logger)

	w, err := worker.New(queue, map[domain.JobType]worker.Handler{
		domain.JobExtractInsights: extractUC,
		domain.JobSynthesize:      synthesis,
	}, worker.Options{
		PollInterval:  cfg.WorkerPollInterval,
		MaxConcurrent: cfg.WorkerMaxConcurrent,
		JobTimeout:    cfg.WorkerJobTimeout,
	}, app.WorkerMetrics, logger.With(slog.String("component", "worker")))
	if err != nil {
		return nil, err
	}
	app.Worker = w
	app.closers = append(app.closers, w.Close)

	app.IngestUC = usecase.NewIngestArtifactUseCase(gate, registry, content, queue, logger)
	app.ArtifactsUC = usecase.NewArtifactAdminUseCase(gate, registry, content, queue, cfg.AutoSynthesize, logger)
	app.SoulsUC = usecase.NewBrandSoulUseCase(gate, souls, registry, queue, cache, logger)
	app.ContextUC = usecase.NewContextAssembler(gate, souls, registry, content, cache,
		cfg.ContextCacheTTL, cfg.ContextMaxArtifacts, app.HTTPMetrics, logger)
	app.JobsUC = usecase.NewJobAdminUseCase(gate, queue, registry, w)

	return app, nil
}

func (a *App) openDocumentStore(ctx context.Context) (ports.DocumentStore, error) {
	switch a.Config.DocstoreDriver {
	case "badger":
		store, err := badgerstore.Open(a.Config.BadgerPath, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("open badger: %w", err)
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		return store, nil
	case "", "postgres":
		db, err := pgstore.OpenDB(a.Config.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, closeDB(db))
		store := pgstore.New(db)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown DOCSTORE_DRIVER %q", a.Config.DocstoreDriver)
	}
}

func (a *App) openCache(ctx context.Context) (ports.Cache, error) {
	switch a.Config.CacheDriver {
	case "", "redis":
		cache, err := rediscache.New(ctx, rediscache.Options{
			Addr:     a.Config.RedisAddr,
			Password: a.Config.RedisPassword,
			DB:       a.Config.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("init redis cache: %w", err)
		}
		a.closers = append(a.closers, func() { _ = cache.Close() })
		return cache, nil
	case "memory":
		// Process-local: the worker's synthesis invalidation never reaches the
		// API, so entries there go stale until CONTEXT_CACHE_TTL.
		return memcache.New(memoryCacheSize, a.Config.ContextCacheTTL), nil
	default:
		return nil, fmt.Errorf("unknown CACHE_DRIVER %q", a.Config.CacheDriver)
	}
}

func newInsightExtractor(cfg config.Config, executor *resilience.Executor, logger *slog.Logger) (ports.InsightExtractor, error) {
	switch cfg.ExtractorProvider {
	case "", "ollama":
		client := ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaGenModel, ollama.Options{
			ResilienceExecutor: executor,
		})
		return ollama.NewInsightExtractor(client, extraction.DefaultMaxChars), nil
	case "openai":
		ex, err := openai.NewInsightExtractor(openai.Config{
			BaseURL:  cfg.OpenAIBaseURL,
			Model:    cfg.OpenAIModel,
			APIKey:   cfg.OpenAIAPIKey,
			MaxChars: extraction.DefaultMaxChars,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init openai extractor: %w", err)
		}
		return ex, nil
	default:
		return nil, fmt.Errorf("unknown EXTRACTOR_PROVIDER %q", cfg.ExtractorProvider)
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	return resilience.Config{
		RetryMaxAttempts:        cfg.RetryMaxAttempts,
		RetryInitialBackoff:     cfg.RetryInitialBackoff,
		RetryMaxBackoff:         cfg.RetryMaxBackoff,
		RetryMultiplier:         2,
		BreakerEnabled:          cfg.BreakerEnabled,
		BreakerMinRequests:      uint32(max(cfg.BreakerMinRequests, 0)),
		BreakerFailureRatio:     cfg.BreakerFailureRatio,
		BreakerOpenTimeout:      cfg.BreakerOpenTimeout,
		BreakerHalfOpenMaxCalls: uint32(max(cfg.BreakerHalfOpenMaxCalls, 0)),
	}
}

func closeDB(db *sql.DB) func() {
	return func() { _ = db.Close() }
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
