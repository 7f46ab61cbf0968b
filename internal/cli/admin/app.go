package admin

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/cloo-solutions/docqa/internal/api/handlers"
	"github.com/cloo-solutions/docqa/internal/config"
	"github.com/cloo-solutions/docqa/internal/database"
	"github.com/cloo-solutions/docqa/internal/jobs"
	"github.com/cloo-solutions/docqa/internal/openai"
	"github.com/cloo-solutions/docqa/internal/repository"
	"github.com/cloo-solutions/docqa/internal/server"
	"github.com/cloo-solutions/docqa/internal/service"
	"github.com/cloo-solutions/docqa/internal/storage"
	"github.com/cloo-solutions/docqa/internal/telemetry"
)

// App is the fully wired service graph shared by every docqad command.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Collection *service.Collection
	Documents  *service.DocumentService
	Queries    *service.QueryService
	Snapshots  *service.Snapshotter
	Queue      *service.SnapshotQueue
	Worker     *jobs.SnapshotWorker

	closers []func()
}

// AppOptions overrides parts of the graph. Zero fields are built from Config.
type AppOptions struct {
	Store       service.ArtifactStore
	Embedder    service.Embedder
	Synthesizer service.Synthesizer
	Catalog     service.DocumentCatalog
	// SkipMigrations leaves the catalog schema untouched.
	SkipMigrations bool
}

// NewApp builds the service graph from cfg. Providers that are not
// configured degrade: no OpenAI key means no embeddings and fallback
// answers, no S3 endpoint means snapshots on local disk, no database URL
// means no catalog.
func NewApp(ctx context.Context, cfg *config.Config, logOut io.Writer, opts AppOptions) (*App, error) {
	logger := cfg.NewLogger(logOut)
	slog.SetDefault(logger)

	app := &App{Config: cfg, Logger: logger}

	shutdownTelemetry, err := telemetry.Init(telemetry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		TracesSampleRate: cfg.TracesSampleRate(),
		Debug:            cfg.Debug,
	})
	if err != nil {
		logger.Warn("telemetry init failed, continuing without tracing", slog.Any("error", err))
	} else {
		app.closers = append(app.closers, shutdownTelemetry)
	}

	store := opts.Store
	if store == nil {
		if store, err = newArtifactStore(ctx, cfg, logger); err != nil {
			app.Close()
			return nil, err
		}
	}

	embedder := opts.Embedder
	synth := opts.Synthesizer
	if embedder == nil || synth == nil {
		e, s, err := newProviders(cfg, logger)
		if err != nil {
			app.Close()
			return nil, err
		}
		if embedder == nil {
			embedder = e
		}
		if synth == nil && s != nil {
			synth = s
		}
	}

	catalog := opts.Catalog
	if catalog == nil && cfg.HasDatabase() {
		c, closePool, err := newCatalog(ctx, cfg, opts.SkipMigrations, logger)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.closers = append(app.closers, closePool)
		catalog = c
	}

	app.Collection = service.NewCollection(embedder, logger)
	app.Queue = service.NewSnapshotQueue(nil)
	app.Snapshots = service.NewSnapshotter(app.Collection, store, logger)
	app.Worker = jobs.NewSnapshotWorker(app.Queue, app.Snapshots, logger)

	chunkCfg := service.ChunkConfig{
		ChunkSize: cfg.ChunkSize,
		Overlap:   cfg.ChunkOverlap,
		MinChars:  cfg.MinChunkChars,
	}
	app.Documents, err = service.NewDocumentService(app.Collection, chunkCfg, nil, service.DocumentServiceDeps{
		Catalog:   catalog,
		Snapshots: app.Queue,
		Loader:    app.Snapshots,
		Logger:    logger,
	})
	if err != nil {
		app.Close()
		return nil, err
	}

	answers := service.NewAnswerService(synth, logger)
	app.Queries = service.NewQueryService(app.Collection, service.NewFusionEngine(app.Collection), answers,
		service.QueryConfig{DefaultTopK: cfg.DefaultTopK, CrossDocumentTopK: cfg.CrossDocumentTopK}, logger)

	return app, nil
}

// Rehydrate restores the collection from the catalog or the snapshot store.
func (a *App) Rehydrate(ctx context.Context) (int, error) {
	n, err := a.Documents.Rehydrate(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to rehydrate collection: %w", err)
	}
	a.Logger.Info("collection rehydrated",
		slog.Int("documents", n),
		slog.Int("chunks", a.Collection.TotalChunks()))
	return n, nil
}

// Flush writes every queued snapshot now. Anything the queue could not
// persist is written synchronously.
func (a *App) Flush(ctx context.Context) error {
	if err := a.Worker.ProcessJobs(ctx); err != nil {
		a.Logger.Warn("snapshot drain failed", slog.Any("error", err))
	}
	if a.Queue.Len() == 0 {
		return nil
	}
	a.Logger.Warn("snapshot jobs left after drain, saving all documents", slog.Int("pending", a.Queue.Len()))
	return a.Snapshots.SaveAll(ctx)
}

// Handler builds the HTTP API over the app's services.
func (a *App) Handler() http.Handler {
	return server.NewRouter(server.RouterConfig{
		DocumentHandler: handlers.NewDocumentHandler(a.Documents),
		QueryHandler:    handlers.NewQueryHandler(a.Queries),
		StatusHandler:   handlers.NewStatusHandler(a.Documents, a.Queries, a.Collection.Embedder().Model()),
		Logger:          a.Logger,
		MaxBodyBytes:    a.Config.MaxUploadBytes,
	})
}

// Close drops the in-memory collection, releases the database pool and
// flushes telemetry. Call Flush first to keep pending snapshots.
func (a *App) Close() {
	if a.Collection != nil {
		a.Collection.Teardown()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func newArtifactStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (service.ArtifactStore, error) {
	if !cfg.HasS3() {
		store, err := storage.NewFileStore(cfg.SnapshotDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open snapshot directory: %w", err)
		}
		logger.Info("snapshots stored on disk", slog.String("dir", store.Root()))
		return store, nil
	}

	store, err := storage.NewS3Store(ctx, storage.S3ClientConfig{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKey,
		SecretAccessKey: cfg.S3SecretKey,
		Bucket:          cfg.S3Bucket,
		UsePathStyle:    cfg.S3UsePathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
	}
	logger.Info("snapshots stored in S3", slog.String("bucket", cfg.S3Bucket))
	return store, nil
}

func newProviders(cfg *config.Config, logger *slog.Logger) (service.Embedder, service.Synthesizer, error) {
	if !cfg.HasOpenAI() {
		logger.Warn("OPENAI_API_KEY not set, ingestion and search are disabled and answers use retrieved sections")
		return service.NoOpEmbedder{}, nil, nil
	}

	oaCfg := openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		BaseURL:             cfg.OpenAIBaseURL,
		EmbeddingModel:      cfg.EmbeddingModel,
		EmbeddingDimensions: cfg.EmbeddingDimensions,
		BatchSize:           cfg.EmbeddingBatchSize,
		ChatModel:           cfg.ChatModel,
	}
	embedder, err := openai.NewClient(oaCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create embedding client: %w", err)
	}
	chat, err := openai.NewChatClient(oaCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create chat client: %w", err)
	}
	return embedder, chat, nil
}

func newCatalog(ctx context.Context, cfg *config.Config, skipMigrations bool, logger *slog.Logger) (service.DocumentCatalog, func(), error) {
	if !skipMigrations {
		if err := database.RunMigrations(cfg.DatabaseURL, database.DefaultMigrationsSource, logger); err != nil {
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Info("document catalog connected")
	return repository.NewDocumentCatalog(pool), pool.Close, nil
}
