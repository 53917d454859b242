// Package app wires configuration, storage and the catalog service into a
// running server.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	httpapi "github.com/kepler-soc/kic/internal/api/http"
	"github.com/kepler-soc/kic/internal/catalog"
	"github.com/kepler-soc/kic/internal/config"
	"github.com/kepler-soc/kic/internal/kic"
	"github.com/kepler-soc/kic/internal/observability"
	"github.com/kepler-soc/kic/internal/query/executor"
	"github.com/kepler-soc/kic/internal/server"
	"github.com/kepler-soc/kic/internal/snapshot"
	"github.com/kepler-soc/kic/internal/storage"
)

// statsPruneInterval is how often stale constraint usage is dropped.
const statsPruneInterval = 5 * time.Minute

// App owns the shared resources of one catalog process.
type App struct {
	cfg *config.Config

	store     *catalog.SQLStore
	snapshots *snapshot.Store
	metrics   *observability.Metrics
	service   *kic.Service
	shutdown  *server.ShutdownManager

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New validates cfg and creates its directories.
func New(cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	return &App{cfg: cfg}, nil
}

// Init opens storage and builds the catalog service. It is idempotent.
func (a *App) Init(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.service != nil {
		return nil
	}

	store, err := catalog.Open(ctx, catalog.Options{
		Driver:       a.cfg.Database.Driver,
		DSN:          a.cfg.Database.DSN,
		MaxOpenConns: a.cfg.Database.MaxOpenConns,
	})
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}

	if a.cfg.Snapshot.Enabled {
		objects, err := openObjectStorage(ctx, a.cfg.Snapshot)
		if err != nil {
			store.Close()
			return fmt.Errorf("failed to initialize snapshot storage: %w", err)
		}
		a.snapshots = snapshot.NewStore(objects, a.cfg.Snapshot.Prefix)
	}

	a.store = store
	a.metrics = observability.NewMetrics()
	a.service = kic.NewService(store, kic.Options{
		Executor: executor.Config{
			MaxExpressions:   a.cfg.Query.MaxExpressions,
			BatchConcurrency: a.cfg.Query.BatchConcurrency,
		},
		CacheEnabled:     a.cfg.Cache.Enabled,
		CacheLoadTimeout: a.cfg.Cache.LoadTimeout,
		Snapshots:        a.snapshots,
		StatsWindow:      time.Hour,
		Metrics:          a.metrics,
	})
	return nil
}

func openObjectStorage(ctx context.Context, cfg config.SnapshotConfig) (storage.ObjectStorage, error) {
	switch cfg.Backend {
	case "local":
		log.Info().Str("path", cfg.Path).Msg("app: local snapshot storage")
		return storage.NewLocalStorage(cfg.Path)
	case "s3":
		s3Cfg := storage.DefaultS3Config()
		if cfg.S3.Region != "" {
			s3Cfg.Region = cfg.S3.Region
		}
		s3Cfg.Endpoint = cfg.S3.Endpoint
		s3Cfg.UsePathStyle = cfg.S3.UsePathStyle
		log.Info().
			Str("bucket", cfg.S3.Bucket).
			Str("region", s3Cfg.Region).
			Str("endpoint", s3Cfg.Endpoint).
			Msg("app: s3 snapshot storage")
		return storage.NewS3Storage(ctx, cfg.S3.Bucket, s3Cfg)
	default:
		return nil, fmt.Errorf("unsupported snapshot backend: %s", cfg.Backend)
	}
}

// Service returns the catalog service; Init must have been called.
func (a *App) Service() *kic.Service { return a.service }

// Store returns the catalog store; Init must have been called.
func (a *App) Store() *catalog.SQLStore { return a.store }

// Snapshots returns the snapshot store, or nil when snapshots are disabled.
func (a *App) Snapshots() *snapshot.Store { return a.snapshots }

// Config returns the resolved configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Handler returns the HTTP handler wrapped for graceful shutdown.
func (a *App) Handler() http.Handler {
	api := httpapi.NewServer(a.service, httpapi.Options{DefaultLimit: a.cfg.Query.DefaultLimit})
	if a.shutdown == nil {
		return api
	}
	return server.ShutdownMiddleware(a.shutdown)(api)
}

// Start initializes resources and serves HTTP in the background.
func (a *App) Start(ctx context.Context) error {
	if err := a.Init(ctx); err != nil {
		return err
	}

	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.shutdown = server.NewShutdownManager(server.ShutdownConfig{
		ShutdownTimeout: a.cfg.HTTP.ShutdownTimeout,
		DrainTimeout:    a.cfg.HTTP.ShutdownTimeout,
	})
	a.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.shutdown.RegisterCloser("catalog", a.store)

	srv := &http.Server{
		Addr:         a.cfg.HTTP.Addr,
		Handler:      a.Handler(),
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}

	gs := server.NewGracefulHTTPServer(srv, a.shutdown, a.cfg.HTTP.ShutdownTimeout)

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		if err := gs.ListenAndServe(); err != nil {
			log.Error().Err(err).Msg("app: http server failed")
			cancel()
		}
	}()
	go func() {
		defer a.wg.Done()
		a.pruneStats(ctx)
	}()

	log.Info().
		Str("addr", a.cfg.HTTP.Addr).
		Str("driver", a.cfg.Database.Driver).
		Bool("cache", a.cfg.Cache.Enabled).
		Bool("snapshots", a.cfg.Snapshot.Enabled).
		Msg("app: kic server started")
	return nil
}

func (a *App) pruneStats(ctx context.Context) {
	ticker := time.NewTicker(statsPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.service.QueryStats().Prune()
		}
	}
}

// WaitForShutdown blocks until a signal arrives or ctx is done, then shuts
// the server down.
func (a *App) WaitForShutdown(ctx context.Context) error {
	err := a.shutdown.ListenForSignals(ctx)
	a.stopBackground()
	return err
}

// Stop shuts the server down.
func (a *App) Stop(ctx context.Context) error {
	if a.shutdown == nil {
		return a.Close()
	}
	err := a.shutdown.Shutdown(ctx, "stop requested")
	a.stopBackground()
	return err
}

func (a *App) stopBackground() {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
}

// Close releases resources of an app that was initialized but never started.
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// BuildSnapshots writes a snapshot for every visible sky group.
func (a *App) BuildSnapshots(ctx context.Context) (*snapshot.BuildResult, error) {
	if a.snapshots == nil {
		return nil, fmt.Errorf("snapshots are disabled")
	}
	ids, err := a.service.RetrieveVisibleSkyGroupIDs(ctx)
	if err != nil {
		return nil, err
	}
	builder := snapshot.NewBuilder(a.snapshots, a.store.RetrieveKicsForSkyGroup, a.cfg.Snapshot.Concurrency)
	return builder.Build(ctx, ids)
}
