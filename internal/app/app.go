// Package app initializes and holds long-lived application services, acting
// as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/focusops/focus-collector/internal/api"
	"github.com/focusops/focus-collector/internal/archive"
	archivegcs "github.com/focusops/focus-collector/internal/archive/gcs"
	archivelocal "github.com/focusops/focus-collector/internal/archive/local"
	"github.com/focusops/focus-collector/internal/bus"
	busgcp "github.com/focusops/focus-collector/internal/bus/gcppubsub"
	busmem "github.com/focusops/focus-collector/internal/bus/memory"
	busredis "github.com/focusops/focus-collector/internal/bus/redis"
	"github.com/focusops/focus-collector/internal/clock/system"
	"github.com/focusops/focus-collector/internal/config"
	"github.com/focusops/focus-collector/internal/fetch"
	"github.com/focusops/focus-collector/internal/hash/sha256"
	"github.com/focusops/focus-collector/internal/id/uuid"
	"github.com/focusops/focus-collector/internal/normalize"
	"github.com/focusops/focus-collector/internal/queue"
	queuemem "github.com/focusops/focus-collector/internal/queue/memory"
	"github.com/focusops/focus-collector/internal/run"
	"github.com/focusops/focus-collector/internal/store"
	storemem "github.com/focusops/focus-collector/internal/store/memory"
	storepg "github.com/focusops/focus-collector/internal/store/postgres"
	"github.com/focusops/focus-collector/internal/summary"
	"github.com/focusops/focus-collector/internal/worker"
)

// App holds the shared, long-lived services for the collector.
type App struct {
	Config       config.Config
	Logger       *zap.Logger
	Store        store.Store
	Bus          bus.Bus
	Queue        queue.Queue
	Orchestrator *run.Orchestrator
	Workers      *worker.Pool
	Server       *api.Server

	closers []func()
}

// New builds the service graph from configuration, failing fast if any
// provider cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	st, err := a.buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Store = st

	eventBus, err := a.buildBus(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Bus = eventBus
	a.closers = append(a.closers, func() {
		if err := eventBus.Close(); err != nil {
			logger.Warn("bus close failed", zap.Error(err))
		}
	})

	snapshots, err := a.buildArchive(ctx, cfg)
	if err != nil {
		return nil, err
	}

	q := queuemem.New(cfg.Workers.QueueDepth)
	a.Queue = q
	a.closers = append(a.closers, q.Close)

	hasher := sha256.New()
	dispatcher := fetch.New(fetch.Config{
		Timeout:   time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
		UserAgent: cfg.Fetch.UserAgent,
	}, snapshots, hasher, logger.Named("fetch"))

	if cfg.Summary.APIKey == "" {
		return nil, fmt.Errorf("summary.api_key is required")
	}
	summarizer := summary.New(
		summary.NewAnthropic(cfg.Summary.APIKey, cfg.Summary.Model),
		logger.Named("summary"),
	)

	clk := system.New()
	ids := uuid.New()

	a.Orchestrator = run.New(
		st,
		dispatcher,
		normalize.New(hasher),
		summarizer,
		eventBus,
		clk,
		ids,
		logger.Named("run"),
	)

	a.Workers = worker.New(q, a.Orchestrator, cfg.Workers.PoolSize, logger.Named("worker"))

	a.Server = api.NewServer(st, q, eventBus, ids, clk, api.Config{
		Auth: api.AuthConfig{
			Enabled: cfg.Auth.Enabled,
			APIKey:  cfg.Auth.APIKey,
		},
		HeartbeatInterval: time.Duration(cfg.Heartbeat.IntervalSeconds) * time.Second,
	}, logger.Named("api"))

	return a, nil
}

func (a *App) buildStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.DB.Provider {
	case "postgres":
		a.Logger.Info("connecting to postgres")
		st, err := storepg.New(ctx, storepg.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		a.closers = append(a.closers, st.Close)
		return st, nil
	case "memory":
		a.Logger.Info("using in-memory store; data is lost on restart")
		return storemem.New(), nil
	default:
		return nil, fmt.Errorf("unknown db provider %q", cfg.DB.Provider)
	}
}

func (a *App) buildBus(ctx context.Context, cfg config.Config) (bus.Bus, error) {
	switch cfg.Bus.Provider {
	case "redis":
		a.Logger.Info("connecting event bus to redis", zap.String("address", cfg.Bus.Redis.Address))
		b, err := busredis.New(busredis.Config{
			Address:  cfg.Bus.Redis.Address,
			Password: cfg.Bus.Redis.Password,
			DB:       cfg.Bus.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("init redis bus: %w", err)
		}
		return b, nil
	case "gcppubsub":
		a.Logger.Info("connecting event bus to pubsub", zap.String("topic", cfg.Bus.PubSub.Topic))
		b, err := busgcp.New(ctx, busgcp.Config{
			ProjectID: cfg.Bus.PubSub.ProjectID,
			TopicID:   cfg.Bus.PubSub.Topic,
		})
		if err != nil {
			return nil, fmt.Errorf("init pubsub bus: %w", err)
		}
		return b, nil
	case "memory":
		return busmem.New(), nil
	default:
		return nil, fmt.Errorf("unknown bus provider %q", cfg.Bus.Provider)
	}
}

func (a *App) buildArchive(ctx context.Context, cfg config.Config) (archive.Store, error) {
	switch cfg.Archive.Provider {
	case "local":
		return archivelocal.New(cfg.Archive.LocalDir)
	case "gcs":
		st, err := archivegcs.New(ctx, cfg.Archive.GCSBucket)
		if err != nil {
			return nil, fmt.Errorf("init gcs archive: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := st.Close(); err != nil {
				a.Logger.Warn("gcs archive close failed", zap.Error(err))
			}
		})
		return st, nil
	case "none":
		a.Logger.Info("snapshot archiving disabled")
		return archive.NoOp{}, nil
	default:
		return nil, fmt.Errorf("unknown archive provider %q", cfg.Archive.Provider)
	}
}

// Close shuts down all services in reverse construction order.
func (a *App) Close() {
	a.Logger.Info("shutting down services")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.Logger.Sync()
}
