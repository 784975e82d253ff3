package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vietddude/errwatch/internal/core/config"
	"github.com/vietddude/errwatch/internal/core/errorstore"
	"github.com/vietddude/errwatch/internal/core/worker"
	"github.com/vietddude/errwatch/internal/infra/bus"
	redisclient "github.com/vietddude/errwatch/internal/infra/redis"
	"github.com/vietddude/errwatch/internal/infra/storage"
	"github.com/vietddude/errwatch/internal/infra/storage/memory"
	"github.com/vietddude/errwatch/internal/infra/storage/sqlstore"
	"github.com/vietddude/errwatch/internal/pipeline/detector"
	"github.com/vietddude/errwatch/internal/pipeline/health"
	"github.com/vietddude/errwatch/internal/pipeline/recovery"
)

// Watcher owns every component and their lifecycle.
type Watcher struct {
	cfg         *config.AppConfig
	errors      *errorstore.Store
	monitor     *health.Monitor
	engine      *recovery.Engine
	detector    *detector.Detector
	tuner       *worker.Tuner
	sweeper     *worker.Sweeper
	server      *health.Server
	notifier    bus.Publisher
	db          *sqlstore.DB
	redisClient *redisclient.Client
	log         *slog.Logger
}

// repos groups the four bounded collections of one backend.
type repos struct {
	errors  storage.ErrorRecordRepository
	metrics storage.MetricsRepository
	health  storage.HealthResultRepository
	actions storage.RecoveryActionRepository
}

// NewWatcher creates a new Watcher instance with all dependencies initialized.
func NewWatcher(ctx context.Context, cfg *config.AppConfig) (*Watcher, error) {
	w := &Watcher{cfg: cfg, log: slog.Default()}

	// 1. Initialize Storage
	r, err := w.openStorage(ctx)
	if err != nil {
		return nil, err
	}

	// 2. Error store
	w.errors = errorstore.New(r.errors, errorstore.WithLimit(cfg.Storage.ErrorLimit))

	// 3. Health monitor
	w.monitor = health.NewMonitor(r.metrics, r.health, w.errors,
		health.WithThresholds(health.Thresholds{
			MaxErrorRate:    cfg.Health.MaxErrorRate,
			MaxResponseTime: cfg.Health.MaxResponseTimeMs,
			MaxInactivity:   cfg.Health.MaxInactivity,
		}),
		health.WithLimits(cfg.Storage.MetricsLimit, cfg.Storage.HealthLimit),
	)
	for _, id := range cfg.Health.Agents {
		w.monitor.Register(id)
	}

	// 4. Recovery engine and escalation notifier
	w.notifier, err = bus.New(cfg.Notify)
	if err != nil {
		w.closeBackends()
		return nil, fmt.Errorf("failed to init notifier: %w", err)
	}
	engineOpts := []recovery.Option{
		recovery.WithCacheDir(cfg.Recovery.CacheDir),
		recovery.WithTuneConfig(recovery.TuneConfig{
			Window:         cfg.Recovery.TuneWindow,
			MinOccurrences: cfg.Recovery.MinOccurrences,
			MaxRetries:     cfg.Recovery.TunedMaxRetries,
			Delay:          cfg.Recovery.TunedDelay,
		}),
	}
	if w.notifier != nil {
		engineOpts = append(engineOpts, recovery.WithNotifier(w.notifier))
	}
	w.engine = recovery.NewEngine(w.errors, w.monitor, r.actions, engineOpts...)

	// 5. Detector
	w.detector = detector.New(w.errors, detector.Config{
		Interval:         cfg.Detector.Interval,
		WorkDir:          cfg.Detector.WorkDir,
		Roots:            cfg.Detector.Roots,
		Extensions:       cfg.Detector.Extensions,
		ExcludeDirs:      cfg.Detector.ExcludeDirs,
		TypeCheckCommand: cfg.Detector.TypeCheckCommand,
		LintCommand:      cfg.Detector.LintCommand,
		CriticalCodes:    cfg.Detector.CriticalCodes,
		ToolTimeout:      cfg.Detector.ToolTimeout,
		LogicThreshold:   cfg.Detector.LogicThreshold,
	})

	// 6. Workers and HTTP surface
	w.tuner = worker.NewTuner(w.engine, cfg.Recovery.TuneInterval)
	w.sweeper = worker.NewSweeper(w.monitor, cfg.Health.SweepInterval)
	w.server = health.NewServer(w.monitor, w.errors, w.engine, cfg.Server.Port)

	return w, nil
}

func (w *Watcher) openStorage(ctx context.Context) (repos, error) {
	switch w.cfg.Storage.Driver {
	case "postgres", "pgx", "sqlite":
		db, err := sqlstore.NewDB(ctx, sqlstore.Config{
			Driver:   w.cfg.Storage.Driver,
			URL:      w.cfg.Storage.URL,
			MaxConns: w.cfg.Storage.MaxConns,
			MinConns: w.cfg.Storage.MinConns,
		})
		if err != nil {
			return repos{}, fmt.Errorf("failed to init db: %w", err)
		}
		w.db = db

		// health results and actions are short-lived, keep them in memory
		store := memory.NewMemoryStorage()
		w.log.Info("Using SQL storage", "driver", w.cfg.Storage.Driver)
		return repos{
			errors:  sqlstore.NewErrorRecordRepo(db),
			metrics: sqlstore.NewMetricsRepo(db),
			health:  memory.NewHealthRepo(store),
			actions: memory.NewActionRepo(store),
		}, nil

	case "redis":
		rc := w.cfg.Redis
		if w.cfg.Storage.URL != "" {
			rc.URL = w.cfg.Storage.URL
		}
		client, err := redisclient.NewClient(rc)
		if err != nil {
			return repos{}, fmt.Errorf("failed to init redis: %w", err)
		}
		w.redisClient = client
		w.log.Info("Using Redis storage")
		return repos{
			errors:  redisclient.NewErrorLog(client),
			metrics: redisclient.NewMetricsRepo(client),
			health:  redisclient.NewHealthRepo(client),
			actions: redisclient.NewActionRepo(client),
		}, nil

	default:
		store := memory.NewMemoryStorage()
		w.log.Info("Using in-memory storage")
		return repos{
			errors:  memory.NewErrorRepo(store),
			metrics: memory.NewMetricsRepo(store),
			health:  memory.NewHealthRepo(store),
			actions: memory.NewActionRepo(store),
		}, nil
	}
}

// Start starts the watcher and all its components.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.detector.Start(ctx); err != nil {
		return fmt.Errorf("failed to start detector: %w", err)
	}

	// Start Health Server
	go func() {
		if err := w.server.Start(); err != nil {
			w.log.Error("Health server failed", "error", err)
		}
	}()

	go w.sweeper.Start(ctx)
	go w.tuner.Start(ctx)

	// Start DB Metrics Collector
	if w.db != nil {
		w.db.StartMetricsCollector(ctx)
	}
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop(ctx context.Context) error {
	w.log.Info("Stopping Watcher...")

	w.detector.Stop()
	err := w.server.Stop(ctx)

	if w.notifier != nil {
		if cerr := w.notifier.Close(); cerr != nil {
			w.log.Warn("Failed to close notifier", "error", cerr)
		}
	}
	w.closeBackends()
	return err
}

func (w *Watcher) closeBackends() {
	if w.redisClient != nil {
		if err := w.redisClient.Close(); err != nil {
			w.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if w.db != nil {
		if err := w.db.Close(); err != nil {
			w.log.Warn("Failed to close database", "error", err)
		}
	}
}

// Health reports whether the storage backend answers.
func (w *Watcher) Health(ctx context.Context) error {
	var errs []error
	if w.db != nil {
		errs = append(errs, w.db.Health(ctx))
	}
	if w.redisClient != nil {
		errs = append(errs, w.redisClient.Health(ctx))
	}
	return errors.Join(errs...)
}

func (w *Watcher) Errors() *errorstore.Store    { return w.errors }
func (w *Watcher) Monitor() *health.Monitor     { return w.monitor }
func (w *Watcher) Engine() *recovery.Engine     { return w.engine }
func (w *Watcher) Detector() *detector.Detector { return w.detector }
