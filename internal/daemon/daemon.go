package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"phono/internal/artifacts"
	"phono/internal/artwork"
	"phono/internal/cachekey"
	"phono/internal/catalog"
	"phono/internal/config"
	"phono/internal/deps"
	"phono/internal/jobs"
	"phono/internal/logging"
	"phono/internal/notifications"
	"phono/internal/scanner"
	"phono/internal/stream"
	"phono/internal/transcode"
	"phono/internal/worker"
)

// Daemon coordinates the background services and the API server.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *jobs.Store
	catalog *catalog.Store

	orchestrator *stream.Orchestrator
	artifacts    *artifacts.Server
	artwork      *artwork.Service
	pool         *worker.Pool
	api          *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status reports daemon runtime information.
type Status struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	JobsDBPath   string             `json:"jobs_db_path"`
	LockFilePath string             `json:"lock_file_path"`
	Queue        jobs.HealthSummary `json:"queue"`
	Dependencies []deps.Status      `json:"dependencies"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *jobs.Store, cat *catalog.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || cat == nil {
		return nil, errors.New("daemon requires config, job store, and catalog")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(logging.String(logging.FieldComponent, "daemon"))

	orch := stream.New(cfg, cat, store, logger)
	artifactSrv := artifacts.New(cfg, store, logger)
	artworkSvc := artwork.New(cfg, logger)

	transcoder := transcode.New(cfg, logger)
	libraryScanner := scanner.New(cfg, cat, logger)

	pool := worker.New(cfg, store, logger)
	pool.SetNotifier(notifications.NewService(cfg))
	pool.Register(jobs.KindTranscode, func(ctx context.Context, job *jobs.Job) (string, error) {
		track, err := trackForKey(ctx, cat, job.ResourceKey)
		if err != nil {
			return "", err
		}
		source := filepath.Join(cfg.Paths.LibraryDir, track.Path)
		return transcoder.Transcode(ctx, source, job.ResourceKey)
	})
	pool.Register(jobs.KindScan, func(ctx context.Context, job *jobs.Job) (string, error) {
		return libraryScanner.Produce(ctx)
	})

	lockPath := filepath.Join(cfg.Paths.LogDir, "phonod.lock")
	d := &Daemon{
		cfg:          cfg,
		logger:       logger,
		store:        store,
		catalog:      cat,
		orchestrator: orch,
		artifacts:    artifactSrv,
		artwork:      artworkSvc,
		pool:         pool,
		lockPath:     lockPath,
		lock:         flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the instance lock and launches workers and the API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another phono daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.pool.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("start workers: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		d.pool.Stop()
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("start api: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("phono daemon started",
		logging.String("lock", d.lockPath),
		logging.String("bind", d.cfg.Paths.APIBind))
	return nil
}

// Stop shuts down workers and the API server and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.pool.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("phono daemon stopped")
}

// Close stops the daemon and closes its stores.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if d.store != nil {
		errs = append(errs, d.store.Close())
	}
	if d.catalog != nil {
		errs = append(errs, d.catalog.Close())
	}
	return errors.Join(errs...)
}

// Status snapshots runtime state for the status endpoint and CLI.
func (d *Daemon) Status(ctx context.Context) Status {
	health, err := d.store.Health(ctx)
	if err != nil {
		d.logger.Warn("queue health unavailable", logging.Error(err))
	}
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		JobsDBPath:   d.store.Path(),
		LockFilePath: d.lockPath,
		Queue:        health,
		Dependencies: deps.Check(d.cfg),
	}
}

// Addr returns the API listen address once started, for tests and CLI
// output when binding to an ephemeral port.
func (d *Daemon) Addr() string {
	return d.api.addr()
}

// trackForKey finds the catalog track whose current identity derives the
// given resource key. A job can outlive its source file; the worker then
// fails the job rather than transcoding a vanished or mutated track.
func trackForKey(ctx context.Context, cat *catalog.Store, resourceKey string) (*catalog.Track, error) {
	tracks, err := cat.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, track := range tracks {
		if deriveKey(track) == resourceKey {
			return track, nil
		}
	}
	return nil, fmt.Errorf("no library track matches resource key %q", resourceKey)
}

func deriveKey(track *catalog.Track) string {
	return cachekey.Derive(track.ID, track.ModTime, track.SizeBytes, track.Ext)
}
