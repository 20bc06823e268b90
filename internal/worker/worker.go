// Package worker runs the polling loop that drains the job queue. Each
// worker repeatedly claims the oldest queued job for a registered kind,
// invokes that kind's producer, and records the terminal outcome. Polling is
// deliberate: there is no in-memory dispatch to lose across a restart, and a
// crashed daemon resumes from whatever the job table says.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"phono/internal/config"
	"phono/internal/fileutil"
	"phono/internal/jobs"
	"phono/internal/logging"
	"phono/internal/notifications"
	"phono/internal/services"
)

// Producer executes one claimed job and returns its result payload.
// Producers may take unbounded time and fail with any error; the pool
// guarantees every claimed job still reaches done or failed.
type Producer func(ctx context.Context, job *jobs.Job) (string, error)

// Pool drives a fixed number of polling workers over the job store.
type Pool struct {
	cfg      *config.Config
	store    *jobs.Store
	logger   *slog.Logger
	notifier notifications.Service

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	producers map[jobs.Kind]Producer
	kindOrder []jobs.Kind
}

// New creates a Pool. Producers are registered per job kind before Start.
func New(cfg *config.Config, store *jobs.Store, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		cfg:       cfg,
		store:     store,
		logger:    logger.With(logging.String(logging.FieldComponent, "worker")),
		producers: make(map[jobs.Kind]Producer),
	}
}

// SetNotifier installs a notification service for job outcomes. Without one
// the pool stays silent.
func (p *Pool) SetNotifier(notifier notifications.Service) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notifier = notifier
}

// Register binds a producer to a job kind. Kinds poll in registration order.
func (p *Pool) Register(kind jobs.Kind, producer Producer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.producers[kind]; !exists {
		p.kindOrder = append(p.kindOrder, kind)
	}
	p.producers[kind] = producer
}

// Start launches the configured number of workers.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.New("worker pool already running")
	}
	if len(p.kindOrder) == 0 {
		return errors.New("no producers registered")
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	count := p.cfg.Workflow.Workers
	if count < 1 {
		count = 1
	}
	p.wg.Add(count)
	for i := 0; i < count; i++ {
		go p.runWorker(runCtx, i+1)
	}
	return nil
}

// Stop terminates the workers and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
}

func (p *Pool) runWorker(ctx context.Context, workerID int) {
	defer p.wg.Done()
	logger := p.logger.With(logging.Int(logging.FieldWorkerID, workerID))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.claimAny(ctx)
		if err != nil {
			logger.Error("failed to claim next job", logging.Error(err))
			if !p.sleep(ctx, time.Duration(p.cfg.Workflow.ErrorRetryInterval)*time.Second) {
				return
			}
			continue
		}
		if job == nil {
			if !p.sleep(ctx, time.Duration(p.cfg.Workflow.QueuePollInterval)*time.Second) {
				return
			}
			continue
		}

		p.process(ctx, logger, job)
	}
}

func (p *Pool) claimAny(ctx context.Context) (*jobs.Job, error) {
	p.mu.Lock()
	kinds := append([]jobs.Kind(nil), p.kindOrder...)
	p.mu.Unlock()

	for _, kind := range kinds {
		job, err := p.store.ClaimNext(ctx, kind)
		if err != nil {
			return nil, err
		}
		if job != nil {
			return job, nil
		}
	}
	return nil, nil
}

// process runs one claimed job to a terminal state. Producer panics and
// errors are captured onto the job row; they never crash the loop.
func (p *Pool) process(ctx context.Context, logger *slog.Logger, job *jobs.Job) {
	correlationID := uuid.NewString()
	jobCtx := services.WithJobID(ctx, job.ID)
	jobCtx = services.WithResourceKey(jobCtx, job.ResourceKey)
	jobCtx = services.WithRequestID(jobCtx, correlationID)

	jobLogger := logger.With(
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String(logging.FieldJobKind, string(job.Kind)),
		logging.String(logging.FieldResourceKey, job.ResourceKey),
		logging.String(logging.FieldCorrelationID, correlationID))
	jobLogger.Info("job claimed")

	if err := p.preflight(job); err != nil {
		p.finish(jobCtx, jobLogger, job.ID, jobs.OutcomeFailed, err.Error())
		return
	}

	p.mu.Lock()
	producer := p.producers[job.Kind]
	p.mu.Unlock()
	if producer == nil {
		p.finish(jobCtx, jobLogger, job.ID, jobs.OutcomeFailed, fmt.Sprintf("no producer registered for kind %q", job.Kind))
		return
	}

	started := time.Now()
	result, err := p.invoke(jobCtx, producer, job)
	if err != nil {
		jobLogger.Warn("job failed",
			logging.Error(err),
			logging.Duration("elapsed", time.Since(started)))
		p.finish(jobCtx, jobLogger, job.ID, jobs.OutcomeFailed, err.Error())
		p.notifyFailure(jobCtx, jobLogger, job, err)
		return
	}

	jobLogger.Info("job complete", logging.Duration("elapsed", time.Since(started)))
	p.finish(jobCtx, jobLogger, job.ID, jobs.OutcomeDone, result)
	p.notifySuccess(jobCtx, jobLogger, job, result)
}

func (p *Pool) notifySuccess(ctx context.Context, logger *slog.Logger, job *jobs.Job, result string) {
	notifier := p.currentNotifier()
	if notifier == nil {
		return
	}
	var err error
	switch job.Kind {
	case jobs.KindTranscode:
		err = notifier.NotifyStreamReady(ctx, job.ResourceKey)
	case jobs.KindScan:
		var stats struct {
			Indexed int `json:"indexed"`
			Pruned  int `json:"pruned"`
		}
		if unmarshalErr := json.Unmarshal([]byte(result), &stats); unmarshalErr != nil {
			return
		}
		err = notifier.NotifyScanCompleted(ctx, stats.Indexed, stats.Pruned)
	}
	if err != nil {
		logger.Warn("failed to send notification", logging.Error(err))
	}
}

func (p *Pool) notifyFailure(ctx context.Context, logger *slog.Logger, job *jobs.Job, jobErr error) {
	notifier := p.currentNotifier()
	if notifier == nil {
		return
	}
	if err := notifier.NotifyJobFailed(ctx, string(job.Kind), jobErr.Error()); err != nil {
		logger.Warn("failed to send notification", logging.Error(err))
	}
}

func (p *Pool) currentNotifier() notifications.Service {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.notifier
}

func (p *Pool) invoke(ctx context.Context, producer Producer, job *jobs.Job) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("producer panicked: %v", r)
		}
	}()
	return producer(ctx, job)
}

func (p *Pool) finish(ctx context.Context, logger *slog.Logger, id int64, outcome jobs.Outcome, payload string) {
	if err := p.store.Finish(ctx, id, outcome, payload); err != nil {
		logger.Error("failed to record job outcome", logging.Error(err))
	}
}

// preflight rejects transcode jobs when the cache filesystem is below the
// configured free-space floor, failing fast instead of letting ffmpeg die
// partway through a segment set.
func (p *Pool) preflight(job *jobs.Job) error {
	if job.Kind != jobs.KindTranscode || p.cfg.Workflow.MinCacheFreeGiB <= 0 {
		return nil
	}
	free, err := fileutil.FreeBytes(p.cfg.Paths.CacheDir)
	if err != nil {
		// Preflight is advisory: an unreadable statfs should not fail jobs.
		return nil
	}
	needed := uint64(p.cfg.Workflow.MinCacheFreeGiB) * 1024 * 1024 * 1024
	if free < needed {
		return fmt.Errorf("insufficient cache space: %d GiB free, %d GiB required",
			free/(1024*1024*1024), p.cfg.Workflow.MinCacheFreeGiB)
	}
	return nil
}

func (p *Pool) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
