package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/kirillkom/brand-soul/internal/core/domain"
	"github.com/kirillkom/brand-soul/internal/observability/logging"
)

const (
	DefaultPollInterval  = 5 * time.Second
	DefaultMaxConcurrent = 3
	DefaultJobTimeout    = 5 * time.Minute
)

// Queue is the part of the job queue the worker drives.
type Queue interface {
	ClaimPending(ctx context.Context, limit int) ([]domain.Job, error)
	Start(ctx context.Context, id string) (*domain.Job, error)
	UpdateProgress(ctx context.Context, id string, percent int, step string) error
	Complete(ctx context.Context, id string) (*domain.Job, error)
	Fail(ctx context.Context, id string, cause error) (*domain.Job, error)
	Get(ctx context.Context, id string) (*domain.Job, error)
}

// Handler executes one job type.
type Handler interface {
	Execute(ctx context.Context, job *domain.Job, progress domain.ProgressFunc) error
}

type HandlerFunc func(ctx context.Context, job *domain.Job, progress domain.ProgressFunc) error

func (f HandlerFunc) Execute(ctx context.Context, job *domain.Job, progress domain.ProgressFunc) error {
	return f(ctx, job, progress)
}

type Metrics interface {
	StartJob()
	FinishJob(jobType string, duration time.Duration, err error)
	ObserveQueueLag(jobType string, lag time.Duration)
}

type Options struct {
	PollInterval  time.Duration
	MaxConcurrent int
	JobTimeout    time.Duration
}

// Worker polls the queue on a fixed interval and runs claimed jobs on a
// bounded pool. Construct with New, drive with Run, stop by cancelling the
// context passed to Run.
type Worker struct {
	queue    Queue
	handlers map[domain.JobType]Handler
	pool     *ants.Pool
	opts     Options
	metrics  Metrics
	logger   *slog.Logger
	wake     chan struct{}
}

func New(queue Queue, handlers map[domain.JobType]Handler, opts Options, metrics Metrics, logger *slog.Logger) (*Worker, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = DefaultJobTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := ants.NewPool(opts.MaxConcurrent)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &Worker{
		queue:    queue,
		handlers: handlers,
		pool:     pool,
		opts:     opts,
		metrics:  metrics,
		logger:   logger,
		wake:     make(chan struct{}, 1),
	}, nil
}

// Wake requests an early tick; extra requests while one is queued are dropped.
func (w *Worker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run ticks until ctx is cancelled, then releases the pool.
func (w *Worker) Run(ctx context.Context) error {
	defer w.pool.Release()

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	w.logger.Info("worker started",
		slog.Duration("poll_interval", w.opts.PollInterval),
		slog.Int("max_concurrent", w.opts.MaxConcurrent),
	)
	for {
		if err := w.Tick(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("worker tick failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped")
			return nil
		case <-ticker.C:
		case <-w.wake:
		}
	}
}

// Close releases the pool for processes that build a worker but never call
// Run. Safe to call more than once.
func (w *Worker) Close() {
	w.pool.Release()
}

// Tick claims up to MaxConcurrent pending jobs and waits for all of them.
func (w *Worker) Tick(ctx context.Context) error {
	jobs, err := w.queue.ClaimPending(ctx, w.opts.MaxConcurrent)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for i := range jobs {
		job, err := w.queue.Start(ctx, jobs[i].ID)
		if err != nil {
			if errors.Is(err, domain.ErrJobNotPending) {
				continue
			}
			w.logger.Error("start job failed", slog.String("job_id", jobs[i].ID), slog.String("error", err.Error()))
			continue
		}

		wg.Add(1)
		submitErr := w.pool.Submit(func() {
			defer wg.Done()
			_ = w.execute(ctx, job)
		})
		if submitErr != nil {
			wg.Done()
			w.logger.Error("submit job failed", slog.String("job_id", job.ID), slog.String("error", submitErr.Error()))
			if _, err := w.queue.Fail(ctx, job.ID, domain.WrapError(domain.ErrTemporary, "submit job", submitErr)); err != nil {
				w.logger.Error("requeue job failed", slog.String("job_id", job.ID), slog.String("error", err.Error()))
			}
		}
	}
	wg.Wait()
	return nil
}

// RunJob executes a pending job synchronously, bypassing the poll loop.
func (w *Worker) RunJob(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := w.queue.Start(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := w.execute(ctx, job); err != nil {
		w.logger.Warn("manual job run failed", slog.String("job_id", jobID), slog.String("error", err.Error()))
	}
	return w.queue.Get(ctx, jobID)
}

func (w *Worker) execute(ctx context.Context, job *domain.Job) (err error) {
	logger := logging.WithJob(w.logger, job)
	started := time.Now()
	if w.metrics != nil {
		w.metrics.StartJob()
		w.metrics.ObserveQueueLag(string(job.Type), started.Sub(job.CreatedAt))
		defer func() {
			w.metrics.FinishJob(string(job.Type), time.Since(started), err)
		}()
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.opts.JobTimeout)
	defer cancel()

	err = w.dispatch(jobCtx, job, logger)
	// Outcomes are recorded even when the job context expired.
	reportCtx := context.WithoutCancel(ctx)
	if err != nil {
		failed, failErr := w.queue.Fail(reportCtx, job.ID, err)
		if failErr != nil {
			logger.Error("record job failure", slog.String("error", failErr.Error()))
			return err
		}
		logger.Warn("job failed",
			slog.String("error", err.Error()),
			slog.String("status", string(failed.Status)),
			slog.Int("retry_count", failed.RetryCount),
			slog.Duration("duration", time.Since(started)),
		)
		return err
	}

	if _, err := w.queue.Complete(reportCtx, job.ID); err != nil {
		logger.Error("record job completion", slog.String("error", err.Error()))
		return err
	}
	logger.Info("job completed", slog.Duration("duration", time.Since(started)))
	return nil
}

func (w *Worker) dispatch(ctx context.Context, job *domain.Job, logger *slog.Logger) (err error) {
	handler, ok := w.handlers[job.Type]
	if !ok {
		return domain.WrapError(domain.ErrUnsupportedJobType, "dispatch job", fmt.Errorf("type %q", job.Type))
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panic: %v", r)
		}
	}()

	progress := func(ctx context.Context, percent int, step string) {
		if err := w.queue.UpdateProgress(ctx, job.ID, percent, step); err != nil {
			logger.Warn("update job progress failed", slog.String("error", err.Error()))
		}
	}
	return handler.Execute(ctx, job, progress)
}
