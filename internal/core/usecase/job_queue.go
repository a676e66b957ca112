package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/brand-soul/internal/core/domain"
	"github.com/kirillkom/brand-soul/internal/core/ports"
)

type EnqueueRequest struct {
	Type       domain.JobType
	BrandID    string
	ArtifactID string
	Payload    any
	Priority   int
}

// JobQueue is the only writer of job status. Claiming is caller-driven:
// ClaimPending lists work and Start flips a single job to processing.
type JobQueue struct {
	repo       ports.JobRepository
	notifier   ports.JobNotifier
	maxRetries int
	logger     *slog.Logger
	now        func() time.Time
}

func NewJobQueue(repo ports.JobRepository, notifier ports.JobNotifier, maxRetries int, logger *slog.Logger) *JobQueue {
	if maxRetries <= 0 {
		maxRetries = domain.DefaultMaxRetries
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JobQueue{
		repo:       repo,
		notifier:   notifier,
		maxRetries: maxRetries,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (q *JobQueue) Enqueue(ctx context.Context, req EnqueueRequest) (*domain.Job, error) {
	if req.BrandID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "enqueue job", fmt.Errorf("brand id is required"))
	}
	var payload json.RawMessage
	if req.Payload != nil {
		raw, err := json.Marshal(req.Payload)
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "encode job payload", err)
		}
		payload = raw
	}

	now := q.now()
	job := &domain.Job{
		ID:         uuid.NewString(),
		BrandID:    req.BrandID,
		ArtifactID: req.ArtifactID,
		Type:       req.Type,
		Status:     domain.JobPending,
		Priority:   domain.NormalizePriority(req.Priority),
		Payload:    payload,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := q.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	q.notify(ctx, job)
	return job, nil
}

// EnqueueSynthesis coalesces synthesis requests: while a synthesize job for the
// brand is still pending it is reused, upgraded to forced when asked.
func (q *JobQueue) EnqueueSynthesis(ctx context.Context, brandID, userID string, force bool) (*domain.Job, bool, error) {
	pending, err := q.repo.ListForBrand(ctx, brandID, domain.JobSynthesize, domain.JobPending)
	if err != nil {
		return nil, false, fmt.Errorf("find pending synthesis: %w", err)
	}
	if len(pending) > 0 {
		existing := pending[0]
		if !force {
			return &existing, false, nil
		}
		updated, err := q.repo.Update(ctx, existing.ID, func(j *domain.Job) error {
			var opts domain.SynthesisOptions
			if err := j.DecodePayload(&opts); err != nil {
				return domain.WrapError(domain.ErrInvalidInput, "decode synthesis payload", err)
			}
			opts.Force = true
			if opts.UserID == "" {
				opts.UserID = userID
			}
			raw, err := json.Marshal(opts)
			if err != nil {
				return err
			}
			j.Payload = raw
			j.UpdatedAt = q.now()
			return nil
		})
		if err != nil {
			return nil, false, err
		}
		return updated, false, nil
	}

	job, err := q.Enqueue(ctx, EnqueueRequest{
		Type:     domain.JobSynthesize,
		BrandID:  brandID,
		Payload:  domain.SynthesisOptions{Force: force, UserID: userID},
		Priority: domain.DefaultPriority,
	})
	if err != nil {
		return nil, false, err
	}
	return job, true, nil
}

// ClaimPending lists up to limit pending jobs, highest priority first and
// oldest first within a priority. No job changes state.
func (q *JobQueue) ClaimPending(ctx context.Context, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		return []domain.Job{}, nil
	}
	jobs, err := q.repo.ListByStatus(ctx, domain.JobPending, limit)
	if err != nil {
		return nil, fmt.Errorf("claim pending jobs: %w", err)
	}
	return jobs, nil
}

// Start moves a job from pending to processing; a job in any other state is
// refused with ErrJobNotPending.
func (q *JobQueue) Start(ctx context.Context, id string) (*domain.Job, error) {
	return q.repo.Update(ctx, id, func(j *domain.Job) error {
		if j.Status != domain.JobPending {
			return domain.WrapError(domain.ErrJobNotPending, "start job", fmt.Errorf("job %s is %s", j.ID, j.Status))
		}
		now := q.now()
		j.Status = domain.JobProcessing
		j.Progress = 0
		j.CurrentStep = "started"
		j.StartedAt = &now
		j.UpdatedAt = now
		return nil
	})
}

func (q *JobQueue) UpdateProgress(ctx context.Context, id string, percent int, step string) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	_, err := q.repo.Update(ctx, id, func(j *domain.Job) error {
		if j.Status != domain.JobProcessing {
			return domain.WrapError(domain.ErrInvalidTransition, "update progress", fmt.Errorf("job %s is %s", j.ID, j.Status))
		}
		j.Progress = percent
		j.CurrentStep = step
		j.UpdatedAt = q.now()
		return nil
	})
	return err
}

func (q *JobQueue) Complete(ctx context.Context, id string) (*domain.Job, error) {
	return q.repo.Update(ctx, id, func(j *domain.Job) error {
		if j.Status != domain.JobProcessing {
			return domain.WrapError(domain.ErrInvalidTransition, "complete job", fmt.Errorf("job %s is %s", j.ID, j.Status))
		}
		now := q.now()
		j.Status = domain.JobApproved
		j.Progress = 100
		j.CurrentStep = "completed"
		j.LastError = ""
		j.CompletedAt = &now
		j.UpdatedAt = now
		return nil
	})
}

// Fail counts the failure and requeues the job while retryCount stays under
// the cap. Non-retriable causes fail the job immediately.
func (q *JobQueue) Fail(ctx context.Context, id string, cause error) (*domain.Job, error) {
	retriable := domain.IsRetriable(cause)
	reason := "unknown error"
	if cause != nil {
		reason = cause.Error()
	}
	return q.repo.Update(ctx, id, func(j *domain.Job) error {
		if j.Status.Terminal() {
			return domain.WrapError(domain.ErrInvalidTransition, "fail job", fmt.Errorf("job %s is %s", j.ID, j.Status))
		}
		now := q.now()
		j.RetryCount++
		j.LastError = reason
		j.UpdatedAt = now
		if retriable && j.RetryCount < q.maxRetries {
			j.Status = domain.JobPending
			j.CurrentStep = "requeued"
			return nil
		}
		j.Status = domain.JobFailed
		j.CurrentStep = "failed"
		j.CompletedAt = &now
		return nil
	})
}

// Retry is the administrative requeue of a terminally failed job.
func (q *JobQueue) Retry(ctx context.Context, id string) (*domain.Job, error) {
	job, err := q.repo.Update(ctx, id, func(j *domain.Job) error {
		if j.Status != domain.JobFailed {
			return domain.WrapError(domain.ErrInvalidTransition, "retry job", fmt.Errorf("job %s is %s", j.ID, j.Status))
		}
		j.Status = domain.JobPending
		j.RetryCount = 0
		j.Progress = 0
		j.CurrentStep = "requeued"
		j.CompletedAt = nil
		j.UpdatedAt = q.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	q.notify(ctx, job)
	return job, nil
}

// ArtifactInFlight reports whether an extraction job for the artifact is
// currently processing.
func (q *JobQueue) ArtifactInFlight(ctx context.Context, brandID, artifactID string) (bool, error) {
	jobs, err := q.repo.ListForBrand(ctx, brandID, domain.JobExtractInsights, domain.JobProcessing)
	if err != nil {
		return false, fmt.Errorf("list processing jobs: %w", err)
	}
	for _, j := range jobs {
		if j.ArtifactID == artifactID {
			return true, nil
		}
	}
	return false, nil
}

func (q *JobQueue) Get(ctx context.Context, id string) (*domain.Job, error) {
	return q.repo.Get(ctx, id)
}

func (q *JobQueue) notify(ctx context.Context, job *domain.Job) {
	if q.notifier == nil {
		return
	}
	if err := q.notifier.NotifyEnqueued(ctx, job); err != nil {
		q.logger.Warn("job notification failed",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}
