package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirillkom/brand-soul/internal/core/domain"
	"github.com/kirillkom/brand-soul/internal/core/ports"
)

// JobRunner executes one pending job synchronously through the worker's
// regular execution path.
type JobRunner interface {
	RunJob(ctx context.Context, jobID string) (*domain.Job, error)
}

type JobAdminUseCase struct {
	gate     ports.AccessGate
	queue    *JobQueue
	registry *ArtifactRegistry
	runner   JobRunner
}

func NewJobAdminUseCase(gate ports.AccessGate, queue *JobQueue, registry *ArtifactRegistry, runner JobRunner) *JobAdminUseCase {
	return &JobAdminUseCase{gate: gate, queue: queue, registry: registry, runner: runner}
}

func (uc *JobAdminUseCase) Get(ctx context.Context, userID, jobID string) (*domain.Job, error) {
	return uc.authorized(ctx, userID, jobID)
}

// Retry requeues a failed job. For extraction jobs the failed artifact also
// gets a fresh retry budget.
func (uc *JobAdminUseCase) Retry(ctx context.Context, userID, jobID string) (*domain.Job, error) {
	job, err := uc.authorized(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobFailed {
		return nil, domain.WrapError(domain.ErrInvalidTransition, "retry job", fmt.Errorf("job %s is %s", job.ID, job.Status))
	}
	if job.Type == domain.JobExtractInsights && job.ArtifactID != "" {
		if err := uc.resetArtifact(ctx, job); err != nil {
			return nil, err
		}
	}
	return uc.queue.Retry(ctx, jobID)
}

// resetArtifact gives the job's artifact a fresh retry budget. Artifacts that
// already carry insights or sit in pending need nothing; one left in flight
// with no processing job is recovered.
func (uc *JobAdminUseCase) resetArtifact(ctx context.Context, job *domain.Job) error {
	artifact, err := uc.registry.Get(ctx, job.BrandID, job.ArtifactID)
	if err != nil {
		return fmt.Errorf("load artifact: %w", err)
	}
	switch {
	case artifact.Status == domain.ArtifactFailed:
		if _, err := uc.registry.ResetFailed(ctx, job.BrandID, job.ArtifactID); err != nil {
			return fmt.Errorf("reset artifact: %w", err)
		}
	case artifact.Status.InFlight():
		active, err := uc.queue.ArtifactInFlight(ctx, job.BrandID, job.ArtifactID)
		if err != nil {
			return err
		}
		if active {
			return domain.WrapError(domain.ErrConflict, "retry job", fmt.Errorf("artifact %s is being extracted", artifact.ID))
		}
		if _, err := uc.registry.RecoverInterrupted(ctx, job.BrandID, job.ArtifactID, "extraction interrupted before recording its outcome"); err != nil {
			return fmt.Errorf("recover artifact: %w", err)
		}
	case artifact.Status == domain.ArtifactArchived:
		return domain.WrapError(domain.ErrInvalidTransition, "retry job", fmt.Errorf("artifact %s is archived", artifact.ID))
	}
	return nil
}

func (uc *JobAdminUseCase) Run(ctx context.Context, userID, jobID string) (*domain.Job, error) {
	if _, err := uc.authorized(ctx, userID, jobID); err != nil {
		return nil, err
	}
	if uc.runner == nil {
		return nil, domain.WrapError(domain.ErrTemporary, "run job", errors.New("job runner is not configured"))
	}
	return uc.runner.RunJob(ctx, jobID)
}

func (uc *JobAdminUseCase) authorized(ctx context.Context, userID, jobID string) (*domain.Job, error) {
	job, err := uc.queue.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := uc.gate.RequireAccess(ctx, userID, job.BrandID); err != nil {
		return nil, err
	}
	return job, nil
}
