package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/brand-soul/internal/core/domain"
	"github.com/kirillkom/brand-soul/internal/core/ports"
)

// ArtifactRegistry owns every artifact status and visibility transition.
type ArtifactRegistry struct {
	repo       ports.ArtifactRepository
	maxRetries int
	now        func() time.Time
}

func NewArtifactRegistry(repo ports.ArtifactRepository, maxRetries int) *ArtifactRegistry {
	if maxRetries <= 0 {
		maxRetries = domain.DefaultMaxRetries
	}
	return &ArtifactRegistry{
		repo:       repo,
		maxRetries: maxRetries,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (r *ArtifactRegistry) Register(ctx context.Context, artifact *domain.Artifact) error {
	artifact.Status = domain.ArtifactPending
	if artifact.Visibility == "" {
		artifact.Visibility = domain.VisibilityPrivate
	}
	if err := r.repo.Create(ctx, artifact); err != nil {
		return fmt.Errorf("register artifact: %w", err)
	}
	return nil
}

func (r *ArtifactRegistry) Get(ctx context.Context, brandID, id string) (*domain.Artifact, error) {
	return r.repo.Get(ctx, brandID, id)
}

func (r *ArtifactRegistry) FindByChecksum(ctx context.Context, brandID, checksum string) (*domain.Artifact, error) {
	return r.repo.FindByChecksum(ctx, brandID, checksum)
}

// ClaimChecksum atomically reserves content for artifactID and returns the
// artifact that holds it, which differs from artifactID for duplicates.
func (r *ArtifactRegistry) ClaimChecksum(ctx context.Context, brandID, checksum, artifactID string) (string, error) {
	return r.repo.ClaimChecksum(ctx, brandID, checksum, artifactID)
}

func (r *ArtifactRegistry) ReleaseChecksum(ctx context.Context, brandID, checksum, artifactID string) error {
	return r.repo.ReleaseChecksum(ctx, brandID, checksum, artifactID)
}

func (r *ArtifactRegistry) List(ctx context.Context, brandID string, filter domain.ArtifactFilter) (domain.ArtifactPage, error) {
	for _, s := range filter.Statuses {
		if !s.Valid() {
			return domain.ArtifactPage{}, domain.WrapError(domain.ErrInvalidInput, "list artifacts", fmt.Errorf("unknown status %q", s))
		}
	}
	return r.repo.List(ctx, brandID, filter)
}

// ListEligible pages through every synthesis-eligible artifact of a brand.
func (r *ArtifactRegistry) ListEligible(ctx context.Context, brandID string) ([]domain.Artifact, error) {
	filter := domain.ArtifactFilter{
		Statuses: []domain.ArtifactStatus{domain.ArtifactExtracted, domain.ArtifactApproved},
		Limit:    ports.MaxBatchOps,
	}
	seen := make(map[string]struct{})
	out := make([]domain.Artifact, 0)
	for {
		page, err := r.repo.List(ctx, brandID, filter)
		if err != nil {
			return nil, fmt.Errorf("list eligible artifacts: %w", err)
		}
		for _, a := range page.Artifacts {
			if _, dup := seen[a.ID]; dup || !a.Status.SynthesisEligible() || a.Insights == nil {
				continue
			}
			seen[a.ID] = struct{}{}
			out = append(out, a)
		}
		if page.NextCursor == "" {
			return out, nil
		}
		filter.Cursor = page.NextCursor
	}
}

func (r *ArtifactRegistry) Delete(ctx context.Context, brandID, id string) error {
	return r.repo.Delete(ctx, brandID, id)
}

// BeginExtraction claims the artifact for an extraction attempt. skip is true
// when insights already exist, so replayed jobs never call the extractor twice.
func (r *ArtifactRegistry) BeginExtraction(ctx context.Context, brandID, id string) (*domain.Artifact, bool, error) {
	skip := false
	artifact, err := r.repo.Update(ctx, brandID, id, func(a *domain.Artifact) error {
		skip = false
		switch {
		case a.Status.HasInsights():
			skip = true
			return nil
		case a.Status.InFlight():
			return domain.WrapError(domain.ErrConflict, "begin extraction", fmt.Errorf("artifact %s is %s", a.ID, a.Status))
		case a.Status == domain.ArtifactFailed:
			if a.RetryCount >= r.maxRetries {
				return domain.WrapError(domain.ErrInvalidTransition, "begin extraction",
					fmt.Errorf("artifact %s exhausted %d retries", a.ID, r.maxRetries))
			}
			if err := r.apply(a, domain.ArtifactPending); err != nil {
				return err
			}
		}
		return r.apply(a, domain.ArtifactProcessing)
	})
	if err != nil {
		return nil, false, err
	}
	return artifact, skip, nil
}

func (r *ArtifactRegistry) MarkExtracting(ctx context.Context, brandID, id string) (*domain.Artifact, error) {
	return r.transition(ctx, brandID, id, domain.ArtifactExtracting, nil)
}

func (r *ArtifactRegistry) CompleteExtraction(ctx context.Context, brandID, id string, processed domain.ContentRef, insights domain.InsightsRef) (*domain.Artifact, error) {
	return r.transition(ctx, brandID, id, domain.ArtifactExtracted, func(a *domain.Artifact) {
		now := r.now()
		a.Processed = &processed
		a.Insights = &insights
		a.ProcessedAt = &now
		a.LastError = ""
	})
}

// MarkFailed records an extraction failure and counts it against the retry cap.
func (r *ArtifactRegistry) MarkFailed(ctx context.Context, brandID, id string, cause error) (*domain.Artifact, error) {
	return r.transition(ctx, brandID, id, domain.ArtifactFailed, func(a *domain.Artifact) {
		a.RetryCount++
		if cause != nil {
			a.LastError = cause.Error()
		}
	})
}

// ResetFailed returns a failed artifact to pending with a fresh retry budget.
func (r *ArtifactRegistry) ResetFailed(ctx context.Context, brandID, id string) (*domain.Artifact, error) {
	return r.repo.Update(ctx, brandID, id, func(a *domain.Artifact) error {
		if a.Status != domain.ArtifactFailed {
			return domain.WrapError(domain.ErrInvalidTransition, "reset artifact", fmt.Errorf("artifact %s is %s", a.ID, a.Status))
		}
		a.RetryCount = 0
		return r.apply(a, domain.ArtifactPending)
	})
}

// RecoverInterrupted fails an artifact left in flight by an extraction that
// never recorded its outcome and returns it to pending with a fresh budget.
func (r *ArtifactRegistry) RecoverInterrupted(ctx context.Context, brandID, id, reason string) (*domain.Artifact, error) {
	return r.repo.Update(ctx, brandID, id, func(a *domain.Artifact) error {
		if !a.Status.InFlight() {
			return domain.WrapError(domain.ErrInvalidTransition, "recover artifact", fmt.Errorf("artifact %s is %s", a.ID, a.Status))
		}
		if err := r.apply(a, domain.ArtifactFailed); err != nil {
			return err
		}
		a.LastError = reason
		a.RetryCount = 0
		return r.apply(a, domain.ArtifactPending)
	})
}

func (r *ArtifactRegistry) Approve(ctx context.Context, brandID, id string) (*domain.Artifact, error) {
	return r.transition(ctx, brandID, id, domain.ArtifactApproved, func(a *domain.Artifact) {
		a.RejectionReason = ""
	})
}

func (r *ArtifactRegistry) Reject(ctx context.Context, brandID, id, reason string) (*domain.Artifact, error) {
	return r.transition(ctx, brandID, id, domain.ArtifactRejected, func(a *domain.Artifact) {
		a.RejectionReason = strings.TrimSpace(reason)
	})
}

func (r *ArtifactRegistry) Archive(ctx context.Context, brandID, id string) (*domain.Artifact, error) {
	return r.transition(ctx, brandID, id, domain.ArtifactArchived, nil)
}

// Reprocess sends a processed or failed artifact back to pending so a new
// extraction supersedes its current insight.
func (r *ArtifactRegistry) Reprocess(ctx context.Context, brandID, id string) (*domain.Artifact, error) {
	return r.transition(ctx, brandID, id, domain.ArtifactPending, func(a *domain.Artifact) {
		a.RetryCount = 0
		a.LastError = ""
	})
}

// RevertReprocess restores the state Reprocess replaced when no extraction job
// could be queued for it.
func (r *ArtifactRegistry) RevertReprocess(ctx context.Context, brandID, id string, before *domain.Artifact) (*domain.Artifact, error) {
	return r.repo.Update(ctx, brandID, id, func(a *domain.Artifact) error {
		if a.Status != domain.ArtifactPending {
			return domain.WrapError(domain.ErrConflict, "revert reprocess", fmt.Errorf("artifact %s moved on to %s", a.ID, a.Status))
		}
		a.Status = before.Status
		a.RetryCount = before.RetryCount
		a.LastError = before.LastError
		a.UpdatedAt = r.now()
		return nil
	})
}

func (r *ArtifactRegistry) SetVisibility(ctx context.Context, brandID, id string, to domain.Visibility, reason string) (*domain.Artifact, error) {
	if !to.Valid() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "set visibility", fmt.Errorf("unknown visibility %q", to))
	}
	return r.repo.Update(ctx, brandID, id, func(a *domain.Artifact) error {
		if !domain.CanTransitionVisibility(a.Visibility, to) {
			return domain.WrapError(domain.ErrInvalidTransition, "set visibility", fmt.Errorf("%s -> %s", a.Visibility, to))
		}
		// Rejection is a move from pending_approval back to private.
		rejected := a.Visibility == domain.VisibilityPendingApproval && to == domain.VisibilityPrivate
		a.Visibility = to
		a.UpdatedAt = r.now()
		if rejected || to == domain.VisibilityPendingApproval {
			a.VisibilityReason = strings.TrimSpace(reason)
		}
		return nil
	})
}

func (r *ArtifactRegistry) transition(ctx context.Context, brandID, id string, to domain.ArtifactStatus, extra func(*domain.Artifact)) (*domain.Artifact, error) {
	return r.repo.Update(ctx, brandID, id, func(a *domain.Artifact) error {
		if err := r.apply(a, to); err != nil {
			return err
		}
		if extra != nil {
			extra(a)
		}
		return nil
	})
}

func (r *ArtifactRegistry) apply(a *domain.Artifact, to domain.ArtifactStatus) error {
	if !domain.CanTransitionArtifact(a.Status, to) {
		return domain.WrapError(domain.ErrInvalidTransition, "artifact transition", fmt.Errorf("%s: %s -> %s", a.ID, a.Status, to))
	}
	a.Status = to
	a.UpdatedAt = r.now()
	return nil
}
