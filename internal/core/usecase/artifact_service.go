package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/brand-soul/internal/core/domain"
	"github.com/kirillkom/brand-soul/internal/core/ports"
)

const DefaultSignedURLTTL = 15 * time.Minute

// ArtifactAdminUseCase gates every artifact read and administrative action
// behind brand membership.
type ArtifactAdminUseCase struct {
	gate           ports.AccessGate
	registry       *ArtifactRegistry
	content        ports.ContentStore
	queue          *JobQueue
	autoSynthesize bool
	logger         *slog.Logger
}

func NewArtifactAdminUseCase(
	gate ports.AccessGate,
	registry *ArtifactRegistry,
	content ports.ContentStore,
	queue *JobQueue,
	autoSynthesize bool,
	logger *slog.Logger,
) *ArtifactAdminUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArtifactAdminUseCase{
		gate:           gate,
		registry:       registry,
		content:        content,
		queue:          queue,
		autoSynthesize: autoSynthesize,
		logger:         logger,
	}
}

func (uc *ArtifactAdminUseCase) Get(ctx context.Context, userID, brandID, artifactID string) (*domain.Artifact, error) {
	if err := uc.gate.RequireAccess(ctx, userID, brandID); err != nil {
		return nil, err
	}
	return uc.registry.Get(ctx, brandID, artifactID)
}

func (uc *ArtifactAdminUseCase) List(ctx context.Context, userID, brandID string, filter domain.ArtifactFilter) (domain.ArtifactPage, error) {
	if err := uc.gate.RequireAccess(ctx, userID, brandID); err != nil {
		return domain.ArtifactPage{}, err
	}
	return uc.registry.List(ctx, brandID, filter)
}

// Delete removes the artifact record and cascades to its stored content.
func (uc *ArtifactAdminUseCase) Delete(ctx context.Context, userID, brandID, artifactID string) error {
	if err := uc.gate.RequireAccess(ctx, userID, brandID); err != nil {
		return err
	}
	artifact, err := uc.registry.Get(ctx, brandID, artifactID)
	if err != nil {
		return err
	}
	if artifact.Status.InFlight() {
		return domain.WrapError(domain.ErrConflict, "delete artifact", fmt.Errorf("artifact %s is %s", artifactID, artifact.Status))
	}
	if err := uc.registry.Delete(ctx, brandID, artifactID); err != nil {
		return err
	}
	if err := uc.content.DeleteArtifact(ctx, brandID, artifactID); err != nil {
		uc.logger.Warn("artifact content cleanup failed",
			slog.String("artifact_id", artifactID),
			slog.String("error", err.Error()),
		)
	}
	uc.resynthesizeIf(ctx, userID, brandID, artifact.Status.SynthesisEligible())
	return nil
}

func (uc *ArtifactAdminUseCase) Approve(ctx context.Context, userID, brandID, artifactID string) (*domain.Artifact, error) {
	if err := uc.gate.RequireAccess(ctx, userID, brandID); err != nil {
		return nil, err
	}
	before, err := uc.registry.Get(ctx, brandID, artifactID)
	if err != nil {
		return nil, err
	}
	artifact, err := uc.registry.Approve(ctx, brandID, artifactID)
	if err != nil {
		return nil, err
	}
	uc.resynthesizeIf(ctx, userID, brandID, !before.Status.SynthesisEligible())
	return artifact, nil
}

func (uc *ArtifactAdminUseCase) Reject(ctx context.Context, userID, brandID, artifactID, reason string) (*domain.Artifact, error) {
	if err := uc.gate.RequireAccess(ctx, userID, brandID); err != nil {
		return nil, err
	}
	artifact, err := uc.registry.Reject(ctx, brandID, artifactID, reason)
	if err != nil {
		return nil, err
	}
	uc.resynthesizeIf(ctx, userID, brandID, true)
	return artifact, nil
}

func (uc *ArtifactAdminUseCase) Archive(ctx context.Context, userID, brandID, artifactID string) (*domain.Artifact, error) {
	if err := uc.gate.RequireAccess(ctx, userID, brandID); err != nil {
		return nil, err
	}
	before, err := uc.registry.Get(ctx, brandID, artifactID)
	if err != nil {
		return nil, err
	}
	artifact, err := uc.registry.Archive(ctx, brandID, artifactID)
	if err != nil {
		return nil, err
	}
	uc.resynthesizeIf(ctx, userID, brandID, before.Status.SynthesisEligible())
	return artifact, nil
}

// Reprocess returns the artifact to pending and enqueues a new extraction.
func (uc *ArtifactAdminUseCase) Reprocess(ctx context.Context, userID, brandID, artifactID string) (*domain.Artifact, error) {
	if err := uc.gate.RequireAccess(ctx, userID, brandID); err != nil {
		return nil, err
	}
	before, err := uc.registry.Get(ctx, brandID, artifactID)
	if err != nil {
		return nil, err
	}
	artifact, err := uc.registry.Reprocess(ctx, brandID, artifactID)
	if err != nil {
		return nil, err
	}
	if _, err := uc.queue.Enqueue(ctx, EnqueueRequest{
		Type:       domain.JobExtractInsights,
		BrandID:    brandID,
		ArtifactID: artifactID,
		Priority:   artifact.Priority,
	}); err != nil {
		// A pending artifact without a job would never be picked up.
		if _, rbErr := uc.registry.RevertReprocess(ctx, brandID, artifactID, before); rbErr != nil {
			uc.logger.Error("rollback reprocess failed",
				slog.String("artifact_id", artifactID),
				slog.String("error", rbErr.Error()),
			)
		}
		return nil, fmt.Errorf("enqueue reprocessing: %w", err)
	}
	return artifact, nil
}

func (uc *ArtifactAdminUseCase) SetVisibility(ctx context.Context, userID, brandID, artifactID string, to domain.Visibility, reason string) (*domain.Artifact, error) {
	if err := uc.gate.RequireAccess(ctx, userID, brandID); err != nil {
		return nil, err
	}
	return uc.registry.SetVisibility(ctx, brandID, artifactID, to, reason)
}

func (uc *ArtifactAdminUseCase) ContentURL(ctx context.Context, userID, brandID, artifactID string, ttl time.Duration) (string, error) {
	if err := uc.gate.RequireAccess(ctx, userID, brandID); err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = DefaultSignedURLTTL
	}
	artifact, err := uc.registry.Get(ctx, brandID, artifactID)
	if err != nil {
		return "", err
	}
	return uc.content.SignedURL(ctx, artifact.Content.Path, ttl)
}

// resynthesizeIf schedules a forced synthesis after the eligible set changed.
func (uc *ArtifactAdminUseCase) resynthesizeIf(ctx context.Context, userID, brandID string, changed bool) {
	if !changed || !uc.autoSynthesize {
		return
	}
	if _, _, err := uc.queue.EnqueueSynthesis(ctx, brandID, userID, true); err != nil {
		uc.logger.Warn("enqueue synthesis failed",
			slog.String("brand_id", brandID),
			slog.String("error", err.Error()),
		)
	}
}
