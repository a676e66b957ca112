package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/brand-soul/internal/core/domain"
	"github.com/kirillkom/brand-soul/internal/core/ports"
)

type IngestArtifactUseCase struct {
	gate     ports.AccessGate
	registry *ArtifactRegistry
	content  ports.ContentStore
	queue    *JobQueue
	logger   *slog.Logger
}

func NewIngestArtifactUseCase(
	gate ports.AccessGate,
	registry *ArtifactRegistry,
	content ports.ContentStore,
	queue *JobQueue,
	logger *slog.Logger,
) *IngestArtifactUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestArtifactUseCase{
		gate:     gate,
		registry: registry,
		content:  content,
		queue:    queue,
		logger:   logger,
	}
}

// Submit stores the raw content, registers a pending artifact and enqueues its
// extraction. Byte-identical content for the same brand returns the existing
// artifact without creating a job.
func (uc *IngestArtifactUseCase) Submit(ctx context.Context, input ports.SubmitArtifactInput) (ports.SubmitResult, error) {
	if err := validateSubmit(input); err != nil {
		return ports.SubmitResult{}, err
	}
	if err := uc.gate.RequireAccess(ctx, input.UserID, input.BrandID); err != nil {
		return ports.SubmitResult{}, err
	}

	checksum := Checksum(input.Content)
	id := uuid.NewString()
	holder, err := uc.registry.ClaimChecksum(ctx, input.BrandID, checksum, id)
	if err != nil {
		return ports.SubmitResult{}, fmt.Errorf("check duplicate content: %w", err)
	}
	if holder != id {
		uc.logger.Info("duplicate artifact submission",
			slog.String("brand_id", input.BrandID),
			slog.String("artifact_id", holder),
		)
		return ports.SubmitResult{ArtifactID: holder, Duplicate: true}, nil
	}

	ref, err := uc.content.Store(ctx, domain.SourcePath(input.BrandID, id), input.Content, input.MimeType)
	if err != nil {
		uc.releaseChecksum(ctx, input.BrandID, checksum, id)
		return ports.SubmitResult{}, fmt.Errorf("store source content: %w", err)
	}

	now := time.Now().UTC()
	priority := domain.NormalizePriority(input.Priority)
	artifact := &domain.Artifact{
		ID:         id,
		BrandID:    input.BrandID,
		Type:       input.Type,
		Title:      strings.TrimSpace(input.Title),
		SourceURL:  strings.TrimSpace(input.SourceURL),
		MimeType:   input.MimeType,
		Visibility: domain.VisibilityPrivate,
		Checksum:   checksum,
		Content:    ref,
		Priority:   priority,
		CreatedBy:  input.UserID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := uc.registry.Register(ctx, artifact); err != nil {
		uc.discardContent(ctx, input.BrandID, id)
		uc.releaseChecksum(ctx, input.BrandID, checksum, id)
		return ports.SubmitResult{}, err
	}

	job, err := uc.queue.Enqueue(ctx, EnqueueRequest{
		Type:       domain.JobExtractInsights,
		BrandID:    input.BrandID,
		ArtifactID: id,
		Priority:   priority,
	})
	if err != nil {
		// Without a job the artifact would sit in pending forever and block
		// resubmission through deduplication.
		if delErr := uc.registry.Delete(ctx, input.BrandID, id); delErr != nil {
			uc.logger.Error("rollback artifact failed",
				slog.String("artifact_id", id),
				slog.String("error", delErr.Error()),
			)
		}
		uc.discardContent(ctx, input.BrandID, id)
		return ports.SubmitResult{}, fmt.Errorf("enqueue extraction: %w", err)
	}

	return ports.SubmitResult{ArtifactID: id, JobID: job.ID}, nil
}

func (uc *IngestArtifactUseCase) releaseChecksum(ctx context.Context, brandID, checksum, artifactID string) {
	if err := uc.registry.ReleaseChecksum(ctx, brandID, checksum, artifactID); err != nil {
		uc.logger.Warn("release content checksum failed",
			slog.String("artifact_id", artifactID),
			slog.String("error", err.Error()),
		)
	}
}

func (uc *IngestArtifactUseCase) discardContent(ctx context.Context, brandID, artifactID string) {
	if err := uc.content.DeleteArtifact(ctx, brandID, artifactID); err != nil {
		uc.logger.Warn("discard artifact content failed",
			slog.String("artifact_id", artifactID),
			slog.String("error", err.Error()),
		)
	}
}

func validateSubmit(input ports.SubmitArtifactInput) error {
	switch {
	case strings.TrimSpace(input.BrandID) == "":
		return domain.WrapError(domain.ErrInvalidInput, "submit artifact", errors.New("brand id is required"))
	case !input.Type.Valid():
		return domain.WrapError(domain.ErrInvalidInput, "submit artifact", fmt.Errorf("unknown artifact type %q", input.Type))
	case len(input.Content) == 0:
		return domain.WrapError(domain.ErrInvalidInput, "submit artifact", errors.New("content is required"))
	}
	return nil
}
