package ports

import (
	"context"
	"time"

	"github.com/kirillkom/brand-soul/internal/core/domain"
)

type SubmitArtifactInput struct {
	BrandID   string
	UserID    string
	Type      domain.ArtifactType
	Title     string
	SourceURL string
	MimeType  string
	Content   []byte
	Priority  int
}

type SubmitResult struct {
	ArtifactID string `json:"artifact_id"`
	JobID      string `json:"job_id,omitempty"`
	Duplicate  bool   `json:"duplicate"`
}

// ArtifactIngestor accepts new brand material.
type ArtifactIngestor interface {
	Submit(ctx context.Context, input SubmitArtifactInput) (SubmitResult, error)
}

// ArtifactService is the admin surface over registered artifacts.
type ArtifactService interface {
	Get(ctx context.Context, userID, brandID, artifactID string) (*domain.Artifact, error)
	List(ctx context.Context, userID, brandID string, filter domain.ArtifactFilter) (domain.ArtifactPage, error)
	Delete(ctx context.Context, userID, brandID, artifactID string) error
	Approve(ctx context.Context, userID, brandID, artifactID string) (*domain.Artifact, error)
	Reject(ctx context.Context, userID, brandID, artifactID, reason string) (*domain.Artifact, error)
	Archive(ctx context.Context, userID, brandID, artifactID string) (*domain.Artifact, error)
	Reprocess(ctx context.Context, userID, brandID, artifactID string) (*domain.Artifact, error)
	SetVisibility(ctx context.Context, userID, brandID, artifactID string, to domain.Visibility, reason string) (*domain.Artifact, error)
	ContentURL(ctx context.Context, userID, brandID, artifactID string, ttl time.Duration) (string, error)
}

// BrandSoulService reads and rebuilds the synthesized Brand Soul.
type BrandSoulService interface {
	Get(ctx context.Context, userID, brandID string) (*domain.BrandSoul, error)
	Versions(ctx context.Context, userID, brandID string, limit int) ([]domain.BrandSoulVersion, error)
	RequestSynthesis(ctx context.Context, userID, brandID string, force bool) (*domain.Job, error)
}

// ContextBuilder assembles prompt context for downstream generation.
type ContextBuilder interface {
	BuildContext(ctx context.Context, req domain.ContextRequest) (*domain.ContextBundle, error)
}

// JobService exposes job status and admin controls.
type JobService interface {
	Get(ctx context.Context, userID, jobID string) (*domain.Job, error)
	Retry(ctx context.Context, userID, jobID string) (*domain.Job, error)
	Run(ctx context.Context, userID, jobID string) (*domain.Job, error)
}
