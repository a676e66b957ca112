package ports

import (
	"context"
	"time"

	"github.com/kirillkom/brand-soul/internal/core/domain"
)

// MaxBatchOps caps the number of writes a single DocumentStore batch commits.
const MaxBatchOps = 500

type FilterOp string

const (
	OpEqual FilterOp = "=="
	OpIn    FilterOp = "in"
)

// Filter matches a top-level field of the stored JSON record.
type Filter struct {
	Field string
	Op    FilterOp
	Value any
}

type Order struct {
	Field string
	Desc  bool
}

type Query struct {
	Filters []Filter
	OrderBy []Order
	Limit   int
	// Cursor is the opaque NextCursor of a previous page.
	Cursor string
}

type Record struct {
	ID   string
	Data []byte
}

type Page struct {
	Records    []Record
	NextCursor string
}

type WriteOp struct {
	Collection string
	ID         string
	Data       []byte
	Delete     bool
}

// DocumentStore persists small JSON records grouped in collections.
// Collection paths may be nested, e.g. "brands/<id>/artifacts".
type DocumentStore interface {
	Get(ctx context.Context, collection, id string) ([]byte, error)
	Set(ctx context.Context, collection, id string, data []byte) error
	// Create writes the record only if the id is free and reports whether it did.
	Create(ctx context.Context, collection, id string, data []byte) (bool, error)
	// Update atomically reads, mutates and writes one record.
	Update(ctx context.Context, collection, id string, mutate func(current []byte) ([]byte, error)) error
	Delete(ctx context.Context, collection, id string) (bool, error)
	Query(ctx context.Context, collection string, q Query) (Page, error)
	// Batch applies ops in chunks of at most MaxBatchOps, each chunk atomically.
	Batch(ctx context.Context, ops []WriteOp) error
}

// BlobStore stores large payloads addressed by slash-separated paths.
type BlobStore interface {
	Put(ctx context.Context, path string, data []byte, contentType string, metadata map[string]string) error
	Get(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

// ContentStore is the two-tier, content-addressed payload store.
type ContentStore interface {
	Store(ctx context.Context, path string, data []byte, contentType string) (domain.ContentRef, error)
	Get(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) (bool, error)
	// DeleteArtifact removes every payload stored under the artifact's prefix.
	DeleteArtifact(ctx context.Context, brandID, artifactID string) error
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

type ArtifactRepository interface {
	Create(ctx context.Context, artifact *domain.Artifact) error
	Get(ctx context.Context, brandID, id string) (*domain.Artifact, error)
	Update(ctx context.Context, brandID, id string, mutate func(*domain.Artifact) error) (*domain.Artifact, error)
	Delete(ctx context.Context, brandID, id string) error
	// FindByChecksum returns nil without error when no artifact matches.
	FindByChecksum(ctx context.Context, brandID, checksum string) (*domain.Artifact, error)
	// ClaimChecksum binds checksum to artifactID unless another artifact
	// holds it, and returns the holder.
	ClaimChecksum(ctx context.Context, brandID, checksum, artifactID string) (string, error)
	ReleaseChecksum(ctx context.Context, brandID, checksum, artifactID string) error
	List(ctx context.Context, brandID string, filter domain.ArtifactFilter) (domain.ArtifactPage, error)
}

type JobRepository interface {
	Create(ctx context.Context, job *domain.Job) error
	Get(ctx context.Context, id string) (*domain.Job, error)
	Update(ctx context.Context, id string, mutate func(*domain.Job) error) (*domain.Job, error)
	// ListByStatus orders by priority (highest first) then creation time.
	ListByStatus(ctx context.Context, status domain.JobStatus, limit int) ([]domain.Job, error)
	ListForBrand(ctx context.Context, brandID string, jobType domain.JobType, status domain.JobStatus) ([]domain.Job, error)
}

type BrandSoulRepository interface {
	Get(ctx context.Context, brandID string) (*domain.BrandSoul, error)
	// Save overwrites the live document and appends the version in one batch.
	Save(ctx context.Context, soul *domain.BrandSoul, version *domain.BrandSoulVersion) error
	Delete(ctx context.Context, brandID string) (bool, error)
	ListVersions(ctx context.Context, brandID string, limit int) ([]domain.BrandSoulVersion, error)
}

type ExtractionInput struct {
	ArtifactID   string
	ArtifactType domain.ArtifactType
	Title        string
	Text         string
}

// InsightExtractor is the opaque model call turning source text into insights.
type InsightExtractor interface {
	Extract(ctx context.Context, input ExtractionInput) (*domain.ExtractedInsight, error)
}

// SourceReader turns raw artifact content into plain text.
type SourceReader interface {
	Read(ctx context.Context, artifact *domain.Artifact, raw []byte) (string, error)
}

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) error
}

type AccessGate interface {
	RequireAccess(ctx context.Context, userID, brandID string) error
}

// JobNotifier announces newly queued jobs so idle workers can poll early.
type JobNotifier interface {
	NotifyEnqueued(ctx context.Context, job *domain.Job) error
}
