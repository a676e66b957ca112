package docrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/brand-soul/internal/core/domain"
	"github.com/kirillkom/brand-soul/internal/core/ports"
)

type artifactDocument struct {
	domain.Artifact
	CreatedMicros int64 `json:"created_micros"`
}

type ArtifactRepository struct {
	store ports.DocumentStore
	now   func() time.Time
}

var _ ports.ArtifactRepository = (*ArtifactRepository)(nil)

func NewArtifactRepository(store ports.DocumentStore) *ArtifactRepository {
	return &ArtifactRepository{store: store, now: func() time.Time { return time.Now().UTC() }}
}

func (r *ArtifactRepository) Create(ctx context.Context, artifact *domain.Artifact) error {
	if err := artifact.Validate(); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "create artifact", err)
	}
	raw, err := encode(artifactDocument{Artifact: *artifact, CreatedMicros: micros(artifact.CreatedAt)}, "artifact")
	if err != nil {
		return err
	}
	if err := r.store.Set(ctx, ArtifactsCollection(artifact.BrandID), artifact.ID, raw); err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}
	return nil
}

func (r *ArtifactRepository) Get(ctx context.Context, brandID, id string) (*domain.Artifact, error) {
	raw, err := r.store.Get(ctx, ArtifactsCollection(brandID), id)
	if err != nil {
		return nil, fmt.Errorf("get artifact %s: %w", id, err)
	}
	doc, err := decode[artifactDocument](raw, "artifact")
	if err != nil {
		return nil, err
	}
	return &doc.Artifact, nil
}

// Update applies mutate atomically and validates the result before writing.
func (r *ArtifactRepository) Update(ctx context.Context, brandID, id string, mutate func(*domain.Artifact) error) (*domain.Artifact, error) {
	var updated domain.Artifact
	err := r.store.Update(ctx, ArtifactsCollection(brandID), id, func(current []byte) ([]byte, error) {
		doc, err := decode[artifactDocument](current, "artifact")
		if err != nil {
			return nil, err
		}
		if err := mutate(&doc.Artifact); err != nil {
			return nil, err
		}
		if err := doc.Artifact.Validate(); err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "update artifact", err)
		}
		updated = doc.Artifact
		return encode(doc, "artifact")
	})
	if err != nil {
		return nil, fmt.Errorf("update artifact %s: %w", id, err)
	}
	return &updated, nil
}

// Delete removes the artifact and frees its checksum for resubmission.
func (r *ArtifactRepository) Delete(ctx context.Context, brandID, id string) error {
	artifact, err := r.Get(ctx, brandID, id)
	if err != nil {
		return err
	}
	deleted, err := r.store.Delete(ctx, ArtifactsCollection(brandID), id)
	if err != nil {
		return fmt.Errorf("delete artifact %s: %w", id, err)
	}
	if !deleted {
		return domain.WrapError(domain.ErrNotFound, "delete artifact", errors.New(id))
	}
	if artifact.Checksum != "" {
		if err := r.ReleaseChecksum(ctx, brandID, artifact.Checksum, id); err != nil {
			return err
		}
	}
	return nil
}

// staleClaimAfter bounds how long a claim whose artifact never got
// registered keeps blocking the same content.
const staleClaimAfter = 2 * time.Minute

type checksumClaim struct {
	ArtifactID string    `json:"artifact_id"`
	ClaimedAt  time.Time `json:"claimed_at"`
}

func (r *ArtifactRepository) ClaimChecksum(ctx context.Context, brandID, checksum, artifactID string) (string, error) {
	collection := ChecksumsCollection(brandID)
	raw, err := encode(checksumClaim{ArtifactID: artifactID, ClaimedAt: r.now()}, "checksum claim")
	if err != nil {
		return "", err
	}
	created, err := r.store.Create(ctx, collection, checksum, raw)
	if err != nil {
		return "", fmt.Errorf("claim checksum: %w", err)
	}
	if created {
		return artifactID, nil
	}

	current, err := r.store.Get(ctx, collection, checksum)
	if errors.Is(err, domain.ErrNotFound) {
		// Released between the create and the read.
		return r.ClaimChecksum(ctx, brandID, checksum, artifactID)
	}
	if err != nil {
		return "", fmt.Errorf("load checksum claim: %w", err)
	}
	claim, err := decode[checksumClaim](current, "checksum claim")
	if err != nil {
		return "", err
	}
	if r.now().Sub(claim.ClaimedAt) < staleClaimAfter {
		return claim.ArtifactID, nil
	}
	if _, err := r.Get(ctx, brandID, claim.ArtifactID); !errors.Is(err, domain.ErrNotFound) {
		if err != nil {
			return "", err
		}
		return claim.ArtifactID, nil
	}

	holder := claim.ArtifactID
	err = r.store.Update(ctx, collection, checksum, func(current []byte) ([]byte, error) {
		latest, err := decode[checksumClaim](current, "checksum claim")
		if err != nil {
			return nil, err
		}
		if latest.ArtifactID != claim.ArtifactID {
			holder = latest.ArtifactID
			return current, nil
		}
		holder = artifactID
		return raw, nil
	})
	if err != nil {
		return "", fmt.Errorf("take over checksum claim: %w", err)
	}
	return holder, nil
}

// ReleaseChecksum drops the claim if artifactID still holds it.
func (r *ArtifactRepository) ReleaseChecksum(ctx context.Context, brandID, checksum, artifactID string) error {
	collection := ChecksumsCollection(brandID)
	raw, err := r.store.Get(ctx, collection, checksum)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load checksum claim: %w", err)
	}
	claim, err := decode[checksumClaim](raw, "checksum claim")
	if err != nil {
		return err
	}
	if claim.ArtifactID != artifactID {
		return nil
	}
	if _, err := r.store.Delete(ctx, collection, checksum); err != nil {
		return fmt.Errorf("release checksum: %w", err)
	}
	return nil
}

func (r *ArtifactRepository) FindByChecksum(ctx context.Context, brandID, checksum string) (*domain.Artifact, error) {
	page, err := r.store.Query(ctx, ArtifactsCollection(brandID), ports.Query{
		Filters: []ports.Filter{{Field: "checksum", Op: ports.OpEqual, Value: checksum}},
		OrderBy: []ports.Order{{Field: "created_micros"}},
		Limit:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("find artifact by checksum: %w", err)
	}
	if len(page.Records) == 0 {
		return nil, nil
	}
	doc, err := decode[artifactDocument](page.Records[0].Data, "artifact")
	if err != nil {
		return nil, err
	}
	return &doc.Artifact, nil
}

// List returns artifacts newest first.
func (r *ArtifactRepository) List(ctx context.Context, brandID string, filter domain.ArtifactFilter) (domain.ArtifactPage, error) {
	q := ports.Query{
		OrderBy: []ports.Order{{Field: "created_micros", Desc: true}},
		Limit:   filter.Limit,
		Cursor:  filter.Cursor,
	}
	if len(filter.Statuses) > 0 {
		q.Filters = append(q.Filters, ports.Filter{Field: "status", Op: ports.OpIn, Value: filter.Statuses})
	}
	page, err := r.store.Query(ctx, ArtifactsCollection(brandID), q)
	if err != nil {
		return domain.ArtifactPage{}, fmt.Errorf("list artifacts: %w", err)
	}

	out := domain.ArtifactPage{Artifacts: make([]domain.Artifact, 0, len(page.Records)), NextCursor: page.NextCursor}
	for _, rec := range page.Records {
		doc, err := decode[artifactDocument](rec.Data, "artifact")
		if err != nil {
			return domain.ArtifactPage{}, fmt.Errorf("artifact %s: %w", rec.ID, err)
		}
		out.Artifacts = append(out.Artifacts, doc.Artifact)
	}
	return out, nil
}
