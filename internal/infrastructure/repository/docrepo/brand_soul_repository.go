package docrepo

import (
	"context"
	"fmt"

	"github.com/kirillkom/brand-soul/internal/core/domain"
	"github.com/kirillkom/brand-soul/internal/core/ports"
)

type versionDocument struct {
	domain.BrandSoulVersion
	CreatedMicros int64 `json:"created_micros"`
}

type BrandSoulRepository struct {
	store ports.DocumentStore
}

var _ ports.BrandSoulRepository = (*BrandSoulRepository)(nil)

func NewBrandSoulRepository(store ports.DocumentStore) *BrandSoulRepository {
	return &BrandSoulRepository{store: store}
}

func (r *BrandSoulRepository) Get(ctx context.Context, brandID string) (*domain.BrandSoul, error) {
	raw, err := r.store.Get(ctx, BrandSoulsCollection, brandID)
	if err != nil {
		return nil, fmt.Errorf("get brand soul %s: %w", brandID, err)
	}
	return decode[domain.BrandSoul](raw, "brand soul")
}

func (r *BrandSoulRepository) Save(ctx context.Context, soul *domain.BrandSoul, version *domain.BrandSoulVersion) error {
	live, err := encode(soul, "brand soul")
	if err != nil {
		return err
	}
	snapshot, err := encode(versionDocument{BrandSoulVersion: *version, CreatedMicros: micros(version.CreatedAt)}, "brand soul version")
	if err != nil {
		return err
	}
	err = r.store.Batch(ctx, []ports.WriteOp{
		{Collection: BrandSoulsCollection, ID: soul.BrandID, Data: live},
		{Collection: VersionsCollection(soul.BrandID), ID: version.VersionID, Data: snapshot},
	})
	if err != nil {
		return fmt.Errorf("save brand soul %s: %w", soul.BrandID, err)
	}
	return nil
}

func (r *BrandSoulRepository) Delete(ctx context.Context, brandID string) (bool, error) {
	deleted, err := r.store.Delete(ctx, BrandSoulsCollection, brandID)
	if err != nil {
		return false, fmt.Errorf("delete brand soul %s: %w", brandID, err)
	}
	return deleted, nil
}

// ListVersions returns snapshots newest first.
func (r *BrandSoulRepository) ListVersions(ctx context.Context, brandID string, limit int) ([]domain.BrandSoulVersion, error) {
	page, err := r.store.Query(ctx, VersionsCollection(brandID), ports.Query{
		OrderBy: []ports.Order{{Field: "created_micros", Desc: true}},
		Limit:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list brand soul versions: %w", err)
	}
	out := make([]domain.BrandSoulVersion, 0, len(page.Records))
	for _, rec := range page.Records {
		doc, err := decode[versionDocument](rec.Data, "brand soul version")
		if err != nil {
			return nil, err
		}
		out = append(out, doc.BrandSoulVersion)
	}
	return out, nil
}
