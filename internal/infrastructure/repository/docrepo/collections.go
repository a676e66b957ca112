// Package docrepo maps the pipeline's records onto DocumentStore collections.
package docrepo

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kirillkom/brand-soul/internal/core/domain"
)

const (
	JobsCollection       = "jobs"
	BrandSoulsCollection = "brand_souls"
)

func ArtifactsCollection(brandID string) string {
	return "brands/" + brandID + "/artifacts"
}

func VersionsCollection(brandID string) string {
	return "brands/" + brandID + "/brand_soul_versions"
}

func ChecksumsCollection(brandID string) string {
	return "brands/" + brandID + "/checksums"
}

func MembersCollection(brandID string) string {
	return "brands/" + brandID + "/members"
}

// micros is a numeric sort key; RFC 3339 strings with trimmed fractions do
// not order lexically.
func micros(t time.Time) int64 {
	return t.UnixMicro()
}

func decode[T any](raw []byte, what string) (*T, error) {
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "decode "+what, err)
	}
	return &out, nil
}

func encode(v any, what string) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", what, err)
	}
	return raw, nil
}
