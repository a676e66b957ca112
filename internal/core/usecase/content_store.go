package usecase

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"

	"github.com/kirillkom/brand-soul/internal/core/domain"
	"github.com/kirillkom/brand-soul/internal/core/ports"
)

const (
	ContentCollection      = "content"
	DefaultInlineThreshold = 4 << 10
)

// Checksum returns the hex-encoded 128-bit BLAKE2b digest of data.
func Checksum(data []byte) string {
	h, _ := blake2b.New(16, nil)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

type inlineContent struct {
	Path        string    `json:"path"`
	Owner       string    `json:"owner,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	Checksum    string    `json:"checksum"`
	Size        int64     `json:"size"`
	Data        []byte    `json:"data"`
	StoredAt    time.Time `json:"stored_at"`
}

// ContentStore keeps small payloads inline in the document store and pushes
// everything above the threshold to the blob store.
type ContentStore struct {
	docs            ports.DocumentStore
	blobs           ports.BlobStore
	inlineThreshold int
	logger          *slog.Logger
}

func NewContentStore(docs ports.DocumentStore, blobs ports.BlobStore, inlineThreshold int, logger *slog.Logger) *ContentStore {
	if inlineThreshold < 0 {
		inlineThreshold = DefaultInlineThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentStore{
		docs:            docs,
		blobs:           blobs,
		inlineThreshold: inlineThreshold,
		logger:          logger,
	}
}

func (s *ContentStore) Store(ctx context.Context, path string, data []byte, contentType string) (domain.ContentRef, error) {
	if strings.TrimSpace(path) == "" {
		return domain.ContentRef{}, domain.WrapError(domain.ErrInvalidInput, "store content", errors.New("path is required"))
	}
	ref := domain.ContentRef{
		Path:     path,
		Size:     int64(len(data)),
		Checksum: Checksum(data),
	}

	if len(data) <= s.inlineThreshold {
		record := inlineContent{
			Path:        path,
			Owner:       ownerPrefix(path),
			ContentType: contentType,
			Checksum:    ref.Checksum,
			Size:        ref.Size,
			Data:        data,
			StoredAt:    time.Now().UTC(),
		}
		raw, err := json.Marshal(record)
		if err != nil {
			return domain.ContentRef{}, fmt.Errorf("encode inline content: %w", err)
		}
		if err := s.docs.Set(ctx, ContentCollection, path, raw); err != nil {
			return domain.ContentRef{}, fmt.Errorf("store inline content: %w", err)
		}
		return ref, nil
	}

	metadata := map[string]string{"checksum": ref.Checksum}
	if err := s.blobs.Put(ctx, path, data, contentType, metadata); err != nil {
		return domain.ContentRef{}, fmt.Errorf("store blob content: %w", err)
	}
	// A previous, smaller payload at the same path would otherwise shadow the blob.
	if _, err := s.docs.Delete(ctx, ContentCollection, path); err != nil {
		return domain.ContentRef{}, fmt.Errorf("drop stale inline content: %w", err)
	}
	return ref, nil
}

func (s *ContentStore) Get(ctx context.Context, path string) ([]byte, error) {
	raw, err := s.docs.Get(ctx, ContentCollection, path)
	switch {
	case err == nil:
		var record inlineContent
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "decode inline content", err)
		}
		return record.Data, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("get inline content: %w", err)
	}

	data, err := s.blobs.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("get blob content %s: %w", path, err)
	}
	return data, nil
}

func (s *ContentStore) Delete(ctx context.Context, path string) (bool, error) {
	inline, err := s.docs.Delete(ctx, ContentCollection, path)
	if err != nil {
		return false, fmt.Errorf("delete inline content: %w", err)
	}
	if inline {
		return true, nil
	}
	if err := s.blobs.Delete(ctx, path); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("delete blob content: %w", err)
	}
	return true, nil
}

// DeleteArtifact removes inline records and blobs under the artifact prefix.
// Individual failures are logged and never abort the parent delete.
func (s *ContentStore) DeleteArtifact(ctx context.Context, brandID, artifactID string) error {
	prefix := domain.ArtifactPrefix(brandID, artifactID)
	logger := s.logger.With(slog.String("brand_id", brandID), slog.String("artifact_id", artifactID))

	cursor := ""
	for {
		page, err := s.docs.Query(ctx, ContentCollection, ports.Query{
			Filters: []ports.Filter{{Field: "owner", Op: ports.OpEqual, Value: prefix}},
			Limit:   ports.MaxBatchOps,
			Cursor:  cursor,
		})
		if err != nil {
			logger.Warn("list inline content failed", slog.String("error", err.Error()))
			break
		}
		ops := make([]ports.WriteOp, 0, len(page.Records))
		for _, rec := range page.Records {
			ops = append(ops, ports.WriteOp{Collection: ContentCollection, ID: rec.ID, Delete: true})
		}
		if err := s.docs.Batch(ctx, ops); err != nil {
			logger.Warn("delete inline content failed", slog.String("error", err.Error()))
			break
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	removed, err := s.blobs.DeletePrefix(ctx, prefix)
	if err != nil {
		logger.Warn("delete artifact blobs failed", slog.String("error", err.Error()))
		return nil
	}
	logger.Debug("artifact content deleted", slog.Int("blobs", removed))
	return nil
}

// SignedURL returns a time-limited URL for path. Inline payloads are copied
// to the blob store first because only blobs are externally addressable.
func (s *ContentStore) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	raw, err := s.docs.Get(ctx, ContentCollection, path)
	switch {
	case err == nil:
		var record inlineContent
		if err := json.Unmarshal(raw, &record); err != nil {
			return "", domain.WrapError(domain.ErrInvalidInput, "decode inline content", err)
		}
		metadata := map[string]string{"checksum": record.Checksum}
		if err := s.blobs.Put(ctx, path, record.Data, record.ContentType, metadata); err != nil {
			return "", fmt.Errorf("materialize inline content: %w", err)
		}
	case !errors.Is(err, domain.ErrNotFound):
		return "", fmt.Errorf("get inline content: %w", err)
	}
	return s.blobs.SignedURL(ctx, path, ttl)
}

// ownerPrefix returns "<brand>/artifacts/<id>/" for artifact payload paths.
func ownerPrefix(path string) string {
	parts := strings.SplitN(path, "/", 4)
	if len(parts) < 4 || parts[1] != "artifacts" {
		return ""
	}
	return domain.ArtifactPrefix(parts[0], parts[2])
}
