package localfs

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/brand-soul/internal/core/domain"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(t.TempDir(), []byte("secret"), "https://api.example")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestPutGetDelete(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	if err := s.Put(ctx, "acme/artifacts/a1/source", []byte("payload"), "text/plain", map[string]string{"brand": "acme"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, err := s.Get(ctx, "acme/artifacts/a1/source")
	if err != nil || string(got) != "payload" {
		t.Fatalf("Get() = %q, %v", got, err)
	}
	if ct := s.ContentType("acme/artifacts/a1/source"); ct != "text/plain" {
		t.Fatalf("ContentType() = %q", ct)
	}
	if err := s.Delete(ctx, "acme/artifacts/a1/source"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get(ctx, "acme/artifacts/a1/source"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := s.Delete(ctx, "acme/artifacts/a1/source"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestDeletePrefixCountsPayloads(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	for _, key := range []string{"acme/artifacts/a1/source", "acme/artifacts/a1/processed/text.txt", "acme/artifacts/a2/source"} {
		if err := s.Put(ctx, key, []byte("x"), "text/plain", nil); err != nil {
			t.Fatalf("Put(%s) error = %v", key, err)
		}
	}

	n, err := s.DeletePrefix(ctx, "acme/artifacts/a1/")
	if err != nil || n != 2 {
		t.Fatalf("DeletePrefix() = %d, %v", n, err)
	}
	if _, err := s.Get(ctx, "acme/artifacts/a2/source"); err != nil {
		t.Fatalf("sibling artifact removed: %v", err)
	}
	if n, err := s.DeletePrefix(ctx, "acme/artifacts/missing/"); err != nil || n != 0 {
		t.Fatalf("DeletePrefix(missing) = %d, %v", n, err)
	}
}

func TestRejectsEscapingPaths(t *testing.T) {
	s := newTestStorage(t)
	if err := s.Put(context.Background(), "../etc/passwd", []byte("x"), "", nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := s.DeletePrefix(context.Background(), "/"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for root prefix, got %v", err)
	}
}

func TestSignedURLRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	raw, err := s.SignedURL(context.Background(), "acme/artifacts/a 1/source", time.Minute)
	if err != nil {
		t.Fatalf("SignedURL() error = %v", err)
	}
	if !strings.HasPrefix(raw, "https://api.example/blobs/acme/artifacts/a%201/source?") {
		t.Fatalf("unexpected url: %s", raw)
	}
	parsed, _ := url.Parse(raw)
	q := parsed.Query()
	if err := s.Verify("acme/artifacts/a 1/source", q.Get("expires"), q.Get("sig")); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if err := s.Verify("acme/artifacts/a2/source", q.Get("expires"), q.Get("sig")); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for other path, got %v", err)
	}

	now = now.Add(2 * time.Minute)
	if err := s.Verify("acme/artifacts/a 1/source", q.Get("expires"), q.Get("sig")); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden after expiry, got %v", err)
	}
}
