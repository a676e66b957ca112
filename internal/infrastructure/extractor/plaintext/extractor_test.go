package plaintext

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/brand-soul/internal/core/domain"
)

func TestReadNormalizesText(t *testing.T) {
	raw := []byte("\xEF\xBB\xBFHello  \r\n\r\n\r\n\r\nWorld\t\n")
	got, err := NewReader().Read(context.Background(), &domain.Artifact{Type: domain.ArtifactText}, raw)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got != "Hello\n\nWorld" {
		t.Fatalf("Read() = %q", got)
	}
}

func TestReadRejectsBinary(t *testing.T) {
	_, err := NewReader().Read(context.Background(), &domain.Artifact{Type: domain.ArtifactImage}, []byte{0xff, 0xd8, 0xff, 0xe0})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
