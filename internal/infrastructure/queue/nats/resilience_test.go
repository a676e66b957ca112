package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/brand-soul/internal/core/domain"
	"github.com/kirillkom/brand-soul/internal/infrastructure/resilience"
)

func TestClassifyNATSError(t *testing.T) {
	if class := classifyNATSError(fmt.Errorf("publish: %w", nats.ErrConnectionClosed)); !class.Retryable {
		t.Fatalf("closed connection should be retryable")
	}
	if class := classifyNATSError(context.Canceled); class.Retryable || class.RecordFailure {
		t.Fatalf("cancellation should neither retry nor trip the breaker: %+v", class)
	}
	if class := classifyNATSError(nats.ErrBadSubject); class.Retryable || !class.Permanent {
		t.Fatalf("bad subject should be permanent: %+v", class)
	}
}

func TestPublishErrorsMapToJobSemantics(t *testing.T) {
	err := resilience.Wrap("nats publish", nats.ErrTimeout, classifyNATSError)
	if !errors.Is(err, domain.ErrTemporary) || !domain.IsRetriable(err) {
		t.Fatalf("timeout should be temporary, got %v", err)
	}
	permanent := resilience.Wrap("nats publish", fmt.Errorf("nats publish: %w", nats.ErrBadSubject), classifyNATSError)
	if !errors.Is(permanent, domain.ErrPermanent) || domain.IsRetriable(permanent) {
		t.Fatalf("bad subject should be permanent, got %v", permanent)
	}
}

func TestNotifyEnqueuedRequiresJobID(t *testing.T) {
	n := &Notifier{}
	if err := n.NotifyEnqueued(context.Background(), &domain.Job{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
