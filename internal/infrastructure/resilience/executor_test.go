package resilience

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/brand-soul/internal/core/domain"
)

var (
	errBusy     = errors.New("model busy")
	errRejected = errors.New("prompt rejected")
)

func classifyTest(err error) ErrorClassification {
	switch {
	case errors.Is(err, errBusy):
		return ErrorClassification{Retryable: true, RecordFailure: true}
	case errors.Is(err, errRejected):
		return ErrorClassification{Permanent: true}
	default:
		return defaultClassifier(err)
	}
}

func fastRetries() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
	}
}

func TestExecuteRetriesRetryableFailure(t *testing.T) {
	var logs bytes.Buffer
	exec := NewExecutor(fastRetries(), slog.New(slog.NewTextHandler(&logs, nil)))

	attempts := 0
	err := exec.Execute(context.Background(), "extract", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errBusy
		}
		return nil
	}, classifyTest)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if got := strings.Count(logs.String(), "upstream call failed, retrying"); got != 2 {
		t.Fatalf("expected 2 retry log lines on the injected logger, got %d:\n%s", got, logs.String())
	}
}

func TestExhaustedRetriesSurfaceAsTemporary(t *testing.T) {
	exec := NewExecutor(fastRetries(), nil)

	attempts := 0
	err := exec.Execute(context.Background(), "extract", func(context.Context) error {
		attempts++
		return errBusy
	}, classifyTest)
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	wrapped := Wrap("extract", err, classifyTest)
	if !errors.Is(wrapped, domain.ErrTemporary) || !errors.Is(wrapped, errBusy) {
		t.Fatalf("expected temporary wrapping the cause, got %v", wrapped)
	}
	if !domain.IsRetriable(wrapped) {
		t.Fatalf("temporary upstream failure must stay retriable for the job queue")
	}
}

func TestPermanentRejectionIsNotRetried(t *testing.T) {
	exec := NewExecutor(fastRetries(), nil)

	attempts := 0
	err := exec.Execute(context.Background(), "extract", func(context.Context) error {
		attempts++
		return errRejected
	}, classifyTest)
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
	wrapped := Wrap("extract", err, classifyTest)
	if !errors.Is(wrapped, domain.ErrPermanent) {
		t.Fatalf("expected permanent kind, got %v", wrapped)
	}
	if domain.IsRetriable(wrapped) {
		t.Fatalf("a rejected request must not be requeued")
	}
}

func TestOpenBreakerSurfacesAsTemporary(t *testing.T) {
	cfg := fastRetries()
	cfg.RetryMaxAttempts = 1
	cfg.BreakerEnabled = true
	cfg.BreakerMinRequests = 2
	cfg.BreakerFailureRatio = 0.5
	cfg.BreakerOpenTimeout = time.Minute
	cfg.BreakerHalfOpenMaxCalls = 1
	exec := NewExecutor(cfg, nil)

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "extract", func(context.Context) error {
			return errBusy
		}, classifyTest)
		if !errors.Is(err, errBusy) {
			t.Fatalf("iteration %d: expected upstream error, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "extract", func(context.Context) error {
		t.Fatalf("open breaker must not call the upstream")
		return nil
	}, classifyTest)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state, got %v", err)
	}
	wrapped := Wrap("extract", err, classifyTest)
	if !errors.Is(wrapped, domain.ErrTemporary) || !domain.IsRetriable(wrapped) {
		t.Fatalf("open breaker must requeue the job, got %v", wrapped)
	}

	other := exec.Execute(context.Background(), "notify", func(context.Context) error { return nil }, classifyTest)
	if other != nil {
		t.Fatalf("breakers are per operation, got %v", other)
	}
}

func TestRejectionsDoNotTripBreaker(t *testing.T) {
	cfg := fastRetries()
	cfg.BreakerEnabled = true
	cfg.BreakerMinRequests = 2
	cfg.BreakerFailureRatio = 0.5
	exec := NewExecutor(cfg, nil)

	for i := 0; i < 5; i++ {
		_ = exec.Execute(context.Background(), "extract", func(context.Context) error {
			return errRejected
		}, classifyTest)
	}
	called := false
	err := exec.Execute(context.Background(), "extract", func(context.Context) error {
		called = true
		return nil
	}, classifyTest)
	if err != nil || !called {
		t.Fatalf("breaker should stay closed after rejections: called=%v err=%v", called, err)
	}
}

func TestDeadlineEndsRetriesAndStaysRetriable(t *testing.T) {
	cfg := fastRetries()
	cfg.RetryInitialBackoff = time.Second
	cfg.RetryMaxBackoff = time.Second
	cfg.BreakerEnabled = true
	cfg.BreakerMinRequests = 1
	exec := NewExecutor(cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	started := time.Now()
	attempts := 0
	err := exec.Execute(ctx, "extract", func(ctx context.Context) error {
		attempts++
		<-ctx.Done()
		return ctx.Err()
	}, classifyTest)
	if elapsed := time.Since(started); elapsed > 500*time.Millisecond {
		t.Fatalf("deadline should end the call promptly, took %s", elapsed)
	}
	if attempts != 1 {
		t.Fatalf("expired deadline must not be retried in-call, got %d attempts", attempts)
	}
	wrapped := Wrap("extract", err, classifyTest)
	if !errors.Is(wrapped, context.DeadlineExceeded) || errors.Is(wrapped, domain.ErrPermanent) {
		t.Fatalf("deadline should pass through unchanged, got %v", wrapped)
	}
	if !domain.IsRetriable(wrapped) {
		t.Fatalf("deadline must leave the job retriable")
	}

	next := exec.Execute(context.Background(), "extract", func(context.Context) error { return nil }, classifyTest)
	if next != nil {
		t.Fatalf("deadline must not count toward the breaker, got %v", next)
	}
}

func TestWrapLeavesUnclassifiedAndKindedErrors(t *testing.T) {
	plain := errors.New("unexpected EOF")
	if got := Wrap("extract", plain, classifyTest); got != plain {
		t.Fatalf("unclassified error should pass through, got %v", got)
	}
	invalid := domain.WrapError(domain.ErrTemporary, "extract", errBusy)
	if got := Wrap("extract", invalid, classifyTest); got != invalid {
		t.Fatalf("already kinded error should not be wrapped twice, got %v", got)
	}
	if Wrap("extract", nil, classifyTest) != nil {
		t.Fatalf("nil should stay nil")
	}
}

func TestNormalizeFillsZeroFields(t *testing.T) {
	cfg := Config{RetryInitialBackoff: time.Second, RetryMaxBackoff: time.Millisecond}.normalize()
	def := DefaultConfig()
	if cfg.RetryMaxAttempts != def.RetryMaxAttempts || cfg.BreakerMinRequests != def.BreakerMinRequests {
		t.Fatalf("zero fields should take defaults: %+v", cfg)
	}
	if cfg.RetryMaxBackoff != time.Second {
		t.Fatalf("max backoff must not be below the initial backoff, got %s", cfg.RetryMaxBackoff)
	}
}
