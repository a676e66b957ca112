package bootstrap

import (
	"testing"
	"time"

	"github.com/kirillkom/brand-soul/internal/config"
)

func TestResilienceConfigFollowsProjectConfig(t *testing.T) {
	got := resilienceConfig(config.Config{
		RetryMaxAttempts:        4,
		RetryInitialBackoff:     50 * time.Millisecond,
		RetryMaxBackoff:         time.Second,
		BreakerEnabled:          true,
		BreakerMinRequests:      6,
		BreakerFailureRatio:     0.25,
		BreakerOpenTimeout:      time.Minute,
		BreakerHalfOpenMaxCalls: -1,
	})
	if got.RetryMaxAttempts != 4 || got.RetryInitialBackoff != 50*time.Millisecond || got.RetryMaxBackoff != time.Second {
		t.Fatalf("retry settings not carried over: %+v", got)
	}
	if !got.BreakerEnabled || got.BreakerMinRequests != 6 || got.BreakerFailureRatio != 0.25 || got.BreakerOpenTimeout != time.Minute {
		t.Fatalf("breaker settings not carried over: %+v", got)
	}
	if got.BreakerHalfOpenMaxCalls != 0 {
		t.Fatalf("negative half-open calls should clamp to zero and take the default, got %d", got.BreakerHalfOpenMaxCalls)
	}
}
