package memcache

import (
	"context"
	"testing"
	"time"
)

func TestGetSetDeletePrefix(t *testing.T) {
	c := New(10, time.Minute)
	ctx := context.Background()

	if _, ok, _ := c.Get(ctx, "context:acme:a"); ok {
		t.Fatalf("expected miss on empty cache")
	}
	for _, key := range []string{"context:acme:a", "context:acme:b", "context:acme-labs:a"} {
		if err := c.Set(ctx, key, []byte(key), time.Minute); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}
	if v, ok, _ := c.Get(ctx, "context:acme:a"); !ok || string(v) != "context:acme:a" {
		t.Fatalf("Get() = %q, %v", v, ok)
	}

	if err := c.DeletePrefix(ctx, "context:acme:"); err != nil {
		t.Fatalf("DeletePrefix() error = %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("expected only the other brand to remain, len=%d", c.Len())
	}
	if _, ok, _ := c.Get(ctx, "context:acme-labs:a"); !ok {
		t.Fatalf("prefix delete removed a different brand")
	}
}

func TestEntriesExpire(t *testing.T) {
	c := New(10, 20*time.Millisecond)
	ctx := context.Background()
	_ = c.Set(ctx, "k", []byte("v"), time.Hour)
	time.Sleep(60 * time.Millisecond)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatalf("expected entry to expire")
	}
}
