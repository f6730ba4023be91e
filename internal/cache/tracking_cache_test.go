package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/purgeworks/deletion-engine/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*TrackingCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
	})

	c, err := NewTrackingCache(rdb, time.Minute, nil)
	if err != nil {
		t.Fatalf("NewTrackingCache() error = %v", err)
	}
	return c, mr
}

func sampleTracking() *domain.DeletionTracking {
	return &domain.DeletionTracking{
		ID:             "tracking-1",
		IdempotencyKey: "key-1",
		RequesterID:    "user-1",
		TargetIDs:      domain.TargetIDs{"n-1", "n-2"},
		Status:         domain.DeletionSoftDeleted,
	}
}

func TestTrackingCacheRoundTrip(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t)
	ctx := context.Background()

	if _, ok := c.GetTracking(ctx, "tracking-1"); ok {
		t.Fatal("cold cache should miss")
	}

	c.SetTracking(ctx, sampleTracking())

	got, ok := c.GetTracking(ctx, "tracking-1")
	if !ok {
		t.Fatal("expected cache hit after SetTracking")
	}
	if got.RequesterID != "user-1" {
		t.Fatalf("requester = %s, want user-1", got.RequesterID)
	}
	if got.Status != domain.DeletionSoftDeleted {
		t.Fatalf("status = %s, want SOFT_DELETED", got.Status)
	}
	if len(got.TargetIDs) != 2 {
		t.Fatalf("targets = %v, want 2 ids", got.TargetIDs)
	}
}

func TestTrackingCacheInvalidateByTrackingID(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t)
	ctx := context.Background()

	c.SetTracking(ctx, sampleTracking())
	c.Invalidate(ctx, "tracking-1")

	if _, ok := c.GetTracking(ctx, "tracking-1"); ok {
		t.Fatal("expected miss after invalidation by tracking id")
	}
}

func TestTrackingCacheInvalidateByIdempotencyKey(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t)
	ctx := context.Background()

	c.SetTracking(ctx, sampleTracking())

	// Async consumers only know the idempotency key; the alias resolves it.
	c.Invalidate(ctx, "key-1")

	if _, ok := c.GetTracking(ctx, "tracking-1"); ok {
		t.Fatal("expected miss after invalidation by idempotency key")
	}
}

func TestTrackingCacheCorruptEntryDropped(t *testing.T) {
	t.Parallel()

	c, mr := newTestCache(t)
	ctx := context.Background()

	if err := mr.Set("deletion:tracking:tracking-1", "{not json"); err != nil {
		t.Fatalf("miniredis set error = %v", err)
	}

	if _, ok := c.GetTracking(ctx, "tracking-1"); ok {
		t.Fatal("corrupt entry should read as a miss")
	}
	if mr.Exists("deletion:tracking:tracking-1") {
		t.Fatal("corrupt entry should be deleted")
	}
}

func TestTrackingCacheEntriesExpire(t *testing.T) {
	t.Parallel()

	c, mr := newTestCache(t)
	ctx := context.Background()

	c.SetTracking(ctx, sampleTracking())
	mr.FastForward(2 * time.Minute)

	if _, ok := c.GetTracking(ctx, "tracking-1"); ok {
		t.Fatal("expected miss after TTL expiry")
	}
}
