package lock

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

func TestMemory_ExclusiveUntilRelease(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	release, err := m.TryAcquire(ctx, "poster/observer", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := m.TryAcquire(ctx, "poster/observer", time.Minute); !errors.Is(err, ErrHeld) {
		t.Fatalf("expected ErrHeld, got %v", err)
	}
	if r2, err := m.TryAcquire(ctx, "other/observer", time.Minute); err != nil {
		t.Fatalf("independent key: %v", err)
	} else {
		r2()
	}
	release()
	release()
	if _, err := m.TryAcquire(ctx, "poster/observer", time.Minute); err != nil {
		t.Fatalf("reacquire: %v", err)
	}
}

func TestMemory_ExpiredLeaseAndStaleRelease(t *testing.T) {
	now := time.Unix(0, 0)
	m := &Memory{now: func() time.Time { return now }}
	ctx := context.Background()
	stale, err := m.TryAcquire(ctx, "k", time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	now = now.Add(2 * time.Second)
	fresh, err := m.TryAcquire(ctx, "k", time.Second)
	if err != nil {
		t.Fatalf("expired lease should be reclaimable: %v", err)
	}
	stale()
	if _, err := m.TryAcquire(ctx, "k", time.Second); !errors.Is(err, ErrHeld) {
		t.Fatalf("stale release must not free the new lease")
	}
	fresh()
}

func TestRedis_Exclusive(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	r, err := NewRedis(ctx, addr, "", 0)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer r.Close()
	r.Prefix = "revimg:test:" + t.Name() + ":"
	release, err := r.TryAcquire(ctx, "pair", 5*time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := r.TryAcquire(ctx, "pair", 5*time.Second); !errors.Is(err, ErrHeld) {
		t.Fatalf("expected ErrHeld, got %v", err)
	}
	release()
	again, err := r.TryAcquire(ctx, "pair", 5*time.Second)
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	again()
}
