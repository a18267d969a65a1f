package devicepool

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_AcquireFillsAndReuses(t *testing.T) {
	var built int32
	pool := NewPool(2, func() (int, error) {
		return int(atomic.AddInt32(&built, 1)), nil
	}, func(int) {})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == 0 {
		t.Fatalf("expected a nonzero device, got %d", got)
	}
}

func TestPool_SetDefaultBypassesQueue(t *testing.T) {
	pool := NewPool(2, func() (int, error) {
		return 0, fmt.Errorf("newFn should never be called once a default is set")
	}, func(int) {})

	pool.SetDefault(42)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Errorf("got %d, want 42 (the default)", got)
	}
}

func TestPool_AcquireRespectsContextCancellation(t *testing.T) {
	pool := NewPool[int](1, func() (int, error) {
		return 0, fmt.Errorf("refill never succeeds in this test")
	}, func(int) {})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := pool.Acquire(ctx); err == nil {
		t.Fatal("expected context deadline error")
	}
}

func TestPool_RefillsToTargetAfterAcquire(t *testing.T) {
	var closed int32
	pool := NewPool(1, func() (int, error) {
		return 1, nil
	}, func(int) { atomic.AddInt32(&closed, 1) })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := pool.Acquire(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deadline := time.Now().Add(200 * time.Millisecond)
	for pool.Len() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if pool.Len() != 1 {
		t.Fatalf("expected pool to refill to target 1, len=%d", pool.Len())
	}
}
