package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncerRunsOnlyLatestTask(t *testing.T) {
	d := NewDebouncer(30*time.Millisecond, nil)
	var mu sync.Mutex
	var ran []int
	for i := 1; i <= 3; i++ {
		i := i
		if !d.Schedule("conv-1", func(context.Context) {
			mu.Lock()
			ran = append(ran, i)
			mu.Unlock()
		}) {
			t.Fatalf("schedule %d rejected", i)
		}
	}
	if got := d.Pending(); got != 1 {
		t.Fatalf("pending = %d, want 1", got)
	}

	time.Sleep(100 * time.Millisecond)
	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(ran) != 1 || ran[0] != 3 {
		t.Fatalf("ran = %v, want [3]", ran)
	}
}

func TestDebouncerKeysAreIndependent(t *testing.T) {
	d := NewDebouncer(10*time.Millisecond, nil)
	var count int32
	for _, key := range []string{"a", "b", "c"} {
		d.Schedule(key, func(context.Context) { atomic.AddInt32(&count, 1) })
	}
	time.Sleep(60 * time.Millisecond)
	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if got := atomic.LoadInt32(&count); got != 3 {
		t.Fatalf("ran %d tasks, want 3", got)
	}
}

func TestDebouncerSerializesSameKey(t *testing.T) {
	d := NewDebouncer(5*time.Millisecond, nil)
	var active, maxActive int32
	task := func(context.Context) {
		n := atomic.AddInt32(&active, 1)
		for {
			m := atomic.LoadInt32(&maxActive)
			if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&active, -1)
	}

	d.Schedule("conv-1", task)
	time.Sleep(15 * time.Millisecond)
	// The first task is running; this one fires while it still holds the key.
	d.Schedule("conv-1", task)
	time.Sleep(100 * time.Millisecond)
	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if got := atomic.LoadInt32(&maxActive); got != 1 {
		t.Fatalf("max concurrent runs = %d, want 1", got)
	}
}

func TestDebouncerShutdownFlushesPending(t *testing.T) {
	d := NewDebouncer(time.Hour, nil)
	done := make(chan struct{})
	d.Schedule("conv-1", func(ctx context.Context) {
		if ctx.Err() != nil {
			t.Errorf("task context already cancelled")
		}
		close(done)
	})

	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	select {
	case <-done:
	default:
		t.Fatalf("pending task was not run on shutdown")
	}
	if d.Schedule("conv-2", func(context.Context) {}) {
		t.Fatalf("schedule after shutdown should be rejected")
	}
}

func TestDebouncerShutdownHonoursDeadline(t *testing.T) {
	d := NewDebouncer(time.Hour, nil)
	release := make(chan struct{})
	d.Schedule("conv-1", func(ctx context.Context) {
		select {
		case <-ctx.Done():
		case <-release:
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Shutdown(ctx); err != context.DeadlineExceeded {
		t.Fatalf("Shutdown err = %v, want deadline exceeded", err)
	}
}
