package telegram

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPoolRunsTasksAndRecoversPanics(t *testing.T) {
	pool := NewWorkerPool(2, 10)

	var done int32
	pool.Submit(Task{Name: "panic", Run: func(ctx context.Context) { panic("boom") }})
	for i := 0; i < 5; i++ {
		if !pool.Submit(Task{Name: "ok", Ctx: context.Background(), Run: func(ctx context.Context) {
			atomic.AddInt32(&done, 1)
		}}) {
			t.Fatalf("expected task %d to be accepted", i)
		}
	}

	pool.Shutdown()

	if got := atomic.LoadInt32(&done); got != 5 {
		t.Fatalf("expected 5 completed tasks, got %d", got)
	}
}

func TestWorkerPoolRejectsAfterShutdown(t *testing.T) {
	pool := NewWorkerPool(1, 1)
	pool.Shutdown()
	pool.Shutdown()

	if pool.Submit(Task{Name: "late", Run: func(ctx context.Context) {}}) {
		t.Fatalf("expected submit after shutdown to be rejected")
	}
}

func TestWorkerPoolSubmitDropsWhenFull(t *testing.T) {
	pool := NewWorkerPool(1, 1)
	release := make(chan struct{})
	started := make(chan struct{})

	pool.Submit(Task{Name: "block", Run: func(ctx context.Context) {
		close(started)
		<-release
	}})
	<-started

	if !pool.Submit(Task{Name: "queued", Run: func(ctx context.Context) {}}) {
		t.Fatalf("expected queued task to be accepted")
	}
	if pool.Submit(Task{Name: "overflow", Run: func(ctx context.Context) {}}) {
		t.Fatalf("expected overflow task to be dropped")
	}

	stats := pool.Stats()
	if stats.Workers != 1 || stats.QueueCapacity != 1 || stats.QueueLength != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	close(release)
	pool.Shutdown()
}

func TestWorkerPoolSubmitWaitBlocksUntilSlotFrees(t *testing.T) {
	pool := NewWorkerPool(1, 1)
	release := make(chan struct{})
	started := make(chan struct{})

	pool.Submit(Task{Name: "block", Run: func(ctx context.Context) {
		close(started)
		<-release
	}})
	<-started
	if err := pool.SubmitWait(context.Background(), Task{Name: "queued", Run: func(ctx context.Context) {}}); err != nil {
		t.Fatalf("expected queued task to be accepted: %v", err)
	}

	var ran int32
	submitted := make(chan error, 1)
	go func() {
		submitted <- pool.SubmitWait(context.Background(), Task{Name: "ingest", Run: func(ctx context.Context) {
			atomic.AddInt32(&ran, 1)
		}})
	}()

	select {
	case err := <-submitted:
		t.Fatalf("expected submit to wait while the queue is full, got %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)

	select {
	case err := <-submitted:
		if err != nil {
			t.Fatalf("expected submit to succeed once a slot frees: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("submit still blocked after the worker was released")
	}

	pool.Shutdown()
	if got := atomic.LoadInt32(&ran); got != 1 {
		t.Fatalf("expected waiting task to run once, ran %d times", got)
	}
}

func TestWorkerPoolSubmitWaitHonorsContext(t *testing.T) {
	pool := NewWorkerPool(1, 1)
	release := make(chan struct{})
	started := make(chan struct{})

	pool.Submit(Task{Name: "block", Run: func(ctx context.Context) {
		close(started)
		<-release
	}})
	<-started
	pool.Submit(Task{Name: "queued", Run: func(ctx context.Context) {}})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := pool.SubmitWait(ctx, Task{Name: "ingest", Run: func(ctx context.Context) {}}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	close(release)
	pool.Shutdown()

	if err := pool.SubmitWait(context.Background(), Task{Name: "late", Run: func(ctx context.Context) {}}); !errors.Is(err, ErrWorkerPoolClosed) {
		t.Fatalf("expected ErrWorkerPoolClosed after shutdown, got %v", err)
	}
}
