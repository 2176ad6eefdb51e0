package swarm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func countingTasks(n int, counter *atomic.Int64, failEvery int) []Task {
	tasks := make([]Task, n)
	for i := range tasks {
		i := i
		tasks[i] = func(ctx context.Context) error {
			counter.Add(1)
			if failEvery > 0 && i%failEvery == 0 {
				return errors.New("boom")
			}
			return nil
		}
	}
	return tasks
}

func TestRunBatch_WithoutPool(t *testing.T) {
	e := NewEngine(WithLimits(3, 1, 3))
	var n atomic.Int64

	if err := e.RunBatch(context.Background(), countingTasks(20, &n, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Load() != 20 {
		t.Errorf("Expected 20 tasks run, got %d", n.Load())
	}
	if got := e.GetStats().TasksCompleted; got != 20 {
		t.Errorf("Expected 20 completed, got %d", got)
	}
}

func TestRunBatch_JoinsErrors(t *testing.T) {
	e := NewEngine()
	var n atomic.Int64

	err := e.RunBatch(context.Background(), countingTasks(10, &n, 5))
	if err == nil {
		t.Fatal("expected joined error")
	}
	if n.Load() != 10 {
		t.Errorf("a failing task must not cancel the others, ran %d", n.Load())
	}
	if got := e.GetStats().TasksFailed; got != 2 {
		t.Errorf("Expected 2 failed, got %d", got)
	}
}

func TestRunBatch_OnPool(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := NewEngine(WithLimits(4, 1, 8))
	e.Start(ctx)
	defer e.Stop()

	var n atomic.Int64
	done := make(chan error, 1)
	go func() { done <- e.RunBatch(ctx, countingTasks(50, &n, 0)) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("batch did not finish")
	}
	if n.Load() != 50 {
		t.Errorf("Expected 50 tasks run, got %d", n.Load())
	}
}

func TestThrottleShrinksPool(t *testing.T) {
	throttle := errors.New("slow down")
	e := NewEngine(WithLimits(8, 1, 8), WithThrottle(func(err error) bool { return errors.Is(err, throttle) }))
	e.aimd.lastChange = time.Time{}

	_ = e.RunBatch(context.Background(), []Task{func(context.Context) error { return throttle }})
	if got := e.GetStats().Concurrency; got != 4 {
		t.Errorf("Expected concurrency halved to 4, got %d", got)
	}
}

func TestStop_Idempotent(t *testing.T) {
	e := NewEngine()
	e.Start(context.Background())
	e.Stop()
	e.Stop()

	if err := e.Submit(context.Background(), func(context.Context) error { return nil }); !errors.Is(err, ErrStopped) {
		t.Errorf("Expected ErrStopped, got %v", err)
	}
}

func TestRunBatch_RecoversPanic(t *testing.T) {
	var n atomic.Int64
	tasks := append(countingTasks(5, &n, 0), func(context.Context) error { panic("boom") })

	for name, start := range map[string]bool{"local": false, "pool": true} {
		t.Run(name, func(t *testing.T) {
			n.Store(0)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			e := NewEngine(WithLimits(2, 1, 4))
			if start {
				e.Start(ctx)
				defer e.Stop()
			}

			err := e.RunBatch(ctx, tasks)
			if !errors.Is(err, ErrTaskPanicked) {
				t.Fatalf("Expected ErrTaskPanicked, got %v", err)
			}
			if n.Load() != 5 {
				t.Errorf("a panicking task must not stop the others, ran %d", n.Load())
			}
			// Pool workers update stats after the batch is released.
			if got := e.GetStats().TasksFailed; !start && got != 1 {
				t.Errorf("Expected 1 failed task, got %d", got)
			}
		})
	}
}

func TestRunBatch_OnPoolHonoursCallerDeadline(t *testing.T) {
	poolCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e := NewEngine(WithLimits(2, 1, 4))
	e.Start(poolCtx)
	defer e.Stop()

	ctx, cancelBatch := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelBatch()

	began := time.Now()
	err := e.RunBatch(ctx, []Task{func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(3 * time.Second):
			return nil
		}
	}})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(began); elapsed > time.Second {
		t.Errorf("task ignored the caller deadline, batch took %s", elapsed)
	}
}
