// Package swarm runs fan-out work (evidence collection, batch scoring) on a
// worker pool whose width follows AIMD feedback.
package swarm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrStopped is returned when submitting to a stopped engine.
	ErrStopped = errors.New("swarm: engine stopped")
	// ErrTaskPanicked wraps a panic recovered from a task.
	ErrTaskPanicked = errors.New("swarm: task panicked")
)

// Task is a unit of work.
type Task func(ctx context.Context) error

// ThrottleFunc reports whether err means the callee wants us to back off.
type ThrottleFunc func(err error) bool

// Engine manages the worker pool.
type Engine struct {
	aimd      *AIMD
	tasks     chan Task
	wg        sync.WaitGroup
	quit      chan struct{}
	stopOnce  sync.Once
	running   atomic.Bool
	throttled ThrottleFunc

	mu     sync.Mutex
	active int
	stats  Stats
}

// Stats holds runtime statistics for the engine.
type Stats struct {
	ActiveWorkers  int   `json:"active_workers"`
	Concurrency    int   `json:"concurrency"`
	TasksCompleted int64 `json:"tasks_completed"`
	TasksFailed    int64 `json:"tasks_failed"`
}

type Option func(*Engine)

// WithLimits sets the starting, minimum and maximum worker count.
func WithLimits(start, min, max int) Option {
	return func(e *Engine) { e.aimd = NewAIMD(start, min, max) }
}

// WithThrottle installs the back-off classifier. Without it no error counts as throttling.
func WithThrottle(fn ThrottleFunc) Option {
	return func(e *Engine) { e.throttled = fn }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		aimd:      NewAIMD(4, 1, 32),
		tasks:     make(chan Task, 256),
		quit:      make(chan struct{}),
		throttled: func(error) bool { return false },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start begins the scaling loop. Until Start is called RunBatch executes with a
// local bounded fan-out instead of the pool.
func (e *Engine) Start(ctx context.Context) {
	if !e.running.CompareAndSwap(false, true) {
		return
	}
	e.wg.Add(1)
	go e.loop(ctx)
}

// Submit queues t on the pool.
func (e *Engine) Submit(ctx context.Context, t Task) error {
	select {
	case <-e.quit:
		return ErrStopped
	default:
	}
	select {
	case e.tasks <- t:
		return nil
	case <-e.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop signals workers to exit and waits for in-flight tasks. Tasks still queued
// are run with a cancelled context so their callers are released. Safe to call twice.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.quit)
		e.running.Store(false)
	})
	e.wg.Wait()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for {
		select {
		case t := <-e.tasks:
			_ = guard(ctx, t)
		default:
			return
		}
	}
}

// GetStats returns current engine stats.
func (e *Engine) GetStats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	s.ActiveWorkers = e.active
	s.Concurrency = e.aimd.GetConcurrency()
	return s
}

// RunBatch executes every task and waits for all of them. Failures are joined;
// one failing task does not cancel the others.
func (e *Engine) RunBatch(ctx context.Context, tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}
	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	collect := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	if e.running.Load() {
		for _, t := range tasks {
			t := t
			wg.Add(1)
			// The worker context only signals pool shutdown; the task sees the batch context.
			err := e.Submit(ctx, func(poolCtx context.Context) error {
				defer wg.Done()
				if err := poolCtx.Err(); err != nil {
					collect(err)
					return err
				}
				err := guard(ctx, t)
				collect(err)
				return err
			})
			if err != nil {
				wg.Done()
				collect(err)
			}
		}
		wg.Wait()
		return errors.Join(errs...)
	}

	sem := make(chan struct{}, e.aimd.GetConcurrency())
	for _, t := range tasks {
		t := t
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			collect(ctx.Err())
			wg.Wait()
			return errors.Join(errs...)
		}
		wg.Add(1)
		go func() {
			defer func() { <-sem; wg.Done() }()
			collect(e.run(ctx, t))
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// guard runs t and turns a panic into ErrTaskPanicked, recorded on the span in ctx.
func guard(ctx context.Context, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
			span := trace.SpanFromContext(ctx)
			span.RecordError(err)
			span.SetStatus(codes.Error, "task panicked")
		}
	}()
	return t(ctx)
}

func (e *Engine) run(ctx context.Context, t Task) error {
	start := time.Now()
	err := guard(ctx, t)
	e.aimd.Feedback(time.Since(start), err != nil && e.throttled(err))

	e.mu.Lock()
	e.stats.TasksCompleted++
	if err != nil {
		e.stats.TasksFailed++
	}
	e.mu.Unlock()
	return err
}

func (e *Engine) loop(ctx context.Context) {
	defer e.wg.Done()
	defer e.running.Store(false)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	e.scale(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.quit:
			return
		case <-ticker.C:
			e.scale(ctx)
		}
	}
}

// scale spawns workers up to the AIMD target. Surplus workers retire after their current task.
func (e *Engine) scale(ctx context.Context) {
	e.mu.Lock()
	spawn := e.aimd.GetConcurrency() - e.active
	e.active += max(spawn, 0)
	e.mu.Unlock()

	for i := 0; i < spawn; i++ {
		e.wg.Add(1)
		go e.worker(ctx)
	}
}

func (e *Engine) retire() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active > e.aimd.GetConcurrency() {
		e.active--
		return true
	}
	return false
}

func (e *Engine) worker(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			e.exit()
			return
		case <-e.quit:
			e.exit()
			return
		case task := <-e.tasks:
			_ = e.run(ctx, task)
			if e.retire() {
				return
			}
		}
	}
}

func (e *Engine) exit() {
	e.mu.Lock()
	e.active--
	e.mu.Unlock()
}
