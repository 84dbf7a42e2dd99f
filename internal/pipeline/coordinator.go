package pipeline

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// CoordinatorConfig controls request/response matching for server use.
type CoordinatorConfig struct {
	WaitTimeout   time.Duration // per-request result wait
	SweepInterval time.Duration // orphaned-result sweep cadence
	ResultTTL     time.Duration // age after which unclaimed results are dropped
}

// DefaultCoordinatorConfig returns the server defaults.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		WaitTimeout:   10 * time.Second,
		SweepInterval: 30 * time.Second,
		ResultTTL:     60 * time.Second,
	}
}

func (c *CoordinatorConfig) applyDefaults() {
	d := DefaultCoordinatorConfig()
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = d.WaitTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	if c.ResultTTL <= 0 {
		c.ResultTTL = d.ResultTTL
	}
}

// ErrWaitTimeout is returned when a result does not arrive in time. The
// task still completes; its result is swept later.
var ErrWaitTimeout = errors.New("timed out waiting for result")

// ErrQueueFull is returned when the scheduler rejects a submission.
var ErrQueueFull = errors.New("scheduler queue is full")

type storedResult struct {
	result  *TaskResult
	arrived time.Time
}

// Coordinator owns the submission-to-reply identity mapping for
// concurrent callers sharing one scheduler. It allocates monotonic task
// ids, collects results off the scheduler's channel into a keyed store,
// and wakes the waiter each result belongs to.
type Coordinator struct {
	cfg   CoordinatorConfig
	sched *Scheduler

	mu    sync.Mutex
	cond  *sync.Cond
	store map[uint64]storedResult

	nextID    atomic.Uint64
	done      chan struct{}
	collectWG sync.WaitGroup
}

// NewCoordinator wraps a started scheduler. The collector goroutine
// runs until the scheduler's result channel closes.
func NewCoordinator(sched *Scheduler, cfg CoordinatorConfig) *Coordinator {
	cfg.applyDefaults()
	c := &Coordinator{
		cfg:   cfg,
		sched: sched,
		store: make(map[uint64]storedResult),
		done:  make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)
	c.collectWG.Add(2)
	go c.collectLoop()
	go c.sweepLoop()
	return c
}

// NextID allocates a fresh task id. Ids are never reused.
func (c *Coordinator) NextID() uint64 { return c.nextID.Add(1) }

// Submit pushes one image into the scheduler under a fresh id, blocking
// until admitted or ctx expires.
func (c *Coordinator) Submit(ctx context.Context, img image.Image, cfg TaskConfig) (uint64, error) {
	id := c.NextID()
	task := &Task{ID: id, Image: img, Config: cfg, SubmittedAt: time.Now()}
	if err := c.sched.PushTaskContext(ctx, task); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return 0, ErrQueueFull
		}
		return 0, err
	}
	return id, nil
}

// Wait blocks until the result for id arrives, claiming and removing it
// from the store, or until the timeout elapses.
func (c *Coordinator) Wait(id uint64, timeout time.Duration) (*TaskResult, error) {
	if timeout <= 0 {
		timeout = c.cfg.WaitTimeout
	}
	deadline := time.Now().Add(timeout)
	// sync.Cond has no timed wait; a timer broadcast wakes the loop so
	// it can observe the deadline.
	timer := time.AfterFunc(timeout, func() {
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	defer timer.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		if sr, ok := c.store[id]; ok {
			delete(c.store, id)
			return sr.result, nil
		}
		if time.Now().After(deadline) {
			slog.Warn("Timed out waiting for task result", "task_id", id)
			return nil, ErrWaitTimeout
		}
		c.cond.Wait()
	}
}

// Do submits one image and waits for its result with the default timeout.
func (c *Coordinator) Do(ctx context.Context, img image.Image, cfg TaskConfig) (*TaskResult, error) {
	id, err := c.Submit(ctx, img, cfg)
	if err != nil {
		return nil, err
	}
	return c.Wait(id, c.cfg.WaitTimeout)
}

// Close stops the sweeper and waits for the collector to drain. The
// scheduler must be stopped first so the result channel closes.
func (c *Coordinator) Close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	c.collectWG.Wait()
}

// collectLoop pulls results off the scheduler and files them by id.
func (c *Coordinator) collectLoop() {
	defer c.collectWG.Done()
	for result := range c.sched.Results() {
		c.mu.Lock()
		c.store[result.ID] = storedResult{result: result, arrived: time.Now()}
		c.mu.Unlock()
		c.cond.Broadcast()
	}
	// Wake any remaining waiters so they can time out promptly.
	c.mu.Lock()
	c.cond.Broadcast()
	c.mu.Unlock()
}

// sweepLoop drops results whose waiter gave up.
func (c *Coordinator) sweepLoop() {
	defer c.collectWG.Done()
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-c.cfg.ResultTTL)
			c.mu.Lock()
			for id, sr := range c.store {
				if sr.arrived.Before(cutoff) {
					delete(c.store, id)
					slog.Debug("Swept unclaimed result", "task_id", id)
				}
			}
			c.mu.Unlock()
		}
	}
}
