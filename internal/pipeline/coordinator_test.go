package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startCoordinator(t *testing.T, det Detector, rec Recognizer, cfg CoordinatorConfig) (*Coordinator, *Scheduler) {
	t.Helper()
	pipe := testPipeline(det, rec)
	sched := NewScheduler(pipe, smallSchedulerConfig())
	sched.Start()
	coord := NewCoordinator(sched, cfg)
	t.Cleanup(func() {
		sched.Stop()
		coord.Close()
	})
	return coord, sched
}

func TestCoordinatorDo(t *testing.T) {
	coord, _ := startCoordinator(t,
		fixedDetector(2), &mockRecognizer{text: "hi", conf: 0.8},
		DefaultCoordinatorConfig())

	result, err := coord.Do(context.Background(), testImage(200, 100), DefaultTaskConfig())
	require.NoError(t, err)
	require.False(t, result.Failed())
	assert.Len(t, result.Entries, 2)
}

func TestCoordinatorIDsMonotonic(t *testing.T) {
	coord, _ := startCoordinator(t,
		fixedDetector(0), &mockRecognizer{},
		DefaultCoordinatorConfig())

	var prev uint64
	for range 10 {
		id := coord.NextID()
		assert.Greater(t, id, prev)
		prev = id
	}
}

func TestCoordinatorWaitTimeout(t *testing.T) {
	// Detection holds each task long enough for the waiter to give up.
	det := fixedDetector(1)
	det.delay = 150 * time.Millisecond
	coord, _ := startCoordinator(t,
		det, &mockRecognizer{text: "late", conf: 0.9},
		DefaultCoordinatorConfig())

	id, err := coord.Submit(context.Background(), testImage(200, 100), DefaultTaskConfig())
	require.NoError(t, err)

	_, err = coord.Wait(id, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrWaitTimeout)

	// The task still ran to completion; its result sits in the store
	// until claimed or swept.
	result, err := coord.Wait(id, 2*time.Second)
	require.NoError(t, err)
	assert.Len(t, result.Entries, 1)
}

func TestCoordinatorResultClaimedOnce(t *testing.T) {
	coord, _ := startCoordinator(t,
		fixedDetector(0), &mockRecognizer{},
		DefaultCoordinatorConfig())

	id, err := coord.Submit(context.Background(), testImage(100, 100), DefaultTaskConfig())
	require.NoError(t, err)

	_, err = coord.Wait(id, 2*time.Second)
	require.NoError(t, err)

	// Second wait on the same id finds nothing.
	_, err = coord.Wait(id, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrWaitTimeout)
}

// Each of K concurrent callers submits N tasks and must receive exactly
// its own results: the entry count encodes the caller identity.
func TestCoordinatorConcurrentCallers(t *testing.T) {
	coord, _ := startCoordinator(t,
		widthDetector(), &mockRecognizer{text: "t", conf: 0.9},
		DefaultCoordinatorConfig())

	const callers = 6
	const perCaller = 4

	var wg sync.WaitGroup
	errs := make(chan error, callers*perCaller)
	for c := range callers {
		wg.Add(1)
		go func(caller int) {
			defer wg.Done()
			want := caller % 4
			img := testImage(100+10*want, 120)
			for range perCaller {
				result, err := coord.Do(context.Background(), img, DefaultTaskConfig())
				if err != nil {
					errs <- fmt.Errorf("caller %d: %w", caller, err)
					return
				}
				if result.Failed() {
					errs <- fmt.Errorf("caller %d: task failed: %w", caller, result.Err)
					return
				}
				if len(result.Entries) != want {
					errs <- fmt.Errorf("caller %d: got %d entries, want %d",
						caller, len(result.Entries), want)
					return
				}
			}
		}(c)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestCoordinatorSweepDropsUnclaimed(t *testing.T) {
	cfg := CoordinatorConfig{
		WaitTimeout:   time.Second,
		SweepInterval: 20 * time.Millisecond,
		ResultTTL:     30 * time.Millisecond,
	}
	coord, _ := startCoordinator(t,
		fixedDetector(0), &mockRecognizer{}, cfg)

	id, err := coord.Submit(context.Background(), testImage(100, 100), DefaultTaskConfig())
	require.NoError(t, err)

	inStore := func() bool {
		coord.mu.Lock()
		defer coord.mu.Unlock()
		_, ok := coord.store[id]
		return ok
	}
	// The unclaimed result lands in the store first, then the sweeper
	// drops it once the TTL passes.
	require.Eventually(t, inStore, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return !inStore() }, 2*time.Second, 10*time.Millisecond)
}

func TestDefaultCoordinatorConfig(t *testing.T) {
	cfg := DefaultCoordinatorConfig()
	assert.Equal(t, 10*time.Second, cfg.WaitTimeout)

	var zero CoordinatorConfig
	zero.applyDefaults()
	assert.Equal(t, cfg, zero)
}
