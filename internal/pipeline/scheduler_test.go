package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"testing"
	"time"

	"github.com/deepx-ocr/dxocr/internal/detector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collectResults drains n results from the scheduler keyed by id.
func collectResults(t *testing.T, s *Scheduler, n int) map[uint64]*TaskResult {
	t.Helper()
	out := make(map[uint64]*TaskResult, n)
	timeout := time.After(10 * time.Second)
	for len(out) < n {
		select {
		case r, ok := <-s.Results():
			require.True(t, ok, "result channel closed early")
			_, dup := out[r.ID]
			require.False(t, dup, "duplicate result for task %d", r.ID)
			out[r.ID] = r
		case <-timeout:
			t.Fatalf("timed out after %d/%d results", len(out), n)
		}
	}
	return out
}

func pushOK(t *testing.T, s *Scheduler, task *Task) {
	t.Helper()
	require.NoError(t, s.PushTaskContext(context.Background(), task))
}

func TestSchedulerSingleTask(t *testing.T) {
	pipe := testPipeline(fixedDetector(3), &mockRecognizer{text: "line", conf: 0.9})
	s := NewScheduler(pipe, smallSchedulerConfig())
	s.Start()
	defer s.Stop()

	pushOK(t, s, &Task{ID: 7, Image: testImage(200, 100), Config: DefaultTaskConfig()})
	results := collectResults(t, s, 1)

	r := results[7]
	require.NotNil(t, r)
	require.False(t, r.Failed())
	require.Len(t, r.Entries, 3)
	for i, e := range r.Entries {
		assert.Equal(t, i, e.Index)
		assert.Equal(t, "line", e.Text)
		assert.InDelta(t, 0.9, e.Confidence, 1e-9)
	}
	assert.NotNil(t, r.ProcessedImage)
}

func TestSchedulerZeroDetections(t *testing.T) {
	// Blank page: detection legally returns zero quads and the task
	// completes immediately with an empty entry list.
	pipe := testPipeline(fixedDetector(0), &mockRecognizer{text: "x", conf: 0.9})
	s := NewScheduler(pipe, smallSchedulerConfig())
	s.Start()
	defer s.Stop()

	pushOK(t, s, &Task{ID: 1, Image: testImage(640, 480), Config: DefaultTaskConfig()})
	results := collectResults(t, s, 1)

	r := results[1]
	require.False(t, r.Failed())
	assert.NotNil(t, r.Entries)
	assert.Empty(t, r.Entries)
}

func TestSchedulerScoreThresholdFilters(t *testing.T) {
	pipe := testPipeline(fixedDetector(4), &mockRecognizer{text: "hello", conf: 0.95})
	s := NewScheduler(pipe, smallSchedulerConfig())
	s.Start()
	defer s.Stop()

	strict := DefaultTaskConfig()
	strict.RecScoreThresh = 0.99
	lax := DefaultTaskConfig()

	pushOK(t, s, &Task{ID: 1, Image: testImage(200, 150), Config: strict})
	pushOK(t, s, &Task{ID: 2, Image: testImage(200, 150), Config: lax})
	results := collectResults(t, s, 2)

	// All four crops filtered, but the pending counter still drained
	// and the task completed cleanly.
	require.False(t, results[1].Failed())
	assert.Empty(t, results[1].Entries)
	assert.Len(t, results[2].Entries, 4)
}

func TestSchedulerIdentityPreservation(t *testing.T) {
	pipe := testPipeline(widthDetector(), &mockRecognizer{text: "t", conf: 0.9})
	s := NewScheduler(pipe, smallSchedulerConfig())
	s.Start()
	defer s.Stop()

	const n = 24
	for i := 1; i <= n; i++ {
		m := i % 4 // 0..3 boxes per task
		pushOK(t, s, &Task{
			ID:     uint64(i),
			Image:  testImage(100+10*m, 120),
			Config: DefaultTaskConfig(),
		})
	}
	results := collectResults(t, s, n)

	require.Len(t, results, n)
	for i := 1; i <= n; i++ {
		r := results[uint64(i)]
		require.NotNil(t, r, "missing result for task %d", i)
		require.False(t, r.Failed())
		assert.Len(t, r.Entries, i%4, "task %d", i)
	}
}

func TestSchedulerErrorContainment(t *testing.T) {
	// Detection fails only for the 150-wide image; other tasks and the
	// stage worker itself must be unaffected.
	det := &mockDetector{fn: func(img image.Image) ([]detector.TextBox, error) {
		if img.Bounds().Dx() == 150 {
			return nil, errors.New("probability map unavailable")
		}
		return stackedBoxes(2), nil
	}}
	pipe := testPipeline(det, &mockRecognizer{text: "ok", conf: 0.9})
	s := NewScheduler(pipe, smallSchedulerConfig())
	s.Start()
	defer s.Stop()

	pushOK(t, s, &Task{ID: 1, Image: testImage(200, 100), Config: DefaultTaskConfig()})
	pushOK(t, s, &Task{ID: 2, Image: testImage(150, 100), Config: DefaultTaskConfig()})
	pushOK(t, s, &Task{ID: 3, Image: testImage(200, 100), Config: DefaultTaskConfig()})
	results := collectResults(t, s, 3)

	assert.False(t, results[1].Failed())
	assert.True(t, results[2].Failed())
	assert.Equal(t, "detection", results[2].FailedStage)
	assert.False(t, results[3].Failed())

	// Worker survived: a later task still processes.
	pushOK(t, s, &Task{ID: 4, Image: testImage(200, 100), Config: DefaultTaskConfig()})
	late := collectResults(t, s, 1)
	assert.False(t, late[4].Failed())
}

func TestSchedulerRecognitionErrorFailsTask(t *testing.T) {
	pipe := testPipeline(fixedDetector(2), &mockRecognizer{err: errors.New("engine fault")})
	s := NewScheduler(pipe, smallSchedulerConfig())
	s.Start()
	defer s.Stop()

	pushOK(t, s, &Task{ID: 9, Image: testImage(200, 100), Config: DefaultTaskConfig()})
	results := collectResults(t, s, 1)
	require.True(t, results[9].Failed())
	assert.Equal(t, "recognition", results[9].FailedStage)
}

func TestSchedulerStopDrains(t *testing.T) {
	pipe := testPipeline(fixedDetector(2), &mockRecognizer{text: "x", conf: 0.9, delay: time.Millisecond})
	s := NewScheduler(pipe, smallSchedulerConfig())
	s.Start()

	const n = 10
	go func() {
		for i := 1; i <= n; i++ {
			_ = s.PushTaskContext(context.Background(), &Task{
				ID:     uint64(i),
				Image:  testImage(200, 100),
				Config: DefaultTaskConfig(),
			})
		}
	}()
	results := collectResults(t, s, n)
	s.Stop()

	submitted, succeeded, failed := s.Counters()
	assert.Equal(t, uint64(n), submitted)
	assert.Equal(t, submitted, succeeded+failed)
	assert.Len(t, results, n)

	// Channel is closed after Stop.
	_, ok := <-s.Results()
	assert.False(t, ok)
}

func TestSchedulerPushAfterStop(t *testing.T) {
	pipe := testPipeline(fixedDetector(0), &mockRecognizer{})
	s := NewScheduler(pipe, smallSchedulerConfig())
	s.Start()
	s.Stop()

	assert.False(t, s.PushTask(&Task{ID: 1, Image: testImage(50, 50)}))
	err := s.PushTaskContext(context.Background(), &Task{ID: 2, Image: testImage(50, 50)})
	assert.ErrorIs(t, err, ErrSchedulerStopped)
}

func TestSchedulerPushNonBlockingWhenFull(t *testing.T) {
	pipe := testPipeline(fixedDetector(0), &mockRecognizer{})
	cfg := smallSchedulerConfig()
	cfg.IntakeCapacity = 2
	s := NewScheduler(pipe, cfg)
	// Not started: nothing drains the intake queue.

	assert.True(t, s.PushTask(&Task{ID: 1, Image: testImage(50, 50)}))
	assert.True(t, s.PushTask(&Task{ID: 2, Image: testImage(50, 50)}))
	assert.False(t, s.PushTask(&Task{ID: 3, Image: testImage(50, 50)}))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := s.PushTaskContext(ctx, &Task{ID: 4, Image: testImage(50, 50)})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	s.Start()
	defer s.Stop()
	collectResults(t, s, 2)
}

func TestSchedulerReadingOrderAcrossCrops(t *testing.T) {
	// Detection emits boxes in scrambled order; recognition completes
	// out of order; the published entries are still in reading order.
	det := &mockDetector{fn: func(image.Image) ([]detector.TextBox, error) {
		return []detector.TextBox{
			{Quad: quadAt(10, 60, 80, 15), Score: 0.9},  // line 3
			{Quad: quadAt(10, 10, 80, 15), Score: 0.9},  // line 1
			{Quad: quadAt(10, 35, 80, 15), Score: 0.9},  // line 2
		}, nil
	}}
	pipe := testPipeline(det, &mockRecognizer{text: "t", conf: 0.9, delay: 2 * time.Millisecond})
	cfg := smallSchedulerConfig()
	cfg.RecWorkers = 3 // completions race
	s := NewScheduler(pipe, cfg)
	s.Start()
	defer s.Stop()

	pushOK(t, s, &Task{ID: 1, Image: testImage(200, 100), Config: DefaultTaskConfig()})
	results := collectResults(t, s, 1)

	entries := results[1].Entries
	require.Len(t, entries, 3)
	for i := range entries {
		assert.Equal(t, i, entries[i].Index)
	}
	assert.Less(t, entries[0].Quad[0].Y, entries[1].Quad[0].Y)
	assert.Less(t, entries[1].Quad[0].Y, entries[2].Quad[0].Y)
}

func TestSchedulerConcurrentProducers(t *testing.T) {
	pipe := testPipeline(fixedDetector(1), &mockRecognizer{text: "c", conf: 0.9})
	s := NewScheduler(pipe, smallSchedulerConfig())
	s.Start()
	defer s.Stop()

	const producers = 8
	const perProducer = 5
	for p := range producers {
		go func(base int) {
			for i := range perProducer {
				task := &Task{
					ID:     uint64(base*perProducer + i + 1),
					Image:  testImage(200, 100),
					Config: DefaultTaskConfig(),
				}
				_ = s.PushTaskContext(context.Background(), task)
			}
		}(p)
	}

	results := collectResults(t, s, producers*perProducer)
	assert.Len(t, results, producers*perProducer)
	for id, r := range results {
		assert.False(t, r.Failed(), "task %d failed: %v", id, r.Err)
	}
}

func TestStageErrorFormatting(t *testing.T) {
	err := &StageError{Stage: "detection", Err: errors.New("boom")}
	assert.Equal(t, "stage detection: boom", err.Error())
	assert.Equal(t, "boom", errors.Unwrap(err).Error())

	wrapped := fmt.Errorf("task: %w", err)
	var se *StageError
	assert.True(t, errors.As(wrapped, &se))
}
