package pipeline

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deepx-ocr/dxocr/internal/detector"
	"github.com/deepx-ocr/dxocr/internal/utils"
)

// SchedulerConfig sizes the stage worker pools and the bounded channels
// between them. Accelerator-bound stages default to one worker because
// the inference engine already pipelines submissions; the CPU-bound
// crop stage scales with the host.
type SchedulerConfig struct {
	IntakeCapacity int // admission bound
	StageCapacity  int // pre->det and det->crop channel capacity
	CropCapacity   int // crop->rec channel capacity
	ResultCapacity int // result channel capacity

	PreWorkers  int
	DetWorkers  int
	CropWorkers int
	RecWorkers  int
}

// DefaultSchedulerConfig returns the default stage sizing.
func DefaultSchedulerConfig() SchedulerConfig {
	cropWorkers := runtime.NumCPU() - 2
	if cropWorkers < 2 {
		cropWorkers = 2
	}
	return SchedulerConfig{
		IntakeCapacity: 16,
		StageCapacity:  8,
		CropCapacity:   64,
		ResultCapacity: 32,
		PreWorkers:     1,
		DetWorkers:     1,
		CropWorkers:    cropWorkers,
		RecWorkers:     1,
	}
}

func (c *SchedulerConfig) applyDefaults() {
	d := DefaultSchedulerConfig()
	if c.IntakeCapacity <= 0 {
		c.IntakeCapacity = d.IntakeCapacity
	}
	if c.StageCapacity <= 0 {
		c.StageCapacity = d.StageCapacity
	}
	if c.CropCapacity <= 0 {
		c.CropCapacity = d.CropCapacity
	}
	if c.ResultCapacity <= 0 {
		c.ResultCapacity = d.ResultCapacity
	}
	if c.PreWorkers <= 0 {
		c.PreWorkers = d.PreWorkers
	}
	if c.DetWorkers <= 0 {
		c.DetWorkers = d.DetWorkers
	}
	if c.CropWorkers <= 0 {
		c.CropWorkers = d.CropWorkers
	}
	if c.RecWorkers <= 0 {
		c.RecWorkers = d.RecWorkers
	}
}

// detItem carries a task whose whole-page preprocessing finished.
type detItem struct {
	task      *Task
	processed image.Image
	startedAt time.Time
}

// cropItem is a task with its detected boxes, awaiting crop fan-out.
type cropItem struct {
	detItem
	boxes    []detector.TextBox
	detTime  time.Duration
}

// recItem is one text line crop; an independent recognition unit that
// shares its parent's identity.
type recItem struct {
	parentID  uint64
	cropIndex int
	crop      image.Image
	quad      utils.Quad
	config    TaskConfig
}

// recDone is a recognition completion travelling to the fan-in worker.
type recDone struct {
	parentID  uint64
	cropIndex int
	entry     *TextEntry
	rotated   bool
	err       error
}

// pendingTask is the fan-in buffer for one task: one slot per crop,
// indexed by crop order, plus the remaining-completions counter.
type pendingTask struct {
	task      *Task
	processed image.Image
	entries   []*TextEntry
	remaining int
	startedAt time.Time
	detTime   time.Duration
	rotated   int
	err       error
	failedIn  string
}

// ErrSchedulerStopped is returned for submissions after Stop.
var ErrSchedulerStopped = errors.New("scheduler stopped")

// Scheduler is the asynchronous pipeline core: it routes tasks through
// preprocessing, detection, crop fan-out, and recognition while
// overlapping CPU and accelerator work across tasks, and reassembles
// per-crop completions under the original task identity.
//
//	intake -> pre -> det -> crop fan-out -> rec -> fan-in -> results
//
// Results arrive on a single channel, keyed by task id, in no
// particular order across tasks.
type Scheduler struct {
	cfg  SchedulerConfig
	pipe *Pipeline

	intake  chan *Task
	detIn   chan detItem
	cropIn  chan cropItem
	recIn   chan recItem
	fanIn   chan recDone
	results chan *TaskResult

	mu      sync.Mutex
	pending map[uint64]*pendingTask
	stopped bool

	preWG   sync.WaitGroup
	detWG   sync.WaitGroup
	cropWG  sync.WaitGroup
	recWG   sync.WaitGroup
	fanWG   sync.WaitGroup

	submitted atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
}

// NewScheduler creates a scheduler over the pipeline's stages. Call
// Start before submitting.
func NewScheduler(p *Pipeline, cfg SchedulerConfig) *Scheduler {
	cfg.applyDefaults()
	return &Scheduler{
		cfg:     cfg,
		pipe:    p,
		intake:  make(chan *Task, cfg.IntakeCapacity),
		detIn:   make(chan detItem, cfg.StageCapacity),
		cropIn:  make(chan cropItem, cfg.StageCapacity),
		recIn:   make(chan recItem, cfg.CropCapacity),
		fanIn:   make(chan recDone, cfg.CropCapacity),
		results: make(chan *TaskResult, cfg.ResultCapacity),
		pending: make(map[uint64]*pendingTask),
	}
}

// Start launches the stage worker pools.
func (s *Scheduler) Start() {
	for range s.cfg.PreWorkers {
		s.preWG.Add(1)
		go s.preWorker()
	}
	for range s.cfg.DetWorkers {
		s.detWG.Add(1)
		go s.detWorker()
	}
	for range s.cfg.CropWorkers {
		s.cropWG.Add(1)
		go s.cropWorker()
	}
	for range s.cfg.RecWorkers {
		s.recWG.Add(1)
		go s.recWorker()
	}
	s.fanWG.Add(1)
	go s.fanInWorker()
	slog.Debug("Scheduler started",
		"pre", s.cfg.PreWorkers, "det", s.cfg.DetWorkers,
		"crop", s.cfg.CropWorkers, "rec", s.cfg.RecWorkers)
}

// PushTask enqueues a task without blocking. Returns false when the
// intake queue is at capacity or the scheduler has stopped.
func (s *Scheduler) PushTask(task *Task) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	select {
	case s.intake <- task:
		s.submitted.Add(1)
		s.mu.Unlock()
		return true
	default:
		s.mu.Unlock()
		return false
	}
}

// PushTaskContext enqueues a task, blocking until admitted or until ctx
// is done. This is the blocking intake variant servers use with a
// timeout context.
func (s *Scheduler) PushTaskContext(ctx context.Context, task *Task) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrSchedulerStopped
	}
	// Reserve under the lock so Stop cannot close intake mid-send.
	select {
	case s.intake <- task:
		s.submitted.Add(1)
		s.mu.Unlock()
		return nil
	default:
	}
	s.mu.Unlock()

	for {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return ErrSchedulerStopped
		}
		select {
		case s.intake <- task:
			s.submitted.Add(1)
			s.mu.Unlock()
			return nil
		default:
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// Results returns the channel terminal TaskResults are published on.
// Consumers demultiplex by id; there is no cross-task FIFO guarantee.
func (s *Scheduler) Results() <-chan *TaskResult { return s.results }

// Counters returns submitted/succeeded/failed totals.
func (s *Scheduler) Counters() (submitted, succeeded, failed uint64) {
	return s.submitted.Load(), s.succeeded.Load(), s.failed.Load()
}

// Stop drains the stages in topological order: intake closes first,
// then each stage waits for its upstream to go idle. Tasks in flight
// complete; the results channel closes last.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.intake)
	s.preWG.Wait()
	close(s.detIn)
	s.detWG.Wait()
	close(s.cropIn)
	s.cropWG.Wait()
	close(s.recIn)
	s.recWG.Wait()
	close(s.fanIn)
	s.fanWG.Wait()
	close(s.results)
	slog.Debug("Scheduler stopped",
		"submitted", s.submitted.Load(),
		"succeeded", s.succeeded.Load(),
		"failed", s.failed.Load())
}

// fail publishes a failed result for a task. Stage errors are contained
// to the task; the worker that hit them keeps running.
func (s *Scheduler) fail(task *Task, processed image.Image, stage string, err error) {
	s.failed.Add(1)
	slog.Warn("Task failed", "task_id", task.ID, "stage", stage, "error", err)
	s.results <- &TaskResult{
		ID:             task.ID,
		ProcessedImage: processed,
		Err:            err,
		FailedStage:    stage,
	}
}

func (s *Scheduler) preWorker() {
	defer s.preWG.Done()
	ctx := context.Background()
	for task := range s.intake {
		started := time.Now()
		processed, _, err := s.pipe.preprocess(ctx, task.Image, task.Config)
		if err != nil {
			s.fail(task, task.Image, stageName(err, "preprocess"), err)
			continue
		}
		s.detIn <- detItem{task: task, processed: processed, startedAt: started}
	}
}

func (s *Scheduler) detWorker() {
	defer s.detWG.Done()
	ctx := context.Background()
	for item := range s.detIn {
		detStart := time.Now()
		boxes, err := s.pipe.detect(ctx, item.processed, item.task.Config)
		if err != nil {
			s.fail(item.task, item.processed, "detection", err)
			continue
		}
		s.cropIn <- cropItem{detItem: item, boxes: boxes, detTime: time.Since(detStart)}
	}
}

// cropWorker is the fan-out point: it registers the pending counter and
// result buffer for the task, then emits one recognition item per box.
// Zero detections synthesize an immediately complete result.
func (s *Scheduler) cropWorker() {
	defer s.cropWG.Done()
	for item := range s.cropIn {
		m := len(item.boxes)
		if m == 0 {
			s.succeeded.Add(1)
			s.results <- &TaskResult{
				ID:             item.task.ID,
				Entries:        []TextEntry{},
				ProcessedImage: item.processed,
				Stats: Stats{
					DetectionTime: item.detTime,
					TotalTime:     time.Since(item.startedAt),
				},
			}
			continue
		}

		s.mu.Lock()
		s.pending[item.task.ID] = &pendingTask{
			task:      item.task,
			processed: item.processed,
			entries:   make([]*TextEntry, m),
			remaining: m,
			startedAt: item.startedAt,
			detTime:   item.detTime,
		}
		s.mu.Unlock()

		for i, box := range item.boxes {
			crop, _, err := utils.RotateCrop(item.processed, box.Quad)
			if err != nil {
				// A degenerate quad drops this line but still counts
				// toward the pending total.
				s.fanIn <- recDone{parentID: item.task.ID, cropIndex: i}
				continue
			}
			s.recIn <- recItem{
				parentID:  item.task.ID,
				cropIndex: i,
				crop:      crop,
				quad:      box.Quad,
				config:    item.task.Config,
			}
		}
	}
}

func (s *Scheduler) recWorker() {
	defer s.recWG.Done()
	ctx := context.Background()
	for item := range s.recIn {
		entry, rotated, err := s.pipe.recognizeCrop(ctx, item.crop, item.quad, item.config)
		s.fanIn <- recDone{
			parentID:  item.parentID,
			cropIndex: item.cropIndex,
			entry:     entry,
			rotated:   rotated,
			err:       err,
		}
	}
}

// fanInWorker collects recognition completions, decrements the pending
// counter, and publishes exactly one result per task when it hits zero.
func (s *Scheduler) fanInWorker() {
	defer s.fanWG.Done()
	for done := range s.fanIn {
		s.mu.Lock()
		pt, ok := s.pending[done.parentID]
		if !ok {
			s.mu.Unlock()
			slog.Error("Completion for unknown task", "task_id", done.parentID)
			continue
		}
		if done.err != nil && pt.err == nil {
			pt.err = done.err
			pt.failedIn = stageName(done.err, "recognition")
		}
		if done.entry != nil {
			pt.entries[done.cropIndex] = done.entry
		}
		if done.rotated {
			pt.rotated++
		}
		pt.remaining--
		complete := pt.remaining == 0
		if complete {
			delete(s.pending, done.parentID)
		}
		s.mu.Unlock()

		if complete {
			s.publish(pt)
		}
	}
}

func (s *Scheduler) publish(pt *pendingTask) {
	if pt.err != nil {
		s.failed.Add(1)
		s.results <- &TaskResult{
			ID:             pt.task.ID,
			ProcessedImage: pt.processed,
			Err:            pt.err,
			FailedStage:    pt.failedIn,
		}
		return
	}

	entries := make([]TextEntry, 0, len(pt.entries))
	for _, e := range pt.entries {
		if e != nil {
			entries = append(entries, *e)
		}
	}
	sortEntries(entries)

	s.succeeded.Add(1)
	s.results <- &TaskResult{
		ID:             pt.task.ID,
		Entries:        entries,
		ProcessedImage: pt.processed,
		Stats: Stats{
			DetectionTime:   pt.detTime,
			TotalTime:       time.Since(pt.startedAt),
			DetectedBoxes:   len(pt.entries),
			RotatedBoxes:    pt.rotated,
			RecognizedBoxes: len(entries),
		},
	}
}

func stageName(err error, fallback string) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return fallback
}
