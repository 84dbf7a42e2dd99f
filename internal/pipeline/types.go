package pipeline

import (
	"fmt"
	"image"
	"time"

	"github.com/deepx-ocr/dxocr/internal/utils"
)

// TaskConfig carries the per-task processing overrides. It is frozen at
// submission; the scheduler treats it as read-only.
type TaskConfig struct {
	UseDocOrientation      bool
	UseUnwarping           bool
	UseTextLineOrientation bool
	DetThresh              float32
	DetBoxThresh           float32
	DetUnclipRatio         float64
	RecScoreThresh         float64
}

// DefaultTaskConfig returns the per-task defaults.
func DefaultTaskConfig() TaskConfig {
	return TaskConfig{
		DetThresh:      0.3,
		DetBoxThresh:   0.6,
		DetUnclipRatio: 1.5,
		RecScoreThresh: 0.0,
	}
}

// Task is one image travelling through the pipeline. Identity is the
// 64-bit id; the scheduler never reuses an id in its lifetime.
type Task struct {
	ID          uint64
	Image       image.Image
	Config      TaskConfig
	SubmittedAt time.Time
}

// TextEntry is one recognized text line in the result.
type TextEntry struct {
	Quad       utils.Quad
	Text       string
	Confidence float64
	Index      int // position after reading-order sort
}

// Stats aggregates per-task timing and box counts.
type Stats struct {
	DetectionTime      time.Duration
	OrientationTime    time.Duration
	RecognitionTime    time.Duration
	TotalTime          time.Duration
	DetectedBoxes      int
	RotatedBoxes       int
	RecognizedBoxes    int
}

// TaskResult is the terminal output for one task. Quads in Entries are
// in the coordinate space of ProcessedImage (the image after orientation
// and unwarping), which is what visualization must consume.
type TaskResult struct {
	ID             uint64
	Entries        []TextEntry
	ProcessedImage image.Image
	Stats          Stats
	Err            error
	FailedStage    string
}

// Failed reports whether the task ended in error.
func (r *TaskResult) Failed() bool { return r != nil && r.Err != nil }

// StageError wraps a failure with the stage it occurred in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
