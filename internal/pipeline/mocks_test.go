package pipeline

import (
	"context"
	"image"
	"sync/atomic"
	"time"

	"github.com/deepx-ocr/dxocr/internal/detector"
	"github.com/deepx-ocr/dxocr/internal/recognizer"
	"github.com/deepx-ocr/dxocr/internal/utils"
)

// quadAt builds a safe in-bounds quad for the test images.
func quadAt(x, y, w, h float64) utils.Quad {
	return utils.Quad{{x, y}, {x + w, y}, {x + w, y + h}, {x, y + h}}
}

// stackedBoxes returns n vertically stacked line quads.
func stackedBoxes(n int) []detector.TextBox {
	boxes := make([]detector.TextBox, 0, n)
	for i := range n {
		boxes = append(boxes, detector.TextBox{
			Quad:  quadAt(10, float64(10+i*25), 80, 15),
			Score: 0.9,
		})
	}
	return boxes
}

// mockDetector emits boxes derived from the submitted image via fn.
type mockDetector struct {
	fn    func(img image.Image) ([]detector.TextBox, error)
	delay time.Duration
	calls atomic.Int64
}

func (m *mockDetector) Detect(_ context.Context, img image.Image, _ detector.Overrides) ([]detector.TextBox, error) {
	m.calls.Add(1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	return m.fn(img)
}

// fixedDetector always returns n boxes.
func fixedDetector(n int) *mockDetector {
	return &mockDetector{fn: func(image.Image) ([]detector.TextBox, error) {
		return stackedBoxes(n), nil
	}}
}

// widthDetector derives the box count from the image width:
// n = (width - 100) / 10. Tests use this to tie results back to the
// caller that submitted the image.
func widthDetector() *mockDetector {
	return &mockDetector{fn: func(img image.Image) ([]detector.TextBox, error) {
		n := (img.Bounds().Dx() - 100) / 10
		if n < 0 {
			n = 0
		}
		return stackedBoxes(n), nil
	}}
}

// mockRecognizer returns a fixed text and confidence for every crop.
type mockRecognizer struct {
	text  string
	conf  float64
	err   error
	delay time.Duration
	calls atomic.Int64
}

func (m *mockRecognizer) Recognize(_ context.Context, _ image.Image) (recognizer.Result, error) {
	m.calls.Add(1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.err != nil {
		return recognizer.Result{}, m.err
	}
	return recognizer.Result{Text: m.text, Confidence: m.conf}, nil
}

// mockOrienter rotates by its fixed angle (none when zero) and records
// invocations.
type mockOrienter struct {
	angle int
	calls atomic.Int64
}

func (m *mockOrienter) Apply(_ context.Context, img image.Image) (image.Image, int, error) {
	m.calls.Add(1)
	if m.angle != 0 {
		return utils.RotateByClass(img, m.angle), m.angle, nil
	}
	return img, 0, nil
}

// mockLineOrienter reports the given angle and conf for every crop.
type mockLineOrienter struct {
	angle     int
	conf      float64
	threshold float64
}

func (m *mockLineOrienter) Predict(_ context.Context, _ image.Image) (int, float64, error) {
	return m.angle, m.conf, nil
}

func (m *mockLineOrienter) ShouldApply(angle int, confidence float64) bool {
	return angle != 0 && confidence >= m.threshold
}

// mockRectifier passes through, counting calls.
type mockRectifier struct {
	calls atomic.Int64
}

func (m *mockRectifier) Apply(_ context.Context, img image.Image) (image.Image, error) {
	m.calls.Add(1)
	return img, nil
}

// testPipeline assembles a pipeline over mock stages.
func testPipeline(det Detector, rec Recognizer) *Pipeline {
	return &Pipeline{
		cfg:        DefaultConfig(),
		Detector:   det,
		Recognizer: rec,
	}
}

// testImage is a blank (all-zero) canvas large enough for the stacked quads.
func testImage(w, h int) image.Image {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

// smallSchedulerConfig keeps channels tight so backpressure paths run.
func smallSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		IntakeCapacity: 4,
		StageCapacity:  2,
		CropCapacity:   8,
		ResultCapacity: 8,
		PreWorkers:     1,
		DetWorkers:     1,
		CropWorkers:    2,
		RecWorkers:     2,
	}
}
