package pipeline

import (
	"context"
	"image"

	"github.com/deepx-ocr/dxocr/internal/detector"
	"github.com/deepx-ocr/dxocr/internal/recognizer"
)

// The pipeline drives its model stages through small interfaces so that
// tests can substitute deterministic fakes for the accelerator-backed
// implementations.

// Detector finds text regions in an image.
type Detector interface {
	Detect(ctx context.Context, img image.Image, ov detector.Overrides) ([]detector.TextBox, error)
}

// Recognizer decodes the text in a single horizontal line crop.
type Recognizer interface {
	Recognize(ctx context.Context, crop image.Image) (recognizer.Result, error)
}

// Orienter rotates a whole page upright when the predicted rotation is
// confident enough; it returns the (possibly rotated) image and the
// angle that was undone.
type Orienter interface {
	Apply(ctx context.Context, img image.Image) (image.Image, int, error)
}

// LineOrienter classifies the 0/180 orientation of one text line crop.
type LineOrienter interface {
	Predict(ctx context.Context, img image.Image) (int, float64, error)
	ShouldApply(angle int, confidence float64) bool
}

// Rectifier removes page warp; disabled implementations pass through.
type Rectifier interface {
	Apply(ctx context.Context, img image.Image) (image.Image, error)
}
