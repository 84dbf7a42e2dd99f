package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sort"

	"github.com/deepx-ocr/dxocr/internal/mempool"
	"github.com/deepx-ocr/dxocr/internal/onnx"
	"github.com/deepx-ocr/dxocr/internal/utils"
)

// TextBox is a detected text region: a quadrilateral in the coordinate
// frame of the image handed to Detect, plus the detection score.
type TextBox struct {
	Quad  utils.Quad
	Score float64
}

// Overrides carries the per-task threshold overrides; zero values fall
// back to the detector's configured defaults.
type Overrides struct {
	Thresh      float32
	BoxThresh   float32
	UnclipRatio float64
}

// Detector runs DBNet-style text detection over resolution-specialized
// model variants.
type Detector struct {
	config Config
	models map[int]*onnx.Model
}

// NewDetector loads all configured detection variants through the engine.
func NewDetector(engine *onnx.Engine, config Config) (*Detector, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	d := &Detector{config: config, models: make(map[int]*onnx.Model, len(config.ModelPaths))}
	for side, path := range config.ModelPaths {
		m, err := engine.Load(path, onnx.ModelOptions{NumThreads: config.NumThreads, GPU: config.GPU})
		if err != nil {
			return nil, fmt.Errorf("load detection model (side %d): %w", side, err)
		}
		d.models[side] = m
	}
	slog.Debug("Detector initialized", "variants", len(d.models), "size_threshold", config.SizeThreshold)
	return d, nil
}

// Config returns a copy of the detector configuration.
func (d *Detector) Config() Config { return d.config }

// SelectSide picks the model variant for an image of the given size.
func (d *Detector) SelectSide(height, width int) int {
	return d.config.SelectSide(height, width)
}

// Detect finds text regions in img. Quads come back in img's coordinate
// frame, sorted in reading order. An empty result is not an error.
func (d *Detector) Detect(ctx context.Context, img image.Image, ov Overrides) ([]TextBox, error) {
	if img == nil {
		return nil, errors.New("nil input image")
	}
	bounds := img.Bounds()
	origW, origH := bounds.Dx(), bounds.Dy()
	if origW <= 0 || origH <= 0 {
		return nil, errors.New("empty input image")
	}

	side := d.SelectSide(origH, origW)
	model, ok := d.models[side]
	if !ok {
		return nil, fmt.Errorf("no detection model for side %d", side)
	}

	lb, err := utils.LetterboxResize(img, side)
	if err != nil {
		return nil, fmt.Errorf("letterbox resize: %w", err)
	}
	data, w, h, err := utils.NormalizeImage(lb.Image, d.config.Mean, d.config.Scale)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	input, err := onnx.NewImageTensor(data, 3, h, w)
	if err != nil {
		mempool.PutFloat32(data)
		return nil, err
	}

	out, err := model.Run(ctx, input)
	mempool.PutFloat32(data)
	if err != nil {
		return nil, fmt.Errorf("detection inference: %w", err)
	}

	mapH, mapW, prob, err := probabilityMap(out)
	if err != nil {
		return nil, err
	}

	opts := d.postOptions(ov)
	boxes := PostProcessDB(prob, mapW, mapH, opts)

	// Map back to original coordinates through the inverse of the
	// resize+pad transform. Padding sits right/bottom, so only the
	// content scale matters.
	sx := float64(origW) / float64(lb.ScaledW)
	sy := float64(origH) / float64(lb.ScaledH)
	for i := range boxes {
		boxes[i].Quad = boxes[i].Quad.Scale(sx, sy).Clamp(float64(origW-1), float64(origH-1))
	}

	SortBoxesReadingOrder(boxes)
	return boxes, nil
}

func (d *Detector) postOptions(ov Overrides) PostProcessOptions {
	opts := PostProcessOptions{
		Thresh:        d.config.Thresh,
		BoxThresh:     d.config.BoxThresh,
		UnclipRatio:   d.config.UnclipRatio,
		MaxCandidates: d.config.MaxCandidates,
		MinArea:       d.config.MinArea,
	}
	if ov.Thresh > 0 {
		opts.Thresh = ov.Thresh
	}
	if ov.BoxThresh > 0 {
		opts.BoxThresh = ov.BoxThresh
	}
	if ov.UnclipRatio > 0 {
		opts.UnclipRatio = ov.UnclipRatio
	}
	return opts
}

// probabilityMap validates the model output (1x1xHxW) and returns it.
func probabilityMap(t onnx.Tensor) (h, w int, prob []float32, err error) {
	if len(t.Shape) != 4 || t.Shape[0] != 1 || t.Shape[1] != 1 {
		return 0, 0, nil, fmt.Errorf("unexpected probability map shape %v", t.Shape)
	}
	h, w = int(t.Shape[2]), int(t.Shape[3])
	if len(t.Data) != h*w {
		return 0, 0, nil, fmt.Errorf("probability map size %d != %dx%d", len(t.Data), h, w)
	}
	return h, w, t.Data, nil
}

// SortBoxesReadingOrder sorts boxes top-to-bottom, left-to-right. Boxes
// whose vertical centers differ by less than half the smaller box height
// count as the same line and order by x.
func SortBoxesReadingOrder(boxes []TextBox) {
	sort.SliceStable(boxes, func(i, j int) bool {
		return readingOrderLess(boxes[i].Quad, boxes[j].Quad)
	})
}

func readingOrderLess(a, b utils.Quad) bool {
	ca, cb := a.Center(), b.Center()
	ha := a.Bounding().Height()
	hb := b.Bounding().Height()
	tol := 0.5 * ha
	if hb < ha {
		tol = 0.5 * hb
	}
	if diff := ca.Y - cb.Y; diff > tol || diff < -tol {
		return ca.Y < cb.Y
	}
	return ca.X < cb.X
}
