package orientation

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/deepx-ocr/dxocr/internal/mempool"
	"github.com/deepx-ocr/dxocr/internal/onnx"
	"github.com/deepx-ocr/dxocr/internal/utils"
)

// Config holds configuration for an orientation classifier.
type Config struct {
	ModelPath           string
	Enabled             bool
	ConfidenceThreshold float64
	InputWidth          int
	InputHeight         int
	// Classes are the rotation angles the model predicts, in output
	// index order.
	Classes    []int
	NumThreads int
	GPU        onnx.GPUConfig
}

// DefaultConfig returns the whole-document orientation defaults: a
// 4-class classifier over {0, 90, 180, 270}.
func DefaultConfig() Config {
	return Config{
		Enabled:             false,
		ConfidenceThreshold: 0.9,
		InputWidth:          224,
		InputHeight:         224,
		Classes:             []int{0, 90, 180, 270},
		GPU:                 onnx.DefaultGPUConfig(),
	}
}

// DefaultTextLineConfig returns the per-line orientation defaults: a
// 2-class classifier over {0, 180}.
func DefaultTextLineConfig() Config {
	return Config{
		Enabled:             false,
		ConfidenceThreshold: 0.9,
		InputWidth:          160,
		InputHeight:         80,
		Classes:             []int{0, 180},
		GPU:                 onnx.DefaultGPUConfig(),
	}
}

// Classifier predicts the rotation angle of a document or text line.
type Classifier struct {
	config Config
	model  *onnx.Model
}

// NewClassifier loads the orientation model through the engine.
func NewClassifier(engine *onnx.Engine, config Config) (*Classifier, error) {
	if config.ModelPath == "" {
		return nil, errors.New("orientation model path cannot be empty")
	}
	if len(config.Classes) == 0 {
		return nil, errors.New("orientation classes cannot be empty")
	}
	m, err := engine.Load(config.ModelPath, onnx.ModelOptions{
		NumThreads: config.NumThreads,
		GPU:        config.GPU,
	})
	if err != nil {
		return nil, fmt.Errorf("load orientation model: %w", err)
	}
	slog.Debug("Orientation classifier initialized",
		"model", config.ModelPath, "classes", config.Classes)
	return &Classifier{config: config, model: m}, nil
}

// Config returns a copy of the classifier configuration.
func (c *Classifier) Config() Config { return c.config }

// Predict returns the rotation angle and its confidence for img. The
// model output is already softmax-normalized; values are used directly.
func (c *Classifier) Predict(ctx context.Context, img image.Image) (int, float64, error) {
	if img == nil {
		return 0, 0, errors.New("nil input image")
	}
	resized := utils.ResizeExact(img, c.config.InputWidth, c.config.InputHeight)
	data, w, h, err := utils.NormalizeImage(resized, utils.CenteredMean, utils.CenteredScale)
	if err != nil {
		return 0, 0, fmt.Errorf("normalize: %w", err)
	}
	input, err := onnx.NewImageTensor(data, 3, h, w)
	if err != nil {
		mempool.PutFloat32(data)
		return 0, 0, err
	}
	out, err := c.model.Run(ctx, input)
	mempool.PutFloat32(data)
	if err != nil {
		return 0, 0, fmt.Errorf("orientation inference: %w", err)
	}
	return DecodeProbabilities(out.Data, c.config.Classes)
}

// DecodeProbabilities picks the argmax class from a probability vector.
func DecodeProbabilities(probs []float32, classes []int) (int, float64, error) {
	if len(probs) < len(classes) {
		return 0, 0, fmt.Errorf("probability vector length %d < %d classes", len(probs), len(classes))
	}
	best := 0
	for i := 1; i < len(classes); i++ {
		if probs[i] > probs[best] {
			best = i
		}
	}
	return classes[best], float64(probs[best]), nil
}

// ShouldApply reports whether a predicted angle is confident enough to
// act on.
func (c Config) ShouldApply(angle int, confidence float64) bool {
	return angle != 0 && confidence >= c.ConfidenceThreshold
}

// ShouldApply reports whether the classifier would act on a prediction.
func (c *Classifier) ShouldApply(angle int, confidence float64) bool {
	return c.config.ShouldApply(angle, confidence)
}

// Apply rotates img to undo the predicted angle when confidence passes
// the threshold; otherwise returns img unchanged.
func (c *Classifier) Apply(ctx context.Context, img image.Image) (image.Image, int, error) {
	angle, conf, err := c.Predict(ctx, img)
	if err != nil {
		return img, 0, err
	}
	if !c.ShouldApply(angle, conf) {
		return img, 0, nil
	}
	return utils.RotateByClass(img, angle), angle, nil
}
