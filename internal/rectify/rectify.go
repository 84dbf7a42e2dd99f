package rectify

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

// Config holds configuration for document unwarping.
type Config struct {
	ModelPath string
	Enabled   bool
	// The UVDoc model takes a fixed input resolution.
	InputWidth  int
	InputHeight int
	NumThreads  int
	GPU         onnx.GPUConfig
}

// DefaultConfig returns the UVDoc defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:     false,
		InputWidth:  488,
		InputHeight: 712,
		GPU:         onnx.DefaultGPUConfig(),
	}
}

// Rectifier removes page warp by resampling the input through the flow
// field predicted by the UVDoc model.
type Rectifier struct {
	config Config
	model  *onnx.Model
}

// New loads the unwarping model. A disabled config yields a pass-through
// rectifier with no session.
func New(engine *onnx.Engine, config Config) (*Rectifier, error) {
	r := &Rectifier{config: config}
	if !config.Enabled {
		return r, nil
	}
	if config.ModelPath == "" {
		return nil, errors.New("rectify model path cannot be empty")
	}
	m, err := engine.Load(config.ModelPath, onnx.ModelOptions{
		NumThreads: config.NumThreads,
		GPU:        config.GPU,
	})
	if err != nil {
		return nil, fmt.Errorf("load rectify model: %w", err)
	}
	r.model = m
	slog.Debug("Rectifier initialized", "model", config.ModelPath,
		"input", fmt.Sprintf("%dx%d", config.InputWidth, config.InputHeight))
	return r, nil
}

// Config returns a copy of the rectifier configuration.
func (r *Rectifier) Config() Config { return r.config }

// Apply dewarps img. When disabled, img passes through unchanged. The
// output has the resolution of the model's flow field; detection boxes downstream
// are therefore in the dewarped frame.
func (r *Rectifier) Apply(ctx context.Context, img image.Image) (image.Image, error) {
	if r == nil || !r.config.Enabled || r.model == nil {
		return img, nil
	}
	if img == nil {
		return nil, errors.New("nil input image")
	}

	w, h := r.config.InputWidth, r.config.InputHeight
	resized := utils.ResizeExact(img, w, h)
	data, nw, nh, err := utils.NormalizeImage(resized, utils.CenteredMean, utils.CenteredScale)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	input, err := onnx.NewImageTensor(data, 3, nh, nw)
	if err != nil {
		mempool.PutFloat32(data)
		return nil, err
	}
	out, err := r.model.Run(ctx, input)
	mempool.PutFloat32(data)
	if err != nil {
		return nil, fmt.Errorf("unwarp inference: %w", err)
	}

	flow, fh, fw, err := flowField(out)
	if err != nil {
		return nil, err
	}
	return sampleFlowField(resized, flow, fw, fh), nil
}

// flowField validates the model output [1, 2, H, W] and returns it.
func flowField(t onnx.Tensor) (flow []float32, h, w int, err error) {
	if len(t.Shape) != 4 || t.Shape[0] != 1 || t.Shape[1] != 2 {
		return nil, 0, 0, fmt.Errorf("unexpected flow field shape %v", t.Shape)
	}
	h, w = int(t.Shape[2]), int(t.Shape[3])
	if len(t.Data) != 2*h*w {
		return nil, 0, 0, fmt.Errorf("flow field size %d != 2x%dx%d", len(t.Data), h, w)
	}
	return t.Data, h, w, nil
}

// sampleFlowField builds the dewarped image: each output pixel reads the
// source location named by the flow field. Flow values are normalized to
// [-1, 1] and converted with the align_corners=true convention, matching
// the model's training-time grid sampling.
func sampleFlowField(src image.Image, flow []float32, fw, fh int) image.Image {
	srcW := src.Bounds().Dx()
	srcH := src.Bounds().Dy()
	plane := fw * fh
	out := image.NewNRGBA(image.Rect(0, 0, fw, fh))
	for y := range fh {
		for x := range fw {
			idx := y*fw + x
			// align_corners=true: -1 maps to 0, +1 maps to size-1.
			gx := (float64(flow[idx]) + 1) / 2 * float64(srcW-1)
			gy := (float64(flow[plane+idx]) + 1) / 2 * float64(srcH-1)
			out.Set(x, y, utils.BilinearSample(src, gx, gy))
		}
	}
	return out
}
