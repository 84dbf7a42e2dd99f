package detector

import (
	"fmt"

	"github.com/deepx-ocr/dxocr/internal/models"
	"github.com/deepx-ocr/dxocr/internal/onnx"
)

// Config holds configuration for the text detector.
type Config struct {
	// ModelPaths maps a trained long side (640, 960) to its model file.
	ModelPaths map[int]string

	// Thresholds for the DB postprocess.
	Thresh        float32 // binary threshold on the probability map
	BoxThresh     float32 // minimum mean probability inside a region
	UnclipRatio   float64 // box expansion ratio
	MaxCandidates int     // cap on emitted boxes per image
	MinArea       int     // minimum component area in map pixels

	// SizeThreshold selects the model variant: use the 640 model when
	// max(H, W) < SizeThreshold, else the 960 model.
	SizeThreshold int

	NumThreads int
	GPU        onnx.GPUConfig

	// Normalization constants the models were trained with.
	Mean  [3]float32
	Scale [3]float32
}

// DefaultConfig returns the detector defaults.
func DefaultConfig() Config {
	return Config{
		ModelPaths:    nil,
		Thresh:        0.3,
		BoxThresh:     0.6,
		UnclipRatio:   1.5,
		MaxCandidates: 1500,
		MinArea:       4,
		SizeThreshold: 800,
		NumThreads:    0,
		GPU:           onnx.DefaultGPUConfig(),
		Mean:          [3]float32{0.485, 0.456, 0.406},
		Scale:         [3]float32{0.229, 0.224, 0.225},
	}
}

// SelectSide picks the trained long side for an image of the given
// dimensions: the 640 variant below the threshold, the 960 one above.
func (c Config) SelectSide(height, width int) int {
	long := width
	if height > long {
		long = height
	}
	if long < c.SizeThreshold {
		return 640
	}
	return 960
}

// UpdateModelPaths fills ModelPaths for the given models dir and family.
func (c *Config) UpdateModelPaths(modelsDir, family string) {
	c.ModelPaths = make(map[int]string, len(models.DetectionSides))
	for _, side := range models.DetectionSides {
		c.ModelPaths[side] = models.GetDetectionModelPath(modelsDir, family, side)
	}
}

func validateConfig(c Config) error {
	if len(c.ModelPaths) == 0 {
		return fmt.Errorf("detector has no model paths configured")
	}
	if c.Thresh < 0 || c.Thresh > 1 {
		return fmt.Errorf("thresh %v out of range [0,1]", c.Thresh)
	}
	if c.BoxThresh < 0 || c.BoxThresh > 1 {
		return fmt.Errorf("box thresh %v out of range [0,1]", c.BoxThresh)
	}
	if c.UnclipRatio < 1 || c.UnclipRatio > 3 {
		return fmt.Errorf("unclip ratio %v out of range [1,3]", c.UnclipRatio)
	}
	if c.MaxCandidates <= 0 {
		return fmt.Errorf("max candidates must be > 0")
	}
	return nil
}
