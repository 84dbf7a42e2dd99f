package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/deepx-ocr/dxocr/internal/detector"
	"github.com/deepx-ocr/dxocr/internal/models"
	"github.com/deepx-ocr/dxocr/internal/onnx"
	"github.com/deepx-ocr/dxocr/internal/orientation"
	"github.com/deepx-ocr/dxocr/internal/recognizer"
	"github.com/deepx-ocr/dxocr/internal/rectify"
)

// Config holds configuration for the OCR pipeline and its components.
type Config struct {
	ModelsDir string
	Family    string // models.FamilyServer or models.FamilyMobile

	Detector            detector.Config
	Recognizer          recognizer.Config
	Orientation         orientation.Config
	TextLineOrientation orientation.Config
	Rectification       rectify.Config

	Scheduler   SchedulerConfig
	Coordinator CoordinatorConfig

	WarmupIterations int
}

// DefaultConfig returns a default pipeline config with component defaults.
func DefaultConfig() Config {
	return Config{
		ModelsDir:           models.GetModelsDir(""),
		Family:              models.FamilyServer,
		Detector:            detector.DefaultConfig(),
		Recognizer:          recognizer.DefaultConfig(),
		Orientation:         orientation.DefaultConfig(),
		TextLineOrientation: orientation.DefaultTextLineConfig(),
		Rectification:       rectify.DefaultConfig(),
		Scheduler:           DefaultSchedulerConfig(),
		Coordinator:         DefaultCoordinatorConfig(),
	}
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg Config
}

// NewBuilder creates a new pipeline builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// WithModelsDir sets the models directory and updates component paths.
func (b *Builder) WithModelsDir(dir string) *Builder {
	if dir != "" {
		b.cfg.ModelsDir = dir
	}
	b.updatePaths()
	return b
}

// WithServerModels toggles between the server and mobile model family.
func (b *Builder) WithServerModels(useServer bool) *Builder {
	if useServer {
		b.cfg.Family = models.FamilyServer
	} else {
		b.cfg.Family = models.FamilyMobile
	}
	b.updatePaths()
	return b
}

func (b *Builder) updatePaths() {
	b.cfg.Detector.UpdateModelPaths(b.cfg.ModelsDir, b.cfg.Family)
	b.cfg.Recognizer.UpdateModelPaths(b.cfg.ModelsDir, b.cfg.Family)
	b.cfg.Orientation.ModelPath = models.GetDocOrientationModelPath(b.cfg.ModelsDir, b.cfg.Family)
	b.cfg.TextLineOrientation.ModelPath = models.GetTextLineOrientationModelPath(b.cfg.ModelsDir, b.cfg.Family)
	b.cfg.Rectification.ModelPath = models.GetUVDocModelPath(b.cfg.ModelsDir, b.cfg.Family)
}

// WithDetectorThresholds sets the DB thresholds.
func (b *Builder) WithDetectorThresholds(thresh, boxThresh float32) *Builder {
	if thresh > 0 {
		b.cfg.Detector.Thresh = thresh
	}
	if boxThresh > 0 {
		b.cfg.Detector.BoxThresh = boxThresh
	}
	return b
}

// WithUnclipRatio sets the detector box expansion ratio.
func (b *Builder) WithUnclipRatio(ratio float64) *Builder {
	if ratio > 0 {
		b.cfg.Detector.UnclipRatio = ratio
	}
	return b
}

// WithDictionaryPath overrides the dictionary path directly.
func (b *Builder) WithDictionaryPath(path string) *Builder {
	if path != "" {
		b.cfg.Recognizer.DictPath = path
		b.cfg.Recognizer.DictPaths = nil
	}
	return b
}

// WithDictionaryPaths overrides the dictionary paths with a merged list.
func (b *Builder) WithDictionaryPaths(paths []string) *Builder {
	cleaned := make([]string, 0, len(paths))
	for _, p := range paths {
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) > 0 {
		b.cfg.Recognizer.DictPaths = cleaned
		b.cfg.Recognizer.DictPath = ""
	}
	return b
}

// WithOrientation enables/disables whole-document orientation.
func (b *Builder) WithOrientation(enabled bool) *Builder {
	b.cfg.Orientation.Enabled = enabled
	return b
}

// WithTextLineOrientation enables/disables per-line orientation.
func (b *Builder) WithTextLineOrientation(enabled bool) *Builder {
	b.cfg.TextLineOrientation.Enabled = enabled
	return b
}

// WithRectification enables/disables document unwarping.
func (b *Builder) WithRectification(enabled bool) *Builder {
	b.cfg.Rectification.Enabled = enabled
	return b
}

// WithThreads sets intra-op thread counts for all components (if > 0).
func (b *Builder) WithThreads(n int) *Builder {
	if n > 0 {
		b.cfg.Detector.NumThreads = n
		b.cfg.Recognizer.NumThreads = n
		b.cfg.Orientation.NumThreads = n
		b.cfg.TextLineOrientation.NumThreads = n
		b.cfg.Rectification.NumThreads = n
	}
	return b
}

// WithGPU enables GPU acceleration for all components.
func (b *Builder) WithGPU(enabled bool) *Builder {
	b.cfg.Detector.GPU.UseGPU = enabled
	b.cfg.Recognizer.GPU.UseGPU = enabled
	b.cfg.Orientation.GPU.UseGPU = enabled
	b.cfg.TextLineOrientation.GPU.UseGPU = enabled
	b.cfg.Rectification.GPU.UseGPU = enabled
	return b
}

// WithScheduler overrides the scheduler configuration.
func (b *Builder) WithScheduler(cfg SchedulerConfig) *Builder {
	b.cfg.Scheduler = cfg
	return b
}

// WithCoordinator overrides the coordinator configuration.
func (b *Builder) WithCoordinator(cfg CoordinatorConfig) *Builder {
	b.cfg.Coordinator = cfg
	return b
}

// WithWarmupIterations sets model warmup runs to reduce cold-start latency.
func (b *Builder) WithWarmupIterations(n int) *Builder {
	if n >= 0 {
		b.cfg.WarmupIterations = n
	}
	return b
}

// Config returns a copy of the current config.
func (b *Builder) Config() Config { return b.cfg }

// Validate checks that the configuration looks sane before loading.
func (b *Builder) Validate() error {
	if len(b.cfg.Detector.ModelPaths) == 0 {
		b.updatePaths()
	}
	for side, path := range b.cfg.Detector.ModelPaths {
		if err := models.ValidateModelExists(path); err != nil {
			return fmt.Errorf("detection model (side %d): %w", side, err)
		}
	}
	for ratio, path := range b.cfg.Recognizer.ModelPaths {
		if err := models.ValidateModelExists(path); err != nil {
			return fmt.Errorf("recognition model (ratio %d): %w", ratio, err)
		}
	}
	if b.cfg.Recognizer.DictPath == "" && len(b.cfg.Recognizer.DictPaths) == 0 {
		return errors.New("recognizer dictionary path is empty")
	}
	if b.cfg.Recognizer.ImageHeight <= 0 {
		return errors.New("recognizer image height must be > 0")
	}
	return nil
}

// Pipeline wires the model stages together and owns the engine that
// loaded them. Stage fields are interfaces so tests can inject fakes.
type Pipeline struct {
	cfg    Config
	engine *onnx.Engine

	Detector     Detector
	Recognizer   Recognizer
	Orienter     Orienter
	LineOrienter LineOrienter
	Rectifier    Rectifier
}

// Build initializes the OCR pipeline components.
func (b *Builder) Build() (*Pipeline, error) {
	if len(b.cfg.Detector.ModelPaths) == 0 {
		b.updatePaths()
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}

	engine, err := onnx.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("init inference engine: %w", err)
	}

	det, err := detector.NewDetector(engine, b.cfg.Detector)
	if err != nil {
		_ = engine.Close()
		return nil, fmt.Errorf("init detector: %w", err)
	}
	rec, err := recognizer.NewRecognizer(engine, b.cfg.Recognizer)
	if err != nil {
		_ = engine.Close()
		return nil, fmt.Errorf("init recognizer: %w", err)
	}

	p := &Pipeline{cfg: b.cfg, engine: engine, Detector: det, Recognizer: rec}

	if b.cfg.Orientation.Enabled {
		cls, err := orientation.NewClassifier(engine, b.cfg.Orientation)
		if err != nil {
			_ = engine.Close()
			return nil, fmt.Errorf("init orientation classifier: %w", err)
		}
		p.Orienter = cls
	}
	if b.cfg.TextLineOrientation.Enabled {
		cls, err := orientation.NewClassifier(engine, b.cfg.TextLineOrientation)
		if err != nil {
			_ = engine.Close()
			return nil, fmt.Errorf("init text line classifier: %w", err)
		}
		p.LineOrienter = cls
	}
	if b.cfg.Rectification.Enabled {
		rx, err := rectify.New(engine, b.cfg.Rectification)
		if err != nil {
			_ = engine.Close()
			return nil, fmt.Errorf("init rectifier: %w", err)
		}
		p.Rectifier = rx
	}

	if b.cfg.WarmupIterations > 0 {
		p.warmup(b.cfg.WarmupIterations)
	}

	return p, nil
}

// warmup pushes a small blank page through the full chain to absorb
// first-run session latency before real traffic arrives.
func (p *Pipeline) warmup(iterations int) {
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	cfg := DefaultTaskConfig()
	for i := range iterations {
		if _, err := p.Process(context.Background(), img, cfg); err != nil {
			slog.Warn("Warmup iteration failed", "iteration", i, "error", err)
			return
		}
	}
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Close releases all model sessions.
func (p *Pipeline) Close() error {
	if p.engine == nil {
		return nil
	}
	err := p.engine.Close()
	p.engine = nil
	return err
}

// Info returns key pipeline properties for the health/info endpoints.
func (p *Pipeline) Info() map[string]interface{} {
	return map[string]interface{}{
		"models_dir": p.cfg.ModelsDir,
		"family":     p.cfg.Family,
		"orientation": map[string]interface{}{
			"enabled":              p.cfg.Orientation.Enabled,
			"confidence_threshold": p.cfg.Orientation.ConfidenceThreshold,
		},
		"textline_orientation": map[string]interface{}{
			"enabled":              p.cfg.TextLineOrientation.Enabled,
			"confidence_threshold": p.cfg.TextLineOrientation.ConfidenceThreshold,
		},
		"rectification": map[string]interface{}{
			"enabled": p.cfg.Rectification.Enabled,
		},
		"scheduler": map[string]interface{}{
			"intake_capacity": p.cfg.Scheduler.IntakeCapacity,
			"pre_workers":     p.cfg.Scheduler.PreWorkers,
			"det_workers":     p.cfg.Scheduler.DetWorkers,
			"crop_workers":    p.cfg.Scheduler.CropWorkers,
			"rec_workers":     p.cfg.Scheduler.RecWorkers,
		},
	}
}
