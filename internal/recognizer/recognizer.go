package recognizer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"

	"github.com/deepx-ocr/dxocr/internal/mempool"
	"github.com/deepx-ocr/dxocr/internal/models"
	"github.com/deepx-ocr/dxocr/internal/onnx"
	"github.com/deepx-ocr/dxocr/internal/utils"
)

// Config holds configuration for the text recognizer.
type Config struct {
	// ModelPaths maps a maximum aspect ratio to its model file.
	ModelPaths map[int]string

	DictPath  string   // character dictionary (single)
	DictPaths []string // optional multiple dictionaries to merge

	ImageHeight int // model input height (48)
	NumThreads  int
	GPU         onnx.GPUConfig

	Mean  [3]float32
	Scale [3]float32
}

// DefaultConfig returns the recognizer defaults.
func DefaultConfig() Config {
	return Config{
		ImageHeight: 48,
		GPU:         onnx.DefaultGPUConfig(),
		Mean:        [3]float32{0.5, 0.5, 0.5},
		Scale:       [3]float32{0.5, 0.5, 0.5},
	}
}

// UpdateModelPaths fills ModelPaths and DictPath for the models dir.
func (c *Config) UpdateModelPaths(modelsDir, family string) {
	c.ModelPaths = make(map[int]string, len(models.RecognitionRatios))
	for _, r := range models.RecognitionRatios {
		c.ModelPaths[r] = models.GetRecognitionModelPath(modelsDir, family, r)
	}
	if len(c.DictPaths) == 0 {
		c.DictPath = models.GetDictionaryPath(modelsDir)
	}
}

// Result is one recognized text line.
type Result struct {
	Text       string
	Confidence float64
}

// Recognizer performs variable-width CTC text recognition over
// aspect-ratio-specialized model variants.
type Recognizer struct {
	config  Config
	models  map[int]*onnx.Model
	ratios  []int // sorted ascending
	charset *Charset
}

// NewRecognizer loads all configured recognition variants and the
// dictionary through the engine.
func NewRecognizer(engine *onnx.Engine, config Config) (*Recognizer, error) {
	if len(config.ModelPaths) == 0 {
		return nil, errors.New("recognizer has no model paths configured")
	}
	if config.ImageHeight <= 0 {
		return nil, errors.New("recognizer image height must be > 0")
	}

	var charset *Charset
	var err error
	if len(config.DictPaths) > 0 {
		charset, err = LoadCharsets(config.DictPaths)
	} else {
		charset, err = LoadCharset(config.DictPath)
	}
	if err != nil {
		return nil, err
	}

	r := &Recognizer{
		config:  config,
		models:  make(map[int]*onnx.Model, len(config.ModelPaths)),
		charset: charset,
	}
	for ratio, path := range config.ModelPaths {
		m, err := engine.Load(path, onnx.ModelOptions{NumThreads: config.NumThreads, GPU: config.GPU})
		if err != nil {
			return nil, fmt.Errorf("load recognition model (ratio %d): %w", ratio, err)
		}
		r.models[ratio] = m
		r.ratios = append(r.ratios, ratio)
	}
	sortInts(r.ratios)
	slog.Debug("Recognizer initialized", "variants", len(r.models), "charset", charset.Size())
	return r, nil
}

// Config returns a copy of the recognizer configuration.
func (r *Recognizer) Config() Config { return r.config }

// Charset exposes the loaded dictionary.
func (r *Recognizer) Charset() *Charset { return r.charset }

// SelectRatio picks the smallest variant ratio R >= aspect from the
// sorted candidate set; crops wider than the largest variant use it and
// are clamped to its fixed width.
func SelectRatio(ratios []int, aspect float64) int {
	for _, ratio := range ratios {
		if float64(ratio) >= aspect {
			return ratio
		}
	}
	return ratios[len(ratios)-1]
}

// SelectRatio picks the model variant for a crop with the given aspect.
func (r *Recognizer) SelectRatio(aspect float64) int {
	return SelectRatio(r.ratios, aspect)
}

// Recognize decodes the text in a single horizontal line crop.
func (r *Recognizer) Recognize(ctx context.Context, crop image.Image) (Result, error) {
	if crop == nil {
		return Result{}, errors.New("nil crop image")
	}
	bounds := crop.Bounds()
	cw, ch := bounds.Dx(), bounds.Dy()
	if cw <= 0 || ch <= 0 {
		return Result{}, errors.New("empty crop image")
	}

	height := r.config.ImageHeight
	aspect := float64(cw) / float64(ch)
	ratio := r.SelectRatio(aspect)
	model, ok := r.models[ratio]
	if !ok {
		return Result{}, fmt.Errorf("no recognition model for ratio %d", ratio)
	}
	modelWidth := ratio * height

	// Scale to the model height, clamp width to the variant's fixed
	// input, and right-pad the remainder with black.
	targetW := int(math.Round(float64(height) * aspect))
	if targetW < 1 {
		targetW = 1
	}
	if targetW > modelWidth {
		targetW = modelWidth
	}
	resized := utils.ResizeExact(crop, targetW, height)
	padded := utils.PadRight(resized, modelWidth)

	data, w, h, err := utils.NormalizeImage(padded, r.config.Mean, r.config.Scale)
	if err != nil {
		return Result{}, fmt.Errorf("normalize: %w", err)
	}
	input, err := onnx.NewImageTensor(data, 3, h, w)
	if err != nil {
		mempool.PutFloat32(data)
		return Result{}, err
	}
	out, err := model.Run(ctx, input)
	mempool.PutFloat32(data)
	if err != nil {
		return Result{}, fmt.Errorf("recognition inference: %w", err)
	}

	seq, err := DecodeCTCGreedy(out.Data, out.Shape)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Text:       NormalizeText(seq.Text(r.charset)),
		Confidence: seq.Confidence(),
	}, nil
}

func sortInts(v []int) {
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j] < v[j-1]; j-- {
			v[j], v[j-1] = v[j-1], v[j]
		}
	}
}
