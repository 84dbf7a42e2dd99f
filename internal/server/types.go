package server

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/deepx-ocr/dxocr/internal/pipeline"
)

// API error codes carried in response bodies.
const (
	CodeSuccess          = 0
	CodeUnauthorized     = 401
	CodeInvalidParameter = 2001
	CodeInternalError    = 2002
	CodeMissingParameter = 2003
	CodeDecodeError      = 2004
)

// Input caps enforced before decoding.
const (
	MaxBase64Bytes = 50 * 1024 * 1024
	MaxURLLength   = 2048
)

// File type discriminator in OCR requests.
const (
	FileTypePDF   = 0
	FileTypeImage = 1
)

// OCRRequest is the POST /ocr body. Fields keep their defaults when
// absent from the JSON payload.
type OCRRequest struct {
	File                     string  `json:"file"`
	FileType                 int     `json:"fileType"`
	UseDocOrientationClassify bool   `json:"useDocOrientationClassify"`
	UseDocUnwarping          bool    `json:"useDocUnwarping"`
	UseTextlineOrientation   bool    `json:"useTextlineOrientation"`
	TextDetLimitSideLen      int     `json:"textDetLimitSideLen"`
	TextDetLimitType         string  `json:"textDetLimitType"`
	TextDetThresh            float64 `json:"textDetThresh"`
	TextDetBoxThresh         float64 `json:"textDetBoxThresh"`
	TextDetUnclipRatio       float64 `json:"textDetUnclipRatio"`
	TextRecScoreThresh       float64 `json:"textRecScoreThresh"`
	Visualize                bool    `json:"visualize"`
}

// NewOCRRequest returns a request pre-filled with the API defaults;
// unmarshal the body over it so absent fields keep these values.
func NewOCRRequest() OCRRequest {
	return OCRRequest{
		FileType:            FileTypeImage,
		TextDetLimitSideLen: 64,
		TextDetLimitType:    "min",
		TextDetThresh:       0.3,
		TextDetBoxThresh:    0.6,
		TextDetUnclipRatio:  1.5,
		TextRecScoreThresh:  0.0,
	}
}

// Validate checks parameter ranges. The returned message is part of the
// API contract.
func (r *OCRRequest) Validate() (string, bool) {
	if r.File == "" {
		return "Missing required parameter: 'file'", false
	}
	if r.FileType != FileTypeImage && r.FileType != FileTypePDF {
		return fmt.Sprintf("Invalid fileType: %d (must be 0 for PDF or 1 for image)", r.FileType), false
	}
	// Accepted for API compatibility; model selection is fixed by the
	// variant rule, so these only warn when out of expected form.
	if r.TextDetLimitSideLen < 1 {
		slog.Warn("textDetLimitSideLen too small, ignored", "value", r.TextDetLimitSideLen)
	}
	if r.TextDetLimitType != "min" && r.TextDetLimitType != "max" {
		slog.Warn("textDetLimitType invalid, ignored", "value", r.TextDetLimitType)
	}
	if r.TextDetThresh < 0.0 || r.TextDetThresh > 1.0 {
		return "textDetThresh must be in range [0.0, 1.0]", false
	}
	if r.TextDetBoxThresh < 0.0 || r.TextDetBoxThresh > 1.0 {
		return "textDetBoxThresh must be in range [0.0, 1.0]", false
	}
	if r.TextDetUnclipRatio < 1.0 || r.TextDetUnclipRatio > 3.0 {
		return "textDetUnclipRatio must be in range [1.0, 3.0]", false
	}
	if r.TextRecScoreThresh < 0.0 || r.TextRecScoreThresh > 1.0 {
		return "textRecScoreThresh must be in range [0.0, 1.0]", false
	}
	return "", true
}

// TaskConfig converts the request's per-task options.
func (r *OCRRequest) TaskConfig() pipeline.TaskConfig {
	return pipeline.TaskConfig{
		UseDocOrientation:      r.UseDocOrientationClassify,
		UseUnwarping:           r.UseDocUnwarping,
		UseTextLineOrientation: r.UseTextlineOrientation,
		DetThresh:              float32(r.TextDetThresh),
		DetBoxThresh:           float32(r.TextDetBoxThresh),
		DetUnclipRatio:         r.TextDetUnclipRatio,
		RecScoreThresh:         r.TextRecScoreThresh,
	}
}

// OCRResultJSON is one page's result in the response.
type OCRResultJSON struct {
	Texts            []string        `json:"texts"`
	Scores           []float64       `json:"scores"`
	Boxes            [][4][2]float64 `json:"boxes"`
	VisualizationURL string          `json:"visualizationUrl,omitempty"`
}

// OCRResponse is the POST /ocr body on success and on error.
type OCRResponse struct {
	ErrorCode  int             `json:"errorCode"`
	ErrorMsg   string          `json:"errorMsg"`
	OCRResults []OCRResultJSON `json:"ocrResults,omitempty"`
}

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// resultToJSON flattens a task result into the API shape.
func resultToJSON(result *pipeline.TaskResult, visURL string) OCRResultJSON {
	out := OCRResultJSON{
		Texts:            make([]string, 0, len(result.Entries)),
		Scores:           make([]float64, 0, len(result.Entries)),
		Boxes:            make([][4][2]float64, 0, len(result.Entries)),
		VisualizationURL: visURL,
	}
	for _, e := range result.Entries {
		out.Texts = append(out.Texts, e.Text)
		out.Scores = append(out.Scores, e.Confidence)
		var box [4][2]float64
		for i, p := range e.Quad {
			box[i] = [2]float64{p.X, p.Y}
		}
		out.Boxes = append(out.Boxes, box)
	}
	return out
}

// Config holds server configuration.
type Config struct {
	Host           string
	Port           int
	AuthToken      string // optional expected token value; empty accepts any bearer
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	VisOutputDir   string
	VisURLPrefix   string
	AllowInsecureDownloads bool
	DownloadTimeout        time.Duration

	Pipeline pipeline.Config
	PDFLimits PDFLimits
}

// PDFLimits bounds PDF rendering per request.
type PDFLimits struct {
	DPI                  int
	MaxPages             int
	MaxPixelsPerPage     int
	MaxConcurrentRenders int
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		RequestTimeout:  10 * time.Second,
		MaxBodyBytes:    64 * 1024 * 1024,
		VisOutputDir:    "output/vis",
		VisURLPrefix:    "/static/vis",
		DownloadTimeout: 10 * time.Second,
		Pipeline:        pipeline.DefaultConfig(),
		PDFLimits: PDFLimits{
			DPI:                  150,
			MaxPages:             10,
			MaxPixelsPerPage:     25_000_000,
			MaxConcurrentRenders: 4,
		},
	}
}
