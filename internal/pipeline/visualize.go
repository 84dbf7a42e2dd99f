package pipeline

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/deepx-ocr/dxocr/internal/utils"
)

var (
	boxColor = color.RGBA{R: 0, G: 200, B: 0, A: 255}
	visSeq   atomic.Uint64
)

// RenderOverlay draws the result's quadrilaterals over the processed
// image. Quads are already in the processed image's coordinate space.
func RenderOverlay(result *TaskResult) *image.RGBA {
	base := result.ProcessedImage
	bounds := base.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(out, out.Bounds(), base, bounds.Min, draw.Src)
	for _, e := range result.Entries {
		utils.DrawPolygon(out, e.Quad[:], boxColor, 2)
	}
	return out
}

// SaveVisualization renders the overlay and writes it as PNG under dir.
// Returns the generated filename (without directory).
func SaveVisualization(result *TaskResult, dir string) (string, error) {
	if result == nil || result.ProcessedImage == nil {
		return "", fmt.Errorf("no processed image to visualize")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create visualization dir: %w", err)
	}
	name := fmt.Sprintf("vis_%d_%d_%d.png",
		time.Now().UnixNano(), result.ID, visSeq.Add(1))
	path := filepath.Join(dir, name)
	f, err := os.Create(path) //nolint:gosec // G304: writing into the configured output dir
	if err != nil {
		return "", fmt.Errorf("create visualization file: %w", err)
	}
	defer func() { _ = f.Close() }()
	if err := png.Encode(f, RenderOverlay(result)); err != nil {
		return "", fmt.Errorf("encode visualization: %w", err)
	}
	return name, nil
}
