package testutil

import (
	"image"
	"image/color"
	"image/draw"
)

// NewUniformImage creates a solid-color RGBA image.
func NewUniformImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

// NewWhiteImage creates a blank white page.
func NewWhiteImage(width, height int) *image.RGBA {
	return NewUniformImage(width, height, color.White)
}

// NewBlockImage creates a white page with a filled dark rectangle,
// which detection-style postprocessing sees as one text region.
func NewBlockImage(width, height int, block image.Rectangle) *image.RGBA {
	img := NewWhiteImage(width, height)
	draw.Draw(img, block, &image.Uniform{C: color.Black}, image.Point{}, draw.Src)
	return img
}

// NewGradientImage creates a horizontal gray gradient, useful for
// verifying resampling code paths.
func NewGradientImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint8(x * 255 / max(1, width-1))
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}
