package utils

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLetterboxResizeLandscape(t *testing.T) {
	src := uniformImage(640, 480, color.White)
	lb, err := LetterboxResize(src, 960)
	require.NoError(t, err)

	// Long side scaled to 960, short side proportional (720), padded to 736.
	assert.Equal(t, 960, lb.ScaledW)
	assert.Equal(t, 720, lb.ScaledH)
	assert.Equal(t, 960, lb.Image.Bounds().Dx())
	assert.Equal(t, 736, lb.Image.Bounds().Dy())
	assert.InDelta(t, 1.5, lb.ScaleX, 1e-9)
	assert.InDelta(t, 1.5, lb.ScaleY, 1e-9)
}

func TestLetterboxResizePortrait(t *testing.T) {
	src := uniformImage(300, 900, color.White)
	lb, err := LetterboxResize(src, 640)
	require.NoError(t, err)
	assert.Equal(t, 640, lb.ScaledH)
	assert.Equal(t, 213, lb.ScaledW) // round(300 * 640/900)
	assert.Equal(t, 224, lb.Image.Bounds().Dx())
	assert.Equal(t, 640, lb.Image.Bounds().Dy())
}

func TestLetterboxResizeMultipleOf32(t *testing.T) {
	for _, size := range []struct{ w, h, target int }{
		{100, 50, 640}, {640, 640, 640}, {333, 777, 960}, {31, 33, 640},
	} {
		src := uniformImage(size.w, size.h, color.White)
		lb, err := LetterboxResize(src, size.target)
		require.NoError(t, err)
		assert.Zero(t, lb.Image.Bounds().Dx()%32, "width not multiple of 32")
		assert.Zero(t, lb.Image.Bounds().Dy()%32, "height not multiple of 32")
	}
}

func TestLetterboxResizePadIsBlack(t *testing.T) {
	src := uniformImage(630, 470, color.White)
	lb, err := LetterboxResize(src, 640)
	require.NoError(t, err)
	// A pixel in the bottom padding band must be black.
	bounds := lb.Image.Bounds()
	if bounds.Dy() > lb.ScaledH {
		r, g, b, _ := lb.Image.At(0, bounds.Dy()-1).RGBA()
		assert.Zero(t, r)
		assert.Zero(t, g)
		assert.Zero(t, b)
	}
}

func TestLetterboxResizeErrors(t *testing.T) {
	_, err := LetterboxResize(nil, 640)
	assert.Error(t, err)
	_, err = LetterboxResize(uniformImage(10, 10, color.White), 0)
	assert.Error(t, err)
}

func TestNormalizeImageValues(t *testing.T) {
	img := uniformImage(2, 2, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	mean := [3]float32{0.5, 0.5, 0.5}
	scale := [3]float32{0.5, 0.5, 0.5}
	data, w, h, err := NormalizeImage(img, mean, scale)
	require.NoError(t, err)
	assert.Equal(t, 2, w)
	assert.Equal(t, 2, h)
	require.Len(t, data, 12)
	// White maps to (1.0 - 0.5) / 0.5 = 1.0 in every channel.
	for i, v := range data {
		assert.InDelta(t, 1.0, v, 1e-5, "index %d", i)
	}
}

func TestNormalizeImageBlack(t *testing.T) {
	img := uniformImage(1, 1, color.Black)
	data, _, _, err := NormalizeImage(img, ImageNetMean, ImageNetScale)
	require.NoError(t, err)
	// Black maps to (0 - mean) / scale per channel.
	assert.InDelta(t, -0.485/0.229, data[0], 1e-4)
	assert.InDelta(t, -0.456/0.224, data[1], 1e-4)
	assert.InDelta(t, -0.406/0.225, data[2], 1e-4)
}

func TestNormalizeImageNCHWLayout(t *testing.T) {
	// 2x1 image: left pixel pure red, right pixel pure blue.
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	img.Set(1, 0, color.RGBA{B: 255, A: 255})
	zero := [3]float32{0, 0, 0}
	one := [3]float32{1, 1, 1}
	data, _, _, err := NormalizeImage(img, zero, one)
	require.NoError(t, err)
	// Layout: R-plane [2], G-plane [2], B-plane [2].
	assert.InDelta(t, 1.0, data[0], 1e-5) // R of left
	assert.InDelta(t, 0.0, data[1], 1e-5) // R of right
	assert.InDelta(t, 0.0, data[4], 1e-5) // B of left
	assert.InDelta(t, 1.0, data[5], 1e-5) // B of right
}

func TestPadRight(t *testing.T) {
	src := uniformImage(30, 48, color.White)
	padded := PadRight(src, 144)
	assert.Equal(t, 144, padded.Bounds().Dx())
	assert.Equal(t, 48, padded.Bounds().Dy())

	// Beyond-content pixels are black.
	r, g, b, _ := padded.At(100, 20).RGBA()
	assert.Zero(t, r+g+b)

	// Already wide enough: unchanged.
	same := PadRight(src, 20)
	assert.Equal(t, 30, same.Bounds().Dx())
}

func TestRotateByClass(t *testing.T) {
	src := uniformImage(40, 20, color.White)
	assert.Equal(t, src.Bounds(), RotateByClass(src, 0).Bounds())
	r90 := RotateByClass(src, 90)
	assert.Equal(t, 20, r90.Bounds().Dx())
	assert.Equal(t, 40, r90.Bounds().Dy())
	r180 := RotateByClass(src, 180)
	assert.Equal(t, 40, r180.Bounds().Dx())
	r270 := RotateByClass(src, 270)
	assert.Equal(t, 20, r270.Bounds().Dx())
}

func TestResizeExact(t *testing.T) {
	out := ResizeExact(uniformImage(100, 60, color.White), 48, 48)
	assert.Equal(t, 48, out.Bounds().Dx())
	assert.Equal(t, 48, out.Bounds().Dy())
}
