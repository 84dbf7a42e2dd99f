package utils

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/deepx-ocr/dxocr/internal/mempool"
	"github.com/disintegration/imaging"
)

// ImageProcessingError wraps failures from the image helpers with the
// operation that produced them.
type ImageProcessingError struct {
	Operation string
	Err       error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("image processing error in %s: %v", e.Operation, e.Err)
}

// LetterboxResult describes a letterbox-resized image: the padded output
// plus the dimensions of the actual scaled content inside it.
type LetterboxResult struct {
	Image   image.Image
	ScaledW int // content width before right padding
	ScaledH int // content height before bottom padding
	ScaleX  float64
	ScaleY  float64
}

// LetterboxResize scales the image so its long side equals targetSide,
// then pads right and bottom with black to the next multiple of 32.
// Aspect ratio is preserved; the content always sits at the origin.
func LetterboxResize(img image.Image, targetSide int) (*LetterboxResult, error) {
	if img == nil {
		return nil, &ImageProcessingError{Operation: "letterbox", Err: errors.New("input image is nil")}
	}
	if targetSide <= 0 {
		return nil, &ImageProcessingError{Operation: "letterbox", Err: fmt.Errorf("invalid target side %d", targetSide)}
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return nil, &ImageProcessingError{Operation: "letterbox", Err: errors.New("empty image")}
	}

	long := w
	if h > long {
		long = h
	}
	s := float64(targetSide) / float64(long)
	scaledW := int(math.Round(float64(w) * s))
	scaledH := int(math.Round(float64(h) * s))
	if scaledW < 1 {
		scaledW = 1
	}
	if scaledH < 1 {
		scaledH = 1
	}

	resized := imaging.Resize(img, scaledW, scaledH, imaging.Lanczos)

	padW := roundUpMultiple(scaledW, 32)
	padH := roundUpMultiple(scaledH, 32)
	var out image.Image = resized
	if padW != scaledW || padH != scaledH {
		canvas := imaging.New(padW, padH, color.Black)
		out = imaging.Paste(canvas, resized, image.Pt(0, 0))
	}

	return &LetterboxResult{
		Image:   out,
		ScaledW: scaledW,
		ScaledH: scaledH,
		ScaleX:  float64(scaledW) / float64(w),
		ScaleY:  float64(scaledH) / float64(h),
	}, nil
}

func roundUpMultiple(v, m int) int {
	return (v + m - 1) / m * m
}

// ResizeExact resizes to exact dimensions without preserving aspect ratio.
func ResizeExact(img image.Image, w, h int) image.Image {
	return imaging.Resize(img, w, h, imaging.Lanczos)
}

// PadRight pads the image on the right with black to targetWidth.
// Images already at or beyond targetWidth are returned unchanged.
func PadRight(img image.Image, targetWidth int) image.Image {
	bounds := img.Bounds()
	if bounds.Dx() >= targetWidth {
		return img
	}
	canvas := imaging.New(targetWidth, bounds.Dy(), color.Black)
	return imaging.Paste(canvas, img, image.Pt(0, 0))
}

// Rotate90 rotates counter-clockwise by 90 degrees.
func Rotate90(img image.Image) image.Image { return imaging.Rotate90(img) }

// Rotate180 rotates by 180 degrees.
func Rotate180(img image.Image) image.Image { return imaging.Rotate180(img) }

// Rotate270 rotates counter-clockwise by 270 degrees.
func Rotate270(img image.Image) image.Image { return imaging.Rotate270(img) }

// RotateByClass rotates the image according to an orientation class in
// {0, 90, 180, 270}, undoing the detected rotation.
func RotateByClass(img image.Image, degrees int) image.Image {
	switch degrees {
	case 90:
		return imaging.Rotate270(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// NormalizeImage converts the image to a [1,3,H,W] NCHW float32 buffer:
// pixel values scaled to [0,1], then per-channel mean subtracted and
// divided by per-channel scale. The buffer comes from the shared pool;
// callers return it via mempool.PutFloat32 when the tensor is consumed.
func NormalizeImage(img image.Image, mean, scale [3]float32) ([]float32, int, int, error) {
	if img == nil {
		return nil, 0, 0, &ImageProcessingError{Operation: "normalize", Err: errors.New("input image is nil")}
	}
	nrgba := imaging.Clone(img)
	bounds := nrgba.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, 0, 0, &ImageProcessingError{Operation: "normalize", Err: errors.New("invalid image dimensions")}
	}

	plane := width * height
	data := mempool.GetFloat32(3 * plane)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := nrgba.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()
			idx := y*width + x
			data[idx] = (float32(r>>8)/255.0 - mean[0]) / scale[0]
			data[plane+idx] = (float32(g>>8)/255.0 - mean[1]) / scale[1]
			data[2*plane+idx] = (float32(b>>8)/255.0 - mean[2]) / scale[2]
		}
	}
	return data, width, height, nil
}

// ImageNetMean and ImageNetScale are the normalization constants the
// detection and orientation models were trained with.
var (
	ImageNetMean  = [3]float32{0.485, 0.456, 0.406}
	ImageNetScale = [3]float32{0.229, 0.224, 0.225}
)

// CenteredMean and CenteredScale map pixels to [-1,1]; the recognition
// and unwarping models expect this range.
var (
	CenteredMean  = [3]float32{0.5, 0.5, 0.5}
	CenteredScale = [3]float32{0.5, 0.5, 0.5}
)
