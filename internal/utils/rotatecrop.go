package utils

import (
	"errors"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// verticalAspectThreshold is the height/width ratio beyond which a crop is
// treated as a vertical text line and rotated to horizontal.
const verticalAspectThreshold = 1.5

// RotateCrop extracts the quadrilateral region from src as an axis-aligned
// image via a perspective transform. Output size follows the quad's edge
// lengths: W = max(top, bottom), H = max(left, right). Crops taller than
// 1.5x their width are rotated 90 degrees counter-clockwise so recognition
// always sees a horizontal line; Rotated reports whether that happened.
func RotateCrop(src image.Image, quad Quad) (img image.Image, rotated bool, err error) {
	if src == nil {
		return nil, false, errors.New("nil source image")
	}
	w := int(math.Round(math.Max(Dist(quad[0], quad[1]), Dist(quad[2], quad[3]))))
	h := int(math.Round(math.Max(Dist(quad[0], quad[3]), Dist(quad[1], quad[2]))))
	if w < 1 || h < 1 {
		return nil, false, errors.New("degenerate quadrilateral")
	}

	dst := [4]Point{{0, 0}, {float64(w), 0}, {float64(w), float64(h)}, {0, float64(h)}}
	hom, ok := ComputeHomography(dst, [4]Point(quad))
	if !ok {
		return nil, false, errors.New("degenerate quadrilateral")
	}

	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx, sy := ApplyHomography(hom, float64(x)+0.5, float64(y)+0.5)
			out.Set(x, y, BilinearSample(src, sx-0.5, sy-0.5))
		}
	}

	if float64(h)/float64(w) > verticalAspectThreshold {
		return imaging.Rotate90(out), true, nil
	}
	return out, false, nil
}

// BilinearSample samples src at fractional coordinates, clamping at edges.
func BilinearSample(src image.Image, x, y float64) color.Color {
	bounds := src.Bounds()
	maxX := float64(bounds.Dx() - 1)
	maxY := float64(bounds.Dy() - 1)
	x = math.Max(0, math.Min(maxX, x))
	y = math.Max(0, math.Min(maxY, y))

	x0, y0 := int(x), int(y)
	x1, y1 := x0+1, y0+1
	if x1 > int(maxX) {
		x1 = x0
	}
	if y1 > int(maxY) {
		y1 = y0
	}
	fx := x - float64(x0)
	fy := y - float64(y0)

	c00 := toRGBA(src.At(bounds.Min.X+x0, bounds.Min.Y+y0))
	c10 := toRGBA(src.At(bounds.Min.X+x1, bounds.Min.Y+y0))
	c01 := toRGBA(src.At(bounds.Min.X+x0, bounds.Min.Y+y1))
	c11 := toRGBA(src.At(bounds.Min.X+x1, bounds.Min.Y+y1))

	blend := func(a, b, c, d float64) uint8 {
		top := lerp(a, b, fx)
		bot := lerp(c, d, fx)
		return uint8(math.Round(lerp(top, bot, fy)))
	}
	return color.NRGBA{
		R: blend(c00.r, c10.r, c01.r, c11.r),
		G: blend(c00.g, c10.g, c01.g, c11.g),
		B: blend(c00.b, c10.b, c01.b, c11.b),
		A: 255,
	}
}

type rgba struct{ r, g, b, a float64 }

func toRGBA(c color.Color) rgba {
	r, g, b, a := c.RGBA()
	return rgba{float64(r >> 8), float64(g >> 8), float64(b >> 8), float64(a >> 8)}
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }
