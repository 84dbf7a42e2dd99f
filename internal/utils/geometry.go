package utils

import (
	"image"
	"math"
)

// Point is a 2D point in image coordinates (y grows downward).
type Point struct {
	X float64
	Y float64
}

// Quad is a quadrilateral given as four corners in clockwise order
// starting at the top-left.
type Quad [4]Point

// Box is an axis-aligned bounding box in floating point coordinates.
type Box struct {
	MinX, MinY, MaxX, MaxY float64
}

// NewBox creates a box, normalizing coordinate order.
func NewBox(x1, y1, x2, y2 float64) Box {
	return Box{
		MinX: math.Min(x1, x2),
		MinY: math.Min(y1, y2),
		MaxX: math.Max(x1, x2),
		MaxY: math.Max(y1, y2),
	}
}

func (b Box) Width() float64  { return b.MaxX - b.MinX }
func (b Box) Height() float64 { return b.MaxY - b.MinY }

// ToRect converts the box to an integer rectangle clamped to bounds.
func (b Box) ToRect(bounds image.Rectangle) image.Rectangle {
	x0 := clampInt(int(math.Floor(b.MinX)), bounds.Min.X, bounds.Max.X)
	y0 := clampInt(int(math.Floor(b.MinY)), bounds.Min.Y, bounds.Max.Y)
	x1 := clampInt(int(math.Ceil(b.MaxX)), bounds.Min.X, bounds.Max.X)
	y1 := clampInt(int(math.Ceil(b.MaxY)), bounds.Min.Y, bounds.Max.Y)
	return image.Rect(x0, y0, x1, y1)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Center returns the centroid of the quadrilateral.
func (q Quad) Center() Point {
	var cx, cy float64
	for _, p := range q {
		cx += p.X
		cy += p.Y
	}
	return Point{X: cx / 4, Y: cy / 4}
}

// Bounding returns the axis-aligned bounding box of the quadrilateral.
func (q Quad) Bounding() Box {
	b := Box{MinX: q[0].X, MinY: q[0].Y, MaxX: q[0].X, MaxY: q[0].Y}
	for _, p := range q[1:] {
		b.MinX = math.Min(b.MinX, p.X)
		b.MinY = math.Min(b.MinY, p.Y)
		b.MaxX = math.Max(b.MaxX, p.X)
		b.MaxY = math.Max(b.MaxY, p.Y)
	}
	return b
}

// Scale returns a copy of the quad with both axes scaled.
func (q Quad) Scale(sx, sy float64) Quad {
	var out Quad
	for i, p := range q {
		out[i] = Point{X: p.X * sx, Y: p.Y * sy}
	}
	return out
}

// Clamp limits all corners to [0,w]x[0,h].
func (q Quad) Clamp(w, h float64) Quad {
	var out Quad
	for i, p := range q {
		out[i] = Point{
			X: math.Max(0, math.Min(w, p.X)),
			Y: math.Max(0, math.Min(h, p.Y)),
		}
	}
	return out
}

// BoundingBox returns the axis-aligned bounding box of a point set.
func BoundingBox(pts []Point) Box {
	if len(pts) == 0 {
		return Box{}
	}
	b := Box{MinX: pts[0].X, MinY: pts[0].Y, MaxX: pts[0].X, MaxY: pts[0].Y}
	for _, p := range pts[1:] {
		b.MinX = math.Min(b.MinX, p.X)
		b.MinY = math.Min(b.MinY, p.Y)
		b.MaxX = math.Max(b.MaxX, p.X)
		b.MaxY = math.Max(b.MaxY, p.Y)
	}
	return b
}

// Dist returns the Euclidean distance between two points.
func Dist(a, b Point) float64 { return math.Hypot(a.X-b.X, a.Y-b.Y) }

// OrderClockwise reorders four arbitrary corners into clockwise order
// starting at the top-left, the convention all downstream stages assume.
func OrderClockwise(pts [4]Point) Quad {
	var q Quad
	tl, tr, br, bl := 0, 0, 0, 0
	for i := 1; i < 4; i++ {
		if pts[i].X+pts[i].Y < pts[tl].X+pts[tl].Y {
			tl = i
		}
		if pts[i].X+pts[i].Y > pts[br].X+pts[br].Y {
			br = i
		}
		if pts[i].X-pts[i].Y > pts[tr].X-pts[tr].Y {
			tr = i
		}
		if pts[i].X-pts[i].Y < pts[bl].X-pts[bl].Y {
			bl = i
		}
	}
	q[0], q[1], q[2], q[3] = pts[tl], pts[tr], pts[br], pts[bl]
	return q
}
