package utils

import (
	"image"
	"image/color"
)

// DrawPolygon draws a closed polygon outline onto dst.
func DrawPolygon(dst *image.RGBA, pts []Point, col color.Color, thickness int) {
	if len(pts) < 2 {
		return
	}
	for i := range pts {
		a := image.Pt(int(pts[i].X), int(pts[i].Y))
		b := image.Pt(int(pts[(i+1)%len(pts)].X), int(pts[(i+1)%len(pts)].Y))
		drawLine(dst, a, b, col, thickness)
	}
}

// drawLine rasterizes a thick line segment with Bresenham stepping.
func drawLine(dst *image.RGBA, a, b image.Point, col color.Color, thickness int) {
	dx := absInt(b.X - a.X)
	dy := -absInt(b.Y - a.Y)
	sx := 1
	if a.X > b.X {
		sx = -1
	}
	sy := 1
	if a.Y > b.Y {
		sy = -1
	}
	err := dx + dy
	x, y := a.X, a.Y
	for {
		drawThickPoint(dst, x, y, col, thickness)
		if x == b.X && y == b.Y {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
}

func drawThickPoint(dst *image.RGBA, x, y int, col color.Color, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	r := thickness / 2
	bounds := dst.Bounds()
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			px, py := x+dx, y+dy
			if image.Pt(px, py).In(bounds) {
				dst.Set(px, py, col)
			}
		}
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
