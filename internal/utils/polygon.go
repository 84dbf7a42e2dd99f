package utils

import (
	"math"
	"sort"
)

// PolygonArea returns the absolute area of a simple polygon (shoelace).
func PolygonArea(pts []Point) float64 {
	if len(pts) < 3 {
		return 0
	}
	var s float64
	for i := range pts {
		j := (i + 1) % len(pts)
		s += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return math.Abs(s) / 2
}

// PolygonPerimeter returns the closed-path length of the polygon.
func PolygonPerimeter(pts []Point) float64 {
	if len(pts) < 2 {
		return 0
	}
	var s float64
	for i := range pts {
		j := (i + 1) % len(pts)
		s += Dist(pts[i], pts[j])
	}
	return s
}

// signedArea is positive for clockwise order in a y-down frame.
func signedArea(pts []Point) float64 {
	var s float64
	for i := range pts {
		j := (i + 1) % len(pts)
		s += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return s / 2
}

// UnclipPolygon offsets every edge of a convex polygon outward by the
// given distance and rebuilds corners from adjacent edge intersections.
// This is the detector's box expansion: d = area * ratio / perimeter.
func UnclipPolygon(pts []Point, distance float64) []Point {
	n := len(pts)
	if n < 3 || distance <= 0 {
		return append([]Point(nil), pts...)
	}
	// Outward normal depends on winding; normalize to clockwise (y down).
	poly := append([]Point(nil), pts...)
	if signedArea(poly) < 0 {
		for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
			poly[i], poly[j] = poly[j], poly[i]
		}
	}

	type line struct{ a, b Point }
	shifted := make([]line, 0, n)
	for i := 0; i < n; i++ {
		p0 := poly[i]
		p1 := poly[(i+1)%n]
		ex, ey := p1.X-p0.X, p1.Y-p0.Y
		l := math.Hypot(ex, ey)
		if l < 1e-9 {
			continue
		}
		// Clockwise winding in a y-down frame puts the outward normal at
		// (ey, -ex) / |e|.
		nx, ny := ey/l, -ex/l
		shifted = append(shifted, line{
			a: Point{X: p0.X + nx*distance, Y: p0.Y + ny*distance},
			b: Point{X: p1.X + nx*distance, Y: p1.Y + ny*distance},
		})
	}
	if len(shifted) < 3 {
		return append([]Point(nil), pts...)
	}

	out := make([]Point, 0, len(shifted))
	for i := range shifted {
		cur := shifted[i]
		next := shifted[(i+1)%len(shifted)]
		p, ok := intersectLines(cur.a, cur.b, next.a, next.b)
		if !ok {
			// Parallel adjacent edges meet at the shared shifted endpoint.
			p = cur.b
		}
		out = append(out, p)
	}
	return out
}

func intersectLines(a1, a2, b1, b2 Point) (Point, bool) {
	d1x, d1y := a2.X-a1.X, a2.Y-a1.Y
	d2x, d2y := b2.X-b1.X, b2.Y-b1.Y
	den := d1x*d2y - d1y*d2x
	if math.Abs(den) < 1e-9 {
		return Point{}, false
	}
	t := ((b1.X-a1.X)*d2y - (b1.Y-a1.Y)*d2x) / den
	return Point{X: a1.X + t*d1x, Y: a1.Y + t*d1y}, true
}

// ConvexHull computes the convex hull with Andrew's monotone chain,
// returned in counter-clockwise order (y-up convention of the algorithm).
func ConvexHull(pts []Point) []Point {
	p := removeDuplicatePoints(pts)
	if len(p) <= 2 {
		return p
	}
	sortPoints(p)
	lower := buildHalfHull(p)
	rev := make([]Point, len(p))
	for i := range p {
		rev[i] = p[len(p)-1-i]
	}
	upper := buildHalfHull(rev)
	return append(lower[:len(lower)-1], upper[:len(upper)-1]...)
}

func removeDuplicatePoints(p []Point) []Point {
	seen := make(map[Point]struct{}, len(p))
	out := make([]Point, 0, len(p))
	for _, pt := range p {
		if _, ok := seen[pt]; ok {
			continue
		}
		seen[pt] = struct{}{}
		out = append(out, pt)
	}
	return out
}

func sortPoints(p []Point) {
	sort.Slice(p, func(i, j int) bool {
		if p[i].X != p[j].X {
			return p[i].X < p[j].X
		}
		return p[i].Y < p[j].Y
	})
}

func buildHalfHull(p []Point) []Point {
	hull := make([]Point, 0, len(p))
	for _, pt := range p {
		for len(hull) >= 2 && crossProduct(hull[len(hull)-2], hull[len(hull)-1], pt) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, pt)
	}
	return hull
}

func crossProduct(o, a, b Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// MinAreaRect computes the minimum-area rotated rectangle enclosing the
// points, via rotating calipers over the convex hull. The corners come
// back clockwise from the top-left.
func MinAreaRect(pts []Point) Quad {
	hull := ConvexHull(pts)
	switch len(hull) {
	case 0:
		return Quad{}
	case 1:
		p := hull[0]
		return Quad{p, p, p, p}
	case 2:
		a, b := hull[0], hull[1]
		return OrderClockwise([4]Point{a, b, b, a})
	}

	best := math.MaxFloat64
	var bestQuad [4]Point
	n := len(hull)
	for i := 0; i < n; i++ {
		p0 := hull[i]
		p1 := hull[(i+1)%n]
		ex, ey := p1.X-p0.X, p1.Y-p0.Y
		l := math.Hypot(ex, ey)
		if l < 1e-12 {
			continue
		}
		ux, uy := ex/l, ey/l  // edge direction
		vx, vy := -uy, ux     // normal
		minU, maxU := math.MaxFloat64, -math.MaxFloat64
		minV, maxV := math.MaxFloat64, -math.MaxFloat64
		for _, p := range hull {
			du := (p.X-p0.X)*ux + (p.Y-p0.Y)*uy
			dv := (p.X-p0.X)*vx + (p.Y-p0.Y)*vy
			minU = math.Min(minU, du)
			maxU = math.Max(maxU, du)
			minV = math.Min(minV, dv)
			maxV = math.Max(maxV, dv)
		}
		area := (maxU - minU) * (maxV - minV)
		if area < best {
			best = area
			corner := func(u, v float64) Point {
				return Point{X: p0.X + u*ux + v*vx, Y: p0.Y + u*uy + v*vy}
			}
			bestQuad = [4]Point{
				corner(minU, minV), corner(maxU, minV),
				corner(maxU, maxV), corner(minU, maxV),
			}
		}
	}
	return OrderClockwise(bestQuad)
}
