package utils

import "math"

// ComputeHomography solves for the 3x3 projective transform mapping the
// four points p onto q. Returns false when the system is degenerate.
func ComputeHomography(p, q [4]Point) ([9]float64, bool) {
	var a [8][8]float64
	var b [8]float64
	for i := 0; i < 4; i++ {
		sx, sy := p[i].X, p[i].Y
		dx, dy := q[i].X, q[i].Y
		a[2*i] = [8]float64{sx, sy, 1, 0, 0, 0, -sx * dx, -sy * dx}
		b[2*i] = dx
		a[2*i+1] = [8]float64{0, 0, 0, sx, sy, 1, -sx * dy, -sy * dy}
		b[2*i+1] = dy
	}
	h8, ok := solve8x8(a, b)
	if !ok {
		return [9]float64{}, false
	}
	return [9]float64{h8[0], h8[1], h8[2], h8[3], h8[4], h8[5], h8[6], h8[7], 1}, true
}

// ApplyHomography maps (x, y) through the transform h.
func ApplyHomography(h [9]float64, x, y float64) (float64, float64) {
	w := h[6]*x + h[7]*y + h[8]
	if math.Abs(w) < 1e-12 {
		return 0, 0
	}
	return (h[0]*x + h[1]*y + h[2]) / w, (h[3]*x + h[4]*y + h[5]) / w
}

// InvertHomography returns the inverse 3x3 transform, or false when h is
// singular.
func InvertHomography(h [9]float64) ([9]float64, bool) {
	// Cofactor expansion of the 3x3 inverse.
	c00 := h[4]*h[8] - h[5]*h[7]
	c01 := h[5]*h[6] - h[3]*h[8]
	c02 := h[3]*h[7] - h[4]*h[6]
	det := h[0]*c00 + h[1]*c01 + h[2]*c02
	if math.Abs(det) < 1e-12 {
		return [9]float64{}, false
	}
	inv := [9]float64{
		c00, h[2]*h[7] - h[1]*h[8], h[1]*h[5] - h[2]*h[4],
		c01, h[0]*h[8] - h[2]*h[6], h[2]*h[3] - h[0]*h[5],
		c02, h[1]*h[6] - h[0]*h[7], h[0]*h[4] - h[1]*h[3],
	}
	for i := range inv {
		inv[i] /= det
	}
	return inv, true
}

// solve8x8 performs Gaussian elimination with partial pivoting.
func solve8x8(a [8][8]float64, b [8]float64) ([8]float64, bool) {
	for col := 0; col < 8; col++ {
		pivot := col
		for row := col + 1; row < 8; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return [8]float64{}, false
		}
		if pivot != col {
			a[col], a[pivot] = a[pivot], a[col]
			b[col], b[pivot] = b[pivot], b[col]
		}
		inv := 1.0 / a[col][col]
		for j := col; j < 8; j++ {
			a[col][j] *= inv
		}
		b[col] *= inv
		for row := 0; row < 8; row++ {
			if row == col || a[row][col] == 0 {
				continue
			}
			f := a[row][col]
			for j := col; j < 8; j++ {
				a[row][j] -= f * a[col][j]
			}
			b[row] -= f * b[col]
		}
	}
	return b, true
}
