package detector

import (
	"sort"

	"github.com/deepx-ocr/dxocr/internal/utils"
)

// PostProcessOptions controls the DB probability-map postprocess.
type PostProcessOptions struct {
	Thresh        float32
	BoxThresh     float32
	UnclipRatio   float64
	MaxCandidates int
	MinArea       int
}

// PostProcessDB converts a probability map into text boxes in map
// coordinates: binarize at Thresh, extract connected components, keep
// components whose area and mean probability pass the thresholds, fit a
// minimum-area rectangle, expand it by the unclip distance
// d = area * ratio / perimeter, and re-fit. Candidates are capped at
// MaxCandidates by descending score.
func PostProcessDB(prob []float32, w, h int, opts PostProcessOptions) []TextBox {
	if len(prob) != w*h || w <= 0 || h <= 0 {
		return nil
	}
	comps := connectedComponents(prob, w, h, opts.Thresh)

	boxes := make([]TextBox, 0, len(comps))
	for _, c := range comps {
		if c.area < opts.MinArea {
			continue
		}
		score := c.probSum / float64(c.area)
		if score < float64(opts.BoxThresh) {
			continue
		}
		rect := utils.MinAreaRect(c.points)
		rectPts := rect[:]
		area := utils.PolygonArea(rectPts)
		perimeter := utils.PolygonPerimeter(rectPts)
		if area <= 0 || perimeter <= 0 {
			continue
		}
		expanded := utils.UnclipPolygon(rectPts, area*opts.UnclipRatio/perimeter)
		final := utils.MinAreaRect(expanded)
		boxes = append(boxes, TextBox{Quad: final, Score: score})
	}

	if opts.MaxCandidates > 0 && len(boxes) > opts.MaxCandidates {
		sort.SliceStable(boxes, func(i, j int) bool { return boxes[i].Score > boxes[j].Score })
		boxes = boxes[:opts.MaxCandidates]
	}
	return boxes
}

// component aggregates one connected region of the binary map.
type component struct {
	area    int
	probSum float64
	points  []utils.Point
}

// connectedComponents labels 4-connected regions above the threshold
// with an iterative flood fill.
func connectedComponents(prob []float32, w, h int, thresh float32) []component {
	visited := make([]bool, w*h)
	var comps []component
	queue := make([]int, 0, 256)

	for start := range prob {
		if visited[start] || prob[start] < thresh {
			continue
		}
		c := component{}
		queue = append(queue[:0], start)
		visited[start] = true
		for len(queue) > 0 {
			idx := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			x, y := idx%w, idx/w
			c.area++
			c.probSum += float64(prob[idx])
			c.points = append(c.points, utils.Point{X: float64(x), Y: float64(y)})

			for _, n := range [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}} {
				nx, ny := n[0], n[1]
				if nx < 0 || nx >= w || ny < 0 || ny >= h {
					continue
				}
				nidx := ny*w + nx
				if !visited[nidx] && prob[nidx] >= thresh {
					visited[nidx] = true
					queue = append(queue, nidx)
				}
			}
		}
		comps = append(comps, c)
	}
	return comps
}
