package pipeline

import (
	"context"
	"errors"
	"image"
	"sort"
	"time"

	"github.com/deepx-ocr/dxocr/internal/detector"
	"github.com/deepx-ocr/dxocr/internal/utils"
)

// preprocess runs the whole-page stages: document orientation followed
// by unwarping, each gated by the task config.
func (p *Pipeline) preprocess(ctx context.Context, img image.Image, cfg TaskConfig) (image.Image, int, error) {
	out := img
	rotated := 0
	if cfg.UseDocOrientation && p.Orienter != nil {
		var err error
		out, rotated, err = p.Orienter.Apply(ctx, out)
		if err != nil {
			return nil, 0, &StageError{Stage: "orientation", Err: err}
		}
	}
	if cfg.UseUnwarping && p.Rectifier != nil {
		var err error
		out, err = p.Rectifier.Apply(ctx, out)
		if err != nil {
			return nil, 0, &StageError{Stage: "unwarp", Err: err}
		}
	}
	return out, rotated, nil
}

// detect runs text detection with the task's threshold overrides.
func (p *Pipeline) detect(ctx context.Context, img image.Image, cfg TaskConfig) ([]detector.TextBox, error) {
	boxes, err := p.Detector.Detect(ctx, img, detector.Overrides{
		Thresh:      cfg.DetThresh,
		BoxThresh:   cfg.DetBoxThresh,
		UnclipRatio: cfg.DetUnclipRatio,
	})
	if err != nil {
		return nil, &StageError{Stage: "detection", Err: err}
	}
	return boxes, nil
}

// recognizeCrop runs per-line orientation and recognition for one crop.
// A nil entry with nil error means the line was filtered by the score
// threshold or decoded to nothing.
func (p *Pipeline) recognizeCrop(ctx context.Context, crop image.Image, quad utils.Quad, cfg TaskConfig) (*TextEntry, bool, error) {
	lineRotated := false
	if cfg.UseTextLineOrientation && p.LineOrienter != nil {
		angle, conf, err := p.LineOrienter.Predict(ctx, crop)
		if err != nil {
			return nil, false, &StageError{Stage: "line-orientation", Err: err}
		}
		if angle == 180 && p.LineOrienter.ShouldApply(angle, conf) {
			crop = utils.Rotate180(crop)
			lineRotated = true
		}
	}

	res, err := p.Recognizer.Recognize(ctx, crop)
	if err != nil {
		return nil, lineRotated, &StageError{Stage: "recognition", Err: err}
	}
	if res.Text == "" || res.Confidence < cfg.RecScoreThresh {
		return nil, lineRotated, nil
	}
	return &TextEntry{Quad: quad, Text: res.Text, Confidence: res.Confidence}, lineRotated, nil
}

// sortEntries orders entries in reading order and assigns sequential
// indices. Entries whose vertical centers are within half the smaller
// box height count as one line and order left to right.
func sortEntries(entries []TextEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entryLess(entries[i], entries[j])
	})
	for i := range entries {
		entries[i].Index = i
	}
}

func entryLess(a, b TextEntry) bool {
	ca, cb := a.Quad.Center(), b.Quad.Center()
	ha := a.Quad.Bounding().Height()
	hb := b.Quad.Bounding().Height()
	tol := 0.5 * ha
	if hb < ha {
		tol = 0.5 * hb
	}
	if diff := ca.Y - cb.Y; diff > tol || diff < -tol {
		return ca.Y < cb.Y
	}
	return ca.X < cb.X
}

// Process runs the full chain synchronously for one image: orientation,
// unwarping, detection, per-region crop, line orientation, recognition,
// and reading-order sort. This is the non-server entry point.
func (p *Pipeline) Process(ctx context.Context, img image.Image, cfg TaskConfig) (*TaskResult, error) {
	if img == nil {
		return nil, errors.New("nil input image")
	}
	if p.Detector == nil || p.Recognizer == nil {
		return nil, errors.New("pipeline not initialized")
	}

	start := time.Now()
	result := &TaskResult{}

	preStart := time.Now()
	processed, _, err := p.preprocess(ctx, img, cfg)
	if err != nil {
		return nil, err
	}
	result.Stats.OrientationTime = time.Since(preStart)
	result.ProcessedImage = processed

	detStart := time.Now()
	boxes, err := p.detect(ctx, processed, cfg)
	if err != nil {
		return nil, err
	}
	result.Stats.DetectionTime = time.Since(detStart)
	result.Stats.DetectedBoxes = len(boxes)

	recStart := time.Now()
	entries := make([]TextEntry, 0, len(boxes))
	for _, box := range boxes {
		crop, _, err := utils.RotateCrop(processed, box.Quad)
		if err != nil {
			continue
		}
		entry, lineRotated, err := p.recognizeCrop(ctx, crop, box.Quad, cfg)
		if err != nil {
			return nil, err
		}
		if lineRotated {
			result.Stats.RotatedBoxes++
		}
		if entry != nil {
			entries = append(entries, *entry)
		}
	}
	result.Stats.RecognitionTime = time.Since(recStart)
	result.Stats.RecognizedBoxes = len(entries)

	sortEntries(entries)
	result.Entries = entries
	result.Stats.TotalTime = time.Since(start)
	return result, nil
}
