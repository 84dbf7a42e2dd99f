package orientation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeProbabilities(t *testing.T) {
	classes := []int{0, 90, 180, 270}
	tests := []struct {
		name      string
		probs     []float32
		wantAngle int
		wantConf  float64
	}{
		{"upright", []float32{0.97, 0.01, 0.01, 0.01}, 0, 0.97},
		{"rotated 90", []float32{0.02, 0.93, 0.03, 0.02}, 90, 0.93},
		{"rotated 270", []float32{0.1, 0.1, 0.1, 0.7}, 270, 0.7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			angle, conf, err := DecodeProbabilities(tt.probs, classes)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAngle, angle)
			assert.InDelta(t, tt.wantConf, conf, 1e-5)
		})
	}
}

func TestDecodeProbabilitiesTwoClass(t *testing.T) {
	angle, conf, err := DecodeProbabilities([]float32{0.15, 0.85}, []int{0, 180})
	require.NoError(t, err)
	assert.Equal(t, 180, angle)
	assert.InDelta(t, 0.85, conf, 1e-5)
}

func TestDecodeProbabilitiesShortVector(t *testing.T) {
	_, _, err := DecodeProbabilities([]float32{0.5}, []int{0, 90, 180, 270})
	assert.Error(t, err)
}

// The model output is already softmax-normalized; the decoder must use
// the values as-is, not re-normalize them.
func TestDecodeProbabilitiesNoDoubleSoftmax(t *testing.T) {
	_, conf, err := DecodeProbabilities([]float32{0.9, 0.1}, []int{0, 180})
	require.NoError(t, err)
	assert.InDelta(t, 0.9, conf, 1e-6)
}

func TestShouldApply(t *testing.T) {
	cfg := DefaultConfig() // threshold 0.9
	assert.True(t, cfg.ShouldApply(90, 0.95))
	assert.True(t, cfg.ShouldApply(180, 0.9))
	assert.False(t, cfg.ShouldApply(90, 0.89))
	assert.False(t, cfg.ShouldApply(0, 0.99)) // no rotation needed
}

func TestDefaultConfigs(t *testing.T) {
	doc := DefaultConfig()
	assert.Equal(t, []int{0, 90, 180, 270}, doc.Classes)
	assert.InDelta(t, 0.9, doc.ConfidenceThreshold, 1e-9)

	line := DefaultTextLineConfig()
	assert.Equal(t, []int{0, 180}, line.Classes)
	assert.Equal(t, 160, line.InputWidth)
	assert.Equal(t, 80, line.InputHeight)
}
