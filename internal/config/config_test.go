package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// The yaml tags must round-trip: operators hand-edit dxocr.yaml and a
// drifted tag silently loses their setting.
func TestConfigYAMLRoundTrip(t *testing.T) {
	original := Config{
		ModelsDir: "/srv/models",
		Family:    "mobile",
		LogLevel:  "debug",
		Pipeline: PipelineConfig{
			Detector: DetectorConfig{
				Thresh:        0.35,
				BoxThresh:     0.65,
				UnclipRatio:   2.0,
				MaxCandidates: 1000,
			},
			Recognizer: RecognizerConfig{
				DictPath:    "/srv/dict.txt",
				ImageHeight: 48,
				ScoreThresh: 0.5,
			},
			Scheduler: SchedulerConfig{
				IntakeCapacity: 32,
				RecWorkers:     2,
			},
		},
		Server: ServerConfig{
			Host:      "127.0.0.1",
			Port:      9090,
			AuthToken: "t0ken",
		},
		PDF: PDFConfig{DPI: 200, MaxPages: 5},
	}

	data, err := yaml.Marshal(&original)
	require.NoError(t, err)

	var decoded Config
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, original, decoded)
}

func TestConfigYAMLKeys(t *testing.T) {
	data, err := yaml.Marshal(&Config{Family: "server"})
	require.NoError(t, err)
	s := string(data)
	// Keys are snake_case, matching the viper defaults and env names.
	assert.Contains(t, s, "models_dir:")
	assert.Contains(t, s, "log_level:")
	assert.Contains(t, s, "max_pixels_per_page:")
	assert.Contains(t, s, "vis_output_dir:")
}
