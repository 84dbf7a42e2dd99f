package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files.
	ConfigFileName = "dxocr"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "DXOCR"
)

// Loader reads configuration from files, environment, and flag bindings.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader over the global viper instance so cobra
// flag bindings participate.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// Load resolves the configuration from all sources.
func (l *Loader) Load() (*Config, error) {
	l.v.SetConfigName(ConfigFileName)
	l.v.SetConfigType("yaml")
	l.addConfigPaths()

	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; defaults and env apply.
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (l *Loader) addConfigPaths() {
	l.v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		l.v.AddConfigPath(filepath.Join(home, ".config", "dxocr"))
	}
	l.v.AddConfigPath("/etc/dxocr")
}

func (l *Loader) setDefaults() {
	l.v.SetDefault("models_dir", "models")
	l.v.SetDefault("family", "server")
	l.v.SetDefault("log_level", "info")

	l.v.SetDefault("pipeline.detector.thresh", 0.3)
	l.v.SetDefault("pipeline.detector.box_thresh", 0.6)
	l.v.SetDefault("pipeline.detector.unclip_ratio", 1.5)
	l.v.SetDefault("pipeline.detector.max_candidates", 1500)
	l.v.SetDefault("pipeline.recognizer.image_height", 48)
	l.v.SetDefault("pipeline.recognizer.score_thresh", 0.0)

	l.v.SetDefault("server.host", "0.0.0.0")
	l.v.SetDefault("server.port", 8080)
	l.v.SetDefault("server.timeout_sec", 10)
	l.v.SetDefault("server.max_upload_mb", 64)
	l.v.SetDefault("server.vis_output_dir", "output/vis")

	l.v.SetDefault("output.format", "json")
	l.v.SetDefault("output.directory", "output")

	l.v.SetDefault("pdf.dpi", 150)
	l.v.SetDefault("pdf.max_pages", 10)
	l.v.SetDefault("pdf.max_pixels_per_page", 25_000_000)
	l.v.SetDefault("pdf.max_concurrent_renders", 4)
}

func validate(cfg *Config) error {
	if cfg.Family != "server" && cfg.Family != "mobile" {
		return fmt.Errorf("family must be 'server' or 'mobile', got %q", cfg.Family)
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", cfg.Server.Port)
	}
	switch cfg.Output.Format {
	case "json", "text":
	default:
		return fmt.Errorf("output format must be 'json' or 'text', got %q", cfg.Output.Format)
	}
	return nil
}
