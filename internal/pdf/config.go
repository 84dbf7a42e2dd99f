package pdf

import "fmt"

// Render limits and defaults. Points-per-inch follows the PDF standard.
const (
	PointsPerInch = 72.0

	DefaultDPI               = 150
	DefaultMaxPages          = 10
	DefaultMaxPixelsPerPage  = 25_000_000 // 5000x5000
	DefaultMaxConcurrent     = 4

	MinDPI           = 72
	MaxDPI           = 300
	MinPages         = 1
	MaxPages         = 100
	MinConcurrent    = 1
	MaxConcurrent    = 16
)

// RenderConfig controls how a document is rasterized into page images.
type RenderConfig struct {
	DPI                  int
	MaxPages             int
	MaxPixelsPerPage     int
	MaxConcurrentRenders int
}

// DefaultRenderConfig returns the render defaults.
func DefaultRenderConfig() RenderConfig {
	return RenderConfig{
		DPI:                  DefaultDPI,
		MaxPages:             DefaultMaxPages,
		MaxPixelsPerPage:     DefaultMaxPixelsPerPage,
		MaxConcurrentRenders: DefaultMaxConcurrent,
	}
}

// Validate checks the configuration ranges. The returned code is one of
// the 1001/1009 configuration error codes, or CodeSuccess.
func (c RenderConfig) Validate() (int, error) {
	if c.DPI < MinDPI || c.DPI > MaxDPI {
		if c.DPI > MaxDPI {
			return CodeDPILimitExceeded, fmt.Errorf("dpi must be in range [%d, %d], got %d", MinDPI, MaxDPI, c.DPI)
		}
		return CodeConfigError, fmt.Errorf("dpi must be in range [%d, %d], got %d", MinDPI, MaxDPI, c.DPI)
	}
	if c.MaxPages < MinPages || c.MaxPages > MaxPages {
		return CodeConfigError, fmt.Errorf("max pages must be in range [%d, %d], got %d", MinPages, MaxPages, c.MaxPages)
	}
	if c.MaxConcurrentRenders < MinConcurrent || c.MaxConcurrentRenders > MaxConcurrent {
		return CodeConfigError, fmt.Errorf("concurrent renders must be in range [%d, %d], got %d",
			MinConcurrent, MaxConcurrent, c.MaxConcurrentRenders)
	}
	if c.MaxPixelsPerPage <= 0 {
		return CodeConfigError, fmt.Errorf("max pixels per page must be > 0, got %d", c.MaxPixelsPerPage)
	}
	return CodeSuccess, nil
}
