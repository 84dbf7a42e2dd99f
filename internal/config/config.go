//nolint:lll
package config

// Config is the complete configuration for the dxocr application,
// loadable from file, environment, and command-line flags.
type Config struct {
	ModelsDir string `mapstructure:"models_dir" yaml:"models_dir" json:"models_dir"`
	Family    string `mapstructure:"family" yaml:"family" json:"family"` // server or mobile
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose   bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline" json:"pipeline"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server" json:"server"`
	Output   OutputConfig   `mapstructure:"output" yaml:"output" json:"output"`
	PDF      PDFConfig      `mapstructure:"pdf" yaml:"pdf" json:"pdf"`
	GPU      GPUConfig      `mapstructure:"gpu" yaml:"gpu" json:"gpu"`
}

// PipelineConfig contains OCR pipeline settings.
type PipelineConfig struct {
	Detector    DetectorConfig   `mapstructure:"detector" yaml:"detector" json:"detector"`
	Recognizer  RecognizerConfig `mapstructure:"recognizer" yaml:"recognizer" json:"recognizer"`
	Orientation FeatureToggles   `mapstructure:"orientation" yaml:"orientation" json:"orientation"`
	Scheduler   SchedulerConfig  `mapstructure:"scheduler" yaml:"scheduler" json:"scheduler"`
	WarmupIterations int         `mapstructure:"warmup_iterations" yaml:"warmup_iterations" json:"warmup_iterations"`
}

// DetectorConfig contains text detection settings.
type DetectorConfig struct {
	Thresh        float32 `mapstructure:"thresh" yaml:"thresh" json:"thresh"`
	BoxThresh     float32 `mapstructure:"box_thresh" yaml:"box_thresh" json:"box_thresh"`
	UnclipRatio   float64 `mapstructure:"unclip_ratio" yaml:"unclip_ratio" json:"unclip_ratio"`
	MaxCandidates int     `mapstructure:"max_candidates" yaml:"max_candidates" json:"max_candidates"`
	NumThreads    int     `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
}

// RecognizerConfig contains text recognition settings.
type RecognizerConfig struct {
	DictPath    string  `mapstructure:"dict_path" yaml:"dict_path" json:"dict_path"`
	ImageHeight int     `mapstructure:"image_height" yaml:"image_height" json:"image_height"`
	ScoreThresh float64 `mapstructure:"score_thresh" yaml:"score_thresh" json:"score_thresh"`
	NumThreads  int     `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
}

// FeatureToggles enables the optional preprocessing stages.
type FeatureToggles struct {
	DocOrientation      bool `mapstructure:"doc_orientation" yaml:"doc_orientation" json:"doc_orientation"`
	TextLineOrientation bool `mapstructure:"textline_orientation" yaml:"textline_orientation" json:"textline_orientation"`
	Unwarping           bool `mapstructure:"unwarping" yaml:"unwarping" json:"unwarping"`
}

// SchedulerConfig sizes the async pipeline stages.
type SchedulerConfig struct {
	IntakeCapacity int `mapstructure:"intake_capacity" yaml:"intake_capacity" json:"intake_capacity"`
	StageCapacity  int `mapstructure:"stage_capacity" yaml:"stage_capacity" json:"stage_capacity"`
	CropCapacity   int `mapstructure:"crop_capacity" yaml:"crop_capacity" json:"crop_capacity"`
	PreWorkers     int `mapstructure:"pre_workers" yaml:"pre_workers" json:"pre_workers"`
	DetWorkers     int `mapstructure:"det_workers" yaml:"det_workers" json:"det_workers"`
	CropWorkers    int `mapstructure:"crop_workers" yaml:"crop_workers" json:"crop_workers"`
	RecWorkers     int `mapstructure:"rec_workers" yaml:"rec_workers" json:"rec_workers"`
}

// ServerConfig contains serve-command settings.
type ServerConfig struct {
	Host             string `mapstructure:"host" yaml:"host" json:"host"`
	Port             int    `mapstructure:"port" yaml:"port" json:"port"`
	AuthToken        string `mapstructure:"auth_token" yaml:"auth_token" json:"auth_token"`
	TimeoutSec       int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	MaxUploadMB      int64  `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	VisOutputDir     string `mapstructure:"vis_output_dir" yaml:"vis_output_dir" json:"vis_output_dir"`
	InsecureDownloads bool  `mapstructure:"insecure_downloads" yaml:"insecure_downloads" json:"insecure_downloads"`
}

// OutputConfig contains result output settings.
type OutputConfig struct {
	Format    string `mapstructure:"format" yaml:"format" json:"format"` // json or text
	Directory string `mapstructure:"directory" yaml:"directory" json:"directory"`
	SaveVis   bool   `mapstructure:"save_vis" yaml:"save_vis" json:"save_vis"`
}

// PDFConfig bounds PDF rendering.
type PDFConfig struct {
	DPI                  int `mapstructure:"dpi" yaml:"dpi" json:"dpi"`
	MaxPages             int `mapstructure:"max_pages" yaml:"max_pages" json:"max_pages"`
	MaxPixelsPerPage     int `mapstructure:"max_pixels_per_page" yaml:"max_pixels_per_page" json:"max_pixels_per_page"`
	MaxConcurrentRenders int `mapstructure:"max_concurrent_renders" yaml:"max_concurrent_renders" json:"max_concurrent_renders"`
}

// GPUConfig contains GPU acceleration settings.
type GPUConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	DeviceID    int    `mapstructure:"device_id" yaml:"device_id" json:"device_id"`
	MemLimitMB  uint64 `mapstructure:"mem_limit_mb" yaml:"mem_limit_mb" json:"mem_limit_mb"`
}
