package config

import (
	"errors"
	"time"
)

// Config is the top-level configuration struct.  All fields have safe defaults
// so callers can start with Default() and override only what they need.
type Config struct {
	// Worker pool controls for asynchronous still-image jobs.
	WorkerCount int           `mapstructure:"worker_count" yaml:"worker_count"` // default: runtime.NumCPU()
	QueueSize   int           `mapstructure:"queue_size" yaml:"queue_size"`     // max queued jobs before backpressure; default: 256
	JobTimeout  time.Duration `mapstructure:"job_timeout" yaml:"job_timeout"`

	// Streaming / memory limits for uploaded images.
	MaxImageBytes int64 `mapstructure:"max_image_bytes" yaml:"max_image_bytes"` // 0 = no limit
	ChunkSize     int   `mapstructure:"chunk_size" yaml:"chunk_size"`           // default 32 KiB

	Decode    DecodeConfig    `mapstructure:"decode" yaml:"decode"`
	Capture   CaptureConfig   `mapstructure:"capture" yaml:"capture"`
	Validator ValidatorConfig `mapstructure:"validator" yaml:"validator"`
	HTTP      HTTPConfig      `mapstructure:"http" yaml:"http"`

	// SnapshotDir keeps still images that produced no code. Empty disables it.
	SnapshotDir string `mapstructure:"snapshot_dir" yaml:"snapshot_dir"`

	// Logging.
	LogLevel string `mapstructure:"log_level" yaml:"log_level"` // "debug", "info", "warn", "error"
}

// DecodeConfig tunes the still-image strategy cascade.
type DecodeConfig struct {
	MaxDimension  int  `mapstructure:"max_dimension" yaml:"max_dimension"`   // downscale above / upscale target; default 1000
	UpscaleBelow  int  `mapstructure:"upscale_below" yaml:"upscale_below"`   // upscale when both sides are smaller; default 500
	LumaThreshold int  `mapstructure:"luma_threshold" yaml:"luma_threshold"` // binarization and contrast midpoint; default 128
	TryHarder     bool `mapstructure:"try_harder" yaml:"try_harder"`
}

// CaptureConfig controls live capture sessions.
type CaptureConfig struct {
	ScanInterval    time.Duration     `mapstructure:"scan_interval" yaml:"scan_interval"`         // default 100ms
	MaxPlayAttempts int               `mapstructure:"max_play_attempts" yaml:"max_play_attempts"` // default 3
	PlayBackoff     time.Duration     `mapstructure:"play_backoff" yaml:"play_backoff"`           // multiplied by the attempt number; default 100ms
	Device          string            `mapstructure:"device" yaml:"device"`                       // platform device path, e.g. /dev/video0
	Preferred       ConstraintsConfig `mapstructure:"preferred" yaml:"preferred"`
	Minimal         ConstraintsConfig `mapstructure:"minimal" yaml:"minimal"`
}

// ConstraintsConfig is the file form of a capture constraint request.
type ConstraintsConfig struct {
	FacingMode  string  `mapstructure:"facing_mode" yaml:"facing_mode"`
	IdealWidth  int     `mapstructure:"ideal_width" yaml:"ideal_width"`
	MaxWidth    int     `mapstructure:"max_width" yaml:"max_width"`
	IdealHeight int     `mapstructure:"ideal_height" yaml:"ideal_height"`
	MaxHeight   int     `mapstructure:"max_height" yaml:"max_height"`
	AspectRatio float64 `mapstructure:"aspect_ratio" yaml:"aspect_ratio"`
}

// ValidatorConfig configures the HTTP payment-validation collaborator.
type ValidatorConfig struct {
	Endpoint string        `mapstructure:"endpoint" yaml:"endpoint"` // empty disables validation
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Token    string        `mapstructure:"token" yaml:"token"`
}

// HTTPConfig configures the upload / live-scan server.
type HTTPConfig struct {
	Addr           string `mapstructure:"addr" yaml:"addr"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes"`
}

// Default returns a Config populated with sensible production defaults.
func Default() Config {
	return Config{
		WorkerCount:   0, // resolved at runtime to NumCPU
		QueueSize:     256,
		JobTimeout:    30 * time.Second,
		MaxImageBytes: 20 << 20,
		ChunkSize:     32 * 1024,
		Decode: DecodeConfig{
			MaxDimension:  1000,
			UpscaleBelow:  500,
			LumaThreshold: 128,
			TryHarder:     true,
		},
		Capture: CaptureConfig{
			ScanInterval:    100 * time.Millisecond,
			MaxPlayAttempts: 3,
			PlayBackoff:     100 * time.Millisecond,
			Device:          "/dev/video0",
			Preferred: ConstraintsConfig{
				FacingMode:  "environment",
				IdealWidth:  1280,
				MaxWidth:    1920,
				IdealHeight: 720,
				MaxHeight:   1080,
				AspectRatio: 16.0 / 9.0,
			},
			Minimal: ConstraintsConfig{FacingMode: "environment"},
		},
		Validator: ValidatorConfig{Timeout: 10 * time.Second},
		HTTP: HTTPConfig{
			Addr:           ":8080",
			MaxUploadBytes: 20 << 20,
		},
		LogLevel: "info",
	}
}

// Validate returns an error if the configuration is inconsistent.
func Validate(c Config) error {
	if c.ChunkSize <= 0 {
		return errors.New("config: ChunkSize must be positive")
	}
	if c.Decode.MaxDimension <= 0 {
		return errors.New("config: Decode.MaxDimension must be positive")
	}
	if c.Decode.UpscaleBelow <= 0 || c.Decode.UpscaleBelow >= c.Decode.MaxDimension {
		return errors.New("config: Decode.UpscaleBelow must be positive and less than MaxDimension")
	}
	if c.Decode.LumaThreshold < 1 || c.Decode.LumaThreshold > 255 {
		return errors.New("config: Decode.LumaThreshold must be between 1 and 255")
	}
	if c.Capture.ScanInterval <= 0 {
		return errors.New("config: Capture.ScanInterval must be positive")
	}
	if c.Capture.MaxPlayAttempts < 1 {
		return errors.New("config: Capture.MaxPlayAttempts must be at least 1")
	}
	if c.Capture.PlayBackoff < 0 {
		return errors.New("config: Capture.PlayBackoff must not be negative")
	}
	if c.Capture.Preferred.FacingMode == "" || c.Capture.Minimal.FacingMode == "" {
		return errors.New("config: Capture constraints need a facing mode")
	}
	return nil
}
