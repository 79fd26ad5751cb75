package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from a YAML file at path layered over Default().
// A missing file yields the defaults. Environment variables prefixed with
// QRSCAN_ override file values (QRSCAN_CAPTURE_SCAN_INTERVAL=200ms).
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("qrscan")
	v.SetEnvKeyReplacer(envReplacer)
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !isNotExist(err) {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var envReplacer = strings.NewReplacer(".", "_")

func isNotExist(err error) bool { return errors.Is(err, fs.ErrNotExist) }

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("worker_count", cfg.WorkerCount)
	v.SetDefault("queue_size", cfg.QueueSize)
	v.SetDefault("job_timeout", cfg.JobTimeout)
	v.SetDefault("max_image_bytes", cfg.MaxImageBytes)
	v.SetDefault("chunk_size", cfg.ChunkSize)
	v.SetDefault("decode.max_dimension", cfg.Decode.MaxDimension)
	v.SetDefault("decode.upscale_below", cfg.Decode.UpscaleBelow)
	v.SetDefault("decode.luma_threshold", cfg.Decode.LumaThreshold)
	v.SetDefault("decode.try_harder", cfg.Decode.TryHarder)
	v.SetDefault("capture.scan_interval", cfg.Capture.ScanInterval)
	v.SetDefault("capture.max_play_attempts", cfg.Capture.MaxPlayAttempts)
	v.SetDefault("capture.play_backoff", cfg.Capture.PlayBackoff)
	v.SetDefault("capture.device", cfg.Capture.Device)
	setConstraintDefaults(v, "capture.preferred", cfg.Capture.Preferred)
	setConstraintDefaults(v, "capture.minimal", cfg.Capture.Minimal)
	v.SetDefault("validator.endpoint", cfg.Validator.Endpoint)
	v.SetDefault("validator.timeout", cfg.Validator.Timeout)
	v.SetDefault("validator.token", cfg.Validator.Token)
	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("http.max_upload_bytes", cfg.HTTP.MaxUploadBytes)
	v.SetDefault("snapshot_dir", cfg.SnapshotDir)
	v.SetDefault("log_level", cfg.LogLevel)
}

func setConstraintDefaults(v *viper.Viper, prefix string, c ConstraintsConfig) {
	v.SetDefault(prefix+".facing_mode", c.FacingMode)
	v.SetDefault(prefix+".ideal_width", c.IdealWidth)
	v.SetDefault(prefix+".max_width", c.MaxWidth)
	v.SetDefault(prefix+".ideal_height", c.IdealHeight)
	v.SetDefault(prefix+".max_height", c.MaxHeight)
	v.SetDefault(prefix+".aspect_ratio", c.AspectRatio)
}

// Marshal renders cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("config: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("config: encode: %w", err)
	}
	return buf.Bytes(), nil
}
