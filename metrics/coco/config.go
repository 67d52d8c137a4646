package coco

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds metric settings loaded from a JSON file.  Omitted fields keep
// their default values so partial configs are safe.
type Config struct {
	NumBuckets       *int      `json:"num_buckets,omitempty"`
	IoUThresholds    []float64 `json:"iou_thresholds,omitempty"`
	RecallThresholds []float64 `json:"recall_thresholds,omitempty"`
	MaxDetections    *int      `json:"max_detections,omitempty"`
	// AreaRange is [min, max] box area in pixels
	AreaRange []float64 `json:"area_range,omitempty"`
}

// LoadConfig loads a Config from a JSON file.  The file must have a .json
// extension and be no larger than 1MB.
func LoadConfig(path string) (*Config, error) {

	cleanPath := filepath.Clean(path)

	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)

	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	const maxFileSize = 1 * 1024 * 1024

	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)

	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.AreaRange != nil && len(cfg.AreaRange) != 2 {
		return nil, fmt.Errorf("%w: area_range needs [min, max], got %v",
			ErrInvalidOption, cfg.AreaRange)
	}

	return cfg, nil
}

// WithConfig applies the fields set in cfg
func WithConfig(cfg *Config) Option {
	return func(s *settings) {

		if cfg == nil {
			return
		}

		if cfg.NumBuckets != nil {
			WithNumBuckets(*cfg.NumBuckets)(s)
		}

		if cfg.IoUThresholds != nil {
			WithIoUThresholds(cfg.IoUThresholds)(s)
		}

		if cfg.RecallThresholds != nil {
			WithRecallThresholds(cfg.RecallThresholds)(s)
		}

		if cfg.MaxDetections != nil {
			WithMaxDetections(*cfg.MaxDetections)(s)
		}

		if len(cfg.AreaRange) == 2 {
			WithAreaRange(cfg.AreaRange[0], cfg.AreaRange[1])(s)
		}
	}
}
