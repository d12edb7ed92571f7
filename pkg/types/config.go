// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned by Config.Validate for out-of-range settings.
var ErrInvalidConfig = errors.New("invalid configuration")

const (
	DefaultWorkers       = 4
	DefaultJobTimeout    = 30 * time.Second
	DefaultRetentionDays = 30
	DefaultCacheDir      = ".cache"
	DefaultHistoryDir    = ".mdconv"
	DefaultImage         = "markitdown:latest"
)

// RunnerConfig holds settings for the batch task runner.
type RunnerConfig struct {
	// Workers is the fixed size of the worker pool (default 4).
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`

	// JobTimeout bounds how long a single running job may take before it is
	// classified as failed (default 30s).
	JobTimeout time.Duration `json:"job_timeout" yaml:"job_timeout" mapstructure:"job_timeout"`
}

// CacheConfig holds settings for the content cache.
type CacheConfig struct {
	// Enabled turns cache lookups and updates on or off.
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// Dir is the directory holding file_cache.json (default ".cache").
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	// RetentionDays is how long an entry stays valid (default 30).
	RetentionDays int `json:"retention_days" yaml:"retention_days" mapstructure:"retention_days"`
}

// Retention returns the retention window as a duration.
func (c CacheConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// RuntimeName selects the container runtime used to run markitdown.
type RuntimeName string

const (
	RuntimeAuto   RuntimeName = "auto"
	RuntimeDocker RuntimeName = "docker"
	RuntimePodman RuntimeName = "podman"
)

// ConversionConfig holds settings for the document conversion stage.
type ConversionConfig struct {
	// Runtime selects docker, podman, or auto-detection.
	Runtime RuntimeName `json:"runtime" yaml:"runtime" mapstructure:"runtime"`

	// Image is the markitdown container image.
	Image string `json:"image" yaml:"image" mapstructure:"image"`

	// Frontmatter prepends a YAML block describing the source document.
	Frontmatter bool `json:"frontmatter" yaml:"frontmatter" mapstructure:"frontmatter"`

	// OutputDir is where Markdown files are written. Empty means next to
	// each input file.
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`
}

// HistoryConfig holds settings for the conversion history database.
type HistoryConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Dir     string `json:"dir" yaml:"dir" mapstructure:"dir"`
}

// Config groups all settings for an mdconv run.
type Config struct {
	Runner     RunnerConfig     `json:"runner" yaml:"runner" mapstructure:"runner"`
	Cache      CacheConfig      `json:"cache" yaml:"cache" mapstructure:"cache"`
	Conversion ConversionConfig `json:"conversion" yaml:"conversion" mapstructure:"conversion"`
	History    HistoryConfig    `json:"history" yaml:"history" mapstructure:"history"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Runner: RunnerConfig{
			Workers:    DefaultWorkers,
			JobTimeout: DefaultJobTimeout,
		},
		Cache: CacheConfig{
			Enabled:       true,
			Dir:           DefaultCacheDir,
			RetentionDays: DefaultRetentionDays,
		},
		Conversion: ConversionConfig{
			Runtime:     RuntimeAuto,
			Image:       DefaultImage,
			Frontmatter: true,
		},
		History: HistoryConfig{
			Enabled: true,
			Dir:     DefaultHistoryDir,
		},
	}
}

// Validate reports the first out-of-range setting.
func (c Config) Validate() error {
	if c.Runner.Workers <= 0 {
		return fmt.Errorf("%w: runner.workers must be positive, got %d", ErrInvalidConfig, c.Runner.Workers)
	}
	if c.Runner.JobTimeout <= 0 {
		return fmt.Errorf("%w: runner.job_timeout must be positive, got %s", ErrInvalidConfig, c.Runner.JobTimeout)
	}
	if c.Cache.Enabled {
		if c.Cache.RetentionDays <= 0 {
			return fmt.Errorf("%w: cache.retention_days must be positive, got %d", ErrInvalidConfig, c.Cache.RetentionDays)
		}
		if c.Cache.Dir == "" {
			return fmt.Errorf("%w: cache.dir is empty", ErrInvalidConfig)
		}
	}
	switch c.Conversion.Runtime {
	case RuntimeAuto, RuntimeDocker, RuntimePodman:
	default:
		return fmt.Errorf("%w: conversion.runtime %q is not one of auto, docker, podman", ErrInvalidConfig, c.Conversion.Runtime)
	}
	if c.Conversion.Image == "" {
		return fmt.Errorf("%w: conversion.image is empty", ErrInvalidConfig)
	}
	if c.History.Enabled && c.History.Dir == "" {
		return fmt.Errorf("%w: history.dir is empty", ErrInvalidConfig)
	}
	return nil
}
