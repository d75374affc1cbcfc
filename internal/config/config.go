// Package config handles configuration loading using viper.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// GlobalConfig is the tool configuration. Maps to the `sahara:` root key in YAML.
type GlobalConfig struct {
	Log    LogConfig    `mapstructure:"log"`
	Replay ReplayConfig `mapstructure:"replay"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`  // debug / info / warn / error
	Format  string           `mapstructure:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains additional log destinations. Stdout is always used.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`  // MB
	MaxAgeDays int  `mapstructure:"max_age_days"` // Days
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Replay ───

// ReplayConfig controls image reconstruction.
type ReplayConfig struct {
	ZeroFillChunk int    `mapstructure:"zero_fill_chunk"` // bytes per zero-fill write
	Report        string `mapstructure:"report"`          // YAML session report path, empty = none
	Device        string `mapstructure:"device"`          // "bus:device" to replay, empty = any
}

// ─── Loading ───

type configRoot struct {
	Sahara GlobalConfig `mapstructure:"sahara"`
}

// Load loads configuration from the YAML file at path. An empty path yields
// the defaults. Environment variables are not consulted.
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Sahara

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *GlobalConfig {
	cfg, err := Load("")
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("sahara.log.level", "info")
	v.SetDefault("sahara.log.format", "text")
	v.SetDefault("sahara.log.outputs.file.enabled", false)
	v.SetDefault("sahara.log.outputs.file.path", "sahara-replay.log")
	v.SetDefault("sahara.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("sahara.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("sahara.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("sahara.log.outputs.file.rotation.compress", true)

	// Replay defaults
	v.SetDefault("sahara.replay.zero_fill_chunk", 4096)
	v.SetDefault("sahara.replay.report", "")
	v.SetDefault("sahara.replay.device", "")
}

// ValidateAndApplyDefaults validates configuration values.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return fmt.Errorf("log.outputs.file.path is required when file output is enabled")
	}
	if cfg.Replay.ZeroFillChunk <= 0 {
		return fmt.Errorf("invalid replay.zero_fill_chunk: %d (must be > 0)", cfg.Replay.ZeroFillChunk)
	}
	return nil
}
