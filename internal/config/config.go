package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/gommon/log"
	"gopkg.in/yaml.v3"

	"github.com/menta2k/image-regions/internal/utils"
	"github.com/menta2k/image-regions/pkg/filter"
)

// Config holds the application configuration
type Config struct {
	Server ServerConfig  `json:"server" yaml:"server"`
	Filter filter.Config `json:"filter" yaml:"filter"`
	Output OutputConfig  `json:"output" yaml:"output"`
	Cache  CacheConfig   `json:"cache" yaml:"cache"`
	Log    LogConfig     `json:"log" yaml:"log"`
}

// ServerConfig holds configuration for the HTTP host
type ServerConfig struct {
	Addr      string `json:"addr" yaml:"addr"`
	ImageRoot string `json:"image_root" yaml:"image_root"`
}

// OutputConfig holds configuration for output generation. An empty OutputDir
// means decisions are reported without writing images.
type OutputConfig struct {
	DefaultFormat string `json:"default_format" yaml:"default_format"`
	Quality       int    `json:"quality" yaml:"quality"`
	Lossless      bool   `json:"lossless" yaml:"lossless"`
	OutputDir     string `json:"output_dir" yaml:"output_dir"`
	Prefix        string `json:"prefix" yaml:"prefix"`
	Suffix        string `json:"suffix" yaml:"suffix"`
}

// CacheConfig holds configuration for the decision cache
type CacheConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

// LogConfig holds configuration for logging
type LogConfig struct {
	Level string `json:"level" yaml:"level"`
}

// Lvl maps the configured level name to a gommon level
func (l LogConfig) Lvl() log.Lvl {
	switch strings.ToLower(l.Level) {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	default:
		return log.INFO
	}
}

var (
	formats = []string{"jpg", "jpeg", "png", "webp"}
	levels  = []string{"debug", "info", "warn", "error", "off"}
)

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:      ":8080",
			ImageRoot: "./images",
		},
		Filter: filter.DefaultConfig(),
		Output: OutputConfig{
			DefaultFormat: "jpg",
			Quality:       85,
			Lossless:      false,
			OutputDir:     "",
			Prefix:        "",
			Suffix:        "_crop",
		},
		Cache: CacheConfig{
			Enabled: false,
			Path:    "./data/decisions.db",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads filename, or the file at GetConfigPath when filename is empty
// and that file exists. Without either it returns the defaults.
func Load(filename string) (*Config, error) {
	if filename == "" {
		filename = GetConfigPath()
		if !utils.FileExists(filename) {
			return Default(), nil
		}
	}
	return LoadFromFile(filename)
}

// LoadFromFile loads configuration from a JSON or YAML file. Values missing
// from the file keep their defaults.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	case ".json", "":
		err = json.Unmarshal(data, config)
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration as JSON, or YAML for .yaml/.yml names
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Filter.MinDPR <= 0 {
		return fmt.Errorf("filter.min_dpr must be positive")
	}

	if c.Filter.MaxDPR < c.Filter.MinDPR {
		return fmt.Errorf("filter.max_dpr must not be below filter.min_dpr")
	}

	if c.Filter.MinDownlink < 0 {
		return fmt.Errorf("filter.min_downlink must not be negative")
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	if !contains(formats, c.Output.DefaultFormat) {
		return fmt.Errorf("output.default_format must be one of %v", formats)
	}

	if c.Cache.Enabled && c.Cache.Path == "" {
		return fmt.Errorf("cache.path is required when the cache is enabled")
	}

	if !contains(levels, c.Log.Level) {
		return fmt.Errorf("log.level must be one of %v", levels)
	}

	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "image-regions", "config.json")
}
