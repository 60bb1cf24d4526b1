// Package config loads exifturbo settings from defaults, YAML files and
// EXIFTURBO_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/exif-turbo/exifturbo/internal/logging"
)

// Change detection policies.
const (
	// PolicyMtime treats a file as unchanged when size and mtime match.
	PolicyMtime = "mtime"
	// PolicyHash also accepts a matching SHA-256 when only mtime moved.
	PolicyHash = "hash"
)

// DefaultExtensions are the image types indexed when none are configured.
var DefaultExtensions = []string{".jpg", ".jpeg", ".tif", ".tiff", ".png", ".bmp", ".gif", ".webp"}

// Config represents the complete exifturbo configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	DB        string          `yaml:"db" json:"db"`
	Folders   []string        `yaml:"folders" json:"folders"`
	Paths     PathsConfig     `yaml:"paths" json:"paths"`
	Index     IndexConfig     `yaml:"index" json:"index"`
	Extractor ExtractorConfig `yaml:"extractor" json:"extractor"`
	Search    SearchConfig    `yaml:"search" json:"search"`
	Watch     WatchConfig     `yaml:"watch" json:"watch"`
	Server    ServerConfig    `yaml:"server" json:"server"`
}

// PathsConfig selects which files under a folder are indexed.
type PathsConfig struct {
	// Extensions are matched case-insensitively, with the leading dot.
	Extensions []string `yaml:"extensions" json:"extensions"`
	// Exclude holds glob patterns matched against slash-separated paths
	// relative to the scanned folder.
	Exclude       []string `yaml:"exclude" json:"exclude"`
	IncludeHidden bool     `yaml:"include_hidden" json:"include_hidden"`
}

// IndexConfig tunes the indexing pipeline.
type IndexConfig struct {
	Workers      int    `yaml:"workers" json:"workers"`
	BatchSize    int    `yaml:"batch_size" json:"batch_size"`
	ChangePolicy string `yaml:"change_policy" json:"change_policy"`
	ExportPath   string `yaml:"export" json:"export"`
}

// ExtractorConfig configures the exiftool adapter and its fallback.
type ExtractorConfig struct {
	ExifToolPath string `yaml:"exiftool_path" json:"exiftool_path"`
	// Timeout bounds a single exiftool invocation, e.g. "30s".
	Timeout string `yaml:"timeout" json:"timeout"`
	// Fallback enables the in-process EXIF reader when exiftool is broken
	// or missing. Nil means enabled.
	Fallback     *bool  `yaml:"fallback" json:"fallback"`
	MaxFailures  int    `yaml:"max_failures" json:"max_failures"`
	ResetTimeout string `yaml:"reset_timeout" json:"reset_timeout"`
}

// SearchConfig configures query defaults.
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit" json:"default_limit"`
	// CacheSize is the number of parsed queries kept in the LRU.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// WatchConfig configures the filesystem watcher.
type WatchConfig struct {
	Debounce string `yaml:"debounce" json:"debounce"`
}

// ServerConfig configures serve and logging.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" json:"http_addr"`
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// NewConfig returns a configuration with all defaults applied.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		DB:      DefaultDBPath(),
		Paths: PathsConfig{
			Extensions: append([]string(nil), DefaultExtensions...),
			Exclude:    []string{"**/@eaDir/**", "**/.thumbnails/**"},
		},
		Index: IndexConfig{
			Workers:      12,
			BatchSize:    500,
			ChangePolicy: PolicyMtime,
		},
		Extractor: ExtractorConfig{
			ExifToolPath: "exiftool",
			Timeout:      "30s",
			MaxFailures:  5,
			ResetTimeout: "30s",
		},
		Search: SearchConfig{
			DefaultLimit: 50,
			CacheSize:    256,
		},
		Watch:  WatchConfig{Debounce: "500ms"},
		Server: ServerConfig{LogLevel: "info"},
	}
}

// DefaultDBPath returns ~/.exifturbo/index.db.
func DefaultDBPath() string {
	return filepath.Join(logging.DefaultDataDir(), "index.db")
}

// GetUserConfigPath returns the user configuration file, following XDG:
//   - $XDG_CONFIG_HOME/exifturbo/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/exifturbo/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "exifturbo", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "exifturbo", "config.yaml")
	}
	return filepath.Join(home, ".config", "exifturbo", "config.yaml")
}

// Load loads configuration for the given working directory, in order of
// increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/exifturbo/config.yaml)
//  3. Project config (.exifturbo.yaml in dir)
//  4. Environment variables (EXIFTURBO_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	for _, name := range []string{".exifturbo.yaml", ".exifturbo.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			if err := cfg.loadYAML(path); err != nil {
				return nil, err
			}
			break
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith copies the non-zero values of other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.DB != "" {
		c.DB = expandHome(other.DB)
	}
	if len(other.Folders) > 0 {
		c.Folders = make([]string, len(other.Folders))
		for i, f := range other.Folders {
			c.Folders[i] = expandHome(f)
		}
	}

	if len(other.Paths.Extensions) > 0 {
		c.Paths.Extensions = other.Paths.Extensions
	}
	if len(other.Paths.Exclude) > 0 {
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}
	if other.Paths.IncludeHidden {
		c.Paths.IncludeHidden = true
	}

	if other.Index.Workers != 0 {
		c.Index.Workers = other.Index.Workers
	}
	if other.Index.BatchSize != 0 {
		c.Index.BatchSize = other.Index.BatchSize
	}
	if other.Index.ChangePolicy != "" {
		c.Index.ChangePolicy = other.Index.ChangePolicy
	}
	if other.Index.ExportPath != "" {
		c.Index.ExportPath = expandHome(other.Index.ExportPath)
	}

	if other.Extractor.ExifToolPath != "" {
		c.Extractor.ExifToolPath = other.Extractor.ExifToolPath
	}
	if other.Extractor.Timeout != "" {
		c.Extractor.Timeout = other.Extractor.Timeout
	}
	if other.Extractor.Fallback != nil {
		v := *other.Extractor.Fallback
		c.Extractor.Fallback = &v
	}
	if other.Extractor.MaxFailures != 0 {
		c.Extractor.MaxFailures = other.Extractor.MaxFailures
	}
	if other.Extractor.ResetTimeout != "" {
		c.Extractor.ResetTimeout = other.Extractor.ResetTimeout
	}

	if other.Search.DefaultLimit != 0 {
		c.Search.DefaultLimit = other.Search.DefaultLimit
	}
	if other.Search.CacheSize != 0 {
		c.Search.CacheSize = other.Search.CacheSize
	}

	if other.Watch.Debounce != "" {
		c.Watch.Debounce = other.Watch.Debounce
	}

	if other.Server.HTTPAddr != "" {
		c.Server.HTTPAddr = other.Server.HTTPAddr
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("EXIFTURBO_DB"); v != "" {
		c.DB = expandHome(v)
	}
	if v := os.Getenv("EXIFTURBO_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Index.Workers = n
		}
	}
	if v := os.Getenv("EXIFTURBO_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Index.BatchSize = n
		}
	}
	if v := os.Getenv("EXIFTURBO_CHANGE_POLICY"); v != "" {
		c.Index.ChangePolicy = strings.ToLower(v)
	}
	if v := os.Getenv("EXIFTURBO_EXIFTOOL"); v != "" {
		c.Extractor.ExifToolPath = v
	}
	if v := os.Getenv("EXIFTURBO_EXTRACT_TIMEOUT"); v != "" {
		c.Extractor.Timeout = v
	}
	if v := os.Getenv("EXIFTURBO_FALLBACK"); v != "" {
		b := strings.ToLower(v) == "true" || v == "1"
		c.Extractor.Fallback = &b
	}
	if v := os.Getenv("EXIFTURBO_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	if c.DB == "" {
		return fmt.Errorf("db must not be empty")
	}
	if c.Index.Workers < 1 {
		return fmt.Errorf("index.workers must be at least 1, got %d", c.Index.Workers)
	}
	if c.Index.BatchSize < 1 {
		return fmt.Errorf("index.batch_size must be at least 1, got %d", c.Index.BatchSize)
	}
	switch c.Index.ChangePolicy {
	case PolicyMtime, PolicyHash:
	default:
		return fmt.Errorf("index.change_policy must be 'mtime' or 'hash', got %q", c.Index.ChangePolicy)
	}
	for _, ext := range c.Paths.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("paths.extensions entries must start with '.', got %q", ext)
		}
	}
	for _, d := range []struct{ name, value string }{
		{"extractor.timeout", c.Extractor.Timeout},
		{"extractor.reset_timeout", c.Extractor.ResetTimeout},
		{"watch.debounce", c.Watch.Debounce},
	} {
		dur, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		if dur <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}
	if c.Search.DefaultLimit < 1 {
		return fmt.Errorf("search.default_limit must be at least 1, got %d", c.Search.DefaultLimit)
	}
	if c.Search.CacheSize < 0 {
		return fmt.Errorf("search.cache_size must be non-negative, got %d", c.Search.CacheSize)
	}
	if !logging.ValidLevel(c.Server.LogLevel) {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}
	return nil
}

// ExtractTimeout returns the parsed per-file extraction timeout.
func (c *Config) ExtractTimeout() time.Duration {
	return parseDurationOr(c.Extractor.Timeout, 30*time.Second)
}

// BreakerReset returns how long the exiftool breaker stays open.
func (c *Config) BreakerReset() time.Duration {
	return parseDurationOr(c.Extractor.ResetTimeout, 30*time.Second)
}

// DebounceWindow returns the parsed watcher debounce window.
func (c *Config) DebounceWindow() time.Duration {
	return parseDurationOr(c.Watch.Debounce, 500*time.Millisecond)
}

// FallbackEnabled reports whether the in-process EXIF reader may be used.
func (c *Config) FallbackEnabled() bool {
	return c.Extractor.Fallback == nil || *c.Extractor.Fallback
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[1:])
		}
	}
	return p
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
