// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the configuration file [Load] reads.
const EnvironmentVariable = "PROPSCAN_CONFIG"

// Config is the propscan configuration.
type Config struct {
	// Scan configures the walk and the ledger.
	Scan ScanConfig `yaml:"scan" toml:"scan" json:"scan"`

	// Download configures the index mirror.
	Download DownloadConfig `yaml:"download" toml:"download" json:"download"`

	// Log configures the command logger.
	Log LogConfig `yaml:"log" toml:"log" json:"log"`
}

// ScanConfig configures a scan.
type ScanConfig struct {
	// Database is the ledger file. Empty means "<root>.propscan.db"
	// beside the scanned directory.
	Database string `yaml:"database" toml:"database" json:"database"`

	// Scratch is where archives are extracted. Empty means the system
	// temporary directory.
	Scratch string `yaml:"scratch" toml:"scratch" json:"scratch"`

	// CommitThreshold is the buffered row count that forces a commit.
	// Default: 1000000
	CommitThreshold int `yaml:"commit_threshold" toml:"commit_threshold" json:"commit_threshold"`

	// MaxDepth bounds archive nesting.
	// Default: 16
	MaxDepth int `yaml:"max_depth" toml:"max_depth" json:"max_depth"`

	// MaxExtractBytes bounds the bytes written per archive.
	// Default: 8 GiB
	MaxExtractBytes int64 `yaml:"max_extract_bytes" toml:"max_extract_bytes" json:"max_extract_bytes"`

	// RecordDigest stores a BLAKE3 digest per record for collision
	// auditing.
	RecordDigest bool `yaml:"record_digest" toml:"record_digest" json:"record_digest"`

	// ProgressEvery logs progress every N files; negative disables it.
	// Default: 10000
	ProgressEvery int `yaml:"progress_every" toml:"progress_every" json:"progress_every"`

	// AgeIdentityFile holds age identities for encrypted payloads.
	AgeIdentityFile string `yaml:"age_identity_file" toml:"age_identity_file" json:"age_identity_file"`

	// RarPassword is used for encrypted RAR archives.
	RarPassword string `yaml:"rar_password" toml:"rar_password" json:"rar_password"`
}

// DownloadConfig configures the downloader.
type DownloadConfig struct {
	// IndexURL is the page listing the published archives.
	IndexURL string `yaml:"index_url" toml:"index_url" json:"index_url"`

	// Suffix filters the links on the index page.
	// Default: .zip
	Suffix string `yaml:"suffix" toml:"suffix" json:"suffix"`

	// Destination is the local mirror directory.
	Destination string `yaml:"destination" toml:"destination" json:"destination"`

	// Workers is the number of concurrent downloads.
	// Default: 8
	Workers int `yaml:"workers" toml:"workers" json:"workers"`

	// RatePerSecond caps request starts per second; 0 is unlimited.
	RatePerSecond float64 `yaml:"rate_per_second" toml:"rate_per_second" json:"rate_per_second"`

	// Retries is how often a transient failure is retried.
	// Default: 2
	Retries int `yaml:"retries" toml:"retries" json:"retries"`

	// RetryDelay is the first retry's delay, as a Go duration.
	// Default: 2s
	RetryDelay string `yaml:"retry_delay" toml:"retry_delay" json:"retry_delay"`

	// Timeout bounds each request, as a Go duration.
	// Default: 10m
	Timeout string `yaml:"timeout" toml:"timeout" json:"timeout"`

	// UserAgent overrides the default "propscan/<version>".
	UserAgent string `yaml:"user_agent" toml:"user_agent" json:"user_agent"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `yaml:"level" toml:"level" json:"level"`

	// Format is auto, text, or json. Auto picks text on a terminal and
	// JSON otherwise.
	// Default: auto
	Format string `yaml:"format" toml:"format" json:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Scan: ScanConfig{
			CommitThreshold: 1_000_000,
			MaxDepth:        16,
			MaxExtractBytes: 8 << 30,
			ProgressEvery:   10000,
		},
		Download: DownloadConfig{
			IndexURL:   "https://valuation.property.nsw.gov.au/embed/propertySalesInformation",
			Suffix:     ".zip",
			Workers:    8,
			Retries:    2,
			RetryDelay: "2s",
			Timeout:    "10m",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load reads the file named by PROPSCAN_CONFIG. When the variable is
// not set, the defaults are returned.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(path)
}

// LoadFile reads a configuration file over the defaults. The format
// follows the extension: .yaml or .yml, .toml, .json or .jsonc.
// Unknown keys are rejected.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		err = decoder.Decode(c)
		if errors.Is(err, io.EOF) {
			err = nil
		}
		return err
	case ".toml":
		decoder := toml.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()
		return decoder.Decode(c)
	case ".json", ".jsonc":
		decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		decoder.DisallowUnknownFields()
		return decoder.Decode(c)
	default:
		return fmt.Errorf("unsupported configuration format %q", filepath.Ext(path))
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} in path fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Scan.Database = expandVars(c.Scan.Database, vars)
	c.Scan.Scratch = expandVars(c.Scan.Scratch, vars)
	c.Scan.AgeIdentityFile = expandVars(c.Scan.AgeIdentityFile, vars)
	c.Scan.RarPassword = expandVars(c.Scan.RarPassword, vars)
	c.Download.Destination = expandVars(c.Download.Destination, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars replaces ${VAR} and ${VAR:-default}. vars is consulted
// before the environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// RetryDelayDuration returns the parsed download.retry_delay.
func (d DownloadConfig) RetryDelayDuration() (time.Duration, error) {
	return parseDuration("download.retry_delay", d.RetryDelay)
}

// TimeoutDuration returns the parsed download.timeout.
func (d DownloadConfig) TimeoutDuration() (time.Duration, error) {
	return parseDuration("download.timeout", d.Timeout)
}

func parseDuration(key, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if duration < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return duration, nil
}

// SlogLevel returns log.level as a slog level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Scan.CommitThreshold <= 0 {
		errs = append(errs, fmt.Errorf("scan.commit_threshold must be positive, got %d", c.Scan.CommitThreshold))
	}
	if c.Scan.MaxDepth <= 0 {
		errs = append(errs, fmt.Errorf("scan.max_depth must be positive, got %d", c.Scan.MaxDepth))
	}
	if c.Scan.MaxExtractBytes <= 0 {
		errs = append(errs, fmt.Errorf("scan.max_extract_bytes must be positive, got %d", c.Scan.MaxExtractBytes))
	}

	if c.Download.Workers <= 0 {
		errs = append(errs, fmt.Errorf("download.workers must be positive, got %d", c.Download.Workers))
	}
	if c.Download.RatePerSecond < 0 {
		errs = append(errs, fmt.Errorf("download.rate_per_second must not be negative"))
	}
	if c.Download.Retries < 0 {
		errs = append(errs, fmt.Errorf("download.retries must not be negative"))
	}
	if _, err := c.Download.RetryDelayDuration(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Download.TimeoutDuration(); err != nil {
		errs = append(errs, err)
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	formats := []string{"auto", "text", "json"}
	if !slices.Contains(formats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", formats))
	}

	return errors.Join(errs...)
}
