package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

var (
	ErrMissingSourceFile  = errors.New("paths.source_excel is required")
	ErrMissingRawDataPath = errors.New("paths.raw_data is required")
	ErrMissingLogPath     = errors.New("paths.logs is required")
	ErrInvalidTimeout     = errors.New("scraper.request_timeout must be at least 1 second")
	ErrMissingUserAgent   = errors.New("scraper.user_agent is required")
	ErrNegativeRetries    = errors.New("scraper.max_retries must be non-negative")
	ErrDelayTooShort      = errors.New("scraper.download_delay_ms must be at least 1000")
	ErrInvalidConcurrency = errors.New("scraper.max_concurrency must be at least 1")
	ErrInvalidExtractMode = errors.New("scraper.extract_mode must be 'paragraphs' or 'readability'")
	ErrInvalidLogLevel    = errors.New("logging.level must be one of: debug, info, warn, error")
	ErrInvalidLogFormat   = errors.New("logging.format must be 'console' or 'json'")
	ErrIncompleteHistory  = errors.New("history.database and history.collection are required when history.connection is set")
)

const (
	DefaultRequestTimeoutSec = 20
	DefaultUserAgent         = "RegulatoryMonitorBot/1.0"
	DefaultDelayMS           = 2000
	DefaultMaxConcurrency    = 4
	DefaultExtractMode       = "paragraphs"
	ReadabilityExtractMode   = "readability"

	minDelayMS = 1000
)

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
}

type PathConfig struct {
	SourceExcel string `yaml:"source_excel"`
	RawData     string `yaml:"raw_data"`
	Logs        string `yaml:"logs"`
}

type ScraperConfig struct {
	RequestTimeout int    `yaml:"request_timeout"` // seconds
	UserAgent      string `yaml:"user_agent"`
	// MaxRetries is carried for the settings file contract; a re-run is the retry.
	MaxRetries     int    `yaml:"max_retries"`
	DelayMS        int    `yaml:"download_delay_ms"`
	ObeyRobots     *bool  `yaml:"obey_robots"`
	MaxConcurrency int    `yaml:"max_concurrency"`
	ExtractMode    string `yaml:"extract_mode"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type HistoryConfig struct {
	Connection string `yaml:"connection"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// Enabled reports whether fetch outcomes should be recorded in MongoDB.
func (h HistoryConfig) Enabled() bool {
	return h.Connection != ""
}

type Config struct {
	App     AppConfig     `yaml:"app"`
	Paths   PathConfig    `yaml:"paths"`
	Scraper ScraperConfig `yaml:"scraper"`
	Logging LoggingConfig `yaml:"logging"`
	History HistoryConfig `yaml:"history"`
}

// LoadConfig reads a YAML settings file, applies defaults and validates it.
// Sections this program does not consume (llm, notifications, scheduler)
// are ignored.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) SetDefaults() {
	if c.App.Name == "" {
		c.App.Name = "regwatch"
	}
	if c.Scraper.RequestTimeout == 0 {
		c.Scraper.RequestTimeout = DefaultRequestTimeoutSec
	}
	if c.Scraper.UserAgent == "" {
		c.Scraper.UserAgent = DefaultUserAgent
	}
	if c.Scraper.DelayMS == 0 {
		c.Scraper.DelayMS = DefaultDelayMS
	}
	if c.Scraper.ObeyRobots == nil {
		obey := true
		c.Scraper.ObeyRobots = &obey
	}
	if c.Scraper.MaxConcurrency == 0 {
		c.Scraper.MaxConcurrency = DefaultMaxConcurrency
	}
	if c.Scraper.ExtractMode == "" {
		c.Scraper.ExtractMode = DefaultExtractMode
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
}

func (c *Config) Validate() error {
	if c.Paths.SourceExcel == "" {
		return ErrMissingSourceFile
	}
	if c.Paths.RawData == "" {
		return ErrMissingRawDataPath
	}
	if c.Paths.Logs == "" {
		return ErrMissingLogPath
	}

	if c.Scraper.RequestTimeout < 1 {
		return ErrInvalidTimeout
	}
	if c.Scraper.UserAgent == "" {
		return ErrMissingUserAgent
	}
	if c.Scraper.MaxRetries < 0 {
		return ErrNegativeRetries
	}
	if c.Scraper.DelayMS < minDelayMS {
		return fmt.Errorf("%w: got %d", ErrDelayTooShort, c.Scraper.DelayMS)
	}
	if c.Scraper.MaxConcurrency < 1 {
		return ErrInvalidConcurrency
	}
	if c.Scraper.ExtractMode != DefaultExtractMode && c.Scraper.ExtractMode != ReadabilityExtractMode {
		return fmt.Errorf("%w: got %q", ErrInvalidExtractMode, c.Scraper.ExtractMode)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidLogLevel, c.Logging.Level)
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return ErrInvalidLogFormat
	}

	if c.History.Enabled() && (c.History.Database == "" || c.History.Collection == "") {
		return ErrIncompleteHistory
	}
	return nil
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Scraper.RequestTimeout) * time.Second
}

func (c *Config) DownloadDelay() time.Duration {
	return time.Duration(c.Scraper.DelayMS) * time.Millisecond
}

func (c *Config) RespectRobots() bool {
	return c.Scraper.ObeyRobots == nil || *c.Scraper.ObeyRobots
}
