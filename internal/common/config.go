package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Storage     StorageConfig   `toml:"storage"`
	Queue       QueueConfig     `toml:"queue"`
	Fetcher     FetcherConfig   `toml:"fetcher"`
	Window      WindowConfig    `toml:"window"`
	Analyzer    AnalyzerConfig  `toml:"analyzer"`
	Rollup      RollupConfig    `toml:"rollup"`
	WordSplit   WordSplitConfig `toml:"word_split"`
	Ranking     RankingConfig   `toml:"ranking"`
	Platform    PlatformConfig  `toml:"platform"`
	Server      ServerConfig    `toml:"server"`
	Logging     LoggingConfig   `toml:"logging"`
	Metrics     MetricsConfig   `toml:"metrics"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean test runs
}

type QueueConfig struct {
	PollInterval string `toml:"poll_interval" validate:"required"` // e.g. "10s" - idle sleep when no job is waiting
	Concurrency  int    `toml:"concurrency" validate:"min=1"`      // Number of concurrent workers
}

type FetcherConfig struct {
	BatchSize      int    `toml:"batch_size" validate:"min=1"`   // Events per storage flush
	MaxAttempts    int    `toml:"max_attempts" validate:"min=1"` // Retry ceiling for a single page request
	InitialBackoff string `toml:"initial_backoff"`               // e.g. "1s"
	MaxBackoff     string `toml:"max_backoff"`                   // e.g. "30s"
	RequestTimeout string `toml:"request_timeout"`               // HTTP request timeout
	RequestDelay   string `toml:"request_delay"`                 // Minimum delay between page requests
	RandomDelay    string `toml:"random_delay"`                  // Random jitter added to request delay
}

// WindowConfig bounds the calendar period events must fall within to be stored.
// Dates are inclusive, interpreted as UTC.
type WindowConfig struct {
	Start string `toml:"start" validate:"required"` // e.g. "2025-01-01"
	End   string `toml:"end" validate:"required"`   // e.g. "2025-12-31"
}

type AnalyzerConfig struct {
	TopWords      int `toml:"top_words" validate:"min=1"`      // Word frequency entries kept per job
	RankingSample int `toml:"ranking_sample" validate:"min=1"` // Ranking appearances stored per job
}

type RollupConfig struct {
	Enabled         bool   `toml:"enabled"`
	Schedule        string `toml:"schedule"` // Cron schedule format
	LeaderboardSize int    `toml:"leaderboard_size" validate:"min=1"`
}

// WordSplitConfig points at the external word-split service used by the
// comment word-frequency analyzer.
type WordSplitConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// RankingConfig points at the external ranking feed consumed by the
// ranking-history analyzer.
type RankingConfig struct {
	BaseURL string `toml:"base_url"`
}

type PlatformConfig struct {
	BaseURL   string `toml:"base_url" validate:"required,url"` // Content platform base URL
	UserAgent string `toml:"user_agent"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port" validate:"min=1,max=65535"`
}

type MetricsConfig struct {
	Addr string `toml:"addr"` // e.g. ":9090"; empty disables the metrics listener
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Queue: QueueConfig{
			PollInterval: "10s",
			Concurrency:  3,
		},
		Fetcher: FetcherConfig{
			BatchSize:      50,
			MaxAttempts:    5,
			InitialBackoff: "1s",
			MaxBackoff:     "30s",
			RequestTimeout: "30s",
			RequestDelay:   "1s",
			RandomDelay:    "500ms",
		},
		Window: WindowConfig{
			Start: "2025-01-01",
			End:   "2025-12-31",
		},
		Analyzer: AnalyzerConfig{
			TopWords:      1000,
			RankingSample: 10,
		},
		Rollup: RollupConfig{
			Enabled:         true,
			Schedule:        "0 * * * *", // Hourly
			LeaderboardSize: 5,
		},
		WordSplit: WordSplitConfig{
			Host: "localhost",
			Port: 6001,
		},
		Ranking: RankingConfig{
			BaseURL: "",
		},
		Platform: PlatformConfig{
			BaseURL:   "https://platform.local",
			UserAgent: "recap/1.0",
		},
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Metrics: MetricsConfig{
			Addr: "",
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the configuration against struct tags and parses the
// duration and date fields so bad values fail at startup, not mid-crawl.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	for name, value := range map[string]string{
		"queue.poll_interval":     c.Queue.PollInterval,
		"fetcher.initial_backoff": c.Fetcher.InitialBackoff,
		"fetcher.max_backoff":     c.Fetcher.MaxBackoff,
		"fetcher.request_timeout": c.Fetcher.RequestTimeout,
		"fetcher.request_delay":   c.Fetcher.RequestDelay,
		"fetcher.random_delay":    c.Fetcher.RandomDelay,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", name, err)
		}
	}

	if _, _, err := c.Window.Bounds(); err != nil {
		return err
	}

	return nil
}

// Bounds returns the inclusive [start, end] window as UTC instants. The end
// date covers the whole day.
func (w WindowConfig) Bounds() (time.Time, time.Time, error) {
	start, err := time.ParseInLocation("2006-01-02", w.Start, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid window.start: %w", err)
	}
	end, err := time.ParseInLocation("2006-01-02", w.End, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid window.end: %w", err)
	}
	end = end.Add(24*time.Hour - time.Nanosecond)
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("window.end %s precedes window.start %s", w.End, w.Start)
	}
	return start, end, nil
}

// MustDuration parses a duration string that Validate has already checked.
func MustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		panic(fmt.Sprintf("unvalidated duration %q: %v", value, err))
	}
	return d
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("RECAP_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if path := os.Getenv("RECAP_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}

	if workers := os.Getenv("RECAP_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil && n > 0 {
			config.Queue.Concurrency = n
		}
	}

	if level := os.Getenv("RECAP_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if addr := os.Getenv("RECAP_METRICS_ADDR"); addr != "" {
		config.Metrics.Addr = addr
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, workers int, badgerPath string) {
	if workers > 0 {
		config.Queue.Concurrency = workers
	}
	if badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
}
