// Package config loads tandem settings from viper into typed structs.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/Veraticus/tandem/internal/common"
	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	Logging    LoggingConfig
	Database   DatabaseConfig
	Uploads    UploadsConfig
	Network    NetworkConfig
	Categories CategoriesConfig
	Queue      QueueConfig
	Import     ImportConfig
	Cache      CacheConfig
	Metrics    MetricsConfig
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string
	Format string
}

// DatabaseConfig locates the sqlite file.
type DatabaseConfig struct {
	Path string
}

// CacheConfig tunes the duplicate/category result cache.
type CacheConfig struct {
	TTL             time.Duration
	CleanupInterval time.Duration
}

// ImportConfig tunes statement parsing and duplicate detection.
type ImportConfig struct {
	DuplicateWindowDays  int
	MatchThreshold       float64
	AutoSkipThreshold    float64
	MinTableTransactions int
	PDFMaxPages          int
	HistoryDays          int
}

// CategoriesConfig points at an optional vocabulary override.
type CategoriesConfig struct {
	VocabularyFile   string
	DisplayThreshold float64
}

// QueueConfig tunes the offline upload queue.
type QueueConfig struct {
	Backend        string // "sqlite" or "bolt"
	BoltPath       string
	MaxRetries     int
	MaxAge         time.Duration
	BaseDelay      time.Duration
	SortByPriority bool
	Backoff        bool
	AutoProcess    bool
}

// NetworkConfig configures the reachability probe.
type NetworkConfig struct {
	ProbeURL string
	Interval time.Duration
	Timeout  time.Duration
}

// UploadsConfig holds the receipt bucket and its credentials.
type UploadsConfig struct {
	Bucket          string
	Prefix          string
	CredentialsFile string
	ClientID        string
	ClientSecret    string
	RefreshToken    string
	Endpoint        string
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	dir := DefaultDir()

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("database.path", filepath.Join(dir, "tandem.db"))

	v.SetDefault("cache.ttl", 30*time.Minute)
	v.SetDefault("cache.cleanup_interval", 5*time.Minute)

	v.SetDefault("import.duplicate_window_days", 3)
	v.SetDefault("import.match_threshold", 0.6)
	v.SetDefault("import.auto_skip_threshold", 0.9)
	v.SetDefault("import.min_table_transactions", 5)
	v.SetDefault("import.pdf_max_pages", 50)
	v.SetDefault("import.history_days", 90)

	v.SetDefault("categories.vocabulary_file", "")
	v.SetDefault("categories.display_threshold", 0.5)

	v.SetDefault("queue.backend", "sqlite")
	v.SetDefault("queue.bolt_path", filepath.Join(dir, "queue.db"))
	v.SetDefault("queue.max_retries", 3)
	v.SetDefault("queue.max_age", 168*time.Hour)
	v.SetDefault("queue.base_delay", time.Second)
	v.SetDefault("queue.sort_by_priority", true)
	v.SetDefault("queue.backoff", true)
	v.SetDefault("queue.auto_process", true)

	v.SetDefault("network.probe_url", "https://storage.googleapis.com")
	v.SetDefault("network.interval", 15*time.Second)
	v.SetDefault("network.timeout", 5*time.Second)

	v.SetDefault("uploads.bucket", "")
	v.SetDefault("uploads.prefix", "receipts")
	v.SetDefault("uploads.credentials_file", "")
	v.SetDefault("uploads.client_id", "")
	v.SetDefault("uploads.client_secret", "")
	v.SetDefault("uploads.refresh_token", "")
	v.SetDefault("uploads.endpoint", "")

	v.SetDefault("metrics.addr", "")
}

// Load reads the typed configuration out of v and validates it. Paths are
// expanded.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
		Database: DatabaseConfig{
			Path: ExpandPath(v.GetString("database.path")),
		},
		Cache: CacheConfig{
			TTL:             v.GetDuration("cache.ttl"),
			CleanupInterval: v.GetDuration("cache.cleanup_interval"),
		},
		Import: ImportConfig{
			DuplicateWindowDays:  v.GetInt("import.duplicate_window_days"),
			MatchThreshold:       v.GetFloat64("import.match_threshold"),
			AutoSkipThreshold:    v.GetFloat64("import.auto_skip_threshold"),
			MinTableTransactions: v.GetInt("import.min_table_transactions"),
			PDFMaxPages:          v.GetInt("import.pdf_max_pages"),
			HistoryDays:          v.GetInt("import.history_days"),
		},
		Categories: CategoriesConfig{
			VocabularyFile:   ExpandPath(v.GetString("categories.vocabulary_file")),
			DisplayThreshold: v.GetFloat64("categories.display_threshold"),
		},
		Queue: QueueConfig{
			Backend:        strings.ToLower(v.GetString("queue.backend")),
			BoltPath:       ExpandPath(v.GetString("queue.bolt_path")),
			MaxRetries:     v.GetInt("queue.max_retries"),
			MaxAge:         v.GetDuration("queue.max_age"),
			BaseDelay:      v.GetDuration("queue.base_delay"),
			SortByPriority: v.GetBool("queue.sort_by_priority"),
			Backoff:        v.GetBool("queue.backoff"),
			AutoProcess:    v.GetBool("queue.auto_process"),
		},
		Network: NetworkConfig{
			ProbeURL: v.GetString("network.probe_url"),
			Interval: v.GetDuration("network.interval"),
			Timeout:  v.GetDuration("network.timeout"),
		},
		Uploads: UploadsConfig{
			Bucket:          v.GetString("uploads.bucket"),
			Prefix:          v.GetString("uploads.prefix"),
			CredentialsFile: ExpandPath(v.GetString("uploads.credentials_file")),
			ClientID:        v.GetString("uploads.client_id"),
			ClientSecret:    v.GetString("uploads.client_secret"),
			RefreshToken:    v.GetString("uploads.refresh_token"),
			Endpoint:        v.GetString("uploads.endpoint"),
		},
		Metrics: MetricsConfig{
			Addr: v.GetString("metrics.addr"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the components cannot run with.
func (c Config) Validate() error {
	var problems []string

	if c.Database.Path == "" {
		problems = append(problems, "database.path is empty")
	}
	if c.Cache.TTL <= 0 {
		problems = append(problems, "cache.ttl must be positive")
	}
	if c.Import.DuplicateWindowDays < 0 {
		problems = append(problems, "import.duplicate_window_days must not be negative")
	}
	if !inUnitRange(c.Import.MatchThreshold) || !inUnitRange(c.Import.AutoSkipThreshold) {
		problems = append(problems, "import thresholds must be between 0 and 1")
	}
	if c.Import.AutoSkipThreshold < c.Import.MatchThreshold {
		problems = append(problems, "import.auto_skip_threshold must not be below import.match_threshold")
	}
	if c.Import.HistoryDays <= 0 {
		problems = append(problems, "import.history_days must be positive")
	}
	if !inUnitRange(c.Categories.DisplayThreshold) {
		problems = append(problems, "categories.display_threshold must be between 0 and 1")
	}
	if c.Queue.Backend != "sqlite" && c.Queue.Backend != "bolt" {
		problems = append(problems, fmt.Sprintf("queue.backend %q must be sqlite or bolt", c.Queue.Backend))
	}
	if c.Queue.MaxRetries <= 0 {
		problems = append(problems, "queue.max_retries must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", common.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func inUnitRange(f float64) bool {
	return f >= 0 && f <= 1
}
