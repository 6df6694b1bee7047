// Package config loads and validates the monitoring core's
// configuration from file, environment and defaults.
package config

import (
	"context"
	"time"
)

// Config is the complete configuration of the monitoring core.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Anomaly  AnomalyConfig  `mapstructure:"anomaly"`
	Drift    DriftConfig    `mapstructure:"drift"`
	Trend    TrendConfig    `mapstructure:"trend"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Retrain  RetrainConfig  `mapstructure:"retrain"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig controls the application log.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json or console
	File       string `mapstructure:"file"`   // empty logs to stderr only
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	ListenAddress string `mapstructure:"listen_address"`
}

// CacheConfig controls the facade's read-through TTL cache.
type CacheConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	TTLSeconds int  `mapstructure:"ttl_seconds"`
}

// AnomalyConfig tunes the z-score detector.
type AnomalyConfig struct {
	WindowSize int     `mapstructure:"window_size"`
	Threshold  float64 `mapstructure:"threshold"`
}

// DriftConfig tunes the KS drift detector and its window selection.
type DriftConfig struct {
	// Baseline selects the reference window: "trailing" takes the
	// window preceding the recent one separated by Gap points; "fixed"
	// takes the first ReferenceWindow points of the series.
	Baseline        string  `mapstructure:"baseline"`
	ReferenceWindow int     `mapstructure:"reference_window"`
	RecentWindow    int     `mapstructure:"recent_window"`
	Gap             int     `mapstructure:"gap"`
	Alpha           float64 `mapstructure:"alpha"`
	MinSamples      int     `mapstructure:"min_samples"`
}

// TrendConfig tunes the OLS trend classifier.
type TrendConfig struct {
	WindowSize int     `mapstructure:"window_size"`
	Threshold  float64 `mapstructure:"threshold"`
	// BadDirections maps metric names to "up" or "down": the direction
	// that means degradation for that metric. Unlisted metrics use
	// DefaultBadDirection.
	BadDirections       map[string]string `mapstructure:"bad_directions"`
	DefaultBadDirection string            `mapstructure:"default_bad_direction"`
}

// SeverityThresholdConfig maps a detector score onto warning/critical.
type SeverityThresholdConfig struct {
	Warning  float64 `mapstructure:"warning"`
	Critical float64 `mapstructure:"critical"`
}

// AlertingConfig tunes alert dedup and severity classification.
type AlertingConfig struct {
	DedupWindowHours int                     `mapstructure:"dedup_window_hours"`
	Anomaly          SeverityThresholdConfig `mapstructure:"anomaly"`
	Drift            SeverityThresholdConfig `mapstructure:"drift"`
	Trend            SeverityThresholdConfig `mapstructure:"trend"`
}

// RetrainConfig tunes the retraining trigger.
type RetrainConfig struct {
	MinFeedback      int     `mapstructure:"min_feedback"`
	DriftScore       float64 `mapstructure:"drift_score"`
	AccuracyDrop     float64 `mapstructure:"accuracy_drop"`
	BaselineAccuracy float64 `mapstructure:"baseline_accuracy"`
	LookbackDays     int     `mapstructure:"lookback_days"`
}

// DedupWindow returns the alert dedup window as a duration.
func (a AlertingConfig) DedupWindow() time.Duration {
	return time.Duration(a.DedupWindowHours) * time.Hour
}

// TTL returns the cache TTL as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Lookback returns the retraining lookback as a duration.
func (r RetrainConfig) Lookback() time.Duration {
	return time.Duration(r.LookbackDays) * 24 * time.Hour
}

// Manager loads, validates and watches configuration.
type Manager interface {
	Load(ctx context.Context) error
	Get(ctx context.Context) *Config
	Validate(ctx context.Context) error
	Watch(ctx context.Context) <-chan Config
	Reload(ctx context.Context) error
}

// NewManager creates a viper-backed Manager reading the given file.
// The file is optional; defaults and MODELWATCH_* environment
// variables always apply.
func NewManager(configPath string) Manager {
	return &viperConfigManager{
		configPath: configPath,
		watchChan:  make(chan Config, 1),
	}
}
