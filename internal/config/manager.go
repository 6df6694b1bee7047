package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// viperConfigManager implements Manager using Viper.
type viperConfigManager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
	watchChan  chan Config
}

// Load loads configuration from all sources.
func (m *viperConfigManager) Load(ctx context.Context) error {
	m.viper = viper.New()

	if m.configPath != "" {
		m.viper.SetConfigFile(m.configPath)
		m.viper.SetConfigType("yaml")
	}

	m.viper.SetEnvPrefix("MODELWATCH")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	// The config file is optional; defaults plus env vars are a valid
	// configuration on their own.
	if m.configPath != "" {
		if err := m.viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	return nil
}

// Get returns the current configuration.
func (m *viperConfigManager) Get(ctx context.Context) *Config {
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperConfigManager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

// Watch watches for configuration changes and reloads.
func (m *viperConfigManager) Watch(ctx context.Context) <-chan Config {
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		if err := m.unmarshalConfig(); err != nil {
			return
		}
		select {
		case m.watchChan <- *m.config:
		default:
			// Channel full, skip this update
		}
	})
	return m.watchChan
}

// Reload reloads configuration from sources.
func (m *viperConfigManager) Reload(ctx context.Context) error {
	if m.configPath != "" {
		if err := m.viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return fmt.Errorf("error reading config file: %w", err)
			}
		}
	}
	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	return nil
}

// setDefaults sets default values in viper.
func (m *viperConfigManager) setDefaults() {
	defaults := DefaultConfig()

	m.viper.SetDefault("database.path", defaults.Database.Path)

	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.format", defaults.Logging.Format)
	m.viper.SetDefault("logging.file", defaults.Logging.File)
	m.viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	m.viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	m.viper.SetDefault("logging.max_age_days", defaults.Logging.MaxAgeDays)

	m.viper.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	m.viper.SetDefault("metrics.listen_address", defaults.Metrics.ListenAddress)

	m.viper.SetDefault("cache.enabled", defaults.Cache.Enabled)
	m.viper.SetDefault("cache.ttl_seconds", defaults.Cache.TTLSeconds)

	m.viper.SetDefault("anomaly.window_size", defaults.Anomaly.WindowSize)
	m.viper.SetDefault("anomaly.threshold", defaults.Anomaly.Threshold)

	m.viper.SetDefault("drift.baseline", defaults.Drift.Baseline)
	m.viper.SetDefault("drift.reference_window", defaults.Drift.ReferenceWindow)
	m.viper.SetDefault("drift.recent_window", defaults.Drift.RecentWindow)
	m.viper.SetDefault("drift.gap", defaults.Drift.Gap)
	m.viper.SetDefault("drift.alpha", defaults.Drift.Alpha)
	m.viper.SetDefault("drift.min_samples", defaults.Drift.MinSamples)

	m.viper.SetDefault("trend.window_size", defaults.Trend.WindowSize)
	m.viper.SetDefault("trend.threshold", defaults.Trend.Threshold)
	m.viper.SetDefault("trend.bad_directions", defaults.Trend.BadDirections)
	m.viper.SetDefault("trend.default_bad_direction", defaults.Trend.DefaultBadDirection)

	m.viper.SetDefault("alerting.dedup_window_hours", defaults.Alerting.DedupWindowHours)
	m.viper.SetDefault("alerting.anomaly.warning", defaults.Alerting.Anomaly.Warning)
	m.viper.SetDefault("alerting.anomaly.critical", defaults.Alerting.Anomaly.Critical)
	m.viper.SetDefault("alerting.drift.warning", defaults.Alerting.Drift.Warning)
	m.viper.SetDefault("alerting.drift.critical", defaults.Alerting.Drift.Critical)
	m.viper.SetDefault("alerting.trend.warning", defaults.Alerting.Trend.Warning)
	m.viper.SetDefault("alerting.trend.critical", defaults.Alerting.Trend.Critical)

	m.viper.SetDefault("retrain.min_feedback", defaults.Retrain.MinFeedback)
	m.viper.SetDefault("retrain.drift_score", defaults.Retrain.DriftScore)
	m.viper.SetDefault("retrain.accuracy_drop", defaults.Retrain.AccuracyDrop)
	m.viper.SetDefault("retrain.baseline_accuracy", defaults.Retrain.BaselineAccuracy)
	m.viper.SetDefault("retrain.lookback_days", defaults.Retrain.LookbackDays)
}

// unmarshalConfig unmarshals viper config into Config struct.
func (m *viperConfigManager) unmarshalConfig() error {
	cfg := &Config{}

	cfg.Database.Path = m.viper.GetString("database.path")

	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.Format = m.viper.GetString("logging.format")
	cfg.Logging.File = m.viper.GetString("logging.file")
	cfg.Logging.MaxSizeMB = m.viper.GetInt("logging.max_size_mb")
	cfg.Logging.MaxBackups = m.viper.GetInt("logging.max_backups")
	cfg.Logging.MaxAgeDays = m.viper.GetInt("logging.max_age_days")

	cfg.Metrics.Enabled = m.viper.GetBool("metrics.enabled")
	cfg.Metrics.ListenAddress = m.viper.GetString("metrics.listen_address")

	cfg.Cache.Enabled = m.viper.GetBool("cache.enabled")
	cfg.Cache.TTLSeconds = m.viper.GetInt("cache.ttl_seconds")

	cfg.Anomaly.WindowSize = m.viper.GetInt("anomaly.window_size")
	cfg.Anomaly.Threshold = m.viper.GetFloat64("anomaly.threshold")

	cfg.Drift.Baseline = m.viper.GetString("drift.baseline")
	cfg.Drift.ReferenceWindow = m.viper.GetInt("drift.reference_window")
	cfg.Drift.RecentWindow = m.viper.GetInt("drift.recent_window")
	cfg.Drift.Gap = m.viper.GetInt("drift.gap")
	cfg.Drift.Alpha = m.viper.GetFloat64("drift.alpha")
	cfg.Drift.MinSamples = m.viper.GetInt("drift.min_samples")

	cfg.Trend.WindowSize = m.viper.GetInt("trend.window_size")
	cfg.Trend.Threshold = m.viper.GetFloat64("trend.threshold")
	cfg.Trend.BadDirections = m.viper.GetStringMapString("trend.bad_directions")
	cfg.Trend.DefaultBadDirection = m.viper.GetString("trend.default_bad_direction")

	cfg.Alerting.DedupWindowHours = m.viper.GetInt("alerting.dedup_window_hours")
	cfg.Alerting.Anomaly.Warning = m.viper.GetFloat64("alerting.anomaly.warning")
	cfg.Alerting.Anomaly.Critical = m.viper.GetFloat64("alerting.anomaly.critical")
	cfg.Alerting.Drift.Warning = m.viper.GetFloat64("alerting.drift.warning")
	cfg.Alerting.Drift.Critical = m.viper.GetFloat64("alerting.drift.critical")
	cfg.Alerting.Trend.Warning = m.viper.GetFloat64("alerting.trend.warning")
	cfg.Alerting.Trend.Critical = m.viper.GetFloat64("alerting.trend.critical")

	cfg.Retrain.MinFeedback = m.viper.GetInt("retrain.min_feedback")
	cfg.Retrain.DriftScore = m.viper.GetFloat64("retrain.drift_score")
	cfg.Retrain.AccuracyDrop = m.viper.GetFloat64("retrain.accuracy_drop")
	cfg.Retrain.BaselineAccuracy = m.viper.GetFloat64("retrain.baseline_accuracy")
	cfg.Retrain.LookbackDays = m.viper.GetInt("retrain.lookback_days")

	m.config = cfg
	return nil
}
