package config

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Database.Path = "modelwatch.db"

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.File = ""
	cfg.Logging.MaxSizeMB = 100
	cfg.Logging.MaxBackups = 5
	cfg.Logging.MaxAgeDays = 30

	cfg.Metrics.Enabled = true
	cfg.Metrics.ListenAddress = ":9090"

	cfg.Cache.Enabled = true
	cfg.Cache.TTLSeconds = 30

	cfg.Anomaly.WindowSize = 30
	cfg.Anomaly.Threshold = 3.0

	cfg.Drift.Baseline = "trailing"
	cfg.Drift.ReferenceWindow = 100
	cfg.Drift.RecentWindow = 50
	cfg.Drift.Gap = 0
	cfg.Drift.Alpha = 0.05
	cfg.Drift.MinSamples = 10

	cfg.Trend.WindowSize = 14
	cfg.Trend.Threshold = 0.01
	cfg.Trend.BadDirections = map[string]string{}
	// Error-style metrics dominate a forecasting deployment, so an
	// unlisted metric degrades upward.
	cfg.Trend.DefaultBadDirection = "up"

	cfg.Alerting.DedupWindowHours = 24
	cfg.Alerting.Anomaly = SeverityThresholdConfig{Warning: 3.0, Critical: 4.5}
	cfg.Alerting.Drift = SeverityThresholdConfig{Warning: 0.95, Critical: 0.99}
	cfg.Alerting.Trend = SeverityThresholdConfig{Warning: 0.01, Critical: 0.1}

	cfg.Retrain.MinFeedback = 10
	cfg.Retrain.DriftScore = 0.95
	cfg.Retrain.AccuracyDrop = 0.10
	cfg.Retrain.BaselineAccuracy = 0.90
	cfg.Retrain.LookbackDays = 7

	return cfg
}
