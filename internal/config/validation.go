package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	if c.Database.Path == "" {
		errs = append(errs, &ValidationError{
			Field:   "database.path",
			Message: "database path is required",
		})
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}

	validLogFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if !validLogFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format '%s', must be one of: json, console", c.Logging.Format),
		})
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddress == "" {
		errs = append(errs, &ValidationError{
			Field:   "metrics.listen_address",
			Message: "listen_address is required when metrics are enabled",
		})
	}

	if c.Cache.TTLSeconds < 0 {
		errs = append(errs, &ValidationError{
			Field:   "cache.ttl_seconds",
			Message: fmt.Sprintf("ttl_seconds cannot be negative, got %d", c.Cache.TTLSeconds),
		})
	}

	if c.Anomaly.WindowSize < 2 {
		errs = append(errs, &ValidationError{
			Field:   "anomaly.window_size",
			Message: fmt.Sprintf("window_size must be at least 2, got %d", c.Anomaly.WindowSize),
		})
	}
	if c.Anomaly.Threshold <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "anomaly.threshold",
			Message: fmt.Sprintf("threshold must be positive, got %g", c.Anomaly.Threshold),
		})
	}

	validBaselines := map[string]bool{
		"trailing": true,
		"fixed":    true,
	}
	if !validBaselines[c.Drift.Baseline] {
		errs = append(errs, &ValidationError{
			Field:   "drift.baseline",
			Message: fmt.Sprintf("invalid baseline '%s', must be one of: trailing, fixed", c.Drift.Baseline),
		})
	}
	if c.Drift.Alpha <= 0 || c.Drift.Alpha >= 1 {
		errs = append(errs, &ValidationError{
			Field:   "drift.alpha",
			Message: fmt.Sprintf("alpha must be in (0, 1), got %g", c.Drift.Alpha),
		})
	}
	if c.Drift.MinSamples < 2 {
		errs = append(errs, &ValidationError{
			Field:   "drift.min_samples",
			Message: fmt.Sprintf("min_samples must be at least 2, got %d", c.Drift.MinSamples),
		})
	}
	if c.Drift.ReferenceWindow < c.Drift.MinSamples {
		errs = append(errs, &ValidationError{
			Field:   "drift.reference_window",
			Message: fmt.Sprintf("reference_window %d is smaller than min_samples %d", c.Drift.ReferenceWindow, c.Drift.MinSamples),
		})
	}
	if c.Drift.RecentWindow < c.Drift.MinSamples {
		errs = append(errs, &ValidationError{
			Field:   "drift.recent_window",
			Message: fmt.Sprintf("recent_window %d is smaller than min_samples %d", c.Drift.RecentWindow, c.Drift.MinSamples),
		})
	}
	if c.Drift.Gap < 0 {
		errs = append(errs, &ValidationError{
			Field:   "drift.gap",
			Message: fmt.Sprintf("gap cannot be negative, got %d", c.Drift.Gap),
		})
	}

	if c.Trend.WindowSize < 3 {
		errs = append(errs, &ValidationError{
			Field:   "trend.window_size",
			Message: fmt.Sprintf("window_size must be at least 3, got %d", c.Trend.WindowSize),
		})
	}
	if c.Trend.Threshold <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "trend.threshold",
			Message: fmt.Sprintf("threshold must be positive, got %g", c.Trend.Threshold),
		})
	}
	validDirections := map[string]bool{
		"up":   true,
		"down": true,
	}
	if !validDirections[c.Trend.DefaultBadDirection] {
		errs = append(errs, &ValidationError{
			Field:   "trend.default_bad_direction",
			Message: fmt.Sprintf("invalid direction '%s', must be up or down", c.Trend.DefaultBadDirection),
		})
	}
	for metric, dir := range c.Trend.BadDirections {
		if !validDirections[dir] {
			errs = append(errs, &ValidationError{
				Field:   "trend.bad_directions." + metric,
				Message: fmt.Sprintf("invalid direction '%s', must be up or down", dir),
			})
		}
	}

	if c.Alerting.DedupWindowHours < 1 {
		errs = append(errs, &ValidationError{
			Field:   "alerting.dedup_window_hours",
			Message: fmt.Sprintf("dedup_window_hours must be at least 1, got %d", c.Alerting.DedupWindowHours),
		})
	}
	for field, t := range map[string]SeverityThresholdConfig{
		"alerting.anomaly": c.Alerting.Anomaly,
		"alerting.drift":   c.Alerting.Drift,
		"alerting.trend":   c.Alerting.Trend,
	} {
		if t.Warning <= 0 || t.Critical <= 0 {
			errs = append(errs, &ValidationError{
				Field:   field,
				Message: "warning and critical thresholds must be positive",
			})
			continue
		}
		if t.Critical < t.Warning {
			errs = append(errs, &ValidationError{
				Field:   field,
				Message: fmt.Sprintf("critical threshold %g is below warning threshold %g", t.Critical, t.Warning),
			})
		}
	}

	if c.Retrain.MinFeedback < 1 {
		errs = append(errs, &ValidationError{
			Field:   "retrain.min_feedback",
			Message: fmt.Sprintf("min_feedback must be at least 1, got %d", c.Retrain.MinFeedback),
		})
	}
	if c.Retrain.DriftScore <= 0 || c.Retrain.DriftScore > 1 {
		errs = append(errs, &ValidationError{
			Field:   "retrain.drift_score",
			Message: fmt.Sprintf("drift_score must be in (0, 1], got %g", c.Retrain.DriftScore),
		})
	}
	if c.Retrain.AccuracyDrop <= 0 || c.Retrain.AccuracyDrop > 1 {
		errs = append(errs, &ValidationError{
			Field:   "retrain.accuracy_drop",
			Message: fmt.Sprintf("accuracy_drop must be in (0, 1], got %g", c.Retrain.AccuracyDrop),
		})
	}
	if c.Retrain.BaselineAccuracy <= 0 || c.Retrain.BaselineAccuracy > 1 {
		errs = append(errs, &ValidationError{
			Field:   "retrain.baseline_accuracy",
			Message: fmt.Sprintf("baseline_accuracy must be in (0, 1], got %g", c.Retrain.BaselineAccuracy),
		})
	}
	if c.Retrain.LookbackDays < 1 {
		errs = append(errs, &ValidationError{
			Field:   "retrain.lookback_days",
			Message: fmt.Sprintf("lookback_days must be at least 1, got %d", c.Retrain.LookbackDays),
		})
	}

	return errs
}
