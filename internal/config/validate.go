package config

import (
	"fmt"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors

	// TARGET_MODE must be "tmux" or "http"
	if cfg.TargetMode != "tmux" && cfg.TargetMode != "http" {
		errs = append(errs, ValidationError{
			Field:   "TARGET_MODE",
			Message: fmt.Sprintf("must be 'tmux' or 'http', got %q", cfg.TargetMode),
		})
	}

	// TARGET_HTTP_BASE_URL is required in http mode
	if cfg.TargetMode == "http" && cfg.TargetHTTPBaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   "TARGET_HTTP_BASE_URL",
			Message: "required when TARGET_MODE=http",
		})
	}

	errs = appendDurationErrors(errs, "DB_OP_TIMEOUT", cfg.DBOpTimeoutStr)
	errs = appendDurationErrors(errs, "HTTP_SHUTDOWN_TIMEOUT", cfg.HTTPShutdownTimeoutStr)
	errs = appendDurationErrors(errs, "SWEEP_INTERVAL", cfg.SweepIntervalStr)
	errs = appendDurationErrors(errs, "TRIGGER_RETENTION", cfg.TriggerRetentionStr)
	errs = appendDurationErrors(errs, "BREAKER_COOLDOWN", cfg.BreakerCooldownStr)
	errs = appendDurationErrors(errs, "ANALYTICS_WINDOW", cfg.AnalyticsWindowStr)
	errs = appendDurationErrors(errs, "ANALYTICS_RETENTION", cfg.AnalyticsRetentionStr)

	// QUEUE_BACKOFF must be a comma-separated list of durations.
	// Zero entries are allowed: the first attempt usually runs immediately.
	if cfg.QueueBackoffStr != "" {
		if backoff, err := parseBackoff(cfg.QueueBackoffStr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "QUEUE_BACKOFF",
				Message: fmt.Sprintf("invalid duration list: %v", err),
			})
		} else {
			for _, d := range backoff {
				if d < 0 {
					errs = append(errs, ValidationError{
						Field:   "QUEUE_BACKOFF",
						Message: "durations must not be negative",
					})
					break
				}
			}
		}
	}

	if cfg.BreakerThreshold < 0 {
		errs = append(errs, ValidationError{
			Field:   "BREAKER_THRESHOLD",
			Message: "must not be negative",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// appendDurationErrors validates a duration string, appending any errors.
func appendDurationErrors(errs ValidationErrors, field, value string) ValidationErrors {
	if value == "" {
		return errs
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("invalid duration: %v", err),
		})
	}
	if d <= 0 {
		return append(errs, ValidationError{
			Field:   field,
			Message: "must be positive",
		})
	}
	return errs
}
