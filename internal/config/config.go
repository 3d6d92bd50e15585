package config

import (
	"encoding/json"
	"log"
	"os"
	"strings"
	"time"
)

// Config holds all configuration for the termrelay application.
// Values are loaded from environment variables; see printUsage() for the full list.
type Config struct {
	DatabaseURL string `json:"database_url,omitempty"`
	RedisAddr   string `json:"redis_addr,omitempty"`
	HTTPAddr    string `json:"http_addr"`

	DBOpTimeout    time.Duration `json:"-"`
	DBOpTimeoutStr string        `json:"db_op_timeout"`

	DBMaxOpenConns       int           `json:"db_max_open_conns"`
	DBMaxIdleConns       int           `json:"db_max_idle_conns"`
	DBConnMaxLifetime    time.Duration `json:"-"`
	DBConnMaxLifetimeStr string        `json:"db_conn_max_lifetime"`
	DBConnMaxIdleTime    time.Duration `json:"-"`
	DBConnMaxIdleTimeStr string        `json:"db_conn_max_idle_time"`

	HTTPShutdownTimeout    time.Duration `json:"-"`
	HTTPShutdownTimeoutStr string        `json:"http_shutdown_timeout"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsPath    string `json:"metrics_path"`

	// TargetMode: "tmux" (send-keys into local tmux sessions) or "http"
	// (POST to a session receiver service).
	TargetMode        string `json:"target_mode"`
	TmuxBin           string `json:"tmux_bin,omitempty"`
	TargetHTTPBaseURL string `json:"target_http_base_url,omitempty"`

	QueueMaxAttempts  int             `json:"queue_max_attempts"`
	QueueHistoryLimit int             `json:"queue_history_limit"`
	QueueBackoff      []time.Duration `json:"-"`
	QueueBackoffStr   string          `json:"queue_backoff"`

	BusMaxSubscriptions int `json:"bus_max_subscriptions"`

	SweepInterval       time.Duration `json:"-"`
	SweepIntervalStr    string        `json:"sweep_interval"`
	TriggerRetention    time.Duration `json:"-"`
	TriggerRetentionStr string        `json:"trigger_retention"`

	// BreakerThreshold: 0 disables the circuit breaker.
	BreakerThreshold   int           `json:"breaker_threshold"`
	BreakerCooldown    time.Duration `json:"-"`
	BreakerCooldownStr string        `json:"breaker_cooldown"`

	AnalyticsWindow       time.Duration `json:"-"`
	AnalyticsWindowStr    string        `json:"analytics_window"`
	AnalyticsRetention    time.Duration `json:"-"`
	AnalyticsRetentionStr string        `json:"analytics_retention"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	cfg := Config{
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		HTTPAddr:               os.Getenv("HTTP_ADDR"),
		DBOpTimeoutStr:         os.Getenv("DB_OP_TIMEOUT"),
		DBConnMaxLifetimeStr:   os.Getenv("DB_CONN_MAX_LIFETIME"),
		DBConnMaxIdleTimeStr:   os.Getenv("DB_CONN_MAX_IDLE_TIME"),
		HTTPShutdownTimeoutStr: os.Getenv("HTTP_SHUTDOWN_TIMEOUT"),
		MetricsEnabled:         os.Getenv("METRICS_ENABLED") == "true",
		MetricsPath:            os.Getenv("METRICS_PATH"),
		TargetMode:             os.Getenv("TARGET_MODE"),
		TmuxBin:                os.Getenv("TMUX_BIN"),
		TargetHTTPBaseURL:      os.Getenv("TARGET_HTTP_BASE_URL"),
		QueueBackoffStr:        os.Getenv("QUEUE_BACKOFF"),
		SweepIntervalStr:       os.Getenv("SWEEP_INTERVAL"),
		TriggerRetentionStr:    os.Getenv("TRIGGER_RETENTION"),
		BreakerCooldownStr:     os.Getenv("BREAKER_COOLDOWN"),
		AnalyticsWindowStr:     os.Getenv("ANALYTICS_WINDOW"),
		AnalyticsRetentionStr:  os.Getenv("ANALYTICS_RETENTION"),
	}

	if attemptsStr := os.Getenv("QUEUE_MAX_ATTEMPTS"); attemptsStr != "" {
		if n, err := parseInt(attemptsStr); err == nil && n > 0 {
			cfg.QueueMaxAttempts = n
		} else {
			log.Printf("config: invalid QUEUE_MAX_ATTEMPTS %q (must be a positive integer), using default 3", attemptsStr)
		}
	}
	if cfg.QueueMaxAttempts == 0 {
		cfg.QueueMaxAttempts = 3
	}

	if historyStr := os.Getenv("QUEUE_HISTORY_LIMIT"); historyStr != "" {
		if n, err := parseInt(historyStr); err == nil && n > 0 {
			cfg.QueueHistoryLimit = n
		} else {
			log.Printf("config: invalid QUEUE_HISTORY_LIMIT %q (must be a positive integer), using default 500", historyStr)
		}
	}
	if cfg.QueueHistoryLimit == 0 {
		cfg.QueueHistoryLimit = 500
	}

	if maxSubsStr := os.Getenv("BUS_MAX_SUBSCRIPTIONS"); maxSubsStr != "" {
		if n, err := parseInt(maxSubsStr); err == nil && n > 0 {
			cfg.BusMaxSubscriptions = n
		} else {
			log.Printf("config: invalid BUS_MAX_SUBSCRIPTIONS %q (must be a positive integer), using default 10", maxSubsStr)
		}
	}
	if cfg.BusMaxSubscriptions == 0 {
		cfg.BusMaxSubscriptions = 10
	}

	if threshStr := os.Getenv("BREAKER_THRESHOLD"); threshStr != "" {
		if n, err := parseInt(threshStr); err == nil {
			cfg.BreakerThreshold = n
		} else {
			log.Printf("config: invalid BREAKER_THRESHOLD %q, using default 5", threshStr)
		}
	}
	if cfg.BreakerThreshold == 0 && os.Getenv("BREAKER_THRESHOLD") == "" {
		cfg.BreakerThreshold = 5
	}

	if maxOpenStr := os.Getenv("DB_MAX_OPEN_CONNS"); maxOpenStr != "" {
		if n, err := parseInt(maxOpenStr); err == nil && n > 0 {
			cfg.DBMaxOpenConns = n
		}
	}
	if cfg.DBMaxOpenConns == 0 {
		cfg.DBMaxOpenConns = 25
	}

	if maxIdleStr := os.Getenv("DB_MAX_IDLE_CONNS"); maxIdleStr != "" {
		if n, err := parseInt(maxIdleStr); err == nil && n > 0 {
			cfg.DBMaxIdleConns = n
		}
	}
	if cfg.DBMaxIdleConns == 0 {
		cfg.DBMaxIdleConns = 5
	}

	// Support Railway's PORT variable as fallback for HTTP_ADDR.
	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}
	if cfg.DBOpTimeoutStr == "" {
		cfg.DBOpTimeoutStr = "5s"
	}
	if cfg.DBConnMaxLifetimeStr == "" {
		cfg.DBConnMaxLifetimeStr = "30m"
	}
	if cfg.DBConnMaxIdleTimeStr == "" {
		cfg.DBConnMaxIdleTimeStr = "5m"
	}
	if cfg.HTTPShutdownTimeoutStr == "" {
		cfg.HTTPShutdownTimeoutStr = "10s"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.TargetMode == "" {
		cfg.TargetMode = "tmux"
	}
	if cfg.TmuxBin == "" {
		cfg.TmuxBin = "tmux"
	}
	if cfg.QueueBackoffStr == "" {
		cfg.QueueBackoffStr = "0s,2s,10s,30s"
	}
	if cfg.SweepIntervalStr == "" {
		cfg.SweepIntervalStr = "5m"
	}
	if cfg.TriggerRetentionStr == "" {
		cfg.TriggerRetentionStr = "24h"
	}
	if cfg.BreakerCooldownStr == "" {
		cfg.BreakerCooldownStr = "2m"
	}
	if cfg.AnalyticsWindowStr == "" {
		cfg.AnalyticsWindowStr = "1h"
	}
	if cfg.AnalyticsRetentionStr == "" {
		cfg.AnalyticsRetentionStr = "168h"
	}

	// Parse durations; validation is handled separately by Validate().
	if d, err := time.ParseDuration(cfg.DBOpTimeoutStr); err == nil {
		cfg.DBOpTimeout = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxLifetimeStr); err == nil {
		cfg.DBConnMaxLifetime = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxIdleTimeStr); err == nil {
		cfg.DBConnMaxIdleTime = d
	}
	if d, err := time.ParseDuration(cfg.HTTPShutdownTimeoutStr); err == nil {
		cfg.HTTPShutdownTimeout = d
	}
	if d, err := time.ParseDuration(cfg.SweepIntervalStr); err == nil {
		cfg.SweepInterval = d
	}
	if d, err := time.ParseDuration(cfg.TriggerRetentionStr); err == nil {
		cfg.TriggerRetention = d
	}
	if d, err := time.ParseDuration(cfg.BreakerCooldownStr); err == nil {
		cfg.BreakerCooldown = d
	}
	if d, err := time.ParseDuration(cfg.AnalyticsWindowStr); err == nil {
		cfg.AnalyticsWindow = d
	}
	if d, err := time.ParseDuration(cfg.AnalyticsRetentionStr); err == nil {
		cfg.AnalyticsRetention = d
	}
	if backoff, err := parseBackoff(cfg.QueueBackoffStr); err == nil {
		cfg.QueueBackoff = backoff
	}

	return cfg
}

// parseBackoff parses a comma-separated list of durations.
func parseBackoff(s string) ([]time.Duration, error) {
	parts := strings.Split(s, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		d, err := time.ParseDuration(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// parseInt parses a string as an integer.
func parseInt(s string) (int, error) {
	var n int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, os.ErrInvalid
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := struct {
		DatabaseURL         string `json:"database_url,omitempty"`
		RedisAddr           string `json:"redis_addr,omitempty"`
		HTTPAddr            string `json:"http_addr"`
		DBOpTimeout         string `json:"db_op_timeout"`
		DBMaxOpenConns      int    `json:"db_max_open_conns"`
		DBMaxIdleConns      int    `json:"db_max_idle_conns"`
		DBConnMaxLifetime   string `json:"db_conn_max_lifetime"`
		DBConnMaxIdleTime   string `json:"db_conn_max_idle_time"`
		HTTPShutdownTimeout string `json:"http_shutdown_timeout"`
		MetricsEnabled      bool   `json:"metrics_enabled"`
		MetricsPath         string `json:"metrics_path"`
		TargetMode          string `json:"target_mode"`
		TmuxBin             string `json:"tmux_bin,omitempty"`
		TargetHTTPBaseURL   string `json:"target_http_base_url,omitempty"`
		QueueMaxAttempts    int    `json:"queue_max_attempts"`
		QueueHistoryLimit   int    `json:"queue_history_limit"`
		QueueBackoff        string `json:"queue_backoff"`
		BusMaxSubscriptions int    `json:"bus_max_subscriptions"`
		SweepInterval       string `json:"sweep_interval"`
		TriggerRetention    string `json:"trigger_retention"`
		BreakerThreshold    int    `json:"breaker_threshold"`
		BreakerCooldown     string `json:"breaker_cooldown"`
		AnalyticsWindow     string `json:"analytics_window"`
		AnalyticsRetention  string `json:"analytics_retention"`
	}{
		DatabaseURL:         maskSecret(c.DatabaseURL),
		RedisAddr:           c.RedisAddr,
		HTTPAddr:            c.HTTPAddr,
		DBOpTimeout:         c.DBOpTimeoutStr,
		DBMaxOpenConns:      c.DBMaxOpenConns,
		DBMaxIdleConns:      c.DBMaxIdleConns,
		DBConnMaxLifetime:   c.DBConnMaxLifetimeStr,
		DBConnMaxIdleTime:   c.DBConnMaxIdleTimeStr,
		HTTPShutdownTimeout: c.HTTPShutdownTimeoutStr,
		MetricsEnabled:      c.MetricsEnabled,
		MetricsPath:         c.MetricsPath,
		TargetMode:          c.TargetMode,
		TmuxBin:             c.TmuxBin,
		TargetHTTPBaseURL:   c.TargetHTTPBaseURL,
		QueueMaxAttempts:    c.QueueMaxAttempts,
		QueueHistoryLimit:   c.QueueHistoryLimit,
		QueueBackoff:        c.QueueBackoffStr,
		BusMaxSubscriptions: c.BusMaxSubscriptions,
		SweepInterval:       c.SweepIntervalStr,
		TriggerRetention:    c.TriggerRetentionStr,
		BreakerThreshold:    c.BreakerThreshold,
		BreakerCooldown:     c.BreakerCooldownStr,
		AnalyticsWindow:     c.AnalyticsWindowStr,
		AnalyticsRetention:  c.AnalyticsRetentionStr,
	}
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks a secret value, preserving only the URI scheme if present.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if len(s) >= len(scheme) && s[:len(scheme)] == scheme {
			return scheme + "***"
		}
	}
	return "***"
}
