package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	return Config{
		HTTPAddr:               ":8080",
		TargetMode:             "tmux",
		TmuxBin:                "tmux",
		DBOpTimeoutStr:         "5s",
		HTTPShutdownTimeoutStr: "10s",
		QueueBackoffStr:        "0s,2s,10s,30s",
		SweepIntervalStr:       "5m",
		TriggerRetentionStr:    "24h",
		BreakerThreshold:       5,
		BreakerCooldownStr:     "2m",
		AnalyticsWindowStr:     "1h",
		AnalyticsRetentionStr:  "168h",
	}
}

func TestValidate_Valid(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:      "bad target mode",
			mutate:    func(c *Config) { c.TargetMode = "carrier-pigeon" },
			wantField: "TARGET_MODE",
		},
		{
			name:      "http mode without base url",
			mutate:    func(c *Config) { c.TargetMode = "http" },
			wantField: "TARGET_HTTP_BASE_URL",
		},
		{
			name:      "bad db op timeout",
			mutate:    func(c *Config) { c.DBOpTimeoutStr = "soon" },
			wantField: "DB_OP_TIMEOUT",
		},
		{
			name:      "negative sweep interval",
			mutate:    func(c *Config) { c.SweepIntervalStr = "-1m" },
			wantField: "SWEEP_INTERVAL",
		},
		{
			name:      "bad backoff list",
			mutate:    func(c *Config) { c.QueueBackoffStr = "2s,fast,10s" },
			wantField: "QUEUE_BACKOFF",
		},
		{
			name:      "negative backoff entry",
			mutate:    func(c *Config) { c.QueueBackoffStr = "0s,-2s" },
			wantField: "QUEUE_BACKOFF",
		},
		{
			name:      "negative breaker threshold",
			mutate:    func(c *Config) { c.BreakerThreshold = -1 },
			wantField: "BREAKER_THRESHOLD",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantField) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantField)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.TargetMode = "http"
	cfg.DBOpTimeoutStr = "soon"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "2 validation errors") {
		t.Errorf("expected aggregated message, got %q", err.Error())
	}
}

func TestValidationError_Format(t *testing.T) {
	e := ValidationError{Field: "TARGET_MODE", Message: "required"}
	if e.Error() != "TARGET_MODE: required" {
		t.Errorf("unexpected format: %q", e.Error())
	}
}
