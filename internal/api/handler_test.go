package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseHistoryLimit_Default(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/queue/history", nil)

	limit, err := parseHistoryLimit(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if limit != DefaultHistoryLimit {
		t.Errorf("expected default limit %d, got %d", DefaultHistoryLimit, limit)
	}
}

func TestParseHistoryLimit_CustomValue(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/queue/history?limit=50", nil)

	limit, err := parseHistoryLimit(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if limit != 50 {
		t.Errorf("expected limit 50, got %d", limit)
	}
}

func TestParseHistoryLimit_ExceedsMax(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/queue/history?limit=2000", nil)

	_, err := parseHistoryLimit(req)
	if err == nil {
		t.Fatal("expected error for limit exceeding max, got nil")
	}

	expected := "limit exceeds maximum of 1000"
	if err.Error() != expected {
		t.Errorf("expected error %q, got %q", expected, err.Error())
	}
}

func TestParseHistoryLimit_Negative(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/queue/history?limit=-1", nil)

	if _, err := parseHistoryLimit(req); err == nil {
		t.Fatal("expected error for negative limit, got nil")
	}
}

func TestParseHistoryLimit_Invalid(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/queue/history?limit=abc", nil)

	if _, err := parseHistoryLimit(req); err == nil {
		t.Fatal("expected error for invalid limit, got nil")
	}
}

func TestParseHistoryLimit_Zero(t *testing.T) {
	// limit=0 should be treated as "use default"
	req := httptest.NewRequest(http.MethodGet, "/queue/history?limit=0", nil)

	limit, err := parseHistoryLimit(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if limit != DefaultHistoryLimit {
		t.Errorf("expected default limit %d for limit=0, got %d", DefaultHistoryLimit, limit)
	}
}
