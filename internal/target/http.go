package target

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/djlord-it/termrelay/internal/domain"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPAdapter delivers text to session receivers behind an HTTP base URL.
// Each target maps to POST {base}/sessions/{name}; existence is probed
// with HEAD. Intended for development against tools/session-echo.
type HTTPAdapter struct {
	base   string
	client *http.Client
}

// NewHTTPAdapter creates an adapter posting to the given base URL.
func NewHTTPAdapter(base string) *HTTPAdapter {
	return &HTTPAdapter{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

func (a *HTTPAdapter) sessionURL(targetSession string) string {
	return a.base + "/sessions/" + url.PathEscape(targetSession)
}

// Exists probes the receiver for the session.
func (a *HTTPAdapter) Exists(ctx context.Context, targetSession string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, a.sessionURL(targetSession), nil)
	if err != nil {
		return false
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Deliver posts the text as the request body. 404 maps to
// domain.ErrTargetNotFound; other non-2xx statuses and transport errors
// are transient.
func (a *HTTPAdapter) Deliver(ctx context.Context, targetSession, text string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.sessionURL(targetSession), strings.NewReader(text))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("post to %q: %w", targetSession, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("session %q: %w", targetSession, domain.ErrTargetNotFound)
	default:
		return fmt.Errorf("post to %q: status %d", targetSession, resp.StatusCode)
	}
}
