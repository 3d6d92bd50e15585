package target

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/djlord-it/termrelay/internal/domain"
)

const defaultTmuxTimeout = 10 * time.Second

// TmuxAdapter delivers text into tmux sessions via the tmux binary.
// Session names map directly to targetSession keys.
type TmuxAdapter struct {
	bin     string
	timeout time.Duration
}

// NewTmuxAdapter creates an adapter using the given tmux binary.
// An empty bin defaults to "tmux" on PATH.
func NewTmuxAdapter(bin string) *TmuxAdapter {
	if bin == "" {
		bin = "tmux"
	}
	return &TmuxAdapter{bin: bin, timeout: defaultTmuxTimeout}
}

// Exists reports whether a tmux session with the given name is running.
func (a *TmuxAdapter) Exists(ctx context.Context, targetSession string) bool {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, a.bin, "has-session", "-t", targetSession)
	return cmd.Run() == nil
}

// Deliver types text into the session's active pane and presses Enter.
// A missing session maps to domain.ErrTargetNotFound; every other failure
// is transient.
func (a *TmuxAdapter) Deliver(ctx context.Context, targetSession, text string) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if !a.Exists(ctx, targetSession) {
		return fmt.Errorf("session %q: %w", targetSession, domain.ErrTargetNotFound)
	}

	cmd := exec.CommandContext(ctx, a.bin, "send-keys", "-t", targetSession, text, "Enter")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := stderr.String(); msg != "" {
			return fmt.Errorf("send-keys to %q: %v: %s", targetSession, err, msg)
		}
		return fmt.Errorf("send-keys to %q: %w", targetSession, err)
	}
	return nil
}
