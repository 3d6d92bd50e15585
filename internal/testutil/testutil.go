// Package testutil provides shared test helpers for termrelay.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

// TestContext returns a context cancelled when the test finishes, with a
// 5-second ceiling so a wedged test fails instead of hanging the run.
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// MustParseUUID parses s or panics. Test fixtures only.
func MustParseUUID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		panic("testutil.MustParseUUID: " + err.Error())
	}
	return id
}

// Eventually polls cond every 10ms until it returns true or the deadline
// passes, failing the test in the latter case.
func Eventually(t *testing.T, deadline time.Duration, cond func() bool, msg string) {
	t.Helper()
	stop := time.Now().Add(deadline)
	for time.Now().Before(stop) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", deadline, msg)
}
