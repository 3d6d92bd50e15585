package testutil

import (
	"testing"
	"time"
)

func TestTestContext_Deadline(t *testing.T) {
	ctx := TestContext(t)

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("expected a deadline")
	}
	if remaining := time.Until(deadline); remaining <= 0 || remaining > 6*time.Second {
		t.Errorf("deadline %v from now, want about 5s", remaining)
	}
}

func TestMustParseUUID(t *testing.T) {
	const raw = "12345678-1234-1234-1234-123456789abc"
	if got := MustParseUUID(raw).String(); got != raw {
		t.Errorf("MustParseUUID(%q) = %s", raw, got)
	}
}

func TestMustParseUUID_PanicsOnGarbage(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for invalid UUID")
		}
	}()
	MustParseUUID("not-a-uuid")
}

func TestEventually(t *testing.T) {
	n := 0
	Eventually(t, time.Second, func() bool {
		n++
		return n >= 3
	}, "counter never reached 3")
}
