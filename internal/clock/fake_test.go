package clock

import (
	"testing"
	"time"
)

func TestFake_AdvanceFiresDueTimers(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewFake(start)

	timer := c.NewTimer(2 * time.Second)

	select {
	case <-timer.C():
		t.Fatal("timer fired before advance")
	default:
	}

	c.Advance(time.Second)
	select {
	case <-timer.C():
		t.Fatal("timer fired before its deadline")
	default:
	}

	c.Advance(time.Second)
	select {
	case fired := <-timer.C():
		if !fired.Equal(start.Add(2 * time.Second)) {
			t.Errorf("fired at %s, want %s", fired, start.Add(2*time.Second))
		}
	default:
		t.Fatal("timer did not fire at its deadline")
	}
}

func TestFake_NonPositiveDurationFiresImmediately(t *testing.T) {
	c := NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	timer := c.NewTimer(0)
	select {
	case <-timer.C():
	default:
		t.Fatal("zero-duration timer should fire immediately")
	}

	timer = c.NewTimer(-time.Second)
	select {
	case <-timer.C():
	default:
		t.Fatal("negative-duration timer should fire immediately")
	}

	if got := c.WaiterCount(); got != 0 {
		t.Errorf("WaiterCount = %d, want 0", got)
	}
}

func TestFake_StopRemovesWaiter(t *testing.T) {
	c := NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	timer := c.NewTimer(time.Minute)
	if got := c.WaiterCount(); got != 1 {
		t.Fatalf("WaiterCount = %d, want 1", got)
	}

	if !timer.Stop() {
		t.Error("Stop should return true for a waiting timer")
	}
	if got := c.WaiterCount(); got != 0 {
		t.Errorf("WaiterCount after Stop = %d, want 0", got)
	}

	if timer.Stop() {
		t.Error("second Stop should return false")
	}

	c.Advance(2 * time.Minute)
	select {
	case <-timer.C():
		t.Fatal("stopped timer must not fire")
	default:
	}
}

func TestFake_AdvanceFiresMultipleTimersInOneStep(t *testing.T) {
	c := NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	first := c.NewTimer(time.Second)
	second := c.NewTimer(3 * time.Second)

	c.Advance(5 * time.Second)

	for i, timer := range []Timer{first, second} {
		select {
		case <-timer.C():
		default:
			t.Errorf("timer %d did not fire after advancing past both deadlines", i)
		}
	}
}
