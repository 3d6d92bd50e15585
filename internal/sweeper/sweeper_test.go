package sweeper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/djlord-it/termrelay/internal/testutil"
)

type mockSubs struct {
	mu    sync.Mutex
	calls int
	ret   int
}

func (m *mockSubs) SweepExpired(_ context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.ret
}

type mockPruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	ret     int
}

func (m *mockPruner) PruneArchived(_ context.Context, olderThan time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cutoffs = append(m.cutoffs, olderThan)
	return m.ret
}

type recordingSink struct {
	mu     sync.Mutex
	sweeps [][2]int
}

func (r *recordingSink) SweepCompleted(subsRemoved, triggersPruned int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweeps = append(r.sweeps, [2]int{subsRemoved, triggersPruned})
}

func TestRunCycle_InvokesBothCollaborators(t *testing.T) {
	subs := &mockSubs{ret: 2}
	pruner := &mockPruner{ret: 3}
	sink := &recordingSink{}

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sw := New(Config{Interval: time.Minute, TriggerRetention: 24 * time.Hour}, subs, pruner).
		WithMetrics(sink).
		WithNow(func() time.Time { return now })

	sw.RunCycle(context.Background())

	if subs.calls != 1 {
		t.Fatalf("SweepExpired calls = %d, want 1", subs.calls)
	}
	if len(pruner.cutoffs) != 1 {
		t.Fatalf("PruneArchived calls = %d, want 1", len(pruner.cutoffs))
	}
	wantCutoff := now.Add(-24 * time.Hour)
	if !pruner.cutoffs[0].Equal(wantCutoff) {
		t.Fatalf("cutoff = %v, want %v", pruner.cutoffs[0], wantCutoff)
	}
	if len(sink.sweeps) != 1 || sink.sweeps[0] != [2]int{2, 3} {
		t.Fatalf("unexpected metrics: %+v", sink.sweeps)
	}
}

func TestRunCycle_NilCollaboratorsSkipped(t *testing.T) {
	sw := New(DefaultConfig(), nil, nil)
	// Must not panic.
	sw.RunCycle(context.Background())
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	subs := &mockSubs{}
	sw := New(Config{Interval: time.Hour, TriggerRetention: time.Hour}, subs, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()

	// The startup cycle runs before the first tick.
	testutil.Eventually(t, 2*time.Second, func() bool {
		subs.mu.Lock()
		defer subs.mu.Unlock()
		return subs.calls >= 1
	}, "startup cycle never ran")

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after cancel")
	}
}
