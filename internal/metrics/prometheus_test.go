package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func newTestSink(t *testing.T) (*PrometheusSink, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg)
	return sink, reg
}

func getCounterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			for _, m := range mf.GetMetric() {
				if m.GetCounter() != nil {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func getGaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			for _, m := range mf.GetMetric() {
				if m.GetGauge() != nil {
					return m.GetGauge().GetValue()
				}
			}
		}
	}
	return 0
}

func getCounterVecValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			for _, m := range mf.GetMetric() {
				if matchLabels(m.GetLabel(), labels) {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func matchLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	if len(pairs) != len(want) {
		return false
	}
	for _, p := range pairs {
		if v, ok := want[p.GetName()]; !ok || v != p.GetValue() {
			return false
		}
	}
	return true
}

func TestPrometheusSink_Registration(t *testing.T) {
	// Should not panic or error with a fresh registry.
	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg)
	if sink == nil {
		t.Fatal("NewPrometheusSink returned nil")
	}
}

func TestPrometheusSink_TriggerFiredLabels(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.TriggerFired(true)
	sink.TriggerFired(true)
	sink.TriggerFired(false)

	recurring := getCounterVecValue(t, reg, "termrelay_scheduler_triggers_fired_total",
		map[string]string{"recurring": "true"})
	if recurring != 2 {
		t.Errorf("recurring=true = %v, want 2", recurring)
	}

	oneTime := getCounterVecValue(t, reg, "termrelay_scheduler_triggers_fired_total",
		map[string]string{"recurring": "false"})
	if oneTime != 1 {
		t.Errorf("recurring=false = %v, want 1", oneTime)
	}
}

func TestPrometheusSink_TriggersArmedGauge(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.TriggersArmed(7)
	sink.TriggersArmed(4)

	val := getGaugeValue(t, reg, "termrelay_scheduler_triggers_armed")
	if val != 4 {
		t.Errorf("triggers_armed = %v, want 4", val)
	}
}

func TestPrometheusSink_DeliveryAttemptLabels(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.DeliveryAttemptCompleted(1, "delivered", 100*time.Millisecond)
	sink.DeliveryAttemptCompleted(2, "transient_error", 200*time.Millisecond)

	val1 := getCounterVecValue(t, reg, "termrelay_queue_delivery_attempts_total",
		map[string]string{"attempt": "1", "outcome_class": "delivered"})
	if val1 != 1 {
		t.Errorf("attempt=1,class=delivered = %v, want 1", val1)
	}

	val2 := getCounterVecValue(t, reg, "termrelay_queue_delivery_attempts_total",
		map[string]string{"attempt": "2", "outcome_class": "transient_error"})
	if val2 != 1 {
		t.Errorf("attempt=2,class=transient_error = %v, want 1", val2)
	}
}

func TestPrometheusSink_DeliveryOutcome(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.DeliveryOutcome(OutcomeDelivered)
	sink.DeliveryOutcome(OutcomeFailed)
	sink.DeliveryOutcome(OutcomeDelivered)

	delivered := getCounterVecValue(t, reg, "termrelay_queue_delivery_outcomes_total",
		map[string]string{"outcome": "delivered"})
	if delivered != 2 {
		t.Errorf("outcome=delivered = %v, want 2", delivered)
	}

	failed := getCounterVecValue(t, reg, "termrelay_queue_delivery_outcomes_total",
		map[string]string{"outcome": "failed"})
	if failed != 1 {
		t.Errorf("outcome=failed = %v, want 1", failed)
	}
}

func TestPrometheusSink_InFlight(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.InFlightIncr()
	sink.InFlightIncr()
	sink.InFlightDecr()

	val := getGaugeValue(t, reg, "termrelay_queue_deliveries_in_flight")
	if val != 1 {
		t.Errorf("deliveries_in_flight = %v, want 1", val)
	}
}

func TestPrometheusSink_RetryScheduled(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.RetryScheduled(2 * time.Second)
	sink.RetryScheduled(10 * time.Second)

	val := getCounterValue(t, reg, "termrelay_queue_retries_total")
	if val != 2 {
		t.Errorf("retries_total = %v, want 2", val)
	}
}

func TestPrometheusSink_BusMetrics(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.PublishProcessed(3)
	sink.PublishProcessed(0)
	sink.SubscriptionsUpdate(5)
	sink.SubscribeRateLimited()

	if v := getCounterValue(t, reg, "termrelay_bus_publishes_total"); v != 2 {
		t.Errorf("publishes_total = %v, want 2", v)
	}
	if v := getCounterValue(t, reg, "termrelay_bus_matches_total"); v != 3 {
		t.Errorf("matches_total = %v, want 3", v)
	}
	if v := getGaugeValue(t, reg, "termrelay_bus_subscriptions"); v != 5 {
		t.Errorf("subscriptions = %v, want 5", v)
	}
	if v := getCounterValue(t, reg, "termrelay_bus_subscribe_rate_limited_total"); v != 1 {
		t.Errorf("rate_limited_total = %v, want 1", v)
	}
}

func TestPrometheusSink_SweepCompleted(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.SweepCompleted(2, 3)
	sink.SweepCompleted(1, 0)

	if v := getCounterValue(t, reg, "termrelay_sweeper_swept_subscriptions_total"); v != 3 {
		t.Errorf("swept_subscriptions_total = %v, want 3", v)
	}
	if v := getCounterValue(t, reg, "termrelay_sweeper_pruned_triggers_total"); v != 3 {
		t.Errorf("pruned_triggers_total = %v, want 3", v)
	}
}

func TestPrometheusSink_DuplicateRegistration_NoPanic(t *testing.T) {
	// Registering metrics twice with the same registry should not panic.
	// The second registration will fail, but should be handled gracefully.
	reg := prometheus.NewRegistry()

	sink1 := NewPrometheusSink(reg)
	if sink1 == nil {
		t.Fatal("first NewPrometheusSink returned nil")
	}

	sink2 := NewPrometheusSink(reg)
	if sink2 == nil {
		t.Fatal("second NewPrometheusSink returned nil")
	}
}

// Verify PrometheusSink implements Sink interface.
var _ Sink = (*PrometheusSink)(nil)
