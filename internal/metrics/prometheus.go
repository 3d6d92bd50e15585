package metrics

import (
	"log"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	// Scheduler metrics
	triggersFiredTotal *prometheus.CounterVec
	fireLatency        prometheus.Histogram
	triggersArmed      prometheus.Gauge

	// Delivery queue metrics
	deliveryAttemptsTotal *prometheus.CounterVec
	deliveryOutcomesTotal *prometheus.CounterVec
	attemptDuration       prometheus.Histogram
	retriesTotal          prometheus.Counter
	retryBackoff          prometheus.Histogram
	pendingSize           prometheus.Gauge
	deliveriesInFlight    prometheus.Gauge

	// Event bus metrics
	publishesTotal   prometheus.Counter
	matchesTotal     prometheus.Counter
	subscriptions    prometheus.Gauge
	rateLimitedTotal prometheus.Counter

	// Sweeper metrics
	sweptSubscriptionsTotal prometheus.Counter
	prunedTriggersTotal     prometheus.Counter
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// If registration fails, it logs a warning and returns a functional sink.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initSchedulerMetrics(reg)
	s.initQueueMetrics(reg)
	s.initBusMetrics(reg)
	s.initSweeperMetrics(reg)
	return s
}

func (s *PrometheusSink) initSchedulerMetrics(reg prometheus.Registerer) {
	s.triggersFiredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "termrelay_scheduler_triggers_fired_total",
		Help: "Total number of triggers fired.",
	}, []string{"recurring"})
	s.fireLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "termrelay_scheduler_fire_latency_seconds",
		Help:    "Delay between a trigger's deadline and the actual fire.",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	})
	s.triggersArmed = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "termrelay_scheduler_triggers_armed",
		Help: "Number of triggers currently armed.",
	})

	s.register(reg, s.triggersFiredTotal, "termrelay_scheduler_triggers_fired_total")
	s.register(reg, s.fireLatency, "termrelay_scheduler_fire_latency_seconds")
	s.register(reg, s.triggersArmed, "termrelay_scheduler_triggers_armed")
}

func (s *PrometheusSink) initQueueMetrics(reg prometheus.Registerer) {
	s.deliveryAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "termrelay_queue_delivery_attempts_total",
		Help: "Total number of delivery attempts.",
	}, []string{"attempt", "outcome_class"})

	s.deliveryOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "termrelay_queue_delivery_outcomes_total",
		Help: "Total number of terminal delivery outcomes per item.",
	}, []string{"outcome"})

	s.attemptDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "termrelay_queue_attempt_duration_seconds",
		Help:    "Delivery attempt latency in seconds (excludes backoff wait).",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	s.retriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "termrelay_queue_retries_total",
		Help: "Total number of retries scheduled (excludes first attempt).",
	})

	s.retryBackoff = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "termrelay_queue_retry_backoff_seconds",
		Help:    "Backoff applied before each scheduled retry.",
		Buckets: []float64{1, 2, 5, 10, 30, 60},
	})

	s.pendingSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "termrelay_queue_pending_size",
		Help: "Number of items waiting in the delivery queue.",
	})

	s.deliveriesInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "termrelay_queue_deliveries_in_flight",
		Help: "Number of deliveries currently being attempted (0 or 1).",
	})

	s.register(reg, s.deliveryAttemptsTotal, "termrelay_queue_delivery_attempts_total")
	s.register(reg, s.deliveryOutcomesTotal, "termrelay_queue_delivery_outcomes_total")
	s.register(reg, s.attemptDuration, "termrelay_queue_attempt_duration_seconds")
	s.register(reg, s.retriesTotal, "termrelay_queue_retries_total")
	s.register(reg, s.retryBackoff, "termrelay_queue_retry_backoff_seconds")
	s.register(reg, s.pendingSize, "termrelay_queue_pending_size")
	s.register(reg, s.deliveriesInFlight, "termrelay_queue_deliveries_in_flight")
}

func (s *PrometheusSink) initBusMetrics(reg prometheus.Registerer) {
	s.publishesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "termrelay_bus_publishes_total",
		Help: "Total number of events published.",
	})
	s.matchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "termrelay_bus_matches_total",
		Help: "Total number of subscription matches across all publishes.",
	})
	s.subscriptions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "termrelay_bus_subscriptions",
		Help: "Number of registered subscriptions.",
	})
	s.rateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "termrelay_bus_subscribe_rate_limited_total",
		Help: "Total number of subscribe calls rejected by the per-subscriber ceiling.",
	})

	s.register(reg, s.publishesTotal, "termrelay_bus_publishes_total")
	s.register(reg, s.matchesTotal, "termrelay_bus_matches_total")
	s.register(reg, s.subscriptions, "termrelay_bus_subscriptions")
	s.register(reg, s.rateLimitedTotal, "termrelay_bus_subscribe_rate_limited_total")
}

func (s *PrometheusSink) initSweeperMetrics(reg prometheus.Registerer) {
	s.sweptSubscriptionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "termrelay_sweeper_swept_subscriptions_total",
		Help: "Total number of expired subscriptions removed by the sweeper.",
	})
	s.prunedTriggersTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "termrelay_sweeper_pruned_triggers_total",
		Help: "Total number of archived triggers hard-deleted by the sweeper.",
	})

	s.register(reg, s.sweptSubscriptionsTotal, "termrelay_sweeper_swept_subscriptions_total")
	s.register(reg, s.prunedTriggersTotal, "termrelay_sweeper_pruned_triggers_total")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Printf("metrics: failed to register %s: %v", name, err)
	}
}

// Scheduler metrics implementation

func (s *PrometheusSink) TriggerFired(recurring bool) {
	s.triggersFiredTotal.WithLabelValues(strconv.FormatBool(recurring)).Inc()
}

func (s *PrometheusSink) FireLatency(d time.Duration) {
	if d < 0 {
		d = -d
	}
	s.fireLatency.Observe(d.Seconds())
}

func (s *PrometheusSink) TriggersArmed(count int) {
	s.triggersArmed.Set(float64(count))
}

// Delivery queue metrics implementation

func (s *PrometheusSink) DeliveryAttemptCompleted(attempt int, outcomeClass string, duration time.Duration) {
	s.deliveryAttemptsTotal.WithLabelValues(strconv.Itoa(attempt), outcomeClass).Inc()
	s.attemptDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) DeliveryOutcome(outcome string) {
	s.deliveryOutcomesTotal.WithLabelValues(outcome).Inc()
}

func (s *PrometheusSink) RetryScheduled(backoff time.Duration) {
	s.retriesTotal.Inc()
	s.retryBackoff.Observe(backoff.Seconds())
}

func (s *PrometheusSink) PendingSizeUpdate(size int) {
	s.pendingSize.Set(float64(size))
}

func (s *PrometheusSink) InFlightIncr() {
	s.deliveriesInFlight.Inc()
}

func (s *PrometheusSink) InFlightDecr() {
	s.deliveriesInFlight.Dec()
}

// Event bus metrics implementation

func (s *PrometheusSink) PublishProcessed(matched int) {
	s.publishesTotal.Inc()
	s.matchesTotal.Add(float64(matched))
}

func (s *PrometheusSink) SubscriptionsUpdate(count int) {
	s.subscriptions.Set(float64(count))
}

func (s *PrometheusSink) SubscribeRateLimited() {
	s.rateLimitedTotal.Inc()
}

// Sweeper metrics implementation

func (s *PrometheusSink) SweepCompleted(subscriptionsRemoved, triggersPruned int) {
	s.sweptSubscriptionsTotal.Add(float64(subscriptionsRemoved))
	s.prunedTriggersTotal.Add(float64(triggersPruned))
}
