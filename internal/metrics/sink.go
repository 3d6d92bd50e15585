package metrics

import "time"

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or propagate errors.
// If the metrics backend is unavailable, implementations log warnings and continue.
type Sink interface {
	// Scheduler metrics
	TriggerFired(recurring bool)
	FireLatency(d time.Duration)
	TriggersArmed(count int)

	// Delivery queue metrics
	DeliveryAttemptCompleted(attempt int, outcomeClass string, duration time.Duration)
	DeliveryOutcome(outcome string)
	RetryScheduled(backoff time.Duration)
	PendingSizeUpdate(size int)
	InFlightIncr()
	InFlightDecr()

	// Event bus metrics
	PublishProcessed(matched int)
	SubscriptionsUpdate(count int)
	SubscribeRateLimited()

	// Sweeper metrics
	SweepCompleted(subscriptionsRemoved, triggersPruned int)
}

// Outcome constants for DeliveryOutcome metric.
const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
	OutcomeNotFound  = "not_found"
)
