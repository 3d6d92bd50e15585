package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) TriggerFired(recurring bool)                                                {}
func (n *NoopSink) FireLatency(d time.Duration)                                                {}
func (n *NoopSink) TriggersArmed(count int)                                                    {}
func (n *NoopSink) DeliveryAttemptCompleted(attempt int, outcomeClass string, d time.Duration) {}
func (n *NoopSink) DeliveryOutcome(outcome string)                                             {}
func (n *NoopSink) RetryScheduled(backoff time.Duration)                                       {}
func (n *NoopSink) PendingSizeUpdate(size int)                                                 {}
func (n *NoopSink) InFlightIncr()                                                              {}
func (n *NoopSink) InFlightDecr()                                                              {}
func (n *NoopSink) PublishProcessed(matched int)                                               {}
func (n *NoopSink) SubscriptionsUpdate(count int)                                              {}
func (n *NoopSink) SubscribeRateLimited()                                                      {}
func (n *NoopSink) SweepCompleted(subscriptionsRemoved, triggersPruned int)                    {}
