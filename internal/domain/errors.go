package domain

import "errors"

var (
	// ErrInvalidSchedule rejects a trigger at creation. Never retried.
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrRateLimited rejects a subscribe request once the subscriber holds
	// the maximum permitted live subscriptions.
	ErrRateLimited = errors.New("subscription rate limit reached")

	// ErrTargetNotFound means the target session is no longer addressable.
	// Deliveries failing with it exhaust their retries immediately.
	ErrTargetNotFound = errors.New("target session not found")
)
