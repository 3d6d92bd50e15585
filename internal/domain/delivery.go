package domain

import (
	"time"

	"github.com/google/uuid"
)

type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusInFlight  DeliveryStatus = "in_flight"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
	DeliveryStatusCancelled DeliveryStatus = "cancelled"
)

// DeliveryItem is one unit of work for the delivery queue: a payload bound
// for a target session, with its retry bookkeeping.
type DeliveryItem struct {
	ID            uuid.UUID
	TargetSession string
	Payload       string

	Attempts    int
	MaxAttempts int
	Status      DeliveryStatus

	EnqueuedAt time.Time
	// ReadyAt defers a retried item; the worker skips it until then.
	ReadyAt time.Time
}

// DeliveryLogEntry records a terminal delivery outcome. Append-only.
type DeliveryLogEntry struct {
	DeliveryID     uuid.UUID
	TargetSession  string
	PayloadSummary string
	SentAt         time.Time
	Attempts       int
	Success        bool
	Error          string
}
