// Package target defines the boundary to addressable terminal-like
// receivers. The engine only ever asks whether a target exists and pushes
// text into it; how the text lands is the adapter's business.
package target

import "context"

// Adapter is the capability the engine consumes.
//
// Deliver reports failure through its error: domain.ErrTargetNotFound
// (wrapped) means the target is permanently unaddressable and retrying is
// pointless; any other error is treated as transient and retried per the
// queue's backoff policy.
type Adapter interface {
	Exists(ctx context.Context, targetSession string) bool
	Deliver(ctx context.Context, targetSession, text string) error
}
