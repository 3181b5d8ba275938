// Package genstore keeps per-item revision counters for collections.
//
// Every committed mutation takes the next revision of its item; events
// carry it so subscribers can order and deduplicate what they receive.
// Revisions are strictly increasing per item for as long as the counter
// is retained.
package genstore

import (
	"context"
	"time"
)

// GenStore is where revisions live. Local serves in-process collections;
// Redis shares revisions across every worker talking to the same server.
type GenStore interface {
	// Next advances the item's revision and returns the new value.
	Next(ctx context.Context, itemKey string) (uint64, error)
	// Current reads revisions without advancing them; unknown items are 0.
	Current(ctx context.Context, itemKeys ...string) (map[string]uint64, error)
	// Close stops background work. The store must not be used afterwards.
	Close(context.Context) error
}

// Retention bounds how long an idle counter is kept.
type Retention struct {
	Idle  time.Duration // 0 keeps counters forever
	Sweep time.Duration // how often idle counters are pruned
}
