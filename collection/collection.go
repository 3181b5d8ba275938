// Package collection defines the contract between the routing layer and the
// storage backends that hold a collection's items.
//
// A Collection stores items (typed values with an optional TTL) and hash
// items (maps of fields sharing the item's TTL), and emits a Mutation for
// every change so subscribers can follow an item or a single field.
package collection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned by item reads when the item does not exist.
	ErrNotFound = errors.New("collection: item not found")
	// ErrWrongType is returned when a hash operation targets a non-hash item
	// (or the other way round).
	ErrWrongType = errors.New("collection: operation against an item of the wrong type")
	// ErrNotNumeric is returned when an increment targets a non-numeric value.
	ErrNotNumeric = errors.New("collection: value is not numeric")
	// ErrClosed is returned by operations on a closed collection.
	ErrClosed = errors.New("collection: closed")
	// ErrOverflow terminates a subscription whose consumer fell too far behind.
	ErrOverflow = errors.New("collection: subscription buffer overflow")
	// ErrRejected is returned when a store refused a write under pressure.
	ErrRejected = errors.New("collection: write rejected by store")
)

// Collection is a backend handle. Implementations must be safe for
// concurrent use.
//
// ttl <= 0 means "no TTL": UpsertItem stores the item without expiry, the
// hash and increment operations keep whatever expiry the item already has.
type Collection interface {
	GetItemWithType(ctx context.Context, itemID string) (any, ItemType, error)
	// GetHashItemField returns (nil, nil) when the item or the field is absent.
	GetHashItemField(ctx context.Context, itemID, fieldID string) (any, error)

	// UpsertItem stores value under itemID. An empty typ is inferred from value.
	UpsertItem(ctx context.Context, itemID string, value any, typ ItemType, ttl time.Duration) error
	IncrementPrimitiveItemBy(ctx context.Context, itemID string, by float64, ttl time.Duration) (float64, error)
	UpsertHashItemFields(ctx context.Context, itemID string, fields map[string]any, ttl time.Duration) error
	IncrementHashItemFieldBy(ctx context.Context, itemID, fieldID string, by float64, ttl time.Duration) (float64, error)

	// DeleteItem reports whether the item existed.
	DeleteItem(ctx context.Context, itemID string) (bool, error)
	// DeleteHashItemFields reports whether any field was removed.
	DeleteHashItemFields(ctx context.Context, itemID string, fieldIDs []string) (bool, error)

	// SubscribeItem returns once the subscription is live: every mutation
	// committed after it returns is delivered.
	SubscribeItem(ctx context.Context, itemID string) (Subscription, error)
	SubscribeHashItemField(ctx context.Context, itemID, fieldID string) (Subscription, error)

	// Shared reports whether every worker process observes the same data
	// and notifications (network-addressable backends).
	Shared() bool
	Close(ctx context.Context) error
}

// Subscription is the backend side of a subscription.
//
// Mutations is closed when the subscription ends; Err then reports why
// (nil after Cancel). Cancel may be called at most once by the routing
// layer; backends need not make it idempotent.
type Subscription interface {
	Mutations() <-chan Mutation
	Err() error
	Cancel()
}

// Factory opens collections of one type.
type Factory struct {
	// Shared mirrors Collection.Shared for every collection the factory
	// opens, so fan-out compatibility is known before anything is opened.
	Shared bool
	Open   func(ctx context.Context, id string, options json.RawMessage) (Collection, error)
}

// Factories maps a collection type name ("redis", "local", ...) to its factory.
type Factories map[string]Factory

// TTL converts an item TTL in (fractional) seconds. nil or non-positive
// values mean "no TTL".
func TTL(seconds *float64) time.Duration {
	if seconds == nil || *seconds <= 0 {
		return 0
	}
	return time.Duration(*seconds * float64(time.Second))
}

// OptionsError reports malformed collection options.
type OptionsError struct {
	Type string
	Err  error
}

func (e *OptionsError) Error() string {
	return fmt.Sprintf("invalid %s collection options: %v", e.Type, e.Err)
}

func (e *OptionsError) Unwrap() error { return e.Err }
