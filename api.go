package collcache

import (
	"context"

	"github.com/unkn0wn-root/collcache/collection"
	"github.com/unkn0wn-root/collcache/config"
)

// Cache is the transport-agnostic API over the registered collections.
// Every input with an empty CollectionID targets the default collection.
type Cache interface {
	// Queries
	GetItem(ctx context.Context, in ItemRef) (Item, error)
	// GetHashItemField returns a nil FieldValue when the field is absent.
	GetHashItemField(ctx context.Context, in FieldRef) (HashItemField, error)

	// Single mutations
	SetItem(ctx context.Context, in SetItemInput) (bool, error)
	IncrementPrimitiveItem(ctx context.Context, in IncrementItemInput) (float64, error)
	SetHashItemField(ctx context.Context, in SetHashItemFieldInput) (bool, error)
	IncrementHashItemField(ctx context.Context, in IncrementHashItemFieldInput) (float64, error)
	DeleteItem(ctx context.Context, in ItemRef) (bool, error)
	DeleteHashItemField(ctx context.Context, in FieldRef) (bool, error)

	// Bulk, best effort: *AggregateError lists failed entries, the rest stay applied.
	BulkSetItem(ctx context.Context, in []SetItemInput) (bool, error)
	BulkDeleteItem(ctx context.Context, in []ItemRef) (bool, error)

	// Bulk, validated as a whole before any write (*ConflictError).
	BulkSetHashItemField(ctx context.Context, in []SetHashItemFieldInput) (bool, error)
	BulkDeleteHashItemField(ctx context.Context, in []FieldRef) (bool, error)

	// Subscriptions end when cancelled or when ctx is done.
	SubscribeItem(ctx context.Context, in ItemRef) (*Subscription[ItemMutation], error)
	SubscribeHashItemField(ctx context.Context, in FieldRef) (*Subscription[HashItemFieldMutation], error)

	Registry() *Registry
	Close(context.Context) error
}

// Options configure New. Config and Factories are required.
type Options struct {
	Config    *config.Config
	Factories collection.Factories // e.g. builtin.Factories()

	Logger             Logger // if nil, NopLogger is used
	Hooks              Hooks  // if nil, NopHooks is used
	SubscriptionBuffer int    // events buffered per subscription; 0 => 16
}

// New validates the configuration, opens every collection and resolves
// the default. Any failure is a *ConfigurationError.
func New(ctx context.Context, opts Options) (Cache, error) {
	return newCache(ctx, opts)
}
