package collcache

import (
	"context"
	"errors"
	"fmt"

	"github.com/unkn0wn-root/collcache/collection"
	"github.com/unkn0wn-root/collcache/config"
)

// Registry maps collection ids to backend handles. It is populated during
// startup, then frozen; after that it is read-only and needs no locking.
type Registry struct {
	factories collection.Factories
	workers   int

	order   []string
	entries map[string]registered
	def     string
	frozen  bool
}

type registered struct {
	typ string
	c   collection.Collection
}

func NewRegistry(factories collection.Factories, workers int) *Registry {
	return &Registry{
		factories: factories,
		workers:   workers,
		entries:   make(map[string]registered),
	}
}

// Register opens the collection and adds it under id. Type and fan-out
// compatibility are checked before anything is opened.
func (r *Registry) Register(ctx context.Context, id string, cfg config.Collection) error {
	if r.frozen {
		return &ConfigurationError{Collection: id, Reason: "registry is frozen"}
	}
	if _, dup := r.entries[id]; dup {
		return &ConfigurationError{Collection: id, Reason: "registered twice"}
	}
	f, err := checkCollection(r.factories, r.workers, id, cfg.Type)
	if err != nil {
		return err
	}
	c, err := f.Open(ctx, id, cfg.Options)
	if err != nil {
		return &ConfigurationError{Collection: id, Reason: "open " + cfg.Type + " backend", Err: err}
	}
	r.entries[id] = registered{typ: cfg.Type, c: c}
	r.order = append(r.order, id)
	return nil
}

// ResolveDefault settles the default collection: configured when set,
// otherwise the first one registered.
func (r *Registry) ResolveDefault(configured string) (string, error) {
	id := configured
	if id == "" {
		if len(r.order) == 0 {
			return "", &ConfigurationError{Reason: "no collections registered"}
		}
		id = r.order[0]
	}
	if _, ok := r.entries[id]; !ok {
		return "", &ConfigurationError{Reason: fmt.Sprintf("default collection %q not in collection list", id)}
	}
	r.def = id
	return id, nil
}

// Freeze ends startup.
func (r *Registry) Freeze() { r.frozen = true }

// Get is deterministic: the same id always yields the same handle.
func (r *Registry) Get(id string) (collection.Collection, error) {
	e, ok := r.entries[id]
	if !ok {
		return nil, &NotFoundError{CollectionID: id}
	}
	return e.c, nil
}

func (r *Registry) Has(id string) bool {
	_, ok := r.entries[id]
	return ok
}

// Default returns the resolved default collection id.
func (r *Registry) Default() string { return r.def }

// Type returns the configured type of a registered collection.
func (r *Registry) Type(id string) string { return r.entries[id].typ }

// IDs lists collections in registration order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// Close closes every backend, last registered first.
func (r *Registry) Close(ctx context.Context) error {
	var errs []error
	for i := len(r.order) - 1; i >= 0; i-- {
		id := r.order[i]
		if err := r.entries[id].c.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %q: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// BuildRegistry registers every configured collection in document order,
// resolves the default and freezes the result. Collections opened before a
// failure are closed again.
func BuildRegistry(ctx context.Context, cfg *config.Config, factories collection.Factories) (*Registry, error) {
	r := NewRegistry(factories, cfg.Workers)
	for p := cfg.Collections.Oldest(); p != nil; p = p.Next() {
		if err := r.Register(ctx, p.Key, p.Value); err != nil {
			_ = r.Close(ctx)
			return nil, err
		}
	}
	if _, err := r.ResolveDefault(cfg.DefaultCollection); err != nil {
		_ = r.Close(ctx)
		return nil, err
	}
	r.Freeze()
	return r, nil
}

// ValidateCollections runs the registry's startup checks without opening
// any backend.
func ValidateCollections(cfg *config.Config, factories collection.Factories) error {
	if err := cfg.Validate(); err != nil {
		return &ConfigurationError{Err: err}
	}
	for p := cfg.Collections.Oldest(); p != nil; p = p.Next() {
		if _, err := checkCollection(factories, cfg.Workers, p.Key, p.Value.Type); err != nil {
			return err
		}
	}
	if d := cfg.DefaultCollection; d != "" {
		if _, ok := cfg.Collections.Get(d); !ok {
			return &ConfigurationError{Reason: fmt.Sprintf("default collection %q not in collection list", d)}
		}
	}
	return nil
}

func checkCollection(factories collection.Factories, workers int, id, typ string) (collection.Factory, error) {
	if id == "" {
		return collection.Factory{}, &ConfigurationError{Reason: "empty collection id"}
	}
	f, ok := factories[typ]
	if !ok || f.Open == nil {
		return collection.Factory{}, &ConfigurationError{Collection: id, Reason: fmt.Sprintf("unknown collection type %q", typ)}
	}
	if workers > 1 && !f.Shared {
		return collection.Factory{}, &ConfigurationError{
			Collection: id,
			Reason:     fmt.Sprintf("%s collection is not shared and cannot run with %d workers", typ, workers),
		}
	}
	return f, nil
}
