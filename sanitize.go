package collcache

import (
	"fmt"

	"github.com/unkn0wn-root/collcache/collection"
)

type sanitizable[T any] interface {
	collectionID() string
	withCollectionID(id string) T
	check() error
}

// sanitize fills in the default collection and resolves the handle. An
// unregistered collection is a ValidationError, never the default.
func sanitize[T sanitizable[T]](r *Registry, in T) (T, collection.Collection, error) {
	var zero T
	id := in.collectionID()
	if id == "" {
		id = r.Default()
		in = in.withCollectionID(id)
	}
	if err := in.check(); err != nil {
		return zero, nil, err
	}
	c, err := r.Get(id)
	if err != nil {
		return zero, nil, &ValidationError{Field: "collectionID", Reason: fmt.Sprintf("collection %q not found", id)}
	}
	return in, c, nil
}
