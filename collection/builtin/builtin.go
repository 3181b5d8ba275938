// Package builtin wires the collection types shipped with collcache.
package builtin

import (
	"github.com/unkn0wn-root/collcache/collection"
	"github.com/unkn0wn-root/collcache/collection/local"
	"github.com/unkn0wn-root/collcache/collection/redis"
)

// Factories returns the "redis" and "local" collection types.
func Factories() collection.Factories {
	return collection.Factories{
		redis.Type: redis.Factory(),
		local.Type: local.Factory(),
	}
}
