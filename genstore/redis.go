package genstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis keeps revisions as integer counters. With a TTL every write
// refreshes the expiry; an expired counter starts again at revision 1.
type Redis struct {
	rdb redis.UniversalClient
	ttl time.Duration
	key func(string) string
}

var _ GenStore = (*Redis)(nil)

// NewRedis stores counters under "<ns>:rev:<key>". ttl <= 0 keeps them
// forever.
func NewRedis(client redis.UniversalClient, namespace string, ttl time.Duration) *Redis {
	return NewRedisKeyed(client, ttl, func(k string) string { return namespace + ":rev:" + k })
}

// NewRedisKeyed lets the caller place counters, e.g. next to the item's
// own keys under one cluster hash tag. A nil key uses item keys as is.
func NewRedisKeyed(client redis.UniversalClient, ttl time.Duration, key func(string) string) *Redis {
	if key == nil {
		key = func(k string) string { return k }
	}
	return &Redis{rdb: client, ttl: ttl, key: key}
}

// Key is the Redis key holding the counter of itemKey.
func (s *Redis) Key(itemKey string) string { return s.key(itemKey) }

func (s *Redis) Next(ctx context.Context, k string) (uint64, error) {
	key := s.key(k)
	if s.ttl <= 0 {
		n, err := s.rdb.Incr(ctx, key).Uint64()
		if err != nil {
			return 0, fmt.Errorf("revision %s: %w", k, err)
		}
		return n, nil
	}
	var incr *redis.IntCmd
	if _, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		p.Expire(ctx, key, s.ttl)
		return nil
	}); err != nil {
		return 0, fmt.Errorf("revision %s: %w", k, err)
	}
	return incr.Uint64()
}

// Stage queues rev as the counter of k in p. Callers WATCH Key(k) and read
// the current revision before their MULTI, so the counter moves together
// with the writes it stamps.
func (s *Redis) Stage(ctx context.Context, p redis.Pipeliner, k string, rev uint64) {
	p.Set(ctx, s.key(k), rev, s.ttl)
}

// Current reads counters one GET per key; a cluster client routes each to
// its own slot.
func (s *Redis) Current(ctx context.Context, ks ...string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(ks))
	if len(ks) == 0 {
		return out, nil
	}
	cmds := make([]*redis.StringCmd, len(ks))
	if _, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, k := range ks {
			cmds[i] = p.Get(ctx, s.key(k))
		}
		return nil
	}); err != nil && err != redis.Nil {
		return nil, err
	}
	for i, cmd := range cmds {
		v, err := cmd.Result()
		if err == redis.Nil {
			out[ks[i]] = 0
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("revision %s: %w", ks[i], err)
		}
		if out[ks[i]], err = ParseRevision(v); err != nil {
			return nil, fmt.Errorf("revision %s: %w", ks[i], err)
		}
	}
	return out, nil
}

// ParseRevision reads a counter value as returned by GET or MGET; nil is 0.
func ParseRevision(v any) (uint64, error) {
	switch vv := v.(type) {
	case nil:
		return 0, nil
	case string:
		return strconv.ParseUint(vv, 10, 64)
	case []byte:
		return strconv.ParseUint(string(vv), 10, 64)
	default:
		return strconv.ParseUint(fmt.Sprint(vv), 10, 64)
	}
}

// Close is a no-op; the client belongs to the collection.
func (s *Redis) Close(context.Context) error { return nil }
