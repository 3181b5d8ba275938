// Package redis is the shared collection: items live in Redis and
// mutations are broadcast over Redis pub/sub, so every worker process sees
// the same data and notifications.
//
// Layout per item, under the collection namespace:
//
//	<ns>:{<id>}:type    item type tag (STRING, NUMBER, ..., HASH)
//	<ns>:{<id>}:item    JSON value of non-hash items
//	<ns>:{<id>}:hash    Redis hash of JSON field values
//	<ns>:{<id>}:rev     revision counter (genstore)
//	<ns>:{<id>}:events  pub/sub channel carrying JSON mutations
//
// The {<id>} hash tag keeps every key of an item in one cluster slot.
//
// Every write is one optimistic transaction: WATCH the item's keys, read
// its type, value and revision, then MULTI the writes together with the
// revision bump and the PUBLISH of the stamped mutations. Concurrent
// writers to one item therefore commit, number and publish in one order.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/collcache/codec"
	"github.com/unkn0wn-root/collcache/collection"
	gen "github.com/unkn0wn-root/collcache/genstore"
	"github.com/unkn0wn-root/collcache/internal/util"
)

var ErrNilClient = errors.New("redis collection: nil client")

// maxWatchRetries bounds optimistic-lock retries per write.
const maxWatchRetries = 32

type Config struct {
	Client      goredis.UniversalClient
	Namespace   string        // required; usually the collection id
	CloseClient bool          // set true only if this collection exclusively owns the client
	RevisionTTL time.Duration // TTL of revision counters; 0 => no expiry
	BufferSize  int           // per-subscription buffer; 0 => collection.DefaultBuffer
}

type Collection struct {
	rdb         goredis.UniversalClient
	ns          string
	gens        *gen.Redis
	values      codec.Codec[any]
	buffer      int
	closeClient bool
}

var _ collection.Collection = (*Collection)(nil)

func New(cfg Config) (*Collection, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	if cfg.Namespace == "" {
		return nil, errors.New("redis collection: namespace is required")
	}
	c := &Collection{
		rdb:         cfg.Client,
		ns:          cfg.Namespace,
		values:      codec.JSON[any]{},
		buffer:      cfg.BufferSize,
		closeClient: cfg.CloseClient,
	}
	c.gens = gen.NewRedisKeyed(cfg.Client, cfg.RevisionTTL, c.revisionKey)
	return c, nil
}

func (c *Collection) typeKey(id string) string     { return util.Tagged(c.ns, id, "type") }
func (c *Collection) itemKey(id string) string     { return util.Tagged(c.ns, id, "item") }
func (c *Collection) hashKey(id string) string     { return util.Tagged(c.ns, id, "hash") }
func (c *Collection) revisionKey(id string) string { return util.Tagged(c.ns, id, "rev") }
func (c *Collection) channel(id string) string     { return util.Tagged(c.ns, id, "events") }

func (c *Collection) Shared() bool { return true }

func (c *Collection) GetItemWithType(ctx context.Context, itemID string) (any, collection.ItemType, error) {
	typ, err := c.itemType(ctx, c.rdb, itemID)
	if err != nil {
		return nil, "", err
	}
	if typ == "" {
		return nil, "", collection.ErrNotFound
	}
	if typ == collection.TypeHash {
		raw, err := c.rdb.HGetAll(ctx, c.hashKey(itemID)).Result()
		if err != nil {
			return nil, "", err
		}
		fields := make(map[string]any, len(raw))
		for k, v := range raw {
			if fields[k], err = c.values.Decode([]byte(v)); err != nil {
				return nil, "", fmt.Errorf("decode field %q of %q: %w", k, itemID, err)
			}
		}
		return fields, typ, nil
	}
	b, err := c.rdb.Get(ctx, c.itemKey(itemID)).Bytes()
	if err == goredis.Nil {
		// type tag outlived the value (racing delete); treat as gone
		return nil, "", collection.ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	v, err := c.values.Decode(b)
	if err != nil {
		return nil, "", fmt.Errorf("decode item %q: %w", itemID, err)
	}
	return v, typ, nil
}

func (c *Collection) GetHashItemField(ctx context.Context, itemID, fieldID string) (any, error) {
	typ, err := c.itemType(ctx, c.rdb, itemID)
	if err != nil || typ == "" {
		return nil, err
	}
	if typ != collection.TypeHash {
		return nil, collection.ErrWrongType
	}
	b, err := c.rdb.HGet(ctx, c.hashKey(itemID), fieldID).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c.values.Decode(b)
}

func (c *Collection) UpsertItem(ctx context.Context, itemID string, value any, typ collection.ItemType, ttl time.Duration) error {
	if typ == "" {
		typ = collection.InferType(value)
	}
	if !typ.Valid() {
		return fmt.Errorf("redis collection: unknown item type %q", typ)
	}
	var fieldArgs []any
	var payload []byte
	if typ == collection.TypeHash {
		fields, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: HASH item value must be an object", collection.ErrWrongType)
		}
		var err error
		if fieldArgs, err = c.fieldArgs(fields); err != nil {
			return err
		}
	} else {
		var err error
		if payload, err = c.values.Encode(value); err != nil {
			return fmt.Errorf("encode item %q: %w", itemID, err)
		}
	}
	return c.txn(ctx, itemID, func(_ *goredis.Tx, _ collection.ItemType) (*plan, error) {
		return &plan{
			writes: func(p goredis.Pipeliner) {
				p.Del(ctx, c.itemKey(itemID), c.hashKey(itemID))
				if typ == collection.TypeHash {
					if len(fieldArgs) > 0 {
						p.HSet(ctx, c.hashKey(itemID), fieldArgs...)
						if ttl > 0 {
							p.PExpire(ctx, c.hashKey(itemID), ttl)
						}
					}
				} else {
					p.Set(ctx, c.itemKey(itemID), payload, ttl)
				}
				p.Set(ctx, c.typeKey(itemID), string(typ), ttl)
			},
			muts: []collection.Mutation{{Type: collection.MutationSet, ItemID: itemID, ItemType: typ, Value: value}},
		}, nil
	})
}

func (c *Collection) IncrementPrimitiveItemBy(ctx context.Context, itemID string, by float64, ttl time.Duration) (float64, error) {
	var out float64
	err := c.txn(ctx, itemID, func(tx *goredis.Tx, typ collection.ItemType) (*plan, error) {
		cur := 0.0
		switch typ {
		case "":
		case collection.TypeNumber:
			b, err := tx.Get(ctx, c.itemKey(itemID)).Bytes()
			if err != nil && err != goredis.Nil {
				return nil, err
			}
			if err == nil {
				if cur, err = c.number(b); err != nil {
					return nil, err
				}
			}
		default:
			return nil, collection.ErrNotNumeric
		}
		out = cur + by
		payload, err := c.values.Encode(out)
		if err != nil {
			return nil, err
		}
		return &plan{
			writes: func(p goredis.Pipeliner) {
				c.put(ctx, p, c.itemKey(itemID), payload, ttl)
				c.put(ctx, p, c.typeKey(itemID), string(collection.TypeNumber), ttl)
			},
			muts: []collection.Mutation{{Type: collection.MutationIncrement, ItemID: itemID, ItemType: collection.TypeNumber, Value: out}},
		}, nil
	})
	if err != nil {
		return 0, err
	}
	return out, nil
}

func (c *Collection) UpsertHashItemFields(ctx context.Context, itemID string, fields map[string]any, ttl time.Duration) error {
	if len(fields) == 0 {
		return nil
	}
	args, err := c.fieldArgs(fields)
	if err != nil {
		return err
	}
	names := sortedNames(fields)
	muts := make([]collection.Mutation, len(names))
	for i, name := range names {
		muts[i] = collection.Mutation{
			Type:       collection.MutationSet,
			ItemID:     itemID,
			ItemType:   collection.TypeHash,
			FieldID:    name,
			FieldValue: fields[name],
		}
	}
	return c.txn(ctx, itemID, func(_ *goredis.Tx, typ collection.ItemType) (*plan, error) {
		if typ != "" && typ != collection.TypeHash {
			return nil, collection.ErrWrongType
		}
		return &plan{
			writes: func(p goredis.Pipeliner) {
				if typ == "" {
					// a stale scalar value must not shadow the new hash
					p.Del(ctx, c.itemKey(itemID))
				}
				p.HSet(ctx, c.hashKey(itemID), args...)
				c.touchHash(ctx, p, itemID, ttl)
			},
			muts: muts,
		}, nil
	})
}

func (c *Collection) IncrementHashItemFieldBy(ctx context.Context, itemID, fieldID string, by float64, ttl time.Duration) (float64, error) {
	var out float64
	err := c.txn(ctx, itemID, func(tx *goredis.Tx, typ collection.ItemType) (*plan, error) {
		if typ != "" && typ != collection.TypeHash {
			return nil, collection.ErrWrongType
		}
		cur := 0.0
		b, err := tx.HGet(ctx, c.hashKey(itemID), fieldID).Bytes()
		switch {
		case err == goredis.Nil:
		case err != nil:
			return nil, err
		default:
			if cur, err = c.number(b); err != nil {
				return nil, err
			}
		}
		out = cur + by
		payload, err := c.values.Encode(out)
		if err != nil {
			return nil, err
		}
		return &plan{
			writes: func(p goredis.Pipeliner) {
				p.HSet(ctx, c.hashKey(itemID), fieldID, string(payload))
				c.touchHash(ctx, p, itemID, ttl)
			},
			muts: []collection.Mutation{{
				Type:       collection.MutationIncrement,
				ItemID:     itemID,
				ItemType:   collection.TypeHash,
				FieldID:    fieldID,
				FieldValue: out,
			}},
		}, nil
	})
	if err != nil {
		return 0, err
	}
	return out, nil
}

func (c *Collection) DeleteItem(ctx context.Context, itemID string) (bool, error) {
	var existed bool
	err := c.txn(ctx, itemID, func(_ *goredis.Tx, typ collection.ItemType) (*plan, error) {
		existed = typ != ""
		if !existed {
			return nil, nil
		}
		return &plan{
			writes: func(p goredis.Pipeliner) {
				p.Del(ctx, c.typeKey(itemID), c.itemKey(itemID), c.hashKey(itemID))
			},
			muts: []collection.Mutation{{Type: collection.MutationDelete, ItemID: itemID}},
		}, nil
	})
	return existed && err == nil, err
}

// DeleteHashItemFields emits a DELETE only for fields that were present.
// Removing the last field removes the item.
func (c *Collection) DeleteHashItemFields(ctx context.Context, itemID string, fieldIDs []string) (bool, error) {
	if len(fieldIDs) == 0 {
		return false, nil
	}
	var ids []string
	for _, id := range fieldIDs {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	var removed []string
	err := c.txn(ctx, itemID, func(tx *goredis.Tx, typ collection.ItemType) (*plan, error) {
		removed = nil
		if typ == "" {
			return nil, nil
		}
		if typ != collection.TypeHash {
			return nil, collection.ErrWrongType
		}
		vals, err := tx.HMGet(ctx, c.hashKey(itemID), ids...).Result()
		if err != nil {
			return nil, err
		}
		for i, v := range vals {
			if v != nil {
				removed = append(removed, ids[i])
			}
		}
		if len(removed) == 0 {
			return nil, nil
		}
		left, err := tx.HLen(ctx, c.hashKey(itemID)).Result()
		if err != nil {
			return nil, err
		}
		muts := make([]collection.Mutation, len(removed))
		for i, id := range removed {
			muts[i] = collection.Mutation{
				Type:     collection.MutationDelete,
				ItemID:   itemID,
				ItemType: collection.TypeHash,
				FieldID:  id,
			}
		}
		return &plan{
			writes: func(p goredis.Pipeliner) {
				if left <= int64(len(removed)) {
					// an empty hash is no item at all
					p.Del(ctx, c.typeKey(itemID), c.hashKey(itemID))
					return
				}
				p.HDel(ctx, c.hashKey(itemID), removed...)
			},
			muts: muts,
		}, nil
	})
	if err != nil {
		return false, err
	}
	return len(removed) > 0, nil
}

func (c *Collection) SubscribeItem(ctx context.Context, itemID string) (collection.Subscription, error) {
	return c.subscribe(ctx, itemID, "")
}

func (c *Collection) SubscribeHashItemField(ctx context.Context, itemID, fieldID string) (collection.Subscription, error) {
	return c.subscribe(ctx, itemID, fieldID)
}

// Close releases the underlying redis client only when this collection owns it.
func (c *Collection) Close(ctx context.Context) error {
	_ = c.gens.Close(ctx)
	if c.closeClient {
		if err := c.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

type getter interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
}

// itemType returns "" for a missing item.
func (c *Collection) itemType(ctx context.Context, g getter, itemID string) (collection.ItemType, error) {
	s, err := g.Get(ctx, c.typeKey(itemID)).Result()
	if err == goredis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return collection.ItemType(s), nil
}

// plan is what one transaction attempt commits: writes queued in the MULTI
// and the mutations they produce, in emit order. A nil plan commits
// nothing.
type plan struct {
	writes func(p goredis.Pipeliner)
	muts   []collection.Mutation
}

// txn runs decide under WATCH on every key of itemID and commits its plan
// together with the revision bump and the PUBLISH of each stamped
// mutation. It retries when another client wrote to the item in between.
func (c *Collection) txn(ctx context.Context, itemID string, decide func(tx *goredis.Tx, typ collection.ItemType) (*plan, error)) error {
	keys := []string{c.typeKey(itemID), c.itemKey(itemID), c.hashKey(itemID), c.gens.Key(itemID)}
	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := c.rdb.Watch(ctx, func(tx *goredis.Tx) error {
			vals, err := tx.MGet(ctx, c.typeKey(itemID), c.gens.Key(itemID)).Result()
			if err != nil {
				return err
			}
			var typ collection.ItemType
			if s, ok := vals[0].(string); ok {
				typ = collection.ItemType(s)
			}
			rev, err := gen.ParseRevision(vals[1])
			if err != nil {
				return fmt.Errorf("revision of %q: %w", itemID, err)
			}
			pl, err := decide(tx, typ)
			if err != nil || pl == nil || len(pl.muts) == 0 {
				return err
			}
			msgs := make([][]byte, len(pl.muts))
			for j := range pl.muts {
				pl.muts[j].Revision = rev + uint64(j) + 1
				if msgs[j], err = json.Marshal(pl.muts[j]); err != nil {
					return err
				}
			}
			_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
				pl.writes(p)
				c.gens.Stage(ctx, p, itemID, rev+uint64(len(pl.muts)))
				for _, msg := range msgs {
					p.Publish(ctx, c.channel(itemID), msg)
				}
				return nil
			})
			return err
		}, keys...)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis collection: item %q kept changing, gave up after %d attempts: %w", itemID, maxWatchRetries, goredis.TxFailedErr)
}

// put writes value to key, applying ttl or keeping the current expiry.
func (c *Collection) put(ctx context.Context, p goredis.Pipeliner, key string, value any, ttl time.Duration) {
	if ttl > 0 {
		p.Set(ctx, key, value, ttl)
		return
	}
	p.SetArgs(ctx, key, value, goredis.SetArgs{KeepTTL: true})
}

// touchHash tags the item as a hash and applies ttl (or keeps the current one).
func (c *Collection) touchHash(ctx context.Context, p goredis.Pipeliner, itemID string, ttl time.Duration) {
	c.put(ctx, p, c.typeKey(itemID), string(collection.TypeHash), ttl)
	if ttl > 0 {
		p.PExpire(ctx, c.hashKey(itemID), ttl)
	}
}

// number decodes a stored value that an increment applies to.
func (c *Collection) number(b []byte) (float64, error) {
	v, err := c.values.Decode(b)
	if err != nil {
		return 0, err
	}
	f, ok := v.(float64)
	if !ok {
		return 0, collection.ErrNotNumeric
	}
	return f, nil
}

func (c *Collection) fieldArgs(fields map[string]any) ([]any, error) {
	args := make([]any, 0, 2*len(fields))
	for _, name := range sortedNames(fields) {
		b, err := c.values.Encode(fields[name])
		if err != nil {
			return nil, fmt.Errorf("encode field %q: %w", name, err)
		}
		args = append(args, name, string(b))
	}
	return args, nil
}

func sortedNames(m map[string]any) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
