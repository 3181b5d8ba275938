// Package local is the in-process collection. Records live in a
// provider.Provider engine (memory, ristretto, bigcache or bolt) and
// notifications are fanned out in-process, so a local collection is never
// shared between worker processes.
package local

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cast"

	"github.com/unkn0wn-root/collcache/codec"
	"github.com/unkn0wn-root/collcache/collection"
	gen "github.com/unkn0wn-root/collcache/genstore"
	"github.com/unkn0wn-root/collcache/internal/util"
	"github.com/unkn0wn-root/collcache/internal/wire"
	pr "github.com/unkn0wn-root/collcache/provider"
)

var defaultRetention = gen.Retention{Idle: 30 * 24 * time.Hour, Sweep: time.Hour}

// Config wires a local collection. Store and Codec are required.
type Config struct {
	Store      pr.Provider
	Codec      codec.Codec[any]
	Namespace  string       // key prefix inside the store; usually the collection id
	BufferSize int          // per-subscription buffer; 0 => collection.DefaultBuffer
	GenStore   gen.GenStore // nil => in-process revisions pruned after 30 idle days
}

// Collection implements collection.Collection in-process.
// Read-modify-write operations are serialized by mu, which also orders
// notifications: subscribers see mutations in commit order.
type Collection struct {
	mu     sync.Mutex
	store  pr.Provider
	codec  codec.Codec[any]
	ns     string
	gens   gen.GenStore
	broker *broker
	closed bool
}

var _ collection.Collection = (*Collection)(nil)

func New(cfg Config) (*Collection, error) {
	if cfg.Store == nil {
		return nil, errors.New("local collection: store is required")
	}
	if cfg.Codec == nil {
		return nil, errors.New("local collection: codec is required")
	}
	gens := cfg.GenStore
	if gens == nil {
		gens = gen.NewLocal(defaultRetention)
	}
	return &Collection{
		store:  cfg.Store,
		codec:  cfg.Codec,
		ns:     cfg.Namespace,
		gens:   gens,
		broker: newBroker(cfg.BufferSize),
	}, nil
}

// entry is a decoded record.
type entry struct {
	typ       collection.ItemType
	value     any
	fields    map[string]any
	expiresAt time.Time
}

func (e *entry) ttl(now time.Time) time.Duration {
	if e.expiresAt.IsZero() {
		return 0
	}
	return e.expiresAt.Sub(now)
}

func (c *Collection) key(itemID string) string { return util.Key(c.ns, "item", itemID) }

func (c *Collection) Shared() bool { return false }

func (c *Collection) GetItemWithType(ctx context.Context, itemID string) (any, collection.ItemType, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok, err := c.load(ctx, itemID)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", collection.ErrNotFound
	}
	if e.typ == collection.TypeHash {
		return copyFields(e.fields), e.typ, nil
	}
	return e.value, e.typ, nil
}

func (c *Collection) GetHashItemField(ctx context.Context, itemID, fieldID string) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok, err := c.load(ctx, itemID)
	if err != nil || !ok {
		return nil, err
	}
	if e.typ != collection.TypeHash {
		return nil, collection.ErrWrongType
	}
	return e.fields[fieldID], nil
}

func (c *Collection) UpsertItem(ctx context.Context, itemID string, value any, typ collection.ItemType, ttl time.Duration) error {
	if typ == "" {
		typ = collection.InferType(value)
	}
	if !typ.Valid() {
		return fmt.Errorf("local collection: unknown item type %q", typ)
	}
	e := &entry{typ: typ, value: value}
	if typ == collection.TypeHash {
		fields, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: HASH item value must be an object", collection.ErrWrongType)
		}
		e.fields = copyFields(fields)
		e.value = nil
	}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return collection.ErrClosed
	}
	if err := c.save(ctx, itemID, e); err != nil {
		return err
	}
	m := collection.Mutation{Type: collection.MutationSet, ItemID: itemID, ItemType: typ, Value: value}
	c.emit(ctx, m)
	return nil
}

func (c *Collection) IncrementPrimitiveItemBy(ctx context.Context, itemID string, by float64, ttl time.Duration) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok, err := c.load(ctx, itemID)
	if err != nil {
		return 0, err
	}
	if !ok {
		e = &entry{typ: collection.TypeNumber, value: 0.0}
	}
	if e.typ != collection.TypeNumber {
		return 0, collection.ErrNotNumeric
	}
	cur, err := toNumber(e.value)
	if err != nil {
		return 0, err
	}
	next := cur + by
	e.value = next
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	if err := c.save(ctx, itemID, e); err != nil {
		return 0, err
	}
	c.emit(ctx, collection.Mutation{Type: collection.MutationIncrement, ItemID: itemID, ItemType: e.typ, Value: next})
	return next, nil
}

func (c *Collection) UpsertHashItemFields(ctx context.Context, itemID string, fields map[string]any, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.loadHash(ctx, itemID)
	if err != nil {
		return err
	}
	names := sortedNames(fields)
	for _, name := range names {
		e.fields[name] = fields[name]
	}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	if err := c.save(ctx, itemID, e); err != nil {
		return err
	}
	for _, name := range names {
		c.emit(ctx, collection.Mutation{
			Type:       collection.MutationSet,
			ItemID:     itemID,
			ItemType:   collection.TypeHash,
			FieldID:    name,
			FieldValue: fields[name],
		})
	}
	return nil
}

func (c *Collection) IncrementHashItemFieldBy(ctx context.Context, itemID, fieldID string, by float64, ttl time.Duration) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.loadHash(ctx, itemID)
	if err != nil {
		return 0, err
	}
	cur := 0.0
	if v, ok := e.fields[fieldID]; ok {
		if cur, err = toNumber(v); err != nil {
			return 0, err
		}
	}
	next := cur + by
	e.fields[fieldID] = next
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	if err := c.save(ctx, itemID, e); err != nil {
		return 0, err
	}
	c.emit(ctx, collection.Mutation{
		Type:       collection.MutationIncrement,
		ItemID:     itemID,
		ItemType:   collection.TypeHash,
		FieldID:    fieldID,
		FieldValue: next,
	})
	return next, nil
}

func (c *Collection) DeleteItem(ctx context.Context, itemID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok, err := c.load(ctx, itemID)
	if err != nil || !ok {
		return false, err
	}
	if err := c.store.Del(ctx, c.key(itemID)); err != nil {
		return false, err
	}
	c.emit(ctx, collection.Mutation{Type: collection.MutationDelete, ItemID: itemID})
	return true, nil
}

func (c *Collection) DeleteHashItemFields(ctx context.Context, itemID string, fieldIDs []string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok, err := c.load(ctx, itemID)
	if err != nil || !ok {
		return false, err
	}
	if e.typ != collection.TypeHash {
		return false, collection.ErrWrongType
	}
	var removed []string
	for _, id := range fieldIDs {
		if _, ok := e.fields[id]; ok {
			delete(e.fields, id)
			removed = append(removed, id)
		}
	}
	if len(removed) == 0 {
		return false, nil
	}
	if len(e.fields) == 0 {
		// an empty hash is no item at all
		err = c.store.Del(ctx, c.key(itemID))
	} else {
		err = c.save(ctx, itemID, e)
	}
	if err != nil {
		return false, err
	}
	for _, id := range removed {
		c.emit(ctx, collection.Mutation{
			Type:     collection.MutationDelete,
			ItemID:   itemID,
			ItemType: collection.TypeHash,
			FieldID:  id,
		})
	}
	return true, nil
}

func (c *Collection) SubscribeItem(_ context.Context, itemID string) (collection.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, collection.ErrClosed
	}
	return c.broker.subscribe(itemID, ""), nil
}

func (c *Collection) SubscribeHashItemField(_ context.Context, itemID, fieldID string) (collection.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, collection.ErrClosed
	}
	return c.broker.subscribe(itemID, fieldID), nil
}

// Close ends every live subscription with ErrClosed and releases the store.
func (c *Collection) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.broker.close(collection.ErrClosed)
	_ = c.gens.Close(ctx)
	return c.store.Close(ctx)
}

// load reads and decodes an item. Expired or corrupt records are deleted
// and reported as a miss.
func (c *Collection) load(ctx context.Context, itemID string) (*entry, bool, error) {
	if c.closed {
		return nil, false, collection.ErrClosed
	}
	k := c.key(itemID)
	raw, ok, err := c.store.Get(ctx, k)
	if err != nil || !ok {
		return nil, false, err
	}
	rec, err := wire.DecodeRecord(raw)
	if err != nil {
		_ = c.store.Del(ctx, k) // self-heal corrupt
		return nil, false, nil
	}
	if rec.ExpiresAt > 0 && time.Now().UnixNano() >= rec.ExpiresAt {
		_ = c.store.Del(ctx, k)
		return nil, false, nil
	}
	e := &entry{typ: collection.ItemType(rec.Type)}
	if rec.ExpiresAt > 0 {
		e.expiresAt = time.Unix(0, rec.ExpiresAt)
	}
	if rec.Hash {
		e.fields = make(map[string]any, len(rec.Fields))
		for _, f := range rec.Fields {
			v, err := c.codec.Decode(f.Payload)
			if err != nil {
				return nil, false, fmt.Errorf("decode field %q of %q: %w", f.Name, itemID, err)
			}
			e.fields[f.Name] = v
		}
		return e, true, nil
	}
	v, err := c.codec.Decode(rec.Value)
	if err != nil {
		return nil, false, fmt.Errorf("decode item %q: %w", itemID, err)
	}
	e.value = v
	return e, true, nil
}

// loadHash loads a hash item, starting an empty one when absent.
func (c *Collection) loadHash(ctx context.Context, itemID string) (*entry, error) {
	e, ok, err := c.load(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &entry{typ: collection.TypeHash, fields: map[string]any{}}, nil
	}
	if e.typ != collection.TypeHash {
		return nil, collection.ErrWrongType
	}
	return e, nil
}

func (c *Collection) save(ctx context.Context, itemID string, e *entry) error {
	now := time.Now()
	ttl := e.ttl(now)
	if !e.expiresAt.IsZero() && ttl <= 0 {
		// expired while we held it; nothing to store
		return c.store.Del(ctx, c.key(itemID))
	}
	rec := wire.Record{Type: string(e.typ)}
	if !e.expiresAt.IsZero() {
		rec.ExpiresAt = e.expiresAt.UnixNano()
	}
	if e.typ == collection.TypeHash {
		rec.Hash = true
		for _, name := range sortedNames(e.fields) {
			payload, err := c.codec.Encode(e.fields[name])
			if err != nil {
				return fmt.Errorf("encode field %q of %q: %w", name, itemID, err)
			}
			rec.Fields = append(rec.Fields, wire.Field{Name: name, Payload: payload})
		}
	} else {
		payload, err := c.codec.Encode(e.value)
		if err != nil {
			return fmt.Errorf("encode item %q: %w", itemID, err)
		}
		rec.Value = payload
	}
	b, err := wire.EncodeRecord(rec)
	if err != nil {
		return err
	}
	ok, err := c.store.Set(ctx, c.key(itemID), b, int64(len(b)), ttl)
	if err != nil {
		return err
	}
	if !ok {
		return collection.ErrRejected
	}
	return nil
}

// emit stamps a revision and fans m out. Callers hold mu.
func (c *Collection) emit(ctx context.Context, m collection.Mutation) {
	rev, err := c.gens.Next(ctx, c.key(m.ItemID))
	if err == nil {
		m.Revision = rev
	}
	c.broker.publish(m)
}

// toNumber coerces decoded numerics (float64 from JSON, intN/uintN from
// msgpack and CBOR). Strings and booleans are not numbers here.
func toNumber(v any) (float64, error) {
	switch v.(type) {
	case nil, string, bool:
		return 0, collection.ErrNotNumeric
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, collection.ErrNotNumeric
	}
	return f, nil
}

func copyFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sortedNames(m map[string]any) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
