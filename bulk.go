package collcache

import (
	"context"
	"reflect"
	"slices"

	"github.com/unkn0wn-root/collcache/collection"
)

// grouping collects per-item accumulators by collection, then item, both
// in order of first appearance.
type grouping[A any] struct {
	groups []*collectionGroup[A]
	byID   map[string]*collectionGroup[A]
}

type collectionGroup[A any] struct {
	id     string
	coll   collection.Collection
	items  []*itemGroup[A]
	byItem map[string]*itemGroup[A]
}

type itemGroup[A any] struct {
	id  string
	acc A
}

// item returns the accumulator for (collectionID, itemID) and whether it
// was just created.
func (g *grouping[A]) item(collectionID string, coll collection.Collection, itemID string) (*itemGroup[A], bool) {
	if g.byID == nil {
		g.byID = make(map[string]*collectionGroup[A])
	}
	cg, ok := g.byID[collectionID]
	if !ok {
		cg = &collectionGroup[A]{id: collectionID, coll: coll, byItem: make(map[string]*itemGroup[A])}
		g.byID[collectionID] = cg
		g.groups = append(g.groups, cg)
	}
	ig, ok := cg.byItem[itemID]
	if !ok {
		ig = &itemGroup[A]{id: itemID}
		cg.byItem[itemID] = ig
		cg.items = append(cg.items, ig)
		return ig, true
	}
	return ig, false
}

// bulkEdit is the merged form of every field edit of one item in a batch.
type bulkEdit struct {
	fields map[string]any
	ttl    *float64
}

func sameTTL(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// BulkSetHashItemField merges the batch per item and checks it completely
// before the first write. Contradicting TTLs or field values abort the
// whole batch with a *ConflictError.
func (c *cache) BulkSetHashItemField(ctx context.Context, entries []SetHashItemFieldInput) (bool, error) {
	var g grouping[*bulkEdit]
	for _, raw := range entries {
		in, coll, err := sanitize(c.reg, raw)
		if err != nil {
			return false, err
		}
		ig, fresh := g.item(in.CollectionID, coll, in.ItemID)
		if fresh {
			ig.acc = &bulkEdit{fields: make(map[string]any), ttl: in.ItemTTL}
		} else if !sameTTL(ig.acc.ttl, in.ItemTTL) {
			return false, c.conflict(in.CollectionID, in.ItemID, "")
		}
		if prev, ok := ig.acc.fields[in.FieldID]; ok && !reflect.DeepEqual(prev, in.FieldValue) {
			return false, c.conflict(in.CollectionID, in.ItemID, in.FieldID)
		}
		ig.acc.fields[in.FieldID] = in.FieldValue
	}

	for _, cg := range g.groups {
		for _, ig := range cg.items {
			if err := cg.coll.UpsertHashItemFields(ctx, ig.id, ig.acc.fields, collection.TTL(ig.acc.ttl)); err != nil {
				return false, c.backendErr("bulkSetHashItemField", cg.id, err)
			}
		}
	}
	return true, nil
}

// BulkDeleteHashItemField groups field deletions per item; no conflict
// checks apply.
func (c *cache) BulkDeleteHashItemField(ctx context.Context, entries []FieldRef) (bool, error) {
	var g grouping[[]string]
	for _, raw := range entries {
		in, coll, err := sanitize(c.reg, raw)
		if err != nil {
			return false, err
		}
		ig, _ := g.item(in.CollectionID, coll, in.ItemID)
		if !slices.Contains(ig.acc, in.FieldID) {
			ig.acc = append(ig.acc, in.FieldID)
		}
	}

	for _, cg := range g.groups {
		for _, ig := range cg.items {
			if _, err := cg.coll.DeleteHashItemFields(ctx, ig.id, ig.acc); err != nil {
				return false, c.backendErr("bulkDeleteHashItemField", cg.id, err)
			}
		}
	}
	return true, nil
}

// BulkSetItem applies each entry on its own; see bestEffort.
func (c *cache) BulkSetItem(ctx context.Context, entries []SetItemInput) (bool, error) {
	return bestEffort(c, "bulkSetItem", entries, func(raw SetItemInput) (string, error) {
		in, coll, err := sanitize(c.reg, raw)
		if err != nil {
			return "", err
		}
		return in.CollectionID, c.setItem(ctx, coll, in)
	})
}

func (c *cache) BulkDeleteItem(ctx context.Context, entries []ItemRef) (bool, error) {
	return bestEffort(c, "bulkDeleteItem", entries, func(raw ItemRef) (string, error) {
		in, coll, err := sanitize(c.reg, raw)
		if err != nil {
			return "", err
		}
		_, err = c.deleteItem(ctx, coll, in)
		return in.CollectionID, err
	})
}

type bulkEntry interface {
	collectionID() string
	itemID() string
}

func (in SetItemInput) itemID() string { return in.ItemID }
func (in ItemRef) itemID() string      { return in.ItemID }

// bestEffort attempts every entry with its own arguments and reports all
// failures at the end. apply returns the resolved collection id, or ""
// when the entry failed before resolution.
func bestEffort[T bulkEntry](c *cache, op string, entries []T, apply func(T) (string, error)) (bool, error) {
	var failed []*EntryError
	for i, in := range entries {
		collectionID, err := apply(in)
		if err == nil {
			continue
		}
		if collectionID == "" {
			collectionID = coalesce(in.collectionID(), c.reg.Default())
		}
		failed = append(failed, &EntryError{Index: i, CollectionID: collectionID, ItemID: in.itemID(), Err: err})
		c.hooks.BulkEntryFailed(op, i, collectionID, in.itemID(), err)
	}
	if len(failed) == 0 {
		return true, nil
	}
	c.log.Warn("collcache.bulk_partial", Fields{"op": op, "failed": len(failed), "total": len(entries)})
	return false, &AggregateError{Op: op, Total: len(entries), Entries: failed}
}

func (c *cache) conflict(collectionID, itemID, fieldID string) error {
	c.hooks.BatchConflict(collectionID, itemID, fieldID)
	return &ConflictError{CollectionID: collectionID, ItemID: itemID, FieldID: fieldID}
}
