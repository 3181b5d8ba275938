package collcache

import (
	"context"
	"errors"

	"github.com/unkn0wn-root/collcache/collection"
)

const defaultSubscriptionBuffer = 16

type cache struct {
	reg    *Registry
	log    Logger
	hooks  Hooks
	subBuf int
}

var _ Cache = (*cache)(nil)

func newCache(ctx context.Context, opts Options) (*cache, error) {
	if opts.Config == nil {
		return nil, &ConfigurationError{Reason: "config is required"}
	}
	if len(opts.Factories) == 0 {
		return nil, &ConfigurationError{Reason: "no collection factories"}
	}
	if err := ValidateCollections(opts.Config, opts.Factories); err != nil {
		return nil, err
	}
	reg, err := BuildRegistry(ctx, opts.Config, opts.Factories)
	if err != nil {
		return nil, err
	}

	c := &cache{
		reg:    reg,
		log:    coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:  coalesce[Hooks](opts.Hooks, NopHooks{}),
		subBuf: coalesce(opts.SubscriptionBuffer, defaultSubscriptionBuffer),
	}
	c.log.Info("collcache.ready", Fields{
		"collections": reg.IDs(),
		"default":     reg.Default(),
		"workers":     opts.Config.Workers,
	})
	return c, nil
}

func (c *cache) Registry() *Registry { return c.reg }

func (c *cache) Close(ctx context.Context) error {
	return c.reg.Close(ctx)
}

func (c *cache) GetItem(ctx context.Context, raw ItemRef) (Item, error) {
	in, coll, err := sanitize(c.reg, raw)
	if err != nil {
		return Item{}, err
	}
	v, typ, err := coll.GetItemWithType(ctx, in.ItemID)
	if err != nil {
		return Item{}, c.backendErr("getItem", in.CollectionID, err)
	}
	return Item{ItemID: in.ItemID, ItemType: typ, ItemValue: v}, nil
}

func (c *cache) GetHashItemField(ctx context.Context, raw FieldRef) (HashItemField, error) {
	in, coll, err := sanitize(c.reg, raw)
	if err != nil {
		return HashItemField{}, err
	}
	v, err := coll.GetHashItemField(ctx, in.ItemID, in.FieldID)
	if err != nil {
		return HashItemField{}, c.backendErr("getHashItemField", in.CollectionID, err)
	}
	return HashItemField{ItemID: in.ItemID, FieldID: in.FieldID, FieldValue: v}, nil
}

func (c *cache) SetItem(ctx context.Context, raw SetItemInput) (bool, error) {
	in, coll, err := sanitize(c.reg, raw)
	if err != nil {
		return false, err
	}
	if err := c.setItem(ctx, coll, in); err != nil {
		return false, err
	}
	return true, nil
}

// setItem expects a sanitized input.
func (c *cache) setItem(ctx context.Context, coll collection.Collection, in SetItemInput) error {
	var typ collection.ItemType
	if in.ItemType != "" {
		typ, _ = collection.ParseItemType(in.ItemType) // checked by sanitize
	}
	if err := coll.UpsertItem(ctx, in.ItemID, in.ItemValue, typ, collection.TTL(in.ItemTTL)); err != nil {
		return c.backendErr("setItem", in.CollectionID, err)
	}
	return nil
}

func (c *cache) IncrementPrimitiveItem(ctx context.Context, raw IncrementItemInput) (float64, error) {
	in, coll, err := sanitize(c.reg, raw)
	if err != nil {
		return 0, err
	}
	v, err := coll.IncrementPrimitiveItemBy(ctx, in.ItemID, increment(in.Increment), collection.TTL(in.ItemTTL))
	if err != nil {
		return 0, c.backendErr("incrementPrimitiveItem", in.CollectionID, err)
	}
	return v, nil
}

func (c *cache) SetHashItemField(ctx context.Context, raw SetHashItemFieldInput) (bool, error) {
	in, coll, err := sanitize(c.reg, raw)
	if err != nil {
		return false, err
	}
	fields := map[string]any{in.FieldID: in.FieldValue}
	if err := coll.UpsertHashItemFields(ctx, in.ItemID, fields, collection.TTL(in.ItemTTL)); err != nil {
		return false, c.backendErr("setHashItemField", in.CollectionID, err)
	}
	return true, nil
}

func (c *cache) IncrementHashItemField(ctx context.Context, raw IncrementHashItemFieldInput) (float64, error) {
	in, coll, err := sanitize(c.reg, raw)
	if err != nil {
		return 0, err
	}
	v, err := coll.IncrementHashItemFieldBy(ctx, in.ItemID, in.FieldID, increment(in.Increment), collection.TTL(in.ItemTTL))
	if err != nil {
		return 0, c.backendErr("incrementHashItemField", in.CollectionID, err)
	}
	return v, nil
}

func (c *cache) DeleteItem(ctx context.Context, raw ItemRef) (bool, error) {
	in, coll, err := sanitize(c.reg, raw)
	if err != nil {
		return false, err
	}
	return c.deleteItem(ctx, coll, in)
}

func (c *cache) deleteItem(ctx context.Context, coll collection.Collection, in ItemRef) (bool, error) {
	ok, err := coll.DeleteItem(ctx, in.ItemID)
	if err != nil {
		return false, c.backendErr("deleteItem", in.CollectionID, err)
	}
	return ok, nil
}

func (c *cache) DeleteHashItemField(ctx context.Context, raw FieldRef) (bool, error) {
	in, coll, err := sanitize(c.reg, raw)
	if err != nil {
		return false, err
	}
	ok, err := coll.DeleteHashItemFields(ctx, in.ItemID, []string{in.FieldID})
	if err != nil {
		return false, c.backendErr("deleteHashItemField", in.CollectionID, err)
	}
	return ok, nil
}

func (c *cache) backendErr(op, collectionID string, err error) error {
	if !errors.Is(err, collection.ErrNotFound) {
		c.log.Debug("collcache.backend_error", Fields{"op": op, "collection": collectionID, "err": err})
	}
	return &BackendError{Op: op, CollectionID: collectionID, Err: err}
}
