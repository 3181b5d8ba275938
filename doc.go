// Package collcache routes cache operations to named collections.
//
// A Cache owns a Registry of collections opened from configuration, each
// backed by a collection.Collection (Redis, in-process, ...). Every
// operation is first sanitized: a missing collectionID becomes the default
// collection, and a reference to an unregistered collection is rejected
// with a ValidationError instead of falling back to the default.
//
// Bulk semantics differ by shape:
//   - hash-field batches are validated as a whole before anything is
//     written; a TTL or value contradiction inside the batch aborts it with
//     a ConflictError and nothing is applied.
//   - plain-item batches are best effort: every entry is attempted, and
//     failures come back together as an AggregateError while successful
//     entries stay applied.
//
// Subscriptions relay backend mutations in emission order. Field
// subscriptions are primed with one GET event carrying the current value;
// that event may precede a mutation that it already reflects, which the
// Revision on each event makes detectable.
//
// Example:
//
//	cfg, _ := config.Load(ctx, "config.json")
//	cache, err := collcache.New(ctx, collcache.Options{
//	    Config:    cfg,
//	    Factories: builtin.Factories(),
//	    Logger:    zaplog.ZapLogger{L: zl},
//	})
//	if err != nil { ... }
//	defer cache.Close(ctx)
//
//	_, _ = cache.SetItem(ctx, collcache.SetItemInput{ItemID: "eurusd", ItemValue: 1.08})
//	sub, _ := cache.SubscribeHashItemField(ctx, collcache.FieldRef{ItemID: "quote", FieldID: "bid"})
//	defer sub.Cancel()
//	ev, ok := sub.Next(ctx) // GET with the current bid, then real mutations
package collcache
