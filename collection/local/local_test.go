package local

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/unkn0wn-root/collcache/codec"
	"github.com/unkn0wn-root/collcache/collection"
	"github.com/unkn0wn-root/collcache/internal/util"
	"github.com/unkn0wn-root/collcache/provider/memory"
)

func newTestCollection(t *testing.T, cc codec.Codec[any]) (*Collection, *memory.Provider) {
	t.Helper()
	if cc == nil {
		cc = codec.JSON[any]{}
	}
	store := memory.New()
	c, err := New(Config{Store: store, Codec: cc, Namespace: "test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c, store
}

func recv(t *testing.T, sub collection.Subscription) collection.Mutation {
	t.Helper()
	select {
	case m, ok := <-sub.Mutations():
		if !ok {
			t.Fatalf("subscription closed: %v", sub.Err())
		}
		return m
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for mutation")
	}
	return collection.Mutation{}
}

func TestUpsertAndGetInfersType(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCollection(t, nil)

	cases := []struct {
		id   string
		v    any
		want collection.ItemType
	}{
		{"s", "hello", collection.TypeString},
		{"n", 3.5, collection.TypeNumber},
		{"b", true, collection.TypeBoolean},
		{"o", map[string]any{"a": "b"}, collection.TypeObject},
	}
	for _, tc := range cases {
		if err := c.UpsertItem(ctx, tc.id, tc.v, "", 0); err != nil {
			t.Fatalf("UpsertItem(%s): %v", tc.id, err)
		}
		_, typ, err := c.GetItemWithType(ctx, tc.id)
		if err != nil || typ != tc.want {
			t.Fatalf("GetItemWithType(%s): typ=%s err=%v want %s", tc.id, typ, err, tc.want)
		}
	}

	if _, _, err := c.GetItemWithType(ctx, "missing"); !errors.Is(err, collection.ErrNotFound) {
		t.Fatalf("missing item: err=%v want ErrNotFound", err)
	}
}

func TestItemTTLExpires(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCollection(t, nil)

	if err := c.UpsertItem(ctx, "x", "v", "", 30*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.GetItemWithType(ctx, "x"); err != nil {
		t.Fatalf("fresh item: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if _, _, err := c.GetItemWithType(ctx, "x"); !errors.Is(err, collection.ErrNotFound) {
		t.Fatalf("expired item: err=%v want ErrNotFound", err)
	}
}

func TestIncrementPrimitiveItem(t *testing.T) {
	ctx := context.Background()
	for _, name := range []string{codec.NameJSON, codec.NameMsgpack, codec.NameCBOR, codec.NameProtobuf} {
		cc, err := codec.ByName(name, 0)
		if err != nil {
			t.Fatal(err)
		}
		c, _ := newTestCollection(t, cc)

		if v, err := c.IncrementPrimitiveItemBy(ctx, "n", 1, 0); err != nil || v != 1 {
			t.Fatalf("%s: first increment v=%v err=%v", name, v, err)
		}
		if err := c.UpsertItem(ctx, "m", 5, "", 0); err != nil {
			t.Fatal(err)
		}
		if v, err := c.IncrementPrimitiveItemBy(ctx, "m", 2.5, 0); err != nil || v != 7.5 {
			t.Fatalf("%s: increment existing v=%v err=%v", name, v, err)
		}
		if err := c.UpsertItem(ctx, "s", "text", "", 0); err != nil {
			t.Fatal(err)
		}
		if _, err := c.IncrementPrimitiveItemBy(ctx, "s", 1, 0); !errors.Is(err, collection.ErrNotNumeric) {
			t.Fatalf("%s: increment string err=%v want ErrNotNumeric", name, err)
		}
	}
}

func TestHashFields(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCollection(t, nil)

	if err := c.UpsertHashItemFields(ctx, "h", map[string]any{"a": 1.0, "b": "x"}, 0); err != nil {
		t.Fatal(err)
	}
	if v, err := c.GetHashItemField(ctx, "h", "a"); err != nil || v != 1.0 {
		t.Fatalf("field a: v=%v err=%v", v, err)
	}
	if v, err := c.GetHashItemField(ctx, "h", "zz"); err != nil || v != nil {
		t.Fatalf("missing field: v=%v err=%v", v, err)
	}
	if v, err := c.GetHashItemField(ctx, "nope", "a"); err != nil || v != nil {
		t.Fatalf("missing item: v=%v err=%v", v, err)
	}
	if v, err := c.IncrementHashItemFieldBy(ctx, "h", "a", 2, 0); err != nil || v != 3 {
		t.Fatalf("increment field: v=%v err=%v", v, err)
	}
	if _, err := c.IncrementHashItemFieldBy(ctx, "h", "b", 1, 0); !errors.Is(err, collection.ErrNotNumeric) {
		t.Fatalf("increment string field: err=%v", err)
	}

	v, typ, err := c.GetItemWithType(ctx, "h")
	if err != nil || typ != collection.TypeHash {
		t.Fatalf("hash item: typ=%s err=%v", typ, err)
	}
	if m := v.(map[string]any); len(m) != 2 || m["a"] != 3.0 {
		t.Fatalf("hash value: %v", m)
	}

	if err := c.UpsertItem(ctx, "plain", "v", "", 0); err != nil {
		t.Fatal(err)
	}
	if err := c.UpsertHashItemFields(ctx, "plain", map[string]any{"a": 1}, 0); !errors.Is(err, collection.ErrWrongType) {
		t.Fatalf("hash upsert on string item: err=%v", err)
	}
}

func TestHashTTLIsKeptWithoutNewTTL(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCollection(t, nil)

	if err := c.UpsertHashItemFields(ctx, "h", map[string]any{"a": 1}, 40*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := c.UpsertHashItemFields(ctx, "h", map[string]any{"b": 2}, 0); err != nil {
		t.Fatal(err)
	}
	time.Sleep(80 * time.Millisecond)
	if _, _, err := c.GetItemWithType(ctx, "h"); !errors.Is(err, collection.ErrNotFound) {
		t.Fatalf("item TTL should survive a field upsert without TTL, err=%v", err)
	}
}

func TestDeleteLastFieldRemovesItem(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCollection(t, nil)

	if err := c.UpsertHashItemFields(ctx, "h", map[string]any{"a": 1, "b": 2}, 0); err != nil {
		t.Fatal(err)
	}
	if ok, err := c.DeleteHashItemFields(ctx, "h", []string{"a", "zz"}); err != nil || !ok {
		t.Fatalf("delete a: ok=%v err=%v", ok, err)
	}
	if ok, err := c.DeleteHashItemFields(ctx, "h", []string{"zz"}); err != nil || ok {
		t.Fatalf("delete absent: ok=%v err=%v", ok, err)
	}
	if ok, err := c.DeleteHashItemFields(ctx, "h", []string{"b"}); err != nil || !ok {
		t.Fatalf("delete b: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := store.Get(ctx, util.Key("test", "item", "h")); ok {
		t.Fatalf("empty hash should be removed from the store")
	}
	if ok, err := c.DeleteItem(ctx, "h"); err != nil || ok {
		t.Fatalf("delete gone item: ok=%v err=%v", ok, err)
	}
}

func TestCorruptRecordSelfHeals(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCollection(t, nil)

	k := util.Key("test", "item", "bad")
	if _, err := store.Set(ctx, k, []byte("not-a-record"), 1, 0); err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.GetItemWithType(ctx, "bad"); !errors.Is(err, collection.ErrNotFound) {
		t.Fatalf("corrupt record should read as missing, err=%v", err)
	}
	if _, ok, _ := store.Get(ctx, k); ok {
		t.Fatalf("corrupt record was not deleted")
	}
}

func TestSubscriptionsFollowMutations(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCollection(t, nil)

	itemSub, err := c.SubscribeItem(ctx, "h")
	if err != nil {
		t.Fatal(err)
	}
	fieldSub, err := c.SubscribeHashItemField(ctx, "h", "a")
	if err != nil {
		t.Fatal(err)
	}

	if err := c.UpsertHashItemFields(ctx, "h", map[string]any{"a": 1.0, "b": 2.0}, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := c.IncrementHashItemFieldBy(ctx, "h", "a", 1, 0); err != nil {
		t.Fatal(err)
	}

	// item subscription sees a (SET), b (SET), a (INCREMENT) in commit order
	first, second, third := recv(t, itemSub), recv(t, itemSub), recv(t, itemSub)
	if first.FieldID != "a" || second.FieldID != "b" || third.Type != collection.MutationIncrement {
		t.Fatalf("item events out of order: %+v %+v %+v", first, second, third)
	}
	if !(first.Revision < second.Revision && second.Revision < third.Revision) {
		t.Fatalf("revisions not increasing: %d %d %d", first.Revision, second.Revision, third.Revision)
	}

	// field subscription only sees field a
	m1, m2 := recv(t, fieldSub), recv(t, fieldSub)
	if m1.FieldID != "a" || m1.FieldValue != 1.0 || m2.FieldValue != 2.0 {
		t.Fatalf("field events: %+v %+v", m1, m2)
	}

	if ok, err := c.DeleteItem(ctx, "h"); err != nil || !ok {
		t.Fatalf("DeleteItem: ok=%v err=%v", ok, err)
	}
	if m := recv(t, fieldSub); m.Type != collection.MutationDelete || m.FieldID != "a" {
		t.Fatalf("field sub should see item deletion as field delete: %+v", m)
	}
}

func TestCancelUnregisters(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCollection(t, nil)

	sub, err := c.SubscribeItem(ctx, "x")
	if err != nil {
		t.Fatal(err)
	}
	if n := c.broker.count("x"); n != 1 {
		t.Fatalf("subscribers=%d want 1", n)
	}
	sub.Cancel()
	if n := c.broker.count("x"); n != 0 {
		t.Fatalf("subscribers after cancel=%d want 0", n)
	}
	if _, ok := <-sub.Mutations(); ok {
		t.Fatalf("mutations channel should be closed")
	}
}

func TestCloseFailsSubscriptions(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCollection(t, nil)

	sub, err := c.SubscribeItem(ctx, "x")
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok := <-sub.Mutations(); ok {
		t.Fatalf("expected closed channel")
	}
	if !errors.Is(sub.Err(), collection.ErrClosed) {
		t.Fatalf("err=%v want ErrClosed", sub.Err())
	}
	if err := c.UpsertItem(ctx, "x", 1, "", 0); !errors.Is(err, collection.ErrClosed) {
		t.Fatalf("upsert after close: err=%v", err)
	}
}

func TestOpenOptions(t *testing.T) {
	ctx := context.Background()
	coll, err := Open(ctx, "c", []byte(`{"engine":"memory","codec":"msgpack"}`))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer coll.Close(ctx)
	if coll.Shared() {
		t.Fatalf("local collections are never shared")
	}

	var oe *collection.OptionsError
	if _, err := Open(ctx, "c", []byte(`{"engine":"tape"}`)); !errors.As(err, &oe) {
		t.Fatalf("unknown engine: err=%v", err)
	}
	if _, err := Open(ctx, "c", []byte(`{"engin":"memory"}`)); !errors.As(err, &oe) {
		t.Fatalf("unknown option key: err=%v", err)
	}
}
