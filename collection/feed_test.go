package collection

import (
	"errors"
	"testing"
)

func TestFeedDeliversInOrder(t *testing.T) {
	f := NewFeed(4, nil)
	for i := uint64(1); i <= 3; i++ {
		if !f.Publish(Mutation{Type: MutationSet, ItemID: "x", Revision: i}) {
			t.Fatalf("publish %d rejected", i)
		}
	}
	for i := uint64(1); i <= 3; i++ {
		m := <-f.Mutations()
		if m.Revision != i {
			t.Fatalf("got revision %d want %d", m.Revision, i)
		}
	}
}

func TestFeedOverflowTerminates(t *testing.T) {
	f := NewFeed(1, nil)
	if !f.Publish(Mutation{ItemID: "x"}) {
		t.Fatalf("first publish should fit")
	}
	if f.Publish(Mutation{ItemID: "x"}) {
		t.Fatalf("second publish should overflow")
	}
	if !errors.Is(f.Err(), ErrOverflow) {
		t.Fatalf("err=%v want ErrOverflow", f.Err())
	}
	// buffered mutation is still readable, then the channel is closed
	if _, ok := <-f.Mutations(); !ok {
		t.Fatalf("expected buffered mutation")
	}
	if _, ok := <-f.Mutations(); ok {
		t.Fatalf("expected closed channel")
	}
}

func TestFeedCancelRunsHookOnce(t *testing.T) {
	calls := 0
	f := NewFeed(1, func() { calls++ })
	f.Cancel()
	f.Cancel()
	if calls != 1 {
		t.Fatalf("onCancel calls=%d want 1", calls)
	}
	if f.Err() != nil {
		t.Fatalf("cancel should not set an error, got %v", f.Err())
	}
	if f.Publish(Mutation{}) {
		t.Fatalf("publish after cancel should fail")
	}
}

func TestFailDoesNotRunCancelHook(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	f := NewFeed(1, func() { calls++ })
	f.Fail(boom)
	f.Cancel()
	if calls != 0 {
		t.Fatalf("onCancel should not run after Fail, calls=%d", calls)
	}
	if !errors.Is(f.Err(), boom) {
		t.Fatalf("err=%v want boom", f.Err())
	}
}

func TestForField(t *testing.T) {
	setHash := Mutation{Type: MutationSet, ItemID: "x", ItemType: TypeHash, Value: map[string]any{"a": 1.0}}
	m, ok := setHash.ForField("a")
	if !ok || m.Type != MutationSet || m.FieldValue != 1.0 {
		t.Fatalf("hash set projection: %+v ok=%v", m, ok)
	}
	m, ok = Mutation{Type: MutationSet, ItemID: "x", ItemType: TypeString, Value: "s"}.ForField("a")
	if !ok || m.Type != MutationDelete {
		t.Fatalf("overwrite with non-hash should delete the field: %+v", m)
	}
	if _, ok := (Mutation{Type: MutationSet, ItemID: "x", FieldID: "b"}).ForField("a"); ok {
		t.Fatalf("other field must not match")
	}
	if _, ok := (Mutation{Type: MutationIncrement, ItemID: "x", ItemType: TypeNumber}).ForField("a"); ok {
		t.Fatalf("item increment must not match a field")
	}
}

func TestInferAndParseType(t *testing.T) {
	cases := map[ItemType]any{
		TypeString:  "s",
		TypeNumber:  3.0,
		TypeBoolean: true,
		TypeObject:  map[string]any{},
	}
	for want, v := range cases {
		if got := InferType(v); got != want {
			t.Fatalf("InferType(%v)=%s want %s", v, got, want)
		}
	}
	if _, err := ParseItemType("hash"); err != nil {
		t.Fatalf("ParseItemType(hash): %v", err)
	}
	if _, err := ParseItemType("list"); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}
