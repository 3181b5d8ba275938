package bigcache

import (
	"context"
	"testing"
	"time"
)

func TestRoundTripAndDeleteMissing(t *testing.T) {
	ctx := context.Background()
	p, err := New(ctx, Config{LifeWindow: time.Minute, Shards: 4})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = p.Close(ctx) })

	if _, hit, err := p.Get(ctx, "k"); hit || err != nil {
		t.Fatalf("empty cache Get hit=%v err=%v", hit, err)
	}
	if ok, err := p.Set(ctx, "k", []byte("v"), 0, time.Second); !ok || err != nil {
		t.Fatalf("Set ok=%v err=%v", ok, err)
	}
	b, hit, err := p.Get(ctx, "k")
	if err != nil || !hit || string(b) != "v" {
		t.Fatalf("Get=%q,%v,%v", b, hit, err)
	}
	if err := p.Del(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if err := p.Del(ctx, "k"); err != nil {
		t.Fatalf("deleting a missing key: %v", err)
	}
}
