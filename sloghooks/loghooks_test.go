package sloghooks

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func newTestHooks(opts Options) (*Hooks, *bytes.Buffer) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(l, opts), &buf
}

func TestItemIDsAreRedacted(t *testing.T) {
	h, buf := newTestHooks(Options{})
	h.BulkEntryFailed("bulkSetItem", 3, "quotes", "secret-item", errors.New("boom"))
	out := buf.String()
	if strings.Contains(out, "secret-item") {
		t.Fatalf("item id leaked: %s", out)
	}
	if !strings.Contains(out, "collcache.bulk_entry_failed") || !strings.Contains(out, "index=3") {
		t.Fatalf("output=%s", out)
	}
}

func TestBulkEntrySampling(t *testing.T) {
	h, buf := newTestHooks(Options{BulkEntryEvery: 3, Redact: func(s string) string { return s }})
	for i := 0; i < 9; i++ {
		h.BulkEntryFailed("bulkDeleteItem", i, "c", "x", errors.New("e"))
	}
	if n := strings.Count(buf.String(), "collcache.bulk_entry_failed"); n != 3 {
		t.Fatalf("logged %d, want 3", n)
	}
}

func TestSubscriptionFailureAlwaysLogged(t *testing.T) {
	h, buf := newTestHooks(Options{SubscriptionEvery: 1000})
	h.SubscriptionClosed("id-1", errors.New("overflow"))
	if !strings.Contains(buf.String(), "collcache.subscription_failed") {
		t.Fatalf("output=%s", buf.String())
	}
}

func TestNilLoggerIsSilent(t *testing.T) {
	h := New(nil, Options{})
	h.BatchConflict("c", "i", "")
	h.WorkerExited(1, 2, errors.New("x"))
}
