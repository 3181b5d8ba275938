package zap

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/unkn0wn-root/collcache"
)

func TestZapLoggerFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := ZapLogger{L: zap.New(core)}
	l.Warn("collcache.bulk_partial", collcache.Fields{"op": "bulkSetItem", "err": errors.New("boom")})

	entries := logs.All()
	if len(entries) != 1 || entries[0].Message != "collcache.bulk_partial" {
		t.Fatalf("entries=%v", entries)
	}
	ctx := entries[0].ContextMap()
	if ctx["op"] != "bulkSetItem" || ctx["err"] != "boom" {
		t.Fatalf("fields=%v", ctx)
	}
}
