package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/collcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	BulkEntryEvery    uint64
	SubscriptionEvery uint64
	// Optional item id redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	bulkEntryCtr atomic.Uint64
	subOpenCtr   atomic.Uint64
	subCloseCtr  atomic.Uint64
}

var _ collcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) BulkEntryFailed(op string, index int, collectionID, itemID string, err error) {
	if h.l == nil || !sample(h.opts.BulkEntryEvery, &h.bulkEntryCtr) {
		return
	}
	h.l.Warn("collcache.bulk_entry_failed",
		"op", op,
		"index", index,
		"collection", collectionID,
		"item", h.redact(itemID),
		"err", err)
}

func (h *Hooks) BatchConflict(collectionID, itemID, fieldID string) {
	if h.l == nil {
		return
	}
	reason := "value"
	if fieldID == "" {
		reason = "ttl"
	}
	h.l.Info("collcache.batch_conflict",
		"collection", collectionID,
		"item", h.redact(itemID),
		"reason", reason)
}

func (h *Hooks) SubscriptionOpened(id, collectionID, itemID, fieldID string) {
	if h.l == nil || !sample(h.opts.SubscriptionEvery, &h.subOpenCtr) {
		return
	}
	h.l.Debug("collcache.subscription_opened",
		"id", id,
		"collection", collectionID,
		"item", h.redact(itemID),
		"field", fieldID != "")
}

func (h *Hooks) SubscriptionClosed(id string, err error) {
	if h.l == nil {
		return
	}
	if err != nil {
		h.l.Warn("collcache.subscription_failed", "id", id, "err", err)
		return
	}
	if sample(h.opts.SubscriptionEvery, &h.subCloseCtr) {
		h.l.Debug("collcache.subscription_closed", "id", id)
	}
}

func (h *Hooks) WorkerExited(worker, pid int, err error) {
	if h.l == nil {
		return
	}
	if err != nil {
		h.l.Error("collcache.worker_exit", "worker", worker, "pid", pid, "err", err)
		return
	}
	h.l.Info("collcache.worker_exit", "worker", worker, "pid", pid)
}
