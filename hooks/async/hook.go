// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    BulkEntryEvery:    10, // sample logs: ~every 10th failed bulk entry
//	    SubscriptionEvery: 1,  // log every subscription open/close
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
// Request-path events are dropped when the queue is full and counted in
// Dropped. Worker exits are rare and always delivered.
//
//	cache, _ := collcache.New(ctx, collcache.Options{
//	    Config:    cfg,
//	    Factories: builtin.Factories(),
//	    Hooks:     hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/collcache"
)

type Hooks struct {
	inner collcache.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once

	dropped atomic.Uint64
}

var _ collcache.Hooks = (*Hooks)(nil)

func New(inner collcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events. Hooks must not be called after Close.
func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded on a full queue.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) BulkEntryFailed(op string, i int, c, item string, err error) {
	h.try(func() { h.inner.BulkEntryFailed(op, i, c, item, err) })
}
func (h *Hooks) BatchConflict(c, item, field string) {
	h.try(func() { h.inner.BatchConflict(c, item, field) })
}
func (h *Hooks) SubscriptionOpened(id, c, item, field string) {
	h.try(func() { h.inner.SubscriptionOpened(id, c, item, field) })
}
func (h *Hooks) SubscriptionClosed(id string, err error) {
	h.try(func() { h.inner.SubscriptionClosed(id, err) })
}
func (h *Hooks) WorkerExited(w, pid int, err error) {
	h.q <- func() { h.inner.WorkerExited(w, pid, err) }
}
