package genstore

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	rev     uint64
	touched time.Time
}

// Local keeps revisions in process memory.
type Local struct {
	mu       sync.Mutex
	counters map[string]counter
	idle     time.Duration
	now      func() time.Time

	stop chan struct{}
	done chan struct{}
}

var _ GenStore = (*Local)(nil)

// NewLocal returns a store that prunes counters idle for longer than
// r.Idle every r.Sweep. A zero Retention never prunes.
func NewLocal(r Retention) *Local {
	s := &Local{
		counters: make(map[string]counter),
		idle:     r.Idle,
		now:      time.Now,
	}
	if r.Idle > 0 && r.Sweep > 0 {
		s.stop = make(chan struct{})
		s.done = make(chan struct{})
		go s.sweep(r.Sweep)
	}
	return s
}

func (s *Local) sweep(every time.Duration) {
	t := time.NewTicker(every)
	defer func() {
		t.Stop()
		close(s.done)
	}()
	for {
		select {
		case <-t.C:
			s.Prune()
		case <-s.stop:
			return
		}
	}
}

func (s *Local) Next(_ context.Context, k string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.counters[k]
	c.rev++
	c.touched = s.now()
	s.counters[k] = c
	return c.rev, nil
}

func (s *Local) Current(_ context.Context, ks ...string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(ks))
	s.mu.Lock()
	for _, k := range ks {
		out[k] = s.counters[k].rev
	}
	s.mu.Unlock()
	return out, nil
}

// Prune drops counters idle for longer than the retention. A pruned item
// starts again at revision 1.
func (s *Local) Prune() {
	if s.idle <= 0 {
		return
	}
	cutoff := s.now().Add(-s.idle)
	s.mu.Lock()
	for k, c := range s.counters {
		if c.touched.Before(cutoff) {
			delete(s.counters, k)
		}
	}
	s.mu.Unlock()
}

func (s *Local) Close(context.Context) error {
	if s.stop == nil {
		return nil
	}
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	<-s.done
	return nil
}
