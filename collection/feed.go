package collection

import "sync"

// DefaultBuffer is the number of undelivered mutations a Feed holds before
// it fails with ErrOverflow.
const DefaultBuffer = 256

// Feed is a channel-backed Subscription for backend implementations.
// Publish never blocks: a consumer that falls more than the buffer behind
// gets its feed terminated with ErrOverflow instead of stalling writers.
type Feed struct {
	mu       sync.Mutex
	ch       chan Mutation
	closed   bool
	err      error
	onCancel func()
}

var _ Subscription = (*Feed)(nil)

// NewFeed returns a feed buffering up to buffer mutations (<= 0 selects
// DefaultBuffer). onCancel, if set, runs once when Cancel closes the feed.
func NewFeed(buffer int, onCancel func()) *Feed {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Feed{ch: make(chan Mutation, buffer), onCancel: onCancel}
}

// Publish enqueues m. It reports false when the feed is closed or was
// terminated because the buffer is full.
func (f *Feed) Publish(m Mutation) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	select {
	case f.ch <- m:
		return true
	default:
		f.closeLocked(ErrOverflow)
		return false
	}
}

// Fail terminates the feed with err. No-op on a closed feed.
func (f *Feed) Fail(err error) {
	f.mu.Lock()
	f.closeLocked(err)
	f.mu.Unlock()
}

func (f *Feed) Mutations() <-chan Mutation { return f.ch }

func (f *Feed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Cancel closes the feed without error and runs onCancel. Repeated calls
// are no-ops.
func (f *Feed) Cancel() {
	f.mu.Lock()
	wasOpen := !f.closed
	f.closeLocked(nil)
	f.mu.Unlock()
	if wasOpen && f.onCancel != nil {
		f.onCancel()
	}
}

// Closed reports whether the feed has ended.
func (f *Feed) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Feed) closeLocked(err error) {
	if f.closed {
		return
	}
	f.closed = true
	f.err = err
	close(f.ch)
}
