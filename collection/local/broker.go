package local

import (
	"sync"

	"github.com/unkn0wn-root/collcache/collection"
)

type subscriber struct {
	feed    *collection.Feed
	fieldID string // "" => whole item
}

// broker fans mutations out to the subscribers of an item.
type broker struct {
	mu     sync.Mutex
	buffer int
	subs   map[string]map[*subscriber]struct{}
}

func newBroker(buffer int) *broker {
	return &broker{buffer: buffer, subs: make(map[string]map[*subscriber]struct{})}
}

func (b *broker) subscribe(itemID, fieldID string) *collection.Feed {
	s := &subscriber{fieldID: fieldID}
	s.feed = collection.NewFeed(b.buffer, func() { b.remove(itemID, s) })

	b.mu.Lock()
	set, ok := b.subs[itemID]
	if !ok {
		set = make(map[*subscriber]struct{})
		b.subs[itemID] = set
	}
	set[s] = struct{}{}
	b.mu.Unlock()
	return s.feed
}

func (b *broker) remove(itemID string, s *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(itemID, s)
}

func (b *broker) removeLocked(itemID string, s *subscriber) {
	set := b.subs[itemID]
	delete(set, s)
	if len(set) == 0 {
		delete(b.subs, itemID)
	}
}

func (b *broker) publish(m collection.Mutation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs[m.ItemID] {
		out := m
		if s.fieldID != "" {
			var ok bool
			if out, ok = m.ForField(s.fieldID); !ok {
				continue
			}
		}
		if !s.feed.Publish(out) {
			// overflowed or closed; drop the subscriber, the feed carries the error
			b.removeLocked(m.ItemID, s)
		}
	}
}

func (b *broker) close(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for itemID, set := range b.subs {
		for s := range set {
			s.feed.Fail(err)
		}
		delete(b.subs, itemID)
	}
}

// count reports live subscribers of itemID.
func (b *broker) count(itemID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[itemID])
}
