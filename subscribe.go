package collcache

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/collcache/collection"
)

// Subscription is an ordered, cancellable event sequence.
//
// It ends when Cancel is called, when the context passed to the subscribe
// call is done, or when the backend fails (Err then returns a
// *BackendError). Events already buffered stay readable after the end.
type Subscription[T any] struct {
	id      string
	ch      chan T
	done    chan struct{}
	backend collection.Subscription
	hooks   Hooks

	cancelOnce sync.Once
	closeOnce  sync.Once
	mu         sync.Mutex
	err        error
}

func newSubscription[T any](backend collection.Subscription, buffer int, hooks Hooks) *Subscription[T] {
	return &Subscription[T]{
		id:      uuid.NewString(),
		ch:      make(chan T, buffer),
		done:    make(chan struct{}),
		backend: backend,
		hooks:   hooks,
	}
}

func (s *Subscription[T]) ID() string { return s.id }

// C is closed when the sequence ends.
func (s *Subscription[T]) C() <-chan T { return s.ch }

// Next blocks for the next event. ok is false once the sequence has ended
// and is drained, or when ctx is done first.
func (s *Subscription[T]) Next(ctx context.Context) (v T, ok bool) {
	select {
	case v, ok = <-s.ch:
		return v, ok
	case <-ctx.Done():
		return v, false
	}
}

func (s *Subscription[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Cancel ends the sequence. Safe to call any number of times from any
// goroutine; the backend subscription is cancelled exactly once.
func (s *Subscription[T]) Cancel() {
	s.cancelOnce.Do(func() {
		close(s.done)
		s.backend.Cancel()
	})
}

func (s *Subscription[T]) finish(err error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		// hooks run before C closes: consumers may tear hooks down once it does
		s.hooks.SubscriptionClosed(s.id, err)
		close(s.ch)
	})
}

// relay copies backend mutations through convert until the sequence ends.
// It is the only writer of s.ch.
func (s *Subscription[T]) relay(ctx context.Context, op, collectionID string, convert func(collection.Mutation) (T, bool)) {
	in := s.backend.Mutations()
	for {
		select {
		case <-s.done:
			s.finish(nil)
			return
		case <-ctx.Done():
			s.Cancel()
			s.finish(nil)
			return
		case m, ok := <-in:
			if !ok {
				var err error
				if berr := s.backend.Err(); berr != nil {
					err = &BackendError{Op: op, CollectionID: collectionID, Err: berr}
				}
				s.Cancel()
				s.finish(err)
				return
			}
			v, keep := convert(m)
			if !keep {
				continue
			}
			select {
			case s.ch <- v:
			case <-s.done:
				s.finish(nil)
				return
			case <-ctx.Done():
				s.Cancel()
				s.finish(nil)
				return
			}
		}
	}
}

func (c *cache) SubscribeItem(ctx context.Context, raw ItemRef) (*Subscription[ItemMutation], error) {
	in, coll, err := sanitize(c.reg, raw)
	if err != nil {
		return nil, err
	}
	bs, err := coll.SubscribeItem(ctx, in.ItemID)
	if err != nil {
		return nil, c.backendErr("subscribeItem", in.CollectionID, err)
	}
	sub := newSubscription[ItemMutation](bs, c.subBuf, c.hooks)
	c.hooks.SubscriptionOpened(sub.id, in.CollectionID, in.ItemID, "")
	go sub.relay(ctx, "subscribeItem", in.CollectionID, itemEvent)
	return sub, nil
}

// SubscribeHashItemField opens the backend subscription, then reads the
// field once and queues that value as a GET event ahead of every relayed
// mutation. A mutation racing the read may be reflected in the GET event
// and delivered again afterwards; compare revisions to tell.
func (c *cache) SubscribeHashItemField(ctx context.Context, raw FieldRef) (*Subscription[HashItemFieldMutation], error) {
	in, coll, err := sanitize(c.reg, raw)
	if err != nil {
		return nil, err
	}
	bs, err := coll.SubscribeHashItemField(ctx, in.ItemID, in.FieldID)
	if err != nil {
		return nil, c.backendErr("subscribeHashItemField", in.CollectionID, err)
	}

	v, err := coll.GetHashItemField(ctx, in.ItemID, in.FieldID)
	if errors.Is(err, collection.ErrWrongType) {
		v, err = nil, nil
	}
	if err != nil {
		bs.Cancel()
		return nil, c.backendErr("subscribeHashItemField", in.CollectionID, err)
	}

	sub := newSubscription[HashItemFieldMutation](bs, c.subBuf+1, c.hooks)
	sub.ch <- HashItemFieldMutation{
		MutationType: collection.MutationGet,
		Field:        HashItemField{ItemID: in.ItemID, FieldID: in.FieldID, FieldValue: v},
	}
	c.hooks.SubscriptionOpened(sub.id, in.CollectionID, in.ItemID, in.FieldID)
	go sub.relay(ctx, "subscribeHashItemField", in.CollectionID, fieldEvent(in.FieldID))
	return sub, nil
}

// itemEvent relays item mutations verbatim; field mutations become a
// HASH item carrying only the changed field.
func itemEvent(m collection.Mutation) (ItemMutation, bool) {
	it := Item{ItemID: m.ItemID, ItemType: m.ItemType, ItemValue: m.Value}
	if m.IsField() {
		it.ItemType = collection.TypeHash
		it.ItemValue = map[string]any{m.FieldID: m.FieldValue}
	}
	return ItemMutation{MutationType: m.Type, Item: it, Revision: m.Revision}, true
}

func fieldEvent(fieldID string) func(collection.Mutation) (HashItemFieldMutation, bool) {
	return func(m collection.Mutation) (HashItemFieldMutation, bool) {
		fm, ok := m.ForField(fieldID)
		if !ok {
			return HashItemFieldMutation{}, false
		}
		return HashItemFieldMutation{
			MutationType: fm.Type,
			Field:        HashItemField{ItemID: fm.ItemID, FieldID: fieldID, FieldValue: fm.FieldValue},
			Revision:     fm.Revision,
		}, true
	}
}
