package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/collcache/collection"
)

// subscribe confirms the SUBSCRIBE with the server before returning, so no
// mutation published afterwards can be missed.
func (c *Collection) subscribe(ctx context.Context, itemID, fieldID string) (collection.Subscription, error) {
	ps := c.rdb.Subscribe(ctx, c.channel(itemID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	feed := collection.NewFeed(c.buffer, func() { _ = ps.Close() })
	go relay(ps, feed, fieldID)
	return feed, nil
}

// relay copies pub/sub messages into feed until the pubsub is closed.
func relay(ps *goredis.PubSub, feed *collection.Feed, fieldID string) {
	for msg := range ps.Channel() {
		m, err := decodeMutation(msg.Payload)
		if err != nil {
			feed.Fail(err)
			_ = ps.Close()
			return
		}
		if fieldID != "" {
			var ok bool
			if m, ok = m.ForField(fieldID); !ok {
				continue
			}
		}
		if !feed.Publish(m) {
			_ = ps.Close()
			return
		}
	}
	// Channel closes on Cancel (feed already closed) or when the client is closed.
	feed.Fail(collection.ErrClosed)
}

func decodeMutation(payload string) (collection.Mutation, error) {
	var m collection.Mutation
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return collection.Mutation{}, fmt.Errorf("redis collection: bad mutation payload: %w", err)
	}
	return m, nil
}
