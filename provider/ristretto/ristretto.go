// Package ristretto is a size-bounded local engine. Admission is
// probabilistic: under pressure a write may be dropped, which the local
// collection reports as a rejected write.
package ristretto

import (
	"context"
	"fmt"
	"time"

	rc "github.com/dgraph-io/ristretto"

	pr "github.com/unkn0wn-root/collcache/provider"
)

type Config struct {
	NumCounters int64 // keys tracked for admission; ~10x expected items
	MaxCost     int64 // total bytes admitted
	BufferItems int64 // Get buffer size; 64 is what ristretto recommends
}

func (c Config) check() error {
	switch {
	case c.NumCounters <= 0:
		return fmt.Errorf("ristretto: numCounters must be positive, got %d", c.NumCounters)
	case c.MaxCost <= 0:
		return fmt.Errorf("ristretto: maxCost must be positive, got %d", c.MaxCost)
	case c.BufferItems <= 0:
		return fmt.Errorf("ristretto: bufferItems must be positive, got %d", c.BufferItems)
	}
	return nil
}

type Provider struct {
	c *rc.Cache
}

var _ pr.Provider = (*Provider)(nil)

func New(cfg Config) (*Provider, error) {
	if err := cfg.check(); err != nil {
		return nil, err
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &Provider{c: c}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		p.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

// Set charges len(value) when cost <= 0 and blocks until the write is
// applied, so the collection reads its own writes.
func (p *Provider) Set(_ context.Context, key string, value []byte, cost int64, ttl time.Duration) (bool, error) {
	if cost <= 0 {
		cost = int64(len(value))
	}
	ok := p.c.SetWithTTL(key, value, cost, max(ttl, 0))
	p.c.Wait()
	return ok, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Del(key)
	return nil
}

func (p *Provider) Close(context.Context) error {
	p.c.Close()
	return nil
}
