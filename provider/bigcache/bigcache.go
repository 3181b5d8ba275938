// Package bigcache is a sharded, GC-friendly local engine.
//
// bigcache has one eviction window for every entry and no per-key TTL. The
// local collection stores its own expiry inside each record, so a record
// outliving its TTL here is still treated as absent on read.
package bigcache

import (
	"context"
	"errors"
	"time"

	bc "github.com/allegro/bigcache/v3"

	pr "github.com/unkn0wn-root/collcache/provider"
)

const defaultLifeWindow = 24 * time.Hour

type Config struct {
	LifeWindow         time.Duration // eviction window for every entry; 0 => 24h
	HardMaxCacheSizeMB int           // 0 => unbounded
	Shards             int           // power of two; 0 => bigcache default
}

type Provider struct {
	c *bc.BigCache
}

var _ pr.Provider = (*Provider)(nil)

// New starts the cache; its janitor stops when ctx is done or on Close.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	life := cfg.LifeWindow
	if life <= 0 {
		life = defaultLifeWindow
	}
	conf := bc.DefaultConfig(life)
	conf.Verbose = false
	conf.CleanWindow = min(life, time.Minute)
	conf.HardMaxCacheSize = max(cfg.HardMaxCacheSizeMB, 0)
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	c, err := bc.New(ctx, conf)
	if err != nil {
		return nil, err
	}
	return &Provider{c: c}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := p.c.Get(key)
	switch {
	case errors.Is(err, bc.ErrEntryNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return b, true, nil
}

// Set ignores cost and ttl.
func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, _ time.Duration) (bool, error) {
	if err := p.c.Set(key, value); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	if err := p.c.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return err
	}
	return nil
}

func (p *Provider) Close(context.Context) error { return p.c.Close() }
