package local

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/unkn0wn-root/collcache/codec"
	"github.com/unkn0wn-root/collcache/collection"
	pr "github.com/unkn0wn-root/collcache/provider"
	"github.com/unkn0wn-root/collcache/provider/bigcache"
	"github.com/unkn0wn-root/collcache/provider/bolt"
	"github.com/unkn0wn-root/collcache/provider/memory"
	"github.com/unkn0wn-root/collcache/provider/ristretto"
)

// Type is the collection type name in configuration.
const Type = "local"

// Engines accepted in Options.Engine.
const (
	EngineMemory    = "memory"
	EngineRistretto = "ristretto"
	EngineBigCache  = "bigcache"
	EngineBolt      = "bolt"
)

// Options is the "options" object of a local collection.
type Options struct {
	Engine     string `json:"engine"` // default memory
	Codec      string `json:"codec"`  // default json
	MaxDecode  int    `json:"maxDecode"`
	BufferSize int    `json:"bufferSize"`

	// ristretto
	NumCounters int64 `json:"numCounters"` // default 1e6
	MaxCost     int64 `json:"maxCost"`     // bytes; default 64 MiB
	BufferItems int64 `json:"bufferItems"` // default 64

	// bigcache
	LifeWindow         float64 `json:"lifeWindow"` // seconds
	HardMaxCacheSizeMB int     `json:"hardMaxCacheSizeMB"`
	Shards             int     `json:"shards"`

	// bolt
	Path   string `json:"path"`
	Bucket string `json:"bucket"`
}

// Factory registers the local type. Local collections are never shared.
func Factory() collection.Factory {
	return collection.Factory{Shared: false, Open: Open}
}

// Open builds a local collection from its raw configuration options.
func Open(ctx context.Context, id string, raw json.RawMessage) (collection.Collection, error) {
	var opts Options
	if len(bytes.TrimSpace(raw)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&opts); err != nil {
			return nil, &collection.OptionsError{Type: Type, Err: err}
		}
	}
	cc, err := codec.ByName(opts.Codec, opts.MaxDecode)
	if err != nil {
		return nil, &collection.OptionsError{Type: Type, Err: err}
	}
	store, err := openEngine(ctx, opts)
	if err != nil {
		return nil, err
	}
	return New(Config{
		Store:      store,
		Codec:      cc,
		Namespace:  id,
		BufferSize: opts.BufferSize,
	})
}

func openEngine(ctx context.Context, opts Options) (pr.Provider, error) {
	switch opts.Engine {
	case "", EngineMemory:
		return memory.New(), nil
	case EngineRistretto:
		return ristretto.New(ristretto.Config{
			NumCounters: orDefault(opts.NumCounters, 1_000_000),
			MaxCost:     orDefault(opts.MaxCost, 64<<20),
			BufferItems: orDefault(opts.BufferItems, 64),
		})
	case EngineBigCache:
		return bigcache.New(ctx, bigcache.Config{
			LifeWindow:         time.Duration(opts.LifeWindow * float64(time.Second)),
			HardMaxCacheSizeMB: opts.HardMaxCacheSizeMB,
			Shards:             opts.Shards,
		})
	case EngineBolt:
		return bolt.New(bolt.Config{Path: opts.Path, Bucket: opts.Bucket})
	default:
		return nil, &collection.OptionsError{Type: Type, Err: fmt.Errorf("unknown engine %q", opts.Engine)}
	}
}

func orDefault(v, def int64) int64 {
	if v <= 0 {
		return def
	}
	return v
}
