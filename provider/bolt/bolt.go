// Package bolt is a persistent provider on top of a bbolt file.
//
// A bbolt file is locked by the process that opens it, so a local
// collection using this engine can only be served by a single worker.
package bolt

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	bolt "go.etcd.io/bbolt"

	pr "github.com/unkn0wn-root/collcache/provider"
)

var ErrNoPath = errors.New("bolt provider: path is required")

type Config struct {
	Path        string
	Bucket      string        // default "collcache"
	OpenTimeout time.Duration // default 1s
}

type Provider struct {
	db     *bolt.DB
	bucket []byte
}

var _ pr.Provider = (*Provider)(nil)

func New(cfg Config) (*Provider, error) {
	if cfg.Path == "" {
		return nil, ErrNoPath
	}
	timeout := cfg.OpenTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	db, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, err
	}
	bucket := []byte("collcache")
	if cfg.Bucket != "" {
		bucket = []byte(cfg.Bucket)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Provider{db: db, bucket: bucket}, nil
}

// Layout: 8 bytes big endian expiresAt (unix nanos, 0 = never) || raw value
func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	var out []byte
	var found, expired bool
	err := p.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(p.bucket).Get([]byte(key))
		if v == nil {
			return nil
		}
		if len(v) < 8 {
			expired = true // treat as corrupt; dropped below
			return nil
		}
		exp := int64(binary.BigEndian.Uint64(v[:8]))
		if exp > 0 && time.Now().UnixNano() > exp {
			expired = true
			return nil
		}
		out = append([]byte(nil), v[8:]...)
		found = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if expired {
		_ = p.Del(context.Background(), key)
		return nil, false, nil
	}
	if !found {
		return nil, false, nil
	}
	return out, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	exp := int64(0)
	if ttl > 0 {
		exp = time.Now().Add(ttl).UnixNano()
	}
	buf := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(buf[:8], uint64(exp))
	copy(buf[8:], value)

	err := p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(p.bucket).Put([]byte(key), buf)
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	return p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(p.bucket).Delete([]byte(key))
	})
}

// Close closes the underlying database. Safe to call more than once.
func (p *Provider) Close(_ context.Context) error {
	if p == nil || p.db == nil {
		return nil
	}
	err := p.db.Close()
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return nil
	}
	return err
}
