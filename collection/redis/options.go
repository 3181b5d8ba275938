package redis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/collcache/collection"
)

// Type is the collection type name in configuration.
const Type = "redis"

// Options is the "options" object of a redis collection.
type Options struct {
	Addr       string   `json:"addr"`  // default localhost:6379
	Addrs      []string `json:"addrs"` // cluster / sentinel seeds; wins over Addr
	MasterName string   `json:"masterName"`
	Username   string   `json:"username"`
	Password   string   `json:"password"`
	DB         int      `json:"db"`
	Namespace  string   `json:"namespace"` // default: the collection id

	RevisionTTL float64 `json:"revisionTTL"` // seconds
	BufferSize  int     `json:"bufferSize"`
	DialTimeout float64 `json:"dialTimeout"` // seconds
}

// Factory registers the redis type. Redis collections are shared.
func Factory() collection.Factory {
	return collection.Factory{Shared: true, Open: Open}
}

// Open connects to Redis and verifies the connection with a PING.
func Open(ctx context.Context, id string, raw json.RawMessage) (collection.Collection, error) {
	opts, err := parseOptions(raw)
	if err != nil {
		return nil, err
	}
	rdb := goredis.NewUniversalClient(opts.universal())
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	ns := opts.Namespace
	if ns == "" {
		ns = id
	}
	return New(Config{
		Client:      rdb,
		Namespace:   ns,
		CloseClient: true,
		RevisionTTL: seconds(opts.RevisionTTL),
		BufferSize:  opts.BufferSize,
	})
}

func parseOptions(raw json.RawMessage) (Options, error) {
	var opts Options
	if len(bytes.TrimSpace(raw)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&opts); err != nil {
			return Options{}, &collection.OptionsError{Type: Type, Err: err}
		}
	}
	if opts.DB < 0 {
		return Options{}, &collection.OptionsError{Type: Type, Err: errors.New("db must not be negative")}
	}
	return opts, nil
}

func (o Options) universal() *goredis.UniversalOptions {
	addrs := o.Addrs
	if len(addrs) == 0 {
		addr := o.Addr
		if addr == "" {
			addr = "localhost:6379"
		}
		addrs = []string{addr}
	}
	return &goredis.UniversalOptions{
		Addrs:       addrs,
		MasterName:  o.MasterName,
		Username:    o.Username,
		Password:    o.Password,
		DB:          o.DB,
		DialTimeout: seconds(o.DialTimeout),
	}
}

func seconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
