// Package config loads the collcache configuration document.
//
// The document is JSON:
//
//	{
//	  "debug": true,
//	  "workers": 4,
//	  "defaultCollection": "quotes",
//	  "collections": {
//	    "quotes":  {"type": "redis", "options": {"addr": "localhost:6379"}},
//	    "scratch": {"type": "local"}
//	  },
//	  "server": {"addr": ":4000"},
//	  "logger": "zap"
//	}
//
// Key order of "collections" is kept: the first entry is the default
// collection unless defaultCollection says otherwise.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"

	"github.com/go-playground/validator/v10"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Collection is one entry of the "collections" object.
type Collection struct {
	Type    string          `json:"type" validate:"required"`
	Options json.RawMessage `json:"options,omitempty"`
}

// Collections keeps collections in document order.
type Collections = orderedmap.OrderedMap[string, Collection]

// Config is immutable once returned by Parse or Load.
type Config struct {
	Debug             bool            `json:"debug"`
	Workers           int             `json:"workers" validate:"gte=1"`
	DefaultCollection string          `json:"defaultCollection"`
	Collections       *Collections    `json:"collections" validate:"required"`
	Server            json.RawMessage `json:"server,omitempty"`
	Logger            string          `json:"logger" validate:"omitempty,oneof=zap logrus slog"`
}

// raw distinguishes absent keys from zero values.
type raw struct {
	Debug             *bool           `json:"debug"`
	Workers           *int            `json:"workers"`
	DefaultCollection string          `json:"defaultCollection"`
	Collections       *Collections    `json:"collections"`
	Server            json.RawMessage `json:"server"`
	Logger            string          `json:"logger"`
}

var validate = validator.New()

// Parse decodes and validates a configuration document, applying defaults:
// debug=true, workers=runtime.NumCPU(), logger="zap".
func Parse(b []byte) (*Config, error) {
	var r raw
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg := &Config{
		Debug:             true,
		Workers:           runtime.NumCPU(),
		DefaultCollection: r.DefaultCollection,
		Collections:       r.Collections,
		Server:            r.Server,
		Logger:            r.Logger,
	}
	if r.Debug != nil {
		cfg.Debug = *r.Debug
	}
	if r.Workers != nil {
		cfg.Workers = *r.Workers
	}
	if cfg.Logger == "" {
		cfg.Logger = "zap"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the schema. It does not know collection types; that is
// the registry's job.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Collections.Len() == 0 {
		return errors.New("config: collections must not be empty")
	}
	for p := c.Collections.Oldest(); p != nil; p = p.Next() {
		if p.Key == "" {
			return errors.New("config: empty collection id")
		}
		if err := validate.Struct(p.Value); err != nil {
			return fmt.Errorf("config: collection %q: %w", p.Key, err)
		}
	}
	if len(c.Server) > 0 && !json.Valid(c.Server) {
		return errors.New("config: server is not valid JSON")
	}
	return nil
}

// CollectionIDs returns collection ids in document order.
func (c *Config) CollectionIDs() []string {
	ids := make([]string, 0, c.Collections.Len())
	for p := c.Collections.Oldest(); p != nil; p = p.Next() {
		ids = append(ids, p.Key)
	}
	return ids
}
