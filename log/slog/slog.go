//go:build go1.21

package slog

import (
	"context"
	stdslog "log/slog"
	"os"

	"github.com/unkn0wn-root/collcache"
)

var _ collcache.Logger = Logger{}

type Logger struct{ L *stdslog.Logger }

func (s Logger) Debug(msg string, f collcache.Fields) {
	s.L.LogAttrs(context.Background(), stdslog.LevelDebug, msg, attrs(f)...)
}
func (s Logger) Info(msg string, f collcache.Fields) {
	s.L.LogAttrs(context.Background(), stdslog.LevelInfo, msg, attrs(f)...)
}
func (s Logger) Warn(msg string, f collcache.Fields) {
	s.L.LogAttrs(context.Background(), stdslog.LevelWarn, msg, attrs(f)...)
}
func (s Logger) Error(msg string, f collcache.Fields) {
	s.L.LogAttrs(context.Background(), stdslog.LevelError, msg, attrs(f)...)
}

// New logs JSON to stderr at Info, or Debug when debug is set.
func New(debug bool) Logger {
	return Logger{L: stdslog.New(Handler(debug))}
}

// Handler is the stderr JSON handler used by New.
func Handler(debug bool) stdslog.Handler {
	lvl := stdslog.LevelInfo
	if debug {
		lvl = stdslog.LevelDebug
	}
	return stdslog.NewJSONHandler(os.Stderr, &stdslog.HandlerOptions{Level: lvl})
}

func attrs(f collcache.Fields) []stdslog.Attr {
	if len(f) == 0 {
		return nil
	}
	out := make([]stdslog.Attr, 0, len(f))
	for k, v := range f {
		out = append(out, stdslog.Any(k, v))
	}
	return out
}
