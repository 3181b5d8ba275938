package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHelpExitsZero(t *testing.T) {
	var out bytes.Buffer
	if code := run([]string{"-h"}, &out); code != 0 {
		t.Fatalf("exit=%d", code)
	}
	if !strings.Contains(out.String(), "usage: collcache") {
		t.Fatalf("usage not printed: %q", out.String())
	}
}

func TestStartupErrorsExitOne(t *testing.T) {
	dir := t.TempDir()
	unknownType := filepath.Join(dir, "unknown.json")
	_ = os.WriteFile(unknownType, []byte(`{"collections":{"a":{"type":"nosuch"}}}`), 0o600)
	localWithWorkers := filepath.Join(dir, "workers.json")
	_ = os.WriteFile(localWithWorkers, []byte(`{"workers":3,"collections":{"a":{"type":"local"}}}`), 0o600)

	cases := map[string][]string{
		"missing file":       {"-c", filepath.Join(dir, "none.json")},
		"bad flag":           {"-port", "1"},
		"unknown type":       {unknownType},
		"local with workers": {"-config", localWithWorkers},
	}
	t.Setenv("COLLCACHE_WORKER_ID", "")
	for name, args := range cases {
		var out bytes.Buffer
		if code := run(args, &out); code != 1 {
			t.Fatalf("%s: exit=%d", name, code)
		}
		if !strings.Contains(out.String(), "error:") {
			t.Fatalf("%s: no error printed: %q", name, out.String())
		}
	}
}

func TestNewLoggerKinds(t *testing.T) {
	for _, kind := range []string{"zap", "logrus", "slog", ""} {
		l, flush, err := newLogger(kind, true)
		if err != nil || l == nil {
			t.Fatalf("%s: %v", kind, err)
		}
		flush()
	}
}
