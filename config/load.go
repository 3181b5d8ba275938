package config

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// EnvFile names the environment variable consulted when no source is given.
const EnvFile = "CONFIG_FILE"

// DefaultFile is looked up next to the executable as a last resort.
const DefaultFile = "config.json"

const maxDocument = 4 << 20

var httpClient = &http.Client{Timeout: 30 * time.Second}

// Source resolves where the configuration comes from: arg, then
// $CONFIG_FILE, then config.json beside the executable.
func Source(arg string) string {
	if arg != "" {
		return arg
	}
	if env := os.Getenv(EnvFile); env != "" {
		return env
	}
	exe, err := os.Executable()
	if err != nil {
		return DefaultFile
	}
	return filepath.Join(filepath.Dir(exe), DefaultFile)
}

// Load reads the document from a file path or an http(s) URL and parses it.
func Load(ctx context.Context, source string) (*Config, error) {
	b, err := read(ctx, source)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	return cfg, nil
}

func read(ctx context.Context, source string) ([]byte, error) {
	if u, err := url.Parse(source); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return fetch(ctx, u.String())
	}
	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxDocument))
}

func fetch(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("config: fetch %s: %w", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("config: fetch %s: unexpected status %s", u, resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDocument))
}
