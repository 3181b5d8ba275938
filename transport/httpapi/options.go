package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Options is the "server" object of the configuration.
type Options struct {
	Addr            string  `json:"addr"`     // default ":4000"
	BasePath        string  `json:"basePath"` // default "/"
	Mode            string  `json:"mode" validate:"omitempty,oneof=debug release test"`
	ReusePort       *bool   `json:"reusePort"`       // default: workers > 1
	ShutdownTimeout float64 `json:"shutdownTimeout"` // seconds; default 10
}

var validate = validator.New()

// ParseOptions decodes the raw server options and applies defaults.
func ParseOptions(raw json.RawMessage, workers int) (Options, error) {
	var o Options
	if len(bytes.TrimSpace(raw)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&o); err != nil {
			return Options{}, fmt.Errorf("server options: %w", err)
		}
	}
	if err := validate.Struct(o); err != nil {
		return Options{}, fmt.Errorf("server options: %w", err)
	}
	if o.Addr == "" {
		o.Addr = ":4000"
	}
	o.BasePath = "/" + strings.Trim(o.BasePath, "/")
	if o.ReusePort == nil {
		multi := workers > 1
		o.ReusePort = &multi
	}
	return o, nil
}

func (o Options) shutdownTimeout() time.Duration {
	if o.ShutdownTimeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(o.ShutdownTimeout * float64(time.Second))
}
