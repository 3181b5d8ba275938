//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package httpapi

import (
	"errors"
	"syscall"
)

func reusePortControl(string, string, syscall.RawConn) error {
	return errors.New("httpapi: SO_REUSEPORT is not supported on this platform")
}
