package httpapi

import (
	"context"
	"net"
)

// Listen opens a TCP listener. With reusePort every worker process can
// bind the same address and the kernel spreads connections between them.
func Listen(ctx context.Context, addr string, reusePort bool) (net.Listener, error) {
	var lc net.ListenConfig
	if reusePort {
		lc.Control = reusePortControl
	}
	return lc.Listen(ctx, "tcp", addr)
}
