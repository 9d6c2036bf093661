// Package tunnel carries the ATM's bank connection through an SSH
// gateway, for branches that can only reach the bank's network that
// way.  It is built on golang.org/x/crypto/ssh.
package tunnel

import (
	"context"
	"net"
)

// Tunnel is an encrypted channel through which TCP connections can be
// forwarded.
type Tunnel interface {
	// Connect establishes the tunnel to the gateway.
	Connect(ctx context.Context) error

	// Dial opens a connection to address through the tunnel.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close tears down the tunnel and every connection through it.
	Close() error

	// IsAlive reports whether the gateway connection is still up.
	IsAlive() bool
}
