// Package transport opens the ATM's connection to the bank.  A Dialer
// decides how bytes get there, straight over TCP or through an SSH
// gateway, independent of the protocol spoken over the connection.
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound connections to the bank server.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer.
	// Stateless dialers return nil.
	Close() error
}
