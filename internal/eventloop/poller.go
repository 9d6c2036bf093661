// Package eventloop runs the bank server: one goroutine waits for
// readiness events from a Poller and hands each message to the
// dispatcher in arrival order.
//
// Two pollers are available.  The epoll poller drives raw non-blocking
// sockets directly and exists only on Linux.  The goroutine poller
// works everywhere: it parks one reader goroutine per connection on the
// Go net poller and funnels what they read into a FIFO that the loop
// drains.  Either way, dispatch never runs on more than one goroutine.
package eventloop

import (
	"fmt"
	"net"

	bankerr "atmbank/internal/errors"
)

// Key identifies a connection within one Poller.
type Key int64

// EventKind says what happened on a connection.
type EventKind int

const (
	EventOpen  EventKind = iota // new connection accepted
	EventData                   // bytes arrived
	EventClose                  // peer closed or the connection failed
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventData:
		return "data"
	case EventClose:
		return "close"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one readiness notification.  Data is owned by the receiver.
type Event struct {
	Kind   EventKind
	Key    Key
	Remote string // set on EventOpen
	Data   []byte // set on EventData
}

// Poller is a readiness multiplexer over one listening socket and the
// connections accepted from it.
//
// Wait, Write, CloseConn and Close are called from the loop goroutine
// only.  Wake may be called from any goroutine.
type Poller interface {
	// Addr returns the bound listen address.
	Addr() net.Addr

	// Wait blocks until at least one event is ready or Wake is called,
	// and appends the events to events.
	Wait(events []Event) ([]Event, error)

	// Wake makes a blocked Wait return.
	Wake() error

	// Write sends p in full to the connection, blocking if needed.
	Write(key Key, p []byte) error

	// CloseConn closes one connection.  No further events are reported
	// for key.
	CloseConn(key Key) error

	// Close closes the listener and every connection.
	Close() error
}

// Multiplexer names a Poller implementation.
const (
	MultiplexerAuto      = "auto"
	MultiplexerEpoll     = "epoll"
	MultiplexerGoroutine = "goroutine"
)

// Listen binds addr with the named multiplexer.  "auto" picks epoll
// where the platform has it and falls back to goroutines elsewhere.
func Listen(multiplexer, addr string) (Poller, error) {
	switch multiplexer {
	case MultiplexerEpoll:
		return newEpollPoller(addr)
	case MultiplexerGoroutine:
		return newGoroutinePoller(addr)
	case MultiplexerAuto, "":
		p, err := newEpollPoller(addr)
		if bankerr.Is(err, bankerr.ErrUnsupported) {
			return newGoroutinePoller(addr)
		}
		return p, err
	default:
		return nil, fmt.Errorf("unknown multiplexer %q", multiplexer)
	}
}
