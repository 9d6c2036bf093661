package transport

import (
	"context"
	"net"
	"sync"

	bankerr "atmbank/internal/errors"
	"atmbank/tunnel"
	"atmbank/util"
)

// SSHDialer routes every connection through its own SSH tunnel.  Each
// returned connection owns its tunnel and tears it down on Close.
type SSHDialer struct {
	config *tunnel.SSHConfig
	logger *util.Logger

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewSSHDialer creates a dialer that forwards connections through the
// gateway described by cfg.
func NewSSHDialer(cfg *tunnel.SSHConfig, logger *util.Logger) *SSHDialer {
	if logger == nil {
		logger = util.NewLogger(0)
	}
	return &SSHDialer{config: cfg, logger: logger, conns: make(map[net.Conn]struct{})}
}

// Dial opens a tunnel to the gateway and connects to address through it.
func (d *SSHDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	d.logger.Verbose("connecting to %s through %s@%s:%d",
		address, d.config.User, d.config.Host, d.config.Port)

	conn, err := tunnel.Open(ctx, d.config, address, d.logger)
	if err != nil {
		return nil, err
	}
	return d.track(conn), nil
}

// track registers conn so Close can reach it until the caller closes it.
func (d *SSHDialer) track(conn net.Conn) net.Conn {
	tc := &trackedConn{Conn: conn, dialer: d}
	d.mu.Lock()
	d.conns[tc] = struct{}{}
	d.mu.Unlock()
	return tc
}

// open reports how many dialled connections have not been closed yet.
func (d *SSHDialer) open() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *SSHDialer) forget(c net.Conn) {
	d.mu.Lock()
	delete(d.conns, c)
	d.mu.Unlock()
}

// trackedConn drops out of its dialer's set when closed.
type trackedConn struct {
	net.Conn
	dialer *SSHDialer
}

func (c *trackedConn) Close() error {
	c.dialer.forget(c)
	return c.Conn.Close()
}

// Close closes every connection (and so every tunnel) still open.
func (d *SSHDialer) Close() error {
	d.mu.Lock()
	conns := d.conns
	d.conns = make(map[net.Conn]struct{})
	d.mu.Unlock()

	var errs []error
	for c := range conns {
		if err := c.Close(); err != nil && !util.IsHarmless(err) {
			errs = append(errs, err)
		}
	}
	return bankerr.Join(errs...)
}
