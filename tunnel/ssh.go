package tunnel

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	bankerr "atmbank/internal/errors"
	"atmbank/util"
)

// SSHConfig holds everything needed to reach the bank through an SSH
// gateway.
type SSHConfig struct {
	User          string
	Host          string
	Port          int
	KeyPath       string
	PromptPass    bool
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string
	ConnTimeout   time.Duration

	// Prompt is where password and passphrase prompts are written.
	// Defaults to os.Stderr.
	Prompt io.Writer
}

func (c *SSHConfig) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *SSHConfig) promptOut() io.Writer {
	if c.Prompt != nil {
		return c.Prompt
	}
	return os.Stderr
}

var _ Tunnel = (*SSHTunnel)(nil)

// SSHTunnel implements [Tunnel] over one ssh.Client.
type SSHTunnel struct {
	config *SSHConfig
	client *ssh.Client
	logger *util.Logger
	mu     sync.RWMutex
	alive  bool
}

// NewSSHTunnel creates a tunnel that is ready to [SSHTunnel.Connect].
func NewSSHTunnel(cfg *SSHConfig, logger *util.Logger) *SSHTunnel {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.ConnTimeout == 0 {
		cfg.ConnTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = util.NewLogger(0)
	}
	return &SSHTunnel{config: cfg, logger: logger}
}

// Connect dials the gateway and completes the SSH handshake.
func (t *SSHTunnel) Connect(ctx context.Context) error {
	authMethods, err := BuildAuthMethods(t.config)
	if err != nil {
		return bankerr.WrapSSH("auth", t.config.Host, t.config.Port, err)
	}
	hkCallback, err := hostKeyCallback(t.config)
	if err != nil {
		return bankerr.WrapSSH("hostkey", t.config.Host, t.config.Port, err)
	}

	clientCfg := &ssh.ClientConfig{
		User:            t.config.User,
		Auth:            authMethods,
		HostKeyCallback: hkCallback,
		Timeout:         t.config.ConnTimeout,
	}

	addr := t.config.addr()
	t.logger.Debug("ssh: dialing %s as %s", addr, t.config.User)

	dialer := net.Dialer{Timeout: t.config.ConnTimeout}
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return bankerr.Wrap("dial", addr, err)
	}
	// The handshake itself ignores ctx; a deadline bounds it instead.
	_ = tcpConn.SetDeadline(time.Now().Add(t.config.ConnTimeout))

	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, clientCfg)
	if err != nil {
		tcpConn.Close()
		return bankerr.WrapSSH("handshake", t.config.Host, t.config.Port, err)
	}
	_ = tcpConn.SetDeadline(time.Time{})

	client := ssh.NewClient(sshConn, chans, reqs)

	t.mu.Lock()
	t.client = client
	t.alive = true
	t.mu.Unlock()

	go t.monitor(client)
	return nil
}

// Dial opens a direct-tcpip channel to address on the gateway's side.
func (t *SSHTunnel) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	t.mu.RLock()
	client, alive := t.client, t.alive
	t.mu.RUnlock()

	if !alive || client == nil {
		return nil, bankerr.ErrNotConnected
	}

	t.logger.Debug("tunnel: dialing %s %s", network, address)
	conn, err := client.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("tunnel dial %s: %w", address, err)
	}
	return conn, nil
}

// Close shuts down the SSH connection.
func (t *SSHTunnel) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.alive = false
	if t.client != nil {
		err := t.client.Close()
		t.client = nil
		return err
	}
	return nil
}

// IsAlive reports whether the tunnel is still connected.
func (t *SSHTunnel) IsAlive() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.alive
}

// monitor blocks until the gateway connection drops.
func (t *SSHTunnel) monitor(client *ssh.Client) {
	err := client.Wait()

	t.mu.Lock()
	if t.client == client {
		t.alive = false
	}
	t.mu.Unlock()

	if err != nil {
		t.logger.Verbose("ssh tunnel to %s closed: %v", t.config.addr(), err)
	} else {
		t.logger.Verbose("ssh tunnel to %s closed", t.config.addr())
	}
}

// Open connects a tunnel and dials address through it.  Closing the
// returned connection also closes the tunnel, so a single bank session
// owns its gateway connection outright.
func Open(ctx context.Context, cfg *SSHConfig, address string, logger *util.Logger) (net.Conn, error) {
	t := NewSSHTunnel(cfg, logger)
	if err := t.Connect(ctx); err != nil {
		return nil, err
	}
	conn, err := t.Dial(ctx, "tcp", address)
	if err != nil {
		t.Close()
		return nil, err
	}
	return &tunnelConn{Conn: conn, tunnel: t}, nil
}

// tunnelConn is a forwarded connection that owns its tunnel.
type tunnelConn struct {
	net.Conn
	tunnel Tunnel
	once   sync.Once
}

func (c *tunnelConn) Close() error {
	err := c.Conn.Close()
	c.once.Do(func() {
		if terr := c.tunnel.Close(); err == nil {
			err = terr
		}
	})
	return err
}
