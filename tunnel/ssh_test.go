package tunnel

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	bankerr "atmbank/internal/errors"
)

// startEcho runs a TCP server that answers every read with "pong:" and
// the bytes read.
func startEcho(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 256)
				for {
					n, err := c.Read(buf)
					if err != nil {
						return
					}
					c.Write(append([]byte("pong:"), buf[:n]...)) //nolint:errcheck
				}
			}(c)
		}
	}()
	return ln.Addr().String()
}

// gateway is a minimal SSH server that accepts one public key and
// forwards direct-tcpip channels.
type gateway struct {
	addr    string
	hostKey ssh.PublicKey
}

func startGateway(t *testing.T, authorized ssh.PublicKey) gateway {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	cfg := &ssh.ServerConfig{
		PublicKeyCallback: func(_ ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if bytes.Equal(key.Marshal(), authorized.Marshal()) {
				return nil, nil
			}
			return nil, fmt.Errorf("unknown key")
		},
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go serveGateway(c, cfg)
		}
	}()
	return gateway{addr: ln.Addr().String(), hostKey: signer.PublicKey()}
}

func serveGateway(c net.Conn, cfg *ssh.ServerConfig) {
	sconn, chans, reqs, err := ssh.NewServerConn(c, cfg)
	if err != nil {
		c.Close()
		return
	}
	defer sconn.Close()
	go ssh.DiscardRequests(reqs)

	for nc := range chans {
		if nc.ChannelType() != "direct-tcpip" {
			nc.Reject(ssh.UnknownChannelType, "only direct-tcpip") //nolint:errcheck
			continue
		}
		var target struct {
			Host     string
			Port     uint32
			OrigHost string
			OrigPort uint32
		}
		if err := ssh.Unmarshal(nc.ExtraData(), &target); err != nil {
			nc.Reject(ssh.ConnectionFailed, err.Error()) //nolint:errcheck
			continue
		}
		dst, err := net.Dial("tcp", net.JoinHostPort(target.Host, strconv.Itoa(int(target.Port))))
		if err != nil {
			nc.Reject(ssh.ConnectionFailed, err.Error()) //nolint:errcheck
			continue
		}
		ch, creqs, err := nc.Accept()
		if err != nil {
			dst.Close()
			continue
		}
		go ssh.DiscardRequests(creqs)
		go func() {
			io.Copy(ch, dst) //nolint:errcheck
			ch.Close()
		}()
		go func() {
			io.Copy(dst, ch) //nolint:errcheck
			dst.Close()
		}()
	}
}

func gatewayConfig(t *testing.T, gw gateway, keyPath string) *SSHConfig {
	t.Helper()
	host, portStr, _ := net.SplitHostPort(gw.addr)
	port, _ := strconv.Atoi(portStr)
	return &SSHConfig{
		User:        "teller",
		Host:        host,
		Port:        port,
		KeyPath:     keyPath,
		ConnTimeout: 2 * time.Second,
	}
}

func TestOpen_ThroughGateway(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "id_test")
	pub := writeTestKey(t, keyPath, "")
	gw := startGateway(t, pub)
	echo := startEcho(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := Open(ctx, gatewayConfig(t, gw, keyPath), echo, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := conn.Write([]byte("b,aa-00001")); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got := string(buf[:n]); got != "pong:b,aa-00001" {
		t.Errorf("got %q", got)
	}

	tc := conn.(*tunnelConn)
	if !tc.tunnel.IsAlive() {
		t.Error("tunnel should be alive while the connection is open")
	}
	conn.Close()
	if tc.tunnel.IsAlive() {
		t.Error("closing the connection should close the tunnel")
	}
}

func TestOpen_StrictHostKey(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "id_test")
	pub := writeTestKey(t, keyPath, "")
	gw := startGateway(t, pub)
	echo := startEcho(t)

	known := filepath.Join(t.TempDir(), "known_hosts")
	line := knownhosts.Line([]string{knownhosts.Normalize(gw.addr)}, gw.hostKey)
	if err := os.WriteFile(known, []byte(line+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := gatewayConfig(t, gw, keyPath)
	cfg.StrictHostKey = true
	cfg.KnownHosts = known

	conn, err := Open(context.Background(), cfg, echo, nil)
	if err != nil {
		t.Fatalf("Open with a known host: %v", err)
	}
	conn.Close()

	// A different gateway key must be refused.
	other := startGateway(t, pub)
	cfg = gatewayConfig(t, other, keyPath)
	cfg.StrictHostKey = true
	cfg.KnownHosts = known
	if _, err := Open(context.Background(), cfg, echo, nil); err == nil {
		t.Error("expected host key mismatch to fail")
	}
}

func TestOpen_UnknownKeyRejected(t *testing.T) {
	dir := t.TempDir()
	authorized := writeTestKey(t, filepath.Join(dir, "authorized"), "")
	stranger := filepath.Join(dir, "stranger")
	writeTestKey(t, stranger, "")
	gw := startGateway(t, authorized)

	_, err := Open(context.Background(), gatewayConfig(t, gw, stranger), startEcho(t), nil)
	var sshErr *bankerr.SSHError
	if !bankerr.As(err, &sshErr) || sshErr.Op != "handshake" {
		t.Errorf("err = %v, want SSHError from the handshake", err)
	}
}

func TestOpen_GatewayDown(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "id_test")
	writeTestKey(t, keyPath, "")

	cfg := &SSHConfig{User: "teller", Host: "127.0.0.1", Port: 1, KeyPath: keyPath, ConnTimeout: time.Second}
	_, err := Open(context.Background(), cfg, "127.0.0.1:65432", nil)
	var nerr *bankerr.NetworkError
	if !bankerr.As(err, &nerr) {
		t.Errorf("err = %v, want NetworkError", err)
	}
}

func TestSSHTunnel_DialBeforeConnect(t *testing.T) {
	tun := NewSSHTunnel(&SSHConfig{Host: "gw"}, nil)
	if _, err := tun.Dial(context.Background(), "tcp", "127.0.0.1:1"); !bankerr.Is(err, bankerr.ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
	if tun.IsAlive() {
		t.Error("unconnected tunnel reports alive")
	}
	if err := tun.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
