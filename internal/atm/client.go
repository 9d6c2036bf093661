// Package atm is the customer-facing side of the bank: a Client that
// speaks the wire protocol over one connection, and a Teller that runs
// the interactive prompt loop on top of it.
package atm

import (
	"fmt"
	"net"
	"time"

	bankerr "atmbank/internal/errors"
	"atmbank/internal/protocol"
	"atmbank/util"
)

// Client sends one request at a time and waits for its reply.  It is
// not safe for concurrent use.
type Client struct {
	conn    net.Conn
	timeout time.Duration // per request; 0 = none
	buf     []byte
}

// NewClient wraps an established connection to the bank server.
func NewClient(conn net.Conn, timeout time.Duration) *Client {
	return &Client{conn: conn, timeout: timeout, buf: make([]byte, util.ReadBufSize)}
}

// Login authenticates the connection as acct.
func (c *Client) Login(acct, pin string) (protocol.Response, error) {
	return c.do(protocol.Request{Op: protocol.OpLogin, Account: acct, Arg: pin})
}

// Balance asks for the balance of acct.
func (c *Client) Balance(acct string) (protocol.Response, error) {
	return c.do(protocol.Request{Op: protocol.OpBalance, Account: acct})
}

// Deposit credits amount, as typed by the customer, to acct.  The server
// decides whether the amount is valid.
func (c *Client) Deposit(acct, amount string) (protocol.Response, error) {
	return c.do(protocol.Request{Op: protocol.OpDeposit, Account: acct, Arg: amount})
}

// Withdraw debits amount from acct.
func (c *Client) Withdraw(acct, amount string) (protocol.Response, error) {
	return c.do(protocol.Request{Op: protocol.OpWithdraw, Account: acct, Arg: amount})
}

// Close closes the connection.
func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) do(req protocol.Request) (protocol.Response, error) {
	addr := c.conn.RemoteAddr().String()
	if c.timeout > 0 {
		// SSH channels do not support deadlines; they just go without.
		_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
	}
	if _, err := c.conn.Write([]byte(protocol.EncodeRequest(req))); err != nil {
		return protocol.Response{}, bankerr.Wrap("send", addr, err)
	}
	n, err := c.conn.Read(c.buf)
	if err != nil {
		return protocol.Response{}, bankerr.Wrap("receive", addr, err)
	}
	resp, err := protocol.DecodeResponse(string(c.buf[:n]))
	if err != nil {
		return protocol.Response{}, fmt.Errorf("%s reply: %w", req.Op, err)
	}
	return resp, nil
}
