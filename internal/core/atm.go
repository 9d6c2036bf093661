package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"atmbank/internal/atm"
	"atmbank/internal/transport"
	"atmbank/util"
)

// ATMMode dials the bank and runs an interactive teller session on the
// resulting connection.
type ATMMode struct {
	Dialer      transport.Dialer
	Address     string
	Timeout     time.Duration // per request
	MaxAttempts int
	Logger      *util.Logger

	// Stdin/Stdout default to os.Stdin/os.Stdout when nil.
	// Override in tests for deterministic I/O.
	Stdin  io.Reader
	Stdout io.Writer
	Secret atm.SecretReader
}

func (m *ATMMode) stdin() io.Reader {
	if m.Stdin != nil {
		return m.Stdin
	}
	return os.Stdin
}

func (m *ATMMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// secret reads the PIN without echo when stdin is a terminal.
func (m *ATMMode) secret(in io.Reader, out io.Writer) atm.SecretReader {
	if m.Secret != nil {
		return m.Secret
	}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return atm.TerminalSecret(int(f.Fd()), out)
	}
	return nil
}

// Run connects and hands the connection to a Teller.  The transport is
// closed when Run returns.
func (m *ATMMode) Run(ctx context.Context) error {
	defer m.Dialer.Close()
	out := m.stdout()

	m.Logger.Verbose("connecting to %s", m.Address)
	conn, err := m.Dialer.Dial(ctx, "tcp", m.Address)
	if err != nil {
		fmt.Fprintln(out, "Unable to connect to the banking server.")
		return fmt.Errorf("connect to %s: %w", m.Address, err)
	}
	m.Logger.Verbose("connected to %s", conn.RemoteAddr())

	client := atm.NewClient(conn, m.Timeout)
	defer client.Close()

	fmt.Fprintln(out, "Welcome to the ACME ATM Client. Please log in to continue.")
	in := m.stdin()
	teller := atm.NewTeller(client, in, out, m.secret(in, out), m.MaxAttempts)
	if err := teller.Run(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "Thank you for banking with ACME. Goodbye.")
	return nil
}
