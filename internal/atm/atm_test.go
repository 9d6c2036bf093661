package atm

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"atmbank/internal/account"
	"atmbank/internal/dispatch"
	bankerr "atmbank/internal/errors"
	"atmbank/internal/protocol"
	"atmbank/internal/session"
)

// pipeBank connects a Client to an in-process bank over net.Pipe.  The
// bank holds aa-00001/1234 with 100.00.  registry is shared so tests can
// pre-claim the account.
func pipeBank(t *testing.T, registry *session.Registry) *Client {
	t.Helper()
	store := account.NewStore()
	if err := store.Add("aa-00001", "1234", decimal.NewFromInt(100)); err != nil {
		t.Fatal(err)
	}
	if registry == nil {
		registry = session.NewRegistry()
	}
	d := dispatch.New(store, registry, nil, nil)

	srv, cli := net.Pipe()
	go func() {
		sess := session.New(1, "pipe")
		buf := make([]byte, 1024)
		for {
			n, err := srv.Read(buf)
			if err != nil {
				return
			}
			var resp protocol.Response
			resp, sess = d.Handle(string(buf[:n]), sess)
			if _, err := srv.Write([]byte(protocol.EncodeResponse(resp))); err != nil {
				return
			}
		}
	}()
	t.Cleanup(func() {
		cli.Close()
		srv.Close()
	})
	return NewClient(cli, 2*time.Second)
}

func TestClient_Operations(t *testing.T) {
	c := pipeBank(t, nil)

	steps := []struct {
		name string
		call func() (protocol.Response, error)
		want string
	}{
		{"bad login", func() (protocol.Response, error) { return c.Login("aa-00001", "0000") }, "1,-1000"},
		{"login", func() (protocol.Response, error) { return c.Login("aa-00001", "1234") }, "0,100.0"},
		{"deposit", func() (protocol.Response, error) { return c.Deposit("aa-00001", "50.00") }, "0,150.0"},
		{"overdraft", func() (protocol.Response, error) { return c.Withdraw("aa-00001", "500.00") }, "3,150.0"},
		{"withdraw", func() (protocol.Response, error) { return c.Withdraw("aa-00001", "0.25") }, "0,149.75"},
		{"balance", func() (protocol.Response, error) { return c.Balance("aa-00001") }, "0,149.75"},
	}
	for _, s := range steps {
		resp, err := s.call()
		if err != nil {
			t.Fatalf("%s: %v", s.name, err)
		}
		if got := protocol.EncodeResponse(resp); got != s.want {
			t.Errorf("%s = %q, want %q", s.name, got, s.want)
		}
	}
}

func TestClient_ClosedConnection(t *testing.T) {
	c := pipeBank(t, nil)
	c.Close()
	_, err := c.Balance("aa-00001")
	var nerr *bankerr.NetworkError
	if !bankerr.As(err, &nerr) {
		t.Errorf("err = %v, want NetworkError", err)
	}
}

// runTeller feeds script to a teller and returns what it printed.
func runTeller(t *testing.T, c *Client, script string, attempts int) (string, error) {
	t.Helper()
	var out bytes.Buffer
	teller := NewTeller(c, strings.NewReader(script), &out, nil, attempts)
	err := teller.Run(context.Background())
	return out.String(), err
}

func TestTeller_Session(t *testing.T) {
	c := pipeBank(t, nil)
	script := strings.Join([]string{
		"aa-00001", "1234", // login
		"d", "50.00", // deposit
		"w", "500", // overdraft
		"w", "abc", // invalid amount
		"q", // unknown choice
		"B", // balance, case-insensitive
		"x",
	}, "\n") + "\n"

	out, err := runTeller(t, c, script, 3)
	if err != nil {
		t.Fatalf("Run: %v\n%s", err, out)
	}
	for _, want := range []string{
		"Your balance is 100.0.",
		"How much would you like to deposit? (You have $100.0 available)",
		"You have $150.0 available.",
		"Insufficient funds for that withdrawal.",
		"That is not a valid amount.",
		"Unrecognized choice, please try again.",
		"ATM session terminating.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTeller_LoginRetries(t *testing.T) {
	c := pipeBank(t, nil)
	// Badly formatted, then wrong PIN, then right.
	script := "nope\n12\naa-00001\n9999\naa-00001\n1234\nx\n"

	out, err := runTeller(t, c, script, 3)
	if err != nil {
		t.Fatalf("Run: %v\n%s", err, out)
	}
	if strings.Count(out, "Account number and PIN do not match.") != 2 {
		t.Errorf("expected two failures:\n%s", out)
	}
	if !strings.Contains(out, "Login attempts remaining: 1") {
		t.Errorf("missing attempts counter:\n%s", out)
	}
	if !strings.Contains(out, "credentials have been validated") {
		t.Errorf("login never succeeded:\n%s", out)
	}
}

func TestTeller_TooManyAttempts(t *testing.T) {
	c := pipeBank(t, nil)
	script := "aa-00001\n0000\naa-00001\n1111\n"

	_, err := runTeller(t, c, script, 2)
	if !bankerr.Is(err, bankerr.ErrInvalidLogin) {
		t.Errorf("err = %v, want ErrInvalidLogin", err)
	}
}

func TestTeller_AccountInUse(t *testing.T) {
	reg := session.NewRegistry()
	reg.Claim("aa-00001", 99)
	c := pipeBank(t, reg)

	out, err := runTeller(t, c, "aa-00001\n1234\n", 1)
	if err == nil {
		t.Fatal("expected login to fail")
	}
	if !strings.Contains(out, "already in use") {
		t.Errorf("output = %q", out)
	}
}

func TestTeller_EndOfInput(t *testing.T) {
	c := pipeBank(t, nil)
	// No trailing newline and no 'x': the teller just stops.
	out, err := runTeller(t, c, "aa-00001\n1234\nb", 3)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out, "You have $100.0 available.") {
		t.Errorf("balance not shown:\n%s", out)
	}
}

func TestTeller_SecretReader(t *testing.T) {
	c := pipeBank(t, nil)
	var asked string
	secret := func(prompt string) (string, error) {
		asked = prompt
		return "1234", nil
	}
	var out bytes.Buffer
	teller := NewTeller(c, strings.NewReader("aa-00001\nx\n"), &out, secret, 1)
	if err := teller.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(asked, "PIN") {
		t.Errorf("secret prompt = %q", asked)
	}
	if strings.Contains(out.String(), "1234") {
		t.Error("PIN was echoed")
	}
}

func TestTeller_Cancelled(t *testing.T) {
	c := pipeBank(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	teller := NewTeller(c, strings.NewReader(""), &bytes.Buffer{}, nil, 3)
	if err := teller.Run(ctx); err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
