package atm

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/term"

	"atmbank/internal/account"
	bankerr "atmbank/internal/errors"
	"atmbank/internal/protocol"
)

// SecretReader reads a line without echoing it.
type SecretReader func(prompt string) (string, error)

// TerminalSecret reads secrets from the terminal on fd with echo off.
// Prompts go to out.
func TerminalSecret(fd int, out io.Writer) SecretReader {
	return func(prompt string) (string, error) {
		fmt.Fprint(out, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

// Teller runs one customer's visit: login, then transactions until the
// customer chooses to leave.
type Teller struct {
	client      *Client
	in          *bufio.Reader
	out         io.Writer
	secret      SecretReader
	maxAttempts int
}

// NewTeller returns a teller talking to client and to the customer
// through in and out.  secret reads the PIN; nil reads it from in like
// any other line.
func NewTeller(client *Client, in io.Reader, out io.Writer, secret SecretReader, maxAttempts int) *Teller {
	t := &Teller{
		client:      client,
		in:          bufio.NewReader(in),
		out:         out,
		secret:      secret,
		maxAttempts: maxAttempts,
	}
	if t.secret == nil {
		t.secret = func(prompt string) (string, error) { return t.prompt(prompt) }
	}
	if t.maxAttempts < 1 {
		t.maxAttempts = 1
	}
	return t
}

// Run logs the customer in and serves transactions.  It returns nil when
// the customer exits or input ends, and an error if login fails or the
// connection to the bank breaks.
func (t *Teller) Run(ctx context.Context) error {
	acct, err := t.login(ctx)
	if err != nil {
		return err
	}
	if err := t.transactions(ctx, acct); err != nil {
		return err
	}
	fmt.Fprintln(t.out, "ATM session terminating.")
	return nil
}

func (t *Teller) login(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		acct, err := t.prompt("Please enter your account number: ")
		if err != nil {
			return "", err
		}
		pin, err := t.secret("Please enter your four digit PIN: ")
		if err != nil {
			return "", err
		}
		acct = strings.TrimSpace(acct)
		pin = strings.TrimSpace(pin)

		left := t.maxAttempts - attempt
		// Badly formatted credentials never reach the bank.
		if !account.ValidNumber(acct) || !account.ValidPIN(pin) {
			t.loginFailed("Account number and PIN do not match.", left)
			continue
		}

		resp, err := t.client.Login(acct, pin)
		if err != nil {
			return "", err
		}
		switch resp.Code {
		case protocol.CodeOK:
			fmt.Fprintf(t.out, "Thank you, your credentials have been validated. Your balance is %s.\n",
				protocol.FormatBalance(resp.Balance))
			return acct, nil
		case protocol.CodeRejected:
			t.loginFailed("That account is already in use.", left)
		default:
			t.loginFailed("Account number and PIN do not match.", left)
		}
	}
	return "", fmt.Errorf("%d login attempts: %w", t.maxAttempts, bankerr.ErrInvalidLogin)
}

func (t *Teller) loginFailed(msg string, left int) {
	if left > 0 {
		fmt.Fprintf(t.out, "%s Please try again. Login attempts remaining: %d\n", msg, left)
		return
	}
	fmt.Fprintln(t.out, msg)
}

func (t *Teller) transactions(ctx context.Context, acct string) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprintln(t.out, "Select a transaction. Enter 'd' to deposit, 'w' to withdraw, 'b' to check balance, or 'x' to exit.")
		choice, err := t.prompt("Your choice? ")
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		var resp protocol.Response
		switch strings.ToLower(strings.TrimSpace(choice)) {
		case "x":
			return nil
		case "b":
			resp, err = t.client.Balance(acct)
		case "d":
			resp, err = t.transfer(acct, "deposit", t.client.Deposit)
		case "w":
			resp, err = t.transfer(acct, "withdraw", t.client.Withdraw)
		default:
			fmt.Fprintln(t.out, "Unrecognized choice, please try again.")
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		t.report(resp)
	}
}

// transfer shows the balance, asks for an amount and sends it.
func (t *Teller) transfer(acct, verb string, send func(acct, amount string) (protocol.Response, error)) (protocol.Response, error) {
	bal, err := t.client.Balance(acct)
	if err != nil {
		return protocol.Response{}, err
	}
	amount, err := t.prompt(fmt.Sprintf("How much would you like to %s? (You have $%s available)\n",
		verb, protocol.FormatBalance(bal.Balance)))
	if err != nil {
		return protocol.Response{}, err
	}
	return send(acct, strings.TrimSpace(amount))
}

func (t *Teller) report(resp protocol.Response) {
	switch resp.Code {
	case protocol.CodeOK:
	case protocol.CodeInvalidAmount:
		fmt.Fprintln(t.out, "That is not a valid amount. Amounts are positive with at most two decimal places.")
	case protocol.CodeOverdraft:
		fmt.Fprintln(t.out, "Insufficient funds for that withdrawal.")
	default:
		fmt.Fprintln(t.out, "The bank rejected the request.")
		return
	}
	if resp.HasBalance {
		fmt.Fprintf(t.out, "You have $%s available.\n", protocol.FormatBalance(resp.Balance))
	}
}

// prompt writes p and reads one line.  A last line without a newline
// is still returned; io.EOF comes only when nothing was read.
func (t *Teller) prompt(p string) (string, error) {
	fmt.Fprint(t.out, p)
	line, err := t.in.ReadString('\n')
	if err == io.EOF && line != "" {
		err = nil
	}
	return strings.TrimRight(line, "\r\n"), err
}
