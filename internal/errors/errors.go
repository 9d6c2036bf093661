// Package errors provides domain-specific error types for atmbank.
//
// Per-request failures are plain sentinels that the dispatcher maps onto
// wire result codes.  Infrastructure failures carry structured context
// (operation, address, line number) for better diagnostics than plain
// string wrapping.
package errors

import (
	"errors"
	"fmt"
)

// ── Sentinel errors ──────────────────────────────────────────────────

// Request outcomes.
var (
	ErrMalformedRequest = errors.New("malformed request")
	ErrInvalidLogin     = errors.New("invalid account number or PIN")
	ErrAlreadyLoggedIn  = errors.New("session already logged in")
	ErrAccountInUse     = errors.New("account is held by another session")
	ErrNotLoggedIn      = errors.New("session is not logged in to this account")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrOverdraft        = errors.New("insufficient funds")
	ErrAccountNotFound  = errors.New("account not found")
)

// Load-time record problems.
var (
	ErrDuplicateAccount = errors.New("duplicate account")
	ErrInvalidAccount   = errors.New("invalid account number format")
	ErrInvalidPIN       = errors.New("invalid PIN format")
	ErrInvalidBalance   = errors.New("invalid balance")
	ErrFieldCount       = errors.New("wrong number of fields")
	ErrRecordTooLong    = errors.New("record too long")
)

// Runtime.
var (
	ErrNotConnected = errors.New("not connected")
	ErrUnsupported  = errors.New("not supported on this platform")
	ErrClosed       = errors.New("poller is closed")
)

// ── Structured error types ───────────────────────────────────────────

// NetworkError represents a failure in a network operation.
type NetworkError struct {
	Op   string // operation: "dial", "listen", "accept", "write", "read"
	Addr string // network address involved
	Err  error  // underlying error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// SSHError represents an SSH-specific failure with host context.
type SSHError struct {
	Op   string // "handshake", "auth", "hostkey"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// LoadError describes a rejected record in the account file.
type LoadError struct {
	Line   int    // 1-based line number
	Record string // the raw line, trimmed
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("line %d %q: %v", e.Line, e.Record, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a NetworkError.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{Op: op, Addr: addr, Err: err}
}

// WrapSSH creates an SSHError.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

// ── Re-exports for convenience ───────────────────────────────────────
//
// These allow callers to use atmbank/internal/errors as a drop-in
// replacement for the standard library in common operations.

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
