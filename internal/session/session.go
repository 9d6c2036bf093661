// Package session represents the server-side state of one client
// connection and the process-wide table of who is logged in where.
//
// A Session is a small value owned by the event loop.  Handlers never
// mutate it in place; they return the next Session and the loop stores
// it.  The Registry is the only state shared between sessions and has
// its own lock.
package session

import "fmt"

// ID identifies a session.  IDs increase monotonically for the life of
// the process and are never reused.
type ID uint64

func (id ID) String() string { return fmt.Sprintf("session %d", uint64(id)) }

// Session is the login state of one connection.
//
//	Anonymous --login--> Authenticated --disconnect--> (gone)
type Session struct {
	ID      ID
	Remote  string // peer address, for logs
	account string // empty while anonymous
}

// New creates an anonymous session.
func New(id ID, remote string) Session {
	return Session{ID: id, Remote: remote}
}

// LoggedIn reports whether the session has authenticated.
func (s Session) LoggedIn() bool { return s.account != "" }

// Account returns the bound account number, or "" when anonymous.
func (s Session) Account() string { return s.account }

// Holds reports whether the session is logged into account.
func (s Session) Holds(account string) bool {
	return s.account != "" && s.account == account
}

// WithLogin returns a copy of s bound to account.
func (s Session) WithLogin(account string) Session {
	s.account = account
	return s
}

// Sequence hands out session IDs.  It is used only by the event loop
// goroutine.
type Sequence struct {
	last ID
}

// Next returns a fresh ID, starting at 1.
func (q *Sequence) Next() ID {
	q.last++
	return q.last
}
