// Package core is the orchestration layer.  It composes the account
// store, dispatcher, event loop and transports into the two things an
// atmbank process can be, and provides a builder that picks one from a
// Config.
//
// Architecture layers (bottom → top):
//
//	account, session, protocol  →  dispatch  →  eventloop / atm  →  core  →  cmd (CLI)
package core

import "context"

// Mode is a complete operational mode of atmbank: the bank server or
// the ATM client.  Each mode owns its full lifecycle from setup to
// teardown.
type Mode interface {
	Run(ctx context.Context) error
}
