package session

import "sync"

// Registry maps each logged-in account number to the session holding
// it.  An account appears at most once; a second session can never
// claim it until the first lets go.
type Registry struct {
	mu      sync.Mutex
	holders map[string]ID
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{holders: make(map[string]ID)}
}

// Claim binds account to id.  The check and the insert are one critical
// section.  It returns true when id now holds the account, including
// the case where it already did.
func (r *Registry) Claim(account string, id ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if holder, ok := r.holders[account]; ok {
		return holder == id
	}
	r.holders[account] = id
	return true
}

// Holder returns the session holding account, if any.
func (r *Registry) Holder(account string) (ID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.holders[account]
	return id, ok
}

// HeldByOther reports whether account is held by a session other than id.
func (r *Registry) HeldByOther(account string, id ID) bool {
	holder, ok := r.Holder(account)
	return ok && holder != id
}

// Release drops the entry for account if id holds it.  Releasing an
// account held by somebody else is a no-op that returns false.
func (r *Registry) Release(account string, id ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if holder, ok := r.holders[account]; ok && holder == id {
		delete(r.holders, account)
		return true
	}
	return false
}

// Len returns the number of accounts currently logged in.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.holders)
}
