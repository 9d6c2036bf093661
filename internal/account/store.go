package account

import (
	"sync"

	"github.com/shopspring/decimal"

	bankerr "atmbank/internal/errors"
)

// Store is the in-memory account table.  Accounts are added once at
// startup and never removed; only balances change afterwards.
//
// The event loop is the only writer, but the mutex keeps reads from the
// admin endpoint and tests safe.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*Account
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{accounts: make(map[string]*Account)}
}

// Add inserts a new account.  Existing accounts are never overwritten.
func (s *Store) Add(number, pin string, balance decimal.Decimal) error {
	number = Normalize(number)
	switch {
	case !ValidNumber(number):
		return bankerr.ErrInvalidAccount
	case !ValidPIN(pin):
		return bankerr.ErrInvalidPIN
	case !validAmount(balance):
		return bankerr.ErrInvalidBalance
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[number]; ok {
		return bankerr.ErrDuplicateAccount
	}
	s.accounts[number] = &Account{Number: number, PIN: pin, Balance: balance.Round(2)}
	return nil
}

// Lookup returns a copy of the account.  A badly formatted number is
// reported exactly like a missing one.
func (s *Store) Lookup(number string) (Account, bool) {
	number = Normalize(number)
	if !ValidNumber(number) {
		return Account{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[number]
	if !ok {
		return Account{}, false
	}
	return *a, true
}

// Deposit credits amount to the account and returns the new balance.
// On error the returned balance is the unchanged one.
func (s *Store) Deposit(number string, amount decimal.Decimal) (decimal.Decimal, error) {
	return s.apply(number, amount, Credit)
}

// Withdraw debits amount from the account and returns the new balance.
// On error the returned balance is the unchanged one.
func (s *Store) Withdraw(number string, amount decimal.Decimal) (decimal.Decimal, error) {
	return s.apply(number, amount, Debit)
}

func (s *Store) apply(number string, amount decimal.Decimal,
	op func(balance, amount decimal.Decimal) (decimal.Decimal, error)) (decimal.Decimal, error) {
	number = Normalize(number)
	if !ValidNumber(number) {
		return decimal.Zero, bankerr.ErrAccountNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[number]
	if !ok {
		return decimal.Zero, bankerr.ErrAccountNotFound
	}
	next, err := op(a.Balance, amount)
	if err != nil {
		return a.Balance, err
	}
	a.Balance = next
	return next, nil
}

// Len returns the number of accounts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}
