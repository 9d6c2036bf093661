// Package account holds the in-memory account records of the bank and
// the balance arithmetic applied to them.
//
// Money is carried as decimal.Decimal so that "at most two fraction
// digits" is an exact check rather than a float comparison.
package account

import (
	"strings"

	"github.com/shopspring/decimal"

	bankerr "atmbank/internal/errors"
)

// Account is a single bank account.  Number is always lower case.
type Account struct {
	Number  string
	PIN     string
	Balance decimal.Decimal
}

// ValidNumber reports whether s is formatted like an account number:
// eight characters, "AA-NNNNN", two letters, a dash, five digits.  It
// says nothing about whether the account exists.
func ValidNumber(s string) bool {
	if len(s) != 8 || s[2] != '-' {
		return false
	}
	for i := 0; i < 2; i++ {
		if !isLetter(s[i]) {
			return false
		}
	}
	return allDigits(s[3:])
}

// ValidPIN reports whether s is a four-digit PIN.
func ValidPIN(s string) bool {
	return len(s) == 4 && allDigits(s)
}

// Normalize maps an account number onto its canonical (lower case)
// spelling.  Account numbers are case-insensitive.
func Normalize(number string) string {
	return strings.ToLower(strings.TrimSpace(number))
}

// MaxIntegerDigits bounds the whole-number part of an amount or a
// balance read from text.
const MaxIntegerDigits = 15

// ParseAmount parses a transaction amount.  Amounts are plain decimal
// text: up to MaxIntegerDigits digits, optionally a point and one or two
// fraction digits ("50", "123.45").  Signs, exponents and anything
// longer are refused.
func ParseAmount(text string) (decimal.Decimal, error) {
	d, ok := parsePlain(strings.TrimSpace(text))
	if !ok || !validAmount(d) {
		return decimal.Zero, bankerr.ErrInvalidAmount
	}
	return d, nil
}

// parsePlain checks the shape of text before decimal sees it, so input
// like "1e20000000" never expands into a huge number.
func parsePlain(text string) (decimal.Decimal, bool) {
	whole, frac, hasPoint := strings.Cut(text, ".")
	if len(whole) > MaxIntegerDigits || !allDigits(whole) {
		return decimal.Zero, false
	}
	if hasPoint && (len(frac) > 2 || !allDigits(frac)) {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// Credit returns balance+amount rounded to cents.
func Credit(balance, amount decimal.Decimal) (decimal.Decimal, error) {
	if !validAmount(amount) {
		return balance, bankerr.ErrInvalidAmount
	}
	return balance.Add(amount).Round(2), nil
}

// Debit returns balance-amount rounded to cents.  The balance never goes
// below zero.
func Debit(balance, amount decimal.Decimal) (decimal.Decimal, error) {
	if !validAmount(amount) {
		return balance, bankerr.ErrInvalidAmount
	}
	if amount.GreaterThan(balance) {
		return balance, bankerr.ErrOverdraft
	}
	return balance.Sub(amount).Round(2), nil
}

func validAmount(d decimal.Decimal) bool {
	return !d.IsNegative() && d.Equal(d.Round(2))
}

func isLetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
