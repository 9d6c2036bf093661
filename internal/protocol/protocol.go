// Package protocol encodes and decodes the bank's wire format.
//
// Every message is a single line of comma-separated ASCII fields with
// no escaping:
//
//	l,<acct>,<pin>      login
//	b,<acct>            balance
//	d,<acct>,<amount>   deposit
//	w,<acct>,<amount>   withdraw
//
// and every reply is "<code>,<balance>", where the balance is the
// sentinel -1000 when there is nothing to report.  Decoding never
// panics: anything that does not fit is ErrMalformedRequest.
package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	bankerr "atmbank/internal/errors"
)

// Op is the first field of a request.
type Op byte

const (
	OpLogin    Op = 'l'
	OpBalance  Op = 'b'
	OpDeposit  Op = 'd'
	OpWithdraw Op = 'w'
)

func (o Op) String() string {
	switch o {
	case OpLogin:
		return "login"
	case OpBalance:
		return "balance"
	case OpDeposit:
		return "deposit"
	case OpWithdraw:
		return "withdraw"
	default:
		return fmt.Sprintf("op(%q)", byte(o))
	}
}

// arity is the field count each opcode requires, opcode included.
var arity = map[Op]int{
	OpLogin:    3,
	OpBalance:  2,
	OpDeposit:  3,
	OpWithdraw: 3,
}

// ResultCode is the first field of a response.
type ResultCode int

const (
	CodeOK            ResultCode = 0
	CodeInvalidLogin  ResultCode = 1
	CodeInvalidAmount ResultCode = 2
	CodeOverdraft     ResultCode = 3
	CodeRejected      ResultCode = 4
)

func (c ResultCode) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeInvalidLogin:
		return "invalid-login"
	case CodeInvalidAmount:
		return "invalid-amount"
	case CodeOverdraft:
		return "overdraft"
	case CodeRejected:
		return "rejected"
	default:
		return "code(" + strconv.Itoa(int(c)) + ")"
	}
}

// NoBalance is the wire sentinel sent in place of a balance.
const NoBalance = "-1000"

// Request is a decoded client request.  Arg holds the PIN for a login
// and the amount text for a deposit or withdrawal; it is empty for a
// balance check.
type Request struct {
	Op      Op
	Account string
	Arg     string
}

// Response is a result code plus an optional balance.
type Response struct {
	Code       ResultCode
	Balance    decimal.Decimal
	HasBalance bool
}

// Reply builds a response that carries a balance.
func Reply(code ResultCode, balance decimal.Decimal) Response {
	return Response{Code: code, Balance: balance, HasBalance: true}
}

// Reject builds a response without a balance.
func Reject(code ResultCode) Response {
	return Response{Code: code}
}

// DecodeRequest parses one request line.
func DecodeRequest(msg string) (Request, error) {
	fields := strings.Split(strings.TrimSpace(msg), ",")
	if len(fields) < 2 || len(fields) > 3 {
		return Request{}, bankerr.ErrMalformedRequest
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
		if fields[i] == "" {
			return Request{}, bankerr.ErrMalformedRequest
		}
	}
	if len(fields[0]) != 1 {
		return Request{}, bankerr.ErrMalformedRequest
	}

	op := Op(fields[0][0])
	want, ok := arity[op]
	if !ok || want != len(fields) {
		return Request{}, bankerr.ErrMalformedRequest
	}

	req := Request{Op: op, Account: fields[1]}
	if len(fields) == 3 {
		req.Arg = fields[2]
	}
	return req, nil
}

// EncodeRequest renders r as a request line.
func EncodeRequest(r Request) string {
	if r.Arg == "" {
		return string(r.Op) + "," + r.Account
	}
	return string(r.Op) + "," + r.Account + "," + r.Arg
}

// EncodeResponse renders r as a response line.
func EncodeResponse(r Response) string {
	bal := NoBalance
	if r.HasBalance {
		bal = FormatBalance(r.Balance)
	}
	return strconv.Itoa(int(r.Code)) + "," + bal
}

// DecodeResponse parses a response line.
func DecodeResponse(msg string) (Response, error) {
	fields := strings.Split(strings.TrimSpace(msg), ",")
	if len(fields) != 2 {
		return Response{}, fmt.Errorf("response %q: %w", msg, bankerr.ErrMalformedRequest)
	}
	code, err := strconv.Atoi(fields[0])
	if err != nil || code < int(CodeOK) || code > int(CodeRejected) {
		return Response{}, fmt.Errorf("response code %q: %w", fields[0], bankerr.ErrMalformedRequest)
	}
	if fields[1] == NoBalance {
		return Reject(ResultCode(code)), nil
	}
	bal, err := decimal.NewFromString(fields[1])
	if err != nil {
		return Response{}, fmt.Errorf("response balance %q: %w", fields[1], bankerr.ErrMalformedRequest)
	}
	return Reply(ResultCode(code), bal), nil
}

// FormatBalance renders a balance the way the bank always has: cents
// rounded, trailing zeros dropped, at least one fraction digit
// ("100.0", "150.5", "123.45").
func FormatBalance(d decimal.Decimal) string {
	s := d.Round(2).String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// Split turns the bytes of one read into messages.  A read is normally
// one message; newline-terminated lines are treated as separate
// messages so line-oriented tools work too.  Blank lines are dropped.
func Split(buf []byte) []string {
	var out []string
	for _, line := range strings.Split(string(buf), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
