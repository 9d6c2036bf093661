// Package dispatch turns one decoded request into one response.
//
// A Dispatcher is driven from a single event-loop goroutine.  It owns no
// connection state of its own: the caller passes the current Session in
// and stores the Session that comes back.
package dispatch

import (
	"github.com/shopspring/decimal"

	"atmbank/internal/account"
	bankerr "atmbank/internal/errors"
	"atmbank/internal/metrics"
	"atmbank/internal/protocol"
	"atmbank/internal/session"
	"atmbank/util"
)

// Dispatcher applies requests to the account store and the login
// registry.
type Dispatcher struct {
	Store    *account.Store
	Registry *session.Registry
	Metrics  *metrics.Collector // may be nil
	Logger   *util.Logger

	// RequireLogin restricts balance, deposit and withdraw to the account
	// the session is logged into.  When false, the default, any account
	// not held by another session may be used.
	RequireLogin bool
}

// New returns a dispatcher over store and registry.  RequireLogin is off.
func New(store *account.Store, registry *session.Registry, m *metrics.Collector, logger *util.Logger) *Dispatcher {
	if logger == nil {
		logger = util.NewLogger(0)
	}
	return &Dispatcher{
		Store:    store,
		Registry: registry,
		Metrics:  m,
		Logger:   logger,
	}
}

// Handle processes one raw message for sess.  It never fails: every
// problem with the request becomes a result code.
func (d *Dispatcher) Handle(raw string, sess session.Session) (protocol.Response, session.Session) {
	log := d.Logger.With(sess.ID.String() + ": ")

	req, err := protocol.DecodeRequest(raw)
	if err != nil {
		log.Debug("%q: %v", raw, err)
		return d.done(protocol.Reject(protocol.CodeRejected)), sess
	}
	req.Account = account.Normalize(req.Account)

	if d.Registry.HeldByOther(req.Account, sess.ID) {
		log.Verbose("%s %s: %v", req.Op, req.Account, bankerr.ErrAccountInUse)
		return d.done(protocol.Reject(protocol.CodeRejected)), sess
	}

	var resp protocol.Response
	switch req.Op {
	case protocol.OpLogin:
		resp, sess = d.login(log, req, sess)
	default:
		resp = d.transact(log, req, sess)
	}
	log.Debug("%s -> %s", protocol.EncodeRequest(maskPIN(req)), protocol.EncodeResponse(resp))
	return d.done(resp), sess
}

// Disconnect releases the account sess was logged into, if any.
func (d *Dispatcher) Disconnect(sess session.Session) {
	if !sess.LoggedIn() {
		return
	}
	if d.Registry.Release(sess.Account(), sess.ID) {
		d.Logger.Verbose("%s: logged out of %s", sess.ID, sess.Account())
	}
}

func (d *Dispatcher) login(log *util.Logger, req protocol.Request, sess session.Session) (protocol.Response, session.Session) {
	acct, found := d.Store.Lookup(req.Account)
	credentialsOK := found && acct.PIN == req.Arg

	if sess.LoggedIn() {
		// Repeating the login that bound this session is harmless.
		if sess.Holds(req.Account) && credentialsOK {
			return protocol.Reply(protocol.CodeOK, acct.Balance), sess
		}
		log.Verbose("login %s: %v", req.Account, bankerr.ErrAlreadyLoggedIn)
		return protocol.Reject(protocol.CodeRejected), sess
	}

	if !credentialsOK {
		log.Verbose("login %s: %v", req.Account, bankerr.ErrInvalidLogin)
		return protocol.Reject(protocol.CodeInvalidLogin), sess
	}
	if !d.Registry.Claim(acct.Number, sess.ID) {
		// Lost a race with another session between the check and here.
		log.Verbose("login %s: %v", req.Account, bankerr.ErrAccountInUse)
		return protocol.Reject(protocol.CodeRejected), sess
	}

	log.Verbose("logged in as %s", acct.Number)
	d.Metrics.LoginSucceeded()
	return protocol.Reply(protocol.CodeOK, acct.Balance), sess.WithLogin(acct.Number)
}

func (d *Dispatcher) transact(log *util.Logger, req protocol.Request, sess session.Session) protocol.Response {
	if d.RequireLogin && !sess.Holds(req.Account) {
		log.Verbose("%s %s: %v", req.Op, req.Account, bankerr.ErrNotLoggedIn)
		return protocol.Reject(protocol.CodeRejected)
	}
	acct, ok := d.Store.Lookup(req.Account)
	if !ok {
		log.Verbose("%s %s: %v", req.Op, req.Account, bankerr.ErrAccountNotFound)
		return protocol.Reject(protocol.CodeRejected)
	}

	if req.Op == protocol.OpBalance {
		return protocol.Reply(protocol.CodeOK, acct.Balance)
	}

	amount, err := account.ParseAmount(req.Arg)
	if err != nil {
		log.Verbose("%s %s %q: %v", req.Op, req.Account, req.Arg, err)
		return protocol.Reject(protocol.CodeInvalidAmount)
	}

	var balance decimal.Decimal
	if req.Op == protocol.OpDeposit {
		balance, err = d.Store.Deposit(acct.Number, amount)
	} else {
		balance, err = d.Store.Withdraw(acct.Number, amount)
	}
	switch {
	case err == nil:
		log.Verbose("%s %s on %s, balance %s", req.Op, amount, acct.Number, protocol.FormatBalance(balance))
		return protocol.Reply(protocol.CodeOK, balance)
	case bankerr.Is(err, bankerr.ErrOverdraft):
		log.Verbose("%s %s on %s: %v", req.Op, amount, acct.Number, err)
		return protocol.Reply(protocol.CodeOverdraft, balance)
	case bankerr.Is(err, bankerr.ErrInvalidAmount):
		return protocol.Reject(protocol.CodeInvalidAmount)
	default:
		log.Verbose("%s %s: %v", req.Op, acct.Number, err)
		return protocol.Reject(protocol.CodeRejected)
	}
}

func (d *Dispatcher) done(resp protocol.Response) protocol.Response {
	d.Metrics.RequestHandled(resp.Code)
	return resp
}

func maskPIN(req protocol.Request) protocol.Request {
	if req.Op == protocol.OpLogin {
		req.Arg = "****"
	}
	return req
}
