package core

import (
	"context"
	"fmt"
	"net"
	"time"

	"atmbank/internal/account"
	"atmbank/internal/admin"
	"atmbank/internal/dispatch"
	"atmbank/internal/eventloop"
	"atmbank/internal/metrics"
	"atmbank/internal/session"
	"atmbank/util"
)

// ServeMode loads the accounts and runs the bank server until the
// context is cancelled.
type ServeMode struct {
	Address      string // host:port
	Multiplexer  string
	AccountsFile string
	AdminAddr    string // empty = no admin endpoint
	RequireLogin bool
	GracePeriod  time.Duration
	Logger       *util.Logger

	// OnListen, when set, is called with the bound address once the
	// server is accepting connections.
	OnListen func(addr net.Addr)
}

// Run loads the account file, binds the listener and serves.
func (m *ServeMode) Run(ctx context.Context) error {
	store := account.NewStore()
	if m.AccountsFile != "" {
		// A missing file leaves an empty bank rather than no bank.
		if _, err := store.LoadFile(m.AccountsFile, m.Logger); err != nil {
			m.Logger.Error("%v", err)
		}
	}

	registry := session.NewRegistry()
	mc := metrics.New()
	d := dispatch.New(store, registry, mc, m.Logger)
	d.RequireLogin = m.RequireLogin

	p, err := eventloop.Listen(m.Multiplexer, m.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", m.Address, err)
	}
	srv := eventloop.NewServer(p, d, mc, m.Logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var adminDone chan error
	if m.AdminAddr != "" {
		ln, err := net.Listen("tcp", m.AdminAddr)
		if err != nil {
			p.Close()
			return fmt.Errorf("admin listen on %s: %w", m.AdminAddr, err)
		}
		adm := admin.New(store, registry, mc, m.Logger, m.GracePeriod)
		adminDone = make(chan error, 1)
		go func() { adminDone <- adm.Serve(ctx, ln) }()
	}

	if m.OnListen != nil {
		m.OnListen(srv.Addr())
	}

	err = srv.Run(ctx)
	cancel()
	if adminDone != nil {
		if aerr := <-adminDone; aerr != nil {
			m.Logger.Warn("admin endpoint: %v", aerr)
		}
	}
	return err
}
