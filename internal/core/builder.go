package core

import (
	"atmbank/config"
	"atmbank/internal/transport"
	"atmbank/tunnel"
	"atmbank/util"
)

// Build constructs the appropriate Mode from a validated configuration.
func Build(cfg *config.Config, logger *util.Logger) (Mode, error) {
	if logger == nil {
		logger = util.NewLogger(cfg.Verbose)
	}
	if cfg.Listen {
		return buildServe(cfg, logger), nil
	}
	return buildATM(cfg, logger), nil
}

// ── mode builders ────────────────────────────────────────────────────

func buildServe(cfg *config.Config, logger *util.Logger) *ServeMode {
	return &ServeMode{
		Address:      cfg.Address(),
		Multiplexer:  cfg.Multiplexer,
		AccountsFile: cfg.AccountsFile,
		AdminAddr:    cfg.AdminAddr,
		RequireLogin: cfg.RequireLogin,
		GracePeriod:  config.DefaultGracePeriod,
		Logger:       logger,
	}
}

func buildATM(cfg *config.Config, logger *util.Logger) *ATMMode {
	return &ATMMode{
		Dialer:      buildDialer(cfg, logger),
		Address:     cfg.Address(),
		Timeout:     cfg.ConnTimeout(),
		MaxAttempts: cfg.MaxLoginAttempts,
		Logger:      logger,
	}
}

// ── shared helpers ───────────────────────────────────────────────────

// buildDialer picks a plain TCP dialer or one that goes through the
// SSH gateway named by -T.
func buildDialer(cfg *config.Config, logger *util.Logger) transport.Dialer {
	if cfg.TunnelEnabled {
		return transport.NewSSHDialer(&tunnel.SSHConfig{
			User:          cfg.TunnelUser,
			Host:          cfg.TunnelHost,
			Port:          cfg.TunnelPort,
			KeyPath:       cfg.SSHKeyPath,
			PromptPass:    cfg.SSHPassword,
			UseAgent:      cfg.UseSSHAgent,
			StrictHostKey: cfg.StrictHostKey,
			KnownHosts:    cfg.KnownHostsPath,
			ConnTimeout:   cfg.ConnTimeout(),
		}, logger)
	}
	return &transport.TCPDialer{Timeout: cfg.ConnTimeout()}
}
