// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	flag "github.com/spf13/pflag"

	"atmbank/config"
	"atmbank/internal/core"
	"atmbank/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X atmbank/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Execute parses args and runs the bank server or the ATM client.
func Execute(ctx context.Context, args []string) error {
	d := config.Defaults()
	fs := flag.NewFlagSet("atmbank", flag.ContinueOnError)

	// ── server ───────────────────────────────────────────────────
	fs.BoolP("listen", "l", false, "Run the bank server")
	fs.IntP("port", "p", d.Port, "Server port")
	fs.StringP("accounts-file", "a", d.AccountsFile, "Account file to load at startup (with -l)")
	fs.String("multiplexer", d.Multiplexer, "Readiness multiplexer: auto, epoll or goroutine")
	fs.String("admin-addr", "", "Serve /health and /metrics on this address (with -l)")
	fs.Bool("require-login", false, "Only allow b/d/w on the account the connection logged into")

	// ── ATM client ───────────────────────────────────────────────
	fs.IntP("timeout", "w", 0, "Connect and request timeout in seconds")
	fs.Int("max-login-attempts", d.MaxLoginAttempts, "Login attempts before the ATM gives up")

	// ── SSH tunnel ───────────────────────────────────────────────
	fs.StringP("tunnel", "T", "", "Reach the bank via SSH gateway [user@]host[:port]")
	fs.String("ssh-key", "", "SSH private key file")
	fs.Bool("ssh-password", false, "Prompt for SSH password")
	fs.Bool("ssh-agent", false, "Use SSH agent")
	fs.Bool("strict-hostkey", false, "Verify SSH host keys")
	fs.String("known-hosts", "", "Custom known_hosts path")

	// ── output ───────────────────────────────────────────────────
	fs.CountP("verbose", "v", "Increase verbosity (repeatable)")
	fs.Bool("dry-run", false, "Validate the configuration and exit")

	var configPath string
	var showVersion, showHelp bool
	fs.StringVar(&configPath, "config", "", "Config file (YAML, TOML or JSON)")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Printf("atmbank %s\n", version)
		return nil
	}

	cfg, err := config.Load(fs, configPath)
	if err != nil {
		return err
	}

	// ── positional arguments ─────────────────────────────────────
	if err := parsePositional(cfg, fs.Args()); err != nil {
		return err
	}

	// ── tunnel spec ──────────────────────────────────────────────
	if err := cfg.ApplyTunnelSpec(); err != nil {
		return err
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.DryRun {
		printSummary(cfg)
		return nil
	}

	// ── build and run ────────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	if cfg.Listen {
		logger.SetTimestamps(true)
	}
	mode, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}
	return mode.Run(ctx)
}

// ── helpers ──────────────────────────────────────────────────────────

// parsePositional applies [host] for the server and [host] [port] for
// the ATM on top of whatever the flags and environment said.
func parsePositional(cfg *config.Config, remaining []string) error {
	limit := 2
	if cfg.Listen {
		limit = 1
	}
	if len(remaining) > limit {
		if cfg.Listen {
			return fmt.Errorf("too many arguments for listen mode (use -p for the port)")
		}
		return fmt.Errorf("too many arguments: expected [host] [port]")
	}

	if len(remaining) >= 1 {
		cfg.Host = remaining[0]
	}
	if len(remaining) == 2 {
		port, err := strconv.Atoi(remaining[1])
		if err != nil {
			return fmt.Errorf("port %q: not a number", remaining[1])
		}
		cfg.Port = port
	}
	return nil
}

func printSummary(cfg *config.Config) {
	mode := "atm"
	if cfg.Listen {
		mode = "server"
	}
	fmt.Printf("configuration OK: %s %s\n", mode, cfg.Address())
	if cfg.Listen {
		fmt.Printf("  accounts file: %s\n", cfg.AccountsFile)
		fmt.Printf("  multiplexer:   %s\n", cfg.Multiplexer)
		if cfg.AdminAddr != "" {
			fmt.Printf("  admin:         %s\n", cfg.AdminAddr)
		}
		return
	}
	if cfg.TunnelEnabled {
		fmt.Printf("  tunnel:        %s@%s:%d\n", cfg.TunnelUser, cfg.TunnelHost, cfg.TunnelPort)
	}
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `atmbank – ACME bank server and ATM client v%s

Usage:
  atmbank -l [options] [bind-host]              Run the bank server
  atmbank [options] [host] [port]               Run the ATM client
  atmbank -T user@gateway [host] [port]         ATM client through SSH

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Environment:
  Every option can also be set as %s_<OPTION>, e.g. %s_ACCOUNTS_FILE.

Examples:
  atmbank -l -a accounts.txt                    Serve on 127.0.0.1:65432
  atmbank -l -p 9000 --admin-addr :8080 0.0.0.0 Serve on all interfaces
  atmbank                                       ATM against the local bank
  atmbank bank.example.com 9000                 ATM against a remote bank
  atmbank -T teller@bastion 10.0.0.5            ATM through an SSH gateway
`, config.EnvPrefix, config.EnvPrefix)
}
