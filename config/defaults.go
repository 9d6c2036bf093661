package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultHost is where the server binds and where the ATM dials.
	DefaultHost = "127.0.0.1"

	// DefaultPort is the bank's TCP port.
	DefaultPort = 65432

	// DefaultAccountsFile is read at server startup.
	DefaultAccountsFile = "accounts.txt"

	// DefaultMultiplexer picks epoll on Linux and goroutines elsewhere.
	DefaultMultiplexer = "auto"

	// DefaultMaxLoginAttempts is how many times the ATM lets a customer
	// retry the account number and PIN before giving up.
	DefaultMaxLoginAttempts = 3

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultConnTimeout is the TCP/SSH connection timeout.
	DefaultConnTimeout = 30 * time.Second

	// DefaultGracePeriod is how long the admin endpoint gets to drain
	// on shutdown.
	DefaultGracePeriod = 5 * time.Second

	// EnvPrefix prefixes every environment variable, e.g. ATMBANK_PORT.
	EnvPrefix = "ATMBANK"
)

// Defaults returns a Config holding every default value.
func Defaults() Config {
	return Config{
		Host:             DefaultHost,
		Port:             DefaultPort,
		AccountsFile:     DefaultAccountsFile,
		Multiplexer:      DefaultMultiplexer,
		MaxLoginAttempts: DefaultMaxLoginAttempts,
	}
}
