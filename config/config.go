// Package config defines the runtime configuration for atmbank and the
// helpers that parse and validate it.
package config

import (
	"fmt"
	"net"
	"reflect"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	bankerr "atmbank/internal/errors"
)

// Config holds every tuneable for one atmbank process, server or ATM.
// The mapstructure keys are the long flag names so one viper key serves
// the flag, the ATMBANK_* variable and the config file.
type Config struct {
	// ── Mode ─────────────────────────────────────────────────────────
	Listen bool `mapstructure:"listen"`

	// ── Address ──────────────────────────────────────────────────────
	Host string `mapstructure:"host" validate:"required"` // bind address (-l) or server host
	Port int    `mapstructure:"port" validate:"min=1,max=65535"`

	// ── Server ───────────────────────────────────────────────────────
	AccountsFile   string `mapstructure:"accounts-file"`
	Multiplexer    string `mapstructure:"multiplexer" validate:"oneof=auto epoll goroutine"`
	AdminAddr      string `mapstructure:"admin-addr" validate:"omitempty,hostname_port"`
	RequireLogin   bool   `mapstructure:"require-login"`

	// ── ATM client ───────────────────────────────────────────────────
	Timeout          int `mapstructure:"timeout" validate:"gte=0"` // seconds, 0 = default
	MaxLoginAttempts int `mapstructure:"max-login-attempts" validate:"min=1"`

	// ── SSH tunnel ───────────────────────────────────────────────────
	TunnelSpec     string `mapstructure:"tunnel"` // raw user@host[:port] from -T
	SSHKeyPath     string `mapstructure:"ssh-key"`
	SSHPassword    bool   `mapstructure:"ssh-password"` // true → prompt interactively
	UseSSHAgent    bool   `mapstructure:"ssh-agent"`
	StrictHostKey  bool   `mapstructure:"strict-hostkey"`
	KnownHostsPath string `mapstructure:"known-hosts"`

	// Filled in from TunnelSpec by ApplyTunnelSpec.
	TunnelEnabled bool   `mapstructure:"-"`
	TunnelUser    string `mapstructure:"-"`
	TunnelHost    string `mapstructure:"-"`
	TunnelPort    int    `mapstructure:"-"`

	// ── Output ───────────────────────────────────────────────────────
	Verbose int  `mapstructure:"verbose" validate:"gte=0"`
	DryRun  bool `mapstructure:"dry-run"`
}

// Address returns host:port.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ConnTimeout is the dial timeout for the ATM client.
func (c *Config) ConnTimeout() time.Duration {
	if c.Timeout > 0 {
		return time.Duration(c.Timeout) * time.Second
	}
	return DefaultConnTimeout
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:@]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "teller@gateway.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q – expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	return user, host, port, nil
}

// ApplyTunnelSpec parses TunnelSpec, if set, into the Tunnel* fields.
func (c *Config) ApplyTunnelSpec() error {
	if c.TunnelSpec == "" {
		c.TunnelEnabled = false
		return nil
	}
	user, host, port, err := ParseTunnelSpec(c.TunnelSpec)
	if err != nil {
		return &bankerr.ConfigError{
			Field:   "tunnel",
			Value:   c.TunnelSpec,
			Message: err.Error(),
			Hint:    "use user@gateway or user@gateway:2222",
		}
	}
	c.TunnelEnabled = true
	c.TunnelUser = user
	c.TunnelHost = host
	c.TunnelPort = port
	return nil
}

// ── Validation ───────────────────────────────────────────────────────

// validate is the shared validator instance.  It reports fields by
// their mapstructure key, which is also the long flag name.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks struct tags first, then the rules that tags cannot
// express.  Errors are *errors.ConfigError with a hint where one helps.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}

	if c.Listen {
		if c.AccountsFile == "" {
			return &bankerr.ConfigError{
				Field:   "accounts-file",
				Message: "listen mode needs an accounts file",
				Hint:    "pass -a accounts.txt",
			}
		}
		if c.TunnelEnabled {
			return &bankerr.ConfigError{
				Field:   "tunnel",
				Value:   c.TunnelSpec,
				Message: "the server cannot listen through an SSH tunnel",
				Hint:    "run the server on the gateway's network and point the ATM at it with -T",
			}
		}
		if c.Multiplexer == "epoll" && runtime.GOOS != "linux" {
			return &bankerr.ConfigError{
				Field:   "multiplexer",
				Value:   c.Multiplexer,
				Message: "epoll is only available on Linux",
				Hint:    "use --multiplexer=auto or --multiplexer=goroutine",
			}
		}
		return nil
	}

	if c.AdminAddr != "" {
		return &bankerr.ConfigError{
			Field:   "admin-addr",
			Value:   c.AdminAddr,
			Message: "the admin endpoint belongs to the server",
			Hint:    "add -l to run the server",
		}
	}
	if c.TunnelEnabled && c.TunnelHost == "" {
		return &bankerr.ConfigError{Field: "tunnel", Message: "tunnel host is required"}
	}
	return nil
}

// formatValidationError turns the first validator failure into a
// ConfigError naming the flag.
func formatValidationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err
	}
	e := verrs[0]
	field := e.Field()
	cerr := &bankerr.ConfigError{
		Field:   field,
		Value:   e.Value(),
		Message: fmt.Sprintf("failed the %q check", e.Tag()),
	}
	switch e.Tag() {
	case "min", "max":
		if field == "port" {
			cerr.Message = "port must be between 1 and 65535"
			cerr.Hint = fmt.Sprintf("the bank listens on %d by default", DefaultPort)
		} else {
			cerr.Message = fmt.Sprintf("must be at least %s", e.Param())
		}
	case "oneof":
		cerr.Message = "must be one of " + e.Param()
	case "hostname_port":
		cerr.Message = "must be host:port"
		cerr.Hint = "for example 127.0.0.1:8080"
	case "required":
		cerr.Value = nil
		cerr.Message = "is required"
	}
	return cerr
}
