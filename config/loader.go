package config

// loader.go - merges every configuration source with viper.
//
// Precedence order (highest wins):
//   1. CLI flags that were set  (bound from cmd/root.go)
//   2. Environment variables    (ATMBANK_*)
//   3. Config file              (--config, any format viper reads)
//   4. Defaults                 (defaults.go)

import (
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	bankerr "atmbank/internal/errors"
)

// Load builds a Config from fs, the environment and configPath.  fs may
// be nil and configPath may be empty.  The result is not validated.
func Load(fs *flag.FlagSet, configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// ATMBANK_ACCOUNTS_FILE for key "accounts-file".
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, &bankerr.ConfigError{
				Field:   "config",
				Value:   configPath,
				Message: err.Error(),
				Hint:    "the file must be YAML, TOML or JSON with flag names as keys",
			}
		}
	}

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("binding flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key, so AutomaticEnv can find variables
// for keys that no flag or file mentions.
func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("listen", d.Listen)
	v.SetDefault("host", d.Host)
	v.SetDefault("port", d.Port)
	v.SetDefault("accounts-file", d.AccountsFile)
	v.SetDefault("multiplexer", d.Multiplexer)
	v.SetDefault("admin-addr", d.AdminAddr)
	v.SetDefault("require-login", d.RequireLogin)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("max-login-attempts", d.MaxLoginAttempts)
	v.SetDefault("tunnel", d.TunnelSpec)
	v.SetDefault("ssh-key", d.SSHKeyPath)
	v.SetDefault("ssh-password", d.SSHPassword)
	v.SetDefault("ssh-agent", d.UseSSHAgent)
	v.SetDefault("strict-hostkey", d.StrictHostKey)
	v.SetDefault("known-hosts", d.KnownHostsPath)
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("dry-run", d.DryRun)
}
