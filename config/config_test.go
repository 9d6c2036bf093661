package config

import (
	"runtime"
	"strings"
	"testing"
	"time"

	bankerr "atmbank/internal/errors"
)

// ── ParseTunnelSpec ──────────────────────────────────────────────────

func TestParseTunnelSpec(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantUser string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{"full", "teller@gateway.example.com:2222", "teller", "gateway.example.com", 2222, false},
		{"no port", "root@gateway", "root", "gateway", 22, false},
		{"no user", "jump-host:2200", "", "jump-host", 2200, false},
		{"host only", "gateway.local", "", "gateway.local", 22, false},
		{"bad port", "user@host:999999", "", "", 0, true},
		{"port zero", "host:0", "", "", 0, true},
		{"empty", "", "", "", 0, true},
		{"colon only", ":", "", "", 0, true},
		{"no host", "user@", "", "", 0, true},
		{"no host before colon", ":22", "", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, host, port, err := ParseTunnelSpec(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr = %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if user != tt.wantUser || host != tt.wantHost || port != tt.wantPort {
				t.Errorf("got (%q, %q, %d), want (%q, %q, %d)",
					user, host, port, tt.wantUser, tt.wantHost, tt.wantPort)
			}
		})
	}
}

func TestApplyTunnelSpec(t *testing.T) {
	cfg := Defaults()
	cfg.TunnelSpec = "teller@gw:2200"
	if err := cfg.ApplyTunnelSpec(); err != nil {
		t.Fatal(err)
	}
	if !cfg.TunnelEnabled || cfg.TunnelUser != "teller" || cfg.TunnelHost != "gw" || cfg.TunnelPort != 2200 {
		t.Errorf("tunnel fields = %+v", cfg)
	}

	cfg.TunnelSpec = "bad@"
	err := cfg.ApplyTunnelSpec()
	var cerr *bankerr.ConfigError
	if !bankerr.As(err, &cerr) || cerr.Field != "tunnel" {
		t.Errorf("err = %v, want ConfigError on tunnel", err)
	}
}

func TestConfig_AddressAndTimeout(t *testing.T) {
	cfg := Defaults()
	if cfg.Address() != "127.0.0.1:65432" {
		t.Errorf("Address = %q", cfg.Address())
	}
	if cfg.ConnTimeout() != DefaultConnTimeout {
		t.Errorf("ConnTimeout = %v", cfg.ConnTimeout())
	}
	cfg.Timeout = 3
	if cfg.ConnTimeout() != 3*time.Second {
		t.Errorf("ConnTimeout = %v, want 3s", cfg.ConnTimeout())
	}
}

// ── Validation ───────────────────────────────────────────────────────

func TestValidate(t *testing.T) {
	server := func() Config { c := Defaults(); c.Listen = true; return c }
	client := Defaults

	tests := []struct {
		name    string
		cfg     func() Config
		wantErr bool
	}{
		{"server defaults", server, false},
		{"client defaults", client, false},
		{"server with admin", func() Config { c := server(); c.AdminAddr = "127.0.0.1:8080"; return c }, false},
		{"server goroutine mux", func() Config { c := server(); c.Multiplexer = "goroutine"; return c }, false},
		{"client tunnel", func() Config {
			c := client()
			c.TunnelEnabled, c.TunnelHost, c.TunnelSpec = true, "gw", "gw"
			return c
		}, false},
		{"port zero", func() Config { c := client(); c.Port = 0; return c }, true},
		{"port too high", func() Config { c := client(); c.Port = 70000; return c }, true},
		{"no host", func() Config { c := client(); c.Host = ""; return c }, true},
		{"bad mux", func() Config { c := server(); c.Multiplexer = "kqueue"; return c }, true},
		{"bad admin addr", func() Config { c := server(); c.AdminAddr = "nope"; return c }, true},
		{"no attempts", func() Config { c := client(); c.MaxLoginAttempts = 0; return c }, true},
		{"negative timeout", func() Config { c := client(); c.Timeout = -1; return c }, true},
		{"server no accounts", func() Config { c := server(); c.AccountsFile = ""; return c }, true},
		{"server tunnel", func() Config {
			c := server()
			c.TunnelEnabled, c.TunnelHost, c.TunnelSpec = true, "gw", "gw"
			return c
		}, true},
		{"client admin", func() Config { c := client(); c.AdminAddr = "127.0.0.1:8080"; return c }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg()
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr = %v", err, tt.wantErr)
			}
		})
	}
}

// TestValidate_ErrorMessages verifies that Validate returns actionable
// error messages naming the flag.
func TestValidate_ErrorMessages(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub []string
	}{
		{"port", func(c *Config) { c.Port = 0 }, []string{"--port=0", "hint:"}},
		{"multiplexer", func(c *Config) { c.Listen = true; c.Multiplexer = "poll" }, []string{"--multiplexer", "auto epoll goroutine"}},
		{"admin", func(c *Config) { c.Listen = true; c.AdminAddr = "x" }, []string{"--admin-addr", "hint:"}},
		{"attempts", func(c *Config) { c.MaxLoginAttempts = 0 }, []string{"--max-login-attempts", "at least 1"}},
		{"accounts", func(c *Config) { c.Listen = true; c.AccountsFile = "" }, []string{"--accounts-file", "hint:"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			for _, sub := range tt.wantSub {
				if !strings.Contains(err.Error(), sub) {
					t.Errorf("error %q should contain %q", err.Error(), sub)
				}
			}
		})
	}
}

func TestValidate_EpollPlatform(t *testing.T) {
	cfg := Defaults()
	cfg.Listen = true
	cfg.Multiplexer = "epoll"
	err := cfg.Validate()
	if runtime.GOOS == "linux" && err != nil {
		t.Errorf("epoll rejected on linux: %v", err)
	}
	if runtime.GOOS != "linux" && err == nil {
		t.Error("epoll accepted off linux")
	}
}
