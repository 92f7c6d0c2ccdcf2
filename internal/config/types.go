package config

import (
	"errors"
	"fmt"
	"time"

	"pkt.systems/pslog"

	"github.com/custodhq/custod/internal/ipc"
)

// Config is the custod configuration file (config.toml). Durations are
// strings in Go duration syntax ("30s", "5m"). Absent keys keep their
// built-in defaults.
type Config struct {
	// Hostname is the address the daemon binds and clients dial. Only
	// loopback addresses pass validation.
	Hostname string `toml:"hostname"`
	Port     int    `toml:"port"`

	// RunDir and TokenDir override the platform defaults for the run-file
	// registry and the auth-token directory. Empty selects per-platform
	// paths at startup.
	RunDir   string `toml:"run_dir"`
	TokenDir string `toml:"token_dir"`

	// TokenOwner is the account secure-request tokens must belong to.
	// Empty accepts tokens from any owner.
	TokenOwner string `toml:"token_owner"`
	TokenTTL   string `toml:"token_ttl"`

	ConnectTimeout string `toml:"connect_timeout"`
	ReadTimeout    string `toml:"read_timeout"`
	WriteTimeout   string `toml:"write_timeout"`
	AcceptTimeout  string `toml:"accept_timeout"`
	ShutdownGrace  string `toml:"shutdown_grace"`

	LogLevel string `toml:"log_level"`
}

// Default returns the configuration custod runs with when no file exists.
func Default() *Config {
	return &Config{
		Hostname:       ipc.DefaultHost,
		Port:           ipc.DefaultPort,
		TokenTTL:       "5m",
		ConnectTimeout: "10s",
		ReadTimeout:    "30s",
		WriteTimeout:   "30s",
		AcceptTimeout:  "1s",
		ShutdownGrace:  "5s",
		LogLevel:       "info",
	}
}

// IPC converts the file settings into the runtime configuration the
// transport layer consumes. Empty directories stay empty; the daemon
// substitutes platform defaults before starting.
func (c *Config) IPC(logger pslog.Logger) (ipc.Config, error) {
	var errs []error
	parse := func(field, value string) time.Duration {
		if value == "" {
			return 0
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q: %w", field, value, err))
			return 0
		}
		return d
	}

	out := ipc.Config{
		Host:           c.Hostname,
		Port:           c.Port,
		RunDir:         c.RunDir,
		TokenDir:       c.TokenDir,
		TokenOwner:     c.TokenOwner,
		TokenTTL:       parse("token_ttl", c.TokenTTL),
		ConnectTimeout: parse("connect_timeout", c.ConnectTimeout),
		ReadTimeout:    parse("read_timeout", c.ReadTimeout),
		WriteTimeout:   parse("write_timeout", c.WriteTimeout),
		AcceptTimeout:  parse("accept_timeout", c.AcceptTimeout),
		ShutdownGrace:  parse("shutdown_grace", c.ShutdownGrace),
		Logger:         logger,
	}
	if err := errors.Join(errs...); err != nil {
		return ipc.Config{}, err
	}
	return out, nil
}
