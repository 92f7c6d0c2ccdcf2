package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"pkt.systems/pslog"
)

// Validate checks configuration invariants and returns actionable errors.
func Validate(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	var errs []error

	if cfg.Port < 0 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("port: must be between 0 and 65535, got %d", cfg.Port))
	}

	if host := strings.TrimSpace(cfg.Hostname); host != "" && host != "localhost" {
		ip := net.ParseIP(host)
		switch {
		case ip == nil:
			errs = append(errs, fmt.Errorf("hostname: %q is not an IP address or localhost", host))
		case !ip.IsLoopback():
			errs = append(errs, fmt.Errorf("hostname: %q is not a loopback address, refusing to listen beyond this host", host))
		}
	}

	for _, f := range []struct {
		name  string
		value string
	}{
		{"token_ttl", cfg.TokenTTL},
		{"connect_timeout", cfg.ConnectTimeout},
		{"read_timeout", cfg.ReadTimeout},
		{"write_timeout", cfg.WriteTimeout},
		{"accept_timeout", cfg.AcceptTimeout},
		{"shutdown_grace", cfg.ShutdownGrace},
	} {
		if f.value == "" {
			continue
		}
		d, err := time.ParseDuration(f.value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q: %w", f.name, f.value, err))
		} else if d <= 0 {
			errs = append(errs, fmt.Errorf("%s: must be > 0, got %q", f.name, f.value))
		}
	}

	if cfg.LogLevel != "" {
		if _, ok := pslog.ParseLevel(cfg.LogLevel); !ok {
			errs = append(errs, fmt.Errorf("log_level: unknown level %q", cfg.LogLevel))
		}
	}

	return errors.Join(errs...)
}
