package config

import (
	"strings"
	"testing"
)

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}
}

func TestValidateAcceptsLoopbackHostnames(t *testing.T) {
	for _, host := range []string{"", "localhost", "127.0.0.1", "127.1.2.3", "::1"} {
		cfg := Default()
		cfg.Hostname = host
		if err := Validate(cfg); err != nil {
			t.Fatalf("Validate(hostname=%q) error = %v, want nil", host, err)
		}
	}
}

func TestValidateRejectsNonLoopbackHostnames(t *testing.T) {
	cfg := Default()
	cfg.Hostname = "0.0.0.0"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate() error = nil, want non-nil")
	}
	if !strings.Contains(err.Error(), "not a loopback address") {
		t.Fatalf("Validate() error = %q, want loopback message", err)
	}

	cfg.Hostname = "example.com"
	err = Validate(cfg)
	if err == nil {
		t.Fatal("Validate() error = nil, want non-nil")
	}
	if !strings.Contains(err.Error(), "not an IP address or localhost") {
		t.Fatalf("Validate() error = %q, want hostname message", err)
	}
}

func TestValidateRejectsBadPortDurationsAndLevel(t *testing.T) {
	cfg := Default()
	cfg.Port = 70000
	cfg.ReadTimeout = "abc"
	cfg.ShutdownGrace = "0s"
	cfg.LogLevel = "chatty"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate() error = nil, want non-nil")
	}

	msg := err.Error()
	if !strings.Contains(msg, "port: must be between 0 and 65535") {
		t.Fatalf("Validate() error = %q, want port message", msg)
	}
	if !strings.Contains(msg, `read_timeout: invalid duration "abc"`) {
		t.Fatalf("Validate() error = %q, want read_timeout message", msg)
	}
	if !strings.Contains(msg, `shutdown_grace: must be > 0`) {
		t.Fatalf("Validate() error = %q, want shutdown_grace message", msg)
	}
	if !strings.Contains(msg, `log_level: unknown level "chatty"`) {
		t.Fatalf("Validate() error = %q, want log_level message", msg)
	}
}

func TestValidateNilConfigIsFine(t *testing.T) {
	if err := Validate(nil); err != nil {
		t.Fatalf("Validate(nil) error = %v, want nil", err)
	}
}
