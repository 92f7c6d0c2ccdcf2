package ipc

import (
	"context"
	"time"

	"pkt.systems/pslog"

	"github.com/custodhq/custod/internal/authtoken"
	"github.com/custodhq/custod/internal/protocol"
	"github.com/custodhq/custod/internal/runfile"
)

// Defaults for Config fields left zero.
const (
	DefaultHost           = "127.0.0.1"
	DefaultPort           = 24950
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 30 * time.Second
	DefaultWriteTimeout   = 30 * time.Second
	DefaultAcceptTimeout  = 1 * time.Second
	DefaultShutdownGrace  = 5 * time.Second
)

// Delegate handles decoded requests. Implementations must be safe for
// concurrent use; every connection worker calls ProcessRequest directly.
type Delegate interface {
	ProcessRequest(ctx context.Context, req *protocol.Request) (*protocol.Response, error)
}

// DelegateFunc adapts a plain function to the Delegate interface.
type DelegateFunc func(ctx context.Context, req *protocol.Request) (*protocol.Response, error)

func (f DelegateFunc) ProcessRequest(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	return f(ctx, req)
}

// Config carries the endpoint and policy knobs shared by client and server.
// The zero value works: servers bind an ephemeral loopback port, clients
// discover the daemon through the run-file registry.
type Config struct {
	Host string
	Port int // server: 0 binds ephemeral; client: 0 triggers discovery

	RunDir   string       // run-file registry; empty disables publish and discovery
	TokenDir string       // auth-token directory for secure requests
	Role     runfile.Role // published role; empty selects by process privilege

	TokenOwner string // expected owner of secure-request tokens; empty skips the check
	TokenTTL   time.Duration

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AcceptTimeout  time.Duration
	ShutdownGrace  time.Duration

	Logger pslog.Logger
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.AcceptTimeout <= 0 {
		c.AcceptTimeout = DefaultAcceptTimeout
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = DefaultShutdownGrace
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = authtoken.DefaultTTL
	}
	if c.Logger == nil {
		c.Logger = pslog.NoopLogger()
	}
	return c
}
