package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"pkt.systems/pslog"

	"github.com/custodhq/custod/internal/authtoken"
	"github.com/custodhq/custod/internal/logging"
	"github.com/custodhq/custod/internal/protocol"
	"github.com/custodhq/custod/internal/runfile"
	"github.com/custodhq/custod/internal/wire"
)

// Client is one connection to a substrate server. A client carries at most
// one request in flight; Submit serializes callers.
type Client struct {
	cfg Config
	log pslog.Logger

	mu   sync.Mutex
	conn net.Conn
}

// Dial connects to the configured endpoint. With no port set it discovers
// the daemon through the run-file registry.
func Dial(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	log := logging.WithSubsystem(cfg.Logger, "ipc.client")

	host, port := cfg.Host, cfg.Port
	if port == 0 {
		if cfg.RunDir == "" {
			return nil, errors.New("no endpoint configured and no run dir to discover from")
		}
		rec, err := runfile.Discover(cfg.RunDir)
		if err != nil {
			return nil, fmt.Errorf("discovering daemon: %w", err)
		}
		host, port = rec.Address, rec.Port
		log.Debug("ipc.client.discovered", "addr", rec.Addr(), "pid", rec.PID)
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, cfg.ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return &Client{cfg: cfg, log: log, conn: conn}, nil
}

// Submit sends req and waits for its response.
func (c *Client) Submit(req *protocol.Request) (*protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, errors.New("client closed")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := wire.WriteFrame(c.conn, payload); err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	raw, err := wire.ReadFrame(c.conn)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var resp protocol.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &resp, nil
}

// SubmitSecure creates an auth token for req, submits it, and discards the
// token if the server never got the chance to consume it.
func (c *Client) SubmitSecure(req *protocol.Request) (*protocol.Response, error) {
	if c.cfg.TokenDir == "" {
		return nil, errors.New("no token directory configured")
	}
	if _, err := authtoken.Create(c.cfg.TokenDir, req); err != nil {
		return nil, fmt.Errorf("creating auth token: %w", err)
	}
	resp, err := c.Submit(req)
	if err != nil {
		authtoken.Discard(req)
		return nil, err
	}
	return resp, nil
}

// Close is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Call dials, submits one request, and always closes the connection.
func Call(cfg Config, req *protocol.Request) (*protocol.Response, error) {
	client, err := Dial(cfg)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	return client.Submit(req)
}
