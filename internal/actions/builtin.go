package actions

import (
	"context"
	"os"
	"time"

	"github.com/custodhq/custod/internal/ipc"
	"github.com/custodhq/custod/internal/protocol"
)

// Builtins are the diagnostic actions every custod server answers.
type Builtins struct {
	Role string
	// Stats supplies live server counters for the status action.
	Stats func() ipc.Stats
	// Shutdown schedules a server stop. It must not block: the response is
	// written before the stop happens.
	Shutdown func()
}

// Register wires the built-in actions into m.
func (b Builtins) Register(m *Mux) {
	m.Register("ping", b.ping)
	m.Register("echo", b.echo)
	m.Register("status", b.status)
	m.RegisterSecure("shutdown", b.shutdown)
}

func (b Builtins) ping(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	return protocol.OK(req, "pong"), nil
}

func (b Builtins) echo(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	payload, ok := req.Option("payload")
	if !ok {
		return protocol.Errorf(req, protocol.StatusInvalidTarget, "echo needs a payload option"), nil
	}
	return protocol.OK(req, payload), nil
}

func (b Builtins) status(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	data := map[string]any{
		"pid":  os.Getpid(),
		"role": b.Role,
	}
	if b.Stats != nil {
		st := b.Stats()
		data["started_at"] = st.StartedAt.Unix()
		data["uptime_seconds"] = int64(time.Since(st.StartedAt).Seconds())
		data["requests_served"] = st.Served
		data["workers"] = st.Workers
	}
	return protocol.OK(req, data), nil
}

func (b Builtins) shutdown(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	if b.Shutdown == nil {
		return protocol.Errorf(req, protocol.StatusInvalidAction, "shutdown is not available on this endpoint"), nil
	}
	b.Shutdown()
	resp := protocol.NewResponse(req, protocol.StatusDeferred)
	resp.StatusMessage = "shutdown scheduled"
	return resp, nil
}
