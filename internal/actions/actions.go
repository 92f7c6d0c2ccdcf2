package actions

import (
	"context"
	"sort"
	"sync"

	"pkt.systems/pslog"

	"github.com/custodhq/custod/internal/logging"
	"github.com/custodhq/custod/internal/protocol"
)

// Handler processes one request.
type Handler func(ctx context.Context, req *protocol.Request) (*protocol.Response, error)

// Mux routes requests to registered handlers by action name. It implements
// the server delegate and is safe for concurrent use.
type Mux struct {
	log pslog.Logger

	mu       sync.RWMutex
	handlers map[string]muxEntry
}

type muxEntry struct {
	handler Handler
	secure  bool
}

// NewMux creates an empty mux.
func NewMux(logger pslog.Logger) *Mux {
	return &Mux{
		log:      logging.WithSubsystem(logger, "actions"),
		handlers: make(map[string]muxEntry),
	}
}

// Register adds a handler for action, replacing any previous one.
func (m *Mux) Register(action string, h Handler) {
	m.register(action, h, false)
}

// RegisterSecure adds a handler that only serves token-validated requests.
// The transport rejects secure requests with bad tokens before dispatch;
// the mux rejects plain requests that skip the token entirely.
func (m *Mux) RegisterSecure(action string, h Handler) {
	m.register(action, h, true)
}

func (m *Mux) register(action string, h Handler, secure bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[action] = muxEntry{handler: h, secure: secure}
}

// Actions returns the registered action names, sorted.
func (m *Mux) Actions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.handlers))
	for name := range m.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProcessRequest dispatches req to its handler.
func (m *Mux) ProcessRequest(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	m.mu.RLock()
	entry, ok := m.handlers[req.Action]
	m.mu.RUnlock()

	if !ok {
		return protocol.Errorf(req, protocol.StatusInvalidAction, "unknown action %q", req.Action), nil
	}
	if entry.secure && !req.Secure {
		return protocol.Errorf(req, protocol.StatusError, "action %q requires a secure request", req.Action), nil
	}

	m.log.Debug("actions.dispatch", "action", req.Action, "id", req.ID)
	return entry.handler(ctx, req)
}
