package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/user"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"pkt.systems/pslog"

	"github.com/custodhq/custod/internal/authtoken"
	"github.com/custodhq/custod/internal/logging"
	"github.com/custodhq/custod/internal/platform"
	"github.com/custodhq/custod/internal/protocol"
	"github.com/custodhq/custod/internal/runfile"
)

// Server accepts loopback connections and feeds decoded requests to the
// delegate. Each connection gets its own worker goroutine and the worker
// count is unbounded, which suits a low-volume local control channel.
type Server struct {
	cfg      Config
	delegate Delegate
	log      pslog.Logger

	listener *net.TCPListener
	record   runfile.Record

	mu      sync.Mutex
	workers map[*worker]struct{}

	closing  atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	loopDone chan struct{}

	startedAt time.Time
	served    atomic.Int64
}

// Stats is a point-in-time view of server activity.
type Stats struct {
	StartedAt time.Time
	Served    int64
	Workers   int
}

// NewServer creates a server. A nil delegate is allowed; every request then
// answers with a subsystem-unset error until a real delegate exists.
func NewServer(cfg Config, delegate Delegate) *Server {
	cfg = cfg.withDefaults()
	return &Server{
		cfg:      cfg,
		delegate: delegate,
		log:      logging.WithSubsystem(cfg.Logger, "ipc.server"),
		workers:  make(map[*worker]struct{}),
	}
}

// Start publishes the run file, binds the loopback listener, and launches
// the accept loop. It returns once the server is reachable.
func (s *Server) Start() error {
	if s.listener != nil {
		return errors.New("server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close()
		return fmt.Errorf("unexpected listener type %T", ln)
	}

	if s.cfg.RunDir != "" {
		rec, err := s.buildRecord(tcpLn)
		if err == nil {
			err = runfile.Publish(s.cfg.RunDir, rec)
		}
		if err != nil {
			ln.Close()
			return fmt.Errorf("publishing run file: %w", err)
		}
		s.record = rec
	}

	s.listener = tcpLn
	s.startedAt = time.Now()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.loopDone = make(chan struct{})
	go s.acceptLoop()

	s.log.Info("ipc.server.started", "addr", tcpLn.Addr().String(), "role", string(s.record.Role))
	return nil
}

func (s *Server) buildRecord(ln *net.TCPListener) (runfile.Record, error) {
	role := s.cfg.Role
	if role == "" {
		if platform.Current().Privileged() {
			role = runfile.RoleDaemon
		} else {
			role = runfile.RoleClient
		}
	}
	rec := runfile.Record{
		Address: s.cfg.Host,
		Port:    ln.Addr().(*net.TCPAddr).Port,
		Role:    role,
		PID:     os.Getpid(),
	}
	if role == runfile.RoleClient {
		u, err := user.Current()
		if err != nil {
			return runfile.Record{}, fmt.Errorf("resolving current user: %w", err)
		}
		rec.User = u.Username
	}
	return rec, nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Port returns the bound listener port, or 0 before Start.
func (s *Server) Port() int {
	if s.listener == nil {
		return 0
	}
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Stats reports activity counters for the status action.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	workers := len(s.workers)
	s.mu.Unlock()
	return Stats{StartedAt: s.startedAt, Served: s.served.Load(), Workers: workers}
}

func (s *Server) acceptLoop() {
	defer close(s.loopDone)
	for {
		_ = s.listener.SetDeadline(time.Now().Add(s.cfg.AcceptTimeout))
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closing.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				// Bounded accept tick, not an error.
				continue
			}
			s.log.Error("ipc.accept.failed", "error", err)
			return
		}

		w := newWorker(s, conn)
		s.mu.Lock()
		s.workers[w] = struct{}{}
		s.mu.Unlock()
		s.wg.Add(1)
		go w.run()
	}
}

func (s *Server) forget(w *worker) {
	s.mu.Lock()
	delete(s.workers, w)
	s.mu.Unlock()
	s.wg.Done()
}

// Stop shuts the server down: stop accepting, withdraw the run file, and
// give live workers the grace period to finish before abandoning them.
func (s *Server) Stop() error {
	if s.listener == nil || !s.closing.CompareAndSwap(false, true) {
		return nil
	}
	s.cancel()
	_ = s.listener.Close()
	<-s.loopDone

	if s.cfg.RunDir != "" {
		if err := runfile.Withdraw(s.cfg.RunDir, s.record); err != nil {
			s.log.Warn("ipc.runfile.withdraw_failed", "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownGrace):
		s.mu.Lock()
		abandoned := len(s.workers)
		for w := range s.workers {
			_ = w.conn.Close()
		}
		s.mu.Unlock()
		s.log.Warn("ipc.stop.workers_abandoned", "count", abandoned)
		select {
		case <-done:
		case <-time.After(500 * time.Millisecond):
		}
	}

	s.log.Info("ipc.server.stopped")
	return nil
}

// process runs one request through token validation and the delegate,
// always producing a transmittable response.
func (s *Server) process(req *protocol.Request) (resp *protocol.Response) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("ipc.delegate.panic", "action", req.Action, "panic", fmt.Sprint(r))
			resp = protocol.Errorf(req, protocol.StatusError, "internal error processing %q", req.Action)
		}
	}()

	s.served.Add(1)

	if req.Secure {
		opts := []authtoken.Option{authtoken.WithTTL(s.cfg.TokenTTL)}
		if s.cfg.TokenOwner != "" {
			opts = append(opts, authtoken.WithExpectedOwner(s.cfg.TokenOwner))
		}
		if err := authtoken.Validate(req, opts...); err != nil {
			s.log.Warn("ipc.auth.rejected", "action", req.Action, "error", err)
			return protocol.Errorf(req, protocol.StatusError, "auth token rejected: %v", err)
		}
	}

	if s.delegate == nil {
		return protocol.Errorf(req, protocol.StatusSubsystemUnset, "no request delegate configured")
	}

	resp, err := s.delegate.ProcessRequest(s.ctx, req)
	if err != nil {
		return protocol.Errorf(req, protocol.StatusError, "%v", err)
	}
	if resp == nil {
		return protocol.Errorf(req, protocol.StatusError, "delegate returned no response for %q", req.Action)
	}
	if !resp.StatusCode.Valid() {
		s.log.Error("ipc.response.status_unset", "action", req.Action)
		resp.StatusCode = protocol.StatusError
		if resp.StatusMessage == "" {
			resp.StatusMessage = "response status was not set"
		}
	}
	return resp
}
