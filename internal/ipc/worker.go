package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"pkt.systems/pslog"

	"github.com/custodhq/custod/internal/logging"
	"github.com/custodhq/custod/internal/protocol"
	"github.com/custodhq/custod/internal/wire"
)

// workerPollInterval bounds how long a worker waits on an idle connection
// before rechecking the shutdown flag.
const workerPollInterval = 250 * time.Millisecond

var (
	errServerClosing = errors.New("server closing")
	errBadBody       = errors.New("unparseable request body")
)

type worker struct {
	srv  *Server
	conn net.Conn
	br   *bufio.Reader
	log  pslog.Logger
}

func newWorker(s *Server, conn net.Conn) *worker {
	return &worker{
		srv:  s,
		conn: conn,
		br:   bufio.NewReader(conn),
		log:  logging.WithSubsystem(s.cfg.Logger, "ipc.worker").With("peer", conn.RemoteAddr().String()),
	}
}

// run drives one connection: read a request, dispatch it, write the
// response, repeat until the peer leaves or the server shuts down. One
// request is in flight per connection at any time, so responses come back
// in submission order.
func (w *worker) run() {
	defer w.srv.forget(w)
	defer func() {
		if err := w.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			w.log.Debug("ipc.worker.close_failed", "error", err)
		}
	}()
	// A panic on the read or write path ends this connection, never the
	// process.
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("ipc.worker.panic", "panic", fmt.Sprint(r))
		}
	}()

	w.log.Debug("ipc.worker.accepted")
	for {
		req, err := w.nextRequest()
		if err != nil {
			w.replyDecodeFailure(err)
			return
		}

		resp := w.srv.process(req)
		if err := w.send(resp); err != nil {
			w.log.Debug("ipc.worker.write_failed", "status", wire.StatusOf(err).String(), "error", err)
			return
		}
	}
}

// nextRequest blocks until a full request arrives. Idle waiting uses short
// poll deadlines so the worker notices shutdown; once bytes flow, the whole
// frame must land within the read timeout.
func (w *worker) nextRequest() (*protocol.Request, error) {
	for {
		if w.srv.closing.Load() {
			return nil, errServerClosing
		}
		_ = w.conn.SetReadDeadline(time.Now().Add(workerPollInterval))
		if _, err := w.br.Peek(1); err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return nil, err
		}
		break
	}

	_ = w.conn.SetReadDeadline(time.Now().Add(w.srv.cfg.ReadTimeout))
	payload, err := wire.ReadFrame(w.br)
	if err != nil {
		return nil, err
	}

	var req protocol.Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadBody, err)
	}
	return &req, nil
}

// replyDecodeFailure sends the best-effort error response for failures that
// still deserve an answer. When the transport itself is gone there is
// nobody left to answer.
func (w *worker) replyDecodeFailure(err error) {
	if errors.Is(err, errServerClosing) {
		return
	}
	if errors.Is(err, errBadBody) {
		_ = w.send(protocol.Errorf(nil, protocol.StatusError, "%v", err))
		return
	}
	status := wire.StatusOf(err)
	switch status {
	case protocol.StatusInvalidHeader, protocol.StatusSocketTimeout:
		_ = w.send(protocol.Errorf(nil, status, "%v", err))
	case protocol.StatusSocketClosed:
		w.log.Debug("ipc.worker.peer_closed")
	default:
		w.log.Debug("ipc.worker.read_failed", "status", status.String(), "error", err)
	}
}

func (w *worker) send(resp *protocol.Response) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encoding response: %w", err)
	}
	_ = w.conn.SetWriteDeadline(time.Now().Add(w.srv.cfg.WriteTimeout))
	return wire.WriteFrame(w.conn, payload)
}
