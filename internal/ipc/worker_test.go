package ipc

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/custodhq/custod/internal/protocol"
	"github.com/custodhq/custod/internal/wire"
)

func newPipeWorker(t *testing.T, delegate Delegate) (*worker, net.Conn) {
	t.Helper()
	srv := NewServer(Config{Logger: discardLogger()}, delegate)
	srv.ctx, srv.cancel = context.WithCancel(context.Background())
	t.Cleanup(srv.cancel)

	serverConn, clientConn := net.Pipe()
	t.Cleanup(func() { clientConn.Close() })

	w := newWorker(srv, serverConn)
	srv.wg.Add(1)
	return w, clientConn
}

func readResponse(t *testing.T, conn net.Conn) *protocol.Response {
	t.Helper()
	raw, err := wire.ReadFrame(conn)
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	var resp protocol.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return &resp
}

func TestWorkerRejectsGarbageHeader(t *testing.T) {
	w, client := newPipeWorker(t, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.run()
	}()

	if _, err := client.Write([]byte("garbage|")); err != nil {
		t.Fatalf("writing garbage: %v", err)
	}

	resp := readResponse(t, client)
	if resp.StatusCode != protocol.StatusInvalidHeader {
		t.Fatalf("status = %v, want %v", resp.StatusCode, protocol.StatusInvalidHeader)
	}
	if resp.Request != nil {
		t.Fatalf("request echo = %v, want nil", resp.Request)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not terminate after bad header")
	}
}

func TestWorkerRejectsMalformedBody(t *testing.T) {
	w, client := newPipeWorker(t, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.run()
	}()

	if err := wire.WriteFrame(client, []byte("{broken")); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}

	resp := readResponse(t, client)
	if resp.StatusCode != protocol.StatusError {
		t.Fatalf("status = %v, want %v", resp.StatusCode, protocol.StatusError)
	}
	if !strings.Contains(resp.StatusMessage, "unparseable") {
		t.Fatalf("message = %q, want unparseable mention", resp.StatusMessage)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not terminate after bad body")
	}
}

func TestWorkerExitsWhenPeerCloses(t *testing.T) {
	w, client := newPipeWorker(t, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.run()
	}()

	if err := client.Close(); err != nil {
		t.Fatalf("closing client side: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not terminate after peer close")
	}
}

func TestWorkerExitsOnShutdownFlag(t *testing.T) {
	w, _ := newPipeWorker(t, nil)
	w.srv.closing.Store(true)

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.run()
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker ignored the shutdown flag")
	}
}
