package ipc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
	"strings"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"github.com/custodhq/custod/internal/protocol"
	"github.com/custodhq/custod/internal/runfile"
)

func echoDelegate() Delegate {
	return DelegateFunc(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
		switch req.Action {
		case "echo":
			return protocol.OK(req, req.Options["payload"]), nil
		case "secure-check":
			return protocol.OK(req, req.Secure), nil
		default:
			return protocol.Errorf(req, protocol.StatusInvalidAction, "unknown action %q", req.Action), nil
		}
	})
}

func TestClientDiscoversDaemonThroughRunFile(t *testing.T) {
	dir := t.TempDir()
	srv := NewServer(Config{RunDir: dir, Role: runfile.RoleDaemon, Logger: discardLogger()}, echoDelegate())
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer srv.Stop()

	client, err := Dial(Config{RunDir: dir, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer client.Close()

	req := protocol.NewRequest("echo", map[string]any{"payload": "ping|pong"})
	resp, err := client.Submit(req)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if resp.StatusCode != protocol.StatusSuccess {
		t.Fatalf("status = %v (%s), want %v", resp.StatusCode, resp.StatusMessage, protocol.StatusSuccess)
	}
	if resp.Data != "ping|pong" {
		t.Fatalf("data = %v, want %q", resp.Data, "ping|pong")
	}
	if resp.Request == nil || resp.Request.ID != req.ID {
		t.Fatalf("response answers %v, want request %q", resp.Request, req.ID)
	}
}

func TestDialFailsWithoutDaemon(t *testing.T) {
	_, err := Dial(Config{RunDir: t.TempDir(), Logger: discardLogger()})
	if !errors.Is(err, runfile.ErrNoDaemon) {
		t.Fatalf("Dial() error = %v, want %v", err, runfile.ErrNoDaemon)
	}

	_, err = Dial(Config{Logger: discardLogger()})
	if err == nil {
		t.Fatal("Dial() with no endpoint and no run dir must fail")
	}
}

func TestConcurrentClientsGetMatchingResponses(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv := NewServer(Config{}, echoDelegate())
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer srv.Stop()
	port := srv.Port()

	const clients = 8
	const perClient = 5

	errCh := make(chan error, clients*perClient)
	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			client, err := Dial(Config{Port: port})
			if err != nil {
				errCh <- fmt.Errorf("client %d: %w", n, err)
				return
			}
			defer client.Close()

			for j := 0; j < perClient; j++ {
				payload := fmt.Sprintf("c%d-%d", n, j)
				req := protocol.NewRequest("echo", map[string]any{"payload": payload})
				resp, err := client.Submit(req)
				if err != nil {
					errCh <- fmt.Errorf("client %d submit %d: %w", n, j, err)
					return
				}
				if resp.StatusCode != protocol.StatusSuccess {
					errCh <- fmt.Errorf("client %d got status %v", n, resp.StatusCode)
					return
				}
				if resp.Request.ID != req.ID {
					errCh <- fmt.Errorf("client %d: response for %q, want %q", n, resp.Request.ID, req.ID)
					return
				}
				if resp.Data != payload {
					errCh <- fmt.Errorf("client %d: data %v, want %q", n, resp.Data, payload)
					return
				}
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Error(err)
	}
}

func TestSecureSubmitRoundTrip(t *testing.T) {
	tokenDir := t.TempDir()
	me, err := user.Current()
	if err != nil {
		t.Fatalf("user.Current(): %v", err)
	}

	srv := NewServer(Config{TokenOwner: me.Username, Logger: discardLogger()}, echoDelegate())
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer srv.Stop()

	client, err := Dial(Config{Port: srv.Port(), TokenDir: tokenDir, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer client.Close()

	resp, err := client.SubmitSecure(protocol.NewRequest("secure-check", nil))
	if err != nil {
		t.Fatalf("SubmitSecure() error = %v", err)
	}
	if resp.StatusCode != protocol.StatusSuccess {
		t.Fatalf("status = %v (%s), want %v", resp.StatusCode, resp.StatusMessage, protocol.StatusSuccess)
	}
	if resp.Data != true {
		t.Fatalf("delegate saw secure = %v, want true", resp.Data)
	}
	if resp.Request.AuthTokenRef != "" {
		t.Fatalf("token ref %q survived validation", resp.Request.AuthTokenRef)
	}

	entries, err := os.ReadDir(tokenDir)
	if err != nil {
		t.Fatalf("reading token dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("token dir has %d entries after consumption, want 0", len(entries))
	}
}

func TestSecureRequestWithoutTokenIsRejected(t *testing.T) {
	srv := NewServer(Config{Logger: discardLogger()}, echoDelegate())
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer srv.Stop()

	client, err := Dial(Config{Port: srv.Port(), Logger: discardLogger()})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer client.Close()

	req := protocol.NewRequest("secure-check", nil)
	req.Secure = true
	resp, err := client.Submit(req)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if resp.StatusCode != protocol.StatusError {
		t.Fatalf("status = %v, want %v", resp.StatusCode, protocol.StatusError)
	}
	if !strings.Contains(resp.StatusMessage, "auth token rejected") {
		t.Fatalf("message = %q, want auth rejection", resp.StatusMessage)
	}
}

func TestCallIsScopedToOneRequest(t *testing.T) {
	srv := NewServer(Config{Logger: discardLogger()}, echoDelegate())
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer srv.Stop()

	cfg := Config{Port: srv.Port(), Logger: discardLogger()}
	for i := 0; i < 3; i++ {
		resp, err := Call(cfg, protocol.NewRequest("echo", map[string]any{"payload": "one-shot"}))
		if err != nil {
			t.Fatalf("Call() #%d error = %v", i, err)
		}
		if resp.StatusCode != protocol.StatusSuccess {
			t.Fatalf("Call() #%d status = %v", i, resp.StatusCode)
		}
	}
}

func TestClientCloseIsIdempotent(t *testing.T) {
	srv := NewServer(Config{Logger: discardLogger()}, nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer srv.Stop()

	client, err := Dial(Config{Port: srv.Port(), Logger: discardLogger()})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if _, err := client.Submit(protocol.NewRequest("echo", nil)); err == nil {
		t.Fatal("Submit() after Close must fail")
	}
}
