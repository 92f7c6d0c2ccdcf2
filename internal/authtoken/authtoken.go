package authtoken

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/custodhq/custod/internal/platform"
	"github.com/custodhq/custod/internal/protocol"
)

// DefaultTTL is how long a token stays valid after its request was created.
const DefaultTTL = 5 * time.Minute

// Token files are readable by every local user; trust rests on the file's
// owner, not on keeping the content secret. The receiver already holds the
// same bytes from the socket.
const tokenFileMode = 0o644

var (
	ErrNoToken         = errors.New("no auth token")
	ErrOwnerMismatch   = errors.New("auth token owner mismatch")
	ErrExpired         = errors.New("auth token expired")
	ErrContentMismatch = errors.New("auth token content mismatch")
)

// Option adjusts validation policy.
type Option func(*options)

type options struct {
	ttl   time.Duration
	owner string
}

// WithTTL overrides the token lifetime. Non-positive means DefaultTTL.
func WithTTL(d time.Duration) Option {
	return func(o *options) { o.ttl = d }
}

// WithExpectedOwner requires the token file to be owned by username.
func WithExpectedOwner(username string) Option {
	return func(o *options) { o.owner = username }
}

// Create writes a token authorizing req into dir and marks the request
// secure. The file holds the request's canonical serialization as of this
// moment; the token ref is assigned afterwards so it is not part of the
// serialized bytes.
func Create(dir string, req *protocol.Request) (string, error) {
	req.Secure = true
	req.AuthTokenRef = ""

	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encoding request %s: %w", req.ID, err)
	}

	path := filepath.Join(dir, "token-"+uuid.NewString())
	if err := os.WriteFile(path, payload, tokenFileMode); err != nil {
		return "", fmt.Errorf("writing auth token: %w", err)
	}
	req.AuthTokenRef = path
	return path, nil
}

// Validate checks the token referenced by req and consumes it. On success
// the token file is deleted and the ref cleared; a token authorizes exactly
// one request, exactly once. Trust comes from the filesystem, not from the
// token bytes: minting requires write access to the token directory, and
// the optional owner check pins the file's OS owner.
func Validate(req *protocol.Request, opts ...Option) error {
	o := options{ttl: DefaultTTL}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ttl <= 0 {
		o.ttl = DefaultTTL
	}

	ref := req.AuthTokenRef
	if ref == "" {
		return fmt.Errorf("request %s: %w", req.ID, ErrNoToken)
	}

	content, err := os.ReadFile(ref)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("request %s: %w", req.ID, ErrNoToken)
		}
		return fmt.Errorf("reading auth token: %w", err)
	}

	if o.owner != "" {
		owner, err := platform.Current().FileOwner(ref)
		if err != nil {
			return fmt.Errorf("checking token owner: %w", err)
		}
		if owner != o.owner {
			return fmt.Errorf("token owned by %q, expected %q: %w", owner, o.owner, ErrOwnerMismatch)
		}
	}

	if age := time.Since(req.CreatedTime()); age > o.ttl {
		return fmt.Errorf("token is %s old, limit %s: %w", age.Round(time.Second), o.ttl, ErrExpired)
	}

	expected := *req
	expected.AuthTokenRef = ""
	canonical, err := json.Marshal(&expected)
	if err != nil {
		return fmt.Errorf("encoding request %s: %w", req.ID, err)
	}
	if !bytes.Equal(content, canonical) {
		return fmt.Errorf("request %s: %w", req.ID, ErrContentMismatch)
	}

	if err := os.Remove(ref); err != nil {
		return fmt.Errorf("consuming auth token: %w", err)
	}
	req.AuthTokenRef = ""
	return nil
}

// Discard deletes an unconsumed token and clears the ref. Used when a
// secure request is abandoned before the receiver could validate it.
func Discard(req *protocol.Request) {
	if req == nil || req.AuthTokenRef == "" {
		return
	}
	_ = os.Remove(req.AuthTokenRef)
	req.AuthTokenRef = ""
}
