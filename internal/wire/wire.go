package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"syscall"

	"github.com/custodhq/custod/internal/protocol"
)

const (
	// Delimiter separates the decimal length header from the payload.
	Delimiter = '|'
	// MaxHeaderLen bounds the length header. A frame whose delimiter does
	// not appear within this many bytes is rejected unread.
	MaxHeaderLen = 100
)

// Error is a framing or transport failure mapped onto the status taxonomy.
type Error struct {
	Status protocol.Status
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Status, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func errorf(status protocol.Status, format string, args ...any) *Error {
	return &Error{Status: status, Err: fmt.Errorf(format, args...)}
}

// StatusOf extracts the status from a codec error. Errors that did not come
// from this package are classified by their transport cause.
func StatusOf(err error) protocol.Status {
	if err == nil {
		return protocol.StatusSuccess
	}
	var we *Error
	if errors.As(err, &we) {
		return we.Status
	}
	return classify(err)
}

func classify(err error) protocol.Status {
	switch {
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return protocol.StatusSocketClosed
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return protocol.StatusSocketTimeout
	}
	return protocol.StatusSocketError
}

// Encode prepends the decimal length header to payload.
func Encode(payload []byte) []byte {
	buf := make([]byte, 0, len(payload)+12)
	buf = strconv.AppendInt(buf, int64(len(payload)), 10)
	buf = append(buf, Delimiter)
	return append(buf, payload...)
}

// WriteFrame writes one framed payload, tolerating partial writes. Deadlines
// are the caller's responsibility.
func WriteFrame(w io.Writer, payload []byte) error {
	buf := Encode(payload)
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			return &Error{Status: classify(err), Err: err}
		}
		if n == 0 {
			return errorf(protocol.StatusSocketClosed, "zero-byte write")
		}
		buf = buf[n:]
	}
	return nil
}

// ReadFrame reads one framed payload. The header is consumed one byte at a
// time so nothing past the frame is buffered away from the caller.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header []byte
	var b [1]byte
	for {
		n, err := r.Read(b[:])
		if err != nil {
			return nil, &Error{Status: classify(err), Err: err}
		}
		if n == 0 {
			continue
		}
		if b[0] == Delimiter {
			break
		}
		if b[0] < '0' || b[0] > '9' {
			return nil, errorf(protocol.StatusInvalidHeader, "non-numeric length header byte %q", b[0])
		}
		header = append(header, b[0])
		if len(header) >= MaxHeaderLen {
			return nil, errorf(protocol.StatusInvalidHeader, "no delimiter within %d bytes", MaxHeaderLen)
		}
	}
	if len(header) == 0 {
		return nil, errorf(protocol.StatusInvalidHeader, "empty length header")
	}

	size, err := strconv.Atoi(string(header))
	if err != nil {
		return nil, errorf(protocol.StatusInvalidHeader, "length header %q: %v", header, err)
	}

	// The length is untrusted until the bytes actually arrive: the buffer
	// grows with the data read, so a lying header fails as a transport
	// error instead of a giant up-front allocation.
	var payload bytes.Buffer
	if _, err := io.CopyN(&payload, r, int64(size)); err != nil {
		return nil, &Error{Status: classify(err), Err: err}
	}
	return payload.Bytes(), nil
}
