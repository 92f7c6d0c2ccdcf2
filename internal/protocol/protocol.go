package protocol

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Request is one message sent from a client to a server. The JSON field
// order is part of the wire contract: auth tokens compare serialized bytes,
// so both sides must produce identical encodings for identical values.
type Request struct {
	ID           string         `json:"id"`             // unique request id
	Action       string         `json:"action"`         // verb for the receiver
	Options      map[string]any `json:"options"`        // action arguments, never null
	Secure       bool           `json:"secure"`         // requires a valid auth token
	AuthTokenRef string         `json:"auth_token_ref"` // token file path; set only while a token is live
	CreatedAt    int64          `json:"created_at"`     // unix seconds
}

// NewRequest builds a request for action with the given options.
func NewRequest(action string, options map[string]any) *Request {
	if options == nil {
		options = make(map[string]any)
	}
	return &Request{
		ID:        uuid.NewString(),
		Action:    action,
		Options:   options,
		CreatedAt: time.Now().Unix(),
	}
}

// CreatedTime returns the creation timestamp as a time.Time.
func (r *Request) CreatedTime() time.Time {
	return time.Unix(r.CreatedAt, 0)
}

// Option returns the named option value.
func (r *Request) Option(key string) (any, bool) {
	if r.Options == nil {
		return nil, false
	}
	v, ok := r.Options[key]
	return v, ok
}

// StringOption returns the named option as a string, or "" if absent or not
// a string.
func (r *Request) StringOption(key string) string {
	v, ok := r.Option(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Response is the reply to a single Request.
type Response struct {
	Request       *Request `json:"request"` // echo of the request; nil if it never decoded
	StatusCode    Status   `json:"status_code"`
	StatusMessage string   `json:"status_message,omitempty"`
	Data          any      `json:"data,omitempty"`
}

// NewResponse builds a response for req with the given status.
func NewResponse(req *Request, status Status) *Response {
	return &Response{Request: req, StatusCode: status}
}

// OK builds a success response carrying data.
func OK(req *Request, data any) *Response {
	return &Response{Request: req, StatusCode: StatusSuccess, Data: data}
}

// Errorf builds a response with a formatted status message.
func Errorf(req *Request, status Status, format string, args ...any) *Response {
	return &Response{
		Request:       req,
		StatusCode:    status,
		StatusMessage: fmt.Sprintf(format, args...),
	}
}
