// Package provider hides the differences between chat-completion backends
// behind one streaming interface.
//
// Each adapter turns its backend's native stream into a sequence of plain
// text fragments, and every failure it reports is an *Error matching
// ErrProvider. Callers never see backend-specific error types.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
)

// Roles accepted in Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one provider-agnostic chat entry.
type Message struct {
	Role    string
	Content string
}

// Request is everything an adapter needs for one completion.
type Request struct {
	Messages    []Message
	Model       string
	MaxTokens   int
	Temperature float64
}

// Stream is a lazy, finite, non-restartable sequence of fragments. Recv
// returns io.EOF after the last fragment. Close releases the connection and
// is safe to call more than once.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Provider opens completion streams against one backend.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req Request) (Stream, error)
}

// ErrProvider matches every adapter failure via errors.Is.
var ErrProvider = errors.New("provider error")

// Kind is the failure subtype.
type Kind string

const (
	KindAuth      Kind = "auth"
	KindNetwork   Kind = "network"
	KindTimeout   Kind = "timeout"
	KindMalformed Kind = "malformed"
	KindUpstream  Kind = "upstream"
	KindConfig    Kind = "config"
	KindCanceled  Kind = "canceled"
)

// Error is the uniform adapter failure. Err keeps the backend's own error
// for logs; it must not be shown to visitors.
type Error struct {
	Provider string
	Kind     Kind
	Status   int
	Err      error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s provider %s (status %d): %v", e.Provider, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s provider %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrProvider) true for every *Error.
func (e *Error) Is(target error) bool { return target == ErrProvider }

// KindOf returns the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// StatusKind maps an upstream HTTP status to a Kind.
func StatusKind(status int) Kind {
	switch status {
	case 401, 403:
		return KindAuth
	case 408, 504:
		return KindTimeout
	default:
		return KindUpstream
	}
}

// Classify wraps err into an *Error for provider name. ctx is the context
// of the call, so deadline expiry is reported as a timeout even when the
// transport surfaces it as a generic read error.
func Classify(name string, ctx context.Context, err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	e := &Error{Provider: name, Err: err}

	switch {
	case errors.Is(err, context.DeadlineExceeded) || (ctx != nil && errors.Is(ctx.Err(), context.DeadlineExceeded)):
		e.Kind = KindTimeout
	case errors.Is(err, context.Canceled) || (ctx != nil && errors.Is(ctx.Err(), context.Canceled)):
		e.Kind = KindCanceled
	case isMalformed(err):
		e.Kind = KindMalformed
	case isNetwork(err):
		e.Kind = KindNetwork
	default:
		e.Kind = KindUpstream
	}
	return e
}

func isMalformed(err error) bool {
	var se *json.SyntaxError
	var te *json.UnmarshalTypeError
	return errors.As(err, &se) || errors.As(err, &te)
}

func isNetwork(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}
