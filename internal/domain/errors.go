package domain

import "errors"

// Kind classifies an error for callers and for the wire.
type Kind string

const (
	KindInvalidInput        Kind = "invalid_input"
	KindSessionNotFound     Kind = "session_not_found"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindUpstreamRateLimited Kind = "upstream_rate_limited"
	KindUpstreamAuth        Kind = "upstream_auth_error"
	KindUpstreamProtocol    Kind = "upstream_protocol_error"
	KindCircuitOpen         Kind = "circuit_open"
	KindPersistence         Kind = "persistence_error"
	KindInternal            Kind = "internal_error"
)

// Error is a classified gateway error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// NewError creates a classified error wrapping err.
func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on kind, and on message when the target carries one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Message == "" || t.Message == e.Message
}

var (
	ErrInvalidInput        = &Error{Kind: KindInvalidInput}
	ErrEmptyMessage        = &Error{Kind: KindInvalidInput, Message: "message cannot be empty"}
	ErrSessionNotFound     = &Error{Kind: KindSessionNotFound, Message: "session not found"}
	ErrUpstreamUnavailable = &Error{Kind: KindUpstreamUnavailable}
	ErrUpstreamRateLimited = &Error{Kind: KindUpstreamRateLimited}
	ErrUpstreamAuth        = &Error{Kind: KindUpstreamAuth}
	ErrUpstreamProtocol    = &Error{Kind: KindUpstreamProtocol}
	ErrCircuitOpen         = &Error{Kind: KindCircuitOpen}
	ErrPersistence         = &Error{Kind: KindPersistence}
)

// KindOf returns the kind of err, or KindInternal when it is unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
