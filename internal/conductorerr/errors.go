// Package conductorerr defines the error kinds observable to the operator.
package conductorerr

import "errors"

// Kind classifies a conductor error for presentation to the operator.
type Kind string

const (
	SpawnFailed          Kind = "spawn_failed"
	InitializeFailed     Kind = "initialize_failed"
	SessionFailed        Kind = "session_failed"
	AuthenticationFailed Kind = "authentication_failed"
	PromptFailed         Kind = "prompt_failed"
	Cancelled            Kind = "cancelled"
	IoError              Kind = "io_error"
	ProtocolError        Kind = "protocol_error"
	NotSupported         Kind = "not_supported"
	NotFound             Kind = "not_found"
	InvalidArgument      Kind = "invalid_argument"
	Unknown              Kind = "unknown"
)

// kindError pairs a Kind with the underlying error for errors.Is/As support.
type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string {
	if e.err == nil {
		return string(e.kind)
	}
	return string(e.kind) + ": " + e.err.Error()
}

func (e *kindError) Unwrap() error { return e.err }

// sentinels usable with errors.Is(err, conductorerr.ErrNotFound) etc.
var (
	ErrNotFound      = errors.New("not found")
	ErrNotSupported  = errors.New("not supported")
	ErrCancelled     = errors.New("cancelled")
	ErrProtocolError = errors.New("protocol error")
)

// WithKind wraps err, tagging it with kind for later retrieval via Kind(err).
func WithKind(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// KindOf returns the Kind tagged onto err by WithKind, or Unknown if none.
func KindOf(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return NotFound
	case errors.Is(err, ErrNotSupported):
		return NotSupported
	case errors.Is(err, ErrCancelled):
		return Cancelled
	case errors.Is(err, ErrProtocolError):
		return ProtocolError
	default:
		return Unknown
	}
}
