package llm

import "fmt"

// ErrorKind classifies errors surfaced by a ModelClient or the stream
// reconstructor. Every kind is fatal to the task that observes it; retry of
// transient kinds is the transport layer's concern, not the loop's.
type ErrorKind string

const (
	ErrAuth        ErrorKind = "auth"
	ErrTransport   ErrorKind = "transport"
	ErrRateLimited ErrorKind = "rate_limited"
	ErrNotFound    ErrorKind = "model_not_found"
	ErrProtocol    ErrorKind = "protocol"
	ErrUnknown     ErrorKind = "unknown"
)

// ModelError is the error type for everything that crosses the ModelClient
// boundary.
type ModelError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *ModelError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("model error (%s): %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("model error (%s): %s", e.Kind, e.Message)
}

func (e *ModelError) Unwrap() error {
	return e.Cause
}

// NewModelError builds a ModelError of the given kind.
func NewModelError(kind ErrorKind, message string, cause error) *ModelError {
	return &ModelError{Kind: kind, Message: message, Cause: cause}
}

// NewProtocolError builds a ModelError for a stream-ordering violation.
func NewProtocolError(format string, args ...any) *ModelError {
	return &ModelError{Kind: ErrProtocol, Message: fmt.Sprintf(format, args...)}
}

// IsRetryable reports whether a transport-level retry could help. Auth,
// not-found, and protocol violations never resolve on their own.
func IsRetryable(err error) bool {
	me, ok := err.(*ModelError)
	if !ok {
		return false
	}
	switch me.Kind {
	case ErrTransport, ErrRateLimited, ErrUnknown:
		return true
	default:
		return false
	}
}
