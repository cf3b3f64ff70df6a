package gateway

import (
	"errors"
	"fmt"
)

// Kind classifies a failed gateway call.
type Kind int

const (
	// KindServer is any non-2xx answer other than 401: validation, bad
	// credentials, conflicts. The server's message and body are attached.
	KindServer Kind = iota + 1
	// KindSessionExpired is an HTTP 401. Local session state has already
	// been cleared when the caller sees it.
	KindSessionExpired
	// KindTransport covers calls that produced no usable answer: network
	// failure, unreadable or malformed body.
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindServer:
		return "server"
	case KindSessionExpired:
		return "session_expired"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// ErrSessionExpired matches (errors.Is) every KindSessionExpired error.
var ErrSessionExpired = errors.New("session expired")

// Error is the only error type Do returns.
type Error struct {
	Kind      Kind
	Status    int
	Message   string
	RequestID string
	// Fields is the decoded error body, for callers that branch on
	// structured flags such as "needs_verification".
	Fields Fields
	Err    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindSessionExpired:
		return "session expired, please log in again"
	case KindServer:
		return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Message, e.Err)
		}
		return e.Message
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return target == ErrSessionExpired && e.Kind == KindSessionExpired
}

// AsError extracts a *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or 0 when err did not come from the gateway.
func KindOf(err error) Kind {
	if ge, ok := AsError(err); ok {
		return ge.Kind
	}
	return 0
}

// StatusOf returns the HTTP status attached to err, or 0.
func StatusOf(err error) int {
	if ge, ok := AsError(err); ok {
		return ge.Status
	}
	return 0
}
