package authority

import (
	"errors"
	"fmt"
)

// RejectedError means the authority answered and refused the request (4xx other
// than 401, 403, 408 and 429).
type RejectedError struct {
	Status int
	Detail string
}

func (e *RejectedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("rejected: status=%d", e.Status)
	}
	return fmt.Sprintf("rejected: status=%d detail=%s", e.Status, e.Detail)
}

// TransportError means no usable answer was obtained: network failure, server error,
// auth or throttling status, or a body that does not decode into a snapshot.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// IsRejected reports whether err carries a RejectedError.
func IsRejected(err error) (*RejectedError, bool) {
	var re *RejectedError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
