package scanner

import (
	"errors"
	"fmt"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrUnavailable = errors.New("scan service: unreachable or transport failure")
	ErrNotFound    = errors.New("scan service: upload not found")
	ErrBadStatus   = errors.New("scan service: request rejected")
	ErrDecode      = errors.New("scan service: invalid response format or malformed data")
)

// ScanError is a rich error type that wraps the sentinel errors with context.
type ScanError struct {
	Sentinel  error
	Operation string
	Status    int
	Body      string
	Err       error // Nested lower-level error (e.g. net.Error)
}

func (e *ScanError) Error() string {
	msg := fmt.Sprintf("scanner: %s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ScanError) Unwrap() error {
	return e.Sentinel
}

// Transient reports whether the failure is worth retrying later. Transport
// failures and 5xx responses are transient; 4xx and decode failures are not.
func Transient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
