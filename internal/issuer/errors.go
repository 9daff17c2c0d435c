package issuer

import (
	"errors"
	"fmt"
)

var (
	// ErrIssuer matches every failure talking to the issuing service.
	ErrIssuer = errors.New("issuer request failed")

	// ErrNoFilter is returned when a certificate lookup has neither a UDID nor a certificate id.
	ErrNoFilter = errors.New("udid or certificate id required")
)

// Error is a network or protocol failure from the issuing service. StatusCode is zero
// when the request never produced a response.
type Error struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("issuer %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("issuer %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes every Error match ErrIssuer.
func (e *Error) Is(target error) bool { return target == ErrIssuer }

func newError(op string, status int, err error) *Error {
	return &Error{Op: op, StatusCode: status, Err: err}
}
