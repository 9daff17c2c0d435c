package service

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every ValidationError
	ErrValidation = errors.New("validation failed")
	// ErrNoIssuerToken means the user has not set an issuer token yet
	ErrNoIssuerToken = errors.New("issuer token not set")
	// ErrRegistrationDisabled means the registration exists but is switched off
	ErrRegistrationDisabled = errors.New("registration disabled")
	// ErrCredentialNotReady means the issuer is still generating the credential
	ErrCredentialNotReady = errors.New("credential not ready")
	// ErrNoCertificates means the issuer returned nothing for a query
	ErrNoCertificates = errors.New("no certificates found")
	// ErrPackageNotSigned means a package has no install link yet
	ErrPackageNotSigned = errors.New("package not signed")
	// ErrForbidden means the operation is restricted to admins
	ErrForbidden = errors.New("forbidden")
)

// ValidationError is a user-correctable input problem.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
