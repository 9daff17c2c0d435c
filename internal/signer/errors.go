package signer

import (
	"errors"
	"fmt"
)

// ErrSigning matches every signing failure.
var ErrSigning = errors.New("signing failed")

// Failure stages.
var (
	// ErrPackageMissing indicates the local package file does not exist
	ErrPackageMissing = errors.New("package file missing")
	// ErrCredentialMissing indicates the key archive or profile is empty
	ErrCredentialMissing = errors.New("credential material missing")
	// ErrInvalidKeyArchive indicates the key archive cannot be opened with the activation password
	ErrInvalidKeyArchive = errors.New("invalid key archive")
	// ErrInvalidProfile indicates the provisioning profile is not a signed property list
	ErrInvalidProfile = errors.New("invalid provisioning profile")
	// ErrToolNotFound indicates the signer binary is not installed
	ErrToolNotFound = errors.New("signer binary not found")
	// ErrToolFailed indicates the signer exited non-zero or timed out
	ErrToolFailed = errors.New("signer failed")
	// ErrOutputMissing indicates the signer exited cleanly without producing a package
	ErrOutputMissing = errors.New("signed package missing")
)

// Error is a signing failure at a given stage. Output holds the tool's combined
// output when the tool ran.
type Error struct {
	Stage  error
	Err    error
	Output string
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %v", e.Stage, e.Err)
	}
	return e.Stage.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches ErrSigning and the failure stage.
func (e *Error) Is(target error) bool {
	return target == ErrSigning || target == e.Stage
}

func stageError(stage, err error) *Error {
	return &Error{Stage: stage, Err: err}
}
