package models

import (
	"time"

	"github.com/google/uuid"
)

// RegistrationStatus is the lifecycle state of a device registration.
type RegistrationStatus string

const (
	// StatusProcessing means the issuer is still generating the credential.
	StatusProcessing RegistrationStatus = "processing"
	// StatusReady means a complete credential is available. It is terminal.
	StatusReady RegistrationStatus = "ready"
)

// Registration is a device registered with the issuing service on behalf of a user.
// There is at most one registration per (UserID, UDID).
type Registration struct {
	RegistrationID uuid.UUID // UUIDv7
	UserID         int64
	UDID           string
	CertificateID  string
	Plan           string
	Payload        CertificatePayload // last known issuer payload
	Status         RegistrationStatus
	Enabled        bool // disabled registrations never deliver artifacts
	CreatedAt      time.Time
}

// IsReady returns true if the registration has a complete credential.
func (r *Registration) IsReady() bool {
	return r.Status == StatusReady
}

// PendingRegistration is a processing registration joined with its owner's issuer token.
type PendingRegistration struct {
	Registration
	IssuerToken string
}
