package models

import "time"

// Credential is the latest fetched issuer payload for a device.
// It is replaced wholesale on every successful fetch.
type Credential struct {
	UserID        int64
	UDID          string
	CertificateID string
	Payload       CertificatePayload
	FetchedAt     time.Time
}
