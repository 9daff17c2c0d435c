// Package credential classifies issuer certificate payloads.
package credential

import (
	"strings"

	"github.com/wolfeidau/certsign/internal/models"
)

// MinProfileLength is the trimmed length a provisioning profile blob must exceed to be
// considered real rather than a placeholder.
const MinProfileLength = 10

// Evaluate decides the lifecycle status of a payload. It is the only classifier used
// by registration, search, toggle, download and reconciliation.
func Evaluate(payload models.CertificatePayload) models.RegistrationStatus {
	if IsComplete(payload) {
		return models.StatusReady
	}
	return models.StatusProcessing
}

// IsComplete returns true if both the key archive and the provisioning profile are present.
func IsComplete(payload models.CertificatePayload) bool {
	if payload == nil {
		return false
	}

	if !present(payload.KeyArchive()) {
		return false
	}

	profile := payload.Profile()
	if !present(profile) {
		return false
	}

	return len(strings.TrimSpace(profile)) > MinProfileLength
}

func present(blob string) bool {
	s := strings.TrimSpace(blob)
	switch s {
	case "", "null", `""`:
		return false
	}
	return true
}

// First returns the first payload in a list, or nil.
func First(payloads []models.CertificatePayload) models.CertificatePayload {
	if len(payloads) == 0 {
		return nil
	}
	return payloads[0]
}

// Pick returns the first complete payload, falling back to the first payload.
func Pick(payloads []models.CertificatePayload) models.CertificatePayload {
	for _, p := range payloads {
		if IsComplete(p) {
			return p
		}
	}
	return First(payloads)
}
