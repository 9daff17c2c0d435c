package models

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Well known fields of an issuer certificate payload.
const (
	PayloadFieldID            = "id"
	PayloadFieldUDID          = "udid"
	PayloadFieldCertificateID = "certificate_id"
	PayloadFieldKeyArchive    = "p12"
	PayloadFieldProfile       = "mobileprovision"
	PayloadFieldPassword      = "p12_password"
	PayloadFieldName          = "name"
	PayloadFieldPlan          = "plan"
)

// CertificatePayload is the raw JSON object returned by the issuing service for a device.
// It is stored wholesale and never merged field by field.
type CertificatePayload map[string]any

// ParsePayload decodes a stored JSON payload. An empty input yields an empty payload.
func ParsePayload(data []byte) (CertificatePayload, error) {
	if len(data) == 0 {
		return CertificatePayload{}, nil
	}

	var p CertificatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode certificate payload: %w", err)
	}
	if p == nil {
		p = CertificatePayload{}
	}
	return p, nil
}

// JSON encodes the payload for persistence.
func (p CertificatePayload) JSON() ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(p))
}

// String returns the field as a string. Numbers are formatted without exponent,
// nil and missing fields yield "".
func (p CertificatePayload) String(field string) string {
	v, ok := p[field]
	if !ok || v == nil {
		return ""
	}

	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// ID returns the issuer's identifier for this certificate.
func (p CertificatePayload) ID() string {
	if id := p.String(PayloadFieldID); id != "" {
		return id
	}
	return p.String(PayloadFieldCertificateID)
}

// Blob returns the field only when it is a JSON string. Booleans, numbers and
// objects are never blob content and yield "".
func (p CertificatePayload) Blob(field string) string {
	s, _ := p[field].(string)
	return s
}

// KeyArchive returns the encoded private-key archive blob.
func (p CertificatePayload) KeyArchive() string {
	return p.Blob(PayloadFieldKeyArchive)
}

// Profile returns the encoded provisioning-profile blob.
func (p CertificatePayload) Profile() string {
	return p.Blob(PayloadFieldProfile)
}

// DecodeBlobs base64-decodes the key archive and profile.
func (p CertificatePayload) DecodeBlobs() (keyArchive []byte, profile []byte, err error) {
	keyArchive, err = decodeBlob(p.KeyArchive())
	if err != nil {
		return nil, nil, fmt.Errorf("key archive: %w", err)
	}

	profile, err = decodeBlob(p.Profile())
	if err != nil {
		return nil, nil, fmt.Errorf("provisioning profile: %w", err)
	}

	return keyArchive, profile, nil
}

func decodeBlob(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		// some issuers strip padding
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
		if err != nil {
			return nil, fmt.Errorf("invalid base64: %w", err)
		}
	}
	return data, nil
}
