package signer

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"go.mozilla.org/pkcs7"
	"howett.net/plist"
	"software.sslmate.com/src/go-pkcs12"

	"github.com/wolfeidau/certsign/internal/models"
)

// Credentials is the decoded key archive and provisioning profile.
type Credentials struct {
	KeyArchive []byte
	Profile    []byte
}

// CredentialsFromPayload decodes the blobs of an issuer payload.
func CredentialsFromPayload(p models.CertificatePayload) (Credentials, error) {
	key, profile, err := p.DecodeBlobs()
	if err != nil {
		return Credentials{}, stageError(ErrCredentialMissing, err)
	}

	creds := Credentials{KeyArchive: key, Profile: profile}
	if err := creds.check(); err != nil {
		return Credentials{}, err
	}

	return creds, nil
}

func (c Credentials) check() error {
	if len(c.KeyArchive) == 0 {
		return stageError(ErrCredentialMissing, errors.New("key archive is empty"))
	}
	if len(c.Profile) == 0 {
		return stageError(ErrCredentialMissing, errors.New("provisioning profile is empty"))
	}
	return nil
}

// ProfileInfo is the subset of the provisioning profile we log and report.
type ProfileInfo struct {
	Name               string    `plist:"Name"`
	UUID               string    `plist:"UUID"`
	TeamName           string    `plist:"TeamName"`
	ExpirationDate     time.Time `plist:"ExpirationDate"`
	ProvisionedDevices []string  `plist:"ProvisionedDevices"`

	// Degraded is set when the profile was accepted on markers alone.
	Degraded bool `plist:"-"`
}

// Expired reports whether the profile expiry is in the past. Unknown expiry is not expired.
func (p *ProfileInfo) Expired(now time.Time) bool {
	return !p.ExpirationDate.IsZero() && now.After(p.ExpirationDate)
}

// checkKeyArchive opens the archive with the activation password.
func checkKeyArchive(data []byte, password string) error {
	if _, _, _, err := pkcs12.DecodeChain(data, password); err != nil {
		return stageError(ErrInvalidKeyArchive, err)
	}
	return nil
}

// inspectProfile parses a CMS signed property list. Content that is not CMS is
// accepted when it visibly carries property-list markers.
func inspectProfile(data []byte) (*ProfileInfo, error) {
	p7, err := pkcs7.Parse(data)
	if err != nil {
		if !hasPlistMarkers(data) {
			return nil, stageError(ErrInvalidProfile, fmt.Errorf("not signed data and no plist markers: %w", err))
		}

		info := &ProfileInfo{}
		if body := extractPlist(data); body != nil {
			_, _ = plist.Unmarshal(body, info)
		}
		info.Degraded = true
		return info, nil
	}

	if err := p7.Verify(); err != nil {
		return nil, stageError(ErrInvalidProfile, fmt.Errorf("signature: %w", err))
	}

	info := &ProfileInfo{}
	if _, err := plist.Unmarshal(p7.Content, info); err != nil {
		return nil, stageError(ErrInvalidProfile, fmt.Errorf("embedded plist: %w", err))
	}

	return info, nil
}

var (
	xmlMarker      = []byte("<?xml")
	plistMarker    = []byte("<plist")
	plistEndMarker = []byte("</plist>")
)

func hasPlistMarkers(data []byte) bool {
	return bytes.Contains(data, xmlMarker) || bytes.Contains(data, plistMarker)
}

func extractPlist(data []byte) []byte {
	start := bytes.Index(data, xmlMarker)
	if start < 0 {
		start = bytes.Index(data, plistMarker)
	}
	end := bytes.LastIndex(data, plistEndMarker)
	if start < 0 || end < start {
		return nil
	}
	return data[start : end+len(plistEndMarker)]
}
