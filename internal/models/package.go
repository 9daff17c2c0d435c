package models

import (
	"time"

	"github.com/google/uuid"
)

// Placeholder metadata for packages that have not been signed yet.
const (
	UnknownAppName  = "Unknown"
	UnknownBundleID = "com.unknown.app"
	UnknownVersion  = "1.0"
)

// Package is an uploaded application archive and, once signed, its published artifacts.
type Package struct {
	PackageID        uuid.UUID // UUIDv7
	UserID           int64
	OriginalFilename string
	LocalPath        string
	Size             int64

	AppName  string
	BundleID string
	Version  string

	SignedIPAKey   string
	SignedPlistKey string
	IPAURL         string
	PlistURL       string
	InstallLink    string
	SignedAt       *time.Time

	CreatedAt time.Time
}

// IsSigned returns true if the package has an install link. This is the only
// signal used to decide whether a package needs signing.
func (p *Package) IsSigned() bool {
	return p.InstallLink != ""
}

// SignedArtifacts is the combined metadata and link update written once per successful sign.
type SignedArtifacts struct {
	AppName        string
	BundleID       string
	Version        string
	SignedIPAKey   string
	SignedPlistKey string
	IPAURL         string
	PlistURL       string
	InstallLink    string
	SignedAt       time.Time
}
