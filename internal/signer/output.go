package signer

import (
	"regexp"
	"strings"

	"github.com/wolfeidau/certsign/internal/models"
)

// Metadata is what the signer reports about the package it signed.
type Metadata struct {
	AppName  string
	BundleID string
	Version  string
}

var (
	appNamePattern  = regexp.MustCompile(`>>> AppName:[ \t]+(.+)`)
	bundleIDPattern = regexp.MustCompile(`>>> BundleId:[ \t]+(.+)`)
	versionPattern  = regexp.MustCompile(`>>> Version:[ \t]+(.+)`)
)

// parseOutput extracts the labelled metadata lines. Missing fields fall back to
// the package placeholders.
func parseOutput(stdout string) Metadata {
	return Metadata{
		AppName:  match(appNamePattern, stdout, models.UnknownAppName),
		BundleID: match(bundleIDPattern, stdout, models.UnknownBundleID),
		Version:  match(versionPattern, stdout, models.UnknownVersion),
	}
}

func match(re *regexp.Regexp, s, fallback string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return fallback
	}
	if v := strings.TrimSpace(m[1]); v != "" {
		return v
	}
	return fallback
}
