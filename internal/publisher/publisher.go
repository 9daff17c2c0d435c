// Package publisher uploads signed packages with their install manifests and
// builds the install deep link.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/certsign/internal/objectstore"
	"github.com/wolfeidau/certsign/internal/telemetry"
)

const (
	packageContentType  = "application/octet-stream"
	manifestContentType = "application/xml"

	installLinkPrefix = "itms-services://?action=download-manifest&url="

	// DefaultIconKey is served as the icon when no icon URL is configured.
	DefaultIconKey = "default-app-icon.png"
)

// ErrPublish matches every publish failure.
var ErrPublish = errors.New("publish failed")

// Error is an upload failure for a key.
type Error struct {
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("publish %s: %v", e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes every Error match ErrPublish.
func (e *Error) Is(target error) bool { return target == ErrPublish }

// Published is the result of a successful publish.
type Published struct {
	IPAKey      string
	PlistKey    string
	IPAURL      string
	PlistURL    string
	InstallLink string
}

// Publisher uploads artifacts to object storage.
type Publisher struct {
	storage objectstore.Storage
	iconURL string
	newKey  func() string
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithIconURL sets the icon shown while installing.
func WithIconURL(url string) Option {
	return func(p *Publisher) { p.iconURL = url }
}

// New creates a Publisher.
func New(storage objectstore.Storage, opts ...Option) *Publisher {
	p := &Publisher{
		storage: storage,
		newKey:  func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.iconURL == "" {
		p.iconURL = storage.URL(DefaultIconKey)
	}
	return p
}

// Publish uploads the signed package, then its manifest. If the manifest upload
// fails the package is deleted again so no half-published pair is left behind.
func (p *Publisher) Publish(ctx context.Context, signed []byte, appName, bundleID, version string) (*Published, error) {
	m := telemetry.GetMetrics()

	ipaKey := p.key(".ipa")
	plistKey := p.key(".plist")

	if err := p.storage.Put(ctx, ipaKey, signed, packageContentType); err != nil {
		m.PublishFailuresTotal.Add(ctx, 1)
		return nil, &Error{Key: ipaKey, Err: err}
	}

	ipaURL := p.storage.URL(ipaKey)

	doc, err := Manifest{
		PackageURL: ipaURL,
		IconURL:    p.iconURL,
		BundleID:   bundleID,
		Version:    version,
		Title:      appName,
	}.Encode()
	if err == nil {
		err = p.storage.Put(ctx, plistKey, doc, manifestContentType)
	}
	if err != nil {
		m.PublishFailuresTotal.Add(ctx, 1)
		p.compensate(ctx, ipaKey)
		return nil, &Error{Key: plistKey, Err: err}
	}

	plistURL := p.storage.URL(plistKey)

	log.Debug().Str("ipa_key", ipaKey).Str("plist_key", plistKey).Msg("Published signed package")

	return &Published{
		IPAKey:      ipaKey,
		PlistKey:    plistKey,
		IPAURL:      ipaURL,
		PlistURL:    plistURL,
		InstallLink: InstallLink(plistURL),
	}, nil
}

// Unpublish deletes both artifacts. Empty keys are ignored.
func (p *Publisher) Unpublish(ctx context.Context, ipaKey, plistKey string) error {
	var errs []error
	for _, key := range []string{ipaKey, plistKey} {
		if key == "" {
			continue
		}
		if err := p.storage.Delete(ctx, key); err != nil {
			errs = append(errs, &Error{Key: key, Err: err})
		}
	}
	return errors.Join(errs...)
}

// InstallLink builds the deep link that installs from a manifest URL.
func InstallLink(manifestURL string) string {
	return installLinkPrefix + manifestURL
}

func (p *Publisher) key(ext string) string {
	return p.newKey() + ext
}

// compensate removes an uploaded package after its manifest failed. It runs
// detached from ctx so a cancelled request still cleans up.
func (p *Publisher) compensate(ctx context.Context, key string) {
	if err := p.storage.Delete(context.WithoutCancel(ctx), key); err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to remove orphaned package after manifest upload failed")
	}
}
