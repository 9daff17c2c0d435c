// Package signing runs the sign-then-publish pipeline over a user's unsigned
// packages.
package signing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wolfeidau/certsign/internal/credential"
	"github.com/wolfeidau/certsign/internal/models"
	"github.com/wolfeidau/certsign/internal/publisher"
	"github.com/wolfeidau/certsign/internal/signer"
	"github.com/wolfeidau/certsign/internal/store"
	"github.com/wolfeidau/certsign/internal/telemetry"
)

// ErrNoCredential is recorded for packages whose owner has no ready credential.
var ErrNoCredential = errors.New("no ready credential")

// PackageSigner re-signs a package file.
type PackageSigner interface {
	Sign(ctx context.Context, packagePath string, creds signer.Credentials) (*signer.Result, error)
}

// ArtifactPublisher uploads signed packages.
type ArtifactPublisher interface {
	Publish(ctx context.Context, signed []byte, appName, bundleID, version string) (*publisher.Published, error)
	Unpublish(ctx context.Context, ipaKey, plistKey string) error
}

// FileChecker reports whether a local package file is present.
type FileChecker interface {
	Exists(path string) bool
}

// Config configures an Orchestrator.
type Config struct {
	Stores    *store.Stores
	Signer    PackageSigner
	Publisher ArtifactPublisher
	Files     FileChecker
}

// Skip records why a package was not signed.
type Skip struct {
	PackageID uuid.UUID
	UserID    int64
	Err       error
}

// BatchResult summarizes a signing batch. Partial success is normal.
type BatchResult struct {
	Signed  int
	Skipped int
	Skips   []Skip
}

func (r *BatchResult) add(o *BatchResult) {
	r.Signed += o.Signed
	r.Skipped += o.Skipped
	r.Skips = append(r.Skips, o.Skips...)
}

func (r *BatchResult) skip(ctx context.Context, pkg *models.Package, err error) {
	r.Skipped++
	r.Skips = append(r.Skips, Skip{PackageID: pkg.PackageID, UserID: pkg.UserID, Err: err})

	telemetry.GetMetrics().PackagesSkippedTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", skipReason(err))))

	log.Ctx(ctx).Warn().Err(err).
		Int64("user_id", pkg.UserID).
		Str("package_id", pkg.PackageID.String()).
		Msg("Skipped package")
}

// Orchestrator signs and publishes packages one at a time.
type Orchestrator struct {
	stores    *store.Stores
	signer    PackageSigner
	publisher ArtifactPublisher
	files     FileChecker
	now       func() time.Time
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		stores:    cfg.Stores,
		signer:    cfg.Signer,
		publisher: cfg.Publisher,
		files:     cfg.Files,
		now:       time.Now,
	}
}

// SignPending signs every unsigned package the user owns with cred. Packages
// whose local file is gone and packages that fail to sign or publish are skipped.
// Only a failure to list packages returns an error.
func (o *Orchestrator) SignPending(ctx context.Context, userID int64, cred *models.Credential) (*BatchResult, error) {
	pkgs, err := o.stores.Packages.List(ctx, store.ListPackagesOptions{UserID: userID, UnsignedOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list unsigned packages: %w", err)
	}

	return o.signPackages(ctx, pkgs, cred), nil
}

// SignAllPending signs unsigned packages for every user that has a ready,
// enabled registration with a complete cached credential.
func (o *Orchestrator) SignAllPending(ctx context.Context) (*BatchResult, error) {
	pkgs, err := o.stores.Packages.List(ctx, store.ListPackagesOptions{UnsignedOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list unsigned packages: %w", err)
	}

	byUser := make(map[int64][]*models.Package)
	var users []int64
	for _, p := range pkgs {
		if _, ok := byUser[p.UserID]; !ok {
			users = append(users, p.UserID)
		}
		byUser[p.UserID] = append(byUser[p.UserID], p)
	}

	total := &BatchResult{}
	for _, userID := range users {
		cred, err := o.ReadyCredential(ctx, userID)
		if err != nil {
			for _, p := range byUser[userID] {
				total.skip(ctx, p, err)
			}
			continue
		}

		total.add(o.signPackages(ctx, byUser[userID], cred))
	}

	log.Ctx(ctx).Info().
		Int("users", len(users)).
		Int("signed", total.Signed).
		Int("skipped", total.Skipped).
		Msg("Signing fan-out complete")

	return total, nil
}

// ReadyCredential returns the first complete cached credential among the user's
// ready and enabled registrations.
func (o *Orchestrator) ReadyCredential(ctx context.Context, userID int64) (*models.Credential, error) {
	regs, err := o.stores.Registrations.ListReady(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ready registrations: %w", err)
	}

	for _, reg := range regs {
		cred, err := o.stores.Credentials.Latest(ctx, userID, reg.UDID)
		if errors.Is(err, store.ErrCredentialNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if credential.IsComplete(cred.Payload) {
			return cred, nil
		}
	}

	return nil, ErrNoCredential
}

func (o *Orchestrator) signPackages(ctx context.Context, pkgs []*models.Package, cred *models.Credential) *BatchResult {
	res := &BatchResult{}
	if len(pkgs) == 0 {
		return res
	}

	creds, err := signer.CredentialsFromPayload(cred.Payload)
	if err != nil {
		for _, p := range pkgs {
			res.skip(ctx, p, err)
		}
		return res
	}

	for _, p := range pkgs {
		if p.IsSigned() {
			continue
		}
		if !o.files.Exists(p.LocalPath) {
			res.skip(ctx, p, &signer.Error{Stage: signer.ErrPackageMissing})
			continue
		}

		if err := o.signOne(ctx, p, creds); err != nil {
			res.skip(ctx, p, err)
			continue
		}

		res.Signed++
		telemetry.GetMetrics().PackagesSignedTotal.Add(ctx, 1)
	}

	return res
}

func (o *Orchestrator) signOne(ctx context.Context, pkg *models.Package, creds signer.Credentials) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	result, err := o.signer.Sign(ctx, pkg.LocalPath, creds)
	if err != nil {
		return err
	}

	pub, err := o.publisher.Publish(ctx, result.SignedBytes, result.AppName, result.BundleID, result.Version)
	if err != nil {
		return err
	}

	err = o.stores.Packages.MarkSigned(ctx, pkg.PackageID, models.SignedArtifacts{
		AppName:        result.AppName,
		BundleID:       result.BundleID,
		Version:        result.Version,
		SignedIPAKey:   pub.IPAKey,
		SignedPlistKey: pub.PlistKey,
		IPAURL:         pub.IPAURL,
		PlistURL:       pub.PlistURL,
		InstallLink:    pub.InstallLink,
		SignedAt:       o.now().UTC(),
	})
	if err != nil {
		// the row was signed concurrently or deleted; drop the artifacts we just uploaded
		if uerr := o.publisher.Unpublish(context.WithoutCancel(ctx), pub.IPAKey, pub.PlistKey); uerr != nil {
			log.Ctx(ctx).Error().Err(uerr).Str("package_id", pkg.PackageID.String()).Msg("Failed to remove unused artifacts")
		}
		return fmt.Errorf("failed to record signed package: %w", err)
	}

	log.Ctx(ctx).Info().
		Str("package_id", pkg.PackageID.String()).
		Str("bundle_id", result.BundleID).
		Str("version", result.Version).
		Msg("Package signed")

	return nil
}

func skipReason(err error) string {
	var serr *signer.Error
	switch {
	case errors.As(err, &serr):
		return serr.Stage.Error()
	case errors.Is(err, publisher.ErrPublish):
		return "publish"
	case errors.Is(err, ErrNoCredential):
		return "no_credential"
	case errors.Is(err, store.ErrPackageSigned), errors.Is(err, store.ErrPackageNotFound):
		return "conflict"
	default:
		return "other"
	}
}
