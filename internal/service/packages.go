package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/certsign/internal/models"
	"github.com/wolfeidau/certsign/internal/packages"
	"github.com/wolfeidau/certsign/internal/store"
)

const packageExt = ".ipa"

// UploadPackage stores an application package for later signing.
func (s *Service) UploadPackage(ctx context.Context, userID int64, filename string, r io.Reader) (*models.Package, error) {
	filename = strings.TrimSpace(filename)
	if !strings.HasSuffix(strings.ToLower(filename), packageExt) {
		return nil, invalid("filename", "must end in .ipa")
	}

	path, size, err := s.files.Save(filename, r)
	if errors.Is(err, packages.ErrTooLarge) {
		return nil, invalid("file", err.Error())
	}
	if err != nil {
		return nil, err
	}

	pkg := &models.Package{
		PackageID:        uuid.Must(uuid.NewV7()),
		UserID:           userID,
		OriginalFilename: filename,
		LocalPath:        path,
		Size:             size,
		AppName:          models.UnknownAppName,
		BundleID:         models.UnknownBundleID,
		Version:          models.UnknownVersion,
		CreatedAt:        s.now().UTC(),
	}

	if err := s.stores.Packages.Create(ctx, pkg); err != nil {
		if rerr := s.files.Remove(path); rerr != nil {
			log.Ctx(ctx).Error().Err(rerr).Str("path", path).Msg("Failed to remove package file")
		}
		return nil, fmt.Errorf("failed to create package: %w", err)
	}

	log.Ctx(ctx).Info().
		Int64("user_id", userID).
		Str("package_id", pkg.PackageID.String()).
		Int64("size", size).
		Msg("Package uploaded")

	return pkg, nil
}

// ListPackages returns the user's packages, oldest first.
func (s *Service) ListPackages(ctx context.Context, userID int64) ([]*models.Package, error) {
	return s.stores.Packages.List(ctx, store.ListPackagesOptions{UserID: userID})
}

// GetPackage returns a package the user owns. Other users' packages are reported as not found.
func (s *Service) GetPackage(ctx context.Context, userID int64, packageID uuid.UUID) (*models.Package, error) {
	pkg, err := s.stores.Packages.Get(ctx, packageID)
	if err != nil {
		return nil, err
	}
	if pkg.UserID != userID {
		return nil, store.ErrPackageNotFound
	}
	return pkg, nil
}

// DeletePackage removes the package row, its local file and any published artifacts.
// File and storage cleanup failures are logged, not returned.
func (s *Service) DeletePackage(ctx context.Context, userID int64, packageID uuid.UUID) error {
	if _, err := s.GetPackage(ctx, userID, packageID); err != nil {
		return err
	}

	pkg, err := s.stores.Packages.Delete(ctx, packageID)
	if err != nil {
		return err
	}

	logger := log.Ctx(ctx).With().Str("package_id", packageID.String()).Logger()

	if pkg.LocalPath != "" {
		if err := s.files.Remove(pkg.LocalPath); err != nil {
			logger.Warn().Err(err).Msg("Failed to remove package file")
		}
	}

	if pkg.SignedIPAKey != "" || pkg.SignedPlistKey != "" {
		if err := s.publisher.Unpublish(ctx, pkg.SignedIPAKey, pkg.SignedPlistKey); err != nil {
			logger.Warn().Err(err).Msg("Failed to remove published artifacts")
		}
	}

	logger.Info().Msg("Package deleted")
	return nil
}

// InstallLink returns the package's install link, shortened when possible. The user
// needs at least one ready and enabled registration.
func (s *Service) InstallLink(ctx context.Context, userID int64, packageID uuid.UUID) (string, error) {
	pkg, err := s.GetPackage(ctx, userID, packageID)
	if err != nil {
		return "", err
	}
	if !pkg.IsSigned() {
		return "", ErrPackageNotSigned
	}

	ready, err := s.stores.Registrations.ListReady(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to list registrations: %w", err)
	}
	if len(ready) == 0 {
		return "", ErrRegistrationDisabled
	}

	return s.shortener.Shorten(ctx, pkg.InstallLink), nil
}

// DisplayName is the app name, or the upload's file name while it is still a placeholder.
func DisplayName(p *models.Package) string {
	if p.AppName != "" && p.AppName != models.UnknownAppName {
		return p.AppName
	}
	name := p.OriginalFilename
	if strings.HasSuffix(strings.ToLower(name), packageExt) {
		name = name[:len(name)-len(packageExt)]
	}
	return name
}
