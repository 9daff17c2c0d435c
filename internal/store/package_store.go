package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/wolfeidau/certsign/internal/models"
)

// PackageStore manages uploaded package metadata.
type PackageStore interface {
	// Create inserts a new unsigned package.
	Create(ctx context.Context, pkg *models.Package) error

	// Get returns a package by id.
	Get(ctx context.Context, packageID uuid.UUID) (*models.Package, error)

	// List returns packages matching the filters, oldest first.
	List(ctx context.Context, opts ListPackagesOptions) ([]*models.Package, error)

	// MarkSigned writes metadata and links in one statement. Returns ErrPackageSigned
	// if the package already has an install link.
	MarkSigned(ctx context.Context, packageID uuid.UUID, artifacts models.SignedArtifacts) error

	// Delete removes the package row and returns it.
	Delete(ctx context.Context, packageID uuid.UUID) (*models.Package, error)
}

// ListPackagesOptions specifies filters for listing packages
type ListPackagesOptions struct {
	UserID       int64 // Filter by owner (0 = all users)
	UnsignedOnly bool  // Only packages without an install link
}
