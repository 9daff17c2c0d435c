package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/certsign/internal/models"
	"github.com/wolfeidau/certsign/internal/store"
)

const packageColumns = `
	package_id, user_id, original_filename, local_path, size,
	app_name, bundle_id, version,
	signed_ipa_key, signed_plist_key, ipa_url, plist_url, install_link, signed_at,
	created_at
`

// PackageStore implements store.PackageStore using PostgreSQL.
type PackageStore struct {
	pool *pgxpool.Pool
}

// NewPackageStore creates a new PostgreSQL-backed package store.
func NewPackageStore(pool *pgxpool.Pool) *PackageStore {
	return &PackageStore{pool: pool}
}

// Create inserts a new package.
func (s *PackageStore) Create(ctx context.Context, pkg *models.Package) error {
	query := `
		INSERT INTO packages (
			package_id, user_id, original_filename, local_path, size,
			app_name, bundle_id, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	err := s.pool.QueryRow(ctx, query,
		pkg.PackageID,
		pkg.UserID,
		pkg.OriginalFilename,
		pkg.LocalPath,
		pkg.Size,
		pkg.AppName,
		pkg.BundleID,
		pkg.Version,
	).Scan(&pkg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create package: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("package_id", pkg.PackageID.String()).
		Int64("user_id", pkg.UserID).
		Int64("size", pkg.Size).
		Msg("Created package")

	return nil
}

// Get retrieves a package by ID.
func (s *PackageStore) Get(ctx context.Context, packageID uuid.UUID) (*models.Package, error) {
	query := `SELECT ` + packageColumns + ` FROM packages WHERE package_id = $1`

	pkg, err := scanPackage(s.pool.QueryRow(ctx, query, packageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrPackageNotFound
		}
		return nil, fmt.Errorf("failed to get package: %w", mapPostgresError(err))
	}

	return pkg, nil
}

// List returns packages matching the filters, oldest first.
func (s *PackageStore) List(ctx context.Context, opts store.ListPackagesOptions) ([]*models.Package, error) {
	query := `SELECT ` + packageColumns + ` FROM packages
		WHERE ($1::bigint = 0 OR user_id = $1)
		  AND (NOT $2::boolean OR install_link = '')
		ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, opts.UserID, opts.UnsignedOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var out []*models.Package
	for rows.Next() {
		pkg, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan package: %w", err)
		}
		out = append(out, pkg)
	}

	return out, rows.Err()
}

// MarkSigned writes metadata and links together, only while the package is unsigned.
func (s *PackageStore) MarkSigned(ctx context.Context, packageID uuid.UUID, a models.SignedArtifacts) error {
	query := `
		UPDATE packages
		SET app_name = $2, bundle_id = $3, version = $4,
		    signed_ipa_key = $5, signed_plist_key = $6,
		    ipa_url = $7, plist_url = $8, install_link = $9,
		    signed_at = $10
		WHERE package_id = $1 AND install_link = ''
	`

	tag, err := s.pool.Exec(ctx, query,
		packageID,
		a.AppName,
		a.BundleID,
		a.Version,
		a.SignedIPAKey,
		a.SignedPlistKey,
		a.IPAURL,
		a.PlistURL,
		a.InstallLink,
		a.SignedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to mark package signed: %w", mapPostgresError(err))
	}

	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, packageID); err != nil {
			return err
		}
		return store.ErrPackageSigned
	}

	return nil
}

// Delete removes and returns a package.
func (s *PackageStore) Delete(ctx context.Context, packageID uuid.UUID) (*models.Package, error) {
	query := `DELETE FROM packages WHERE package_id = $1 RETURNING ` + packageColumns

	pkg, err := scanPackage(s.pool.QueryRow(ctx, query, packageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrPackageNotFound
		}
		return nil, fmt.Errorf("failed to delete package: %w", mapPostgresError(err))
	}

	return pkg, nil
}

func scanPackage(row pgx.Row) (*models.Package, error) {
	var p models.Package
	err := row.Scan(
		&p.PackageID,
		&p.UserID,
		&p.OriginalFilename,
		&p.LocalPath,
		&p.Size,
		&p.AppName,
		&p.BundleID,
		&p.Version,
		&p.SignedIPAKey,
		&p.SignedPlistKey,
		&p.IPAURL,
		&p.PlistURL,
		&p.InstallLink,
		&p.SignedAt,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
