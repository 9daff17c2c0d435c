package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfeidau/certsign/internal/models"
	"github.com/wolfeidau/certsign/internal/store"
)

// PackageStore implements store.PackageStore using in-memory storage.
type PackageStore struct {
	mu       sync.RWMutex
	packages map[uuid.UUID]*models.Package
}

// NewPackageStore creates a new in-memory package store.
func NewPackageStore() *PackageStore {
	return &PackageStore{
		packages: make(map[uuid.UUID]*models.Package),
	}
}

// Create stores a new package.
func (s *PackageStore) Create(ctx context.Context, pkg *models.Package) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := clonePackage(pkg)
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	s.packages[pkg.PackageID] = clone

	return nil
}

// Get retrieves a package by ID.
func (s *PackageStore) Get(ctx context.Context, packageID uuid.UUID) (*models.Package, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pkg, ok := s.packages[packageID]
	if !ok {
		return nil, store.ErrPackageNotFound
	}

	return clonePackage(pkg), nil
}

// List returns packages matching the filters, oldest first.
func (s *PackageStore) List(ctx context.Context, opts store.ListPackagesOptions) ([]*models.Package, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Package
	for _, p := range s.packages {
		if opts.UserID != 0 && p.UserID != opts.UserID {
			continue
		}
		if opts.UnsignedOnly && p.IsSigned() {
			continue
		}
		out = append(out, clonePackage(p))
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out, nil
}

// MarkSigned writes the signed artifacts if the package is still unsigned.
func (s *PackageStore) MarkSigned(ctx context.Context, packageID uuid.UUID, a models.SignedArtifacts) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pkg, ok := s.packages[packageID]
	if !ok {
		return store.ErrPackageNotFound
	}
	if pkg.IsSigned() {
		return store.ErrPackageSigned
	}

	signedAt := a.SignedAt
	pkg.AppName = a.AppName
	pkg.BundleID = a.BundleID
	pkg.Version = a.Version
	pkg.SignedIPAKey = a.SignedIPAKey
	pkg.SignedPlistKey = a.SignedPlistKey
	pkg.IPAURL = a.IPAURL
	pkg.PlistURL = a.PlistURL
	pkg.InstallLink = a.InstallLink
	pkg.SignedAt = &signedAt

	return nil
}

// Delete removes and returns a package.
func (s *PackageStore) Delete(ctx context.Context, packageID uuid.UUID) (*models.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pkg, ok := s.packages[packageID]
	if !ok {
		return nil, store.ErrPackageNotFound
	}
	delete(s.packages, packageID)

	return pkg, nil
}

func clonePackage(p *models.Package) *models.Package {
	clone := *p
	if p.SignedAt != nil {
		t := *p.SignedAt
		clone.SignedAt = &t
	}
	return &clone
}
