package store

import (
	"context"

	"github.com/wolfeidau/certsign/internal/models"
)

// CredentialStore caches the most recent issuer payload per device.
type CredentialStore interface {
	// Save replaces the cached credential for (user, udid, certificate id).
	Save(ctx context.Context, cred *models.Credential) error

	// Latest returns the most recently fetched credential for a device.
	Latest(ctx context.Context, userID int64, udid string) (*models.Credential, error)
}
