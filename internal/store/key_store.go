package store

import (
	"context"

	"github.com/wolfeidau/certsign/internal/models"
)

// KeyStore manages activation keys.
type KeyStore interface {
	// CreateBatch inserts all keys or none. Returns ErrKeyExists on a code collision.
	CreateBatch(ctx context.Context, keys []*models.ActivationKey) error

	// Get returns a key by code.
	Get(ctx context.Context, code string) (*models.ActivationKey, error)

	// MarkUsed claims an unused key for a user. Returns ErrKeyUsed if it was already claimed.
	MarkUsed(ctx context.Context, code string, userID int64) error

	// Stats returns per-plan counts for keys created by a user (0 = all creators).
	Stats(ctx context.Context, createdBy int64) ([]models.KeyStats, error)
}
