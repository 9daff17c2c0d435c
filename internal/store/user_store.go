package store

import (
	"context"

	"github.com/wolfeidau/certsign/internal/models"
)

// UserStore manages users and their issuer tokens.
type UserStore interface {
	// Get returns the user or ErrUserNotFound.
	Get(ctx context.Context, userID int64) (*models.User, error)

	// Upsert creates the user or updates the username and issuer token.
	Upsert(ctx context.Context, user *models.User) error
}
