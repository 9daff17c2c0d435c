package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/certsign/internal/models"
	"github.com/wolfeidau/certsign/internal/store"
)

// UserStore implements store.UserStore using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new PostgreSQL-backed user store.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// Get retrieves a user by ID.
func (s *UserStore) Get(ctx context.Context, userID int64) (*models.User, error) {
	query := `
		SELECT user_id, username, issuer_token, created_at, updated_at
		FROM users
		WHERE user_id = $1
	`

	var u models.User
	err := s.pool.QueryRow(ctx, query, userID).Scan(
		&u.UserID,
		&u.Username,
		&u.IssuerToken,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", mapPostgresError(err))
	}

	return &u, nil
}

// Upsert creates the user or updates the username and token.
func (s *UserStore) Upsert(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (user_id, username, issuer_token)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET username = EXCLUDED.username,
		    issuer_token = EXCLUDED.issuer_token,
		    updated_at = now()
	`

	if _, err := s.pool.Exec(ctx, query, user.UserID, user.Username, user.IssuerToken); err != nil {
		return fmt.Errorf("failed to upsert user: %w", mapPostgresError(err))
	}

	log.Debug().Int64("user_id", user.UserID).Msg("Upserted user")
	return nil
}
