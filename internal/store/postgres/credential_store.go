package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfeidau/certsign/internal/models"
	"github.com/wolfeidau/certsign/internal/store"
)

// CredentialStore implements store.CredentialStore using PostgreSQL.
type CredentialStore struct {
	pool *pgxpool.Pool
}

// NewCredentialStore creates a new PostgreSQL-backed credential store.
func NewCredentialStore(pool *pgxpool.Pool) *CredentialStore {
	return &CredentialStore{pool: pool}
}

// Save upserts the credential, replacing the payload wholesale.
func (s *CredentialStore) Save(ctx context.Context, cred *models.Credential) error {
	query := `
		INSERT INTO credentials (user_id, udid, certificate_id, payload, fetched_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id, udid, certificate_id) DO UPDATE
		SET payload = EXCLUDED.payload, fetched_at = EXCLUDED.fetched_at
		RETURNING fetched_at
	`

	err := s.pool.QueryRow(ctx, query,
		cred.UserID,
		cred.UDID,
		cred.CertificateID,
		nonNilPayload(cred.Payload),
	).Scan(&cred.FetchedAt)
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", mapPostgresError(err))
	}

	return nil
}

// Latest returns the most recently fetched credential for a device.
func (s *CredentialStore) Latest(ctx context.Context, userID int64, udid string) (*models.Credential, error) {
	query := `
		SELECT user_id, udid, certificate_id, payload, fetched_at
		FROM credentials
		WHERE user_id = $1 AND udid = $2
		ORDER BY fetched_at DESC
		LIMIT 1
	`

	var c models.Credential
	err := s.pool.QueryRow(ctx, query, userID, udid).Scan(
		&c.UserID,
		&c.UDID,
		&c.CertificateID,
		&c.Payload,
		&c.FetchedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to get credential: %w", mapPostgresError(err))
	}

	return &c, nil
}
