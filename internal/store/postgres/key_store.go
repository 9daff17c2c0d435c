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

// KeyStore implements store.KeyStore using PostgreSQL.
type KeyStore struct {
	pool *pgxpool.Pool
}

// NewKeyStore creates a new PostgreSQL-backed activation key store.
func NewKeyStore(pool *pgxpool.Pool) *KeyStore {
	return &KeyStore{pool: pool}
}

// CreateBatch inserts all keys in one transaction.
func (s *KeyStore) CreateBatch(ctx context.Context, keys []*models.ActivationKey) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	batch := &pgx.Batch{}
	for _, k := range keys {
		batch.Queue(`INSERT INTO activation_keys (code, plan, created_by) VALUES ($1, $2, $3)`,
			k.Code, k.Plan, k.CreatedBy)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		if isUniqueViolation(err) {
			return store.ErrKeyExists
		}
		return fmt.Errorf("failed to insert activation keys: %w", mapPostgresError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit activation keys: %w", err)
	}

	log.Debug().Int("count", len(keys)).Msg("Created activation keys")
	return nil
}

// Get retrieves a key by code.
func (s *KeyStore) Get(ctx context.Context, code string) (*models.ActivationKey, error) {
	query := `
		SELECT code, plan, created_by, used, used_by, created_at, used_at
		FROM activation_keys
		WHERE code = $1
	`

	var k models.ActivationKey
	err := s.pool.QueryRow(ctx, query, code).Scan(
		&k.Code,
		&k.Plan,
		&k.CreatedBy,
		&k.Used,
		&k.UsedBy,
		&k.CreatedAt,
		&k.UsedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get activation key: %w", mapPostgresError(err))
	}

	return &k, nil
}

// MarkUsed claims an unused key.
func (s *KeyStore) MarkUsed(ctx context.Context, code string, userID int64) error {
	query := `
		UPDATE activation_keys
		SET used = TRUE, used_by = $2, used_at = now()
		WHERE code = $1 AND NOT used
	`

	tag, err := s.pool.Exec(ctx, query, code, userID)
	if err != nil {
		return fmt.Errorf("failed to mark activation key used: %w", mapPostgresError(err))
	}

	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, code); err != nil {
			return err
		}
		return store.ErrKeyUsed
	}

	return nil
}

// Stats returns per-plan counts.
func (s *KeyStore) Stats(ctx context.Context, createdBy int64) ([]models.KeyStats, error) {
	query := `
		SELECT plan, COUNT(*), COUNT(*) FILTER (WHERE used)
		FROM activation_keys
		WHERE ($1::bigint = 0 OR created_by = $1)
		GROUP BY plan
		ORDER BY plan
	`

	rows, err := s.pool.Query(ctx, query, createdBy)
	if err != nil {
		return nil, fmt.Errorf("failed to query key stats: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var out []models.KeyStats
	for rows.Next() {
		var st models.KeyStats
		if err := rows.Scan(&st.Plan, &st.Total, &st.Used); err != nil {
			return nil, fmt.Errorf("failed to scan key stats: %w", err)
		}
		st.Unused = st.Total - st.Used
		out = append(out, st)
	}

	return out, rows.Err()
}
