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

const registrationColumns = `
	r.registration_id, r.user_id, r.udid, r.certificate_id, r.plan,
	r.payload, r.status, r.enabled, r.created_at
`

// RegistrationStore implements store.RegistrationStore using PostgreSQL.
type RegistrationStore struct {
	pool *pgxpool.Pool
}

// NewRegistrationStore creates a new PostgreSQL-backed registration store.
func NewRegistrationStore(pool *pgxpool.Pool) *RegistrationStore {
	return &RegistrationStore{pool: pool}
}

// Create inserts a registration.
func (s *RegistrationStore) Create(ctx context.Context, reg *models.Registration) error {
	query := `
		INSERT INTO registrations (
			registration_id, user_id, udid, certificate_id, plan,
			payload, status, enabled
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	err := s.pool.QueryRow(ctx, query,
		reg.RegistrationID,
		reg.UserID,
		reg.UDID,
		reg.CertificateID,
		reg.Plan,
		nonNilPayload(reg.Payload),
		reg.Status,
		reg.Enabled,
	).Scan(&reg.CreatedAt)
	if err != nil {
		return mapPostgresError(err)
	}

	log.Debug().
		Int64("user_id", reg.UserID).
		Str("udid", reg.UDID).
		Str("status", string(reg.Status)).
		Msg("Created registration")

	return nil
}

// Get retrieves a registration.
func (s *RegistrationStore) Get(ctx context.Context, userID int64, udid string) (*models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations r WHERE r.user_id = $1 AND r.udid = $2`

	reg, err := scanRegistration(s.pool.QueryRow(ctx, query, userID, udid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("failed to get registration: %w", mapPostgresError(err))
	}

	return reg, nil
}

// ListByUser returns a user's registrations, newest first.
func (s *RegistrationStore) ListByUser(ctx context.Context, userID int64) ([]*models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations r WHERE r.user_id = $1 ORDER BY r.created_at DESC`
	return s.list(ctx, query, userID)
}

// ListReady returns the user's ready and enabled registrations.
func (s *RegistrationStore) ListReady(ctx context.Context, userID int64) ([]*models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations r
		WHERE r.user_id = $1 AND r.status = 'ready' AND r.enabled
		ORDER BY r.created_at DESC`
	return s.list(ctx, query, userID)
}

// ListProcessing returns processing registrations across all users with the owner's token.
func (s *RegistrationStore) ListProcessing(ctx context.Context) ([]*models.PendingRegistration, error) {
	query := `SELECT ` + registrationColumns + `, COALESCE(u.issuer_token, '')
		FROM registrations r
		LEFT JOIN users u ON u.user_id = r.user_id
		WHERE r.status = 'processing'
		ORDER BY r.created_at`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list processing registrations: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var out []*models.PendingRegistration
	for rows.Next() {
		var p models.PendingRegistration
		err := rows.Scan(
			&p.RegistrationID,
			&p.UserID,
			&p.UDID,
			&p.CertificateID,
			&p.Plan,
			&p.Payload,
			&p.Status,
			&p.Enabled,
			&p.CreatedAt,
			&p.IssuerToken,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		out = append(out, &p)
	}

	return out, rows.Err()
}

// MarkReady moves a processing registration to ready.
func (s *RegistrationStore) MarkReady(ctx context.Context, userID int64, udid string, payload models.CertificatePayload) (bool, error) {
	query := `
		UPDATE registrations
		SET status = 'ready', payload = $3
		WHERE user_id = $1 AND udid = $2 AND status = 'processing'
	`

	tag, err := s.pool.Exec(ctx, query, userID, udid, nonNilPayload(payload))
	if err != nil {
		return false, fmt.Errorf("failed to mark registration ready: %w", mapPostgresError(err))
	}

	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, userID, udid); err != nil {
			return false, err
		}
		return false, nil
	}

	log.Debug().Int64("user_id", userID).Str("udid", udid).Msg("Registration ready")
	return true, nil
}

// UpdatePayload replaces the payload of a processing registration.
func (s *RegistrationStore) UpdatePayload(ctx context.Context, userID int64, udid string, payload models.CertificatePayload) (bool, error) {
	query := `
		UPDATE registrations SET payload = $3
		WHERE user_id = $1 AND udid = $2 AND status = 'processing'
	`

	tag, err := s.pool.Exec(ctx, query, userID, udid, nonNilPayload(payload))
	if err != nil {
		return false, fmt.Errorf("failed to update registration payload: %w", mapPostgresError(err))
	}

	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, userID, udid); err != nil {
			return false, err
		}
		return false, nil
	}

	return true, nil
}

// ToggleEnabled flips the enabled flag.
func (s *RegistrationStore) ToggleEnabled(ctx context.Context, userID int64, udid string) (bool, error) {
	query := `
		UPDATE registrations SET enabled = NOT enabled
		WHERE user_id = $1 AND udid = $2
		RETURNING enabled
	`

	var enabled bool
	if err := s.pool.QueryRow(ctx, query, userID, udid).Scan(&enabled); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, store.ErrRegistrationNotFound
		}
		return false, fmt.Errorf("failed to toggle registration: %w", mapPostgresError(err))
	}

	return enabled, nil
}

func (s *RegistrationStore) list(ctx context.Context, query string, args ...any) ([]*models.Registration, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var out []*models.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		out = append(out, reg)
	}

	return out, rows.Err()
}

func scanRegistration(row pgx.Row) (*models.Registration, error) {
	var r models.Registration
	err := row.Scan(
		&r.RegistrationID,
		&r.UserID,
		&r.UDID,
		&r.CertificateID,
		&r.Plan,
		&r.Payload,
		&r.Status,
		&r.Enabled,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func nonNilPayload(p models.CertificatePayload) models.CertificatePayload {
	if p == nil {
		return models.CertificatePayload{}
	}
	return p
}
