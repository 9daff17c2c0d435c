package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/certsign/internal/store"
)

func TestMapPostgresError(t *testing.T) {
	plain := errors.New("boom")

	tests := []struct {
		name   string
		err    error
		target error
	}{
		{
			name:   "registration unique",
			err:    &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: constraintRegistrationUserUDID},
			target: store.ErrRegistrationExists,
		},
		{
			name:   "key unique",
			err:    &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: constraintKeyPK},
			target: store.ErrKeyExists,
		},
		{
			name:   "foreign key",
			err:    &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation, Detail: "user_id=5"},
			target: store.ErrUserNotFound,
		},
		{
			name:   "not postgres",
			err:    plain,
			target: plain,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, mapPostgresError(tt.err), tt.target)
		})
	}

	require.NoError(t, mapPostgresError(nil))
}

func TestIsUniqueViolation(t *testing.T) {
	require.True(t, isUniqueViolation(&pgconn.PgError{Code: pgerrcode.UniqueViolation}))
	require.False(t, isUniqueViolation(&pgconn.PgError{Code: pgerrcode.CheckViolation}))
	require.False(t, isUniqueViolation(errors.New("x")))
}

func TestLoadMigrations(t *testing.T) {
	migrations, err := loadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	require.Equal(t, 1, migrations[0].version)
	require.Contains(t, migrations[0].sql, "CREATE TABLE IF NOT EXISTS registrations")
}
