package commands

import (
	"context"
	"fmt"

	postgresstore "github.com/wolfeidau/certsign/internal/store/postgres"
)

type MigrateCmd struct {
	Postgres PostgresFlags `embed:"" prefix:"postgres-"`
}

func (c *MigrateCmd) Run(ctx context.Context, globals *Globals) error {
	logger := setupLogging(globals)

	if err := c.Postgres.Validate(); err != nil {
		return err
	}

	pool, err := postgresstore.Connect(ctx, c.Postgres.config())
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgresstore.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info().Msg("Database migrations completed")
	return nil
}
