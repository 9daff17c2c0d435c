package commands

import (
	"context"
)

type SignPendingCmd struct {
	Tracing bool `help:"enable tracing" default:"false" env:"CERTSIGN_TRACING"`

	Store    StoreFlags   `embed:""`
	Storage  StorageFlags `embed:"" prefix:"storage-"`
	Signer   SignerFlags  `embed:"" prefix:"signer-"`
	Packages PackageFlags `embed:"" prefix:"packages-"`
}

func (c *SignPendingCmd) Run(ctx context.Context, globals *Globals) error {
	logger := setupLogging(globals)

	defer setupTelemetry(ctx, c.Tracing, globals.Version)()

	stores, closeStores, err := c.Store.open(ctx)
	if err != nil {
		return err
	}
	defer closeStores()

	pipe, err := newPipeline(ctx, stores, c.Packages, c.Storage, c.Signer)
	if err != nil {
		return err
	}

	res, err := pipe.orchestrator.SignAllPending(ctx)
	if err != nil {
		return err
	}

	logger.Info().Int("signed", res.Signed).Int("skipped", res.Skipped).Msg("Signing complete")
	return nil
}
