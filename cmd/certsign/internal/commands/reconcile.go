package commands

import (
	"context"

	"github.com/wolfeidau/certsign/internal/reconcile"
)

type ReconcileCmd struct {
	Issuer    IssuerFlags    `embed:"" prefix:"issuer-"`
	Store     StoreFlags     `embed:""`
	Reconcile ReconcileFlags `embed:"" prefix:"reconcile-"`
}

func (c *ReconcileCmd) Run(ctx context.Context, globals *Globals) error {
	logger := setupLogging(globals)

	stores, closeStores, err := c.Store.open(ctx)
	if err != nil {
		return err
	}
	defer closeStores()

	issuerClient, err := c.Issuer.client()
	if err != nil {
		return err
	}

	res, err := c.Reconcile.loop(reconcile.Config{
		Registrations: stores.Registrations,
		Credentials:   stores.Credentials,
		Issuer:        issuerClient,
	}).Tick(ctx)
	if err != nil {
		return err
	}

	logger.Info().
		Int("checked", res.Checked).
		Int("transitioned", res.Transitioned).
		Int("failed", res.Failed).
		Msg("Reconciliation sweep complete")
	return nil
}
