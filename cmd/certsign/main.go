package main

import (
	"context"

	"github.com/alecthomas/kong"

	"github.com/wolfeidau/certsign/cmd/certsign/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Dev     bool `help:"Enable development mode (console logging, debug level)." env:"CERTSIGN_DEV"`
		Version kong.VersionFlag

		Serve       commands.ServeCmd       `cmd:"" help:"Start the API server and the reconciliation loop"`
		Reconcile   commands.ReconcileCmd   `cmd:"" help:"Run one reconciliation sweep over processing registrations"`
		SignPending commands.SignPendingCmd `cmd:"" help:"Sign every unsigned package for users with a ready credential"`
		Migrate     commands.MigrateCmd     `cmd:"" help:"Apply database migrations"`
		Token       commands.TokenCmd       `cmd:"" help:"Issue an API bearer token"`
		Keys        commands.KeysCmd        `cmd:"" help:"Generate an ES256 key pair for API tokens"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("certsign"),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Dev: cli.Dev, Version: version})
	cmd.FatalIfErrorf(err)
}
