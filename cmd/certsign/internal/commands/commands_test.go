package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/certsign/internal/auth"
)

type testCLI struct {
	Serve     ServeCmd     `cmd:""`
	Reconcile ReconcileCmd `cmd:""`
	Migrate   MigrateCmd   `cmd:""`
}

func parse(t *testing.T, args ...string) *testCLI {
	t.Helper()
	var cli testCLI
	parser, err := kong.New(&cli, kong.Exit(func(int) { t.Fatal("unexpected exit") }))
	require.NoError(t, err)
	_, err = parser.Parse(args)
	require.NoError(t, err)
	return &cli
}

func TestServeDefaults(t *testing.T) {
	cli := parse(t, "serve")

	require.Equal(t, "0.0.0.0:8080", cli.Serve.Listen)
	require.Equal(t, "memory", cli.Serve.Store.Type)
	require.Equal(t, "memory", cli.Serve.Storage.Type)
	require.True(t, cli.Serve.Storage.Checksum)
	require.Equal(t, "zsign", cli.Serve.Signer.Binary)
	require.Equal(t, 10*time.Minute, cli.Serve.Signer.Timeout)
	require.Equal(t, time.Hour, cli.Serve.Reconcile.Interval)
	require.Equal(t, int64(2<<30), cli.Serve.Packages.MaxSize)
}

func TestServeFlags(t *testing.T) {
	cli := parse(t, "serve",
		"--store-type", "postgres",
		"--postgres-conn-string", "postgres://localhost/certsign",
		"--storage-type", "s3",
		"--storage-bucket", "apps",
		"--no-storage-checksum",
		"--signer-timeout", "90s",
		"--reconcile-interval", "5m",
		"--auth-disabled",
		"--admin-ids", "1,2",
	)

	require.Equal(t, "postgres", cli.Serve.Store.Type)
	require.Equal(t, "postgres://localhost/certsign", cli.Serve.Store.Postgres.ConnString)
	require.Equal(t, "s3", cli.Serve.Storage.Type)
	require.Equal(t, "apps", cli.Serve.Storage.Bucket)
	require.False(t, cli.Serve.Storage.Checksum)
	require.Equal(t, 90*time.Second, cli.Serve.Signer.Timeout)
	require.Equal(t, 5*time.Minute, cli.Serve.Reconcile.Interval)
	require.True(t, cli.Serve.Auth.Disabled)
	require.Equal(t, []int64{1, 2}, cli.Serve.AdminIDs)

	cfg := cli.Serve.Store.Postgres.config()
	require.Equal(t, int32(8), cfg.MaxConns)
	require.Equal(t, time.Hour, cfg.MaxConnLifetime)
	require.Equal(t, 30*time.Minute, cfg.MaxConnIdleTime)
}

func TestPostgresFlagsValidate(t *testing.T) {
	require.Error(t, (&PostgresFlags{}).Validate())
	require.NoError(t, (&PostgresFlags{ConnString: "postgres://localhost/certsign"}).Validate())
}

func TestStoreFlagsOpenMemory(t *testing.T) {
	stores, closeStores, err := (&StoreFlags{Type: "memory"}).open(context.Background())
	require.NoError(t, err)
	defer closeStores()
	require.NotNil(t, stores.Registrations)
}

func TestKeysCmdWritesPrivateKey(t *testing.T) {
	out := filepath.Join(t.TempDir(), "signing.pem")

	require.NoError(t, (&KeysCmd{Out: out}).Run(context.Background()))

	info, err := os.Stat(out)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	priv, err := os.ReadFile(out)
	require.NoError(t, err)

	token, err := auth.IssueToken(string(priv), 42, "tester", time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)
}
