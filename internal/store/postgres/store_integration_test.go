//go:build integration

package postgres

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/wolfeidau/certsign/internal/models"
	"github.com/wolfeidau/certsign/internal/store"
)

const testUDID = "00008130-0016051E223A001C"

func setupPostgresContainer(t *testing.T, ctx context.Context) *store.Stores {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "certsign",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	stores, pool, err := Open(ctx, Config{
		ConnString:  fmt.Sprintf("postgres://test:test@%s:%s/certsign?sslmode=disable", host, port.Port()),
		AutoMigrate: true,
	})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	// second run must be a no-op
	require.NoError(t, Migrate(ctx, pool))

	return stores
}

func TestIntegration_Stores(t *testing.T) {
	ctx := context.Background()
	st := setupPostgresContainer(t, ctx)

	// beyond int32
	const userID int64 = 5_000_000_001

	t.Run("users", func(t *testing.T) {
		require.NoError(t, st.Users.Upsert(ctx, &models.User{UserID: userID, Username: "alice"}))
		require.NoError(t, st.Users.Upsert(ctx, &models.User{UserID: userID, Username: "alice", IssuerToken: "tok"}))

		u, err := st.Users.Get(ctx, userID)
		require.NoError(t, err)
		require.Equal(t, "tok", u.IssuerToken)

		_, err = st.Users.Get(ctx, 1)
		require.ErrorIs(t, err, store.ErrUserNotFound)
	})

	t.Run("registration lifecycle", func(t *testing.T) {
		reg := &models.Registration{
			RegistrationID: uuid.Must(uuid.NewV7()),
			UserID:         userID,
			UDID:           testUDID,
			Plan:           "super40",
			Payload:        models.CertificatePayload{"p12": "k", "mobileprovision": `""`},
			Status:         models.StatusProcessing,
			Enabled:        true,
		}
		require.NoError(t, st.Registrations.Create(ctx, reg))
		require.ErrorIs(t, st.Registrations.Create(ctx, reg), store.ErrRegistrationExists)

		pending, err := st.Registrations.ListProcessing(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		require.Equal(t, "tok", pending[0].IssuerToken)
		require.Equal(t, `""`, pending[0].Payload.Profile())

		changed, err := st.Registrations.UpdatePayload(ctx, userID, testUDID, models.CertificatePayload{"p12": "k2"})
		require.NoError(t, err)
		require.True(t, changed)

		ready := models.CertificatePayload{"p12": "k", "mobileprovision": strings.Repeat("P", 600)}
		changed, err = st.Registrations.MarkReady(ctx, userID, testUDID, ready)
		require.NoError(t, err)
		require.True(t, changed)

		changed, err = st.Registrations.UpdatePayload(ctx, userID, testUDID, models.CertificatePayload{"p12": "k", "mobileprovision": ""})
		require.NoError(t, err)
		require.False(t, changed, "ready payload must not be overwritten")

		got, err := st.Registrations.Get(ctx, userID, testUDID)
		require.NoError(t, err)
		require.Equal(t, strings.Repeat("P", 600), got.Payload.Profile())

		_, err = st.Registrations.UpdatePayload(ctx, userID, "00008130-0000000000000000", ready)
		require.ErrorIs(t, err, store.ErrRegistrationNotFound)

		changed, err = st.Registrations.MarkReady(ctx, userID, testUDID, ready)
		require.NoError(t, err)
		require.False(t, changed)

		_, err = st.Registrations.MarkReady(ctx, userID, "00008130-0000000000000000", ready)
		require.ErrorIs(t, err, store.ErrRegistrationNotFound)

		pending, err = st.Registrations.ListProcessing(ctx)
		require.NoError(t, err)
		require.Empty(t, pending)

		enabled, err := st.Registrations.ToggleEnabled(ctx, userID, testUDID)
		require.NoError(t, err)
		require.False(t, enabled)

		readyRegs, err := st.Registrations.ListReady(ctx, userID)
		require.NoError(t, err)
		require.Empty(t, readyRegs)
	})

	t.Run("registration requires user", func(t *testing.T) {
		err := st.Registrations.Create(ctx, &models.Registration{
			RegistrationID: uuid.Must(uuid.NewV7()),
			UserID:         42,
			UDID:           testUDID,
			Status:         models.StatusProcessing,
		})
		require.ErrorIs(t, err, store.ErrUserNotFound)
	})

	t.Run("credentials", func(t *testing.T) {
		require.NoError(t, st.Credentials.Save(ctx, &models.Credential{UserID: userID, UDID: testUDID, CertificateID: "1", Payload: models.CertificatePayload{"id": "1"}}))
		time.Sleep(10 * time.Millisecond)
		require.NoError(t, st.Credentials.Save(ctx, &models.Credential{UserID: userID, UDID: testUDID, CertificateID: "2", Payload: models.CertificatePayload{"id": "2"}}))

		latest, err := st.Credentials.Latest(ctx, userID, testUDID)
		require.NoError(t, err)
		require.Equal(t, "2", latest.CertificateID)
	})

	t.Run("packages", func(t *testing.T) {
		pkg := &models.Package{
			PackageID:        uuid.Must(uuid.NewV7()),
			UserID:           userID,
			OriginalFilename: "app.ipa",
			LocalPath:        "/var/lib/certsign/packages/x_app.ipa",
			Size:             2 << 20,
			AppName:          models.UnknownAppName,
			BundleID:         models.UnknownBundleID,
			Version:          models.UnknownVersion,
		}
		require.NoError(t, st.Packages.Create(ctx, pkg))

		unsigned, err := st.Packages.List(ctx, store.ListPackagesOptions{UserID: userID, UnsignedOnly: true})
		require.NoError(t, err)
		require.Len(t, unsigned, 1)

		a := models.SignedArtifacts{AppName: "Foo", BundleID: "com.foo.bar", Version: "2.1", InstallLink: "itms-services://x", SignedAt: time.Now()}
		require.NoError(t, st.Packages.MarkSigned(ctx, pkg.PackageID, a))
		require.ErrorIs(t, st.Packages.MarkSigned(ctx, pkg.PackageID, a), store.ErrPackageSigned)

		unsigned, err = st.Packages.List(ctx, store.ListPackagesOptions{UnsignedOnly: true})
		require.NoError(t, err)
		require.Empty(t, unsigned)

		deleted, err := st.Packages.Delete(ctx, pkg.PackageID)
		require.NoError(t, err)
		require.Equal(t, "Foo", deleted.AppName)

		_, err = st.Packages.Get(ctx, pkg.PackageID)
		require.ErrorIs(t, err, store.ErrPackageNotFound)
	})

	t.Run("activation keys", func(t *testing.T) {
		require.NoError(t, st.Keys.CreateBatch(ctx, []*models.ActivationKey{
			{Code: "ABCDEFGH12", Plan: "super40", CreatedBy: userID},
			{Code: "ABCDEFGH13", Plan: "super40", CreatedBy: userID},
		}))
		require.ErrorIs(t, st.Keys.CreateBatch(ctx, []*models.ActivationKey{
			{Code: "ZZZZZZZZZZ", Plan: "super40", CreatedBy: userID},
			{Code: "ABCDEFGH12", Plan: "super40", CreatedBy: userID},
		}), store.ErrKeyExists)

		_, err := st.Keys.Get(ctx, "ZZZZZZZZZZ")
		require.ErrorIs(t, err, store.ErrKeyNotFound)

		require.NoError(t, st.Keys.MarkUsed(ctx, "ABCDEFGH12", 7))
		require.ErrorIs(t, st.Keys.MarkUsed(ctx, "ABCDEFGH12", 8), store.ErrKeyUsed)

		stats, err := st.Keys.Stats(ctx, userID)
		require.NoError(t, err)
		require.Equal(t, []models.KeyStats{{Plan: "super40", Total: 2, Used: 1, Unused: 1}}, stats)
	})
}
