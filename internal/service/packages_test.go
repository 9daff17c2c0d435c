package service

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/certsign/internal/models"
	"github.com/wolfeidau/certsign/internal/publisher"
	"github.com/wolfeidau/certsign/internal/store"
)

func TestUploadPackage(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	pkg, err := h.svc.UploadPackage(ctx, testUser, "My App.IPA", strings.NewReader("ipa-bytes"))
	require.NoError(t, err)
	require.Equal(t, int64(9), pkg.Size)
	require.Equal(t, models.UnknownAppName, pkg.AppName)
	require.Equal(t, models.UnknownBundleID, pkg.BundleID)
	require.Equal(t, models.UnknownVersion, pkg.Version)
	require.False(t, pkg.IsSigned())

	data, err := os.ReadFile(pkg.LocalPath)
	require.NoError(t, err)
	require.Equal(t, "ipa-bytes", string(data))

	list, err := h.svc.ListPackages(ctx, testUser)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestUploadPackageInvalid(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.UploadPackage(context.Background(), testUser, "app.zip", strings.NewReader("x"))
	require.ErrorIs(t, err, ErrValidation)

	_, err = h.svc.UploadPackage(context.Background(), testUser, "big.ipa", bytes.NewReader(make([]byte, 2<<20)))
	require.ErrorIs(t, err, ErrValidation)
}

func TestGetPackageOwnerOnly(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	pkg, err := h.svc.UploadPackage(ctx, testUser, "app.ipa", strings.NewReader("x"))
	require.NoError(t, err)

	_, err = h.svc.GetPackage(ctx, testAdmin, pkg.PackageID)
	require.ErrorIs(t, err, store.ErrPackageNotFound)

	require.ErrorIs(t, h.svc.DeletePackage(ctx, testAdmin, pkg.PackageID), store.ErrPackageNotFound)

	_, err = h.svc.GetPackage(ctx, testUser, uuid.New())
	require.ErrorIs(t, err, store.ErrPackageNotFound)
}

func sign(t *testing.T, h *harness, pkg *models.Package) *publisher.Published {
	t.Helper()
	ctx := context.Background()

	pub, err := publisher.New(h.objects).Publish(ctx, []byte("signed"), "Foo", "com.foo.bar", "2.1")
	require.NoError(t, err)

	require.NoError(t, h.stores.Packages.MarkSigned(ctx, pkg.PackageID, models.SignedArtifacts{
		AppName:        "Foo",
		BundleID:       "com.foo.bar",
		Version:        "2.1",
		SignedIPAKey:   pub.IPAKey,
		SignedPlistKey: pub.PlistKey,
		IPAURL:         pub.IPAURL,
		PlistURL:       pub.PlistURL,
		InstallLink:    pub.InstallLink,
		SignedAt:       time.Now(),
	}))
	return pub
}

func TestInstallLink(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	pkg, err := h.svc.UploadPackage(ctx, testUser, "app.ipa", strings.NewReader("x"))
	require.NoError(t, err)

	_, err = h.svc.InstallLink(ctx, testUser, pkg.PackageID)
	require.ErrorIs(t, err, ErrPackageNotSigned)

	pub := sign(t, h, pkg)

	// no registration to deliver to
	_, err = h.svc.InstallLink(ctx, testUser, pkg.PackageID)
	require.ErrorIs(t, err, ErrRegistrationDisabled)

	h.issuer.byUDID[testUDID] = []models.CertificatePayload{readyPayload(testUDID, 600)}
	_, err = h.svc.RegisterDevice(ctx, testUser, testUDID, "super40")
	require.NoError(t, err)

	link, err := h.svc.InstallLink(ctx, testUser, pkg.PackageID)
	require.NoError(t, err)
	require.Equal(t, "short:"+pub.InstallLink, link)

	enabled, err := h.svc.ToggleEnabled(ctx, testUser, testUDID)
	require.NoError(t, err)
	require.False(t, enabled)

	_, err = h.svc.InstallLink(ctx, testUser, pkg.PackageID)
	require.ErrorIs(t, err, ErrRegistrationDisabled)
}

func TestDeletePackage(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	pkg, err := h.svc.UploadPackage(ctx, testUser, "app.ipa", strings.NewReader("x"))
	require.NoError(t, err)
	sign(t, h, pkg)
	require.Equal(t, 2, h.objects.Len())

	require.NoError(t, h.svc.DeletePackage(ctx, testUser, pkg.PackageID))

	_, err = h.svc.GetPackage(ctx, testUser, pkg.PackageID)
	require.ErrorIs(t, err, store.ErrPackageNotFound)
	require.False(t, h.files.Exists(pkg.LocalPath))
	require.Zero(t, h.objects.Len())
}

func TestDownloadCredentialInstalls(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.issuer.byUDID[testUDID] = []models.CertificatePayload{readyPayload(testUDID, 600)}

	_, err := h.svc.RegisterDevice(ctx, testUser, testUDID, "super40")
	require.NoError(t, err)

	signed, err := h.svc.UploadPackage(ctx, testUser, "game.ipa", strings.NewReader("x"))
	require.NoError(t, err)
	pub := sign(t, h, signed)

	_, err = h.svc.UploadPackage(ctx, testUser, "pending.ipa", strings.NewReader("y"))
	require.NoError(t, err)

	dl, err := h.svc.DownloadCredential(ctx, testUser, testUDID)
	require.NoError(t, err)
	require.Equal(t, []Install{{
		PackageID: signed.PackageID.String(),
		AppName:   "Foo",
		Link:      "short:" + pub.InstallLink,
	}}, dl.Installs)
}

func TestDisplayName(t *testing.T) {
	require.Equal(t, "Foo", DisplayName(&models.Package{AppName: "Foo", OriginalFilename: "x.ipa"}))
	require.Equal(t, "game", DisplayName(&models.Package{AppName: models.UnknownAppName, OriginalFilename: "game.ipa"}))
	require.Equal(t, "Game", DisplayName(&models.Package{OriginalFilename: "Game.IPA"}))
}
