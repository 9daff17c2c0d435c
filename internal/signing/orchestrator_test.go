package signing

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/certsign/internal/models"
	"github.com/wolfeidau/certsign/internal/objectstore"
	"github.com/wolfeidau/certsign/internal/packages"
	"github.com/wolfeidau/certsign/internal/publisher"
	"github.com/wolfeidau/certsign/internal/signer"
	"github.com/wolfeidau/certsign/internal/store"
	"github.com/wolfeidau/certsign/internal/store/memory"
)

const testUDID = "00008130-0016051E223A001C"

type fakeSigner struct {
	calls atomic.Int32
	fail  map[string]error
}

func (f *fakeSigner) Sign(ctx context.Context, packagePath string, creds signer.Credentials) (*signer.Result, error) {
	f.calls.Add(1)
	for suffix, err := range f.fail {
		if strings.HasSuffix(packagePath, suffix) {
			return nil, err
		}
	}
	return &signer.Result{
		SignedBytes: []byte("signed:" + packagePath),
		Metadata:    signer.Metadata{AppName: "Foo", BundleID: "com.foo.bar", Version: "2.1"},
	}, nil
}

type harness struct {
	stores  *store.Stores
	files   *packages.LocalStore
	objects *objectstore.Memory
	signer  *fakeSigner
	orch    *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	files, err := packages.NewLocalStore(t.TempDir(), 0)
	require.NoError(t, err)

	h := &harness{
		stores:  memory.NewStores(),
		files:   files,
		objects: objectstore.NewMemory("https://cdn.example.com"),
		signer:  &fakeSigner{fail: map[string]error{}},
	}
	h.orch = New(Config{
		Stores:    h.stores,
		Signer:    h.signer,
		Publisher: publisher.New(h.objects),
		Files:     files,
	})
	return h
}

func (h *harness) upload(t *testing.T, userID int64, name string) *models.Package {
	t.Helper()

	path, size, err := h.files.Save(name, strings.NewReader("ipa"))
	require.NoError(t, err)

	pkg := &models.Package{
		PackageID:        uuid.Must(uuid.NewV7()),
		UserID:           userID,
		OriginalFilename: name,
		LocalPath:        path,
		Size:             size,
		AppName:          models.UnknownAppName,
		BundleID:         models.UnknownBundleID,
		Version:          models.UnknownVersion,
	}
	require.NoError(t, h.stores.Packages.Create(context.Background(), pkg))
	return pkg
}

func readyPayload() models.CertificatePayload {
	return models.CertificatePayload{
		models.PayloadFieldID:         "cert-1",
		models.PayloadFieldKeyArchive: base64.StdEncoding.EncodeToString([]byte("key-archive")),
		models.PayloadFieldProfile:    base64.StdEncoding.EncodeToString([]byte(strings.Repeat("p", 500))),
	}
}

func readyCredential(userID int64) *models.Credential {
	return &models.Credential{UserID: userID, UDID: testUDID, CertificateID: "cert-1", Payload: readyPayload()}
}

func TestSignPending(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	pkg := h.upload(t, 1, "app.ipa")
	h.upload(t, 2, "other.ipa")

	res, err := h.orch.SignPending(ctx, 1, readyCredential(1))
	require.NoError(t, err)
	require.Equal(t, 1, res.Signed)
	require.Zero(t, res.Skipped)

	got, err := h.stores.Packages.Get(ctx, pkg.PackageID)
	require.NoError(t, err)
	require.True(t, got.IsSigned())
	require.Equal(t, "Foo", got.AppName)
	require.Equal(t, "com.foo.bar", got.BundleID)
	require.Equal(t, "2.1", got.Version)
	require.Equal(t, "https://cdn.example.com/"+got.SignedIPAKey, got.IPAURL)
	require.Equal(t, publisher.InstallLink(got.PlistURL), got.InstallLink)
	require.NotNil(t, got.SignedAt)
	require.Equal(t, 2, h.objects.Len())

	// re-running signs nothing new
	res, err = h.orch.SignPending(ctx, 1, readyCredential(1))
	require.NoError(t, err)
	require.Zero(t, res.Signed)
	require.Zero(t, res.Skipped)
	require.Equal(t, int32(1), h.signer.calls.Load())
}

func TestSignPendingSkipsMissingFile(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	gone := h.upload(t, 1, "gone.ipa")
	kept := h.upload(t, 1, "kept.ipa")
	require.NoError(t, h.files.Remove(gone.LocalPath))

	res, err := h.orch.SignPending(ctx, 1, readyCredential(1))
	require.NoError(t, err)
	require.Equal(t, 1, res.Signed)
	require.Equal(t, 1, res.Skipped)
	require.Equal(t, gone.PackageID, res.Skips[0].PackageID)
	require.ErrorIs(t, res.Skips[0].Err, signer.ErrPackageMissing)

	got, err := h.stores.Packages.Get(ctx, kept.PackageID)
	require.NoError(t, err)
	require.True(t, got.IsSigned())
}

func TestSignPendingContinuesAfterFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.signer.fail["bad.ipa"] = &signer.Error{Stage: signer.ErrToolFailed, Err: errors.New("exit status 1")}

	bad := h.upload(t, 1, "bad.ipa")
	h.upload(t, 1, "good1.ipa")
	h.upload(t, 1, "good2.ipa")

	res, err := h.orch.SignPending(ctx, 1, readyCredential(1))
	require.NoError(t, err)
	require.Equal(t, 2, res.Signed)
	require.Equal(t, 1, res.Skipped)
	require.ErrorIs(t, res.Skips[0].Err, signer.ErrToolFailed)

	got, err := h.stores.Packages.Get(ctx, bad.PackageID)
	require.NoError(t, err)
	require.False(t, got.IsSigned())
	require.Equal(t, models.UnknownAppName, got.AppName)
}

func TestSignPendingInvalidCredential(t *testing.T) {
	h := newHarness(t)
	h.upload(t, 1, "a.ipa")
	h.upload(t, 1, "b.ipa")

	cred := readyCredential(1)
	cred.Payload[models.PayloadFieldKeyArchive] = ""

	res, err := h.orch.SignPending(context.Background(), 1, cred)
	require.NoError(t, err)
	require.Zero(t, res.Signed)
	require.Equal(t, 2, res.Skipped)
	require.ErrorIs(t, res.Skips[0].Err, signer.ErrCredentialMissing)
	require.Zero(t, h.signer.calls.Load())
}

func TestSignPendingNoPackages(t *testing.T) {
	h := newHarness(t)

	res, err := h.orch.SignPending(context.Background(), 1, readyCredential(1))
	require.NoError(t, err)
	require.Equal(t, &BatchResult{}, res)
}

type conflictPackages struct {
	store.PackageStore
}

func (c conflictPackages) MarkSigned(ctx context.Context, id uuid.UUID, a models.SignedArtifacts) error {
	return store.ErrPackageSigned
}

func TestSignPendingConflictRemovesArtifacts(t *testing.T) {
	h := newHarness(t)
	h.upload(t, 1, "app.ipa")
	h.stores.Packages = conflictPackages{h.stores.Packages}

	res, err := h.orch.SignPending(context.Background(), 1, readyCredential(1))
	require.NoError(t, err)
	require.Zero(t, res.Signed)
	require.Equal(t, 1, res.Skipped)
	require.ErrorIs(t, res.Skips[0].Err, store.ErrPackageSigned)
	require.Zero(t, h.objects.Len())
}

func addReady(t *testing.T, h *harness, userID int64, udid string, enabled bool, payload models.CertificatePayload) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, h.stores.Users.Upsert(ctx, &models.User{UserID: userID, IssuerToken: "tok"}))
	require.NoError(t, h.stores.Registrations.Create(ctx, &models.Registration{
		RegistrationID: uuid.Must(uuid.NewV7()),
		UserID:         userID,
		UDID:           udid,
		Plan:           "super40",
		Payload:        payload,
		Status:         models.StatusReady,
		Enabled:        enabled,
	}))
	require.NoError(t, h.stores.Credentials.Save(ctx, &models.Credential{
		UserID: userID, UDID: udid, CertificateID: "cert-1", Payload: payload,
	}))
}

func TestSignAllPending(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	// user 1 is ready, user 2 is disabled, user 3 has nothing
	addReady(t, h, 1, testUDID, true, readyPayload())
	addReady(t, h, 2, testUDID, false, readyPayload())

	p1 := h.upload(t, 1, "one.ipa")
	h.upload(t, 1, "two.ipa")
	p2 := h.upload(t, 2, "three.ipa")
	h.upload(t, 3, "four.ipa")

	res, err := h.orch.SignAllPending(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, res.Signed)
	require.Equal(t, 2, res.Skipped)
	for _, s := range res.Skips {
		require.ErrorIs(t, s.Err, ErrNoCredential)
		require.NotEqual(t, int64(1), s.UserID)
	}

	got, err := h.stores.Packages.Get(ctx, p1.PackageID)
	require.NoError(t, err)
	require.True(t, got.IsSigned())

	got, err = h.stores.Packages.Get(ctx, p2.PackageID)
	require.NoError(t, err)
	require.False(t, got.IsSigned())

	res, err = h.orch.SignAllPending(ctx)
	require.NoError(t, err)
	require.Zero(t, res.Signed)
	require.Equal(t, 2, res.Skipped)
}

func TestReadyCredentialSkipsIncomplete(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	incomplete := readyPayload()
	incomplete[models.PayloadFieldProfile] = `""`
	addReady(t, h, 1, "00008130-0000000000000001", true, incomplete)

	_, err := h.orch.ReadyCredential(ctx, 1)
	require.ErrorIs(t, err, ErrNoCredential)

	require.NoError(t, h.stores.Registrations.Create(ctx, &models.Registration{
		RegistrationID: uuid.Must(uuid.NewV7()),
		UserID:         1,
		UDID:           testUDID,
		Status:         models.StatusReady,
		Enabled:        true,
	}))
	require.NoError(t, h.stores.Credentials.Save(ctx, readyCredential(1)))

	cred, err := h.orch.ReadyCredential(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, testUDID, cred.UDID)
}
