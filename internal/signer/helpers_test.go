package signer

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mozilla.org/pkcs7"
	"howett.net/plist"
	"software.sslmate.com/src/go-pkcs12"
)

func selfSigned(t *testing.T) (*rsa.PrivateKey, *x509.Certificate) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: "iPhone Distribution: Test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return key, cert
}

func testKeyArchive(t *testing.T, password string) []byte {
	t.Helper()

	key, cert := selfSigned(t)
	data, err := pkcs12.Modern.Encode(key, cert, nil, password)
	require.NoError(t, err)
	return data
}

func testProfilePlist(t *testing.T, expires time.Time) []byte {
	t.Helper()

	data, err := plist.Marshal(map[string]any{
		"Name":               "Test Profile",
		"UUID":               "7B0C3C5E-7A3A-4C36-9B37-5E3A1D6F2C11",
		"TeamName":           "Test Team",
		"ExpirationDate":     expires,
		"ProvisionedDevices": []string{"00008130-0016051E223A001C"},
	}, plist.XMLFormat)
	require.NoError(t, err)
	return data
}

func testSignedProfile(t *testing.T) []byte {
	t.Helper()

	content := testProfilePlist(t, time.Now().Add(365*24*time.Hour))
	key, cert := selfSigned(t)

	sd, err := pkcs7.NewSignedData(content)
	require.NoError(t, err)
	require.NoError(t, sd.AddSigner(cert, key, pkcs7.SignerInfoConfig{}))

	der, err := sd.Finish()
	require.NoError(t, err)
	return der
}

func testCredentials(t *testing.T) Credentials {
	return Credentials{
		KeyArchive: testKeyArchive(t, DefaultPassword),
		Profile:    testSignedProfile(t),
	}
}

const fakeSignerOK = `#!/bin/sh
out=""
pkg=""
while [ $# -gt 0 ]; do
  case "$1" in
    -o) out="$2"; shift 2 ;;
    -k|-p|-m) shift 2 ;;
    -f|-d) shift ;;
    *) pkg="$1"; shift ;;
  esac
done
[ -f dev.p12 ] || { echo "no key in $(pwd)" >&2; exit 3; }
[ -f dev.mobileprovision ] || { echo "no profile" >&2; exit 4; }
mkdir -p .zsign_debug
echo ">>> AppName:	Foo"
echo ">>> BundleId:	com.foo.bar"
echo ">>> Version:	2.1"
printf 'signed:' > "$out"
cat "$pkg" >> "$out"
`

const fakeSignerNoMetadata = `#!/bin/sh
while [ $# -gt 1 ]; do
  case "$1" in
    -o) out="$2"; shift 2 ;;
    *) shift ;;
  esac
done
echo "signing..."
cat "$1" > "$out"
`

const fakeSignerFails = `#!/bin/sh
echo ">>> Error: bad certificate" 
exit 1
`

const fakeSignerNoOutput = `#!/bin/sh
echo ">>> AppName:	Foo"
exit 0
`

const fakeSignerHangs = `#!/bin/sh
exec sleep 30
`

func writeFakeSigner(t *testing.T, script string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "zsign")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755)) // #nosec G306 - test executable
	return path
}

func writePackage(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "app.ipa")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
