package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func generateKeyPEMs(t *testing.T) (string, string) {
	t.Helper()
	priv, pub, err := GenerateKeyPair()
	require.NoError(t, err)
	return priv, pub
}

func TestNewVerifierFromPEM(t *testing.T) {
	t.Run("empty public key", func(t *testing.T) {
		v, err := NewVerifierFromPEM("")
		require.Error(t, err)
		require.Nil(t, v)
		require.Equal(t, "JWT public key not provided", err.Error())
	})

	t.Run("invalid PEM", func(t *testing.T) {
		v, err := NewVerifierFromPEM("invalid pem")
		require.Error(t, err)
		require.Nil(t, v)
	})

	t.Run("valid public key PEM", func(t *testing.T) {
		_, pub := generateKeyPEMs(t)
		v, err := NewVerifierFromPEM(pub)
		require.NoError(t, err)
		require.NotNil(t, v)
	})
}

func TestIssueAndVerify(t *testing.T) {
	priv, pub := generateKeyPEMs(t)

	token, err := IssueToken(priv, 42, "alice", time.Hour)
	require.NoError(t, err)

	v, err := NewVerifierFromPEM(pub)
	require.NoError(t, err)

	p, err := v.Verify(token)
	require.NoError(t, err)
	require.Equal(t, &Principal{UserID: 42, Username: "alice"}, p)
}

func TestVerifyRejects(t *testing.T) {
	priv, pub := generateKeyPEMs(t)
	otherPriv, _ := generateKeyPEMs(t)

	v, err := NewVerifierFromPEM(pub)
	require.NoError(t, err)

	signingKey, err := jwt.ParseECPrivateKeyFromPEM([]byte(priv))
	require.NoError(t, err)

	sign := func(claims *Claims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(signingKey)
		require.NoError(t, err)
		return s
	}

	expired, err := IssueToken(priv, 42, "", -time.Minute)
	require.NoError(t, err)

	wrongKey, err := IssueToken(otherPriv, 42, "", time.Hour)
	require.NoError(t, err)

	hmac, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject: "42", Issuer: Issuer, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}).SignedString([]byte("secret"))
	require.NoError(t, err)

	future := jwt.NewNumericDate(time.Now().Add(time.Hour))

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"expired", expired},
		{"wrong key", wrongKey},
		{"hmac", hmac},
		{"wrong issuer", sign(&Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "42", Issuer: "other", ExpiresAt: future}})},
		{"no expiry", sign(&Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "42", Issuer: Issuer}})},
		{"non numeric subject", sign(&Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "alice", Issuer: Issuer, ExpiresAt: future}})},
		{"zero subject", sign(&Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "0", Issuer: Issuer, ExpiresAt: future}})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			require.Error(t, err)
		})
	}
}

func TestMiddleware(t *testing.T) {
	priv, pub := generateKeyPEMs(t)

	v, err := NewVerifierFromPEM(pub, "/health")
	require.NoError(t, err)

	var got *Principal
	handler := v.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	token, err := IssueToken(priv, 7, "admin", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name       string
		path       string
		header     string
		wantStatus int
		wantUser   int64
	}{
		{"public path", "/health", "", http.StatusNoContent, 0},
		{"missing header", "/v1/balance", "", http.StatusUnauthorized, 0},
		{"wrong scheme", "/v1/balance", "Basic " + token, http.StatusUnauthorized, 0},
		{"invalid token", "/v1/balance", "Bearer nope", http.StatusUnauthorized, 0},
		{"valid token", "/v1/balance", "Bearer " + token, http.StatusNoContent, 7},
		{"lower case scheme", "/v1/balance", "bearer " + token, http.StatusNoContent, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = nil
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, r)

			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantUser == 0 {
				require.Nil(t, got)
			} else {
				require.NotNil(t, got)
				require.Equal(t, tt.wantUser, got.UserID)
			}
		})
	}
}

func TestGenerateKeyPair(t *testing.T) {
	priv, pub := generateKeyPEMs(t)

	block, _ := pem.Decode([]byte(priv))
	require.NotNil(t, block)
	key, err := x509.ParseECPrivateKey(block.Bytes)
	require.NoError(t, err)
	require.Equal(t, elliptic.P256(), key.Curve)

	block, _ = pem.Decode([]byte(pub))
	require.NotNil(t, block)
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	require.NoError(t, err)
	require.True(t, key.PublicKey.Equal(parsed.(*ecdsa.PublicKey)))
}
