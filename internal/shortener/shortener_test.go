package shortener

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/require"
)

const longURL = "itms-services://?action=download-manifest&url=https://cdn.example.com/a.plist"

func newTestShortener(endpoint string) *Shortener {
	s := New(Config{Endpoint: endpoint})
	s.backoff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }
	return s
}

func TestShorten(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req shortenRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, longURL, req.URL)
		require.Equal(t, 1, req.ExpirationDays)

		_ = json.NewEncoder(w).Encode(map[string]string{"shortUrl": "https://s.example/abc"})
	}))
	defer srv.Close()

	require.Equal(t, "https://s.example/abc", newTestShortener(srv.URL).Shorten(context.Background(), longURL))
}

func TestShortenRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"shortUrl":"https://s.example/ok"}`))
	}))
	defer srv.Close()

	require.Equal(t, "https://s.example/ok", newTestShortener(srv.URL).Shorten(context.Background(), longURL))
	require.Equal(t, int32(3), calls.Load())
}

func TestShortenFallsBack(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		wantCalls int32
	}{
		{
			name:      "client error is not retried",
			handler:   func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadRequest) },
			wantCalls: 1,
		},
		{
			name:      "missing shortUrl",
			handler:   func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{}`)) },
			wantCalls: 1,
		},
		{
			name:      "invalid json",
			handler:   func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`nope`)) },
			wantCalls: 1,
		},
		{
			name:      "server errors exhaust retries",
			handler:   func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) },
			wantCalls: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				tt.handler(w, r)
			}))
			defer srv.Close()

			require.Equal(t, longURL, newTestShortener(srv.URL).Shorten(context.Background(), longURL))
			require.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestShortenDisabled(t *testing.T) {
	require.Equal(t, longURL, New(Config{}).Shorten(context.Background(), longURL))
}
