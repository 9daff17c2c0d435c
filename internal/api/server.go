// Package api exposes the certsign operations as a JSON HTTP API.
package api

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/wolfeidau/certsign/internal/auth"
	"github.com/wolfeidau/certsign/internal/logger"
	"github.com/wolfeidau/certsign/internal/service"
)

// DefaultMaxUpload bounds package upload bodies.
const DefaultMaxUpload = 2 << 30

// Config configures the API handler.
type Config struct {
	Service     *service.Service
	Verifier    *auth.Verifier // nil disables authentication
	CORSOrigins []string
	MaxUpload   int64
}

// Server holds the API handlers.
type Server struct {
	svc       *service.Service
	verifier  *auth.Verifier
	origins   []string
	maxUpload int64
}

// NewServer creates a Server.
func NewServer(cfg Config) *Server {
	if cfg.MaxUpload <= 0 {
		cfg.MaxUpload = DefaultMaxUpload
	}
	return &Server{
		svc:       cfg.Service,
		verifier:  cfg.Verifier,
		origins:   cfg.CORSOrigins,
		maxUpload: cfg.MaxUpload,
	}
}

// Handler returns the full middleware chain around the API routes.
func (s *Server) Handler(log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("GET /v1/plans", s.listPlans)

	mux.HandleFunc("PUT /v1/token", s.setToken)
	mux.HandleFunc("GET /v1/balance", s.balance)

	mux.HandleFunc("POST /v1/registrations", s.register)
	mux.HandleFunc("GET /v1/registrations", s.listRegistrations)
	mux.HandleFunc("GET /v1/search", s.search)
	mux.HandleFunc("POST /v1/registrations/{udid}/toggle", s.toggle)
	mux.HandleFunc("POST /v1/registrations/{udid}/download", s.download)

	mux.HandleFunc("POST /v1/packages", s.uploadPackage)
	mux.HandleFunc("GET /v1/packages", s.listPackages)
	mux.HandleFunc("GET /v1/packages/{id}", s.getPackage)
	mux.HandleFunc("GET /v1/packages/{id}/install", s.installLink)
	mux.HandleFunc("DELETE /v1/packages/{id}", s.deletePackage)

	mux.HandleFunc("POST /v1/keys", s.createKeys)
	mux.HandleFunc("POST /v1/keys/redeem", s.redeemKey)
	mux.HandleFunc("GET /v1/keys/stats", s.keyStats)

	var h http.Handler = mux
	if s.verifier != nil {
		h = s.verifier.Middleware()(h)
	} else {
		h = devPrincipal(h)
	}
	h = logger.Requests(log, func(r *http.Request) string {
		return ClientIPFromContext(r.Context())
	})(h)
	h = ClientIPMiddleware()(h)

	return WithCORS(s.origins, h)
}

// devPrincipal authenticates every request as the user in the X-User-ID header.
// Only used when authentication is disabled.
func devPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, err := parseUserID(r.Header.Get("X-User-ID")); err == nil {
			r = r.WithContext(auth.WithPrincipal(r.Context(), &auth.Principal{UserID: id}))
		}
		next.ServeHTTP(w, r)
	})
}

// principal returns the caller or writes a 401.
func principal(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	p := auth.PrincipalFromContext(r.Context())
	if p == nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return nil, false
	}
	return p, true
}
