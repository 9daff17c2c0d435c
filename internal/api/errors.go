package api

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/certsign/internal/issuer"
	"github.com/wolfeidau/certsign/internal/service"
	"github.com/wolfeidau/certsign/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps a service error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrRegistrationNotFound),
		errors.Is(err, store.ErrPackageNotFound),
		errors.Is(err, store.ErrKeyNotFound),
		errors.Is(err, store.ErrCredentialNotFound),
		errors.Is(err, service.ErrNoCertificates):
		return http.StatusNotFound
	case errors.Is(err, service.ErrRegistrationDisabled),
		errors.Is(err, service.ErrCredentialNotReady),
		errors.Is(err, service.ErrNoIssuerToken),
		errors.Is(err, service.ErrPackageNotSigned),
		errors.Is(err, store.ErrRegistrationExists),
		errors.Is(err, store.ErrKeyUsed):
		return http.StatusConflict
	case errors.Is(err, issuer.ErrIssuer):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	msg := err.Error()
	switch {
	case status == http.StatusInternalServerError:
		log.Ctx(r.Context()).Error().Err(err).Msg("Request failed")
		msg = http.StatusText(status)
	case errors.Is(err, service.ErrValidation):
		log.Ctx(r.Context()).Debug().Err(err).Msg("Invalid request")
	default:
		log.Ctx(r.Context()).Warn().Err(err).Int("status", status).Msg("Request rejected")
	}

	writeJSON(w, status, errorResponse{Error: msg})
}
