package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/certsign/internal/credential"
	"github.com/wolfeidau/certsign/internal/issuer"
	"github.com/wolfeidau/certsign/internal/models"
	"github.com/wolfeidau/certsign/internal/signer"
	"github.com/wolfeidau/certsign/internal/store"
)

const unknownPlan = "unknown"

// RegisterDevice registers a device with the issuer under a plan and records
// the registration. The status comes from the certificate lookup when the issuer
// already has one, otherwise from the registration response.
func (s *Service) RegisterDevice(ctx context.Context, userID int64, udid, plan string) (*models.Registration, error) {
	udid, err := NormalizeUDID(udid)
	if err != nil {
		return nil, err
	}

	plan = strings.TrimSpace(plan)
	if !s.plans.Has(plan) {
		return nil, invalid("plan", fmt.Sprintf("unknown plan %q", plan))
	}

	return s.register(ctx, userID, udid, plan)
}

func (s *Service) register(ctx context.Context, userID int64, udid, plan string) (*models.Registration, error) {
	token, err := s.token(ctx, userID)
	if err != nil {
		return nil, err
	}

	// skip the paid issuer call when the device is already ours
	if _, err := s.stores.Registrations.Get(ctx, userID, udid); err == nil {
		return nil, store.ErrRegistrationExists
	} else if !errors.Is(err, store.ErrRegistrationNotFound) {
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}

	result, err := s.issuer.RegisterDevice(ctx, token, udid, plan)
	if err != nil {
		return nil, err
	}

	payload := result
	if certs, err := s.issuer.Certificates(ctx, token, issuer.CertificateQuery{UDID: udid}); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("udid", udid).Msg("Certificate lookup after registration failed, using registration response")
	} else if len(certs) > 0 {
		payload = credential.Pick(certs)
		if err := s.cacheCredential(ctx, userID, udid, payload); err != nil {
			return nil, err
		}
	}

	certID := result.String(models.PayloadFieldCertificateID)
	if certID == "" {
		certID = payload.ID()
	}

	reg := &models.Registration{
		RegistrationID: uuid.Must(uuid.NewV7()),
		UserID:         userID,
		UDID:           udid,
		CertificateID:  certID,
		Plan:           plan,
		Payload:        payload,
		Status:         credential.Evaluate(payload),
		Enabled:        true,
		CreatedAt:      s.now().UTC(),
	}

	if err := s.stores.Registrations.Create(ctx, reg); err != nil {
		return nil, err
	}

	log.Ctx(ctx).Info().
		Int64("user_id", userID).
		Str("udid", udid).
		Str("plan", plan).
		Str("status", string(reg.Status)).
		Msg("Device registered")

	return reg, nil
}

// SearchResult is the registration matching a search and the payload found.
type SearchResult struct {
	Registration *models.Registration
	Payload      models.CertificatePayload
}

// Search looks a certificate up by device id, then by certificate id. The match
// is cached and recorded as a registration if the user did not have one yet;
// an existing registration only ever moves from processing to ready.
func (s *Service) Search(ctx context.Context, userID int64, query string) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, invalid("query", "must not be empty")
	}

	token, err := s.token(ctx, userID)
	if err != nil {
		return nil, err
	}

	certs, err := s.issuer.Certificates(ctx, token, issuer.CertificateQuery{UDID: query})
	if err != nil || len(certs) == 0 {
		certs, err = s.issuer.Certificates(ctx, token, issuer.CertificateQuery{CertificateID: query})
	}
	if err != nil {
		return nil, err
	}
	if len(certs) == 0 {
		return nil, ErrNoCertificates
	}

	payload := credential.Pick(certs)

	udid := payload.String(models.PayloadFieldUDID)
	if udid == "" {
		udid = strings.ToUpper(query)
	}

	if err := s.cacheCredential(ctx, userID, udid, payload); err != nil {
		return nil, err
	}

	reg, err := s.stores.Registrations.Get(ctx, userID, udid)
	switch {
	case errors.Is(err, store.ErrRegistrationNotFound):
		reg, err = s.adopt(ctx, userID, udid, payload)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("failed to get registration: %w", err)
	default:
		if err := s.refresh(ctx, reg, payload); err != nil {
			return nil, err
		}
		if reg, err = s.stores.Registrations.Get(ctx, userID, udid); err != nil {
			return nil, fmt.Errorf("failed to get registration: %w", err)
		}
	}

	return &SearchResult{Registration: reg, Payload: payload}, nil
}

// adopt records a registration for a device found on the issuer.
func (s *Service) adopt(ctx context.Context, userID int64, udid string, payload models.CertificatePayload) (*models.Registration, error) {
	plan := payload.String(models.PayloadFieldPlan)
	if plan == "" {
		plan = unknownPlan
	}

	reg := &models.Registration{
		RegistrationID: uuid.Must(uuid.NewV7()),
		UserID:         userID,
		UDID:           udid,
		CertificateID:  payload.ID(),
		Plan:           plan,
		Payload:        payload,
		Status:         credential.Evaluate(payload),
		Enabled:        true,
		CreatedAt:      s.now().UTC(),
	}

	err := s.stores.Registrations.Create(ctx, reg)
	if errors.Is(err, store.ErrRegistrationExists) {
		// created concurrently
		return s.stores.Registrations.Get(ctx, userID, udid)
	}
	if err != nil {
		return nil, err
	}
	return reg, nil
}

// refresh stores a newer payload and promotes the registration when it became ready.
func (s *Service) refresh(ctx context.Context, reg *models.Registration, payload models.CertificatePayload) error {
	if reg.IsReady() {
		return nil
	}

	if credential.Evaluate(payload) == models.StatusReady {
		if _, err := s.stores.Registrations.MarkReady(ctx, reg.UserID, reg.UDID, payload); err != nil {
			return fmt.Errorf("failed to mark registration ready: %w", err)
		}
		return nil
	}

	if _, err := s.stores.Registrations.UpdatePayload(ctx, reg.UserID, reg.UDID, payload); err != nil {
		return fmt.Errorf("failed to update registration: %w", err)
	}
	return nil
}

// Registrations lists the user's registrations.
func (s *Service) Registrations(ctx context.Context, userID int64) ([]*models.Registration, error) {
	return s.stores.Registrations.ListByUser(ctx, userID)
}

// ToggleEnabled flips whether a registration may deliver credentials and returns the new value.
func (s *Service) ToggleEnabled(ctx context.Context, userID int64, udid string) (bool, error) {
	udid, err := NormalizeUDID(udid)
	if err != nil {
		return false, err
	}
	return s.stores.Registrations.ToggleEnabled(ctx, userID, udid)
}

// Install is a signed package ready to install.
type Install struct {
	PackageID string
	AppName   string
	Link      string
}

// Download is a delivered credential and the outcome of signing the user's
// pending packages with it.
type Download struct {
	Registration *models.Registration
	Credential   *models.Credential
	KeyArchive   []byte
	Profile      []byte
	Password     string
	Signed       int
	Skipped      int
	Installs     []Install
}

// DownloadCredential fetches the device's credential from the issuer, caches it
// and signs every pending package the user owns with it.
func (s *Service) DownloadCredential(ctx context.Context, userID int64, udid string) (*Download, error) {
	udid, err := NormalizeUDID(udid)
	if err != nil {
		return nil, err
	}

	reg, err := s.stores.Registrations.Get(ctx, userID, udid)
	if err != nil {
		return nil, err
	}
	if !reg.Enabled {
		return nil, ErrRegistrationDisabled
	}

	token, err := s.token(ctx, userID)
	if err != nil {
		return nil, err
	}

	certs, err := s.issuer.Certificates(ctx, token, issuer.CertificateQuery{UDID: udid})
	if err != nil {
		return nil, err
	}
	if len(certs) == 0 {
		return nil, ErrNoCertificates
	}

	payload := credential.Pick(certs)
	if credential.Evaluate(payload) != models.StatusReady {
		if err := s.refresh(ctx, reg, payload); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("udid", udid).Msg("Failed to refresh registration")
		}
		return nil, ErrCredentialNotReady
	}

	key, profile, err := payload.DecodeBlobs()
	if err != nil {
		return nil, fmt.Errorf("failed to decode credential: %w", err)
	}

	cred := &models.Credential{
		UserID:        userID,
		UDID:          udid,
		CertificateID: payload.ID(),
		Payload:       payload,
		FetchedAt:     s.now().UTC(),
	}
	if err := s.stores.Credentials.Save(ctx, cred); err != nil {
		return nil, fmt.Errorf("failed to cache credential: %w", err)
	}
	if err := s.refresh(ctx, reg, payload); err != nil {
		return nil, err
	}
	if reg, err = s.stores.Registrations.Get(ctx, userID, udid); err != nil {
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}

	password := payload.String(models.PayloadFieldPassword)
	if password == "" {
		password = signer.DefaultPassword
	}

	dl := &Download{
		Registration: reg,
		Credential:   cred,
		KeyArchive:   key,
		Profile:      profile,
		Password:     password,
	}

	if s.signing != nil {
		batch, err := s.signing.SignPending(ctx, userID, cred)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("Failed to sign pending packages")
		} else {
			dl.Signed, dl.Skipped = batch.Signed, batch.Skipped
		}
	}

	dl.Installs, err = s.installs(ctx, userID)
	if err != nil {
		return nil, err
	}

	return dl, nil
}

func (s *Service) installs(ctx context.Context, userID int64) ([]Install, error) {
	pkgs, err := s.stores.Packages.List(ctx, store.ListPackagesOptions{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", err)
	}

	var out []Install
	for _, p := range pkgs {
		if !p.IsSigned() {
			continue
		}
		out = append(out, Install{
			PackageID: p.PackageID.String(),
			AppName:   DisplayName(p),
			Link:      s.shortener.Shorten(ctx, p.InstallLink),
		})
	}
	return out, nil
}

func (s *Service) cacheCredential(ctx context.Context, userID int64, udid string, payload models.CertificatePayload) error {
	if err := s.stores.Credentials.Save(ctx, &models.Credential{
		UserID:        userID,
		UDID:          udid,
		CertificateID: payload.ID(),
		Payload:       payload,
		FetchedAt:     s.now().UTC(),
	}); err != nil {
		return fmt.Errorf("failed to cache credential: %w", err)
	}
	return nil
}
