// Package service implements the user-facing operations: device registration,
// credential delivery, activation keys and package management.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/certsign/internal/issuer"
	"github.com/wolfeidau/certsign/internal/models"
	"github.com/wolfeidau/certsign/internal/plans"
	"github.com/wolfeidau/certsign/internal/signing"
	"github.com/wolfeidau/certsign/internal/store"
)

// Issuer is the subset of the issuing service the operations need.
type Issuer interface {
	Balance(ctx context.Context, token string) (float64, error)
	RegisterDevice(ctx context.Context, token, udid, plan string) (models.CertificatePayload, error)
	Certificates(ctx context.Context, token string, q issuer.CertificateQuery) ([]models.CertificatePayload, error)
}

// PendingSigner signs a user's unsigned packages.
type PendingSigner interface {
	SignPending(ctx context.Context, userID int64, cred *models.Credential) (*signing.BatchResult, error)
}

// PackageFiles stores uploaded package files.
type PackageFiles interface {
	Save(filename string, r io.Reader) (string, int64, error)
	Remove(path string) error
}

// Unpublisher deletes published artifacts.
type Unpublisher interface {
	Unpublish(ctx context.Context, ipaKey, plistKey string) error
}

// Shortener compacts install links. It must return the input on failure.
type Shortener interface {
	Shorten(ctx context.Context, longURL string) string
}

// Config wires a Service.
type Config struct {
	Stores    *store.Stores
	Issuer    Issuer
	Plans     *plans.Catalog
	Signing   PendingSigner
	Files     PackageFiles
	Publisher Unpublisher
	Shortener Shortener
	AdminIDs  []int64
}

// Service holds the collaborators shared by every operation.
type Service struct {
	stores    *store.Stores
	issuer    Issuer
	plans     *plans.Catalog
	signing   PendingSigner
	files     PackageFiles
	publisher Unpublisher
	shortener Shortener
	admins    []int64
	now       func() time.Time
}

// New creates a Service. A nil plan catalog uses the built-in plans.
func New(cfg Config) *Service {
	if cfg.Plans == nil {
		cfg.Plans = plans.Default()
	}
	if cfg.Shortener == nil {
		cfg.Shortener = noopShortener{}
	}

	return &Service{
		stores:    cfg.Stores,
		issuer:    cfg.Issuer,
		plans:     cfg.Plans,
		signing:   cfg.Signing,
		files:     cfg.Files,
		publisher: cfg.Publisher,
		shortener: cfg.Shortener,
		admins:    cfg.AdminIDs,
		now:       time.Now,
	}
}

type noopShortener struct{}

func (noopShortener) Shorten(_ context.Context, u string) string { return u }

// IsAdmin reports whether the user may create activation keys.
func (s *Service) IsAdmin(userID int64) bool {
	return slices.Contains(s.admins, userID)
}

// Plans returns the plan catalog.
func (s *Service) Plans() *plans.Catalog {
	return s.plans
}

// SetIssuerToken checks the token against the issuer and stores it for the user.
// It returns the balance the issuer reported.
func (s *Service) SetIssuerToken(ctx context.Context, userID int64, username, token string) (float64, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, invalid("token", "must not be empty")
	}

	balance, err := s.issuer.Balance(ctx, token)
	if err != nil {
		return 0, err
	}

	if err := s.stores.Users.Upsert(ctx, &models.User{
		UserID:      userID,
		Username:    username,
		IssuerToken: token,
	}); err != nil {
		return 0, fmt.Errorf("failed to save user: %w", err)
	}

	log.Ctx(ctx).Info().Int64("user_id", userID).Msg("Issuer token updated")

	return balance, nil
}

// Balance returns the user's remaining issuer balance.
func (s *Service) Balance(ctx context.Context, userID int64) (float64, error) {
	token, err := s.token(ctx, userID)
	if err != nil {
		return 0, err
	}
	return s.issuer.Balance(ctx, token)
}

func (s *Service) token(ctx context.Context, userID int64) (string, error) {
	user, err := s.stores.Users.Get(ctx, userID)
	if errors.Is(err, store.ErrUserNotFound) {
		return "", ErrNoIssuerToken
	}
	if err != nil {
		return "", fmt.Errorf("failed to get user: %w", err)
	}
	if !user.HasIssuerToken() {
		return "", ErrNoIssuerToken
	}
	return user.IssuerToken, nil
}
