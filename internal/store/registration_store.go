package store

import (
	"context"

	"github.com/wolfeidau/certsign/internal/models"
)

// RegistrationStore manages device registrations.
//
// Every mutation is a single atomic statement; callers never read-modify-write.
type RegistrationStore interface {
	// Create inserts a registration. Returns ErrRegistrationExists if the user already
	// registered the UDID.
	Create(ctx context.Context, reg *models.Registration) error

	// Get returns the user's registration for a UDID.
	Get(ctx context.Context, userID int64, udid string) (*models.Registration, error)

	// ListByUser returns the user's registrations, newest first.
	ListByUser(ctx context.Context, userID int64) ([]*models.Registration, error)

	// ListProcessing returns every processing registration across all users, joined
	// with the owner's issuer token.
	ListProcessing(ctx context.Context) ([]*models.PendingRegistration, error)

	// ListReady returns ready and enabled registrations for a user.
	ListReady(ctx context.Context, userID int64) ([]*models.Registration, error)

	// MarkReady moves a processing registration to ready and stores the payload.
	// Returns false if the registration was not processing.
	MarkReady(ctx context.Context, userID int64, udid string, payload models.CertificatePayload) (bool, error)

	// UpdatePayload stores the latest payload of a processing registration without
	// touching the status. Returns false if the registration is no longer processing.
	UpdatePayload(ctx context.Context, userID int64, udid string, payload models.CertificatePayload) (bool, error)

	// ToggleEnabled flips the enabled flag and returns the new value.
	ToggleEnabled(ctx context.Context, userID int64, udid string) (bool, error)
}
