// Package memory implements the store interfaces in process memory.
// Data is lost on restart; use it for development and tests.
package memory

import (
	"maps"

	"github.com/wolfeidau/certsign/internal/models"
	"github.com/wolfeidau/certsign/internal/store"
)

// NewStores returns a full set of in-memory stores. Registrations read user tokens
// from the returned user store.
func NewStores() *store.Stores {
	users := NewUserStore()
	return &store.Stores{
		Users:         users,
		Registrations: NewRegistrationStore(users),
		Credentials:   NewCredentialStore(),
		Packages:      NewPackageStore(),
		Keys:          NewKeyStore(),
	}
}

type deviceKey struct {
	userID int64
	udid   string
}

func clonePayload(p models.CertificatePayload) models.CertificatePayload {
	if p == nil {
		return nil
	}
	return maps.Clone(p)
}
