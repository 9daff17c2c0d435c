package memory

import (
	"context"
	"sync"
	"time"

	"github.com/wolfeidau/certsign/internal/models"
	"github.com/wolfeidau/certsign/internal/store"
)

type credentialKey struct {
	deviceKey
	certificateID string
}

// CredentialStore implements store.CredentialStore using in-memory storage.
type CredentialStore struct {
	mu          sync.RWMutex
	credentials map[credentialKey]*models.Credential
}

// NewCredentialStore creates a new in-memory credential store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		credentials: make(map[credentialKey]*models.Credential),
	}
}

// Save replaces the credential wholesale.
func (s *CredentialStore) Save(ctx context.Context, cred *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *cred
	clone.Payload = clonePayload(cred.Payload)
	if clone.FetchedAt.IsZero() {
		clone.FetchedAt = time.Now()
	}

	s.credentials[credentialKey{deviceKey{cred.UserID, cred.UDID}, cred.CertificateID}] = &clone
	return nil
}

// Latest returns the most recently fetched credential for a device.
func (s *CredentialStore) Latest(ctx context.Context, userID int64, udid string) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.Credential
	for k, c := range s.credentials {
		if k.userID != userID || k.udid != udid {
			continue
		}
		if latest == nil || c.FetchedAt.After(latest.FetchedAt) {
			latest = c
		}
	}

	if latest == nil {
		return nil, store.ErrCredentialNotFound
	}

	clone := *latest
	clone.Payload = clonePayload(latest.Payload)
	return &clone, nil
}
