package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wolfeidau/certsign/internal/models"
	"github.com/wolfeidau/certsign/internal/store"
)

// RegistrationStore implements store.RegistrationStore using in-memory storage.
type RegistrationStore struct {
	mu sync.RWMutex

	users         *UserStore
	registrations map[deviceKey]*models.Registration
}

// NewRegistrationStore creates a new in-memory registration store. Processing
// listings look up issuer tokens in users.
func NewRegistrationStore(users *UserStore) *RegistrationStore {
	return &RegistrationStore{
		users:         users,
		registrations: make(map[deviceKey]*models.Registration),
	}
}

// Create stores a new registration.
func (s *RegistrationStore) Create(ctx context.Context, reg *models.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := deviceKey{reg.UserID, reg.UDID}
	if _, exists := s.registrations[key]; exists {
		return store.ErrRegistrationExists
	}

	clone := cloneRegistration(reg)
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	s.registrations[key] = clone

	return nil
}

// Get retrieves a registration.
func (s *RegistrationStore) Get(ctx context.Context, userID int64, udid string) (*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reg, ok := s.registrations[deviceKey{userID, udid}]
	if !ok {
		return nil, store.ErrRegistrationNotFound
	}

	return cloneRegistration(reg), nil
}

// ListByUser returns a user's registrations, newest first.
func (s *RegistrationStore) ListByUser(ctx context.Context, userID int64) ([]*models.Registration, error) {
	return s.list(func(r *models.Registration) bool { return r.UserID == userID }), nil
}

// ListReady returns the user's ready and enabled registrations.
func (s *RegistrationStore) ListReady(ctx context.Context, userID int64) ([]*models.Registration, error) {
	return s.list(func(r *models.Registration) bool {
		return r.UserID == userID && r.Enabled && r.Status == models.StatusReady
	}), nil
}

// ListProcessing returns every processing registration with its owner's token.
func (s *RegistrationStore) ListProcessing(ctx context.Context) ([]*models.PendingRegistration, error) {
	regs := s.list(func(r *models.Registration) bool { return r.Status == models.StatusProcessing })

	pending := make([]*models.PendingRegistration, 0, len(regs))
	for _, r := range regs {
		pending = append(pending, &models.PendingRegistration{
			Registration: *r,
			IssuerToken:  s.users.token(r.UserID),
		})
	}

	return pending, nil
}

// MarkReady transitions processing to ready.
func (s *RegistrationStore) MarkReady(ctx context.Context, userID int64, udid string, payload models.CertificatePayload) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.registrations[deviceKey{userID, udid}]
	if !ok {
		return false, store.ErrRegistrationNotFound
	}

	if reg.Status != models.StatusProcessing {
		return false, nil
	}

	reg.Status = models.StatusReady
	reg.Payload = clonePayload(payload)
	return true, nil
}

// UpdatePayload replaces the payload of a processing registration.
func (s *RegistrationStore) UpdatePayload(ctx context.Context, userID int64, udid string, payload models.CertificatePayload) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.registrations[deviceKey{userID, udid}]
	if !ok {
		return false, store.ErrRegistrationNotFound
	}

	if reg.Status != models.StatusProcessing {
		return false, nil
	}

	reg.Payload = clonePayload(payload)
	return true, nil
}

// ToggleEnabled flips the enabled flag.
func (s *RegistrationStore) ToggleEnabled(ctx context.Context, userID int64, udid string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.registrations[deviceKey{userID, udid}]
	if !ok {
		return false, store.ErrRegistrationNotFound
	}

	reg.Enabled = !reg.Enabled
	return reg.Enabled, nil
}

func (s *RegistrationStore) list(match func(*models.Registration) bool) []*models.Registration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Registration
	for _, r := range s.registrations {
		if match(r) {
			out = append(out, cloneRegistration(r))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out
}

func cloneRegistration(r *models.Registration) *models.Registration {
	clone := *r
	clone.Payload = clonePayload(r.Payload)
	return &clone
}
