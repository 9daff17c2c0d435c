package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wolfeidau/certsign/internal/models"
	"github.com/wolfeidau/certsign/internal/store"
)

// KeyStore implements store.KeyStore using in-memory storage.
type KeyStore struct {
	mu   sync.RWMutex
	keys map[string]*models.ActivationKey
}

// NewKeyStore creates a new in-memory activation key store.
func NewKeyStore() *KeyStore {
	return &KeyStore{
		keys: make(map[string]*models.ActivationKey),
	}
}

// CreateBatch inserts all keys or none.
func (s *KeyStore) CreateBatch(ctx context.Context, keys []*models.ActivationKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, exists := s.keys[k.Code]; exists {
			return store.ErrKeyExists
		}
		if _, dup := seen[k.Code]; dup {
			return store.ErrKeyExists
		}
		seen[k.Code] = struct{}{}
	}

	now := time.Now()
	for _, k := range keys {
		clone := *k
		if clone.CreatedAt.IsZero() {
			clone.CreatedAt = now
		}
		s.keys[k.Code] = &clone
	}

	return nil
}

// Get retrieves a key by code.
func (s *KeyStore) Get(ctx context.Context, code string) (*models.ActivationKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k, ok := s.keys[code]
	if !ok {
		return nil, store.ErrKeyNotFound
	}

	clone := *k
	return &clone, nil
}

// MarkUsed claims a key.
func (s *KeyStore) MarkUsed(ctx context.Context, code string, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[code]
	if !ok {
		return store.ErrKeyNotFound
	}
	if k.Used {
		return store.ErrKeyUsed
	}

	now := time.Now()
	k.Used = true
	k.UsedBy = &userID
	k.UsedAt = &now

	return nil
}

// Stats returns per-plan counts.
func (s *KeyStore) Stats(ctx context.Context, createdBy int64) ([]models.KeyStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byPlan := make(map[string]*models.KeyStats)
	for _, k := range s.keys {
		if createdBy != 0 && k.CreatedBy != createdBy {
			continue
		}
		st, ok := byPlan[k.Plan]
		if !ok {
			st = &models.KeyStats{Plan: k.Plan}
			byPlan[k.Plan] = st
		}
		st.Total++
		if k.Used {
			st.Used++
		} else {
			st.Unused++
		}
	}

	out := make([]models.KeyStats, 0, len(byPlan))
	for _, st := range byPlan {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Plan < out[j].Plan })

	return out, nil
}
