package memory

import (
	"context"
	"sync"
	"time"

	"github.com/wolfeidau/certsign/internal/models"
	"github.com/wolfeidau/certsign/internal/store"
)

// UserStore implements store.UserStore using in-memory storage.
type UserStore struct {
	mu    sync.RWMutex
	users map[int64]*models.User
}

// NewUserStore creates a new in-memory user store.
func NewUserStore() *UserStore {
	return &UserStore{
		users: make(map[int64]*models.User),
	}
}

// Get retrieves a user by ID.
func (s *UserStore) Get(ctx context.Context, userID int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, store.ErrUserNotFound
	}

	clone := *user
	return &clone, nil
}

// Upsert creates or updates a user.
func (s *UserStore) Upsert(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	clone := *user
	clone.UpdatedAt = now

	if existing, ok := s.users[user.UserID]; ok {
		clone.CreatedAt = existing.CreatedAt
	} else if clone.CreatedAt.IsZero() {
		clone.CreatedAt = now
	}

	s.users[user.UserID] = &clone
	return nil
}

func (s *UserStore) token(userID int64) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if u, ok := s.users[userID]; ok {
		return u.IssuerToken
	}
	return ""
}
