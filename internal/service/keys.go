package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/certsign/internal/models"
	"github.com/wolfeidau/certsign/internal/store"
)

const (
	keyCodeLength   = 10
	keyBatchRetries = 3
)

// CreateKeys generates quantity unused activation keys for a plan. Admins only.
func (s *Service) CreateKeys(ctx context.Context, adminID int64, plan string, quantity int) ([]*models.ActivationKey, error) {
	if !s.IsAdmin(adminID) {
		return nil, ErrForbidden
	}
	if !s.plans.Has(plan) {
		return nil, invalid("plan", fmt.Sprintf("unknown plan %q", plan))
	}
	if err := checkQuantity(quantity); err != nil {
		return nil, err
	}

	var err error
	for range keyBatchRetries {
		keys := s.newKeys(adminID, plan, quantity)

		err = s.stores.Keys.CreateBatch(ctx, keys)
		if err == nil {
			log.Ctx(ctx).Info().Int64("user_id", adminID).Str("plan", plan).Int("quantity", quantity).Msg("Activation keys created")
			return keys, nil
		}
		if !errors.Is(err, store.ErrKeyExists) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("failed to generate unique activation keys: %w", err)
}

func (s *Service) newKeys(adminID int64, plan string, quantity int) []*models.ActivationKey {
	now := s.now().UTC()
	seen := make(map[string]bool, quantity)

	keys := make([]*models.ActivationKey, 0, quantity)
	for len(keys) < quantity {
		code := newKeyCode()
		if seen[code] {
			continue
		}
		seen[code] = true

		keys = append(keys, &models.ActivationKey{
			Code:      code,
			CreatedBy: adminID,
			Plan:      plan,
			CreatedAt: now,
		})
	}
	return keys
}

// newKeyCode returns ten characters from the upper-case base32 alphabet.
func newKeyCode() string {
	return rand.Text()[:keyCodeLength]
}

// RedeemKey registers a device under the key's plan and then claims the key.
func (s *Service) RedeemKey(ctx context.Context, userID int64, code, udid string) (*models.Registration, error) {
	code, err := NormalizeKeyCode(code)
	if err != nil {
		return nil, err
	}
	udid, err = NormalizeUDID(udid)
	if err != nil {
		return nil, err
	}

	key, err := s.stores.Keys.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if key.Used {
		return nil, store.ErrKeyUsed
	}

	reg, err := s.register(ctx, userID, udid, key.Plan)
	if err != nil {
		return nil, err
	}

	if err := s.stores.Keys.MarkUsed(ctx, code, userID); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("code", code).Str("udid", udid).Msg("Device registered but key could not be claimed")
		return nil, err
	}

	return reg, nil
}

// KeyStats returns per-plan totals for the keys a user created.
func (s *Service) KeyStats(ctx context.Context, userID int64) ([]models.KeyStats, error) {
	return s.stores.Keys.Stats(ctx, userID)
}
