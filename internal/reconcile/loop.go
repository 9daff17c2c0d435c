// Package reconcile periodically re-checks processing registrations against the
// issuing service and records the transition to ready.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/certsign/internal/credential"
	"github.com/wolfeidau/certsign/internal/issuer"
	"github.com/wolfeidau/certsign/internal/models"
	"github.com/wolfeidau/certsign/internal/store"
	"github.com/wolfeidau/certsign/internal/telemetry"
)

const (
	// DefaultInterval between sweeps.
	DefaultInterval = time.Hour

	defaultItemTimeout = 2 * time.Minute
)

// CertificateFetcher looks up issuer payloads for a device.
type CertificateFetcher interface {
	Certificates(ctx context.Context, token string, q issuer.CertificateQuery) ([]models.CertificatePayload, error)
}

// Config configures a Loop.
type Config struct {
	Registrations store.RegistrationStore
	Credentials   store.CredentialStore
	Issuer        CertificateFetcher

	Interval    time.Duration // defaults to DefaultInterval
	ItemTimeout time.Duration // per registration, defaults to 2m
}

// Result summarizes one sweep.
type Result struct {
	Checked      int
	Transitioned int
	Failed       int
}

// Loop is the background reconciliation sweep. Start it once per process.
type Loop struct {
	registrations store.RegistrationStore
	credentials   store.CredentialStore
	issuer        CertificateFetcher
	interval      time.Duration
	itemTimeout   time.Duration

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Loop. It does nothing until Start is called.
func New(cfg Config) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = defaultItemTimeout
	}

	return &Loop{
		registrations: cfg.Registrations,
		credentials:   cfg.Credentials,
		issuer:        cfg.Issuer,
		interval:      cfg.Interval,
		itemTimeout:   cfg.ItemTimeout,
	}
}

// Start sweeps immediately and then on every interval until ctx is done or Stop is called.
// Calling Start on a running loop does nothing.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		log.Warn().Msg("Reconciliation loop already started")
		return
	}
	l.started = true

	loopCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel

	l.wg.Add(1)
	go l.run(loopCtx)

	log.Info().Dur("interval", l.interval).Msg("Reconciliation loop started")
}

// Stop prevents further sweeps and waits for an in-flight sweep to finish.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.mu.Unlock()

	l.wg.Wait()
}

func (l *Loop) run(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Reconciliation loop stopped")
			return
		case <-ticker.C:
			l.sweep(ctx)
		}
	}
}

// sweep runs one tick detached from loop cancellation so a started sweep completes.
func (l *Loop) sweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Reconciliation tick panicked")
		}
	}()

	res, err := l.Tick(context.WithoutCancel(ctx))
	if err != nil {
		log.Error().Err(err).Msg("Reconciliation tick failed")
		return
	}

	log.Info().
		Int("checked", res.Checked).
		Int("transitioned", res.Transitioned).
		Int("failed", res.Failed).
		Msg("Reconciliation tick complete")
}

// Tick performs one sweep over every processing registration. A failure for one
// registration is logged and counted; only a failure to list returns an error.
func (l *Loop) Tick(ctx context.Context) (Result, error) {
	m := telemetry.GetMetrics()
	m.ReconcileTicksTotal.Add(ctx, 1)

	pending, err := l.registrations.ListProcessing(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list processing registrations: %w", err)
	}

	var res Result
	for _, reg := range pending {
		res.Checked++

		changed, err := l.reconcileOne(ctx, reg)
		if err != nil {
			res.Failed++
			m.ReconcileFailuresTotal.Add(ctx, 1)
			log.Warn().Err(err).
				Int64("user_id", reg.UserID).
				Str("udid", reg.UDID).
				Msg("Failed to reconcile registration")
			continue
		}

		if changed {
			res.Transitioned++
			m.ReconcileTransitionsTotal.Add(ctx, 1)
		}
	}

	return res, nil
}

var errNoToken = errors.New("owner has no issuer token")

func (l *Loop) reconcileOne(ctx context.Context, reg *models.PendingRegistration) (changed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if reg.IssuerToken == "" {
		return false, errNoToken
	}

	ctx, cancel := context.WithTimeout(ctx, l.itemTimeout)
	defer cancel()

	payloads, err := l.issuer.Certificates(ctx, reg.IssuerToken, issuer.CertificateQuery{UDID: reg.UDID})
	if err != nil {
		return false, err
	}
	if len(payloads) == 0 {
		return false, nil
	}

	payload := credential.Pick(payloads)

	if credential.Evaluate(payload) != models.StatusReady {
		// a registration promoted while this sweep was in flight keeps its ready payload
		if _, err := l.registrations.UpdatePayload(ctx, reg.UserID, reg.UDID, payload); err != nil && !errors.Is(err, store.ErrRegistrationNotFound) {
			return false, err
		}
		return false, nil
	}

	if err := l.credentials.Save(ctx, &models.Credential{
		UserID:        reg.UserID,
		UDID:          reg.UDID,
		CertificateID: payload.ID(),
		Payload:       payload,
	}); err != nil {
		return false, fmt.Errorf("failed to cache credential: %w", err)
	}

	changed, err = l.registrations.MarkReady(ctx, reg.UserID, reg.UDID, payload)
	if err != nil {
		if errors.Is(err, store.ErrRegistrationNotFound) {
			return false, nil
		}
		return false, err
	}

	if changed {
		log.Info().Int64("user_id", reg.UserID).Str("udid", reg.UDID).Msg("Registration is ready")
	}

	return changed, nil
}
