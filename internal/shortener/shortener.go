// Package shortener compacts long install links through a URL shortening service.
package shortener

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

const (
	defaultTimeout        = 10 * time.Second
	defaultMaxTries       = 3
	defaultExpirationDays = 1
)

// Config configures a Shortener. An empty Endpoint disables shortening.
type Config struct {
	Endpoint       string
	ExpirationDays int
	Timeout        time.Duration
	MaxTries       uint
}

// Shortener calls the shortening service. It never fails: on any error the
// long URL is returned unchanged.
type Shortener struct {
	endpoint       string
	expirationDays int
	maxTries       uint
	client         *http.Client
	backoff        func() backoff.BackOff
}

// New creates a Shortener.
func New(cfg Config) *Shortener {
	if cfg.ExpirationDays <= 0 {
		cfg.ExpirationDays = defaultExpirationDays
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = defaultMaxTries
	}

	return &Shortener{
		endpoint:       cfg.Endpoint,
		expirationDays: cfg.ExpirationDays,
		maxTries:       cfg.MaxTries,
		client:         &http.Client{Timeout: cfg.Timeout},
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
	}
}

type shortenRequest struct {
	URL            string `json:"url"`
	ExpirationDays int    `json:"expirationDays"`
}

type shortenResponse struct {
	ShortURL string `json:"shortUrl"`
}

// Shorten returns the short form of longURL, or longURL itself if the service
// is disabled or fails.
func (s *Shortener) Shorten(ctx context.Context, longURL string) string {
	if s.endpoint == "" || longURL == "" {
		return longURL
	}

	short, err := backoff.Retry(ctx, func() (string, error) {
		return s.shorten(ctx, longURL)
	}, backoff.WithBackOff(s.backoff()), backoff.WithMaxTries(s.maxTries))
	if err != nil {
		log.Ctx(ctx).Debug().Err(err).Msg("URL shortener failed, using long URL")
		return longURL
	}

	return short
}

func (s *Shortener) shorten(ctx context.Context, longURL string) (string, error) {
	body, err := json.Marshal(shortenRequest{URL: longURL, ExpirationDays: s.expirationDays})
	if err != nil {
		return "", backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("shortener returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", backoff.Permanent(fmt.Errorf("shortener returned %d", resp.StatusCode))
	}

	var out shortenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); err != nil {
		return "", backoff.Permanent(fmt.Errorf("failed to decode shortener response: %w", err))
	}
	if out.ShortURL == "" {
		return "", backoff.Permanent(errors.New("shortener response has no shortUrl"))
	}

	return out.ShortURL, nil
}
