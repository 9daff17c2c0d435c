// Package issuer is a typed client for the remote certificate issuing service.
package issuer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wolfeidau/certsign/internal/models"
	"github.com/wolfeidau/certsign/internal/telemetry"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodySize    = 16 << 20
)

// Config configures the issuer client.
type Config struct {
	BaseURL string
	Timeout time.Duration

	// Transport is cloned for every call. Defaults to http.DefaultTransport.
	Transport *http.Transport
}

// Client talks to the issuing service. Each call uses its own HTTP client and
// transport which are torn down before the call returns.
type Client struct {
	baseURL   *url.URL
	timeout   time.Duration
	transport *http.Transport
}

// CertificateQuery filters a certificate lookup. At least one field must be set.
type CertificateQuery struct {
	UDID          string
	CertificateID string
}

// NewClient creates a client for the service at cfg.BaseURL.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("issuer base url is required")
	}

	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid issuer base url: %w", err)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport.(*http.Transport)
	}

	return &Client{
		baseURL:   u,
		timeout:   cfg.Timeout,
		transport: transport,
	}, nil
}

// Balance returns the account balance for the token. The service answers with a bare number.
func (c *Client) Balance(ctx context.Context, token string) (float64, error) {
	body, err := c.do(ctx, "balance", http.MethodGet, "/balance", nil, "", token)
	if err != nil {
		return 0, err
	}

	amount, err := strconv.ParseFloat(strings.TrimSpace(string(body)), 64)
	if err != nil {
		return 0, newError("balance", 0, fmt.Errorf("unexpected balance body: %w", err))
	}

	return amount, nil
}

// RegisterDevice registers a device under the given plan and returns the raw response object.
func (c *Client) RegisterDevice(ctx context.Context, token, udid, plan string) (models.CertificatePayload, error) {
	form := url.Values{}
	form.Set("udid", udid)
	form.Set("register_plan", plan)

	body, err := c.do(ctx, "register", http.MethodPost, "/register",
		strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", token)
	if err != nil {
		return nil, err
	}

	var payload models.CertificatePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, newError("register", 0, fmt.Errorf("failed to decode response: %w", err))
	}

	return payload, nil
}

// Certificates looks up certificates by UDID and/or certificate id. The service returns
// either a single object or an array; both are normalized to a list.
func (c *Client) Certificates(ctx context.Context, token string, q CertificateQuery) ([]models.CertificatePayload, error) {
	if q.UDID == "" && q.CertificateID == "" {
		return nil, ErrNoFilter
	}

	params := url.Values{}
	if q.UDID != "" {
		params.Set("udid", q.UDID)
	}
	if q.CertificateID != "" {
		params.Set("certificate_id", q.CertificateID)
	}

	body, err := c.do(ctx, "certificate", http.MethodGet, "/certificate?"+params.Encode(), nil, "", token)
	if err != nil {
		return nil, err
	}

	payloads, err := decodeCertificates(body)
	if err != nil {
		return nil, newError("certificate", 0, err)
	}

	return payloads, nil
}

func decodeCertificates(body []byte) ([]models.CertificatePayload, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	switch trimmed[0] {
	case '[':
		var list []models.CertificatePayload
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("failed to decode certificate list: %w", err)
		}
		return list, nil
	case '{':
		var single models.CertificatePayload
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return nil, fmt.Errorf("failed to decode certificate: %w", err)
		}
		return []models.CertificatePayload{single}, nil
	default:
		return nil, fmt.Errorf("unexpected certificate body starting with %q", trimmed[0])
	}
}

func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType, token string) ([]byte, error) {
	m := telemetry.GetMetrics()
	attrs := metric.WithAttributes(attribute.String("op", op))
	start := time.Now()

	defer func() {
		m.IssuerRequestDuration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
	}()
	m.IssuerRequestsTotal.Add(ctx, 1, attrs)

	respBody, err := c.roundTrip(ctx, op, method, path, body, contentType, token)
	if err != nil {
		m.IssuerErrorsTotal.Add(ctx, 1, attrs)
		log.Ctx(ctx).Debug().Err(err).Str("op", op).Msg("issuer request failed")
		return nil, err
	}

	return respBody, nil
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, body io.Reader, contentType, token string) ([]byte, error) {
	transport := c.transport.Clone()
	httpClient := &http.Client{Transport: transport, Timeout: c.timeout}
	defer httpClient.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return nil, newError(op, 0, fmt.Errorf("failed to create request: %w", err))
	}

	// the service expects the raw token, not a bearer scheme
	req.Header.Set("Authorization", token)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, newError(op, 0, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, newError(op, resp.StatusCode, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newError(op, resp.StatusCode, fmt.Errorf("%s: %s", resp.Status, truncate(respBody, 256)))
	}

	return respBody, nil
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
