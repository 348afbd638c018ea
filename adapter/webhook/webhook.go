// Package webhook delivers session events to an HTTP endpoint.
//
// Each event is one JSON POST. When a secret is configured the body is
// signed with HMAC-SHA256 and the hex digest sent in SignatureHeader, so
// the receiver can reject forged notifications. Network errors and 5xx
// responses are retried; 4xx responses are final.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cite-sa/MobiusCore/adapter"
	"github.com/cite-sa/MobiusCore/iox"
)

// Request headers set on every delivery.
const (
	EventHeader     = "X-Mobius-Event"
	SessionHeader   = "X-Mobius-Session"
	SignatureHeader = "X-Mobius-Signature"
)

// DefaultTimeout bounds one delivery attempt.
const DefaultTimeout = 10 * time.Second

// Config configures the webhook adapter.
type Config struct {
	// URL receives the POSTs. Required.
	URL string
	// Headers are added to each request after the X-Mobius headers.
	Headers map[string]string
	// Secret, when set, signs each body.
	Secret string
	// Timeout bounds one attempt (default 10s).
	Timeout time.Duration
	// Retries is the number of extra attempts after a failure.
	Retries int
}

// Adapter posts session events.
type Adapter struct {
	url     string
	headers map[string]string
	secret  []byte
	retries int
	client  *http.Client
}

// New validates cfg and returns an adapter.
func New(cfg Config) (*Adapter, error) {
	switch {
	case cfg.URL == "":
		return nil, errors.New("webhook adapter requires a URL")
	case cfg.Retries < 0:
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	a := &Adapter{
		url:     cfg.URL,
		headers: cfg.Headers,
		retries: cfg.Retries,
		client:  &http.Client{Timeout: timeout},
	}
	if cfg.Secret != "" {
		a.secret = []byte(cfg.Secret)
	}
	return a, nil
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Publish delivers event, retrying transient failures.
func (a *Adapter) Publish(ctx context.Context, event *adapter.SessionCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}
	return adapter.Retry(ctx, "webhook", a.retries, func(ctx context.Context) error {
		err := a.deliver(ctx, event, body)
		if se := (*StatusError)(nil); errors.As(err, &se) && se.Code < 500 {
			return fmt.Errorf("%w: %w", adapter.ErrPermanent, err)
		}
		return err
	})
}

func (a *Adapter) deliver(ctx context.Context, event *adapter.SessionCompletedEvent, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, event.EventType)
	req.Header.Set(SessionHeader, event.SessionID)
	if a.secret != nil {
		req.Header.Set(SignatureHeader, "sha256="+Sign(a.secret, body))
	}
	for k, v := range a.headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Close drops idle keep-alive connections.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
