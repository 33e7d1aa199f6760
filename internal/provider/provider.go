// Package provider holds the plumbing shared by the third-party API clients.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrInvalidCredential is returned when a provider rejects the credential (401/403).
	ErrInvalidCredential = errors.New("invalid or unauthorized credential")
	// ErrMalformedResponse is returned when a provider answers 2xx with a body we cannot use.
	ErrMalformedResponse = errors.New("malformed provider response")
	// ErrJobFailed is returned when an asynchronous provider job ends without a result.
	ErrJobFailed = errors.New("provider job failed")
)

// HTTPClient is the subset of *http.Client the provider clients need.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError is a non-2xx answer that is not a credential rejection.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// CheckResponse maps a non-2xx response to an error. The caller still owns
// and must close the body.
func CheckResponse(provider string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// Read body for error context, but don't fail if we can't.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s: %w (status %d)", provider, ErrInvalidCredential, resp.StatusCode)
	default:
		return &StatusError{Provider: provider, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
}

// Do sends req and returns the response body of a 2xx answer.
func Do(client HTTPClient, provider string, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", provider, err)
	}
	defer resp.Body.Close()

	if err := CheckResponse(provider, resp); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", provider, err)
	}
	return body, nil
}

// NewJSONRequest builds a request whose body is payload encoded as JSON.
func NewJSONRequest(ctx context.Context, method, url string, payload any) (*http.Request, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Polling describes how long a client waits for asynchronous jobs.
type Polling struct {
	Interval time.Duration
	Attempts int
}

// WithDefaults fills zero fields from def.
func (p Polling) WithDefaults(def Polling) Polling {
	if p.Interval <= 0 {
		p.Interval = def.Interval
	}
	if p.Attempts <= 0 {
		p.Attempts = def.Attempts
	}
	return p
}
