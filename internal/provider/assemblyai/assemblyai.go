// Package assemblyai is a client for the AssemblyAI asynchronous transcription API.
package assemblyai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"github.com/ubuygold/ledgerpool/internal/model"
	"github.com/ubuygold/ledgerpool/internal/provider"
)

const (
	name = "assemblyai"
	// DefaultBaseURL is the public AssemblyAI API endpoint.
	DefaultBaseURL = "https://api.assemblyai.com"
)

// costPerSecond is the nano tier price in USD.
var costPerSecond = decimal.RequireFromString("0.00003333")

// Cost returns the USD price of transcribing seconds of audio.
func Cost(seconds float64) decimal.Decimal {
	return decimal.NewFromFloat(seconds).Mul(costPerSecond)
}

// Transcript is a completed transcription.
type Transcript struct {
	ID            string
	Text          string
	Language      string
	Confidence    float64
	AudioDuration float64
}

// Client talks to AssemblyAI on behalf of pool accounts.
type Client struct {
	baseURL    string
	httpClient provider.HTTPClient
	polling    provider.Polling
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c provider.HTTPClient) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithPolling sets how the client waits for a transcript to finish.
func WithPolling(p provider.Polling) Option {
	return func(cl *Client) { cl.polling = p }
}

// New creates a client. An empty baseURL selects DefaultBaseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.polling = c.polling.WithDefaults(provider.Polling{Interval: time.Second, Attempts: 60})
	return c
}

func (c *Client) newRequest(ctx context.Context, method, path string, account *model.Account, payload any) (*http.Request, error) {
	var req *http.Request
	var err error
	if payload != nil {
		req, err = provider.NewJSONRequest(ctx, method, c.baseURL+path, payload)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("authorization", account.Credential)
	return req, nil
}

// Validate checks the credential by listing transcripts.
func (c *Client) Validate(ctx context.Context, account *model.Account) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/v2/transcript?limit=1", account, nil)
	if err != nil {
		return err
	}
	_, err = provider.Do(c.httpClient, name, req)
	return err
}

// Transcribe uploads audio, starts a transcript and waits for it to complete.
func (c *Client) Transcribe(ctx context.Context, account *model.Account, audio []byte) (*Transcript, error) {
	uploadURL, err := c.upload(ctx, account, audio)
	if err != nil {
		return nil, err
	}

	language := account.Settings.Language
	if language == "" {
		language = "en"
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/v2/transcript", account, map[string]any{
		"audio_url":     uploadURL,
		"language_code": language,
		"punctuate":     true,
		"format_text":   true,
	})
	if err != nil {
		return nil, err
	}
	body, err := provider.Do(c.httpClient, name, req)
	if err != nil {
		return nil, err
	}
	id := gjson.GetBytes(body, "id").String()
	if id == "" {
		return nil, fmt.Errorf("%s: %w: transcript id missing", name, provider.ErrMalformedResponse)
	}

	return c.poll(ctx, account, id)
}

func (c *Client) upload(ctx context.Context, account *model.Account, audio []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/upload", bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("authorization", account.Credential)
	req.Header.Set("Content-Type", "application/octet-stream")

	body, err := provider.Do(c.httpClient, name, req)
	if err != nil {
		return "", err
	}
	uploadURL := gjson.GetBytes(body, "upload_url").String()
	if uploadURL == "" {
		return "", fmt.Errorf("%s: %w: upload_url missing", name, provider.ErrMalformedResponse)
	}
	return uploadURL, nil
}

func (c *Client) poll(ctx context.Context, account *model.Account, id string) (*Transcript, error) {
	for attempt := 0; attempt < c.polling.Attempts; attempt++ {
		req, err := c.newRequest(ctx, http.MethodGet, "/v2/transcript/"+id, account, nil)
		if err != nil {
			return nil, err
		}
		body, err := provider.Do(c.httpClient, name, req)
		if err != nil {
			return nil, err
		}

		result := gjson.ParseBytes(body)
		switch result.Get("status").String() {
		case "completed":
			return &Transcript{
				ID:            id,
				Text:          result.Get("text").String(),
				Language:      result.Get("language_code").String(),
				Confidence:    result.Get("confidence").Float(),
				AudioDuration: result.Get("audio_duration").Float(),
			}, nil
		case "error":
			return nil, fmt.Errorf("%s: %w: %s", name, provider.ErrJobFailed, result.Get("error").String())
		}

		if err := provider.Sleep(ctx, c.polling.Interval); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%s: %w: transcription timeout", name, provider.ErrJobFailed)
}
