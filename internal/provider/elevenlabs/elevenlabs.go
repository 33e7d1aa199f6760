// Package elevenlabs is a client for the ElevenLabs text-to-speech API.
package elevenlabs

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"github.com/ubuygold/ledgerpool/internal/model"
	"github.com/ubuygold/ledgerpool/internal/provider"
)

const (
	name = "elevenlabs"
	// DefaultBaseURL is the public ElevenLabs API endpoint.
	DefaultBaseURL = "https://api.elevenlabs.io"
	// DefaultVoiceID is used when an account has no voice configured.
	DefaultVoiceID = "pNInz6obpgDQGcFmaJgB"
	// DefaultModel supports Bengali.
	DefaultModel = "eleven_multilingual_v2"
)

// Speech is synthesized audio.
type Speech struct {
	Audio       []byte
	ContentType string
	Characters  int
	VoiceID     string
}

// Voice is one entry of the account's voice library.
type Voice struct {
	ID       string `json:"voice_id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// Client synthesizes speech on behalf of pool accounts.
type Client struct {
	baseURL    string
	httpClient provider.HTTPClient
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c provider.HTTPClient) Option {
	return func(cl *Client) { cl.httpClient = c }
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
	return c
}

// Validate checks the credential by listing voices.
func (c *Client) Validate(ctx context.Context, account *model.Account) error {
	_, err := c.ListVoices(ctx, account)
	return err
}

// ListVoices returns the voices available to the account.
func (c *Client) ListVoices(ctx context.Context, account *model.Account) ([]Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("xi-api-key", account.Credential)

	body, err := provider.Do(c.httpClient, name, req)
	if err != nil {
		return nil, err
	}
	list := gjson.GetBytes(body, "voices")
	if !list.IsArray() {
		return nil, fmt.Errorf("%s: %w: voices missing", name, provider.ErrMalformedResponse)
	}
	voices := make([]Voice, 0, len(list.Array()))
	for _, v := range list.Array() {
		voices = append(voices, Voice{
			ID:       v.Get("voice_id").String(),
			Name:     v.Get("name").String(),
			Category: v.Get("category").String(),
		})
	}
	return voices, nil
}

// Synthesize converts text to speech with the account's voice and model.
func (c *Client) Synthesize(ctx context.Context, account *model.Account, text string) (*Speech, error) {
	voiceID := account.Settings.VoiceID
	if voiceID == "" {
		voiceID = DefaultVoiceID
	}
	modelID := account.Settings.Model
	if modelID == "" {
		modelID = DefaultModel
	}

	req, err := provider.NewJSONRequest(ctx, http.MethodPost, c.baseURL+"/v1/text-to-speech/"+url.PathEscape(voiceID), map[string]any{
		"text":     text,
		"model_id": modelID,
		"voice_settings": map[string]float64{
			"stability":        0.5,
			"similarity_boost": 0.75,
		},
	})
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", account.Credential)
	req.Header.Set("Accept", "audio/mpeg")

	audio, err := provider.Do(c.httpClient, name, req)
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("%s: %w: empty audio", name, provider.ErrMalformedResponse)
	}
	return &Speech{
		Audio:       audio,
		ContentType: "audio/mpeg",
		Characters:  utf8.RuneCountInString(text),
		VoiceID:     voiceID,
	}, nil
}
