// Package speechmatics is a client for the Speechmatics batch transcription API.
package speechmatics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/ubuygold/ledgerpool/internal/model"
	"github.com/ubuygold/ledgerpool/internal/provider"
)

const (
	name = "speechmatics"
	// DefaultBaseURL is the public Speechmatics batch endpoint.
	DefaultBaseURL = "https://asr.api.speechmatics.com"
)

// Transcript is the text of a finished job.
type Transcript struct {
	JobID    string
	Text     string
	Language string
	Duration float64
}

// Client submits batch jobs on behalf of pool accounts.
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

// WithPolling sets how the client waits for a job to finish.
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
	c.polling = c.polling.WithDefaults(provider.Polling{Interval: 2 * time.Second, Attempts: 60})
	return c
}

type transcriptionConfig struct {
	Language       string `json:"language"`
	OperatingPoint string `json:"operating_point"`
	EnablePartials bool   `json:"enable_partials"`
	MaxDelay       int    `json:"max_delay"`
}

type jobConfig struct {
	Type                string              `json:"type"`
	TranscriptionConfig transcriptionConfig `json:"transcription_config"`
}

func (c *Client) get(ctx context.Context, account *model.Account, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+account.Credential)
	return provider.Do(c.httpClient, name, req)
}

// Validate checks the credential by listing one job.
func (c *Client) Validate(ctx context.Context, account *model.Account) error {
	_, err := c.get(ctx, account, "/v2/jobs?limit=1")
	return err
}

// Transcribe submits audio as a batch job and waits for the transcript.
func (c *Client) Transcribe(ctx context.Context, account *model.Account, audio []byte, filename string) (*Transcript, error) {
	jobID, err := c.submit(ctx, account, audio, filename)
	if err != nil {
		return nil, err
	}

	duration, err := c.wait(ctx, account, jobID)
	if err != nil {
		return nil, err
	}

	body, err := c.get(ctx, account, "/v2/jobs/"+jobID+"/transcript?format=json-v2")
	if err != nil {
		return nil, err
	}
	result := gjson.ParseBytes(body)

	var words []string
	result.Get("results").ForEach(func(_, r gjson.Result) bool {
		if content := r.Get("alternatives.0.content").String(); content != "" {
			words = append(words, content)
		}
		return true
	})

	language := result.Get("metadata.transcription_config.language").String()
	if language == "" {
		language = account.Settings.Language
	}
	return &Transcript{
		JobID:    jobID,
		Text:     strings.Join(words, " "),
		Language: language,
		Duration: duration,
	}, nil
}

func (c *Client) submit(ctx context.Context, account *model.Account, audio []byte, filename string) (string, error) {
	cfg := jobConfig{
		Type: "transcription",
		TranscriptionConfig: transcriptionConfig{
			Language:       account.Settings.Language,
			OperatingPoint: account.Settings.OperatingPoint,
			MaxDelay:       5,
		},
	}
	if cfg.TranscriptionConfig.Language == "" {
		cfg.TranscriptionConfig.Language = "bn"
	}
	if cfg.TranscriptionConfig.OperatingPoint == "" {
		cfg.TranscriptionConfig.OperatingPoint = "standard"
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal job config: %w", err)
	}
	if filename == "" {
		filename = "audio"
	}

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("data_file", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("write audio: %w", err)
	}
	if err := form.WriteField("config", string(cfgJSON)); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/jobs", &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+account.Credential)
	req.Header.Set("Content-Type", form.FormDataContentType())

	body, err := provider.Do(c.httpClient, name, req)
	if err != nil {
		return "", err
	}
	id := gjson.GetBytes(body, "id").String()
	if id == "" {
		return "", fmt.Errorf("%s: %w: job id missing", name, provider.ErrMalformedResponse)
	}
	return id, nil
}

// wait polls the job until it is done and returns its audio duration.
func (c *Client) wait(ctx context.Context, account *model.Account, jobID string) (float64, error) {
	for attempt := 0; attempt < c.polling.Attempts; attempt++ {
		body, err := c.get(ctx, account, "/v2/jobs/"+jobID)
		if err != nil {
			return 0, err
		}
		job := gjson.GetBytes(body, "job")
		switch job.Get("status").String() {
		case "done":
			return job.Get("duration").Float(), nil
		case "rejected":
			reason := job.Get("errors.0.message").String()
			if reason == "" {
				reason = "job rejected"
			}
			return 0, fmt.Errorf("%s: %w: %s", name, provider.ErrJobFailed, reason)
		}

		if err := provider.Sleep(ctx, c.polling.Interval); err != nil {
			return 0, err
		}
	}
	return 0, fmt.Errorf("%s: %w: transcription timeout", name, provider.ErrJobFailed)
}
