// Package clarifai talks to Clarifai-hosted LLMs through the OpenAI-compatible endpoint.
package clarifai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/ubuygold/ledgerpool/internal/model"
	"github.com/ubuygold/ledgerpool/internal/provider"
)

const (
	name = "clarifai"
	// DefaultBaseURL is the OpenAI-compatible Clarifai endpoint.
	DefaultBaseURL = "https://api.clarifai.com/v2/ext/openai/v1"
	// DefaultModel is the model URL used when an account has none configured.
	DefaultModel = "https://clarifai.com/openai/chat-completion/models/gpt-oss-120b"
)

// ModelURL builds the Clarifai model URL from its user, app and model ids.
func ModelURL(userID, appID, modelID string) string {
	return fmt.Sprintf("https://clarifai.com/%s/%s/models/%s", userID, appID, modelID)
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completion is the first choice of a chat completion.
type Completion struct {
	ID           string
	Model        string
	Content      string
	FinishReason string
	TotalTokens  int64
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// Client sends chat completions on behalf of pool accounts.
type Client struct {
	baseURL    string
	httpClient provider.HTTPClient
	maxTokens  int
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c provider.HTTPClient) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(cl *Client) { cl.maxTokens = n }
}

// New creates a client. An empty baseURL selects DefaultBaseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		maxTokens:  1024,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate checks the PAT by listing models.
func (c *Client) Validate(ctx context.Context, account *model.Account) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+account.Credential)
	_, err = provider.Do(c.httpClient, name, req)
	return err
}

// Complete sends messages to the account's model and returns the first choice.
func (c *Client) Complete(ctx context.Context, account *model.Account, messages []Message) (*Completion, error) {
	modelURL := account.Settings.Model
	if modelURL == "" {
		modelURL = DefaultModel
	}

	req, err := provider.NewJSONRequest(ctx, http.MethodPost, c.baseURL+"/chat/completions", chatRequest{
		Model:       modelURL,
		Messages:    messages,
		Temperature: 0.1,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+account.Credential)

	body, err := provider.Do(c.httpClient, name, req)
	if err != nil {
		return nil, err
	}

	resp := gjson.ParseBytes(body)
	choice := resp.Get("choices.0")
	if !choice.Exists() {
		return nil, fmt.Errorf("%s: %w: empty choices in response", name, provider.ErrMalformedResponse)
	}
	content := choice.Get("message.content").String()
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%s: %w: no response from model", name, provider.ErrMalformedResponse)
	}
	return &Completion{
		ID:           resp.Get("id").String(),
		Model:        resp.Get("model").String(),
		Content:      content,
		FinishReason: choice.Get("finish_reason").String(),
		TotalTokens:  resp.Get("usage.total_tokens").Int(),
	}, nil
}
