// Package gateway exposes the pooled provider operations used by the rest of
// the application.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ubuygold/ledgerpool/internal/model"
	"github.com/ubuygold/ledgerpool/internal/pool"
	"github.com/ubuygold/ledgerpool/internal/provider"
	"github.com/ubuygold/ledgerpool/internal/provider/assemblyai"
	"github.com/ubuygold/ledgerpool/internal/provider/clarifai"
	"github.com/ubuygold/ledgerpool/internal/provider/elevenlabs"
)

// Transcription is the provider-neutral result of a speech-to-text call.
type Transcription struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Duration   float64 `json:"duration_seconds"`
	Confidence float64 `json:"confidence,omitempty"`
}

// ParsedTransaction is one money movement extracted from a message.
type ParsedTransaction struct {
	Type        string  `json:"type"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Date        string  `json:"date"`
	Currency    string  `json:"currency"`
}

// TransactionParse is the model's verdict on a message.
type TransactionParse struct {
	Valid        bool                `json:"valid"`
	Reason       string              `json:"reason,omitempty"`
	Transactions []ParsedTransaction `json:"transactions,omitempty"`
}

// Gateway routes each operation through the account pool.
type Gateway struct {
	pool    *pool.Pool
	clients *Clients
	logger  *slog.Logger
}

// New creates a gateway.
func New(p *pool.Pool, clients *Clients, logger *slog.Logger) *Gateway {
	return &Gateway{
		pool:    p,
		clients: clients,
		logger:  logger.With("component", "gateway"),
	}
}

// TranscribeVoice transcribes audio with a Speechmatics account.
func (g *Gateway) TranscribeVoice(ctx context.Context, audio []byte, filename string) (*pool.Result[*Transcription], error) {
	return pool.Invoke(ctx, g.pool, model.ProviderSpeechmatics, func(ctx context.Context, account *model.Account) (*Transcription, pool.Usage, error) {
		t, err := g.clients.Speechmatics.Transcribe(ctx, account, audio, filename)
		if err != nil {
			return nil, pool.Usage{}, err
		}
		return &Transcription{
			ID:       t.JobID,
			Text:     t.Text,
			Language: t.Language,
			Duration: t.Duration,
		}, pool.Usage{Quantity: t.Duration}, nil
	})
}

// TranscribeWithAssemblyAI transcribes audio with an AssemblyAI account and
// charges the audio duration against its credit.
func (g *Gateway) TranscribeWithAssemblyAI(ctx context.Context, audio []byte) (*pool.Result[*Transcription], error) {
	return pool.Invoke(ctx, g.pool, model.ProviderAssemblyAI, func(ctx context.Context, account *model.Account) (*Transcription, pool.Usage, error) {
		t, err := g.clients.AssemblyAI.Transcribe(ctx, account, audio)
		if err != nil {
			return nil, pool.Usage{}, err
		}
		transcription := &Transcription{
			ID:         t.ID,
			Text:       t.Text,
			Language:   t.Language,
			Duration:   t.AudioDuration,
			Confidence: t.Confidence,
		}
		return transcription, pool.Usage{Quantity: t.AudioDuration, Cost: assemblyai.Cost(t.AudioDuration)}, nil
	})
}

// SynthesizeSpeech converts text to audio with an ElevenLabs account.
func (g *Gateway) SynthesizeSpeech(ctx context.Context, text string) (*pool.Result[*elevenlabs.Speech], error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is required", pool.ErrInvalidInput)
	}
	return pool.Invoke(ctx, g.pool, model.ProviderElevenLabs, func(ctx context.Context, account *model.Account) (*elevenlabs.Speech, pool.Usage, error) {
		speech, err := g.clients.ElevenLabs.Synthesize(ctx, account, text)
		if err != nil {
			return nil, pool.Usage{}, err
		}
		return speech, pool.Usage{Quantity: float64(speech.Characters)}, nil
	})
}

// ParseTransaction asks a Clarifai model to extract the transactions in
// message. A reply that is not the expected JSON counts as a failed call.
func (g *Gateway) ParseTransaction(ctx context.Context, message string, categories []Category) (*pool.Result[*TransactionParse], error) {
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%w: message is required", pool.ErrInvalidInput)
	}
	prompt := buildTransactionPrompt(message, categories)

	return pool.Invoke(ctx, g.pool, model.ProviderClarifai, func(ctx context.Context, account *model.Account) (*TransactionParse, pool.Usage, error) {
		completion, err := g.clients.Clarifai.Complete(ctx, account, []clarifai.Message{{Role: "user", Content: prompt}})
		if err != nil {
			return nil, pool.Usage{}, err
		}
		var parsed TransactionParse
		if err := json.Unmarshal([]byte(stripFences(completion.Content)), &parsed); err != nil {
			g.logger.Error("Model returned invalid JSON", "account", account.Name, "reply", completion.Content)
			return nil, pool.Usage{}, fmt.Errorf("clarifai: %w: model returned invalid JSON", provider.ErrMalformedResponse)
		}
		return &parsed, pool.Usage{Quantity: 1}, nil
	})
}

// ListVoices lists the voice library of one ElevenLabs account. It is a maintenance
// call and is not metered.
func (g *Gateway) ListVoices(ctx context.Context, accountID string) ([]elevenlabs.Voice, error) {
	account, err := g.pool.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.Provider != model.ProviderElevenLabs {
		return nil, fmt.Errorf("%w: account %q is not an elevenlabs account", pool.ErrInvalidInput, account.Name)
	}
	return g.clients.ElevenLabs.ListVoices(ctx, account)
}
