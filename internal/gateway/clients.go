package gateway

import (
	"net/http"

	"github.com/ubuygold/ledgerpool/internal/config"
	"github.com/ubuygold/ledgerpool/internal/model"
	"github.com/ubuygold/ledgerpool/internal/pool"
	"github.com/ubuygold/ledgerpool/internal/provider"
	"github.com/ubuygold/ledgerpool/internal/provider/assemblyai"
	"github.com/ubuygold/ledgerpool/internal/provider/clarifai"
	"github.com/ubuygold/ledgerpool/internal/provider/elevenlabs"
	"github.com/ubuygold/ledgerpool/internal/provider/speechmatics"
)

// Clients holds one HTTP adapter per provider.
type Clients struct {
	AssemblyAI   *assemblyai.Client
	Clarifai     *clarifai.Client
	Speechmatics *speechmatics.Client
	ElevenLabs   *elevenlabs.Client
}

// NewClients builds the provider adapters from cfg. A zero base URL selects
// the public endpoint of each provider.
func NewClients(cfg *config.Config) *Clients {
	httpClient := &http.Client{Timeout: cfg.HTTP.Timeout}

	polling := func(p model.Provider) provider.Polling {
		pc := cfg.Provider(string(p))
		return provider.Polling{Interval: pc.PollInterval, Attempts: pc.PollAttempts}
	}
	baseURL := func(p model.Provider) string {
		return cfg.Provider(string(p)).BaseURL
	}

	return &Clients{
		AssemblyAI: assemblyai.New(baseURL(model.ProviderAssemblyAI),
			assemblyai.WithHTTPClient(httpClient),
			assemblyai.WithPolling(polling(model.ProviderAssemblyAI)),
		),
		Clarifai: clarifai.New(baseURL(model.ProviderClarifai),
			clarifai.WithHTTPClient(httpClient),
		),
		Speechmatics: speechmatics.New(baseURL(model.ProviderSpeechmatics),
			speechmatics.WithHTTPClient(httpClient),
			speechmatics.WithPolling(polling(model.ProviderSpeechmatics)),
		),
		ElevenLabs: elevenlabs.New(baseURL(model.ProviderElevenLabs),
			elevenlabs.WithHTTPClient(httpClient),
		),
	}
}

// Validators exposes the live credential check of every adapter.
func (c *Clients) Validators() map[model.Provider]pool.Validator {
	return map[model.Provider]pool.Validator{
		model.ProviderAssemblyAI:   c.AssemblyAI,
		model.ProviderClarifai:     c.Clarifai,
		model.ProviderSpeechmatics: c.Speechmatics,
		model.ProviderElevenLabs:   c.ElevenLabs,
	}
}
