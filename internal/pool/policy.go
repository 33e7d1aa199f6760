package pool

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/ubuygold/ledgerpool/internal/config"
	"github.com/ubuygold/ledgerpool/internal/model"
	"github.com/ubuygold/ledgerpool/internal/provider/clarifai"
	"github.com/ubuygold/ledgerpool/internal/provider/elevenlabs"
)

// UsageUnit names the counter a successful call's quantity is added to.
type UsageUnit string

const (
	UnitAudioSeconds UsageUnit = "audio_seconds"
	UnitCharacters   UsageUnit = "characters"
	UnitRequests     UsageUnit = "requests"
)

const day = 24 * time.Hour

// Policy is the per-provider behaviour of the pool: how usage is counted and
// which defaults new accounts get.
type Policy struct {
	Provider      model.Provider
	DisplayName   string
	Unit          UsageUnit
	Priority      int
	RateLimit     int
	TotalCapacity decimal.Decimal
	// TrialPeriod of zero means new accounts get no expiry horizon.
	TrialPeriod  time.Duration
	MonthlyLimit int64
	Settings     model.ProviderSettings
}

// DefaultPolicies returns the built-in provider policies.
func DefaultPolicies() map[model.Provider]Policy {
	return map[model.Provider]Policy{
		model.ProviderAssemblyAI: {
			Provider:      model.ProviderAssemblyAI,
			DisplayName:   "AssemblyAI",
			Unit:          UnitAudioSeconds,
			Priority:      1,
			RateLimit:     5,
			TotalCapacity: decimal.NewFromInt(50),
			TrialPeriod:   90 * day,
			Settings:      model.ProviderSettings{Language: "en"},
		},
		model.ProviderClarifai: {
			Provider:     model.ProviderClarifai,
			DisplayName:  "Clarifai",
			Unit:         UnitRequests,
			Priority:     1,
			RateLimit:    60,
			MonthlyLimit: 1000,
			Settings:     model.ProviderSettings{Model: clarifai.DefaultModel},
		},
		model.ProviderSpeechmatics: {
			Provider:    model.ProviderSpeechmatics,
			DisplayName: "Speechmatics",
			Unit:        UnitAudioSeconds,
			Priority:    10,
			RateLimit:   10,
			TrialPeriod: 30 * day,
			Settings:    model.ProviderSettings{Language: "bn", OperatingPoint: "standard"},
		},
		model.ProviderElevenLabs: {
			Provider:    model.ProviderElevenLabs,
			DisplayName: "ElevenLabs",
			Unit:        UnitCharacters,
			Priority:    5,
			RateLimit:   20,
			TrialPeriod: 30 * day,
			Settings:    model.ProviderSettings{VoiceID: elevenlabs.DefaultVoiceID, Model: elevenlabs.DefaultModel},
		},
	}
}

// PoliciesFromConfig returns the default policies with the configured overrides applied.
func PoliciesFromConfig(cfg *config.Config) map[model.Provider]Policy {
	policies := DefaultPolicies()
	for p, policy := range policies {
		override := cfg.Provider(string(p))
		if override.Priority != nil {
			policy.Priority = *override.Priority
		}
		if override.RateLimit != nil {
			policy.RateLimit = *override.RateLimit
		}
		if override.TotalCapacity != nil {
			policy.TotalCapacity = decimal.NewFromFloat(*override.TotalCapacity)
		}
		if override.TrialDays != nil {
			policy.TrialPeriod = time.Duration(*override.TrialDays) * day
		}
		if override.MonthlyLimit != nil {
			policy.MonthlyLimit = *override.MonthlyLimit
		}
		policies[p] = policy
	}
	return policies
}
