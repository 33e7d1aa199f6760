package model

import "fmt"

// Provider identifies the third-party service an account belongs to.
type Provider string

const (
	ProviderAssemblyAI   Provider = "assemblyai"
	ProviderClarifai     Provider = "clarifai"
	ProviderSpeechmatics Provider = "speechmatics"
	ProviderElevenLabs   Provider = "elevenlabs"
)

// Providers lists every supported provider in display order.
var Providers = []Provider{
	ProviderAssemblyAI,
	ProviderClarifai,
	ProviderSpeechmatics,
	ProviderElevenLabs,
}

// Valid reports whether p is one of the supported providers.
func (p Provider) Valid() bool {
	for _, known := range Providers {
		if p == known {
			return true
		}
	}
	return false
}

// ParseProvider converts a raw string into a Provider.
func ParseProvider(s string) (Provider, error) {
	p := Provider(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown provider %q", s)
	}
	return p, nil
}

// Status is the derived lifecycle state of an account.
type Status string

const (
	StatusActive    Status = "active"
	StatusExhausted Status = "exhausted"
	StatusExpired   Status = "expired"
	StatusError     Status = "error"
	StatusDisabled  Status = "disabled"
)

// PlanType describes the billing plan behind a credential.
type PlanType string

const (
	PlanFree  PlanType = "free"
	PlanTrial PlanType = "trial"
	PlanPaid  PlanType = "paid"
)

// Valid reports whether t is a known plan type.
func (t PlanType) Valid() bool {
	return t == PlanFree || t == PlanTrial || t == PlanPaid
}
