package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Account is one provider credential together with its quota, rate and health state.
type Account struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name       string   `gorm:"type:varchar(255);not null" json:"name"`
	Provider   Provider `gorm:"type:varchar(32);not null;uniqueIndex:idx_provider_credential;index:idx_provider_status" json:"provider"`
	Credential string   `gorm:"type:varchar(512);not null;uniqueIndex:idx_provider_credential" json:"-"`
	Priority   int      `gorm:"not null" json:"priority"`
	Status     Status   `gorm:"type:varchar(32);not null;default:'active';index:idx_provider_status" json:"status"`
	PlanType   PlanType `gorm:"type:varchar(16);not null;default:'trial'" json:"plan_type"`

	// A TotalCapacity of zero means the account is unlimited.
	TotalCapacity     decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"total_capacity"`
	UsedCapacity      decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"used_capacity"`
	RemainingCapacity decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"remaining_capacity"`

	RateLimitMax       int        `gorm:"not null;default:0" json:"rate_limit_max"`
	RequestsThisWindow int        `gorm:"not null;default:0" json:"requests_this_window"`
	WindowStartedAt    *time.Time `json:"window_started_at"`

	TrialEndsAt *time.Time `json:"trial_ends_at"`
	LastUsedAt  *time.Time `gorm:"index" json:"last_used_at"`

	ErrorCount int     `gorm:"not null;default:0" json:"error_count"`
	LastError  *string `gorm:"type:text" json:"last_error"`

	Usage    UsageStats       `gorm:"embedded;embeddedPrefix:usage_" json:"usage"`
	Settings ProviderSettings `gorm:"embedded;embeddedPrefix:cfg_" json:"settings"`
	Notes    string           `gorm:"type:text" json:"notes"`
}

// UsageStats holds cumulative counters for an account.
type UsageStats struct {
	TotalRequests      int64     `gorm:"not null;default:0" json:"total_requests"`
	SuccessfulRequests int64     `gorm:"not null;default:0" json:"successful_requests"`
	FailedRequests     int64     `gorm:"not null;default:0" json:"failed_requests"`
	AudioSeconds       float64   `gorm:"not null;default:0" json:"audio_seconds"`
	Characters         int64     `gorm:"not null;default:0" json:"characters"`
	MonthlyRequests    int64     `gorm:"not null;default:0" json:"monthly_requests"`
	MonthlyLimit       int64     `gorm:"not null;default:0" json:"monthly_limit"`
	LastMonthReset     time.Time `json:"last_month_reset"`
}

// ProviderSettings carries the provider-specific knobs of an account.
// Unused fields are left empty.
type ProviderSettings struct {
	Language       string `gorm:"type:varchar(16)" json:"language,omitempty"`
	OperatingPoint string `gorm:"type:varchar(16)" json:"operating_point,omitempty"`
	VoiceID        string `gorm:"type:varchar(64)" json:"voice_id,omitempty"`
	Model          string `gorm:"type:varchar(255)" json:"model,omitempty"`
}

// Merge overlays the non-empty fields of other onto s.
func (s ProviderSettings) Merge(other ProviderSettings) ProviderSettings {
	if other.Language != "" {
		s.Language = other.Language
	}
	if other.OperatingPoint != "" {
		s.OperatingPoint = other.OperatingPoint
	}
	if other.VoiceID != "" {
		s.VoiceID = other.VoiceID
	}
	if other.Model != "" {
		s.Model = other.Model
	}
	return s
}

// BeforeCreate assigns an ID and initialises derived fields.
func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = StatusActive
	}
	if a.PlanType == "" {
		a.PlanType = PlanTrial
	}
	if a.Usage.LastMonthReset.IsZero() {
		a.Usage.LastMonthReset = time.Now().UTC()
	}
	a.RecalculateRemaining()
	return nil
}

// Unlimited reports whether the account has no capacity bound.
func (a *Account) Unlimited() bool {
	return a.TotalCapacity.IsZero()
}

// RecalculateRemaining derives RemainingCapacity from total and used.
func (a *Account) RecalculateRemaining() {
	a.RemainingCapacity = a.TotalCapacity.Sub(a.UsedCapacity)
}

// HasCapacity reports whether the account may still consume quota.
func (a *Account) HasCapacity() bool {
	return a.Unlimited() || a.RemainingCapacity.IsPositive()
}

// IsExpired reports whether a non-paid account is past its trial horizon.
func (a *Account) IsExpired(now time.Time) bool {
	if a.PlanType == PlanPaid || a.TrialEndsAt == nil {
		return false
	}
	return now.After(*a.TrialEndsAt)
}

// UsagePercentage returns used/total as a percentage, or 0 when unlimited.
func (a *Account) UsagePercentage() float64 {
	if a.Unlimited() {
		return 0
	}
	pct, _ := a.UsedCapacity.Div(a.TotalCapacity).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}

// MaskedCredential returns the credential with its middle hidden.
func (a *Account) MaskedCredential() string {
	if len(a.Credential) <= 12 {
		return "****"
	}
	return a.Credential[:8] + "..." + a.Credential[len(a.Credential)-4:]
}

// CredentialSuffix returns the last four characters of the credential for logging.
func (a *Account) CredentialSuffix() string {
	if len(a.Credential) > 4 {
		return a.Credential[len(a.Credential)-4:]
	}
	return a.Credential
}
