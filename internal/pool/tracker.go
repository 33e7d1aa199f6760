package pool

import (
	"context"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/ubuygold/ledgerpool/internal/model"
)

// Usage is what a successful call consumed.
type Usage struct {
	// Quantity is counted in the provider policy's unit.
	Quantity float64
	// Cost is subtracted from the account's capacity.
	Cost decimal.Decimal
}

// RecordSuccess books a successful call against the stored state of the
// account and writes back only the columns it changes.
func (p *Pool) RecordSuccess(ctx context.Context, account *model.Account, usage Usage) error {
	if err := p.refresh(ctx, account); err != nil {
		return err
	}
	before := account.Status
	now := p.clock.Now()
	rollMonthlyWindow(account, now)

	account.Usage.TotalRequests++
	account.Usage.SuccessfulRequests++
	account.Usage.MonthlyRequests++

	switch p.policies[account.Provider].Unit {
	case UnitAudioSeconds:
		account.Usage.AudioSeconds += usage.Quantity
	case UnitCharacters:
		account.Usage.Characters += int64(usage.Quantity)
	}

	account.UsedCapacity = account.UsedCapacity.Add(usage.Cost)
	account.RecalculateRemaining()
	account.LastUsedAt = &now

	if account.Status == model.StatusActive {
		account.Status = derivedStatus(account, now)
		if account.Status != model.StatusActive {
			p.logger.Warn("Account left the active pool", "provider", account.Provider, "account", account.Name, "status", account.Status)
		}
	}
	return p.persist(ctx, account, before, lo.Assign(counterFields(account), map[string]any{
		"usage_audio_seconds": account.Usage.AudioSeconds,
		"usage_characters":    account.Usage.Characters,
		"used_capacity":       account.UsedCapacity,
		"remaining_capacity":  account.RemainingCapacity,
		"last_used_at":        account.LastUsedAt,
	}))
}

// RecordError books a failed call and trips the account into error status at the threshold.
func (p *Pool) RecordError(ctx context.Context, account *model.Account, message string) error {
	if err := p.refresh(ctx, account); err != nil {
		return err
	}
	before := account.Status
	rollMonthlyWindow(account, p.clock.Now())
	account.Usage.TotalRequests++
	account.Usage.FailedRequests++
	account.Usage.MonthlyRequests++
	p.noteError(account, message)
	return p.persist(ctx, account, before, lo.Assign(counterFields(account), errorFields(account)))
}

// noteError advances the error streak without touching the request counters.
func (p *Pool) noteError(account *model.Account, message string) {
	account.LastError = &message
	account.ErrorCount++
	if account.ErrorCount >= p.errorThreshold && account.Status != model.StatusDisabled && account.Status != model.StatusError {
		account.Status = model.StatusError
		p.logger.Warn("Disabling account due to reaching error threshold", "provider", account.Provider, "account", account.Name, "key_suffix", account.CredentialSuffix(), "errors", account.ErrorCount)
	}
}

// RecordErrorReset clears the error streak. An account in error status returns to service.
func (p *Pool) RecordErrorReset(ctx context.Context, account *model.Account) error {
	if account.ErrorCount == 0 && account.LastError == nil && account.Status != model.StatusError {
		return nil
	}
	before := account.Status
	account.ErrorCount = 0
	account.LastError = nil
	if account.Status == model.StatusError {
		account.Status = derivedStatus(account, p.clock.Now())
		p.logger.Info("Re-activating account after successful request", "provider", account.Provider, "account", account.Name, "status", account.Status)
	}
	return p.persist(ctx, account, before, errorFields(account))
}
