package pool

import (
	"context"
	"errors"
	"time"

	"github.com/ubuygold/ledgerpool/internal/model"
)

// CallFunc performs one provider call with the selected account.
type CallFunc[T any] func(ctx context.Context, account *model.Account) (T, Usage, error)

// Result is the outcome of a successful Invoke.
type Result[T any] struct {
	Data        T              `json:"data"`
	AccountID   string         `json:"account_id"`
	AccountUsed string         `json:"account_used"`
	Provider    model.Provider `json:"provider"`
	Duration    time.Duration  `json:"-"`
	DurationMs  int64          `json:"duration_ms"`
}

// Invoke selects an account of provider, commits a rate slot, runs call and
// books the outcome. Failures are returned as *CallError and never retried on
// another account. Bookkeeping errors are logged only.
func Invoke[T any](ctx context.Context, p *Pool, provider model.Provider, call CallFunc[T]) (*Result[T], error) {
	start := p.clock.Now()

	account, err := p.SelectAccount(ctx, provider)
	if err != nil {
		if errors.Is(err, ErrNoAccountAvailable) {
			p.logger.Warn("No account available", "provider", provider)
		}
		return nil, err
	}

	// Bookkeeping must land even when the caller gives up.
	bookCtx := context.WithoutCancel(ctx)
	log := p.logger.With("provider", account.Provider, "account", account.Name, "key_suffix", account.CredentialSuffix())

	if err := p.IncrementRateLimit(bookCtx, account); err != nil {
		log.Error("Failed to commit rate limit slot", "error", err)
	}

	data, usage, callErr := call(ctx, account)
	duration := p.clock.Now().Sub(start)

	if callErr != nil {
		if err := p.RecordError(bookCtx, account, callErr.Error()); err != nil {
			log.Error("Failed to record call error", "error", err)
		}
		log.Warn("Provider call failed", "error", callErr, "error_count", account.ErrorCount, "duration", duration)
		return nil, &CallError{
			Provider:    account.Provider,
			AccountID:   account.ID,
			AccountName: account.Name,
			Err:         callErr,
		}
	}

	if err := p.RecordSuccess(bookCtx, account, usage); err != nil {
		log.Error("Failed to record usage", "error", err)
	}
	if err := p.RecordErrorReset(bookCtx, account); err != nil {
		log.Error("Failed to reset error count", "error", err)
	}
	log.Info("Provider call succeeded", "quantity", usage.Quantity, "cost", usage.Cost.String(), "remaining", account.RemainingCapacity.String(), "duration", duration)

	return &Result[T]{
		Data:        data,
		AccountID:   account.ID,
		AccountUsed: account.Name,
		Provider:    account.Provider,
		Duration:    duration,
		DurationMs:  duration.Milliseconds(),
	}, nil
}
