// Package pool selects, meters and administers third-party provider accounts.
package pool

import (
	"context"
	"log/slog"
	"time"

	"github.com/ubuygold/ledgerpool/internal/config"
	"github.com/ubuygold/ledgerpool/internal/db"
	"github.com/ubuygold/ledgerpool/internal/model"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Validator performs a cheap live request to prove an account's credential works.
type Validator interface {
	Validate(ctx context.Context, account *model.Account) error
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(ctx context.Context, account *model.Account) error

func (f ValidatorFunc) Validate(ctx context.Context, account *model.Account) error {
	return f(ctx, account)
}

// Pool routes calls across the stored accounts of every provider.
type Pool struct {
	store              db.Service
	logger             *slog.Logger
	clock              Clock
	policies           map[model.Provider]Policy
	validators         map[model.Provider]Validator
	errorThreshold     int
	rateWindow         time.Duration
	revivalConcurrency int
}

// Option configures the pool.
type Option func(*Pool)

// WithClock sets the time source.
func WithClock(c Clock) Option {
	return func(p *Pool) { p.clock = c }
}

// WithValidators registers the live credential checks per provider.
func WithValidators(v map[model.Provider]Validator) Option {
	return func(p *Pool) {
		for provider, validator := range v {
			p.validators[provider] = validator
		}
	}
}

// WithPolicies replaces the provider policies.
func WithPolicies(policies map[model.Provider]Policy) Option {
	return func(p *Pool) { p.policies = policies }
}

// New creates a pool over store.
func New(store db.Service, cfg *config.Config, logger *slog.Logger, opts ...Option) *Pool {
	p := &Pool{
		store:              store,
		logger:             logger.With("component", "pool"),
		clock:              systemClock{},
		policies:           PoliciesFromConfig(cfg),
		validators:         make(map[model.Provider]Validator),
		errorThreshold:     cfg.Pool.ErrorThreshold,
		rateWindow:         cfg.Pool.RateWindow,
		revivalConcurrency: cfg.Scheduler.RevivalConcurrency,
	}
	if p.errorThreshold <= 0 {
		p.errorThreshold = 5
	}
	if p.rateWindow <= 0 {
		p.rateWindow = time.Minute
	}
	if p.revivalConcurrency <= 0 {
		p.revivalConcurrency = 4
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Policy returns the policy of provider.
func (p *Pool) Policy(provider model.Provider) (Policy, bool) {
	policy, ok := p.policies[provider]
	return policy, ok
}

func (p *Pool) save(ctx context.Context, account *model.Account) error {
	return p.store.SaveAccount(ctx, account)
}

// refresh reloads account from the store so bookkeeping after a long call
// sees edits made in the meantime.
func (p *Pool) refresh(ctx context.Context, account *model.Account) error {
	fresh, err := p.store.GetAccount(ctx, account.ID)
	if err != nil {
		return err
	}
	*account = *fresh
	return nil
}

// persist writes fields and, if it moved away from before, the status of
// account. A disabled row keeps its status and account is told so.
func (p *Pool) persist(ctx context.Context, account *model.Account, before model.Status, fields map[string]any) error {
	if len(fields) > 0 {
		if err := p.store.UpdateAccountFields(ctx, account.ID, fields); err != nil {
			return err
		}
	}
	if account.Status == before {
		return nil
	}
	status, err := p.store.UpdateAccountStatus(ctx, account.ID, account.Status)
	if err != nil {
		return err
	}
	account.Status = status
	return nil
}

func counterFields(account *model.Account) map[string]any {
	return map[string]any{
		"usage_total_requests":      account.Usage.TotalRequests,
		"usage_successful_requests": account.Usage.SuccessfulRequests,
		"usage_failed_requests":     account.Usage.FailedRequests,
		"usage_monthly_requests":    account.Usage.MonthlyRequests,
		"usage_last_month_reset":    account.Usage.LastMonthReset,
	}
}

func errorFields(account *model.Account) map[string]any {
	return map[string]any{
		"error_count": account.ErrorCount,
		"last_error":  account.LastError,
	}
}
