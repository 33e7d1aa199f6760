package pool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/ubuygold/ledgerpool/internal/model"
	"golang.org/x/sync/errgroup"
)

// AddAccountRequest describes a new account. Nil fields take the provider defaults.
type AddAccountRequest struct {
	Provider      model.Provider         `json:"provider"`
	Name          string                 `json:"name"`
	Credential    string                 `json:"api_key"`
	Priority      *int                   `json:"priority"`
	PlanType      model.PlanType         `json:"plan_type"`
	TotalCapacity *decimal.Decimal       `json:"total_capacity"`
	RateLimitMax  *int                   `json:"rate_limit_max"`
	TrialEndsAt   *time.Time             `json:"trial_ends_at"`
	MonthlyLimit  *int64                 `json:"monthly_limit"`
	Settings      model.ProviderSettings `json:"settings"`
	Notes         string                 `json:"notes"`
}

// AccountPatch lists the mutable fields of an account. Nil fields are left alone.
// Provider and credential cannot be changed.
type AccountPatch struct {
	Name          *string                 `json:"name"`
	Priority      *int                    `json:"priority"`
	Status        *model.Status           `json:"status"`
	PlanType      *model.PlanType         `json:"plan_type"`
	TotalCapacity *decimal.Decimal        `json:"total_capacity"`
	UsedCapacity  *decimal.Decimal        `json:"used_capacity"`
	RateLimitMax  *int                    `json:"rate_limit_max"`
	TrialEndsAt   *time.Time              `json:"trial_ends_at"`
	MonthlyLimit  *int64                  `json:"monthly_limit"`
	Settings      *model.ProviderSettings `json:"settings"`
	Notes         *string                 `json:"notes"`
}

// AccountSummary is the masked, display-oriented view of an account.
type AccountSummary struct {
	ID                 string                 `json:"id"`
	Name               string                 `json:"name"`
	Provider           model.Provider         `json:"provider"`
	MaskedCredential   string                 `json:"api_key"`
	Priority           int                    `json:"priority"`
	Status             model.Status           `json:"status"`
	PlanType           model.PlanType         `json:"plan_type"`
	TotalCapacity      decimal.Decimal        `json:"total_capacity"`
	UsedCapacity       decimal.Decimal        `json:"used_capacity"`
	RemainingCapacity  decimal.Decimal        `json:"remaining_capacity"`
	UsagePercentage    float64                `json:"usage_percentage"`
	RateLimitMax       int                    `json:"rate_limit_max"`
	RequestsThisWindow int                    `json:"requests_this_window"`
	TotalRequests      int64                  `json:"total_requests"`
	SuccessfulRequests int64                  `json:"successful_requests"`
	FailedRequests     int64                  `json:"failed_requests"`
	AudioSeconds       float64                `json:"audio_seconds"`
	AudioHours         string                 `json:"audio_hours"`
	Characters         int64                  `json:"characters"`
	MonthlyRequests    int64                  `json:"monthly_requests"`
	MonthlyLimit       int64                  `json:"monthly_limit"`
	TrialEndsAt        *time.Time             `json:"trial_ends_at"`
	IsExpired          bool                   `json:"is_expired"`
	HasCapacity        bool                   `json:"has_capacity"`
	LastUsedAt         *time.Time             `json:"last_used_at"`
	LastError          *string                `json:"last_error"`
	ErrorCount         int                    `json:"error_count"`
	Settings           model.ProviderSettings `json:"settings"`
	Notes              string                 `json:"notes"`
	CreatedAt          time.Time              `json:"created_at"`
}

// ProviderStat aggregates the accounts of one provider.
type ProviderStat struct {
	Provider       model.Provider `json:"provider"`
	TotalAccounts  int            `json:"total_accounts"`
	ActiveAccounts int            `json:"active_accounts"`
	TotalRequests  int64          `json:"total_requests"`
	AudioSeconds   float64        `json:"audio_seconds"`
	Characters     int64          `json:"characters"`
}

// Summarize builds the masked view of account as of now.
func Summarize(account *model.Account, now time.Time) AccountSummary {
	return AccountSummary{
		ID:                 account.ID,
		Name:               account.Name,
		Provider:           account.Provider,
		MaskedCredential:   account.MaskedCredential(),
		Priority:           account.Priority,
		Status:             account.Status,
		PlanType:           account.PlanType,
		TotalCapacity:      account.TotalCapacity,
		UsedCapacity:       account.UsedCapacity,
		RemainingCapacity:  account.RemainingCapacity,
		UsagePercentage:    account.UsagePercentage(),
		RateLimitMax:       account.RateLimitMax,
		RequestsThisWindow: account.RequestsThisWindow,
		TotalRequests:      account.Usage.TotalRequests,
		SuccessfulRequests: account.Usage.SuccessfulRequests,
		FailedRequests:     account.Usage.FailedRequests,
		AudioSeconds:       account.Usage.AudioSeconds,
		AudioHours:         fmt.Sprintf("%.2f", account.Usage.AudioSeconds/3600),
		Characters:         account.Usage.Characters,
		MonthlyRequests:    account.Usage.MonthlyRequests,
		MonthlyLimit:       account.Usage.MonthlyLimit,
		TrialEndsAt:        account.TrialEndsAt,
		IsExpired:          account.IsExpired(now),
		HasCapacity:        account.HasCapacity(),
		LastUsedAt:         account.LastUsedAt,
		LastError:          account.LastError,
		ErrorCount:         account.ErrorCount,
		Settings:           account.Settings,
		Notes:              account.Notes,
		CreatedAt:          account.CreatedAt,
	}
}

// AddAccount validates the credential live and stores a new account.
func (p *Pool) AddAccount(ctx context.Context, req AddAccountRequest) (*model.Account, error) {
	policy, ok := p.policies[req.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, req.Provider)
	}
	credential := strings.TrimSpace(req.Credential)
	if credential == "" {
		return nil, fmt.Errorf("%w: api key is required", ErrInvalidInput)
	}
	if req.PlanType != "" && !req.PlanType.Valid() {
		return nil, fmt.Errorf("%w: unknown plan type %q", ErrInvalidInput, req.PlanType)
	}
	if req.TotalCapacity != nil && req.TotalCapacity.IsNegative() {
		return nil, fmt.Errorf("%w: total capacity cannot be negative", ErrInvalidInput)
	}

	if _, err := p.store.FindAccountByCredential(ctx, req.Provider, credential); err == nil {
		return nil, ErrDuplicateCredential
	} else if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	account := p.newAccount(policy, req, credential)

	if err := p.validate(ctx, account); err != nil {
		return nil, err
	}

	if err := p.store.CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	p.logger.Info("Account added", "provider", account.Provider, "account", account.Name, "key_suffix", account.CredentialSuffix())
	return account, nil
}

func (p *Pool) newAccount(policy Policy, req AddAccountRequest, credential string) *model.Account {
	now := p.clock.Now()
	account := &model.Account{
		Name:         strings.TrimSpace(req.Name),
		Provider:     req.Provider,
		Credential:   credential,
		Priority:     policy.Priority,
		Status:       model.StatusActive,
		PlanType:     model.PlanTrial,
		RateLimitMax: policy.RateLimit,
		Settings:     policy.Settings.Merge(req.Settings),
		Notes:        req.Notes,
	}
	if account.Name == "" {
		account.Name = policy.DisplayName + " Account"
	}
	if req.Priority != nil {
		account.Priority = *req.Priority
	}
	if req.PlanType != "" {
		account.PlanType = req.PlanType
	}
	account.TotalCapacity = policy.TotalCapacity
	if req.TotalCapacity != nil {
		account.TotalCapacity = *req.TotalCapacity
	}
	if req.RateLimitMax != nil {
		account.RateLimitMax = *req.RateLimitMax
	}
	account.Usage.MonthlyLimit = policy.MonthlyLimit
	if req.MonthlyLimit != nil {
		account.Usage.MonthlyLimit = *req.MonthlyLimit
	}
	account.Usage.LastMonthReset = now

	switch {
	case req.TrialEndsAt != nil:
		end := req.TrialEndsAt.UTC()
		account.TrialEndsAt = &end
	case policy.TrialPeriod > 0 && account.PlanType != model.PlanPaid:
		end := now.Add(policy.TrialPeriod)
		account.TrialEndsAt = &end
	}

	account.RecalculateRemaining()
	return account
}

// validate runs the provider's live check and maps its failure.
func (p *Pool) validate(ctx context.Context, account *model.Account) error {
	validator, ok := p.validators[account.Provider]
	if !ok {
		p.logger.Warn("No validator registered, skipping live credential check", "provider", account.Provider)
		return nil
	}
	if err := validator.Validate(ctx, account); err != nil {
		if errors.Is(err, ErrInvalidCredential) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	return nil
}

// UpdateAccount applies patch to the account with id and recomputes its derived status.
func (p *Pool) UpdateAccount(ctx context.Context, id string, patch AccountPatch) (*model.Account, error) {
	account, err := p.store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := p.applyPatch(account, patch); err != nil {
		return nil, err
	}
	if err := p.save(ctx, account); err != nil {
		return nil, err
	}
	p.logger.Info("Account updated", "provider", account.Provider, "account", account.Name, "status", account.Status)
	return account, nil
}

func (p *Pool) applyPatch(account *model.Account, patch AccountPatch) error {
	if patch.Status != nil && *patch.Status != model.StatusActive && *patch.Status != model.StatusDisabled {
		return ErrInvalidStatus
	}
	if patch.PlanType != nil && !patch.PlanType.Valid() {
		return fmt.Errorf("%w: unknown plan type %q", ErrInvalidInput, *patch.PlanType)
	}
	if patch.TotalCapacity != nil && patch.TotalCapacity.IsNegative() {
		return fmt.Errorf("%w: total capacity cannot be negative", ErrInvalidInput)
	}
	if patch.UsedCapacity != nil && patch.UsedCapacity.IsNegative() {
		return fmt.Errorf("%w: used capacity cannot be negative", ErrInvalidInput)
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidInput)
	}

	if patch.Name != nil {
		account.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Priority != nil {
		account.Priority = *patch.Priority
	}
	if patch.PlanType != nil {
		account.PlanType = *patch.PlanType
	}
	if patch.TotalCapacity != nil {
		account.TotalCapacity = *patch.TotalCapacity
	}
	if patch.UsedCapacity != nil {
		account.UsedCapacity = *patch.UsedCapacity
	}
	if patch.RateLimitMax != nil {
		account.RateLimitMax = *patch.RateLimitMax
	}
	if patch.TrialEndsAt != nil {
		end := patch.TrialEndsAt.UTC()
		account.TrialEndsAt = &end
	}
	if patch.MonthlyLimit != nil {
		account.Usage.MonthlyLimit = *patch.MonthlyLimit
	}
	if patch.Settings != nil {
		account.Settings = account.Settings.Merge(*patch.Settings)
	}
	if patch.Notes != nil {
		account.Notes = *patch.Notes
	}
	account.RecalculateRemaining()

	if patch.Status != nil {
		switch *patch.Status {
		case model.StatusDisabled:
			account.Status = model.StatusDisabled
			return nil
		case model.StatusActive:
			// Lifting a manual or error hold starts from a clean slate.
			account.ErrorCount = 0
			account.LastError = nil
			account.Status = model.StatusActive
		}
	}

	switch account.Status {
	case model.StatusActive, model.StatusExhausted, model.StatusExpired:
		account.Status = derivedStatus(account, p.clock.Now())
	}
	return nil
}

// DeleteAccount removes the account with id.
func (p *Pool) DeleteAccount(ctx context.Context, id string) error {
	if err := p.store.DeleteAccount(ctx, id); err != nil {
		return err
	}
	p.logger.Info("Account deleted", "account_id", id)
	return nil
}

// GetAccount returns the account with id.
func (p *Pool) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	return p.store.GetAccount(ctx, id)
}

// ListAccountsStatus returns the masked view of every account, or of one provider.
func (p *Pool) ListAccountsStatus(ctx context.Context, provider model.Provider) ([]AccountSummary, error) {
	if provider != "" && !provider.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	accounts, err := p.store.ListAccounts(ctx, provider)
	if err != nil {
		return nil, err
	}
	now := p.clock.Now()
	return lo.Map(accounts, func(a model.Account, _ int) AccountSummary {
		return Summarize(&a, now)
	}), nil
}

// ProviderStats aggregates accounts per provider. Every provider is listed.
func (p *Pool) ProviderStats(ctx context.Context) ([]ProviderStat, error) {
	accounts, err := p.store.ListAccounts(ctx, "")
	if err != nil {
		return nil, err
	}
	byProvider := lo.GroupBy(accounts, func(a model.Account) model.Provider { return a.Provider })

	return lo.Map(model.Providers, func(provider model.Provider, _ int) ProviderStat {
		group := byProvider[provider]
		return ProviderStat{
			Provider:       provider,
			TotalAccounts:  len(group),
			ActiveAccounts: lo.CountBy(group, func(a model.Account) bool { return a.Status == model.StatusActive }),
			TotalRequests:  lo.SumBy(group, func(a model.Account) int64 { return a.Usage.TotalRequests }),
			AudioSeconds:   lo.SumBy(group, func(a model.Account) float64 { return a.Usage.AudioSeconds }),
			Characters:     lo.SumBy(group, func(a model.Account) int64 { return a.Usage.Characters }),
		}
	}), nil
}

// TestAccount re-validates the account with id. Success clears its error
// streak, failure extends it. Request counters are not touched.
func (p *Pool) TestAccount(ctx context.Context, id string) (*model.Account, error) {
	account, err := p.store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	return account, p.testAccount(ctx, account)
}

func (p *Pool) testAccount(ctx context.Context, account *model.Account) error {
	log := p.logger.With("provider", account.Provider, "account", account.Name, "key_suffix", account.CredentialSuffix())
	log.Info("Performing manual health check for account")

	checkErr := p.validate(ctx, account)
	bookCtx := context.WithoutCancel(ctx)
	if err := p.refresh(bookCtx, account); err != nil {
		return err
	}

	if checkErr != nil {
		log.Warn("Health check failed for account", "error", checkErr)
		before := account.Status
		p.noteError(account, checkErr.Error())
		if recErr := p.persist(bookCtx, account, before, errorFields(account)); recErr != nil {
			log.Error("Failed to record health check failure", "error", recErr)
		}
		return checkErr
	}

	log.Info("Health check succeeded for account")
	return p.RecordErrorReset(ctx, account)
}

// ReviveErroredAccounts re-tests every account in error status and returns
// how many came back.
func (p *Pool) ReviveErroredAccounts(ctx context.Context) (int, error) {
	accounts, err := p.store.ListAccountsByStatus(ctx, model.StatusError)
	if err != nil {
		return 0, err
	}
	if len(accounts) == 0 {
		return 0, nil
	}

	p.logger.Info("Starting check to revive errored accounts", "count", len(accounts))

	var revived atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.revivalConcurrency)
	for i := range accounts {
		account := &accounts[i]
		g.Go(func() error {
			if err := p.testAccount(gctx, account); err != nil {
				p.logger.Debug("Account still failing check", "provider", account.Provider, "account", account.Name, "error", err)
				return nil
			}
			if account.Status != model.StatusError && account.Status != model.StatusDisabled {
				revived.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return int(revived.Load()), err
	}

	p.logger.Info("Finished checking errored accounts", "revived", revived.Load())
	return int(revived.Load()), nil
}
