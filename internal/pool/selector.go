package pool

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"
	"github.com/ubuygold/ledgerpool/internal/model"
)

// SelectAccount returns the best account of provider that can take a request
// now. An empty provider considers every provider. The account's rate slot is
// not committed; see IncrementRateLimit.
func (p *Pool) SelectAccount(ctx context.Context, provider model.Provider) (*model.Account, error) {
	now := p.clock.Now()
	candidates, err := p.store.FindCandidateAccounts(ctx, provider, now)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s account: %w", provider, err)
	}

	eligible := lo.Filter(candidates, func(a model.Account, _ int) bool {
		return Eligible(&a, now)
	})
	sortCandidates(eligible)

	for i := range eligible {
		account := &eligible[i]
		if p.CheckRateLimit(account, now) {
			return account, nil
		}
		p.logger.Debug("Skipping rate limited account", "provider", account.Provider, "account", account.Name, "requests", account.RequestsThisWindow, "limit", account.RateLimitMax)
	}
	return nil, ErrNoAccountAvailable
}

// sortCandidates orders by priority descending, then least recently used.
// Accounts never used come first.
func sortCandidates(accounts []model.Account) {
	sort.SliceStable(accounts, func(i, j int) bool {
		a, b := &accounts[i], &accounts[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return usedBefore(a.LastUsedAt, b.LastUsedAt)
	})
}

func usedBefore(a, b *time.Time) bool {
	switch {
	case a == nil:
		return b != nil
	case b == nil:
		return false
	default:
		return a.Before(*b)
	}
}
