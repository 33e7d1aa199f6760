package pool

import (
	"context"
	"time"

	"github.com/ubuygold/ledgerpool/internal/model"
)

// monthlyWindow is the rolling period of the monthly request counter.
const monthlyWindow = 30 * day

func (p *Pool) windowExpired(account *model.Account, now time.Time) bool {
	return account.WindowStartedAt == nil || now.Sub(*account.WindowStartedAt) > p.rateWindow
}

// requestsInWindow is the counter as seen at now; an expired window counts as empty.
func (p *Pool) requestsInWindow(account *model.Account, now time.Time) int {
	if p.windowExpired(account, now) {
		return 0
	}
	return account.RequestsThisWindow
}

// CheckRateLimit reports whether the account may take one more request at now.
// It never mutates the account.
func (p *Pool) CheckRateLimit(account *model.Account, now time.Time) bool {
	if account.RateLimitMax <= 0 {
		return true
	}
	return p.requestsInWindow(account, now) < account.RateLimitMax
}

// IncrementRateLimit commits one request slot in the account's window and persists it.
func (p *Pool) IncrementRateLimit(ctx context.Context, account *model.Account) error {
	now := p.clock.Now()
	if p.windowExpired(account, now) {
		account.RequestsThisWindow = 1
		account.WindowStartedAt = &now
	} else {
		account.RequestsThisWindow++
	}
	return p.persist(ctx, account, account.Status, map[string]any{
		"requests_this_window": account.RequestsThisWindow,
		"window_started_at":    account.WindowStartedAt,
	})
}

func monthlyWindowElapsed(account *model.Account, now time.Time) bool {
	return now.Sub(account.Usage.LastMonthReset) >= monthlyWindow
}

// MonthlyLimitReached reports whether the account used up its monthly request
// quota. A window that is due to roll is treated as fresh.
func MonthlyLimitReached(account *model.Account, now time.Time) bool {
	if account.Usage.MonthlyLimit <= 0 || monthlyWindowElapsed(account, now) {
		return false
	}
	return account.Usage.MonthlyRequests >= account.Usage.MonthlyLimit
}

func rollMonthlyWindow(account *model.Account, now time.Time) {
	if monthlyWindowElapsed(account, now) {
		account.Usage.MonthlyRequests = 0
		account.Usage.LastMonthReset = now
	}
}

// Eligible reports whether the account passes every selection check except the rate probe.
func Eligible(account *model.Account, now time.Time) bool {
	return account.Status == model.StatusActive &&
		account.HasCapacity() &&
		!account.IsExpired(now) &&
		!MonthlyLimitReached(account, now)
}

// derivedStatus is the automatic status of an account that is neither disabled nor in error.
func derivedStatus(account *model.Account, now time.Time) model.Status {
	if !account.HasCapacity() {
		return model.StatusExhausted
	}
	if account.IsExpired(now) {
		return model.StatusExpired
	}
	return model.StatusActive
}
