package pool

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/ubuygold/ledgerpool/internal/config"
	"github.com/ubuygold/ledgerpool/internal/db"
	"github.com/ubuygold/ledgerpool/internal/logger"
	"github.com/ubuygold/ledgerpool/internal/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() *config.Config {
	return &config.Config{
		Pool:      config.PoolConfig{ErrorThreshold: 5, RateWindow: time.Minute},
		Scheduler: config.SchedulerConfig{RevivalConcurrency: 2},
	}
}

func newTestStore(t *testing.T) db.Service {
	t.Helper()
	store, err := db.NewService(config.DatabaseConfig{
		Type: "sqlite",
		DSN:  filepath.Join(t.TempDir(), "pool.db") + "?_busy_timeout=5000",
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestPool(t *testing.T, opts ...Option) (*Pool, db.Service, *fakeClock) {
	t.Helper()
	store := newTestStore(t)
	clock := newFakeClock()
	opts = append([]Option{WithClock(clock)}, opts...)
	p := New(store, testConfig(), logger.NewWithWriter(io.Discard, true), opts...)
	return p, store, clock
}

// seed stores account with the fields a test cares about and returns it re-read.
func seed(t *testing.T, store db.Service, account *model.Account) *model.Account {
	t.Helper()
	if account.Name == "" {
		account.Name = account.Credential
	}
	require.NoError(t, store.CreateAccount(context.Background(), account))
	return reload(t, store, account.ID)
}

func reload(t *testing.T, store db.Service, id string) *model.Account {
	t.Helper()
	account, err := store.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return account
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func validatorReturning(err error) Validator {
	return ValidatorFunc(func(ctx context.Context, account *model.Account) error { return err })
}
