package pool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ubuygold/ledgerpool/internal/model"
)

func TestCheckRateLimit_WindowReset(t *testing.T) {
	p, store, clock := newTestPool(t)
	ctx := context.Background()
	account := seed(t, store, &model.Account{Provider: model.ProviderAssemblyAI, Credential: "aai-rate-000001", RateLimitMax: 3})

	for i := 0; i < 3; i++ {
		require.True(t, p.CheckRateLimit(account, clock.Now()))
		require.NoError(t, p.IncrementRateLimit(ctx, account))
		clock.Advance(10 * time.Second)
	}
	assert.False(t, p.CheckRateLimit(account, clock.Now()))

	// Probing never changes the counter.
	assert.Equal(t, 3, account.RequestsThisWindow)
	assert.Equal(t, 3, reload(t, store, account.ID).RequestsThisWindow)

	clock.Advance(32 * time.Second)
	assert.True(t, p.CheckRateLimit(account, clock.Now()))

	require.NoError(t, p.IncrementRateLimit(ctx, account))
	stored := reload(t, store, account.ID)
	assert.Equal(t, 1, stored.RequestsThisWindow)
	require.NotNil(t, stored.WindowStartedAt)
	assert.True(t, stored.WindowStartedAt.Equal(clock.Now()))
}

func TestCheckRateLimit_WindowBoundary(t *testing.T) {
	p, _, clock := newTestPool(t)
	start := clock.Now()
	account := &model.Account{RateLimitMax: 1, RequestsThisWindow: 1, WindowStartedAt: &start}

	assert.False(t, p.CheckRateLimit(account, start.Add(time.Minute)))
	assert.True(t, p.CheckRateLimit(account, start.Add(time.Minute+time.Millisecond)))
}

func TestCheckRateLimit_NoLimit(t *testing.T) {
	p, _, clock := newTestPool(t)
	now := clock.Now()
	account := &model.Account{RateLimitMax: 0, RequestsThisWindow: 500, WindowStartedAt: &now}
	assert.True(t, p.CheckRateLimit(account, now))
}

func TestCheckRateLimit_NeverUsed(t *testing.T) {
	p, _, clock := newTestPool(t)
	assert.True(t, p.CheckRateLimit(&model.Account{RateLimitMax: 1, RequestsThisWindow: 1}, clock.Now()))
}

func TestMonthlyLimitReached(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	account := &model.Account{Usage: model.UsageStats{MonthlyLimit: 10, MonthlyRequests: 10, LastMonthReset: now.Add(-5 * day)}}
	assert.True(t, MonthlyLimitReached(account, now))

	account.Usage.MonthlyRequests = 9
	assert.False(t, MonthlyLimitReached(account, now))

	account.Usage.MonthlyRequests = 10
	account.Usage.LastMonthReset = now.Add(-31 * day)
	assert.False(t, MonthlyLimitReached(account, now), "a window due to roll counts as fresh")

	account.Usage.MonthlyLimit = 0
	account.Usage.LastMonthReset = now
	assert.False(t, MonthlyLimitReached(account, now))
}

func TestMonthlyLimitReached_RollsAtThirtyDays(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	account := &model.Account{Usage: model.UsageStats{MonthlyLimit: 10, MonthlyRequests: 10, LastMonthReset: now.Add(-30*day + time.Second)}}
	assert.True(t, MonthlyLimitReached(account, now))

	account.Usage.LastMonthReset = now.Add(-30 * day)
	assert.False(t, MonthlyLimitReached(account, now))

	rollMonthlyWindow(account, now)
	assert.Equal(t, int64(0), account.Usage.MonthlyRequests)
	assert.True(t, account.Usage.LastMonthReset.Equal(now))
}

func TestRecordSuccess_ExhaustsCapacity(t *testing.T) {
	p, store, _ := newTestPool(t)
	ctx := context.Background()
	account := seed(t, store, &model.Account{
		Provider:      model.ProviderAssemblyAI,
		Credential:    "aai-capacity-01",
		TotalCapacity: dec("50"),
		UsedCapacity:  dec("49.9999"),
	})

	require.NoError(t, p.RecordSuccess(ctx, account, Usage{Quantity: 6, Cost: dec("0.0002")}))

	stored := reload(t, store, account.ID)
	assert.Equal(t, model.StatusExhausted, stored.Status)
	assert.True(t, stored.UsedCapacity.Equal(dec("50.0001")), stored.UsedCapacity.String())
	assert.True(t, stored.RemainingCapacity.Equal(dec("-0.0001")), stored.RemainingCapacity.String())
	assert.Equal(t, 6.0, stored.Usage.AudioSeconds)
	assert.Equal(t, int64(1), stored.Usage.SuccessfulRequests)
	assert.NotNil(t, stored.LastUsedAt)

	_, err := p.SelectAccount(ctx, model.ProviderAssemblyAI)
	assert.ErrorIs(t, err, ErrNoAccountAvailable)
}

func TestRecordSuccess_UnlimitedNeverExhausts(t *testing.T) {
	p, store, _ := newTestPool(t)
	ctx := context.Background()
	account := seed(t, store, &model.Account{Provider: model.ProviderSpeechmatics, Credential: "sm-unlimited-01"})

	for i := 0; i < 3; i++ {
		require.NoError(t, p.RecordSuccess(ctx, account, Usage{Quantity: 100, Cost: dec("25")}))
	}
	stored := reload(t, store, account.ID)
	assert.Equal(t, model.StatusActive, stored.Status)
	assert.True(t, stored.HasCapacity())
	assert.Equal(t, 300.0, stored.Usage.AudioSeconds)
}

func TestRecordSuccess_UsageUnits(t *testing.T) {
	p, store, _ := newTestPool(t)
	ctx := context.Background()

	tts := seed(t, store, &model.Account{Provider: model.ProviderElevenLabs, Credential: "el-units-00001"})
	require.NoError(t, p.RecordSuccess(ctx, tts, Usage{Quantity: 120}))
	assert.Equal(t, int64(120), reload(t, store, tts.ID).Usage.Characters)
	assert.Equal(t, 0.0, reload(t, store, tts.ID).Usage.AudioSeconds)

	llm := seed(t, store, &model.Account{Provider: model.ProviderClarifai, Credential: "clarifai-units-1", Usage: model.UsageStats{MonthlyLimit: 1000}})
	require.NoError(t, p.RecordSuccess(ctx, llm, Usage{Quantity: 1}))
	stored := reload(t, store, llm.ID)
	assert.Equal(t, int64(1), stored.Usage.MonthlyRequests)
	assert.Equal(t, int64(0), stored.Usage.Characters)
	assert.Equal(t, 0.0, stored.Usage.AudioSeconds)
}

func TestRecordSuccess_ExpiresTrial(t *testing.T) {
	p, store, clock := newTestPool(t)
	account := seed(t, store, &model.Account{
		Provider:    model.ProviderSpeechmatics,
		Credential:  "sm-expiring-001",
		TrialEndsAt: timePtr(clock.Now().Add(-time.Minute)),
	})

	require.NoError(t, p.RecordSuccess(context.Background(), account, Usage{Quantity: 1}))
	assert.Equal(t, model.StatusExpired, reload(t, store, account.ID).Status)
}

func TestRecordSuccess_PaidNeverExpires(t *testing.T) {
	p, store, clock := newTestPool(t)
	account := seed(t, store, &model.Account{
		Provider:    model.ProviderSpeechmatics,
		Credential:  "sm-paid-000001",
		PlanType:    model.PlanPaid,
		TrialEndsAt: timePtr(clock.Now().Add(-time.Hour)),
	})

	require.NoError(t, p.RecordSuccess(context.Background(), account, Usage{Quantity: 1}))
	assert.Equal(t, model.StatusActive, reload(t, store, account.ID).Status)
}

func TestRecordSuccess_RollsMonthlyWindow(t *testing.T) {
	p, store, clock := newTestPool(t)
	account := seed(t, store, &model.Account{
		Provider:   model.ProviderClarifai,
		Credential: "clarifai-roll-01",
		Usage: model.UsageStats{
			MonthlyLimit:    1000,
			MonthlyRequests: 1000,
			LastMonthReset:  clock.Now().Add(-31 * day),
		},
	})

	require.NoError(t, p.RecordSuccess(context.Background(), account, Usage{Quantity: 1}))
	stored := reload(t, store, account.ID)
	assert.Equal(t, int64(1), stored.Usage.MonthlyRequests)
	assert.True(t, stored.Usage.LastMonthReset.Equal(clock.Now()))
}

func TestRecordError_CircuitBreaker(t *testing.T) {
	p, store, _ := newTestPool(t)
	ctx := context.Background()
	account := seed(t, store, &model.Account{Provider: model.ProviderElevenLabs, Credential: "el-breaker-0001"})

	for i := 1; i <= 4; i++ {
		require.NoError(t, p.RecordError(ctx, account, "upstream 500"))
		assert.Equal(t, model.StatusActive, account.Status, "after %d errors", i)
	}
	require.NoError(t, p.RecordError(ctx, account, "upstream 502"))

	stored := reload(t, store, account.ID)
	assert.Equal(t, model.StatusError, stored.Status)
	assert.Equal(t, 5, stored.ErrorCount)
	require.NotNil(t, stored.LastError)
	assert.Equal(t, "upstream 502", *stored.LastError)
	assert.Equal(t, int64(5), stored.Usage.FailedRequests)
	assert.Equal(t, int64(5), stored.Usage.TotalRequests)

	_, err := p.SelectAccount(ctx, model.ProviderElevenLabs)
	assert.ErrorIs(t, err, ErrNoAccountAvailable)

	require.NoError(t, p.RecordErrorReset(ctx, account))
	stored = reload(t, store, account.ID)
	assert.Equal(t, model.StatusActive, stored.Status)
	assert.Equal(t, 0, stored.ErrorCount)
	assert.Nil(t, stored.LastError)
}

func TestRecordError_DisabledStaysDisabled(t *testing.T) {
	p, store, _ := newTestPool(t)
	ctx := context.Background()
	account := seed(t, store, &model.Account{Provider: model.ProviderElevenLabs, Credential: "el-disabled-001", Status: model.StatusDisabled})

	for i := 0; i < 6; i++ {
		require.NoError(t, p.RecordError(ctx, account, "boom"))
	}
	assert.Equal(t, model.StatusDisabled, reload(t, store, account.ID).Status)

	require.NoError(t, p.RecordErrorReset(ctx, account))
	assert.Equal(t, model.StatusDisabled, reload(t, store, account.ID).Status)
}

func TestRecordErrorReset_OnlyRestoresFromError(t *testing.T) {
	p, store, _ := newTestPool(t)
	account := seed(t, store, &model.Account{
		Provider:      model.ProviderAssemblyAI,
		Credential:    "aai-reset-00001",
		Status:        model.StatusExhausted,
		TotalCapacity: dec("50"),
		UsedCapacity:  dec("50"),
		ErrorCount:    2,
	})

	require.NoError(t, p.RecordErrorReset(context.Background(), account))
	stored := reload(t, store, account.ID)
	assert.Equal(t, model.StatusExhausted, stored.Status)
	assert.Equal(t, 0, stored.ErrorCount)
}

func TestRecordErrorReset_ErrorWithoutCapacity(t *testing.T) {
	p, store, _ := newTestPool(t)
	account := seed(t, store, &model.Account{
		Provider:      model.ProviderAssemblyAI,
		Credential:    "aai-reset-00002",
		Status:        model.StatusError,
		TotalCapacity: dec("50"),
		UsedCapacity:  dec("50"),
		ErrorCount:    5,
	})

	require.NoError(t, p.RecordErrorReset(context.Background(), account))
	assert.Equal(t, model.StatusExhausted, reload(t, store, account.ID).Status)
}
