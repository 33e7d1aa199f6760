package pool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ubuygold/ledgerpool/internal/model"
)

func TestSelectAccount_PriorityThenLeastRecentlyUsed(t *testing.T) {
	p, store, clock := newTestPool(t)
	ctx := context.Background()
	now := clock.Now()

	older := seed(t, store, &model.Account{Provider: model.ProviderSpeechmatics, Credential: "sm-older-00001", Priority: 5, LastUsedAt: timePtr(now.Add(-10 * time.Minute))})
	newer := seed(t, store, &model.Account{Provider: model.ProviderSpeechmatics, Credential: "sm-newer-00001", Priority: 5, LastUsedAt: timePtr(now.Add(-5 * time.Minute))})
	fresh := seed(t, store, &model.Account{Provider: model.ProviderSpeechmatics, Credential: "sm-fresh-00001", Priority: 5})
	low := seed(t, store, &model.Account{Provider: model.ProviderSpeechmatics, Credential: "sm-low-000001", Priority: 1})

	candidates, err := store.FindCandidateAccounts(ctx, model.ProviderSpeechmatics, now)
	require.NoError(t, err)
	sortCandidates(candidates)
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	assert.Equal(t, []string{fresh.ID, older.ID, newer.ID, low.ID}, ids)

	selected, err := p.SelectAccount(ctx, model.ProviderSpeechmatics)
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, selected.ID)
}

func TestSelectAccount_HigherPriorityWins(t *testing.T) {
	p, store, clock := newTestPool(t)
	ctx := context.Background()

	seed(t, store, &model.Account{Provider: model.ProviderElevenLabs, Credential: "el-low-0000001", Priority: 1})
	high := seed(t, store, &model.Account{Provider: model.ProviderElevenLabs, Credential: "el-high-000001", Priority: 9, LastUsedAt: timePtr(clock.Now())})

	selected, err := p.SelectAccount(ctx, model.ProviderElevenLabs)
	require.NoError(t, err)
	assert.Equal(t, high.ID, selected.ID)
}

func TestSelectAccount_SkipsIneligible(t *testing.T) {
	p, store, clock := newTestPool(t)
	ctx := context.Background()
	now := clock.Now()

	seed(t, store, &model.Account{Provider: model.ProviderClarifai, Credential: "clarifai-disabled", Priority: 100, Status: model.StatusDisabled})
	seed(t, store, &model.Account{Provider: model.ProviderClarifai, Credential: "clarifai-errored", Priority: 99, Status: model.StatusError})
	seed(t, store, &model.Account{Provider: model.ProviderClarifai, Credential: "clarifai-expired", Priority: 98, TrialEndsAt: timePtr(now.Add(-time.Second))})
	seed(t, store, &model.Account{Provider: model.ProviderClarifai, Credential: "clarifai-drained", Priority: 97, TotalCapacity: dec("1"), UsedCapacity: dec("1")})
	seed(t, store, &model.Account{
		Provider:   model.ProviderClarifai,
		Credential: "clarifai-monthly",
		Priority:   96,
		Usage:      model.UsageStats{MonthlyLimit: 10, MonthlyRequests: 10, LastMonthReset: now.Add(-day)},
	})
	seed(t, store, &model.Account{
		Provider:           model.ProviderClarifai,
		Credential:         "clarifai-limited",
		Priority:           95,
		RateLimitMax:       2,
		RequestsThisWindow: 2,
		WindowStartedAt:    timePtr(now.Add(-10 * time.Second)),
	})
	usable := seed(t, store, &model.Account{Provider: model.ProviderClarifai, Credential: "clarifai-usable1", Priority: 1})

	selected, err := p.SelectAccount(ctx, model.ProviderClarifai)
	require.NoError(t, err)
	assert.Equal(t, usable.ID, selected.ID)
}

func TestSelectAccount_ExpiredButNotYetMarked(t *testing.T) {
	p, store, clock := newTestPool(t)
	seed(t, store, &model.Account{
		Provider:    model.ProviderSpeechmatics,
		Credential:  "sm-lazy-expiry1",
		TrialEndsAt: timePtr(clock.Now().Add(time.Hour)),
	})

	clock.Advance(2 * time.Hour)
	_, err := p.SelectAccount(context.Background(), model.ProviderSpeechmatics)
	assert.ErrorIs(t, err, ErrNoAccountAvailable)
}

func TestSelectAccount_AnyProvider(t *testing.T) {
	p, store, _ := newTestPool(t)
	seed(t, store, &model.Account{Provider: model.ProviderAssemblyAI, Credential: "aai-any-000001", Priority: 1})
	top := seed(t, store, &model.Account{Provider: model.ProviderSpeechmatics, Credential: "sm-any-0000001", Priority: 10})

	selected, err := p.SelectAccount(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, top.ID, selected.ID)
}

func TestSelectAccount_NoAccounts(t *testing.T) {
	p, _, _ := newTestPool(t)
	account, err := p.SelectAccount(context.Background(), model.ProviderAssemblyAI)
	assert.Nil(t, account)
	assert.ErrorIs(t, err, ErrNoAccountAvailable)
}

func TestSelectAccount_DoesNotMutate(t *testing.T) {
	p, store, _ := newTestPool(t)
	account := seed(t, store, &model.Account{Provider: model.ProviderAssemblyAI, Credential: "aai-probe-00001", RateLimitMax: 5})

	for i := 0; i < 3; i++ {
		_, err := p.SelectAccount(context.Background(), model.ProviderAssemblyAI)
		require.NoError(t, err)
	}
	stored := reload(t, store, account.ID)
	assert.Equal(t, 0, stored.RequestsThisWindow)
	assert.Nil(t, stored.WindowStartedAt)
}
