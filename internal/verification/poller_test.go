package verification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/artisanalley/marketplace-backend/internal/purchases"
	"github.com/artisanalley/marketplace-backend/pkg/db/dbtest"
	"github.com/artisanalley/marketplace-backend/pkg/db/models"
	"github.com/artisanalley/marketplace-backend/pkg/enums"
	pkgerrors "github.com/artisanalley/marketplace-backend/pkg/errors"
)

// fakeClock fires immediately and records every requested wait.
type fakeClock struct {
	waits []time.Duration
	block bool
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.waits = append(c.waits, d)
	ch := make(chan time.Time, 1)
	if !c.block {
		ch <- time.Time{}
	}
	return ch
}

type scriptedFinder struct {
	calls   int
	results []findResult
}

type findResult struct {
	purchase *models.Purchase
	err      error
}

func (f *scriptedFinder) FindByCheckoutSessionID(context.Context, string) (*models.Purchase, error) {
	f.calls++
	if len(f.results) == 0 {
		return nil, nil
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r.purchase, r.err
}

var policy = Policy{Attempts: 5, Interval: time.Second}

func TestVerifyConfirmsFromStore(t *testing.T) {
	ctx := context.Background()
	repo := purchases.NewRepository(dbtest.Open(t))
	buyer := uuid.New()
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	_, err := repo.CreateIfAbsent(ctx, &models.Purchase{
		ID:                uuid.New(),
		BuyerID:           buyer,
		ArtworkID:         uuid.New(),
		ArtistID:          uuid.New(),
		CheckoutSessionID: "cs_ready",
		AmountMinor:       4599,
		Currency:          "usd",
		Status:            enums.PurchaseStatusCompleted,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	require.NoError(t, err)

	clock := &fakeClock{}
	result, err := NewPoller(repo, policy, WithClock(clock)).Verify(ctx, "cs_ready", buyer)
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, result.Status)
	require.Equal(t, 1, result.Attempts)
	require.Equal(t, int64(4599), result.Purchase.AmountMinor)
	require.Empty(t, clock.waits)
}

func TestVerifyConfirmsAfterRetries(t *testing.T) {
	buyer := uuid.New()
	finder := &scriptedFinder{results: []findResult{
		{},
		{err: errors.New("connection reset")},
		{purchase: &models.Purchase{BuyerID: buyer, Status: enums.PurchaseStatusCompleted}},
	}}
	clock := &fakeClock{}

	result, err := NewPoller(finder, policy, WithClock(clock)).Verify(context.Background(), "cs_slow", buyer)
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, result.Status)
	require.Equal(t, 3, result.Attempts)
	require.Equal(t, []time.Duration{time.Second, time.Second}, clock.waits)
}

func TestVerifyReportsDelayedAfterBudget(t *testing.T) {
	finder := &scriptedFinder{}
	clock := &fakeClock{}

	result, err := NewPoller(finder, policy, WithClock(clock)).Verify(context.Background(), "cs_late", uuid.New())
	require.NoError(t, err)
	require.Equal(t, StatusDelayed, result.Status)
	require.Equal(t, DelayedMessage, result.Message)
	require.Nil(t, result.Purchase)
	require.Equal(t, 5, finder.calls)
	require.Len(t, clock.waits, 4)
}

func TestVerifyStorageErrorsEndDelayed(t *testing.T) {
	boom := errors.New("db down")
	finder := &scriptedFinder{results: []findResult{{err: boom}, {err: boom}}}

	result, err := NewPoller(finder, Policy{Attempts: 2, Interval: time.Millisecond}, WithClock(&fakeClock{})).
		Verify(context.Background(), "cs_err", uuid.New())
	require.NoError(t, err)
	require.Equal(t, StatusDelayed, result.Status)
	require.Equal(t, 2, finder.calls)
}

func TestVerifyRejectsOtherBuyer(t *testing.T) {
	finder := &scriptedFinder{results: []findResult{{purchase: &models.Purchase{BuyerID: uuid.New()}}}}

	_, err := NewPoller(finder, policy, WithClock(&fakeClock{})).Verify(context.Background(), "cs_x", uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestVerifyStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	finder := &scriptedFinder{}
	clock := &fakeClock{block: true}
	cancel()

	_, err := NewPoller(finder, policy, WithClock(clock)).Verify(ctx, "cs_gone", uuid.New())
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, finder.calls)
}

func TestVerifyValidatesInput(t *testing.T) {
	p := NewPoller(&scriptedFinder{}, Policy{})
	_, err := p.Verify(context.Background(), "cs", uuid.Nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
	_, err = p.Verify(context.Background(), "  ", uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.Equal(t, Policy{Attempts: 5, Interval: time.Second}, p.policy)
}
