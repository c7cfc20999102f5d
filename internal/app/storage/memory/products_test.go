package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axomx/reward-ledger/internal/app/domain/ledger"
	"github.com/axomx/reward-ledger/internal/app/storage"
)

func TestClaimInsurancePurchaseOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := seedProfile(t, s, "0xaaa", "A")

	purchase, err := s.CreateInsurancePurchase(ctx, ledger.InsurancePurchase{
		ProfileID: p.ID, Amount: decimal.NewFromInt(200), Payout: decimal.Zero, Status: ledger.InsuranceActive,
	})
	require.NoError(t, err)

	claimed, err := s.ClaimInsurancePurchase(ctx, purchase.ID, decimal.NewFromInt(80), time.Now())
	require.NoError(t, err)
	assert.Equal(t, ledger.InsuranceClaimed, claimed.Status)
	require.NotNil(t, claimed.ClaimedAt)

	_, err = s.ClaimInsurancePurchase(ctx, purchase.ID, decimal.NewFromInt(80), time.Now())
	assert.True(t, errors.Is(err, storage.ErrConflict))
	_, err = s.ClaimInsurancePurchase(ctx, "nope", decimal.NewFromInt(1), time.Now())
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	n, err := s.CountInsurancePurchases(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAdjustInsurancePoolRejectsOverdraw(t *testing.T) {
	s := New()
	ctx := context.Background()

	pool, err := s.AdjustInsurancePool(ctx, storage.InsuranceDelta{
		Premiums: decimal.NewFromInt(100), Funded: decimal.NewFromInt(50), Paid: decimal.Zero,
	})
	require.NoError(t, err)
	assert.True(t, pool.Balance.Equal(decimal.NewFromInt(150)))

	_, err = s.AdjustInsurancePool(ctx, storage.InsuranceDelta{Premiums: decimal.Zero, Funded: decimal.Zero, Paid: decimal.NewFromInt(151)})
	assert.True(t, errors.Is(err, storage.ErrConflict))

	got, err := s.GetInsurancePool(ctx)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(150)), "a rejected payout leaves the pool untouched")
	assert.True(t, got.TotalPaid.IsZero())
}

func TestVaultTotalsCountsActivePositions(t *testing.T) {
	s := New()
	ctx := context.Background()
	a := seedProfile(t, s, "0xaaa", "A")
	b := seedProfile(t, s, "0xbbb", "B")
	now := time.Now().UTC()

	var closeID string
	for i, row := range []struct {
		profile string
		plan    string
		amount  int64
	}{
		{a.ID, "30_DAYS", 1000},
		{a.ID, "7_DAYS", 200},
		{b.ID, "30_DAYS", 500},
	} {
		pos, err := s.CreatePosition(ctx, ledger.VaultPosition{
			ProfileID: row.profile, PlanType: row.plan, Principal: decimal.NewFromInt(row.amount),
			StartDate: now, EndDate: now.AddDate(0, 0, 30), Status: ledger.PositionActive,
		})
		require.NoError(t, err)
		if i == 2 {
			closeID = pos.ID
		}
	}
	_, err := s.ClosePosition(ctx, closeID, ledger.PositionWithdrawn, now)
	require.NoError(t, err)

	totals, err := s.VaultTotals(ctx)
	require.NoError(t, err)
	assert.True(t, totals.Locked.Equal(decimal.NewFromInt(1200)), totals.Locked.String())
	assert.Equal(t, 2, totals.ActivePositions)
	assert.Equal(t, 1, totals.Depositors)
	assert.True(t, totals.ByPlan["30_DAYS"].Equal(decimal.NewFromInt(1000)))
}

func TestStrategyAUMIgnoresStopped(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := seedProfile(t, s, "0xaaa", "A")

	for _, sub := range []ledger.StrategySubscription{
		{ProfileID: p.ID, StrategyID: "btc-trend", AllocatedCapital: decimal.NewFromInt(100), Status: ledger.SubscriptionActive},
		{ProfileID: p.ID, StrategyID: "btc-trend", AllocatedCapital: decimal.NewFromInt(300), Status: ledger.SubscriptionActive},
		{ProfileID: p.ID, StrategyID: "eth-grid", AllocatedCapital: decimal.NewFromInt(70), Status: ledger.SubscriptionStopped},
	} {
		_, err := s.CreateStrategySubscription(ctx, sub)
		require.NoError(t, err)
	}

	aum, err := s.StrategyAUM(ctx)
	require.NoError(t, err)
	assert.True(t, aum["btc-trend"].Equal(decimal.NewFromInt(400)))
	_, ok := aum["eth-grid"]
	assert.False(t, ok)

	subs, err := s.ListStrategySubscriptions(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, subs, 3)
}

func TestRevenueAllocationsNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		_, err := s.CreateRevenueAllocation(ctx, ledger.RevenueAllocation{Revenue: decimal.NewFromInt(int64(i))})
		require.NoError(t, err)
	}
	out, err := s.ListRevenueAllocations(ctx, 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, out[0].Revenue.Equal(decimal.NewFromInt(3)))
}
