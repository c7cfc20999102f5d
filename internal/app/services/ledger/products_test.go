package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/axomx/reward-ledger/internal/app/domain/ledger"
	"github.com/axomx/reward-ledger/internal/app/rates"
	"github.com/axomx/reward-ledger/internal/app/storage/memory"
	"github.com/axomx/reward-ledger/pkg/logger"
	"github.com/axomx/reward-ledger/pkg/testutil"
)

func TestSubscribeStrategy(t *testing.T) {
	f := newFixture(t)
	f.auth(t, 1, "")
	ctx := context.Background()
	wallet := testutil.Wallet(1)

	_, err := f.svc.SubscribeStrategy(ctx, StrategyRequest{Address: wallet, StrategyID: "btc-trend", Capital: dec("99")})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.SubscribeStrategy(ctx, StrategyRequest{Address: wallet, StrategyID: "doge-moon", Capital: dec("1000")})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.SubscribeStrategy(ctx, StrategyRequest{Address: wallet, StrategyID: "btc-trend", Capital: dec("100"), ExecutionMode: "MANUAL"})
	assert.ErrorIs(t, err, ErrValidation)

	sub, err := f.svc.SubscribeStrategy(ctx, StrategyRequest{Address: wallet, StrategyID: "btc-trend", Capital: dec("100")})
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionAuto, sub.ExecutionMode)
	assert.Equal(t, domain.SubscriptionActive, sub.Status)
	assert.True(t, sub.AllocatedCapital.Equal(dec("100")))

	_, err = f.svc.SubscribeStrategy(ctx, StrategyRequest{
		Address: wallet, StrategyID: "eth-grid", Capital: dec("50"), ExecutionMode: domain.ExecutionSignal,
	})
	require.NoError(t, err)

	subs, err := f.svc.ListStrategySubscriptions(ctx, wallet)
	require.NoError(t, err)
	assert.Len(t, subs, 2)

	txs, err := f.svc.ListTransactions(ctx, wallet, domain.TxStrategySubscription)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Contains(t, []string{subs[0].ID, subs[1].ID}, txs[0].ReferenceID)
}

func TestSubscribeStrategy_VipOnly(t *testing.T) {
	f := newFixture(t)
	f.auth(t, 1, "")
	ctx := context.Background()
	req := StrategyRequest{Address: testutil.Wallet(1), StrategyID: "sol-momentum", Capital: dec("500")}

	_, err := f.svc.SubscribeStrategy(ctx, req)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.SubscribeVip(ctx, testutil.Wallet(1), "monthly", "")
	require.NoError(t, err)
	_, err = f.svc.SubscribeStrategy(ctx, req)
	require.NoError(t, err)

	f.clock.AdvanceDays(40)
	_, err = f.svc.SubscribeStrategy(ctx, req)
	assert.ErrorIs(t, err, ErrValidation, "expired vip no longer qualifies")
}

func TestGetStrategyOverview(t *testing.T) {
	f := newFixture(t)
	f.auth(t, 1, "")
	f.auth(t, 2, "")
	ctx := context.Background()

	for _, req := range []StrategyRequest{
		{Address: testutil.Wallet(1), StrategyID: "btc-trend", Capital: dec("100")},
		{Address: testutil.Wallet(2), StrategyID: "btc-trend", Capital: dec("300")},
		{Address: testutil.Wallet(2), StrategyID: "eth-grid", Capital: dec("75")},
	} {
		_, err := f.svc.SubscribeStrategy(ctx, req)
		require.NoError(t, err)
	}

	overview, err := f.svc.GetStrategyOverview(ctx)
	require.NoError(t, err)
	require.Len(t, overview.Strategies, len(rates.Default().Strategies))
	assert.Equal(t, "btc-trend", overview.Strategies[0].ID)
	assert.True(t, overview.Strategies[0].TotalAUM.Equal(dec("400")))
	assert.True(t, overview.TotalAUM.Equal(dec("475")), overview.TotalAUM.String())
	for _, v := range overview.Strategies {
		if v.ID == "sol-momentum" {
			assert.True(t, v.TotalAUM.IsZero())
		}
	}
	assert.True(t, overview.AvgWinRate.IsPositive())
}

func TestPurchaseHedge(t *testing.T) {
	f := newFixture(t)
	f.auth(t, 1, "")
	ctx := context.Background()
	wallet := testutil.Wallet(1)

	_, err := f.svc.PurchaseHedge(ctx, HedgeRequest{Address: wallet, Amount: dec("99.99")})
	assert.ErrorIs(t, err, ErrValidation)

	p, err := f.svc.PurchaseHedge(ctx, HedgeRequest{Address: wallet, Amount: dec("100"), TxHash: "0xAB01"})
	require.NoError(t, err)
	assert.Equal(t, domain.InsuranceActive, p.Status)
	_, err = f.svc.PurchaseHedge(ctx, HedgeRequest{Address: wallet, Amount: dec("250")})
	require.NoError(t, err)

	_, err = f.svc.PurchaseHedge(ctx, HedgeRequest{Address: wallet, Amount: dec("100"), TxHash: "0xab01"})
	assert.ErrorIs(t, err, ErrAlreadyProcessed)

	purchases, err := f.svc.ListHedgePurchases(ctx, wallet)
	require.NoError(t, err)
	assert.Len(t, purchases, 2)

	pool, err := f.svc.GetInsurancePool(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pool.TotalPolicies)
	assert.True(t, pool.PoolSize.Equal(dec("350")), pool.PoolSize.String())
	assert.True(t, pool.TotalPremiums.Equal(dec("350")))
	assert.True(t, pool.PayoutRate.IsZero())

	txs, err := f.svc.ListTransactions(ctx, wallet, domain.TxHedgePurchase)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestPayHedgeClaim(t *testing.T) {
	f := newFixture(t)
	f.auth(t, 1, "")
	ctx := context.Background()
	wallet := testutil.Wallet(1)

	p, err := f.svc.PurchaseHedge(ctx, HedgeRequest{Address: wallet, Amount: dec("300")})
	require.NoError(t, err)

	_, err = f.svc.PayHedgeClaim(ctx, p.ID, dec("301"))
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.PayHedgeClaim(ctx, p.ID, dec("0"))
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.PayHedgeClaim(ctx, "missing", dec("1"))
	assert.ErrorIs(t, err, ErrNotFound)

	claimed, err := f.svc.PayHedgeClaim(ctx, p.ID, dec("100"))
	require.NoError(t, err)
	assert.Equal(t, domain.InsuranceClaimed, claimed.Status)
	assert.True(t, claimed.Payout.Equal(dec("100")))
	require.NotNil(t, claimed.ClaimedAt)

	_, err = f.svc.PayHedgeClaim(ctx, p.ID, dec("100"))
	assert.ErrorIs(t, err, ErrAlreadyProcessed)

	pool, err := f.svc.GetInsurancePool(ctx)
	require.NoError(t, err)
	assert.True(t, pool.PoolSize.Equal(dec("200")), pool.PoolSize.String())
	assert.True(t, pool.TotalPaid.Equal(dec("100")))
	assert.True(t, pool.PayoutRate.Equal(dec("0.333333")), pool.PayoutRate.String())

	payouts, err := f.svc.ListTransactions(ctx, wallet, domain.TxHedgePayout)
	require.NoError(t, err)
	require.Len(t, payouts, 1)
	assert.Equal(t, domain.TxPending, payouts[0].Status)
	assert.Equal(t, p.ID, payouts[0].ReferenceID)
}

func TestGetVaultOverview(t *testing.T) {
	f := newFixture(t)
	f.auth(t, 1, "")
	f.auth(t, 2, "")
	ctx := context.Background()

	overview, err := f.svc.GetVaultOverview(ctx)
	require.NoError(t, err)
	assert.True(t, overview.TVL.IsZero())
	assert.Zero(t, overview.Depositors)

	f.deposit(t, 1, "30_DAYS", "1000")
	f.deposit(t, 1, "7_DAYS", "200")
	early := f.deposit(t, 2, "30_DAYS", "500")

	overview, err = f.svc.GetVaultOverview(ctx)
	require.NoError(t, err)
	assert.True(t, overview.TVL.Equal(dec("1700")), overview.TVL.String())
	assert.Equal(t, 3, overview.ActivePositions)
	assert.Equal(t, 2, overview.Depositors)
	assert.True(t, overview.ByPlan["30_DAYS"].Equal(dec("1500")))

	_, err = f.svc.WithdrawFromVault(ctx, testutil.Wallet(2), early.ID)
	require.NoError(t, err)

	overview, err = f.svc.GetVaultOverview(ctx)
	require.NoError(t, err)
	assert.True(t, overview.TVL.Equal(dec("1200")), overview.TVL.String())
	assert.Equal(t, 2, overview.ActivePositions)
	assert.Equal(t, 1, overview.Depositors)
}

func TestPayAndPurchaseHedge_PartialFailureIsReplayed(t *testing.T) {
	gw := &testutil.StubGateway{}
	journal := &recordingJournal{}
	store := &failingStore{Store: memory.New()}
	clock := testutil.NewManualClock(epoch)
	svc := New(store, rates.Default(), logger.Discard(),
		WithClock(clock.Now), WithPaymentGateway(gw), WithJournal(journal))
	ctx := context.Background()

	_, err := svc.AuthenticateWallet(ctx, testutil.Wallet(1), "")
	require.NoError(t, err)

	store.setFailure(errors.New("database unavailable"))
	_, err = svc.PayAndPurchaseHedge(ctx, HedgeRequest{Address: testutil.Wallet(1), Amount: dec("150")})
	var partial *PartialFailureError
	require.ErrorAs(t, err, &partial)
	require.Len(t, journal.entries, 1)
	assert.Equal(t, OpHedge, journal.entries[0].Operation)

	_, err = svc.PayAndSubscribeStrategy(ctx, StrategyRequest{
		Address: testutil.Wallet(1), StrategyID: "eth-grid", Capital: dec("80"), ExecutionMode: domain.ExecutionSignal,
	})
	require.ErrorAs(t, err, &partial)
	require.Len(t, journal.entries, 2)
	assert.Equal(t, OpStrategy, journal.entries[1].Operation)
	assert.Equal(t, "eth-grid", journal.entries[1].StrategyID)

	store.setFailure(nil)
	for _, entry := range journal.entries {
		require.NoError(t, svc.Replay(ctx, entry))
		require.NoError(t, svc.Replay(ctx, entry), "replaying twice is harmless")
	}

	purchases, err := svc.ListHedgePurchases(ctx, testutil.Wallet(1))
	require.NoError(t, err)
	assert.Len(t, purchases, 1)
	subs, err := svc.ListStrategySubscriptions(ctx, testutil.Wallet(1))
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, domain.ExecutionSignal, subs[0].ExecutionMode)
	require.Len(t, gw.Requests(), 2)
	assert.Equal(t, OpHedge, gw.Requests()[0].Reference)
}
