package rewards_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axomx/reward-ledger/internal/app/domain/ledger"
	"github.com/axomx/reward-ledger/internal/app/rates"
	ledgersvc "github.com/axomx/reward-ledger/internal/app/services/ledger"
	"github.com/axomx/reward-ledger/internal/app/services/rewards"
	"github.com/axomx/reward-ledger/internal/app/storage/memory"
	"github.com/axomx/reward-ledger/pkg/logger"
	"github.com/axomx/reward-ledger/pkg/testutil"
)

var epoch = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

// seed buys two MAX nodes and one MINI node, all at full price.
func seed(t *testing.T) (*memory.Store, *rewards.Service) {
	t.Helper()
	store := memory.New()
	clock := testutil.NewManualClock(epoch)
	ledgerSvc := ledgersvc.New(store, rates.Default(), logger.Discard(), ledgersvc.WithClock(clock.Now))
	ctx := context.Background()

	buys := map[int]rates.NodeType{1: rates.NodeMax, 2: rates.NodeMax, 3: rates.NodeMini}
	for n, nt := range buys {
		_, err := ledgerSvc.AuthenticateWallet(ctx, testutil.Wallet(n), "")
		require.NoError(t, err)
		_, err = ledgerSvc.PurchaseNode(ctx, ledgersvc.PurchaseRequest{Address: testutil.Wallet(n), NodeType: nt})
		require.NoError(t, err)
	}
	return store, rewards.New(store, rates.Default(), logger.Discard())
}

func TestSettleFixedYield(t *testing.T) {
	store, svc := seed(t)
	ctx := context.Background()

	report, err := svc.SettleFixedYield(ctx, epoch.AddDate(0, 0, 3).Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, report.Memberships)
	assert.Equal(t, 9, report.Records)
	// MAX: 10000 × 0.9% = 90/day, MINI: 1000 × 0.5% = 5/day.
	assert.True(t, report.Amount.Equal(decimal.NewFromInt(3*(90+90+5))), report.Amount.String())

	again, err := svc.SettleFixedYield(ctx, epoch.AddDate(0, 0, 3).Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, again.Records)

	p, err := store.GetProfileByWallet(ctx, testutil.Wallet(3))
	require.NoError(t, err)
	earnings, err := store.ListNodeEarnings(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, earnings, 3)
	assert.Equal(t, ledger.RewardFixedYield, earnings[0].Type)
	assert.True(t, earnings[0].Amount.Equal(decimal.NewFromInt(5)))
}

func TestSettleFixedYield_CapsAtTerm(t *testing.T) {
	_, svc := seed(t)
	report, err := svc.SettleFixedYield(context.Background(), epoch.AddDate(1, 0, 0))
	require.NoError(t, err)
	// MAX runs 120 days, MINI 90.
	assert.Equal(t, 120+120+90, report.Records)
}

func TestFundAndDistributePool(t *testing.T) {
	store, svc := seed(t)
	ctx := context.Background()

	_, err := svc.FundPool(ctx, decimal.Zero)
	assert.ErrorIs(t, err, rewards.ErrInvalidAmount)

	funded, err := svc.FundPool(ctx, decimal.NewFromInt(1000))
	require.NoError(t, err)
	assert.True(t, funded.Pool.Balance.Equal(decimal.NewFromInt(500)))

	report, err := svc.DistributePool(ctx, "2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Recipients, "only pool-eligible MAX nodes share the pool")
	assert.True(t, report.Distributed.Equal(decimal.NewFromInt(500)), report.Distributed.String())
	assert.True(t, report.Pool.Balance.IsZero())

	_, err = svc.FundPool(ctx, decimal.NewFromInt(1000))
	require.NoError(t, err)
	repeat, err := svc.DistributePool(ctx, "2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, 0, repeat.Recipients)
	assert.True(t, repeat.Pool.Balance.Equal(decimal.NewFromInt(500)))

	p, err := store.GetProfileByWallet(ctx, testutil.Wallet(1))
	require.NoError(t, err)
	earnings, err := store.ListNodeEarnings(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, earnings, 1)
	assert.Equal(t, ledger.RewardPoolDividend, earnings[0].Type)
	assert.True(t, earnings[0].Amount.Equal(decimal.NewFromInt(250)))

	_, err = svc.DistributePool(ctx, "")
	assert.Error(t, err)
}

func TestFundPool_BooksEveryRevenueShare(t *testing.T) {
	store, svc := seed(t)
	ctx := context.Background()

	report, err := svc.FundPool(ctx, decimal.NewFromInt(1000))
	require.NoError(t, err)
	a := report.Allocation
	assert.True(t, a.NodePool.Equal(decimal.NewFromInt(500)))
	assert.True(t, a.Buyback.Equal(decimal.NewFromInt(200)))
	assert.True(t, a.Insurance.Equal(decimal.NewFromInt(100)))
	assert.True(t, a.Treasury.Equal(decimal.NewFromInt(100)))
	assert.True(t, a.Operations.Equal(decimal.NewFromInt(100)))
	assert.True(t, report.Insurance.Balance.Equal(decimal.NewFromInt(100)))
	assert.True(t, report.Insurance.TotalFunded.Equal(decimal.NewFromInt(100)))

	_, err = svc.FundPool(ctx, decimal.NewFromInt(500))
	require.NoError(t, err)
	insurance, err := store.GetInsurancePool(ctx)
	require.NoError(t, err)
	assert.True(t, insurance.Balance.Equal(decimal.NewFromInt(150)))

	summary, err := svc.Revenue(ctx)
	require.NoError(t, err)
	require.Len(t, summary.Recent, 2)
	assert.True(t, summary.Recent[0].Revenue.Equal(decimal.NewFromInt(500)), "newest first")
	assert.True(t, summary.Totals.Revenue.Equal(decimal.NewFromInt(1500)))
	assert.True(t, summary.Totals.Buyback.Equal(decimal.NewFromInt(300)))
}

func TestDistributePool_EmptyPool(t *testing.T) {
	_, svc := seed(t)
	report, err := svc.DistributePool(context.Background(), "2025-03-02")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Recipients)
	assert.True(t, report.Distributed.IsZero())
}

func TestScheduler(t *testing.T) {
	_, svc := seed(t)

	_, err := rewards.NewScheduler(svc, rewards.SchedulerConfig{YieldSchedule: "every tuesday"}, logger.Discard())
	assert.Error(t, err)

	sched, err := rewards.NewScheduler(svc, rewards.DefaultSchedulerConfig(), logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, "rewards-scheduler", sched.Name())
	assert.Len(t, sched.CronEntries(), 2)

	sched.SetNow(func() time.Time { return epoch.AddDate(0, 0, 2) })
	ctx := context.Background()
	require.NoError(t, sched.Start(ctx))
	require.NoError(t, sched.Start(ctx))

	sched.SettleYield()
	sched.Distribute()

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, sched.Stop(stopCtx))
	require.NoError(t, sched.Stop(stopCtx))
}
