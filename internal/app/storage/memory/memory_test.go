package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axomx/reward-ledger/internal/app/domain/ledger"
	"github.com/axomx/reward-ledger/internal/app/storage"
)

func seedProfile(t *testing.T, s *Store, wallet, code string) ledger.Profile {
	t.Helper()
	p, err := s.CreateProfile(context.Background(), ledger.Profile{WalletAddress: wallet, ReferralCode: code})
	require.NoError(t, err)
	return p
}

func TestProfileUniqueness(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := seedProfile(t, s, "0xABC", "CODE1")
	assert.Equal(t, "0xabc", p.WalletAddress)

	_, err := s.CreateProfile(ctx, ledger.Profile{WalletAddress: "0xabc", ReferralCode: "OTHER"})
	assert.True(t, errors.Is(err, storage.ErrDuplicate))
	_, err = s.CreateProfile(ctx, ledger.Profile{WalletAddress: "0xdef", ReferralCode: "CODE1"})
	assert.True(t, errors.Is(err, storage.ErrDuplicate))

	got, err := s.GetProfileByReferralCode(ctx, "CODE1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = s.GetProfileByWallet(ctx, "0xnope")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := seedProfile(t, s, "0x1", "A")

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(ctx context.Context, tx storage.Repository) error {
		if _, err := tx.AddProfileBalances(ctx, p.ID, storage.BalanceDelta{Deposited: decimal.NewFromInt(100)}); err != nil {
			return err
		}
		if _, err := tx.CreateTransaction(ctx, ledger.Transaction{ProfileID: p.ID, Type: ledger.TxDeposit, Amount: decimal.NewFromInt(100)}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetProfile(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.TotalDeposited.IsZero())
	txs, err := s.ListTransactions(ctx, p.ID, "")
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestClosePositionCompareAndSet(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := seedProfile(t, s, "0x1", "A")
	pos, err := s.CreatePosition(ctx, ledger.VaultPosition{ProfileID: p.ID, Principal: decimal.NewFromInt(100), Status: ledger.PositionActive})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ClosePosition(ctx, pos.ID, ledger.PositionWithdrawn, time.Now())
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	ok, conflicts := 0, 0
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, storage.ErrConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 7, conflicts)
}

func TestDuplicateTxHashAndCommissionKey(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := seedProfile(t, s, "0x1", "A")
	hash := "0xhash"

	_, err := s.CreateTransaction(ctx, ledger.Transaction{ProfileID: p.ID, TxHash: &hash})
	require.NoError(t, err)
	_, err = s.CreateTransaction(ctx, ledger.Transaction{ProfileID: p.ID, TxHash: &hash})
	assert.True(t, errors.Is(err, storage.ErrDuplicate))

	rec := ledger.CommissionRecord{RecipientID: p.ID, SourceTxID: "tx", Amount: decimal.NewFromInt(5)}
	created, err := s.CreateCommission(ctx, rec)
	require.NoError(t, err)
	assert.True(t, created)
	created, err = s.CreateCommission(ctx, rec)
	require.NoError(t, err)
	assert.False(t, created)

	list, err := s.ListCommissions(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestNodePoolCannotGoNegative(t *testing.T) {
	s := New()
	ctx := context.Background()
	pool, err := s.AdjustNodePool(ctx, decimal.NewFromInt(50), decimal.Zero)
	require.NoError(t, err)
	assert.True(t, pool.Balance.Equal(decimal.NewFromInt(50)))

	_, err = s.AdjustNodePool(ctx, decimal.Zero, decimal.NewFromInt(60))
	assert.True(t, errors.Is(err, storage.ErrConflict))

	pool, err = s.AdjustNodePool(ctx, decimal.Zero, decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.True(t, pool.Balance.IsZero())
	assert.True(t, pool.TotalDistributed.Equal(decimal.NewFromInt(50)))
}

func TestMembershipMilestonesOrdered(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := seedProfile(t, s, "0x1", "A")
	m, err := s.CreateMembership(ctx, ledger.NodeMembership{ProfileID: p.ID, Status: ledger.MembershipPendingMilestones}, []ledger.NodeMilestone{
		{Ordinal: 2, Status: ledger.MilestonePending},
		{Ordinal: 1, Status: ledger.MilestonePending},
	})
	require.NoError(t, err)

	ms, err := s.ListMilestones(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, 1, ms[0].Ordinal)

	earning, err := s.ListEarningMemberships(ctx)
	require.NoError(t, err)
	assert.Len(t, earning, 1)

	next := m
	next.Status = ledger.MembershipCancelled
	_, err = s.UpdateMembership(ctx, m, next)
	require.NoError(t, err)
	earning, err = s.ListEarningMemberships(ctx)
	require.NoError(t, err)
	assert.Empty(t, earning)
}

func TestUpdateMembershipCompareAndSet(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := seedProfile(t, s, "0x1", "A")
	m, err := s.CreateMembership(ctx, ledger.NodeMembership{
		ProfileID:        p.ID,
		Status:           ledger.MembershipPendingMilestones,
		TotalMilestones:  2,
		EarningsCapacity: decimal.NewFromFloat(0.5),
	}, nil)
	require.NoError(t, err)

	released := m
	released.Status = ledger.MembershipCompleted
	released.MilestoneStage = 2
	released.PackageReleased = true
	released.EarningsCapacity = decimal.NewFromInt(1)
	got, err := s.UpdateMembership(ctx, m, released)
	require.NoError(t, err)
	assert.True(t, got.PackageReleased)

	// a second writer that read the pre-release row loses
	_, err = s.UpdateMembership(ctx, m, released)
	assert.ErrorIs(t, err, storage.ErrConflict)

	_, err = s.UpdateMembership(ctx, ledger.NodeMembership{ID: "missing"}, ledger.NodeMembership{ID: "missing"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdateMembershipKeepsCapacityMonotonic(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := seedProfile(t, s, "0x1", "A")
	m, err := s.CreateMembership(ctx, ledger.NodeMembership{
		ProfileID:        p.ID,
		Status:           ledger.MembershipActive,
		EarningsCapacity: decimal.NewFromInt(1),
	}, nil)
	require.NoError(t, err)

	next := m
	next.EarningsCapacity = decimal.NewFromFloat(0.5)
	got, err := s.UpdateMembership(ctx, m, next)
	require.NoError(t, err)
	assert.True(t, got.EarningsCapacity.Equal(decimal.NewFromInt(1)))
}

func TestUpdateMilestoneOnlyResolvesPending(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := seedProfile(t, s, "0x1", "A")
	m, err := s.CreateMembership(ctx, ledger.NodeMembership{ProfileID: p.ID, Status: ledger.MembershipPendingMilestones},
		[]ledger.NodeMilestone{{Ordinal: 1, Status: ledger.MilestonePending}})
	require.NoError(t, err)
	ms, err := s.ListMilestones(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, ms, 1)

	now := time.Now().UTC()
	achieved := ms[0]
	achieved.Status = ledger.MilestoneAchieved
	achieved.EvaluatedAt = &now
	_, err = s.UpdateMilestone(ctx, achieved)
	require.NoError(t, err)

	failed := ms[0]
	failed.Status = ledger.MilestoneFailed
	failed.EvaluatedAt = &now
	_, err = s.UpdateMilestone(ctx, failed)
	assert.ErrorIs(t, err, storage.ErrConflict)
}
