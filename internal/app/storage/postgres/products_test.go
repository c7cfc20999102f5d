package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axomx/reward-ledger/internal/app/domain/ledger"
	"github.com/axomx/reward-ledger/internal/app/storage"
)

var purchaseCols = []string{"id", "profile_id", "amount", "payout", "status", "tx_id", "created_at", "claimed_at"}

var insurancePoolCols = []string{"balance", "total_premiums", "total_funded", "total_paid", "updated_at"}

func TestClaimInsurancePurchaseReportsConflict(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("UPDATE insurance_purchases").
		WithArgs("hp-1", string(ledger.InsuranceClaimed), sqlmock.AnyArg(), sqlmock.AnyArg(), string(ledger.InsuranceActive)).
		WillReturnRows(sqlmock.NewRows(purchaseCols))
	mock.ExpectQuery("SELECT .* FROM insurance_purchases WHERE id").WithArgs("hp-1").WillReturnRows(
		sqlmock.NewRows(purchaseCols).AddRow("hp-1", "p-1", "200", "50", "CLAIMED", "tx-1", now, now),
	)

	_, err := store.ClaimInsurancePurchase(context.Background(), "hp-1", decimal.NewFromInt(50), now)
	assert.True(t, errors.Is(err, storage.ErrConflict), "got %v", err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimInsurancePurchaseNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("UPDATE insurance_purchases").WillReturnRows(sqlmock.NewRows(purchaseCols))
	mock.ExpectQuery("SELECT .* FROM insurance_purchases WHERE id").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := store.ClaimInsurancePurchase(context.Background(), "missing", decimal.NewFromInt(1), time.Now())
	assert.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustInsurancePoolRejectsOverdraw(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("UPDATE insurance_pool").WillReturnRows(sqlmock.NewRows(insurancePoolCols))

	_, err := store.AdjustInsurancePool(context.Background(), storage.InsuranceDelta{
		Premiums: decimal.Zero, Funded: decimal.Zero, Paid: decimal.NewFromInt(10),
	})
	assert.True(t, errors.Is(err, storage.ErrConflict), "got %v", err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustInsurancePoolReturnsBalance(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectQuery("UPDATE insurance_pool").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(insurancePoolCols).AddRow("300", "200", "100", "0", now))

	pool, err := store.AdjustInsurancePool(context.Background(), storage.InsuranceDelta{
		Premiums: decimal.NewFromInt(200), Funded: decimal.NewFromInt(100), Paid: decimal.Zero,
	})
	require.NoError(t, err)
	assert.True(t, pool.Balance.Equal(decimal.NewFromInt(300)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStrategyAUMGroupsActiveSubscriptions(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT strategy_id, .* FROM strategy_subscriptions").
		WithArgs(string(ledger.SubscriptionActive)).
		WillReturnRows(sqlmock.NewRows([]string{"strategy_id", "aum"}).
			AddRow("btc-trend", "400").
			AddRow("eth-grid", "75"))

	aum, err := store.StrategyAUM(context.Background())
	require.NoError(t, err)
	assert.Len(t, aum, 2)
	assert.True(t, aum["btc-trend"].Equal(decimal.NewFromInt(400)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreIntegrationProducts(t *testing.T) {
	store := openIntegrationStore(t)
	ctx := context.Background()

	suffix := time.Now().Format("150405.000000000")

	p, err := store.CreateProfile(ctx, ledger.Profile{WalletAddress: "0xhp" + suffix, ReferralCode: "HP" + suffix})
	require.NoError(t, err)
	txn, err := store.CreateTransaction(ctx, ledger.Transaction{
		ProfileID: p.ID, Type: ledger.TxHedgePurchase, Amount: decimal.NewFromInt(200), Status: ledger.TxConfirmed,
	})
	require.NoError(t, err)

	before, err := store.GetInsurancePool(ctx)
	require.NoError(t, err)

	purchase, err := store.CreateInsurancePurchase(ctx, ledger.InsurancePurchase{
		ProfileID: p.ID, Amount: decimal.NewFromInt(200), Payout: decimal.Zero, Status: ledger.InsuranceActive, TxID: txn.ID,
	})
	require.NoError(t, err)
	_, err = store.AdjustInsurancePool(ctx, storage.InsuranceDelta{Premiums: decimal.NewFromInt(200), Funded: decimal.Zero, Paid: decimal.Zero})
	require.NoError(t, err)

	_, err = store.ClaimInsurancePurchase(ctx, purchase.ID, decimal.NewFromInt(50), time.Now())
	require.NoError(t, err)
	_, err = store.ClaimInsurancePurchase(ctx, purchase.ID, decimal.NewFromInt(50), time.Now())
	assert.True(t, errors.Is(err, storage.ErrConflict), "got %v", err)

	after, err := store.AdjustInsurancePool(ctx, storage.InsuranceDelta{Premiums: decimal.Zero, Funded: decimal.Zero, Paid: decimal.NewFromInt(50)})
	require.NoError(t, err)
	assert.True(t, after.Balance.Equal(before.Balance.Add(decimal.NewFromInt(150))), after.Balance.String())

	_, err = store.AdjustInsurancePool(ctx, storage.InsuranceDelta{
		Premiums: decimal.Zero, Funded: decimal.Zero, Paid: after.Balance.Add(decimal.NewFromInt(1)),
	})
	assert.True(t, errors.Is(err, storage.ErrConflict), "got %v", err)
}
