package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/axomx/reward-ledger/internal/app/domain/ledger"
	"github.com/axomx/reward-ledger/internal/app/storage"
)

// --- ProductStore -----------------------------------------------------------

const subscriptionColumns = `id, profile_id, strategy_id, execution_mode, allocated_capital, leverage, max_drawdown,
	current_pnl, status, rates_version, tx_id, created_at`

const purchaseColumns = `id, profile_id, amount, payout, status, tx_id, created_at, claimed_at`

const insurancePoolColumns = `balance, total_premiums, total_funded, total_paid, updated_at`

func (r *repo) CreateStrategySubscription(ctx context.Context, sub ledger.StrategySubscription) (ledger.StrategySubscription, error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	_, err := r.q.NamedExecContext(ctx, `
		INSERT INTO strategy_subscriptions (`+subscriptionColumns+`)
		VALUES (:id, :profile_id, :strategy_id, :execution_mode, :allocated_capital, :leverage, :max_drawdown,
			:current_pnl, :status, :rates_version, :tx_id, :created_at)
	`, sub)
	if err != nil {
		return ledger.StrategySubscription{}, mapErr(err, "create strategy subscription")
	}
	return sub, nil
}

func (r *repo) ListStrategySubscriptions(ctx context.Context, profileID string) ([]ledger.StrategySubscription, error) {
	var out []ledger.StrategySubscription
	err := r.q.SelectContext(ctx, &out, `
		SELECT `+subscriptionColumns+` FROM strategy_subscriptions
		WHERE profile_id = $1
		ORDER BY created_at, id
	`, profileID)
	return out, mapErr(err, "list strategy subscriptions")
}

func (r *repo) StrategyAUM(ctx context.Context) (map[string]decimal.Decimal, error) {
	var rows []struct {
		StrategyID string          `db:"strategy_id"`
		AUM        decimal.Decimal `db:"aum"`
	}
	err := r.q.SelectContext(ctx, &rows, `
		SELECT strategy_id, SUM(allocated_capital) AS aum FROM strategy_subscriptions
		WHERE status = $1
		GROUP BY strategy_id
	`, ledger.SubscriptionActive)
	if err != nil {
		return nil, mapErr(err, "strategy aum")
	}
	out := make(map[string]decimal.Decimal, len(rows))
	for _, row := range rows {
		out[row.StrategyID] = row.AUM
	}
	return out, nil
}

func (r *repo) CreateInsurancePurchase(ctx context.Context, p ledger.InsurancePurchase) (ledger.InsurancePurchase, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := r.q.NamedExecContext(ctx, `
		INSERT INTO insurance_purchases (`+purchaseColumns+`)
		VALUES (:id, :profile_id, :amount, :payout, :status, :tx_id, :created_at, :claimed_at)
	`, p)
	if err != nil {
		return ledger.InsurancePurchase{}, mapErr(err, "create insurance purchase")
	}
	return p, nil
}

func (r *repo) GetInsurancePurchase(ctx context.Context, id string) (ledger.InsurancePurchase, error) {
	var out ledger.InsurancePurchase
	err := r.q.GetContext(ctx, &out, `SELECT `+purchaseColumns+` FROM insurance_purchases WHERE id = $1`, id)
	return out, mapErr(err, "insurance purchase "+id)
}

func (r *repo) ListInsurancePurchases(ctx context.Context, profileID string) ([]ledger.InsurancePurchase, error) {
	var out []ledger.InsurancePurchase
	err := r.q.SelectContext(ctx, &out, `
		SELECT `+purchaseColumns+` FROM insurance_purchases
		WHERE profile_id = $1
		ORDER BY created_at, id
	`, profileID)
	return out, mapErr(err, "list insurance purchases")
}

func (r *repo) CountInsurancePurchases(ctx context.Context) (int, error) {
	var n int
	err := r.q.GetContext(ctx, &n, `SELECT COUNT(*) FROM insurance_purchases`)
	return n, mapErr(err, "count insurance purchases")
}

func (r *repo) ClaimInsurancePurchase(ctx context.Context, id string, payout decimal.Decimal, at time.Time) (ledger.InsurancePurchase, error) {
	var out ledger.InsurancePurchase
	err := r.q.GetContext(ctx, &out, `
		UPDATE insurance_purchases
		SET status = $2, payout = $3, claimed_at = $4
		WHERE id = $1 AND status = $5
		RETURNING `+purchaseColumns,
		id, ledger.InsuranceClaimed, payout, at.UTC(), ledger.InsuranceActive)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.GetInsurancePurchase(ctx, id); getErr != nil {
			return ledger.InsurancePurchase{}, getErr
		}
		return ledger.InsurancePurchase{}, fmt.Errorf("insurance purchase %s: %w", id, storage.ErrConflict)
	}
	if err != nil {
		return ledger.InsurancePurchase{}, mapErr(err, "claim insurance purchase "+id)
	}
	return out, nil
}

func (r *repo) GetInsurancePool(ctx context.Context) (ledger.InsurancePool, error) {
	var out ledger.InsurancePool
	err := r.q.GetContext(ctx, &out, `SELECT `+insurancePoolColumns+` FROM insurance_pool WHERE id = 1`)
	return out, mapErr(err, "insurance pool")
}

func (r *repo) AdjustInsurancePool(ctx context.Context, delta storage.InsuranceDelta) (ledger.InsurancePool, error) {
	var out ledger.InsurancePool
	err := r.q.GetContext(ctx, &out, `
		UPDATE insurance_pool
		SET balance = balance + $1 + $2 - $3,
			total_premiums = total_premiums + $1,
			total_funded = total_funded + $2,
			total_paid = total_paid + $3,
			updated_at = $4
		WHERE id = 1 AND balance + $1 + $2 - $3 >= 0
		RETURNING `+insurancePoolColumns,
		delta.Premiums, delta.Funded, delta.Paid, time.Now().UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.InsurancePool{}, fmt.Errorf("insurance pool cannot cover %s: %w", delta.Paid, storage.ErrConflict)
	}
	return out, mapErr(err, "adjust insurance pool")
}

// --- revenue ----------------------------------------------------------------

const allocationColumns = `id, revenue, node_pool, buyback, insurance, treasury, operations, created_at`

func (r *repo) CreateRevenueAllocation(ctx context.Context, a ledger.RevenueAllocation) (ledger.RevenueAllocation, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := r.q.NamedExecContext(ctx, `
		INSERT INTO revenue_allocations (`+allocationColumns+`)
		VALUES (:id, :revenue, :node_pool, :buyback, :insurance, :treasury, :operations, :created_at)
	`, a)
	if err != nil {
		return ledger.RevenueAllocation{}, mapErr(err, "create revenue allocation")
	}
	return a, nil
}

func (r *repo) ListRevenueAllocations(ctx context.Context, limit int) ([]ledger.RevenueAllocation, error) {
	var out []ledger.RevenueAllocation
	err := r.q.SelectContext(ctx, &out, `
		SELECT `+allocationColumns+` FROM revenue_allocations
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	return out, mapErr(err, "list revenue allocations")
}

// --- vault totals -----------------------------------------------------------

func (r *repo) VaultTotals(ctx context.Context) (storage.VaultTotals, error) {
	totals := storage.VaultTotals{Locked: decimal.Zero, ByPlan: map[string]decimal.Decimal{}}
	var rows []struct {
		PlanType  string          `db:"plan_type"`
		Positions int             `db:"positions"`
		Locked    decimal.Decimal `db:"locked"`
	}
	err := r.q.SelectContext(ctx, &rows, `
		SELECT plan_type, COUNT(*) AS positions, SUM(principal) AS locked FROM vault_positions
		WHERE status = $1
		GROUP BY plan_type
	`, ledger.PositionActive)
	if err != nil {
		return storage.VaultTotals{}, mapErr(err, "vault totals")
	}
	for _, row := range rows {
		totals.ByPlan[row.PlanType] = row.Locked
		totals.Locked = totals.Locked.Add(row.Locked)
		totals.ActivePositions += row.Positions
	}
	err = r.q.GetContext(ctx, &totals.Depositors, `
		SELECT COUNT(DISTINCT profile_id) FROM vault_positions WHERE status = $1
	`, ledger.PositionActive)
	if err != nil {
		return storage.VaultTotals{}, mapErr(err, "vault depositors")
	}
	return totals, nil
}
