package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExecutionMode is how a strategy subscription trades the allocated capital.
type ExecutionMode string

const (
	ExecutionAuto   ExecutionMode = "AUTO"
	ExecutionSignal ExecutionMode = "SIGNAL"
)

// Valid reports whether m is a known execution mode.
func (m ExecutionMode) Valid() bool { return m == ExecutionAuto || m == ExecutionSignal }

// SubscriptionStatus is the lifecycle state of a strategy subscription.
type SubscriptionStatus string

const (
	SubscriptionActive  SubscriptionStatus = "ACTIVE"
	SubscriptionStopped SubscriptionStatus = "STOPPED"
)

// StrategySubscription allocates capital to a strategy from the catalog.
// Strategy terms are snapshotted at subscription.
type StrategySubscription struct {
	ID               string             `db:"id" json:"id"`
	ProfileID        string             `db:"profile_id" json:"profile_id"`
	StrategyID       string             `db:"strategy_id" json:"strategy_id"`
	ExecutionMode    ExecutionMode      `db:"execution_mode" json:"execution_mode"`
	AllocatedCapital decimal.Decimal    `db:"allocated_capital" json:"allocated_capital"`
	Leverage         decimal.Decimal    `db:"leverage" json:"leverage"`
	MaxDrawdown      decimal.Decimal    `db:"max_drawdown" json:"max_drawdown"`
	CurrentPnl       decimal.Decimal    `db:"current_pnl" json:"current_pnl"`
	Status           SubscriptionStatus `db:"status" json:"status"`
	RatesVersion     string             `db:"rates_version" json:"rates_version"`
	TxID             string             `db:"tx_id" json:"tx_id"`
	CreatedAt        time.Time          `db:"created_at" json:"created_at"`
}

// InsuranceStatus is the lifecycle state of a hedge purchase.
type InsuranceStatus string

const (
	InsuranceActive  InsuranceStatus = "ACTIVE"
	InsuranceClaimed InsuranceStatus = "CLAIMED"
)

// InsurancePurchase is a hedge protection policy. Its premium is paid into
// the insurance pool; a claim pays Payout back out of it.
type InsurancePurchase struct {
	ID        string          `db:"id" json:"id"`
	ProfileID string          `db:"profile_id" json:"profile_id"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	Payout    decimal.Decimal `db:"payout" json:"payout"`
	Status    InsuranceStatus `db:"status" json:"status"`
	TxID      string          `db:"tx_id" json:"tx_id"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	ClaimedAt *time.Time      `db:"claimed_at" json:"claimed_at,omitempty"`
}

// InsurancePool backs hedge claims. It is fed by hedge premiums and by the
// insurance share of platform revenue.
type InsurancePool struct {
	Balance       decimal.Decimal `db:"balance" json:"balance"`
	TotalPremiums decimal.Decimal `db:"total_premiums" json:"total_premiums"`
	TotalFunded   decimal.Decimal `db:"total_funded" json:"total_funded"`
	TotalPaid     decimal.Decimal `db:"total_paid" json:"total_paid"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// RevenueAllocation records how one revenue booking was split.
type RevenueAllocation struct {
	ID         string          `db:"id" json:"id"`
	Revenue    decimal.Decimal `db:"revenue" json:"revenue"`
	NodePool   decimal.Decimal `db:"node_pool" json:"node_pool"`
	Buyback    decimal.Decimal `db:"buyback" json:"buyback"`
	Insurance  decimal.Decimal `db:"insurance" json:"insurance"`
	Treasury   decimal.Decimal `db:"treasury" json:"treasury"`
	Operations decimal.Decimal `db:"operations" json:"operations"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}
