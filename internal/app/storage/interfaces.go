package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/axomx/reward-ledger/internal/app/domain/ledger"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique key (wallet, referral code,
	// tx hash) is already taken.
	ErrDuplicate = errors.New("duplicate record")
	// ErrConflict is returned when a compare-and-set update finds the row in
	// an unexpected state.
	ErrConflict = errors.New("state conflict")
)

// BalanceDelta is a relative change to a profile's running totals.
type BalanceDelta struct {
	Deposited        decimal.Decimal
	Withdrawn        decimal.Decimal
	ReferralEarnings decimal.Decimal
}

// InsuranceDelta is a relative change to the insurance pool.
type InsuranceDelta struct {
	Premiums decimal.Decimal
	Funded   decimal.Decimal
	Paid     decimal.Decimal
}

// VaultTotals aggregates every ACTIVE vault position.
type VaultTotals struct {
	Locked          decimal.Decimal
	ActivePositions int
	Depositors      int
	ByPlan          map[string]decimal.Decimal
}

// ProfileStore persists wallet profiles.
type ProfileStore interface {
	CreateProfile(ctx context.Context, p ledger.Profile) (ledger.Profile, error)
	UpdateProfile(ctx context.Context, p ledger.Profile) (ledger.Profile, error)
	AddProfileBalances(ctx context.Context, id string, delta BalanceDelta) (ledger.Profile, error)
	GetProfile(ctx context.Context, id string) (ledger.Profile, error)
	GetProfileByWallet(ctx context.Context, wallet string) (ledger.Profile, error)
	// LockProfileByWallet loads the profile and holds its row until the
	// enclosing unit of work ends. Outside a unit of work it is a plain read.
	LockProfileByWallet(ctx context.Context, wallet string) (ledger.Profile, error)
	GetProfileByReferralCode(ctx context.Context, code string) (ledger.Profile, error)
	ListReferrals(ctx context.Context, referrerID string) ([]ledger.Profile, error)
}

// VaultStore persists vault positions.
type VaultStore interface {
	CreatePosition(ctx context.Context, p ledger.VaultPosition) (ledger.VaultPosition, error)
	GetPosition(ctx context.Context, id string) (ledger.VaultPosition, error)
	ListPositions(ctx context.Context, profileID string) ([]ledger.VaultPosition, error)
	// ClosePosition moves a position from ACTIVE to status. It returns
	// ErrConflict when the position is no longer ACTIVE.
	ClosePosition(ctx context.Context, id string, status ledger.PositionStatus, closedAt time.Time) (ledger.VaultPosition, error)
	VaultTotals(ctx context.Context) (VaultTotals, error)
}

// NodeStore persists node memberships and their milestones.
type NodeStore interface {
	CreateMembership(ctx context.Context, m ledger.NodeMembership, milestones []ledger.NodeMilestone) (ledger.NodeMembership, error)
	// UpdateMembership writes next only while the stored row still matches
	// prev's status, stage and package flag; otherwise it returns ErrConflict.
	UpdateMembership(ctx context.Context, prev, next ledger.NodeMembership) (ledger.NodeMembership, error)
	GetMembership(ctx context.Context, id string) (ledger.NodeMembership, error)
	ListMemberships(ctx context.Context, profileID string) ([]ledger.NodeMembership, error)
	ListEarningMemberships(ctx context.Context) ([]ledger.NodeMembership, error)
	ListMilestones(ctx context.Context, membershipID string) ([]ledger.NodeMilestone, error)
	// UpdateMilestone resolves a PENDING milestone. A milestone that is
	// already resolved yields ErrConflict.
	UpdateMilestone(ctx context.Context, m ledger.NodeMilestone) (ledger.NodeMilestone, error)
}

// TransactionStore persists the append-only transaction log.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, error)
	GetTransactionByHash(ctx context.Context, hash string) (ledger.Transaction, error)
	ListTransactions(ctx context.Context, profileID string, txType ledger.TransactionType) ([]ledger.Transaction, error)
}

// RewardStore persists commission and node earnings records and the node pool.
type RewardStore interface {
	// CreateCommission inserts rec unless (SourceTxID, RecipientID) exists,
	// reporting whether a row was written.
	CreateCommission(ctx context.Context, rec ledger.CommissionRecord) (bool, error)
	ListCommissions(ctx context.Context, recipientID string) ([]ledger.CommissionRecord, error)
	// CreateNodeEarning inserts rec unless (MembershipID, Type, Period) exists.
	CreateNodeEarning(ctx context.Context, rec ledger.NodeEarningsRecord) (bool, error)
	ListNodeEarnings(ctx context.Context, profileID string) ([]ledger.NodeEarningsRecord, error)
	GetNodePool(ctx context.Context) (ledger.NodePool, error)
	// AdjustNodePool adds funded to the balance and subtracts distributed.
	AdjustNodePool(ctx context.Context, funded, distributed decimal.Decimal) (ledger.NodePool, error)
	CreateRevenueAllocation(ctx context.Context, a ledger.RevenueAllocation) (ledger.RevenueAllocation, error)
	// ListRevenueAllocations returns the newest allocations first.
	ListRevenueAllocations(ctx context.Context, limit int) ([]ledger.RevenueAllocation, error)
}

// ProductStore persists strategy subscriptions, hedge purchases and the
// insurance pool behind them.
type ProductStore interface {
	CreateStrategySubscription(ctx context.Context, sub ledger.StrategySubscription) (ledger.StrategySubscription, error)
	ListStrategySubscriptions(ctx context.Context, profileID string) ([]ledger.StrategySubscription, error)
	// StrategyAUM sums the capital of ACTIVE subscriptions per strategy.
	StrategyAUM(ctx context.Context) (map[string]decimal.Decimal, error)

	CreateInsurancePurchase(ctx context.Context, p ledger.InsurancePurchase) (ledger.InsurancePurchase, error)
	GetInsurancePurchase(ctx context.Context, id string) (ledger.InsurancePurchase, error)
	ListInsurancePurchases(ctx context.Context, profileID string) ([]ledger.InsurancePurchase, error)
	CountInsurancePurchases(ctx context.Context) (int, error)
	// ClaimInsurancePurchase moves a purchase from ACTIVE to CLAIMED. It
	// returns ErrConflict when the purchase was already claimed.
	ClaimInsurancePurchase(ctx context.Context, id string, payout decimal.Decimal, at time.Time) (ledger.InsurancePurchase, error)

	GetInsurancePool(ctx context.Context) (ledger.InsurancePool, error)
	// AdjustInsurancePool applies delta. It returns ErrConflict when the
	// balance cannot cover delta.Paid.
	AdjustInsurancePool(ctx context.Context, delta InsuranceDelta) (ledger.InsurancePool, error)
}

// Repository is every store a ledger operation needs.
type Repository interface {
	ProfileStore
	VaultStore
	NodeStore
	TransactionStore
	RewardStore
	ProductStore
}

// Store is a Repository that can run a unit of work atomically. fn receives
// a Repository bound to the transaction; returning an error rolls back.
type Store interface {
	Repository
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error
}
