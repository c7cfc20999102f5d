// Package ledger holds the records persisted by the reward and membership
// ledger: profiles, vault positions, node memberships and milestones,
// transactions, commission and node earnings records.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/axomx/reward-ledger/internal/app/rates"
)

// Profile is a wallet's ledger identity. Profiles are never deleted.
type Profile struct {
	ID               string          `db:"id" json:"id"`
	WalletAddress    string          `db:"wallet_address" json:"wallet_address"`
	ReferralCode     string          `db:"referral_code" json:"referral_code"`
	ReferrerID       *string         `db:"referrer_id" json:"referrer_id,omitempty"`
	Rank             rates.Rank      `db:"rank" json:"rank"`
	NodeType         rates.NodeType  `db:"node_type" json:"node_type"`
	IsVip            bool            `db:"is_vip" json:"is_vip"`
	VipExpiresAt     *time.Time      `db:"vip_expires_at" json:"vip_expires_at,omitempty"`
	TotalDeposited   decimal.Decimal `db:"total_deposited" json:"total_deposited"`
	TotalWithdrawn   decimal.Decimal `db:"total_withdrawn" json:"total_withdrawn"`
	ReferralEarnings decimal.Decimal `db:"referral_earnings" json:"referral_earnings"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// HasReferrer reports whether the profile joined through a referral code.
func (p Profile) HasReferrer() bool {
	return p.ReferrerID != nil && *p.ReferrerID != ""
}

// ActiveVip reports whether the VIP subscription is current at now.
func (p Profile) ActiveVip(now time.Time) bool {
	return p.IsVip && p.VipExpiresAt != nil && now.Before(*p.VipExpiresAt)
}

// PositionStatus is the lifecycle state of a vault position.
type PositionStatus string

const (
	PositionActive    PositionStatus = "ACTIVE"
	PositionWithdrawn PositionStatus = "WITHDRAWN"
	PositionCompleted PositionStatus = "COMPLETED"
)

// VaultPosition is a fixed-term deposit. Principal, rate and term are
// immutable after creation.
type VaultPosition struct {
	ID           string          `db:"id" json:"id"`
	ProfileID    string          `db:"profile_id" json:"profile_id"`
	PlanType     string          `db:"plan_type" json:"plan_type"`
	Principal    decimal.Decimal `db:"principal" json:"principal"`
	DailyRate    decimal.Decimal `db:"daily_rate" json:"daily_rate"`
	PlanDays     int             `db:"plan_days" json:"plan_days"`
	RatesVersion string          `db:"rates_version" json:"rates_version"`
	StartDate    time.Time       `db:"start_date" json:"start_date"`
	EndDate      time.Time       `db:"end_date" json:"end_date"`
	Status       PositionStatus  `db:"status" json:"status"`
	ClosedAt     *time.Time      `db:"closed_at" json:"closed_at,omitempty"`
	DepositTxID  string          `db:"deposit_tx_id" json:"deposit_tx_id"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// Matured reports whether the position's term has ended at asOf.
func (p VaultPosition) Matured(asOf time.Time) bool {
	return !asOf.Before(p.EndDate)
}

// PaymentMode is how a node membership was paid for.
type PaymentMode string

const (
	PaymentFull      PaymentMode = "FULL"
	PaymentEarlyBird PaymentMode = "EARLY_BIRD"
)

// MembershipStatus is the lifecycle state of a node membership.
type MembershipStatus string

const (
	MembershipActive            MembershipStatus = "ACTIVE"
	MembershipPendingMilestones MembershipStatus = "PENDING_MILESTONES"
	MembershipCompleted         MembershipStatus = "COMPLETED"
	MembershipCancelled         MembershipStatus = "CANCELLED"
	MembershipExpired           MembershipStatus = "EXPIRED"
)

// Terminal reports whether no further transitions are possible.
func (s MembershipStatus) Terminal() bool {
	return s == MembershipCompleted || s == MembershipCancelled || s == MembershipExpired
}

// Earning reports whether a membership in this state still earns rewards.
func (s MembershipStatus) Earning() bool {
	return s == MembershipActive || s == MembershipPendingMilestones
}

// NodeMembership is a purchased node. Plan terms are snapshotted at purchase.
type NodeMembership struct {
	ID               string           `db:"id" json:"id"`
	ProfileID        string           `db:"profile_id" json:"profile_id"`
	NodeType         rates.NodeType   `db:"node_type" json:"node_type"`
	Price            decimal.Decimal  `db:"price" json:"price"`
	PaymentMode      PaymentMode      `db:"payment_mode" json:"payment_mode"`
	AmountPaid       decimal.Decimal  `db:"amount_paid" json:"amount_paid"`
	DailyYield       decimal.Decimal  `db:"daily_yield" json:"daily_yield"`
	WeightMultiplier decimal.Decimal  `db:"weight_multiplier" json:"weight_multiplier"`
	PoolEligible     bool             `db:"pool_eligible" json:"pool_eligible"`
	RatesVersion     string           `db:"rates_version" json:"rates_version"`
	Status           MembershipStatus `db:"status" json:"status"`
	MilestoneStage   int              `db:"milestone_stage" json:"milestone_stage"`
	TotalMilestones  int              `db:"total_milestones" json:"total_milestones"`
	EarningsCapacity decimal.Decimal  `db:"earnings_capacity" json:"earnings_capacity"`
	UnlockHalted     bool             `db:"unlock_halted" json:"unlock_halted"`
	PackageReleased  bool             `db:"package_released" json:"package_released"`
	StartDate        time.Time        `db:"start_date" json:"start_date"`
	EndDate          time.Time        `db:"end_date" json:"end_date"`
	PurchaseTxID     string           `db:"purchase_tx_id" json:"purchase_tx_id"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

// PackageBalance is what remains owed on the asset package after the
// up-front payment.
func (m NodeMembership) PackageBalance() decimal.Decimal {
	return m.Price.Sub(m.AmountPaid)
}

// MilestoneStatus is the outcome of a milestone.
type MilestoneStatus string

const (
	MilestonePending  MilestoneStatus = "PENDING"
	MilestoneAchieved MilestoneStatus = "ACHIEVED"
	MilestoneFailed   MilestoneStatus = "FAILED"
)

// NodeMilestone is one rank requirement a membership must meet by Deadline.
type NodeMilestone struct {
	ID           string          `db:"id" json:"id"`
	MembershipID string          `db:"membership_id" json:"membership_id"`
	Ordinal      int             `db:"ordinal" json:"ordinal"`
	RequiredRank rates.Rank      `db:"required_rank" json:"required_rank"`
	Unlocks      rates.Unlock    `db:"unlocks" json:"unlocks"`
	Deadline     time.Time       `db:"deadline" json:"deadline"`
	Status       MilestoneStatus `db:"status" json:"status"`
	EvaluatedAt  *time.Time      `db:"evaluated_at" json:"evaluated_at,omitempty"`
}

// TransactionType classifies a ledger transaction.
type TransactionType string

const (
	TxDeposit         TransactionType = "DEPOSIT"
	TxWithdraw        TransactionType = "WITHDRAW"
	TxNodePurchase    TransactionType = "NODE_PURCHASE"
	TxPackageRelease  TransactionType = "PACKAGE_RELEASE"
	TxVipSubscription TransactionType = "VIP_SUBSCRIPTION"

	TxStrategySubscription TransactionType = "STRATEGY_SUBSCRIPTION"
	TxHedgePurchase        TransactionType = "HEDGE_PURCHASE"
	TxHedgePayout          TransactionType = "HEDGE_PAYOUT"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TxDeposit, TxWithdraw, TxNodePurchase, TxPackageRelease, TxVipSubscription,
		TxStrategySubscription, TxHedgePurchase, TxHedgePayout:
		return true
	}
	return false
}

// TransactionStatus tracks on-chain confirmation.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "PENDING"
	TxConfirmed TransactionStatus = "CONFIRMED"
	TxFailed    TransactionStatus = "FAILED"
)

// DefaultToken is the settlement token for every transaction.
const DefaultToken = "USDC"

// Transaction is an append-only audit row for a balance-affecting action.
type Transaction struct {
	ID          string            `db:"id" json:"id"`
	ProfileID   string            `db:"profile_id" json:"profile_id"`
	Type        TransactionType   `db:"type" json:"type"`
	Token       string            `db:"token" json:"token"`
	Amount      decimal.Decimal   `db:"amount" json:"amount"`
	TxHash      *string           `db:"tx_hash" json:"tx_hash,omitempty"`
	Status      TransactionStatus `db:"status" json:"status"`
	ReferenceID string            `db:"reference_id" json:"reference_id,omitempty"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
}

// CommissionType distinguishes direct bonuses from differential payouts.
type CommissionType string

const (
	CommissionDirect       CommissionType = "direct_referral"
	CommissionDifferential CommissionType = "differential"
)

// CommissionRecord credits a referral ancestor for a triggering transaction.
// (SourceTxID, RecipientID) is unique.
type CommissionRecord struct {
	ID           string          `db:"id" json:"id"`
	RecipientID  string          `db:"recipient_id" json:"recipient_id"`
	SourceTxID   string          `db:"source_tx_id" json:"source_tx_id"`
	SourceID     string          `db:"source_id" json:"source_id"`
	SourceWallet string          `db:"source_wallet" json:"source_wallet"`
	SourceRank   rates.Rank      `db:"source_rank" json:"source_rank"`
	Type         CommissionType  `db:"type" json:"type"`
	Depth        int             `db:"depth" json:"depth"`
	Rate         decimal.Decimal `db:"rate" json:"rate"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// RewardType classifies node earnings.
type RewardType string

const (
	RewardFixedYield   RewardType = "FIXED_YIELD"
	RewardPoolDividend RewardType = "POOL_DIVIDEND"
)

// NodeEarningsRecord credits a node owner for one settlement period.
// (MembershipID, Type, Period) is unique.
type NodeEarningsRecord struct {
	ID           string          `db:"id" json:"id"`
	ProfileID    string          `db:"profile_id" json:"profile_id"`
	MembershipID string          `db:"membership_id" json:"membership_id"`
	Type         RewardType      `db:"reward_type" json:"reward_type"`
	Period       string          `db:"period" json:"period"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	Capacity     decimal.Decimal `db:"capacity" json:"earnings_capacity"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// NodePool is the shared dividend pool funded from platform revenue.
type NodePool struct {
	Balance          decimal.Decimal `db:"balance" json:"balance"`
	TotalFunded      decimal.Decimal `db:"total_funded" json:"total_funded"`
	TotalDistributed decimal.Decimal `db:"total_distributed" json:"total_distributed"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}
