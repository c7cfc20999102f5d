// Package rates holds the static, versioned pricing tables for vault plans,
// node plans, milestones, rank commissions, burn brackets and VIP plans.
// Tables are snapshotted into records at creation time, so editing a table
// never changes the terms of an existing position or membership.
package rates

import (
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Rank is a referral rank. The empty rank means "no rank yet".
type Rank string

const (
	RankNone Rank = ""
	RankV1   Rank = "V1"
	RankV2   Rank = "V2"
	RankV3   Rank = "V3"
	RankV4   Rank = "V4"
	RankV5   Rank = "V5"
	RankV6   Rank = "V6"
	RankV7   Rank = "V7"
)

var rankOrder = map[Rank]int{
	RankNone: 0, RankV1: 1, RankV2: 2, RankV3: 3, RankV4: 4, RankV5: 5, RankV6: 6, RankV7: 7,
}

// Level returns the ordinal of r (0 for none or unknown).
func (r Rank) Level() int { return rankOrder[r] }

// AtLeast reports whether r is the same as or above other.
func (r Rank) AtLeast(other Rank) bool { return r.Level() >= other.Level() }

// Valid reports whether r is a known rank.
func (r Rank) Valid() bool {
	_, ok := rankOrder[r]
	return ok
}

// NodeType is the node membership tier owned by a profile.
type NodeType string

const (
	NodeNone NodeType = "NONE"
	NodeMini NodeType = "MINI"
	NodeMax  NodeType = "MAX"
)

var nodeOrder = map[NodeType]int{NodeNone: 0, NodeMini: 1, NodeMax: 2}

// Outranks reports whether n is a higher tier than other.
func (n NodeType) Outranks(other NodeType) bool { return nodeOrder[n] > nodeOrder[other] }

// Unlock describes what a milestone releases when achieved.
type Unlock string

const (
	UnlockEarnings           Unlock = "earnings"
	UnlockEarningsAndPackage Unlock = "earnings_and_package"
)

// VaultPlan describes a fixed-term vault product.
type VaultPlan struct {
	Days        int             `yaml:"days" json:"days"`
	DailyRate   decimal.Decimal `yaml:"daily_rate" json:"daily_rate"`
	MinAmount   decimal.Decimal `yaml:"min_amount" json:"min_amount"`
	PlatformFee decimal.Decimal `yaml:"platform_fee" json:"platform_fee"`
}

// NodePlan describes a node membership product.
type NodePlan struct {
	Price            decimal.Decimal `yaml:"price" json:"price"`
	AssetPackage     decimal.Decimal `yaml:"asset_package" json:"asset_package"`
	DailyRate        decimal.Decimal `yaml:"daily_rate" json:"daily_rate"`
	DurationDays     int             `yaml:"duration_days" json:"duration_days"`
	Slots            int             `yaml:"slots" json:"slots"`
	WeightMultiplier decimal.Decimal `yaml:"weight_multiplier" json:"weight_multiplier"`
	RevenuePoolShare decimal.Decimal `yaml:"revenue_pool_share" json:"revenue_pool_share"`
}

// DailyYield is the fixed daily yield of the plan's asset package.
func (p NodePlan) DailyYield() decimal.Decimal {
	return p.AssetPackage.Mul(p.DailyRate)
}

// Milestone is one step of a node's unlock schedule.
type Milestone struct {
	RequiredRank Rank   `yaml:"required_rank" json:"required_rank"`
	Days         int    `yaml:"days" json:"days"`
	Unlocks      Unlock `yaml:"unlocks" json:"unlocks"`
}

// BurnBracket applies Rate to principal once a position has been held for
// at least Days.
type BurnBracket struct {
	Days int             `yaml:"days" json:"days"`
	Rate decimal.Decimal `yaml:"rate" json:"rate"`
}

// VipPlan is a paid subscription.
type VipPlan struct {
	Price  decimal.Decimal `yaml:"price" json:"price"`
	Months int             `yaml:"months" json:"months"`
}

// Strategy is a managed trading strategy wallets allocate capital to.
type Strategy struct {
	Name          string          `yaml:"name" json:"name"`
	Description   string          `yaml:"description" json:"description"`
	Leverage      decimal.Decimal `yaml:"leverage" json:"leverage"`
	WinRate       decimal.Decimal `yaml:"win_rate" json:"win_rate"`
	MonthlyReturn decimal.Decimal `yaml:"monthly_return" json:"monthly_return"`
	MaxDrawdown   decimal.Decimal `yaml:"max_drawdown" json:"max_drawdown"`
	MinCapital    decimal.Decimal `yaml:"min_capital" json:"min_capital"`
	Hot           bool            `yaml:"hot" json:"hot"`
	VipOnly       bool            `yaml:"vip_only" json:"vip_only"`
}

// HedgePlan prices hedge protection.
type HedgePlan struct {
	MinAmount decimal.Decimal `yaml:"min_amount" json:"min_amount"`
}

// RevenueDistribution splits platform revenue between pools.
type RevenueDistribution struct {
	NodePool      decimal.Decimal `yaml:"node_pool" json:"node_pool"`
	BuybackPool   decimal.Decimal `yaml:"buyback_pool" json:"buyback_pool"`
	InsurancePool decimal.Decimal `yaml:"insurance_pool" json:"insurance_pool"`
	TreasuryPool  decimal.Decimal `yaml:"treasury_pool" json:"treasury_pool"`
	Operations    decimal.Decimal `yaml:"operations" json:"operations"`
}

// Total is the share of revenue the distribution allocates.
func (r RevenueDistribution) Total() decimal.Decimal {
	return r.NodePool.Add(r.BuybackPool).Add(r.InsurancePool).Add(r.TreasuryPool).Add(r.Operations)
}

// Table is one version of every pricing table.
type Table struct {
	Version              string                       `yaml:"version" json:"version"`
	VaultPlans           map[string]VaultPlan         `yaml:"vault_plans" json:"vault_plans"`
	NodePlans            map[NodeType]NodePlan        `yaml:"node_plans" json:"node_plans"`
	Milestones           map[NodeType][]Milestone     `yaml:"milestones" json:"milestones"`
	RankRates            map[Rank]decimal.Decimal     `yaml:"rank_rates" json:"rank_rates"`
	DirectRates          map[NodeType]decimal.Decimal `yaml:"direct_rates" json:"direct_rates"`
	BurnSchedule         []BurnBracket                `yaml:"burn_schedule" json:"burn_schedule"`
	Revenue              RevenueDistribution          `yaml:"revenue_distribution" json:"revenue_distribution"`
	VipPlans             map[string]VipPlan           `yaml:"vip_plans" json:"vip_plans"`
	Strategies           map[string]Strategy          `yaml:"strategies" json:"strategies"`
	Hedge                HedgePlan                    `yaml:"hedge" json:"hedge"`
	EarlyBirdDepositRate decimal.Decimal              `yaml:"early_bird_deposit_rate" json:"early_bird_deposit_rate"`
	CommissionMinDeposit decimal.Decimal              `yaml:"commission_min_deposit" json:"commission_min_deposit"`
	MaxReferralDepth     int                          `yaml:"max_referral_depth" json:"max_referral_depth"`
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Default returns the built-in tables.
func Default() *Table {
	vault := func(days int, rate string) VaultPlan {
		return VaultPlan{Days: days, DailyRate: d(rate), MinAmount: d("50"), PlatformFee: d("0.10")}
	}
	return &Table{
		Version: "2025-01",
		VaultPlans: map[string]VaultPlan{
			"7_DAYS":   vault(7, "0.005"),
			"30_DAYS":  vault(30, "0.007"),
			"90_DAYS":  vault(90, "0.009"),
			"180_DAYS": vault(180, "0.012"),
			"360_DAYS": vault(360, "0.015"),
		},
		NodePlans: map[NodeType]NodePlan{
			NodeMini: {
				Price: d("100"), AssetPackage: d("1000"), DailyRate: d("0.005"),
				DurationDays: 90, Slots: 2000,
				WeightMultiplier: d("1.0"), RevenuePoolShare: decimal.Zero,
			},
			NodeMax: {
				Price: d("1000"), AssetPackage: d("10000"), DailyRate: d("0.009"),
				DurationDays: 120, Slots: 1000,
				WeightMultiplier: d("1.5"), RevenuePoolShare: d("0.50"),
			},
		},
		Milestones: map[NodeType][]Milestone{
			NodeMini: {
				{RequiredRank: RankV2, Days: 60, Unlocks: UnlockEarnings},
				{RequiredRank: RankV3, Days: 90, Unlocks: UnlockEarningsAndPackage},
			},
			NodeMax: {
				{RequiredRank: RankV1, Days: 15, Unlocks: UnlockEarnings},
				{RequiredRank: RankV2, Days: 30, Unlocks: UnlockEarnings},
				{RequiredRank: RankV3, Days: 60, Unlocks: UnlockEarnings},
				{RequiredRank: RankV4, Days: 90, Unlocks: UnlockEarnings},
				{RequiredRank: RankV6, Days: 120, Unlocks: UnlockEarningsAndPackage},
			},
		},
		RankRates: map[Rank]decimal.Decimal{
			RankNone: decimal.Zero,
			RankV1:   d("0.10"),
			RankV2:   d("0.15"),
			RankV3:   d("0.20"),
			RankV4:   d("0.25"),
			RankV5:   d("0.30"),
			RankV6:   d("0.40"),
			RankV7:   d("0.50"),
		},
		DirectRates: map[NodeType]decimal.Decimal{
			NodeNone: decimal.Zero,
			NodeMini: d("0.05"),
			NodeMax:  d("0.10"),
		},
		BurnSchedule: []BurnBracket{
			{Days: 0, Rate: d("0.20")},
			{Days: 7, Rate: d("0.15")},
			{Days: 15, Rate: d("0.10")},
			{Days: 30, Rate: d("0.05")},
			{Days: 60, Rate: decimal.Zero},
		},
		Revenue: RevenueDistribution{
			NodePool:      d("0.50"),
			BuybackPool:   d("0.20"),
			InsurancePool: d("0.10"),
			TreasuryPool:  d("0.10"),
			Operations:    d("0.10"),
		},
		VipPlans: map[string]VipPlan{
			"monthly":    {Price: d("39"), Months: 1},
			"semiannual": {Price: d("198"), Months: 6},
		},
		Strategies: map[string]Strategy{
			"btc-trend": {
				Name: "BTC Trend", Description: "Trend following on BTC perpetuals",
				Leverage: d("3"), WinRate: d("0.78"), MonthlyReturn: d("0.12"), MaxDrawdown: d("0.15"),
				MinCapital: d("100"), Hot: true,
			},
			"eth-grid": {
				Name: "ETH Grid", Description: "Range grid on ETH spot",
				Leverage: d("1"), WinRate: d("0.85"), MonthlyReturn: d("0.06"), MaxDrawdown: d("0.08"),
				MinCapital: d("50"),
			},
			"sol-momentum": {
				Name: "SOL Momentum", Description: "Breakout momentum on SOL perpetuals",
				Leverage: d("5"), WinRate: d("0.71"), MonthlyReturn: d("0.21"), MaxDrawdown: d("0.25"),
				MinCapital: d("500"), Hot: true, VipOnly: true,
			},
		},
		Hedge:                HedgePlan{MinAmount: d("100")},
		EarlyBirdDepositRate: d("0.10"),
		CommissionMinDeposit: d("100"),
		MaxReferralDepth:     10,
	}
}

// Load reads a YAML table from path and validates it.
func Load(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rates %s: %w", path, err)
	}
	var t Table
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("parse rates %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// LoadOrDefault loads path when set, otherwise returns Default.
func LoadOrDefault(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks internal consistency and normalizes ordering.
func (t *Table) Validate() error {
	if t.Version == "" {
		return fmt.Errorf("rates: version is required")
	}
	if len(t.VaultPlans) == 0 {
		return fmt.Errorf("rates: at least one vault plan is required")
	}
	for name, p := range t.VaultPlans {
		if p.Days <= 0 {
			return fmt.Errorf("rates: vault plan %s: days must be positive", name)
		}
		if p.DailyRate.IsNegative() || p.MinAmount.IsNegative() {
			return fmt.Errorf("rates: vault plan %s: negative rate or minimum", name)
		}
	}
	for nt, p := range t.NodePlans {
		if !p.Price.IsPositive() || p.DurationDays <= 0 {
			return fmt.Errorf("rates: node plan %s: price and duration must be positive", nt)
		}
	}
	for nt, ms := range t.Milestones {
		sort.SliceStable(ms, func(i, j int) bool { return ms[i].Days < ms[j].Days })
		for _, m := range ms {
			if !m.RequiredRank.Valid() || m.RequiredRank == RankNone {
				return fmt.Errorf("rates: milestone for %s has invalid rank %q", nt, m.RequiredRank)
			}
		}
	}
	sort.SliceStable(t.BurnSchedule, func(i, j int) bool { return t.BurnSchedule[i].Days < t.BurnSchedule[j].Days })
	for _, b := range t.BurnSchedule {
		if b.Rate.IsNegative() || b.Rate.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("rates: burn rate %s out of range", b.Rate)
		}
	}
	for _, share := range []decimal.Decimal{t.Revenue.NodePool, t.Revenue.BuybackPool, t.Revenue.InsurancePool, t.Revenue.TreasuryPool, t.Revenue.Operations} {
		if share.IsNegative() {
			return fmt.Errorf("rates: negative revenue share %s", share)
		}
	}
	if t.Revenue.Total().GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("rates: revenue shares sum to %s, above 1", t.Revenue.Total())
	}
	for id, st := range t.Strategies {
		if !st.MinCapital.IsPositive() || !st.Leverage.IsPositive() {
			return fmt.Errorf("rates: strategy %s: minimum capital and leverage must be positive", id)
		}
	}
	if t.Hedge.MinAmount.IsNegative() {
		return fmt.Errorf("rates: negative hedge minimum")
	}
	if t.EarlyBirdDepositRate.IsNegative() || t.EarlyBirdDepositRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("rates: early bird deposit rate out of range")
	}
	if t.MaxReferralDepth <= 0 {
		t.MaxReferralDepth = 10
	}
	return nil
}

// VaultPlan looks up a vault plan by type.
func (t *Table) VaultPlan(planType string) (VaultPlan, bool) {
	p, ok := t.VaultPlans[planType]
	return p, ok
}

// NodePlan looks up a node plan by type.
func (t *Table) NodePlan(nt NodeType) (NodePlan, bool) {
	p, ok := t.NodePlans[nt]
	return p, ok
}

// Strategy looks up a strategy by id.
func (t *Table) Strategy(id string) (Strategy, bool) {
	st, ok := t.Strategies[id]
	return st, ok
}

// RankRate returns the differential commission rate for r.
func (t *Table) RankRate(r Rank) decimal.Decimal {
	return t.RankRates[r]
}

// TopRankRate is the highest rank commission rate in the table.
func (t *Table) TopRankRate() decimal.Decimal {
	top := decimal.Zero
	for _, r := range t.RankRates {
		if r.GreaterThan(top) {
			top = r
		}
	}
	return top
}

// DirectRate returns the direct referral bonus for a referrer owning nt.
func (t *Table) DirectRate(nt NodeType) decimal.Decimal {
	return t.DirectRates[nt]
}

// BurnRate returns the burn rate for a position held for elapsedDays: the
// bracket with the largest Days not exceeding elapsedDays.
func (t *Table) BurnRate(elapsedDays int) decimal.Decimal {
	return BurnRateFor(t.BurnSchedule, elapsedDays)
}

// BurnRateFor applies a sorted schedule to elapsedDays.
func BurnRateFor(schedule []BurnBracket, elapsedDays int) decimal.Decimal {
	rate := decimal.Zero
	for _, b := range schedule {
		if b.Days > elapsedDays {
			break
		}
		rate = b.Rate
	}
	return rate
}

// EarlyBirdDeposit is the up-front amount paid for an early bird node.
func (t *Table) EarlyBirdDeposit(nt NodeType) (decimal.Decimal, bool) {
	p, ok := t.NodePlans[nt]
	if !ok {
		return decimal.Zero, false
	}
	return p.Price.Mul(t.EarlyBirdDepositRate), true
}
