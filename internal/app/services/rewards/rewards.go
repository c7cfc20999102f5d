// Package rewards settles node owner income: the fixed daily yield of each
// membership's asset package and pro-rata dividends from the node pool.
package rewards

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/axomx/reward-ledger/internal/app/accrual"
	"github.com/axomx/reward-ledger/internal/app/domain/ledger"
	"github.com/axomx/reward-ledger/internal/app/rates"
	"github.com/axomx/reward-ledger/internal/app/storage"
	"github.com/axomx/reward-ledger/pkg/logger"
)

// ErrInvalidAmount is returned for non-positive pool funding.
var ErrInvalidAmount = errors.New("amount must be positive")

// dividendPlaces is the precision dividends are truncated to; the remainder
// stays in the pool.
const dividendPlaces = 6

// SettleReport summarizes a fixed yield run.
type SettleReport struct {
	Memberships int             `json:"memberships"`
	Records     int             `json:"records"`
	Amount      decimal.Decimal `json:"amount"`
}

// DistributionReport summarizes a pool distribution.
type DistributionReport struct {
	Period      string          `json:"period"`
	Recipients  int             `json:"recipients"`
	Distributed decimal.Decimal `json:"distributed"`
	Pool        ledger.NodePool `json:"pool"`
}

// Service settles node rewards.
type Service struct {
	store storage.Store
	table *rates.Table
	log   *logger.Logger
}

func New(store storage.Store, table *rates.Table, log *logger.Logger) *Service {
	if table == nil {
		table = rates.Default()
	}
	if log == nil {
		log = logger.NewDefault("rewards")
	}
	return &Service{store: store, table: table, log: log}
}

// SettleFixedYield writes one FIXED_YIELD record per elapsed day of every
// earning membership, paying dailyYield scaled by the earnings capacity in
// effect when the day is settled. Days already settled are skipped.
func (s *Service) SettleFixedYield(ctx context.Context, asOf time.Time) (SettleReport, error) {
	report := SettleReport{Amount: decimal.Zero}
	memberships, err := s.store.ListEarningMemberships(ctx)
	if err != nil {
		return report, fmt.Errorf("list earning memberships: %w", err)
	}

	for _, m := range memberships {
		if accrual.ElapsedDays(m.StartDate, asOf, m.EndDate) == 0 {
			continue
		}
		var (
			written int
			amount  decimal.Decimal
		)
		err := s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Repository) error {
			var err error
			written, amount, err = SettleMembership(ctx, tx, m, asOf)
			return err
		})
		if err != nil {
			return report, fmt.Errorf("settle membership %s: %w", m.ID, err)
		}
		report.Memberships++
		report.Records += written
		report.Amount = report.Amount.Add(amount)
	}

	s.log.WithField("records", report.Records).Infof("fixed yield settled: %s", report.Amount)
	return report, nil
}

// SettleMembership writes the FIXED_YIELD records of m for every day elapsed
// by asOf (capped at the end date) that is not yet settled, at m's current
// capacity. It returns the number of records written and their total.
// Callers moving a membership to a terminal status settle it first, since
// SettleFixedYield only visits earning memberships.
func SettleMembership(ctx context.Context, repo storage.Repository, m ledger.NodeMembership, asOf time.Time) (int, decimal.Decimal, error) {
	days := accrual.ElapsedDays(m.StartDate, asOf, m.EndDate)
	amount := m.DailyYield.Mul(m.EarningsCapacity)
	written := 0
	for day := 1; day <= days; day++ {
		ok, err := repo.CreateNodeEarning(ctx, ledger.NodeEarningsRecord{
			ID:           uuid.NewString(),
			ProfileID:    m.ProfileID,
			MembershipID: m.ID,
			Type:         ledger.RewardFixedYield,
			Period:       fmt.Sprintf("day-%d", day),
			Amount:       amount,
			Capacity:     m.EarningsCapacity,
			CreatedAt:    asOf,
		})
		if err != nil {
			return written, amount.Mul(decimal.NewFromInt(int64(written))), err
		}
		if ok {
			written++
		}
	}
	return written, amount.Mul(decimal.NewFromInt(int64(written))), nil
}

// FundingReport is one revenue booking: the persisted split and the pools
// after it.
type FundingReport struct {
	Allocation ledger.RevenueAllocation `json:"allocation"`
	Pool       ledger.NodePool          `json:"pool"`
	Insurance  ledger.InsurancePool     `json:"insurance"`
}

// FundPool books revenue across every share of the revenue distribution.
// The node pool and insurance pool shares are credited to their pools; the
// buyback, treasury and operations shares are recorded on the allocation for
// payout outside the ledger.
func (s *Service) FundPool(ctx context.Context, revenue decimal.Decimal) (FundingReport, error) {
	if !revenue.IsPositive() {
		return FundingReport{}, ErrInvalidAmount
	}
	split := s.table.Revenue
	alloc := ledger.RevenueAllocation{
		ID:         uuid.NewString(),
		Revenue:    revenue,
		NodePool:   revenue.Mul(split.NodePool),
		Buyback:    revenue.Mul(split.BuybackPool),
		Insurance:  revenue.Mul(split.InsurancePool),
		Treasury:   revenue.Mul(split.TreasuryPool),
		Operations: revenue.Mul(split.Operations),
		CreatedAt:  time.Now().UTC(),
	}

	var report FundingReport
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Repository) error {
		var err error
		if report.Allocation, err = tx.CreateRevenueAllocation(ctx, alloc); err != nil {
			return err
		}
		if report.Pool, err = tx.AdjustNodePool(ctx, alloc.NodePool, decimal.Zero); err != nil {
			return err
		}
		report.Insurance, err = tx.AdjustInsurancePool(ctx, storage.InsuranceDelta{
			Premiums: decimal.Zero,
			Funded:   alloc.Insurance,
			Paid:     decimal.Zero,
		})
		return err
	})
	if err != nil {
		return FundingReport{}, fmt.Errorf("fund pools: %w", err)
	}
	s.log.WithField("allocation", alloc.ID).
		Infof("revenue %s booked: node pool %s, insurance %s, buyback %s, treasury %s, operations %s",
			revenue, alloc.NodePool, alloc.Insurance, alloc.Buyback, alloc.Treasury, alloc.Operations)
	return report, nil
}

// RevenueSummary is the running total of every allocation plus the most
// recent ones.
type RevenueSummary struct {
	Totals ledger.RevenueAllocation   `json:"totals"`
	Recent []ledger.RevenueAllocation `json:"recent"`
}

// recentAllocations bounds the allocations returned with a summary.
const recentAllocations = 50

// Revenue summarizes booked revenue. Totals cover the recent allocations.
func (s *Service) Revenue(ctx context.Context) (RevenueSummary, error) {
	recent, err := s.store.ListRevenueAllocations(ctx, recentAllocations)
	if err != nil {
		return RevenueSummary{}, fmt.Errorf("list revenue allocations: %w", err)
	}
	totals := ledger.RevenueAllocation{
		Revenue: decimal.Zero, NodePool: decimal.Zero, Buyback: decimal.Zero,
		Insurance: decimal.Zero, Treasury: decimal.Zero, Operations: decimal.Zero,
	}
	for _, a := range recent {
		totals.Revenue = totals.Revenue.Add(a.Revenue)
		totals.NodePool = totals.NodePool.Add(a.NodePool)
		totals.Buyback = totals.Buyback.Add(a.Buyback)
		totals.Insurance = totals.Insurance.Add(a.Insurance)
		totals.Treasury = totals.Treasury.Add(a.Treasury)
		totals.Operations = totals.Operations.Add(a.Operations)
	}
	if recent == nil {
		recent = []ledger.RevenueAllocation{}
	}
	return RevenueSummary{Totals: totals, Recent: recent}, nil
}

// DistributePool splits the pool balance among pool-eligible earning
// memberships by weightMultiplier × earningsCapacity. A period is paid at
// most once per membership.
func (s *Service) DistributePool(ctx context.Context, period string) (DistributionReport, error) {
	if period == "" {
		return DistributionReport{}, fmt.Errorf("distribute pool: empty period")
	}
	report := DistributionReport{Period: period, Distributed: decimal.Zero}

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Repository) error {
		report.Recipients, report.Distributed = 0, decimal.Zero
		pool, err := tx.GetNodePool(ctx)
		if err != nil {
			return err
		}
		report.Pool = pool
		if !pool.Balance.IsPositive() {
			return nil
		}

		memberships, err := tx.ListEarningMemberships(ctx)
		if err != nil {
			return err
		}
		type share struct {
			m      ledger.NodeMembership
			weight decimal.Decimal
		}
		var shares []share
		total := decimal.Zero
		for _, m := range memberships {
			w := m.WeightMultiplier.Mul(m.EarningsCapacity)
			if !m.PoolEligible || !w.IsPositive() {
				continue
			}
			shares = append(shares, share{m: m, weight: w})
			total = total.Add(w)
		}
		if len(shares) == 0 {
			return nil
		}

		now := time.Now().UTC()
		for _, sh := range shares {
			amount := pool.Balance.Mul(sh.weight).Div(total).Truncate(dividendPlaces)
			if !amount.IsPositive() {
				continue
			}
			ok, err := tx.CreateNodeEarning(ctx, ledger.NodeEarningsRecord{
				ID:           uuid.NewString(),
				ProfileID:    sh.m.ProfileID,
				MembershipID: sh.m.ID,
				Type:         ledger.RewardPoolDividend,
				Period:       period,
				Amount:       amount,
				Capacity:     sh.m.EarningsCapacity,
				CreatedAt:    now,
			})
			if err != nil {
				return err
			}
			if ok {
				report.Recipients++
				report.Distributed = report.Distributed.Add(amount)
			}
		}
		if !report.Distributed.IsPositive() {
			return nil
		}
		report.Pool, err = tx.AdjustNodePool(ctx, decimal.Zero, report.Distributed)
		return err
	})
	if err != nil {
		return DistributionReport{}, fmt.Errorf("distribute pool %s: %w", period, err)
	}

	s.log.WithField("period", period).
		WithField("recipients", report.Recipients).
		Infof("node pool distributed: %s", report.Distributed)
	return report, nil
}
