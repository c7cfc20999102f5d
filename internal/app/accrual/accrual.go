// Package accrual computes simple-interest yield and early-withdraw burn for
// vault positions. Every function is pure.
package accrual

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/axomx/reward-ledger/internal/app/domain/ledger"
	"github.com/axomx/reward-ledger/internal/app/rates"
)

const day = 24 * time.Hour

// ElapsedDays counts whole days between start and min(asOf, end). Clock skew
// that puts asOf before start yields zero.
func ElapsedDays(start, asOf, end time.Time) int {
	if asOf.After(end) {
		asOf = end
	}
	if !asOf.After(start) {
		return 0
	}
	return int(asOf.Sub(start) / day)
}

// Yield is principal × dailyRate × elapsedDays.
func Yield(principal, dailyRate decimal.Decimal, elapsedDays int) decimal.Decimal {
	if elapsedDays <= 0 {
		return decimal.Zero
	}
	return principal.Mul(dailyRate).Mul(decimal.NewFromInt(int64(elapsedDays)))
}

// Accrue returns the yield accrued on a position up to asOf, capped at the
// position's end date.
func Accrue(p ledger.VaultPosition, asOf time.Time) decimal.Decimal {
	return Yield(p.Principal, p.DailyRate, ElapsedDays(p.StartDate, asOf, p.EndDate))
}

// Settlement is the breakdown of a withdrawal.
type Settlement struct {
	ElapsedDays       int             `json:"elapsed_days"`
	Early             bool            `json:"early"`
	BurnRate          decimal.Decimal `json:"burn_rate"`
	Yield             decimal.Decimal `json:"yield_amount"`
	Burn              decimal.Decimal `json:"burn_amount"`
	PrincipalReturned decimal.Decimal `json:"principal_returned"`
	Total             decimal.Decimal `json:"total_withdraw"`
}

// Settle prices a withdrawal at asOf. Burn applies to principal only and only
// strictly before maturity; the accrued yield is always paid in full.
func Settle(p ledger.VaultPosition, asOf time.Time, schedule []rates.BurnBracket) Settlement {
	elapsed := ElapsedDays(p.StartDate, asOf, p.EndDate)
	yield := Yield(p.Principal, p.DailyRate, elapsed)

	s := Settlement{
		ElapsedDays: elapsed,
		Early:       !p.Matured(asOf),
		BurnRate:    decimal.Zero,
		Yield:       yield,
		Burn:        decimal.Zero,
	}
	if s.Early {
		s.BurnRate = rates.BurnRateFor(schedule, elapsed)
		s.Burn = p.Principal.Mul(s.BurnRate)
	}
	s.PrincipalReturned = p.Principal.Sub(s.Burn)
	s.Total = s.PrincipalReturned.Add(yield)
	return s
}

// Projection is an estimate of plan returns for display.
type Projection struct {
	PlanType    string          `json:"plan_type"`
	Amount      decimal.Decimal `json:"amount"`
	Days        int             `json:"days"`
	DailyYield  decimal.Decimal `json:"daily_yield"`
	TotalYield  decimal.Decimal `json:"total_yield"`
	PlatformFee decimal.Decimal `json:"platform_fee"`
	NetYield    decimal.Decimal `json:"net_yield"`
}

// Project estimates the yield of amount in plan over days (the full term
// when days is not positive or exceeds it).
func Project(planType string, plan rates.VaultPlan, amount decimal.Decimal, days int) Projection {
	if days <= 0 || days > plan.Days {
		days = plan.Days
	}
	total := Yield(amount, plan.DailyRate, days)
	fee := total.Mul(plan.PlatformFee)
	return Projection{
		PlanType:    planType,
		Amount:      amount,
		Days:        days,
		DailyYield:  amount.Mul(plan.DailyRate),
		TotalYield:  total,
		PlatformFee: fee,
		NetYield:    total.Sub(fee),
	}
}
