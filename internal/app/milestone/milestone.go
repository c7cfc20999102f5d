// Package milestone drives a node membership through its rank milestones.
//
// A milestone is evaluated once its deadline has passed: ACHIEVED when the
// owner's rank meets the requirement, FAILED otherwise. Earnings capacity is
// the share of milestones achieved before the first failure; a failure halts
// further unlocking but later milestones are still recorded. Capacity never
// decreases.
package milestone

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/axomx/reward-ledger/internal/app/domain/ledger"
	"github.com/axomx/reward-ledger/internal/app/rates"
)

// Plan builds the milestone schedule for a new membership. Full-price
// purchases carry no milestones.
func Plan(m ledger.NodeMembership, schedule []rates.Milestone) []ledger.NodeMilestone {
	if m.PaymentMode != ledger.PaymentEarlyBird {
		return nil
	}
	out := make([]ledger.NodeMilestone, 0, len(schedule))
	for i, s := range schedule {
		out = append(out, ledger.NodeMilestone{
			ID:           uuid.NewString(),
			MembershipID: m.ID,
			Ordinal:      i + 1,
			RequiredRank: s.RequiredRank,
			Unlocks:      s.Unlocks,
			Deadline:     m.StartDate.AddDate(0, 0, s.Days),
			Status:       ledger.MilestonePending,
		})
	}
	return out
}

// InitialState returns status and capacity for a membership with total
// milestones.
func InitialState(total int) (ledger.MembershipStatus, decimal.Decimal) {
	if total == 0 {
		return ledger.MembershipActive, decimal.NewFromInt(1)
	}
	return ledger.MembershipPendingMilestones, decimal.Zero
}

// Outcome is the result of one evaluation pass.
type Outcome struct {
	Membership ledger.NodeMembership
	// Evaluated holds only milestones whose status changed in this pass.
	Evaluated []ledger.NodeMilestone
	// Release is the package balance to record, zero when nothing is due.
	Release decimal.Decimal
	Changed bool
}

// Evaluate applies every milestone whose deadline is at or before now. It is
// idempotent: a second call with the same now reports Changed == false.
// milestones must belong to m and be ordered by Ordinal.
func Evaluate(m ledger.NodeMembership, milestones []ledger.NodeMilestone, rank rates.Rank, now time.Time) Outcome {
	out := Outcome{Membership: m, Release: decimal.Zero}
	if m.Status.Terminal() {
		return out
	}

	ms := make([]ledger.NodeMilestone, len(milestones))
	copy(ms, milestones)

	for i := range ms {
		if ms[i].Status != ledger.MilestonePending || ms[i].Deadline.After(now) {
			continue
		}
		if rank.AtLeast(ms[i].RequiredRank) {
			ms[i].Status = ledger.MilestoneAchieved
		} else {
			ms[i].Status = ledger.MilestoneFailed
		}
		at := now
		ms[i].EvaluatedAt = &at
		out.Evaluated = append(out.Evaluated, ms[i])
	}

	next := m
	stage, failed, unlocked := 0, 0, 0
	halted := false
	releaseDue := false
	for _, item := range ms {
		switch item.Status {
		case ledger.MilestoneAchieved:
			stage++
			if !halted {
				unlocked++
				if item.Unlocks == rates.UnlockEarningsAndPackage {
					releaseDue = true
				}
			}
		case ledger.MilestoneFailed:
			stage++
			failed++
			halted = true
		}
	}
	next.MilestoneStage = stage
	next.UnlockHalted = halted

	total := len(ms)
	if total > 0 {
		capacity := decimal.NewFromInt(int64(unlocked)).Div(decimal.NewFromInt(int64(total)))
		if capacity.GreaterThan(next.EarningsCapacity) {
			next.EarningsCapacity = capacity
		}
	}

	if releaseDue && !next.PackageReleased && next.PaymentMode == ledger.PaymentEarlyBird {
		next.PackageReleased = true
		out.Release = next.PackageBalance()
	}

	switch {
	case total > 0 && failed == total:
		next.Status = ledger.MembershipCancelled
	case !now.Before(next.EndDate) && stage == total:
		next.Status = ledger.MembershipCompleted
	case !now.Before(next.EndDate):
		next.Status = ledger.MembershipExpired
	case stage == total:
		next.Status = ledger.MembershipActive
	}

	out.Changed = len(out.Evaluated) > 0 ||
		next.Status != m.Status ||
		next.MilestoneStage != m.MilestoneStage ||
		!next.EarningsCapacity.Equal(m.EarningsCapacity) ||
		next.UnlockHalted != m.UnlockHalted ||
		next.PackageReleased != m.PackageReleased
	if out.Changed {
		next.UpdatedAt = now
	}
	out.Membership = next
	return out
}
