// Package commission computes referral commissions for a qualifying deposit
// or node purchase.
//
// The immediate referrer earns a direct bonus keyed by the node tier they
// own. Ancestors beyond it earn differential commission: the amount times the
// gap between their rank rate and the highest rate already paid below them.
// An ancestor whose rate does not exceed that watermark earns nothing and the
// walk continues upward.
package commission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/axomx/reward-ledger/internal/app/domain/ledger"
	"github.com/axomx/reward-ledger/internal/app/rates"
)

// ErrReferralCycle is reported when the referrer chain revisits a profile.
var ErrReferralCycle = errors.New("referral cycle detected")

// ProfileReader loads an ancestor profile by id.
type ProfileReader interface {
	GetProfile(ctx context.Context, id string) (ledger.Profile, error)
}

// ProfileReaderFunc adapts a function to ProfileReader.
type ProfileReaderFunc func(ctx context.Context, id string) (ledger.Profile, error)

func (f ProfileReaderFunc) GetProfile(ctx context.Context, id string) (ledger.Profile, error) {
	return f(ctx, id)
}

// Event is a commission-eligible transaction.
type Event struct {
	SourceTxID string
	Source     ledger.Profile
	Amount     decimal.Decimal
	At         time.Time
}

// Result carries the computed credits. Err is set when the walk stopped early
// because of a cycle or a lookup failure; Records computed before that point
// remain valid.
type Result struct {
	Records   []ledger.CommissionRecord
	Truncated bool
	Err       error
}

// Total sums every credit.
func (r Result) Total() decimal.Decimal {
	total := decimal.Zero
	for _, rec := range r.Records {
		total = total.Add(rec.Amount)
	}
	return total
}

// Propagator walks the referral chain.
type Propagator struct {
	table    *rates.Table
	maxDepth int
	cap      decimal.Decimal
}

// NewPropagator returns a propagator using table's rates. The total rate paid
// per event is capped at the table's top rank rate.
func NewPropagator(table *rates.Table) *Propagator {
	depth := table.MaxReferralDepth
	if depth <= 0 {
		depth = 10
	}
	return &Propagator{table: table, maxDepth: depth, cap: table.TopRankRate()}
}

// Propagate computes credits for ev without persisting anything.
func (p *Propagator) Propagate(ctx context.Context, reader ProfileReader, ev Event) Result {
	var res Result
	if !ev.Source.HasReferrer() || !ev.Amount.IsPositive() {
		return res
	}

	visited := map[string]bool{ev.Source.ID: true}
	paid := p.clamp(p.table.RankRate(ev.Source.Rank))
	next := *ev.Source.ReferrerID

	for depth := 1; next != ""; depth++ {
		if depth > p.maxDepth {
			res.Truncated = true
			break
		}
		if visited[next] {
			res.Err = fmt.Errorf("%w at profile %s", ErrReferralCycle, next)
			break
		}
		visited[next] = true

		ancestor, err := reader.GetProfile(ctx, next)
		if err != nil {
			res.Err = fmt.Errorf("load ancestor %s: %w", next, err)
			break
		}

		if depth == 1 {
			direct := p.clamp(p.table.DirectRate(ancestor.NodeType))
			if direct.IsPositive() {
				res.Records = append(res.Records, p.record(ev, ancestor, ledger.CommissionDirect, depth, direct))
			}
			paid = decimal.Max(paid, direct, p.clamp(p.table.RankRate(ancestor.Rank)))
		} else {
			rate := p.clamp(p.table.RankRate(ancestor.Rank))
			if rate.GreaterThan(paid) {
				res.Records = append(res.Records, p.record(ev, ancestor, ledger.CommissionDifferential, depth, rate.Sub(paid)))
				paid = rate
			}
		}

		if paid.GreaterThanOrEqual(p.cap) || !ancestor.HasReferrer() {
			break
		}
		next = *ancestor.ReferrerID
	}
	return res
}

func (p *Propagator) clamp(rate decimal.Decimal) decimal.Decimal {
	if rate.GreaterThan(p.cap) {
		return p.cap
	}
	return rate
}

func (p *Propagator) record(ev Event, to ledger.Profile, kind ledger.CommissionType, depth int, rate decimal.Decimal) ledger.CommissionRecord {
	return ledger.CommissionRecord{
		ID:           uuid.NewString(),
		RecipientID:  to.ID,
		SourceTxID:   ev.SourceTxID,
		SourceID:     ev.Source.ID,
		SourceWallet: ev.Source.WalletAddress,
		SourceRank:   ev.Source.Rank,
		Type:         kind,
		Depth:        depth,
		Rate:         rate,
		Amount:       ev.Amount.Mul(rate),
		CreatedAt:    ev.At,
	}
}
