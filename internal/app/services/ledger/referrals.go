package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/axomx/reward-ledger/internal/app/commission"
	domain "github.com/axomx/reward-ledger/internal/app/domain/ledger"
	"github.com/axomx/reward-ledger/internal/app/metrics"
	"github.com/axomx/reward-ledger/internal/app/rates"
	"github.com/axomx/reward-ledger/internal/app/storage"
)

// referralTreeLevels is how many levels GetReferralTree returns in full.
const referralTreeLevels = 2

// CommissionSummary totals a wallet's commission income.
type CommissionSummary struct {
	TotalCommission     decimal.Decimal           `json:"total_commission"`
	DirectReferralTotal decimal.Decimal           `json:"direct_referral_total"`
	DifferentialTotal   decimal.Decimal           `json:"differential_total"`
	Records             []domain.CommissionRecord `json:"records"`
}

// ReferralEntry is one referred wallet.
type ReferralEntry struct {
	ID             string          `json:"id"`
	WalletAddress  string          `json:"wallet_address"`
	Rank           rates.Rank      `json:"rank"`
	NodeType       rates.NodeType  `json:"node_type"`
	TotalDeposited decimal.Decimal `json:"total_deposited"`
	JoinedAt       time.Time       `json:"joined_at"`
	SubReferrals   []ReferralEntry `json:"sub_referrals,omitempty"`
}

// ReferralTree is a wallet's downline: two levels in full, plus the size of
// the whole team.
type ReferralTree struct {
	Referrals   []ReferralEntry `json:"referrals"`
	DirectCount int             `json:"direct_count"`
	TeamSize    int             `json:"team_size"`
}

// propagate credits the referral chain of source for txn. It runs in its own
// unit of work after txn has committed; failures are logged and counted but
// never reach the caller.
func (s *Service) propagate(ctx context.Context, source domain.Profile, txn domain.Transaction) {
	if !source.HasReferrer() {
		return
	}
	ctx = context.WithoutCancel(ctx)
	log := s.log.WithField("source_tx", txn.ID).WithField("wallet", source.WalletAddress)

	var written []domain.CommissionRecord
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Repository) error {
		written = written[:0]
		res := s.propagator.Propagate(ctx, tx, commission.Event{
			SourceTxID: txn.ID,
			Source:     source,
			Amount:     txn.Amount,
			At:         s.clock(),
		})
		switch {
		case errors.Is(res.Err, commission.ErrReferralCycle):
			log.WithError(res.Err).Warn("referral chain walk stopped")
			metrics.RecordCommissionFailure("cycle")
		case res.Err != nil:
			log.WithError(res.Err).Warn("referral chain walk stopped")
			metrics.RecordCommissionFailure("lookup")
		case res.Truncated:
			log.Warn("referral chain exceeds max depth; walk truncated")
			metrics.RecordCommissionFailure("depth")
		}

		for _, rec := range res.Records {
			ok, err := tx.CreateCommission(ctx, rec)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if _, err := tx.AddProfileBalances(ctx, rec.RecipientID, storage.BalanceDelta{ReferralEarnings: rec.Amount}); err != nil {
				return err
			}
			written = append(written, rec)
		}
		return nil
	})
	if err != nil {
		log.WithError(err).Error("commission propagation failed; deposit kept")
		metrics.RecordCommissionFailure("store")
		return
	}

	total := decimal.Zero
	for _, rec := range written {
		metrics.RecordCommission(string(rec.Type))
		total = total.Add(rec.Amount)
	}
	if len(written) > 0 {
		log.Infof("commission %s credited to %d ancestors", total, len(written))
	}
}

// GetCommissionSummary returns the wallet's commission records and totals.
func (s *Service) GetCommissionSummary(ctx context.Context, address string) (CommissionSummary, error) {
	profile, err := s.profileByAddress(ctx, s.store, address)
	if err != nil {
		return CommissionSummary{}, err
	}
	records, err := s.store.ListCommissions(ctx, profile.ID)
	if err != nil {
		return CommissionSummary{}, translate(err)
	}

	sum := CommissionSummary{
		TotalCommission:     decimal.Zero,
		DirectReferralTotal: decimal.Zero,
		DifferentialTotal:   decimal.Zero,
		Records:             records,
	}
	if sum.Records == nil {
		sum.Records = []domain.CommissionRecord{}
	}
	for _, r := range records {
		sum.TotalCommission = sum.TotalCommission.Add(r.Amount)
		if r.Type == domain.CommissionDirect {
			sum.DirectReferralTotal = sum.DirectReferralTotal.Add(r.Amount)
		} else {
			sum.DifferentialTotal = sum.DifferentialTotal.Add(r.Amount)
		}
	}
	return sum, nil
}

// GetReferralTree walks the wallet's whole downline. Profiles already
// visited are skipped, so a corrupt cyclic chain still terminates.
func (s *Service) GetReferralTree(ctx context.Context, address string) (ReferralTree, error) {
	root, err := s.profileByAddress(ctx, s.store, address)
	if err != nil {
		return ReferralTree{}, err
	}

	visited := map[string]bool{root.ID: true}
	var build func(id string, level int) ([]ReferralEntry, int, error)
	build = func(id string, level int) ([]ReferralEntry, int, error) {
		children, err := s.store.ListReferrals(ctx, id)
		if err != nil {
			return nil, 0, err
		}
		var entries []ReferralEntry
		size := 0
		for _, child := range children {
			if visited[child.ID] {
				continue
			}
			visited[child.ID] = true
			subs, subSize, err := build(child.ID, level+1)
			if err != nil {
				return nil, 0, err
			}
			size += 1 + subSize
			if level < referralTreeLevels {
				entry := entryFor(child)
				if level+1 < referralTreeLevels {
					entry.SubReferrals = subs
				}
				entries = append(entries, entry)
			}
		}
		return entries, size, nil
	}

	entries, size, err := build(root.ID, 0)
	if err != nil {
		return ReferralTree{}, translate(err)
	}
	if entries == nil {
		entries = []ReferralEntry{}
	}
	return ReferralTree{Referrals: entries, DirectCount: len(entries), TeamSize: size}, nil
}

func entryFor(p domain.Profile) ReferralEntry {
	return ReferralEntry{
		ID:             p.ID,
		WalletAddress:  p.WalletAddress,
		Rank:           p.Rank,
		NodeType:       p.NodeType,
		TotalDeposited: p.TotalDeposited,
		JoinedAt:       p.CreatedAt,
	}
}
