package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	domain "github.com/axomx/reward-ledger/internal/app/domain/ledger"
	"github.com/axomx/reward-ledger/internal/app/milestone"
	"github.com/axomx/reward-ledger/internal/app/rates"
	"github.com/axomx/reward-ledger/internal/app/services/rewards"
	"github.com/axomx/reward-ledger/internal/app/storage"
)

// PurchaseRequest buys a node membership.
type PurchaseRequest struct {
	Address     string             `json:"address"`
	NodeType    rates.NodeType     `json:"node_type"`
	PaymentMode domain.PaymentMode `json:"payment_mode"`
	TxHash      string             `json:"tx_hash,omitempty"`
}

// MembershipView is a membership with its milestones. Released is the
// package balance released by the check that produced the view.
type MembershipView struct {
	Membership domain.NodeMembership  `json:"membership"`
	Milestones []domain.NodeMilestone `json:"milestones"`
	Released   decimal.Decimal        `json:"released"`
}

// RewardTotals sums everything a wallet has earned.
type RewardTotals struct {
	FixedYield     decimal.Decimal `json:"fixed_yield"`
	PoolDividend   decimal.Decimal `json:"pool_dividend"`
	TeamCommission decimal.Decimal `json:"team_commission"`
	TotalEarnings  decimal.Decimal `json:"total_earnings"`
}

// NodeOverview is the node dashboard.
type NodeOverview struct {
	Nodes   []domain.NodeMembership `json:"nodes"`
	Rewards RewardTotals            `json:"rewards"`
	Pool    domain.NodePool         `json:"pool"`
}

// purchaseTerms resolves the plan and the amount charged now.
func (s *Service) purchaseTerms(req *PurchaseRequest) (rates.NodePlan, decimal.Decimal, error) {
	if req.PaymentMode == "" {
		req.PaymentMode = domain.PaymentFull
	}
	plan, ok := s.table.NodePlan(req.NodeType)
	if !ok || req.NodeType == rates.NodeNone {
		return rates.NodePlan{}, decimal.Zero, validationf("unknown node type %q", req.NodeType)
	}
	switch req.PaymentMode {
	case domain.PaymentFull:
		return plan, plan.Price, nil
	case domain.PaymentEarlyBird:
		charge, _ := s.table.EarlyBirdDeposit(req.NodeType)
		return plan, charge, nil
	}
	return rates.NodePlan{}, decimal.Zero, validationf("unknown payment mode %q", req.PaymentMode)
}

// PurchaseNode records a node purchase. Early bird purchases pay a fraction
// of the price now and unlock earnings through rank milestones; full price
// purchases earn in full from day one.
func (s *Service) PurchaseNode(ctx context.Context, req PurchaseRequest) (membership domain.NodeMembership, err error) {
	start := time.Now()
	defer func() { s.observe("node_purchase", start, err) }()

	plan, charge, err := s.purchaseTerms(&req)
	if err != nil {
		return domain.NodeMembership{}, err
	}
	hash, status, err := s.txHash(req.TxHash)
	if err != nil {
		return domain.NodeMembership{}, err
	}

	var (
		profile domain.Profile
		txn     domain.Transaction
	)
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Repository) error {
		var err error
		if profile, err = s.lockProfile(ctx, tx, req.Address); err != nil {
			return err
		}

		now := s.clock()
		m := domain.NodeMembership{
			ID:               uuid.NewString(),
			ProfileID:        profile.ID,
			NodeType:         req.NodeType,
			Price:            plan.Price,
			PaymentMode:      req.PaymentMode,
			AmountPaid:       charge,
			DailyYield:       plan.DailyYield(),
			WeightMultiplier: plan.WeightMultiplier,
			PoolEligible:     plan.RevenuePoolShare.IsPositive(),
			RatesVersion:     s.table.Version,
			StartDate:        now,
			EndDate:          now.AddDate(0, 0, plan.DurationDays),
			CreatedAt:        now,
			UpdatedAt:        now,
		}

		txn, err = tx.CreateTransaction(ctx, domain.Transaction{
			ID:          uuid.NewString(),
			ProfileID:   profile.ID,
			Type:        domain.TxNodePurchase,
			Token:       domain.DefaultToken,
			Amount:      charge,
			TxHash:      hash,
			Status:      status,
			ReferenceID: m.ID,
			CreatedAt:   now,
		})
		if err != nil {
			return err
		}
		m.PurchaseTxID = txn.ID

		schedule := milestone.Plan(m, s.table.Milestones[req.NodeType])
		m.TotalMilestones = len(schedule)
		m.Status, m.EarningsCapacity = milestone.InitialState(len(schedule))
		if membership, err = tx.CreateMembership(ctx, m, schedule); err != nil {
			return err
		}

		if req.NodeType.Outranks(profile.NodeType) {
			profile.NodeType = req.NodeType
			profile.UpdatedAt = now
			if profile, err = tx.UpdateProfile(ctx, profile); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.NodeMembership{}, translate(err)
	}

	s.log.WithField("wallet", profile.WalletAddress).
		WithField("membership", membership.ID).
		Infof("%s node purchased (%s, paid %s)", req.NodeType, req.PaymentMode, charge)

	s.propagate(ctx, profile, txn)
	return membership, nil
}

// CheckNodeMilestones evaluates every due milestone of the wallet's
// memberships against its current rank. Repeating the check without time
// passing changes nothing.
func (s *Service) CheckNodeMilestones(ctx context.Context, address string) (views []MembershipView, err error) {
	start := time.Now()
	defer func() { s.observe("check_milestones", start, err) }()

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Repository) error {
		views = views[:0]
		profile, err := s.lockProfile(ctx, tx, address)
		if err != nil {
			return err
		}
		memberships, err := tx.ListMemberships(ctx, profile.ID)
		if err != nil {
			return err
		}

		now := s.clock()
		for _, m := range memberships {
			schedule, err := tx.ListMilestones(ctx, m.ID)
			if err != nil {
				return err
			}
			out := milestone.Evaluate(m, schedule, profile.Rank, now)
			for _, evaluated := range out.Evaluated {
				if _, err := tx.UpdateMilestone(ctx, evaluated); err != nil {
					return err
				}
			}
			if out.Membership.Status.Terminal() && !m.Status.Terminal() {
				// fixed yield runs skip terminal memberships, so settle the
				// days earned so far before leaving the earning set
				if _, _, err := rewards.SettleMembership(ctx, tx, out.Membership, now); err != nil {
					return err
				}
			}
			if out.Changed {
				out.Membership.UpdatedAt = now
				if m, err = tx.UpdateMembership(ctx, m, out.Membership); err != nil {
					return err
				}
			}
			if out.Release.IsPositive() {
				if _, err := tx.CreateTransaction(ctx, domain.Transaction{
					ID:          uuid.NewString(),
					ProfileID:   profile.ID,
					Type:        domain.TxPackageRelease,
					Token:       domain.DefaultToken,
					Amount:      out.Release,
					Status:      domain.TxPending,
					ReferenceID: m.ID,
					CreatedAt:   now,
				}); err != nil {
					return err
				}
			}
			views = append(views, MembershipView{
				Membership: m,
				Milestones: mergeMilestones(schedule, out.Evaluated),
				Released:   out.Release,
			})
		}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return views, nil
}

func mergeMilestones(schedule, evaluated []domain.NodeMilestone) []domain.NodeMilestone {
	updated := make(map[string]domain.NodeMilestone, len(evaluated))
	for _, e := range evaluated {
		updated[e.ID] = e
	}
	out := make([]domain.NodeMilestone, len(schedule))
	for i, m := range schedule {
		if e, ok := updated[m.ID]; ok {
			m = e
		}
		out[i] = m
	}
	return out
}

// GetNodeOverview returns the wallet's memberships, reward totals and the
// node pool.
func (s *Service) GetNodeOverview(ctx context.Context, address string) (NodeOverview, error) {
	profile, err := s.profileByAddress(ctx, s.store, address)
	if err != nil {
		return NodeOverview{}, err
	}
	nodes, err := s.store.ListMemberships(ctx, profile.ID)
	if err != nil {
		return NodeOverview{}, translate(err)
	}
	earnings, err := s.store.ListNodeEarnings(ctx, profile.ID)
	if err != nil {
		return NodeOverview{}, translate(err)
	}
	commissions, err := s.store.ListCommissions(ctx, profile.ID)
	if err != nil {
		return NodeOverview{}, translate(err)
	}
	pool, err := s.store.GetNodePool(ctx)
	if err != nil {
		return NodeOverview{}, translate(err)
	}

	totals := RewardTotals{FixedYield: decimal.Zero, PoolDividend: decimal.Zero, TeamCommission: decimal.Zero}
	for _, e := range earnings {
		switch e.Type {
		case domain.RewardFixedYield:
			totals.FixedYield = totals.FixedYield.Add(e.Amount)
		case domain.RewardPoolDividend:
			totals.PoolDividend = totals.PoolDividend.Add(e.Amount)
		}
	}
	for _, c := range commissions {
		totals.TeamCommission = totals.TeamCommission.Add(c.Amount)
	}
	totals.TotalEarnings = totals.FixedYield.Add(totals.PoolDividend).Add(totals.TeamCommission)

	if nodes == nil {
		nodes = []domain.NodeMembership{}
	}
	return NodeOverview{Nodes: nodes, Rewards: totals, Pool: pool}, nil
}

// ListNodeEarnings returns every fixed yield and dividend record of the
// wallet.
func (s *Service) ListNodeEarnings(ctx context.Context, address string) ([]domain.NodeEarningsRecord, error) {
	profile, err := s.profileByAddress(ctx, s.store, address)
	if err != nil {
		return nil, err
	}
	records, err := s.store.ListNodeEarnings(ctx, profile.ID)
	return records, translate(err)
}
