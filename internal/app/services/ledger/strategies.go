package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	domain "github.com/axomx/reward-ledger/internal/app/domain/ledger"
	"github.com/axomx/reward-ledger/internal/app/rates"
	"github.com/axomx/reward-ledger/internal/app/storage"
)

// StrategyRequest allocates capital to a catalog strategy.
type StrategyRequest struct {
	Address       string               `json:"address"`
	StrategyID    string               `json:"strategy_id"`
	Capital       decimal.Decimal      `json:"capital"`
	ExecutionMode domain.ExecutionMode `json:"execution_mode,omitempty"`
	TxHash        string               `json:"tx_hash,omitempty"`
}

// StrategyView is a catalog entry with the capital currently allocated to it.
type StrategyView struct {
	ID string `json:"id"`
	rates.Strategy
	TotalAUM decimal.Decimal `json:"total_aum"`
}

// StrategyOverview is the strategy catalog with platform-wide aggregates.
type StrategyOverview struct {
	Strategies []StrategyView  `json:"strategies"`
	TotalAUM   decimal.Decimal `json:"total_aum"`
	AvgWinRate decimal.Decimal `json:"avg_win_rate"`
	AvgReturn  decimal.Decimal `json:"avg_monthly_return"`
}

func (s *Service) strategyTerms(req *StrategyRequest) (rates.Strategy, error) {
	if req.ExecutionMode == "" {
		req.ExecutionMode = domain.ExecutionAuto
	}
	if !req.ExecutionMode.Valid() {
		return rates.Strategy{}, validationf("unknown execution mode %q", req.ExecutionMode)
	}
	st, ok := s.table.Strategy(req.StrategyID)
	if !ok {
		return rates.Strategy{}, validationf("unknown strategy %q", req.StrategyID)
	}
	if !req.Capital.IsPositive() || req.Capital.LessThan(st.MinCapital) {
		return rates.Strategy{}, validationf("capital %s below strategy minimum %s", req.Capital, st.MinCapital)
	}
	return st, nil
}

// SubscribeStrategy allocates capital to a strategy. VIP-only strategies
// require a current VIP subscription.
func (s *Service) SubscribeStrategy(ctx context.Context, req StrategyRequest) (sub domain.StrategySubscription, err error) {
	start := time.Now()
	defer func() { s.observe("subscribe_strategy", start, err) }()

	st, err := s.strategyTerms(&req)
	if err != nil {
		return domain.StrategySubscription{}, err
	}
	hash, status, err := s.txHash(req.TxHash)
	if err != nil {
		return domain.StrategySubscription{}, err
	}

	var profile domain.Profile
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Repository) error {
		var err error
		if profile, err = s.lockProfile(ctx, tx, req.Address); err != nil {
			return err
		}
		now := s.clock()
		if st.VipOnly && !profile.ActiveVip(now) {
			return validationf("strategy %s requires an active vip subscription", req.StrategyID)
		}

		subID := uuid.NewString()
		txn, err := tx.CreateTransaction(ctx, domain.Transaction{
			ID:          uuid.NewString(),
			ProfileID:   profile.ID,
			Type:        domain.TxStrategySubscription,
			Token:       domain.DefaultToken,
			Amount:      req.Capital,
			TxHash:      hash,
			Status:      status,
			ReferenceID: subID,
			CreatedAt:   now,
		})
		if err != nil {
			return err
		}
		sub, err = tx.CreateStrategySubscription(ctx, domain.StrategySubscription{
			ID:               subID,
			ProfileID:        profile.ID,
			StrategyID:       req.StrategyID,
			ExecutionMode:    req.ExecutionMode,
			AllocatedCapital: req.Capital,
			Leverage:         st.Leverage,
			MaxDrawdown:      st.MaxDrawdown,
			CurrentPnl:       decimal.Zero,
			Status:           domain.SubscriptionActive,
			RatesVersion:     s.table.Version,
			TxID:             txn.ID,
			CreatedAt:        now,
		})
		return err
	})
	if err != nil {
		return domain.StrategySubscription{}, translate(err)
	}

	s.log.WithField("wallet", profile.WalletAddress).
		WithField("subscription", sub.ID).
		Infof("strategy %s subscribed with %s (%s)", req.StrategyID, req.Capital, req.ExecutionMode)
	return sub, nil
}

// ListStrategySubscriptions returns the wallet's strategy subscriptions.
func (s *Service) ListStrategySubscriptions(ctx context.Context, address string) ([]domain.StrategySubscription, error) {
	profile, err := s.profileByAddress(ctx, s.store, address)
	if err != nil {
		return nil, err
	}
	subs, err := s.store.ListStrategySubscriptions(ctx, profile.ID)
	if err != nil {
		return nil, translate(err)
	}
	if subs == nil {
		subs = []domain.StrategySubscription{}
	}
	return subs, nil
}

// GetStrategyOverview lists the catalog sorted by id, each strategy carrying
// the capital of its ACTIVE subscriptions.
func (s *Service) GetStrategyOverview(ctx context.Context) (StrategyOverview, error) {
	aum, err := s.store.StrategyAUM(ctx)
	if err != nil {
		return StrategyOverview{}, translate(err)
	}

	out := StrategyOverview{
		Strategies: make([]StrategyView, 0, len(s.table.Strategies)),
		TotalAUM:   decimal.Zero,
		AvgWinRate: decimal.Zero,
		AvgReturn:  decimal.Zero,
	}
	for id, st := range s.table.Strategies {
		total, ok := aum[id]
		if !ok {
			total = decimal.Zero
		}
		out.Strategies = append(out.Strategies, StrategyView{ID: id, Strategy: st, TotalAUM: total})
		out.TotalAUM = out.TotalAUM.Add(total)
		out.AvgWinRate = out.AvgWinRate.Add(st.WinRate)
		out.AvgReturn = out.AvgReturn.Add(st.MonthlyReturn)
	}
	sort.Slice(out.Strategies, func(i, j int) bool { return out.Strategies[i].ID < out.Strategies[j].ID })
	if n := len(out.Strategies); n > 0 {
		count := decimal.NewFromInt(int64(n))
		out.AvgWinRate = out.AvgWinRate.Div(count)
		out.AvgReturn = out.AvgReturn.Div(count)
	}
	return out, nil
}
