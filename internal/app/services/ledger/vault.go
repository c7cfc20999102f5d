package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/axomx/reward-ledger/internal/app/accrual"
	domain "github.com/axomx/reward-ledger/internal/app/domain/ledger"
	"github.com/axomx/reward-ledger/internal/app/rates"
	"github.com/axomx/reward-ledger/internal/app/storage"
)

// DepositRequest opens a vault position.
type DepositRequest struct {
	Address  string          `json:"address"`
	PlanType string          `json:"plan_type"`
	Amount   decimal.Decimal `json:"amount"`
	TxHash   string          `json:"tx_hash,omitempty"`
}

// WithdrawResult is the priced withdrawal together with the closed position
// and its WITHDRAW transaction.
type WithdrawResult struct {
	accrual.Settlement
	Position    domain.VaultPosition `json:"position"`
	Transaction domain.Transaction   `json:"transaction"`
}

// PositionView is a position with its yield accrued so far.
type PositionView struct {
	domain.VaultPosition
	AccruedYield decimal.Decimal `json:"accrued_yield"`
	Matured      bool            `json:"matured"`
}

func (s *Service) depositPlan(req DepositRequest) (rates.VaultPlan, error) {
	plan, ok := s.table.VaultPlan(req.PlanType)
	if !ok {
		return rates.VaultPlan{}, validationf("unknown vault plan %q", req.PlanType)
	}
	if req.Amount.LessThan(plan.MinAmount) || !req.Amount.IsPositive() {
		return rates.VaultPlan{}, validationf("amount %s below plan minimum %s", req.Amount, plan.MinAmount)
	}
	return plan, nil
}

// DepositToVault records a deposit into a fixed-term plan. The plan's rate
// and term are copied onto the position.
func (s *Service) DepositToVault(ctx context.Context, req DepositRequest) (pos domain.VaultPosition, err error) {
	start := time.Now()
	defer func() { s.observe("vault_deposit", start, err) }()

	plan, err := s.depositPlan(req)
	if err != nil {
		return domain.VaultPosition{}, err
	}
	hash, status, err := s.txHash(req.TxHash)
	if err != nil {
		return domain.VaultPosition{}, err
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
		positionID := uuid.NewString()
		txn, err = tx.CreateTransaction(ctx, domain.Transaction{
			ID:          uuid.NewString(),
			ProfileID:   profile.ID,
			Type:        domain.TxDeposit,
			Token:       domain.DefaultToken,
			Amount:      req.Amount,
			TxHash:      hash,
			Status:      status,
			ReferenceID: positionID,
			CreatedAt:   now,
		})
		if err != nil {
			return err
		}

		pos, err = tx.CreatePosition(ctx, domain.VaultPosition{
			ID:           positionID,
			ProfileID:    profile.ID,
			PlanType:     req.PlanType,
			Principal:    req.Amount,
			DailyRate:    plan.DailyRate,
			PlanDays:     plan.Days,
			RatesVersion: s.table.Version,
			StartDate:    now,
			EndDate:      now.AddDate(0, 0, plan.Days),
			Status:       domain.PositionActive,
			DepositTxID:  txn.ID,
			CreatedAt:    now,
		})
		if err != nil {
			return err
		}

		profile, err = tx.AddProfileBalances(ctx, profile.ID, storage.BalanceDelta{Deposited: req.Amount})
		return err
	})
	if err != nil {
		return domain.VaultPosition{}, translate(err)
	}

	s.log.WithField("wallet", profile.WalletAddress).
		WithField("position", pos.ID).
		Infof("vault deposit %s into %s", req.Amount, req.PlanType)

	if req.Amount.GreaterThanOrEqual(s.table.CommissionMinDeposit) {
		s.propagate(ctx, profile, txn)
	}
	return pos, nil
}

// WithdrawFromVault closes an ACTIVE position. Before maturity the burn rate
// for the elapsed days is applied to principal; yield is always paid.
func (s *Service) WithdrawFromVault(ctx context.Context, address, positionID string) (res WithdrawResult, err error) {
	start := time.Now()
	defer func() { s.observe("vault_withdraw", start, err) }()

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Repository) error {
		profile, err := s.lockProfile(ctx, tx, address)
		if err != nil {
			return err
		}
		pos, err := tx.GetPosition(ctx, positionID)
		if err != nil {
			return err
		}
		if pos.ProfileID != profile.ID {
			return storage.ErrNotFound
		}
		if pos.Status != domain.PositionActive {
			return storage.ErrConflict
		}

		now := s.clock()
		res.Settlement = accrual.Settle(pos, now, s.table.BurnSchedule)
		status := domain.PositionCompleted
		if res.Early {
			status = domain.PositionWithdrawn
		}

		if res.Position, err = tx.ClosePosition(ctx, pos.ID, status, now); err != nil {
			return err
		}
		res.Transaction, err = tx.CreateTransaction(ctx, domain.Transaction{
			ID:          uuid.NewString(),
			ProfileID:   profile.ID,
			Type:        domain.TxWithdraw,
			Token:       domain.DefaultToken,
			Amount:      res.Total,
			Status:      domain.TxPending,
			ReferenceID: pos.ID,
			CreatedAt:   now,
		})
		if err != nil {
			return err
		}
		_, err = tx.AddProfileBalances(ctx, profile.ID, storage.BalanceDelta{Withdrawn: res.PrincipalReturned})
		return err
	})
	if err != nil {
		return WithdrawResult{}, translate(err)
	}

	s.log.WithField("position", res.Position.ID).
		WithField("early", res.Early).
		Infof("vault withdrawal %s (yield %s, burn %s)", res.Total, res.Yield, res.Burn)
	return res, nil
}

// ListVaultPositions returns the wallet's positions with yield accrued as of
// now.
func (s *Service) ListVaultPositions(ctx context.Context, address string) ([]PositionView, error) {
	profile, err := s.profileByAddress(ctx, s.store, address)
	if err != nil {
		return nil, err
	}
	positions, err := s.store.ListPositions(ctx, profile.ID)
	if err != nil {
		return nil, translate(err)
	}

	now := s.clock()
	views := make([]PositionView, 0, len(positions))
	for _, p := range positions {
		asOf := now
		if p.Status != domain.PositionActive {
			asOf = p.EndDate
			if p.ClosedAt != nil {
				asOf = *p.ClosedAt
			}
		}
		view := PositionView{VaultPosition: p, AccruedYield: accrual.Accrue(p, asOf), Matured: p.Matured(now)}
		views = append(views, view)
	}
	return views, nil
}

// VaultOverview is the platform-wide vault summary.
type VaultOverview struct {
	TVL             decimal.Decimal            `json:"tvl"`
	ActivePositions int                        `json:"active_positions"`
	Depositors      int                        `json:"depositors"`
	ByPlan          map[string]decimal.Decimal `json:"by_plan"`
}

// GetVaultOverview sums the principal of every ACTIVE position.
func (s *Service) GetVaultOverview(ctx context.Context) (VaultOverview, error) {
	totals, err := s.store.VaultTotals(ctx)
	if err != nil {
		return VaultOverview{}, translate(err)
	}
	return VaultOverview{
		TVL:             totals.Locked,
		ActivePositions: totals.ActivePositions,
		Depositors:      totals.Depositors,
		ByPlan:          totals.ByPlan,
	}, nil
}

// ProjectYield estimates what amount earns in planType over days.
func (s *Service) ProjectYield(planType string, amount decimal.Decimal, days int) (accrual.Projection, error) {
	plan, ok := s.table.VaultPlan(planType)
	if !ok {
		return accrual.Projection{}, validationf("unknown vault plan %q", planType)
	}
	if !amount.IsPositive() {
		return accrual.Projection{}, validationf("amount must be positive")
	}
	return accrual.Project(planType, plan, amount, days), nil
}
