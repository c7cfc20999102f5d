package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	domain "github.com/axomx/reward-ledger/internal/app/domain/ledger"
	"github.com/axomx/reward-ledger/internal/app/storage"
)

// payoutRatePlaces is the precision of the insurance pool payout rate.
const payoutRatePlaces = 6

// HedgeRequest buys hedge protection.
type HedgeRequest struct {
	Address string          `json:"address"`
	Amount  decimal.Decimal `json:"amount"`
	TxHash  string          `json:"tx_hash,omitempty"`
}

// InsurancePoolView is the public state of the insurance pool. PayoutRate is
// the share of everything paid in that has been paid out on claims.
type InsurancePoolView struct {
	PoolSize      decimal.Decimal `json:"pool_size"`
	TotalPolicies int             `json:"total_policies"`
	TotalPaid     decimal.Decimal `json:"total_paid"`
	PayoutRate    decimal.Decimal `json:"payout_rate"`
	TotalPremiums decimal.Decimal `json:"total_premiums"`
	TotalFunded   decimal.Decimal `json:"total_funded"`
}

func (s *Service) hedgeAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || amount.LessThan(s.table.Hedge.MinAmount) {
		return validationf("hedge amount %s below minimum %s", amount, s.table.Hedge.MinAmount)
	}
	return nil
}

// PurchaseHedge records a hedge protection purchase. The premium is paid
// into the insurance pool.
func (s *Service) PurchaseHedge(ctx context.Context, req HedgeRequest) (purchase domain.InsurancePurchase, err error) {
	start := time.Now()
	defer func() { s.observe("purchase_hedge", start, err) }()

	if err := s.hedgeAmount(req.Amount); err != nil {
		return domain.InsurancePurchase{}, err
	}
	hash, status, err := s.txHash(req.TxHash)
	if err != nil {
		return domain.InsurancePurchase{}, err
	}

	var profile domain.Profile
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Repository) error {
		var err error
		if profile, err = s.lockProfile(ctx, tx, req.Address); err != nil {
			return err
		}
		now := s.clock()
		purchaseID := uuid.NewString()
		txn, err := tx.CreateTransaction(ctx, domain.Transaction{
			ID:          uuid.NewString(),
			ProfileID:   profile.ID,
			Type:        domain.TxHedgePurchase,
			Token:       domain.DefaultToken,
			Amount:      req.Amount,
			TxHash:      hash,
			Status:      status,
			ReferenceID: purchaseID,
			CreatedAt:   now,
		})
		if err != nil {
			return err
		}
		purchase, err = tx.CreateInsurancePurchase(ctx, domain.InsurancePurchase{
			ID:        purchaseID,
			ProfileID: profile.ID,
			Amount:    req.Amount,
			Payout:    decimal.Zero,
			Status:    domain.InsuranceActive,
			TxID:      txn.ID,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}
		_, err = tx.AdjustInsurancePool(ctx, storage.InsuranceDelta{
			Premiums: req.Amount,
			Funded:   decimal.Zero,
			Paid:     decimal.Zero,
		})
		return err
	})
	if err != nil {
		return domain.InsurancePurchase{}, translate(err)
	}

	s.log.WithField("wallet", profile.WalletAddress).
		WithField("purchase", purchase.ID).
		Infof("hedge purchased for %s", req.Amount)
	return purchase, nil
}

// ListHedgePurchases returns the wallet's hedge purchases.
func (s *Service) ListHedgePurchases(ctx context.Context, address string) ([]domain.InsurancePurchase, error) {
	profile, err := s.profileByAddress(ctx, s.store, address)
	if err != nil {
		return nil, err
	}
	purchases, err := s.store.ListInsurancePurchases(ctx, profile.ID)
	if err != nil {
		return nil, translate(err)
	}
	if purchases == nil {
		purchases = []domain.InsurancePurchase{}
	}
	return purchases, nil
}

// PayHedgeClaim settles an ACTIVE hedge purchase, paying payout out of the
// insurance pool to the holder. A purchase is paid at most once, and never
// beyond the pool balance.
func (s *Service) PayHedgeClaim(ctx context.Context, purchaseID string, payout decimal.Decimal) (purchase domain.InsurancePurchase, err error) {
	start := time.Now()
	defer func() { s.observe("hedge_payout", start, err) }()

	if !payout.IsPositive() {
		return domain.InsurancePurchase{}, validationf("payout must be positive")
	}
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx storage.Repository) error {
		pool, err := tx.GetInsurancePool(ctx)
		if err != nil {
			return err
		}
		if payout.GreaterThan(pool.Balance) {
			return validationf("payout %s exceeds insurance pool balance %s", payout, pool.Balance)
		}
		now := s.clock()
		if purchase, err = tx.ClaimInsurancePurchase(ctx, purchaseID, payout, now); err != nil {
			return err
		}
		if _, err = tx.AdjustInsurancePool(ctx, storage.InsuranceDelta{
			Premiums: decimal.Zero,
			Funded:   decimal.Zero,
			Paid:     payout,
		}); err != nil {
			return err
		}
		_, err = tx.CreateTransaction(ctx, domain.Transaction{
			ID:          uuid.NewString(),
			ProfileID:   purchase.ProfileID,
			Type:        domain.TxHedgePayout,
			Token:       domain.DefaultToken,
			Amount:      payout,
			Status:      domain.TxPending,
			ReferenceID: purchase.ID,
			CreatedAt:   now,
		})
		return err
	})
	if err != nil {
		return domain.InsurancePurchase{}, translate(err)
	}
	s.log.WithField("purchase", purchase.ID).Infof("hedge claim paid: %s", payout)
	return purchase, nil
}

// GetInsurancePool returns the insurance pool and its policy count.
func (s *Service) GetInsurancePool(ctx context.Context) (InsurancePoolView, error) {
	pool, err := s.store.GetInsurancePool(ctx)
	if err != nil {
		return InsurancePoolView{}, translate(err)
	}
	policies, err := s.store.CountInsurancePurchases(ctx)
	if err != nil {
		return InsurancePoolView{}, translate(err)
	}

	rate := decimal.Zero
	if in := pool.TotalPremiums.Add(pool.TotalFunded); in.IsPositive() {
		rate = pool.TotalPaid.Div(in).Round(payoutRatePlaces)
	}
	return InsurancePoolView{
		PoolSize:      pool.Balance,
		TotalPolicies: policies,
		TotalPaid:     pool.TotalPaid,
		PayoutRate:    rate,
		TotalPremiums: pool.TotalPremiums,
		TotalFunded:   pool.TotalFunded,
	}, nil
}
