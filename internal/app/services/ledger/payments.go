package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/axomx/reward-ledger/internal/app/domain/ledger"
	"github.com/axomx/reward-ledger/internal/app/metrics"
	"github.com/axomx/reward-ledger/internal/app/rates"
	"github.com/axomx/reward-ledger/internal/app/services/payment"
)

// Operations that can be paid through the gateway and replayed.
const (
	OpDeposit      = "vault_deposit"
	OpNodePurchase = "node_purchase"
	OpVip          = "vip_subscription"
	OpStrategy     = "strategy_subscription"
	OpHedge        = "hedge_purchase"
)

// PendingPayment is a payment that succeeded on chain but is not yet in the
// ledger. It carries everything needed to record it again.
type PendingPayment struct {
	TxHash        string               `json:"tx_hash"`
	Operation     string               `json:"operation"`
	Address       string               `json:"address"`
	Amount        decimal.Decimal      `json:"amount"`
	PlanType      string               `json:"plan_type,omitempty"`
	NodeType      rates.NodeType       `json:"node_type,omitempty"`
	PaymentMode   domain.PaymentMode   `json:"payment_mode,omitempty"`
	StrategyID    string               `json:"strategy_id,omitempty"`
	ExecutionMode domain.ExecutionMode `json:"execution_mode,omitempty"`
	LastError     string               `json:"last_error,omitempty"`
	Attempts      int                  `json:"attempts"`
	CreatedAt     time.Time            `json:"created_at"`
}

// PaymentJournal parks unrecorded payments for reconciliation.
type PaymentJournal interface {
	Record(ctx context.Context, p PendingPayment) error
}

// pay charges amount through the gateway.
func (s *Service) pay(ctx context.Context, address, op string, amount decimal.Decimal) (string, error) {
	hash, err := s.gateway.Pay(ctx, payment.Request{AmountUSD: amount, Reference: op, Payer: address})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPaymentFailed, err)
	}
	return hash, nil
}

// recordFailure journals p and wraps cause as a PartialFailureError. Errors
// that mean the payment is already recorded pass through.
func (s *Service) recordFailure(ctx context.Context, p PendingPayment, cause error) error {
	if errors.Is(cause, ErrAlreadyProcessed) {
		return cause
	}
	p.LastError = cause.Error()
	p.CreatedAt = s.clock()

	log := s.log.WithField("tx_hash", p.TxHash).WithField("operation", p.Operation).WithField("wallet", p.Address)
	log.WithError(cause).Error("payment succeeded but recording failed")
	metrics.RecordPartialFailure(p.Operation)

	if s.journal != nil {
		if err := s.journal.Record(context.WithoutCancel(ctx), p); err != nil {
			log.WithError(err).Error("journal unrecorded payment failed")
		}
	}
	return &PartialFailureError{Op: p.Operation, TxHash: p.TxHash, Err: cause}
}

// PayAndDeposit charges the deposit through the payment gateway and then
// records it. Input is validated before any money moves.
func (s *Service) PayAndDeposit(ctx context.Context, req DepositRequest) (domain.VaultPosition, error) {
	if _, err := s.depositPlan(req); err != nil {
		return domain.VaultPosition{}, err
	}
	if _, err := s.profileByAddress(ctx, s.store, req.Address); err != nil {
		return domain.VaultPosition{}, err
	}
	hash, err := s.pay(ctx, req.Address, OpDeposit, req.Amount)
	if err != nil {
		return domain.VaultPosition{}, err
	}

	req.TxHash = hash
	pos, err := s.DepositToVault(ctx, req)
	if err != nil {
		return domain.VaultPosition{}, s.recordFailure(ctx, PendingPayment{
			TxHash:    hash,
			Operation: OpDeposit,
			Address:   req.Address,
			Amount:    req.Amount,
			PlanType:  req.PlanType,
		}, err)
	}
	return pos, nil
}

// PayAndPurchaseNode charges the node price (or early bird deposit) and then
// records the purchase.
func (s *Service) PayAndPurchaseNode(ctx context.Context, req PurchaseRequest) (domain.NodeMembership, error) {
	_, charge, err := s.purchaseTerms(&req)
	if err != nil {
		return domain.NodeMembership{}, err
	}
	if _, err := s.profileByAddress(ctx, s.store, req.Address); err != nil {
		return domain.NodeMembership{}, err
	}
	hash, err := s.pay(ctx, req.Address, OpNodePurchase, charge)
	if err != nil {
		return domain.NodeMembership{}, err
	}

	req.TxHash = hash
	m, err := s.PurchaseNode(ctx, req)
	if err != nil {
		return domain.NodeMembership{}, s.recordFailure(ctx, PendingPayment{
			TxHash:      hash,
			Operation:   OpNodePurchase,
			Address:     req.Address,
			Amount:      charge,
			NodeType:    req.NodeType,
			PaymentMode: req.PaymentMode,
		}, err)
	}
	return m, nil
}

// PayAndSubscribeVip charges the VIP plan price and then records the
// subscription.
func (s *Service) PayAndSubscribeVip(ctx context.Context, address, plan string) (domain.Profile, error) {
	vip, ok := s.table.VipPlans[plan]
	if !ok {
		return domain.Profile{}, validationf("unknown vip plan %q", plan)
	}
	if _, err := s.profileByAddress(ctx, s.store, address); err != nil {
		return domain.Profile{}, err
	}
	hash, err := s.pay(ctx, address, OpVip, vip.Price)
	if err != nil {
		return domain.Profile{}, err
	}

	profile, err := s.SubscribeVip(ctx, address, plan, hash)
	if err != nil {
		return domain.Profile{}, s.recordFailure(ctx, PendingPayment{
			TxHash:    hash,
			Operation: OpVip,
			Address:   address,
			Amount:    vip.Price,
			PlanType:  plan,
		}, err)
	}
	return profile, nil
}

// PayAndSubscribeStrategy charges the allocated capital and then records the
// subscription.
func (s *Service) PayAndSubscribeStrategy(ctx context.Context, req StrategyRequest) (domain.StrategySubscription, error) {
	if _, err := s.strategyTerms(&req); err != nil {
		return domain.StrategySubscription{}, err
	}
	if _, err := s.profileByAddress(ctx, s.store, req.Address); err != nil {
		return domain.StrategySubscription{}, err
	}
	hash, err := s.pay(ctx, req.Address, OpStrategy, req.Capital)
	if err != nil {
		return domain.StrategySubscription{}, err
	}

	req.TxHash = hash
	sub, err := s.SubscribeStrategy(ctx, req)
	if err != nil {
		return domain.StrategySubscription{}, s.recordFailure(ctx, PendingPayment{
			TxHash:        hash,
			Operation:     OpStrategy,
			Address:       req.Address,
			Amount:        req.Capital,
			StrategyID:    req.StrategyID,
			ExecutionMode: req.ExecutionMode,
		}, err)
	}
	return sub, nil
}

// PayAndPurchaseHedge charges the hedge premium and then records the
// purchase.
func (s *Service) PayAndPurchaseHedge(ctx context.Context, req HedgeRequest) (domain.InsurancePurchase, error) {
	if err := s.hedgeAmount(req.Amount); err != nil {
		return domain.InsurancePurchase{}, err
	}
	if _, err := s.profileByAddress(ctx, s.store, req.Address); err != nil {
		return domain.InsurancePurchase{}, err
	}
	hash, err := s.pay(ctx, req.Address, OpHedge, req.Amount)
	if err != nil {
		return domain.InsurancePurchase{}, err
	}

	req.TxHash = hash
	purchase, err := s.PurchaseHedge(ctx, req)
	if err != nil {
		return domain.InsurancePurchase{}, s.recordFailure(ctx, PendingPayment{
			TxHash:    hash,
			Operation: OpHedge,
			Address:   req.Address,
			Amount:    req.Amount,
		}, err)
	}
	return purchase, nil
}

// Replay records a journaled payment again. A payment that is already in the
// ledger counts as replayed.
func (s *Service) Replay(ctx context.Context, p PendingPayment) error {
	if p.TxHash == "" {
		return validationf("pending payment has no tx hash")
	}
	var err error
	switch p.Operation {
	case OpDeposit:
		_, err = s.DepositToVault(ctx, DepositRequest{
			Address:  p.Address,
			PlanType: p.PlanType,
			Amount:   p.Amount,
			TxHash:   p.TxHash,
		})
	case OpNodePurchase:
		_, err = s.PurchaseNode(ctx, PurchaseRequest{
			Address:     p.Address,
			NodeType:    p.NodeType,
			PaymentMode: p.PaymentMode,
			TxHash:      p.TxHash,
		})
	case OpVip:
		_, err = s.SubscribeVip(ctx, p.Address, p.PlanType, p.TxHash)
	case OpStrategy:
		_, err = s.SubscribeStrategy(ctx, StrategyRequest{
			Address:       p.Address,
			StrategyID:    p.StrategyID,
			Capital:       p.Amount,
			ExecutionMode: p.ExecutionMode,
			TxHash:        p.TxHash,
		})
	case OpHedge:
		_, err = s.PurchaseHedge(ctx, HedgeRequest{Address: p.Address, Amount: p.Amount, TxHash: p.TxHash})
	default:
		return validationf("unknown operation %q", p.Operation)
	}
	if errors.Is(err, ErrAlreadyProcessed) {
		return nil
	}
	return err
}
