package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/axomx/reward-ledger/internal/app/domain/ledger"
	"github.com/axomx/reward-ledger/internal/app/storage"
)

// --- ProductStore ---

func (s *Store) CreateStrategySubscription(ctx context.Context, sub ledger.StrategySubscription) (ledger.StrategySubscription, error) {
	d := s.write()
	defer s.mu.Unlock()
	return d.CreateStrategySubscription(ctx, sub)
}

func (s *Store) ListStrategySubscriptions(ctx context.Context, profileID string) ([]ledger.StrategySubscription, error) {
	d := s.read()
	defer s.mu.RUnlock()
	return d.ListStrategySubscriptions(ctx, profileID)
}

func (s *Store) StrategyAUM(ctx context.Context) (map[string]decimal.Decimal, error) {
	d := s.read()
	defer s.mu.RUnlock()
	return d.StrategyAUM(ctx)
}

func (s *Store) CreateInsurancePurchase(ctx context.Context, p ledger.InsurancePurchase) (ledger.InsurancePurchase, error) {
	d := s.write()
	defer s.mu.Unlock()
	return d.CreateInsurancePurchase(ctx, p)
}

func (s *Store) GetInsurancePurchase(ctx context.Context, id string) (ledger.InsurancePurchase, error) {
	d := s.read()
	defer s.mu.RUnlock()
	return d.GetInsurancePurchase(ctx, id)
}

func (s *Store) ListInsurancePurchases(ctx context.Context, profileID string) ([]ledger.InsurancePurchase, error) {
	d := s.read()
	defer s.mu.RUnlock()
	return d.ListInsurancePurchases(ctx, profileID)
}

func (s *Store) CountInsurancePurchases(ctx context.Context) (int, error) {
	d := s.read()
	defer s.mu.RUnlock()
	return d.CountInsurancePurchases(ctx)
}

func (s *Store) ClaimInsurancePurchase(ctx context.Context, id string, payout decimal.Decimal, at time.Time) (ledger.InsurancePurchase, error) {
	d := s.write()
	defer s.mu.Unlock()
	return d.ClaimInsurancePurchase(ctx, id, payout, at)
}

func (s *Store) GetInsurancePool(ctx context.Context) (ledger.InsurancePool, error) {
	d := s.read()
	defer s.mu.RUnlock()
	return d.GetInsurancePool(ctx)
}

func (s *Store) AdjustInsurancePool(ctx context.Context, delta storage.InsuranceDelta) (ledger.InsurancePool, error) {
	d := s.write()
	defer s.mu.Unlock()
	return d.AdjustInsurancePool(ctx, delta)
}

func (s *Store) CreateRevenueAllocation(ctx context.Context, a ledger.RevenueAllocation) (ledger.RevenueAllocation, error) {
	d := s.write()
	defer s.mu.Unlock()
	return d.CreateRevenueAllocation(ctx, a)
}

func (s *Store) ListRevenueAllocations(ctx context.Context, limit int) ([]ledger.RevenueAllocation, error) {
	d := s.read()
	defer s.mu.RUnlock()
	return d.ListRevenueAllocations(ctx, limit)
}

func (s *Store) VaultTotals(ctx context.Context) (storage.VaultTotals, error) {
	d := s.read()
	defer s.mu.RUnlock()
	return d.VaultTotals(ctx)
}

// --- dataset ---

func (d *dataset) CreateStrategySubscription(_ context.Context, sub ledger.StrategySubscription) (ledger.StrategySubscription, error) {
	if _, ok := d.profiles[sub.ProfileID]; !ok {
		return ledger.StrategySubscription{}, fmt.Errorf("profile %s: %w", sub.ProfileID, storage.ErrNotFound)
	}
	if sub.ID == "" {
		sub.ID = d.newID()
	}
	sub.CreatedAt = nonZero(sub.CreatedAt)
	d.subscriptions = append(d.subscriptions, sub)
	return sub, nil
}

func (d *dataset) ListStrategySubscriptions(_ context.Context, profileID string) ([]ledger.StrategySubscription, error) {
	var out []ledger.StrategySubscription
	for _, sub := range d.subscriptions {
		if sub.ProfileID == profileID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (d *dataset) StrategyAUM(_ context.Context) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	for _, sub := range d.subscriptions {
		if sub.Status != ledger.SubscriptionActive {
			continue
		}
		aum, ok := out[sub.StrategyID]
		if !ok {
			aum = decimal.Zero
		}
		out[sub.StrategyID] = aum.Add(sub.AllocatedCapital)
	}
	return out, nil
}

func (d *dataset) CreateInsurancePurchase(_ context.Context, p ledger.InsurancePurchase) (ledger.InsurancePurchase, error) {
	if _, ok := d.profiles[p.ProfileID]; !ok {
		return ledger.InsurancePurchase{}, fmt.Errorf("profile %s: %w", p.ProfileID, storage.ErrNotFound)
	}
	if p.ID == "" {
		p.ID = d.newID()
	}
	p.CreatedAt = nonZero(p.CreatedAt)
	d.purchases[p.ID] = p
	return p, nil
}

func (d *dataset) GetInsurancePurchase(_ context.Context, id string) (ledger.InsurancePurchase, error) {
	p, ok := d.purchases[id]
	if !ok {
		return ledger.InsurancePurchase{}, fmt.Errorf("insurance purchase %s: %w", id, storage.ErrNotFound)
	}
	return p, nil
}

func (d *dataset) ListInsurancePurchases(_ context.Context, profileID string) ([]ledger.InsurancePurchase, error) {
	var out []ledger.InsurancePurchase
	for _, p := range d.purchases {
		if p.ProfileID == profileID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return before(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID) })
	return out, nil
}

func (d *dataset) CountInsurancePurchases(_ context.Context) (int, error) {
	return len(d.purchases), nil
}

func (d *dataset) ClaimInsurancePurchase(_ context.Context, id string, payout decimal.Decimal, at time.Time) (ledger.InsurancePurchase, error) {
	p, ok := d.purchases[id]
	if !ok {
		return ledger.InsurancePurchase{}, fmt.Errorf("insurance purchase %s: %w", id, storage.ErrNotFound)
	}
	if p.Status != ledger.InsuranceActive {
		return ledger.InsurancePurchase{}, fmt.Errorf("insurance purchase %s is %s: %w", id, p.Status, storage.ErrConflict)
	}
	claimed := at.UTC()
	p.Status = ledger.InsuranceClaimed
	p.Payout = payout
	p.ClaimedAt = &claimed
	d.purchases[id] = p
	return p, nil
}

func (d *dataset) GetInsurancePool(_ context.Context) (ledger.InsurancePool, error) {
	return d.insurance, nil
}

func (d *dataset) AdjustInsurancePool(_ context.Context, delta storage.InsuranceDelta) (ledger.InsurancePool, error) {
	next := d.insurance.Balance.Add(delta.Premiums).Add(delta.Funded).Sub(delta.Paid)
	if next.IsNegative() {
		return ledger.InsurancePool{}, fmt.Errorf("insurance pool balance %s cannot cover %s: %w", d.insurance.Balance, delta.Paid, storage.ErrConflict)
	}
	d.insurance.Balance = next
	d.insurance.TotalPremiums = d.insurance.TotalPremiums.Add(delta.Premiums)
	d.insurance.TotalFunded = d.insurance.TotalFunded.Add(delta.Funded)
	d.insurance.TotalPaid = d.insurance.TotalPaid.Add(delta.Paid)
	d.insurance.UpdatedAt = time.Now().UTC()
	return d.insurance, nil
}

func (d *dataset) CreateRevenueAllocation(_ context.Context, a ledger.RevenueAllocation) (ledger.RevenueAllocation, error) {
	if a.ID == "" {
		a.ID = d.newID()
	}
	a.CreatedAt = nonZero(a.CreatedAt)
	d.allocations = append(d.allocations, a)
	return a, nil
}

func (d *dataset) ListRevenueAllocations(_ context.Context, limit int) ([]ledger.RevenueAllocation, error) {
	var out []ledger.RevenueAllocation
	for i := len(d.allocations) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, d.allocations[i])
	}
	return out, nil
}

func (d *dataset) VaultTotals(_ context.Context) (storage.VaultTotals, error) {
	totals := storage.VaultTotals{Locked: decimal.Zero, ByPlan: map[string]decimal.Decimal{}}
	depositors := make(map[string]struct{})
	for _, p := range d.positions {
		if p.Status != ledger.PositionActive {
			continue
		}
		plan, ok := totals.ByPlan[p.PlanType]
		if !ok {
			plan = decimal.Zero
		}
		totals.ByPlan[p.PlanType] = plan.Add(p.Principal)
		totals.Locked = totals.Locked.Add(p.Principal)
		totals.ActivePositions++
		depositors[p.ProfileID] = struct{}{}
	}
	totals.Depositors = len(depositors)
	return totals, nil
}
