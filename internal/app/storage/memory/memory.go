package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/axomx/reward-ledger/internal/app/domain/ledger"
	"github.com/axomx/reward-ledger/internal/app/rates"
	"github.com/axomx/reward-ledger/internal/app/storage"
)

// Store is an in-memory implementation of storage.Store. It is safe for
// concurrent use and is primarily intended for tests and local development.
// Units of work run serially against a copy of the data that replaces the
// live set only when the work succeeds.
type Store struct {
	mu   sync.RWMutex
	data *dataset
}

var _ storage.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{data: newDataset()}
}

// WithinTx runs fn against a private copy of the data and publishes the copy
// when fn returns nil.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(ctx, work); err != nil {
		return err
	}
	s.data = work
	return nil
}

func (s *Store) read() *dataset {
	s.mu.RLock()
	return s.data
}

func (s *Store) write() *dataset {
	s.mu.Lock()
	return s.data
}

// --- ProfileStore ---

func (s *Store) CreateProfile(ctx context.Context, p ledger.Profile) (ledger.Profile, error) {
	d := s.write()
	defer s.mu.Unlock()
	return d.CreateProfile(ctx, p)
}

func (s *Store) UpdateProfile(ctx context.Context, p ledger.Profile) (ledger.Profile, error) {
	d := s.write()
	defer s.mu.Unlock()
	return d.UpdateProfile(ctx, p)
}

func (s *Store) AddProfileBalances(ctx context.Context, id string, delta storage.BalanceDelta) (ledger.Profile, error) {
	d := s.write()
	defer s.mu.Unlock()
	return d.AddProfileBalances(ctx, id, delta)
}

func (s *Store) GetProfile(ctx context.Context, id string) (ledger.Profile, error) {
	d := s.read()
	defer s.mu.RUnlock()
	return d.GetProfile(ctx, id)
}

func (s *Store) GetProfileByWallet(ctx context.Context, wallet string) (ledger.Profile, error) {
	d := s.read()
	defer s.mu.RUnlock()
	return d.GetProfileByWallet(ctx, wallet)
}

func (s *Store) LockProfileByWallet(ctx context.Context, wallet string) (ledger.Profile, error) {
	d := s.read()
	defer s.mu.RUnlock()
	return d.LockProfileByWallet(ctx, wallet)
}

func (s *Store) GetProfileByReferralCode(ctx context.Context, code string) (ledger.Profile, error) {
	d := s.read()
	defer s.mu.RUnlock()
	return d.GetProfileByReferralCode(ctx, code)
}

func (s *Store) ListReferrals(ctx context.Context, referrerID string) ([]ledger.Profile, error) {
	d := s.read()
	defer s.mu.RUnlock()
	return d.ListReferrals(ctx, referrerID)
}

// --- VaultStore ---

func (s *Store) CreatePosition(ctx context.Context, p ledger.VaultPosition) (ledger.VaultPosition, error) {
	d := s.write()
	defer s.mu.Unlock()
	return d.CreatePosition(ctx, p)
}

func (s *Store) GetPosition(ctx context.Context, id string) (ledger.VaultPosition, error) {
	d := s.read()
	defer s.mu.RUnlock()
	return d.GetPosition(ctx, id)
}

func (s *Store) ListPositions(ctx context.Context, profileID string) ([]ledger.VaultPosition, error) {
	d := s.read()
	defer s.mu.RUnlock()
	return d.ListPositions(ctx, profileID)
}

func (s *Store) ClosePosition(ctx context.Context, id string, status ledger.PositionStatus, closedAt time.Time) (ledger.VaultPosition, error) {
	d := s.write()
	defer s.mu.Unlock()
	return d.ClosePosition(ctx, id, status, closedAt)
}

// --- NodeStore ---

func (s *Store) CreateMembership(ctx context.Context, m ledger.NodeMembership, milestones []ledger.NodeMilestone) (ledger.NodeMembership, error) {
	d := s.write()
	defer s.mu.Unlock()
	return d.CreateMembership(ctx, m, milestones)
}

func (s *Store) UpdateMembership(ctx context.Context, prev, next ledger.NodeMembership) (ledger.NodeMembership, error) {
	d := s.write()
	defer s.mu.Unlock()
	return d.UpdateMembership(ctx, prev, next)
}

func (s *Store) GetMembership(ctx context.Context, id string) (ledger.NodeMembership, error) {
	d := s.read()
	defer s.mu.RUnlock()
	return d.GetMembership(ctx, id)
}

func (s *Store) ListMemberships(ctx context.Context, profileID string) ([]ledger.NodeMembership, error) {
	d := s.read()
	defer s.mu.RUnlock()
	return d.ListMemberships(ctx, profileID)
}

func (s *Store) ListEarningMemberships(ctx context.Context) ([]ledger.NodeMembership, error) {
	d := s.read()
	defer s.mu.RUnlock()
	return d.ListEarningMemberships(ctx)
}

func (s *Store) ListMilestones(ctx context.Context, membershipID string) ([]ledger.NodeMilestone, error) {
	d := s.read()
	defer s.mu.RUnlock()
	return d.ListMilestones(ctx, membershipID)
}

func (s *Store) UpdateMilestone(ctx context.Context, m ledger.NodeMilestone) (ledger.NodeMilestone, error) {
	d := s.write()
	defer s.mu.Unlock()
	return d.UpdateMilestone(ctx, m)
}

// --- TransactionStore ---

func (s *Store) CreateTransaction(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	d := s.write()
	defer s.mu.Unlock()
	return d.CreateTransaction(ctx, tx)
}

func (s *Store) GetTransactionByHash(ctx context.Context, hash string) (ledger.Transaction, error) {
	d := s.read()
	defer s.mu.RUnlock()
	return d.GetTransactionByHash(ctx, hash)
}

func (s *Store) ListTransactions(ctx context.Context, profileID string, txType ledger.TransactionType) ([]ledger.Transaction, error) {
	d := s.read()
	defer s.mu.RUnlock()
	return d.ListTransactions(ctx, profileID, txType)
}

// --- RewardStore ---

func (s *Store) CreateCommission(ctx context.Context, rec ledger.CommissionRecord) (bool, error) {
	d := s.write()
	defer s.mu.Unlock()
	return d.CreateCommission(ctx, rec)
}

func (s *Store) ListCommissions(ctx context.Context, recipientID string) ([]ledger.CommissionRecord, error) {
	d := s.read()
	defer s.mu.RUnlock()
	return d.ListCommissions(ctx, recipientID)
}

func (s *Store) CreateNodeEarning(ctx context.Context, rec ledger.NodeEarningsRecord) (bool, error) {
	d := s.write()
	defer s.mu.Unlock()
	return d.CreateNodeEarning(ctx, rec)
}

func (s *Store) ListNodeEarnings(ctx context.Context, profileID string) ([]ledger.NodeEarningsRecord, error) {
	d := s.read()
	defer s.mu.RUnlock()
	return d.ListNodeEarnings(ctx, profileID)
}

func (s *Store) GetNodePool(ctx context.Context) (ledger.NodePool, error) {
	d := s.read()
	defer s.mu.RUnlock()
	return d.GetNodePool(ctx)
}

func (s *Store) AdjustNodePool(ctx context.Context, funded, distributed decimal.Decimal) (ledger.NodePool, error) {
	d := s.write()
	defer s.mu.Unlock()
	return d.AdjustNodePool(ctx, funded, distributed)
}

// dataset is the unlocked state. It implements storage.Repository so a unit
// of work can operate on a clone directly.
type dataset struct {
	nextID int64

	profiles         map[string]ledger.Profile
	profilesByWallet map[string]string
	profilesByCode   map[string]string

	positions   map[string]ledger.VaultPosition
	memberships map[string]ledger.NodeMembership
	milestones  map[string]ledger.NodeMilestone

	transactions []ledger.Transaction
	txByHash     map[string]int

	commissions    []ledger.CommissionRecord
	commissionKeys map[string]struct{}
	earnings       []ledger.NodeEarningsRecord
	earningKeys    map[string]struct{}

	pool ledger.NodePool

	subscriptions []ledger.StrategySubscription
	purchases     map[string]ledger.InsurancePurchase
	insurance     ledger.InsurancePool
	allocations   []ledger.RevenueAllocation
}

var _ storage.Repository = (*dataset)(nil)

func newDataset() *dataset {
	return &dataset{
		nextID:           1,
		profiles:         make(map[string]ledger.Profile),
		profilesByWallet: make(map[string]string),
		profilesByCode:   make(map[string]string),
		positions:        make(map[string]ledger.VaultPosition),
		memberships:      make(map[string]ledger.NodeMembership),
		milestones:       make(map[string]ledger.NodeMilestone),
		txByHash:         make(map[string]int),
		commissionKeys:   make(map[string]struct{}),
		earningKeys:      make(map[string]struct{}),
		pool: ledger.NodePool{
			Balance:          decimal.Zero,
			TotalFunded:      decimal.Zero,
			TotalDistributed: decimal.Zero,
		},
		purchases: make(map[string]ledger.InsurancePurchase),
		insurance: ledger.InsurancePool{
			Balance:       decimal.Zero,
			TotalPremiums: decimal.Zero,
			TotalFunded:   decimal.Zero,
			TotalPaid:     decimal.Zero,
		},
	}
}

func (d *dataset) clone() *dataset {
	out := &dataset{
		nextID:           d.nextID,
		profiles:         cloneMap(d.profiles),
		profilesByWallet: cloneMap(d.profilesByWallet),
		profilesByCode:   cloneMap(d.profilesByCode),
		positions:        cloneMap(d.positions),
		memberships:      cloneMap(d.memberships),
		milestones:       cloneMap(d.milestones),
		transactions:     append([]ledger.Transaction(nil), d.transactions...),
		txByHash:         cloneMap(d.txByHash),
		commissions:      append([]ledger.CommissionRecord(nil), d.commissions...),
		commissionKeys:   cloneMap(d.commissionKeys),
		earnings:         append([]ledger.NodeEarningsRecord(nil), d.earnings...),
		earningKeys:      cloneMap(d.earningKeys),
		pool:             d.pool,
		subscriptions:    append([]ledger.StrategySubscription(nil), d.subscriptions...),
		purchases:        cloneMap(d.purchases),
		insurance:        d.insurance,
		allocations:      append([]ledger.RevenueAllocation(nil), d.allocations...),
	}
	return out
}

func (d *dataset) newID() string {
	id := d.nextID
	d.nextID++
	return fmt.Sprintf("%d", id)
}

func (d *dataset) CreateProfile(_ context.Context, p ledger.Profile) (ledger.Profile, error) {
	wallet := strings.ToLower(p.WalletAddress)
	if _, ok := d.profilesByWallet[wallet]; ok {
		return ledger.Profile{}, fmt.Errorf("wallet %s: %w", wallet, storage.ErrDuplicate)
	}
	if _, ok := d.profilesByCode[p.ReferralCode]; ok {
		return ledger.Profile{}, fmt.Errorf("referral code %s: %w", p.ReferralCode, storage.ErrDuplicate)
	}
	if p.ID == "" {
		p.ID = d.newID()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = p.CreatedAt
	p.WalletAddress = wallet
	if p.NodeType == "" {
		p.NodeType = rates.NodeNone
	}

	d.profiles[p.ID] = p
	d.profilesByWallet[wallet] = p.ID
	d.profilesByCode[p.ReferralCode] = p.ID
	return p, nil
}

func (d *dataset) UpdateProfile(_ context.Context, p ledger.Profile) (ledger.Profile, error) {
	existing, ok := d.profiles[p.ID]
	if !ok {
		return ledger.Profile{}, fmt.Errorf("profile %s: %w", p.ID, storage.ErrNotFound)
	}
	existing.Rank = p.Rank
	existing.NodeType = p.NodeType
	existing.IsVip = p.IsVip
	existing.VipExpiresAt = p.VipExpiresAt
	existing.UpdatedAt = nonZero(p.UpdatedAt)
	d.profiles[p.ID] = existing
	return existing, nil
}

func (d *dataset) AddProfileBalances(_ context.Context, id string, delta storage.BalanceDelta) (ledger.Profile, error) {
	p, ok := d.profiles[id]
	if !ok {
		return ledger.Profile{}, fmt.Errorf("profile %s: %w", id, storage.ErrNotFound)
	}
	p.TotalDeposited = p.TotalDeposited.Add(delta.Deposited)
	p.TotalWithdrawn = p.TotalWithdrawn.Add(delta.Withdrawn)
	p.ReferralEarnings = p.ReferralEarnings.Add(delta.ReferralEarnings)
	p.UpdatedAt = time.Now().UTC()
	d.profiles[id] = p
	return p, nil
}

func (d *dataset) GetProfile(_ context.Context, id string) (ledger.Profile, error) {
	p, ok := d.profiles[id]
	if !ok {
		return ledger.Profile{}, fmt.Errorf("profile %s: %w", id, storage.ErrNotFound)
	}
	return p, nil
}

func (d *dataset) GetProfileByWallet(ctx context.Context, wallet string) (ledger.Profile, error) {
	id, ok := d.profilesByWallet[strings.ToLower(wallet)]
	if !ok {
		return ledger.Profile{}, fmt.Errorf("wallet %s: %w", wallet, storage.ErrNotFound)
	}
	return d.GetProfile(ctx, id)
}

// LockProfileByWallet is a plain read: units of work already run serially.
func (d *dataset) LockProfileByWallet(ctx context.Context, wallet string) (ledger.Profile, error) {
	return d.GetProfileByWallet(ctx, wallet)
}

func (d *dataset) GetProfileByReferralCode(ctx context.Context, code string) (ledger.Profile, error) {
	id, ok := d.profilesByCode[code]
	if !ok {
		return ledger.Profile{}, fmt.Errorf("referral code %s: %w", code, storage.ErrNotFound)
	}
	return d.GetProfile(ctx, id)
}

func (d *dataset) ListReferrals(_ context.Context, referrerID string) ([]ledger.Profile, error) {
	var out []ledger.Profile
	for _, p := range d.profiles {
		if p.ReferrerID != nil && *p.ReferrerID == referrerID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return before(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID) })
	return out, nil
}

func (d *dataset) CreatePosition(_ context.Context, p ledger.VaultPosition) (ledger.VaultPosition, error) {
	if _, ok := d.profiles[p.ProfileID]; !ok {
		return ledger.VaultPosition{}, fmt.Errorf("profile %s: %w", p.ProfileID, storage.ErrNotFound)
	}
	if p.ID == "" {
		p.ID = d.newID()
	}
	p.CreatedAt = nonZero(p.CreatedAt)
	d.positions[p.ID] = p
	return p, nil
}

func (d *dataset) GetPosition(_ context.Context, id string) (ledger.VaultPosition, error) {
	p, ok := d.positions[id]
	if !ok {
		return ledger.VaultPosition{}, fmt.Errorf("position %s: %w", id, storage.ErrNotFound)
	}
	return p, nil
}

func (d *dataset) ListPositions(_ context.Context, profileID string) ([]ledger.VaultPosition, error) {
	var out []ledger.VaultPosition
	for _, p := range d.positions {
		if p.ProfileID == profileID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return before(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID) })
	return out, nil
}

func (d *dataset) ClosePosition(_ context.Context, id string, status ledger.PositionStatus, closedAt time.Time) (ledger.VaultPosition, error) {
	p, ok := d.positions[id]
	if !ok {
		return ledger.VaultPosition{}, fmt.Errorf("position %s: %w", id, storage.ErrNotFound)
	}
	if p.Status != ledger.PositionActive {
		return ledger.VaultPosition{}, fmt.Errorf("position %s is %s: %w", id, p.Status, storage.ErrConflict)
	}
	p.Status = status
	at := closedAt.UTC()
	p.ClosedAt = &at
	d.positions[id] = p
	return p, nil
}

func (d *dataset) CreateMembership(_ context.Context, m ledger.NodeMembership, milestones []ledger.NodeMilestone) (ledger.NodeMembership, error) {
	if _, ok := d.profiles[m.ProfileID]; !ok {
		return ledger.NodeMembership{}, fmt.Errorf("profile %s: %w", m.ProfileID, storage.ErrNotFound)
	}
	if m.ID == "" {
		m.ID = d.newID()
	}
	m.CreatedAt = nonZero(m.CreatedAt)
	m.UpdatedAt = m.CreatedAt
	d.memberships[m.ID] = m
	for _, ms := range milestones {
		if ms.ID == "" {
			ms.ID = d.newID()
		}
		ms.MembershipID = m.ID
		d.milestones[ms.ID] = ms
	}
	return m, nil
}

func (d *dataset) UpdateMembership(_ context.Context, prev, next ledger.NodeMembership) (ledger.NodeMembership, error) {
	existing, ok := d.memberships[next.ID]
	if !ok {
		return ledger.NodeMembership{}, fmt.Errorf("membership %s: %w", next.ID, storage.ErrNotFound)
	}
	if existing.Status != prev.Status || existing.MilestoneStage != prev.MilestoneStage || existing.PackageReleased != prev.PackageReleased {
		return ledger.NodeMembership{}, fmt.Errorf("membership %s is %s at stage %d: %w",
			next.ID, existing.Status, existing.MilestoneStage, storage.ErrConflict)
	}
	existing.Status = next.Status
	existing.MilestoneStage = next.MilestoneStage
	if next.EarningsCapacity.GreaterThan(existing.EarningsCapacity) {
		existing.EarningsCapacity = next.EarningsCapacity
	}
	existing.UnlockHalted = next.UnlockHalted
	existing.PackageReleased = next.PackageReleased
	existing.UpdatedAt = nonZero(next.UpdatedAt)
	d.memberships[next.ID] = existing
	return existing, nil
}

func (d *dataset) GetMembership(_ context.Context, id string) (ledger.NodeMembership, error) {
	m, ok := d.memberships[id]
	if !ok {
		return ledger.NodeMembership{}, fmt.Errorf("membership %s: %w", id, storage.ErrNotFound)
	}
	return m, nil
}

func (d *dataset) ListMemberships(_ context.Context, profileID string) ([]ledger.NodeMembership, error) {
	return d.filterMemberships(func(m ledger.NodeMembership) bool { return m.ProfileID == profileID }), nil
}

func (d *dataset) ListEarningMemberships(_ context.Context) ([]ledger.NodeMembership, error) {
	return d.filterMemberships(func(m ledger.NodeMembership) bool { return m.Status.Earning() }), nil
}

func (d *dataset) filterMemberships(keep func(ledger.NodeMembership) bool) []ledger.NodeMembership {
	var out []ledger.NodeMembership
	for _, m := range d.memberships {
		if keep(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return before(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID) })
	return out
}

func (d *dataset) ListMilestones(_ context.Context, membershipID string) ([]ledger.NodeMilestone, error) {
	var out []ledger.NodeMilestone
	for _, m := range d.milestones {
		if m.MembershipID == membershipID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}

func (d *dataset) UpdateMilestone(_ context.Context, m ledger.NodeMilestone) (ledger.NodeMilestone, error) {
	existing, ok := d.milestones[m.ID]
	if !ok {
		return ledger.NodeMilestone{}, fmt.Errorf("milestone %s: %w", m.ID, storage.ErrNotFound)
	}
	if existing.Status != ledger.MilestonePending {
		return ledger.NodeMilestone{}, fmt.Errorf("milestone %s is %s: %w", m.ID, existing.Status, storage.ErrConflict)
	}
	existing.Status = m.Status
	existing.EvaluatedAt = m.EvaluatedAt
	d.milestones[m.ID] = existing
	return existing, nil
}

func (d *dataset) CreateTransaction(_ context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	if tx.TxHash != nil {
		if _, ok := d.txByHash[*tx.TxHash]; ok {
			return ledger.Transaction{}, fmt.Errorf("tx hash %s: %w", *tx.TxHash, storage.ErrDuplicate)
		}
	}
	if tx.ID == "" {
		tx.ID = d.newID()
	}
	tx.CreatedAt = nonZero(tx.CreatedAt)
	d.transactions = append(d.transactions, tx)
	if tx.TxHash != nil {
		d.txByHash[*tx.TxHash] = len(d.transactions) - 1
	}
	return tx, nil
}

func (d *dataset) GetTransactionByHash(_ context.Context, hash string) (ledger.Transaction, error) {
	idx, ok := d.txByHash[hash]
	if !ok {
		return ledger.Transaction{}, fmt.Errorf("tx hash %s: %w", hash, storage.ErrNotFound)
	}
	return d.transactions[idx], nil
}

func (d *dataset) ListTransactions(_ context.Context, profileID string, txType ledger.TransactionType) ([]ledger.Transaction, error) {
	var out []ledger.Transaction
	for _, tx := range d.transactions {
		if tx.ProfileID != profileID {
			continue
		}
		if txType != "" && tx.Type != txType {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

func (d *dataset) CreateCommission(_ context.Context, rec ledger.CommissionRecord) (bool, error) {
	key := rec.SourceTxID + "|" + rec.RecipientID
	if _, ok := d.commissionKeys[key]; ok {
		return false, nil
	}
	if rec.ID == "" {
		rec.ID = d.newID()
	}
	rec.CreatedAt = nonZero(rec.CreatedAt)
	d.commissionKeys[key] = struct{}{}
	d.commissions = append(d.commissions, rec)
	return true, nil
}

func (d *dataset) ListCommissions(_ context.Context, recipientID string) ([]ledger.CommissionRecord, error) {
	var out []ledger.CommissionRecord
	for _, rec := range d.commissions {
		if rec.RecipientID == recipientID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (d *dataset) CreateNodeEarning(_ context.Context, rec ledger.NodeEarningsRecord) (bool, error) {
	key := rec.MembershipID + "|" + string(rec.Type) + "|" + rec.Period
	if _, ok := d.earningKeys[key]; ok {
		return false, nil
	}
	if rec.ID == "" {
		rec.ID = d.newID()
	}
	rec.CreatedAt = nonZero(rec.CreatedAt)
	d.earningKeys[key] = struct{}{}
	d.earnings = append(d.earnings, rec)
	return true, nil
}

func (d *dataset) ListNodeEarnings(_ context.Context, profileID string) ([]ledger.NodeEarningsRecord, error) {
	var out []ledger.NodeEarningsRecord
	for _, rec := range d.earnings {
		if rec.ProfileID == profileID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (d *dataset) GetNodePool(_ context.Context) (ledger.NodePool, error) {
	return d.pool, nil
}

func (d *dataset) AdjustNodePool(_ context.Context, funded, distributed decimal.Decimal) (ledger.NodePool, error) {
	next := d.pool.Balance.Add(funded).Sub(distributed)
	if next.IsNegative() {
		return ledger.NodePool{}, fmt.Errorf("node pool balance %s cannot cover %s: %w", d.pool.Balance, distributed, storage.ErrConflict)
	}
	d.pool.Balance = next
	d.pool.TotalFunded = d.pool.TotalFunded.Add(funded)
	d.pool.TotalDistributed = d.pool.TotalDistributed.Add(distributed)
	d.pool.UpdatedAt = time.Now().UTC()
	return d.pool, nil
}

func cloneMap[K comparable, V any](src map[K]V) map[K]V {
	out := make(map[K]V, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func nonZero(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func before(a, b time.Time, idA, idB string) bool {
	if a.Equal(b) {
		return idA < idB
	}
	return a.Before(b)
}
