package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/axomx/reward-ledger/internal/app/domain/ledger"
	"github.com/axomx/reward-ledger/internal/app/rates"
	"github.com/axomx/reward-ledger/internal/app/storage"
)

// uniqueViolation is the SQLSTATE postgres reports for a unique index clash.
const uniqueViolation = "23505"

// execer is satisfied by both *sqlx.DB and *sqlx.Tx.
type execer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}

// Store implements storage.Store backed by PostgreSQL.
type Store struct {
	repo
	db *sqlx.DB
}

var _ storage.Store = (*Store)(nil)
var _ storage.Repository = (*repo)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	x := sqlx.NewDb(db, "postgres")
	return &Store{repo: repo{q: x}, db: x}
}

// WithinTx runs fn inside a read-committed transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Repository) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, &repo{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type repo struct {
	q execer
}

func mapErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return fmt.Errorf("%s: %w", what, storage.ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// --- ProfileStore -----------------------------------------------------------

const profileColumns = `id, wallet_address, referral_code, referrer_id, rank, node_type, is_vip, vip_expires_at,
	total_deposited, total_withdrawn, referral_earnings, created_at, updated_at`

func (r *repo) CreateProfile(ctx context.Context, p ledger.Profile) (ledger.Profile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = p.CreatedAt
	p.WalletAddress = strings.ToLower(p.WalletAddress)
	if p.NodeType == "" {
		p.NodeType = rates.NodeNone
	}
	p.TotalDeposited = decimal.Zero
	p.TotalWithdrawn = decimal.Zero
	p.ReferralEarnings = decimal.Zero

	_, err := r.q.NamedExecContext(ctx, `
		INSERT INTO profiles (`+profileColumns+`)
		VALUES (:id, :wallet_address, :referral_code, :referrer_id, :rank, :node_type, :is_vip, :vip_expires_at,
			:total_deposited, :total_withdrawn, :referral_earnings, :created_at, :updated_at)
	`, p)
	if err != nil {
		return ledger.Profile{}, mapErr(err, "create profile")
	}
	return p, nil
}

func (r *repo) UpdateProfile(ctx context.Context, p ledger.Profile) (ledger.Profile, error) {
	var out ledger.Profile
	err := r.q.GetContext(ctx, &out, `
		UPDATE profiles
		SET rank = $2, node_type = $3, is_vip = $4, vip_expires_at = $5, updated_at = $6
		WHERE id = $1
		RETURNING `+profileColumns,
		p.ID, p.Rank, p.NodeType, p.IsVip, p.VipExpiresAt, time.Now().UTC())
	if err != nil {
		return ledger.Profile{}, mapErr(err, "update profile "+p.ID)
	}
	return out, nil
}

func (r *repo) AddProfileBalances(ctx context.Context, id string, delta storage.BalanceDelta) (ledger.Profile, error) {
	var out ledger.Profile
	err := r.q.GetContext(ctx, &out, `
		UPDATE profiles
		SET total_deposited = total_deposited + $2,
			total_withdrawn = total_withdrawn + $3,
			referral_earnings = referral_earnings + $4,
			updated_at = $5
		WHERE id = $1
		RETURNING `+profileColumns,
		id, delta.Deposited, delta.Withdrawn, delta.ReferralEarnings, time.Now().UTC())
	if err != nil {
		return ledger.Profile{}, mapErr(err, "update balances "+id)
	}
	return out, nil
}

func (r *repo) GetProfile(ctx context.Context, id string) (ledger.Profile, error) {
	var out ledger.Profile
	err := r.q.GetContext(ctx, &out, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
	return out, mapErr(err, "profile "+id)
}

func (r *repo) GetProfileByWallet(ctx context.Context, wallet string) (ledger.Profile, error) {
	var out ledger.Profile
	err := r.q.GetContext(ctx, &out, `SELECT `+profileColumns+` FROM profiles WHERE wallet_address = $1`, strings.ToLower(wallet))
	return out, mapErr(err, "wallet "+wallet)
}

func (r *repo) LockProfileByWallet(ctx context.Context, wallet string) (ledger.Profile, error) {
	var out ledger.Profile
	err := r.q.GetContext(ctx, &out, `SELECT `+profileColumns+` FROM profiles WHERE wallet_address = $1 FOR UPDATE`, strings.ToLower(wallet))
	return out, mapErr(err, "lock wallet "+wallet)
}

func (r *repo) GetProfileByReferralCode(ctx context.Context, code string) (ledger.Profile, error) {
	var out ledger.Profile
	err := r.q.GetContext(ctx, &out, `SELECT `+profileColumns+` FROM profiles WHERE referral_code = $1`, code)
	return out, mapErr(err, "referral code "+code)
}

func (r *repo) ListReferrals(ctx context.Context, referrerID string) ([]ledger.Profile, error) {
	var out []ledger.Profile
	err := r.q.SelectContext(ctx, &out, `
		SELECT `+profileColumns+` FROM profiles
		WHERE referrer_id = $1
		ORDER BY created_at, id
	`, referrerID)
	return out, mapErr(err, "list referrals")
}

// --- VaultStore -------------------------------------------------------------

const positionColumns = `id, profile_id, plan_type, principal, daily_rate, plan_days, rates_version,
	start_date, end_date, status, closed_at, deposit_tx_id, created_at`

func (r *repo) CreatePosition(ctx context.Context, p ledger.VaultPosition) (ledger.VaultPosition, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := r.q.NamedExecContext(ctx, `
		INSERT INTO vault_positions (`+positionColumns+`)
		VALUES (:id, :profile_id, :plan_type, :principal, :daily_rate, :plan_days, :rates_version,
			:start_date, :end_date, :status, :closed_at, :deposit_tx_id, :created_at)
	`, p)
	if err != nil {
		return ledger.VaultPosition{}, mapErr(err, "create position")
	}
	return p, nil
}

func (r *repo) GetPosition(ctx context.Context, id string) (ledger.VaultPosition, error) {
	var out ledger.VaultPosition
	err := r.q.GetContext(ctx, &out, `SELECT `+positionColumns+` FROM vault_positions WHERE id = $1`, id)
	return out, mapErr(err, "position "+id)
}

func (r *repo) ListPositions(ctx context.Context, profileID string) ([]ledger.VaultPosition, error) {
	var out []ledger.VaultPosition
	err := r.q.SelectContext(ctx, &out, `
		SELECT `+positionColumns+` FROM vault_positions
		WHERE profile_id = $1
		ORDER BY created_at, id
	`, profileID)
	return out, mapErr(err, "list positions")
}

func (r *repo) ClosePosition(ctx context.Context, id string, status ledger.PositionStatus, closedAt time.Time) (ledger.VaultPosition, error) {
	var out ledger.VaultPosition
	err := r.q.GetContext(ctx, &out, `
		UPDATE vault_positions
		SET status = $2, closed_at = $3
		WHERE id = $1 AND status = $4
		RETURNING `+positionColumns,
		id, status, closedAt.UTC(), ledger.PositionActive)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.GetPosition(ctx, id); getErr != nil {
			return ledger.VaultPosition{}, getErr
		}
		return ledger.VaultPosition{}, fmt.Errorf("position %s: %w", id, storage.ErrConflict)
	}
	if err != nil {
		return ledger.VaultPosition{}, mapErr(err, "close position "+id)
	}
	return out, nil
}

// --- NodeStore --------------------------------------------------------------

const membershipColumns = `id, profile_id, node_type, price, payment_mode, amount_paid, daily_yield, weight_multiplier,
	pool_eligible, rates_version, status, milestone_stage, total_milestones, earnings_capacity, unlock_halted,
	package_released, start_date, end_date, purchase_tx_id, created_at, updated_at`

const milestoneColumns = `id, membership_id, ordinal, required_rank, unlocks, deadline, status, evaluated_at`

func (r *repo) CreateMembership(ctx context.Context, m ledger.NodeMembership, milestones []ledger.NodeMilestone) (ledger.NodeMembership, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.UpdatedAt = m.CreatedAt

	_, err := r.q.NamedExecContext(ctx, `
		INSERT INTO node_memberships (`+membershipColumns+`)
		VALUES (:id, :profile_id, :node_type, :price, :payment_mode, :amount_paid, :daily_yield, :weight_multiplier,
			:pool_eligible, :rates_version, :status, :milestone_stage, :total_milestones, :earnings_capacity, :unlock_halted,
			:package_released, :start_date, :end_date, :purchase_tx_id, :created_at, :updated_at)
	`, m)
	if err != nil {
		return ledger.NodeMembership{}, mapErr(err, "create membership")
	}

	for _, ms := range milestones {
		if ms.ID == "" {
			ms.ID = uuid.NewString()
		}
		ms.MembershipID = m.ID
		if _, err := r.q.NamedExecContext(ctx, `
			INSERT INTO node_milestones (`+milestoneColumns+`)
			VALUES (:id, :membership_id, :ordinal, :required_rank, :unlocks, :deadline, :status, :evaluated_at)
		`, ms); err != nil {
			return ledger.NodeMembership{}, mapErr(err, "create milestone")
		}
	}
	return m, nil
}

func (r *repo) UpdateMembership(ctx context.Context, prev, next ledger.NodeMembership) (ledger.NodeMembership, error) {
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = time.Now().UTC()
	}
	var out ledger.NodeMembership
	// GREATEST keeps earnings capacity monotonic even under a stale writer.
	err := r.q.GetContext(ctx, &out, `
		UPDATE node_memberships
		SET status = $2, milestone_stage = $3, earnings_capacity = GREATEST(earnings_capacity, $4),
			unlock_halted = $5, package_released = $6, updated_at = $7
		WHERE id = $1 AND status = $8 AND milestone_stage = $9 AND package_released = $10
		RETURNING `+membershipColumns,
		next.ID, next.Status, next.MilestoneStage, next.EarningsCapacity, next.UnlockHalted, next.PackageReleased,
		next.UpdatedAt.UTC(), prev.Status, prev.MilestoneStage, prev.PackageReleased)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.GetMembership(ctx, next.ID); getErr != nil {
			return ledger.NodeMembership{}, getErr
		}
		return ledger.NodeMembership{}, fmt.Errorf("membership %s: %w", next.ID, storage.ErrConflict)
	}
	if err != nil {
		return ledger.NodeMembership{}, mapErr(err, "update membership "+next.ID)
	}
	return out, nil
}

func (r *repo) GetMembership(ctx context.Context, id string) (ledger.NodeMembership, error) {
	var out ledger.NodeMembership
	err := r.q.GetContext(ctx, &out, `SELECT `+membershipColumns+` FROM node_memberships WHERE id = $1`, id)
	return out, mapErr(err, "membership "+id)
}

func (r *repo) ListMemberships(ctx context.Context, profileID string) ([]ledger.NodeMembership, error) {
	var out []ledger.NodeMembership
	err := r.q.SelectContext(ctx, &out, `
		SELECT `+membershipColumns+` FROM node_memberships
		WHERE profile_id = $1
		ORDER BY created_at, id
	`, profileID)
	return out, mapErr(err, "list memberships")
}

func (r *repo) ListEarningMemberships(ctx context.Context) ([]ledger.NodeMembership, error) {
	var out []ledger.NodeMembership
	err := r.q.SelectContext(ctx, &out, `
		SELECT `+membershipColumns+` FROM node_memberships
		WHERE status IN ($1, $2)
		ORDER BY created_at, id
	`, ledger.MembershipActive, ledger.MembershipPendingMilestones)
	return out, mapErr(err, "list earning memberships")
}

func (r *repo) ListMilestones(ctx context.Context, membershipID string) ([]ledger.NodeMilestone, error) {
	var out []ledger.NodeMilestone
	err := r.q.SelectContext(ctx, &out, `
		SELECT `+milestoneColumns+` FROM node_milestones
		WHERE membership_id = $1
		ORDER BY ordinal
	`, membershipID)
	return out, mapErr(err, "list milestones")
}

func (r *repo) UpdateMilestone(ctx context.Context, m ledger.NodeMilestone) (ledger.NodeMilestone, error) {
	var out ledger.NodeMilestone
	err := r.q.GetContext(ctx, &out, `
		UPDATE node_milestones
		SET status = $2, evaluated_at = $3
		WHERE id = $1 AND status = $4
		RETURNING `+milestoneColumns,
		m.ID, m.Status, m.EvaluatedAt, ledger.MilestonePending)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.NodeMilestone{}, fmt.Errorf("milestone %s not pending: %w", m.ID, storage.ErrConflict)
	}
	if err != nil {
		return ledger.NodeMilestone{}, mapErr(err, "update milestone "+m.ID)
	}
	return out, nil
}

// --- TransactionStore -------------------------------------------------------

const transactionColumns = `id, profile_id, type, token, amount, tx_hash, status, reference_id, created_at`

func (r *repo) CreateTransaction(ctx context.Context, tx ledger.Transaction) (ledger.Transaction, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	if tx.Token == "" {
		tx.Token = ledger.DefaultToken
	}
	_, err := r.q.NamedExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (:id, :profile_id, :type, :token, :amount, :tx_hash, :status, :reference_id, :created_at)
	`, tx)
	if err != nil {
		return ledger.Transaction{}, mapErr(err, "create transaction")
	}
	return tx, nil
}

func (r *repo) GetTransactionByHash(ctx context.Context, hash string) (ledger.Transaction, error) {
	var out ledger.Transaction
	err := r.q.GetContext(ctx, &out, `SELECT `+transactionColumns+` FROM transactions WHERE tx_hash = $1`, hash)
	return out, mapErr(err, "tx hash "+hash)
}

func (r *repo) ListTransactions(ctx context.Context, profileID string, txType ledger.TransactionType) ([]ledger.Transaction, error) {
	var out []ledger.Transaction
	err := r.q.SelectContext(ctx, &out, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE profile_id = $1 AND ($2 = '' OR type = $2)
		ORDER BY created_at, id
	`, profileID, string(txType))
	return out, mapErr(err, "list transactions")
}

// --- RewardStore ------------------------------------------------------------

const commissionColumns = `id, recipient_id, source_tx_id, source_id, source_wallet, source_rank, type, depth, rate, amount, created_at`

const earningColumns = `id, profile_id, membership_id, reward_type, period, amount, capacity, created_at`

func (r *repo) CreateCommission(ctx context.Context, rec ledger.CommissionRecord) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	res, err := r.q.NamedExecContext(ctx, `
		INSERT INTO commission_records (`+commissionColumns+`)
		VALUES (:id, :recipient_id, :source_tx_id, :source_id, :source_wallet, :source_rank, :type, :depth, :rate, :amount, :created_at)
		ON CONFLICT (source_tx_id, recipient_id) DO NOTHING
	`, rec)
	if err != nil {
		return false, mapErr(err, "create commission")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *repo) ListCommissions(ctx context.Context, recipientID string) ([]ledger.CommissionRecord, error) {
	var out []ledger.CommissionRecord
	err := r.q.SelectContext(ctx, &out, `
		SELECT `+commissionColumns+` FROM commission_records
		WHERE recipient_id = $1
		ORDER BY created_at, id
	`, recipientID)
	return out, mapErr(err, "list commissions")
}

func (r *repo) CreateNodeEarning(ctx context.Context, rec ledger.NodeEarningsRecord) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	res, err := r.q.NamedExecContext(ctx, `
		INSERT INTO node_earnings (`+earningColumns+`)
		VALUES (:id, :profile_id, :membership_id, :reward_type, :period, :amount, :capacity, :created_at)
		ON CONFLICT (membership_id, reward_type, period) DO NOTHING
	`, rec)
	if err != nil {
		return false, mapErr(err, "create node earning")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *repo) ListNodeEarnings(ctx context.Context, profileID string) ([]ledger.NodeEarningsRecord, error) {
	var out []ledger.NodeEarningsRecord
	err := r.q.SelectContext(ctx, &out, `
		SELECT `+earningColumns+` FROM node_earnings
		WHERE profile_id = $1
		ORDER BY created_at, id
	`, profileID)
	return out, mapErr(err, "list node earnings")
}

func (r *repo) GetNodePool(ctx context.Context) (ledger.NodePool, error) {
	var out ledger.NodePool
	err := r.q.GetContext(ctx, &out, `SELECT balance, total_funded, total_distributed, updated_at FROM node_pool WHERE id = 1`)
	return out, mapErr(err, "node pool")
}

func (r *repo) AdjustNodePool(ctx context.Context, funded, distributed decimal.Decimal) (ledger.NodePool, error) {
	var out ledger.NodePool
	err := r.q.GetContext(ctx, &out, `
		UPDATE node_pool
		SET balance = balance + $1 - $2,
			total_funded = total_funded + $1,
			total_distributed = total_distributed + $2,
			updated_at = $3
		WHERE id = 1 AND balance + $1 - $2 >= 0
		RETURNING balance, total_funded, total_distributed, updated_at
	`, funded, distributed, time.Now().UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.NodePool{}, fmt.Errorf("node pool cannot cover %s: %w", distributed, storage.ErrConflict)
	}
	return out, mapErr(err, "adjust node pool")
}
