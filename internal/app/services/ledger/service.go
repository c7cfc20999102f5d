// Package ledger implements the wallet-facing ledger operations: profiles and
// referrals, vault deposits and withdrawals, node purchases and milestone
// checks, and the read models behind the dashboard.
//
// Every mutating operation runs as one unit of work against storage.Store.
// Referral commission is computed after the triggering deposit commits, in a
// separate unit of work, so a failed propagation never undoes a deposit.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/axomx/reward-ledger/internal/app/commission"
	domain "github.com/axomx/reward-ledger/internal/app/domain/ledger"
	"github.com/axomx/reward-ledger/internal/app/metrics"
	"github.com/axomx/reward-ledger/internal/app/rates"
	"github.com/axomx/reward-ledger/internal/app/services/payment"
	"github.com/axomx/reward-ledger/internal/app/storage"
	"github.com/axomx/reward-ledger/internal/app/wallet"
	"github.com/axomx/reward-ledger/pkg/logger"
)

// Service exposes the ledger operations.
type Service struct {
	store         storage.Store
	table         *rates.Table
	propagator    *commission.Propagator
	gateway       payment.Gateway
	journal       PaymentJournal
	requireTxHash bool
	now           func() time.Time
	log           *logger.Logger
}

// Option configures the ledger service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPaymentGateway sets the collaborator used by the PayAnd* operations.
func WithPaymentGateway(gw payment.Gateway) Option {
	return func(s *Service) { s.gateway = gw }
}

// WithJournal sets where unrecorded payments are parked for reconciliation.
func WithJournal(j PaymentJournal) Option {
	return func(s *Service) { s.journal = j }
}

// WithTxHashRequired makes deposits, purchases and subscriptions without a
// tx hash fail with ErrPaymentRequired.
func WithTxHashRequired(required bool) Option {
	return func(s *Service) { s.requireTxHash = required }
}

// New creates a ledger service. A nil table uses rates.Default().
func New(store storage.Store, table *rates.Table, log *logger.Logger, opts ...Option) *Service {
	if table == nil {
		table = rates.Default()
	}
	if log == nil {
		log = logger.NewDefault("ledger")
	}
	svc := &Service{
		store:      store,
		table:      table,
		propagator: commission.NewPropagator(table),
		gateway:    payment.Disabled{},
		now:        time.Now,
		log:        log,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Rates returns the pricing table in effect.
func (s *Service) Rates() *rates.Table { return s.table }

func (s *Service) clock() time.Time { return s.now().UTC() }

func (s *Service) observe(op string, start time.Time, err error) {
	metrics.RecordOperation(op, outcome(err), time.Since(start))
}

// profileByAddress validates address and loads its profile through repo.
func (s *Service) profileByAddress(ctx context.Context, repo storage.Repository, address string) (domain.Profile, error) {
	return loadProfile(ctx, address, repo.GetProfileByWallet)
}

// lockProfile is profileByAddress for units of work that change the wallet's
// state. The profile row stays locked until tx ends, so concurrent operations
// on one wallet apply one after another.
func (s *Service) lockProfile(ctx context.Context, tx storage.Repository, address string) (domain.Profile, error) {
	return loadProfile(ctx, address, tx.LockProfileByWallet)
}

func loadProfile(ctx context.Context, address string, load func(context.Context, string) (domain.Profile, error)) (domain.Profile, error) {
	addr, err := wallet.Normalize(address)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	profile, err := load(ctx, addr)
	if err != nil {
		return domain.Profile{}, translate(fmt.Errorf("wallet %s: %w", addr, err))
	}
	return profile, nil
}

// txHash normalizes a payment hash and applies the tx hash requirement.
func (s *Service) txHash(raw string) (*string, domain.TransactionStatus, error) {
	hash := strings.ToLower(strings.TrimSpace(raw))
	if hash == "" {
		if s.requireTxHash {
			return nil, "", ErrPaymentRequired
		}
		return nil, domain.TxPending, nil
	}
	return &hash, domain.TxConfirmed, nil
}
