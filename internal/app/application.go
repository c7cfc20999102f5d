package app

import (
	"context"
	"fmt"
	"time"

	"github.com/axomx/reward-ledger/internal/app/rates"
	ledgersvc "github.com/axomx/reward-ledger/internal/app/services/ledger"
	"github.com/axomx/reward-ledger/internal/app/services/payment"
	"github.com/axomx/reward-ledger/internal/app/services/reconcile"
	"github.com/axomx/reward-ledger/internal/app/services/rewards"
	"github.com/axomx/reward-ledger/internal/app/storage"
	"github.com/axomx/reward-ledger/internal/app/storage/memory"
	"github.com/axomx/reward-ledger/internal/app/system"
	"github.com/axomx/reward-ledger/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementations.
type Stores struct {
	Ledger  storage.Store
	Journal reconcile.Journal
}

// Options tune the services New builds. The zero value runs without a
// payment gateway, without background jobs and with the compiled-in rates.
type Options struct {
	Rates             *rates.Table
	Gateway           payment.Gateway
	RequireTxHash     bool
	Clock             func() time.Time
	Scheduler         rewards.SchedulerConfig
	ReconcileEnabled  bool
	ReconcileInterval time.Duration
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Ledger  *ledgersvc.Service
	Rewards *rewards.Service
	Journal reconcile.Journal
	Poller  *reconcile.Poller
	Rates   *rates.Table
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if stores.Ledger == nil {
		stores.Ledger = memory.New()
	}
	if stores.Journal == nil {
		stores.Journal = reconcile.NewMemoryJournal()
	}
	table := opts.Rates
	if table == nil {
		table = rates.Default()
	}
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("rates table: %w", err)
	}

	ledgerOpts := []ledgersvc.Option{
		ledgersvc.WithJournal(stores.Journal),
		ledgersvc.WithTxHashRequired(opts.RequireTxHash),
	}
	if opts.Gateway != nil {
		ledgerOpts = append(ledgerOpts, ledgersvc.WithPaymentGateway(opts.Gateway))
	}
	if opts.Clock != nil {
		ledgerOpts = append(ledgerOpts, ledgersvc.WithClock(opts.Clock))
	}
	ledgerService := ledgersvc.New(stores.Ledger, table, log, ledgerOpts...)
	rewardService := rewards.New(stores.Ledger, table, log)
	poller := reconcile.NewPoller(stores.Journal, ledgerService, opts.ReconcileInterval, log)

	manager := system.NewManager()
	if opts.ReconcileEnabled {
		if err := manager.Register(poller); err != nil {
			return nil, fmt.Errorf("register %s: %w", poller.Name(), err)
		}
	} else {
		log.Warn("reconciliation poller disabled; journaled payments replay only on demand")
	}

	if opts.Scheduler.Enabled {
		scheduler, err := rewards.NewScheduler(rewardService, opts.Scheduler, log)
		if err != nil {
			return nil, fmt.Errorf("configure reward scheduler: %w", err)
		}
		if err := manager.Register(scheduler); err != nil {
			return nil, fmt.Errorf("register %s: %w", scheduler.Name(), err)
		}
	}

	return &Application{
		manager: manager,
		log:     log,
		Ledger:  ledgerService,
		Rewards: rewardService,
		Journal: stores.Journal,
		Poller:  poller,
		Rates:   table,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Services lists the registered background services in start order.
func (a *Application) Services() []string {
	return a.manager.Names()
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
