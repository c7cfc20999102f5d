package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/axomx/reward-ledger/internal/app/metrics"
	"github.com/axomx/reward-ledger/internal/app/services/ledger"
	"github.com/axomx/reward-ledger/internal/app/system"
	"github.com/axomx/reward-ledger/pkg/logger"
)

const maxBackoff = time.Hour

// Replayer records a pending payment in the ledger.
type Replayer interface {
	Replay(ctx context.Context, p ledger.PendingPayment) error
}

// Poller periodically replays journaled payments. Each failed attempt
// doubles the wait before the next one, up to an hour.
type Poller struct {
	journal  Journal
	replayer Replayer
	interval time.Duration
	log      *logger.Logger

	mu          sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	running     bool
	nextAttempt map[string]time.Time
}

var _ system.Service = (*Poller)(nil)

func NewPoller(journal Journal, replayer Replayer, interval time.Duration, log *logger.Logger) *Poller {
	if log == nil {
		log = logger.NewDefault("reconcile")
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Poller{
		journal:     journal,
		replayer:    replayer,
		interval:    interval,
		log:         log,
		nextAttempt: make(map[string]time.Time),
	}
}

func (p *Poller) Name() string { return "reconcile-poller" }

func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				p.Tick(runCtx)
			}
		}
	}()

	p.log.Info("reconcile poller started")
	return nil
}

func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Tick replays every entry whose backoff has elapsed and returns how many
// were settled.
func (p *Poller) Tick(ctx context.Context) int {
	entries, err := p.journal.List(ctx)
	if err != nil {
		p.log.WithError(err).Warn("list journal failed")
		return 0
	}

	settled := 0
	now := time.Now()
	for _, entry := range entries {
		if !p.shouldAttempt(entry.TxHash, now) {
			continue
		}
		if err := p.replay(ctx, entry); err != nil {
			continue
		}
		settled++
	}
	return settled
}

// ReplayNow replays one entry immediately, ignoring its backoff.
func (p *Poller) ReplayNow(ctx context.Context, txHash string) error {
	entry, err := p.journal.Get(ctx, txHash)
	if err != nil {
		return err
	}
	return p.replay(ctx, entry)
}

func (p *Poller) replay(ctx context.Context, entry ledger.PendingPayment) error {
	log := p.log.WithField("tx_hash", entry.TxHash).WithField("operation", entry.Operation)

	err := p.replayer.Replay(ctx, entry)
	if err == nil {
		if rmErr := p.journal.Remove(ctx, entry.TxHash); rmErr != nil {
			log.WithError(rmErr).Warn("remove settled journal entry failed")
		}
		p.clearSchedule(entry.TxHash)
		metrics.RecordReplay("settled")
		log.Info("pending payment recorded")
		return nil
	}

	entry.Attempts++
	entry.LastError = err.Error()
	if recErr := p.journal.Record(ctx, entry); recErr != nil {
		log.WithError(recErr).Warn("update journal entry failed")
	}

	if errors.Is(err, ledger.ErrValidation) || errors.Is(err, ledger.ErrNotFound) {
		// Retrying cannot fix bad input; leave it for an operator.
		p.scheduleNext(entry.TxHash, maxBackoff)
		metrics.RecordReplay("rejected")
		log.WithError(err).Error("pending payment cannot be replayed")
	} else {
		p.scheduleNext(entry.TxHash, p.backoff(entry.Attempts))
		metrics.RecordReplay("retry")
		log.WithError(err).Warnf("replay attempt %d failed", entry.Attempts)
	}
	return fmt.Errorf("replay %s: %w", entry.TxHash, err)
}

func (p *Poller) backoff(attempts int) time.Duration {
	d := p.interval
	for i := 1; i < attempts && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func (p *Poller) shouldAttempt(hash string, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	next, ok := p.nextAttempt[hash]
	return !ok || now.After(next)
}

func (p *Poller) scheduleNext(hash string, after time.Duration) {
	p.mu.Lock()
	p.nextAttempt[hash] = time.Now().Add(after)
	p.mu.Unlock()
}

func (p *Poller) clearSchedule(hash string) {
	p.mu.Lock()
	delete(p.nextAttempt, hash)
	p.mu.Unlock()
}
