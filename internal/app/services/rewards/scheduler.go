package rewards

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/axomx/reward-ledger/internal/app/metrics"
	"github.com/axomx/reward-ledger/internal/app/system"
	"github.com/axomx/reward-ledger/pkg/logger"
)

// SchedulerConfig holds cron specs for the reward jobs. An empty spec
// disables the job.
type SchedulerConfig struct {
	Enabled            bool   `yaml:"enabled" env:"SCHEDULER_ENABLED"`
	YieldSchedule      string `yaml:"yield_schedule" env:"SCHEDULER_YIELD"`
	DistributeSchedule string `yaml:"distribute_schedule" env:"SCHEDULER_DISTRIBUTE"`
}

// DefaultSchedulerConfig settles yield hourly and distributes the pool daily
// at midnight UTC.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:            true,
		YieldSchedule:      "@hourly",
		DistributeSchedule: "0 0 * * *",
	}
}

// Scheduler runs the reward jobs on cron schedules.
type Scheduler struct {
	svc  *Service
	cfg  SchedulerConfig
	cron *cron.Cron
	now  func() time.Time
	log  *logger.Logger

	mu      sync.Mutex
	running bool
	baseCtx context.Context
	cancel  context.CancelFunc
}

var _ system.Service = (*Scheduler)(nil)

func NewScheduler(svc *Service, cfg SchedulerConfig, log *logger.Logger) (*Scheduler, error) {
	if log == nil {
		log = logger.NewDefault("rewards-scheduler")
	}
	s := &Scheduler{
		svc:  svc,
		cfg:  cfg,
		cron: cron.New(cron.WithLocation(time.UTC)),
		now:  time.Now,
		log:  log,
	}
	if cfg.YieldSchedule != "" {
		if _, err := s.cron.AddFunc(cfg.YieldSchedule, s.settleYield); err != nil {
			return nil, fmt.Errorf("yield schedule %q: %w", cfg.YieldSchedule, err)
		}
	}
	if cfg.DistributeSchedule != "" {
		if _, err := s.cron.AddFunc(cfg.DistributeSchedule, s.distribute); err != nil {
			return nil, fmt.Errorf("distribute schedule %q: %w", cfg.DistributeSchedule, err)
		}
	}
	return s, nil
}

func (s *Scheduler) Name() string { return "rewards-scheduler" }

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.baseCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.cron.Start()
	s.running = true
	s.log.Infof("rewards scheduler started with %d jobs", len(s.cron.Entries()))
	return nil
}

func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	done := s.cron.Stop()
	cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.baseCtx == nil {
		return context.Background()
	}
	return s.baseCtx
}

func (s *Scheduler) settleYield() {
	start := time.Now()
	_, err := s.svc.SettleFixedYield(s.runContext(), s.now().UTC())
	metrics.RecordRewardJob("settle_yield", time.Since(start), err == nil)
	if err != nil {
		s.log.WithError(err).Warn("fixed yield settlement failed")
	}
}

func (s *Scheduler) distribute() {
	start := time.Now()
	// The period is the previous day, so a midnight run pays out yesterday.
	period := s.now().UTC().Add(-time.Minute).Format("2006-01-02")
	_, err := s.svc.DistributePool(s.runContext(), period)
	metrics.RecordRewardJob("distribute_pool", time.Since(start), err == nil)
	if err != nil {
		s.log.WithError(err).Warn("node pool distribution failed")
	}
}
