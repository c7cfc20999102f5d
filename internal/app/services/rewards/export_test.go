package rewards

import (
	"time"

	"github.com/robfig/cron/v3"
)

// Test hooks for the external rewards_test package, which cannot live in
// package rewards because services/ledger imports rewards.

func (s *Scheduler) CronEntries() []cron.Entry { return s.cron.Entries() }

func (s *Scheduler) SetNow(now func() time.Time) { s.now = now }

func (s *Scheduler) SettleYield() { s.settleYield() }

func (s *Scheduler) Distribute() { s.distribute() }
