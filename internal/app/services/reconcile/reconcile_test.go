package reconcile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axomx/reward-ledger/internal/app/services/ledger"
	"github.com/axomx/reward-ledger/pkg/logger"
)

type fakeReplayer struct {
	mu    sync.Mutex
	errs  map[string]error
	calls []string
}

func (r *fakeReplayer) Replay(_ context.Context, p ledger.PendingPayment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, p.TxHash)
	return r.errs[p.TxHash]
}

func pending(hash string, at time.Time) ledger.PendingPayment {
	return ledger.PendingPayment{
		TxHash:    hash,
		Operation: ledger.OpDeposit,
		Address:   "0x00000000000000000000000000000000000000aa",
		Amount:    decimal.NewFromInt(100),
		PlanType:  "7_DAYS",
		CreatedAt: at,
	}
}

func exerciseJournal(t *testing.T, j Journal) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, j.Record(ctx, pending("0xB", base.Add(time.Minute))))
	require.NoError(t, j.Record(ctx, pending("0xa", base)))
	assert.Error(t, j.Record(ctx, pending("", base)))

	entries, err := j.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "0xa", entries[0].TxHash)
	assert.True(t, entries[0].Amount.Equal(decimal.NewFromInt(100)))

	got, err := j.Get(ctx, "0xb")
	require.NoError(t, err)
	assert.Equal(t, "0xB", got.TxHash)

	require.NoError(t, j.Remove(ctx, "0xb"))
	_, err = j.Get(ctx, "0xb")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, j.Remove(ctx, "0xa"))
}

func TestMemoryJournal(t *testing.T) {
	exerciseJournal(t, NewMemoryJournal())
}

func TestRedisJournal(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client, err := Connect(addr, os.Getenv("TEST_REDIS_PASSWORD"), 0)
	require.NoError(t, err)
	defer client.Close()

	key := fmt.Sprintf("reward-ledger:test:%d", time.Now().UnixNano())
	defer client.Del(context.Background(), key)
	exerciseJournal(t, NewRedisJournal(client, key))
}

func TestPoller_TickSettlesAndRetries(t *testing.T) {
	ctx := context.Background()
	journal := NewMemoryJournal()
	now := time.Now()
	require.NoError(t, journal.Record(ctx, pending("0x1", now)))
	require.NoError(t, journal.Record(ctx, pending("0x2", now)))

	replayer := &fakeReplayer{errs: map[string]error{"0x2": errors.New("db down")}}
	p := NewPoller(journal, replayer, time.Hour, logger.Discard())

	assert.Equal(t, 1, p.Tick(ctx))

	entries, err := journal.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "0x2", entries[0].TxHash)
	assert.Equal(t, 1, entries[0].Attempts)
	assert.Equal(t, "db down", entries[0].LastError)

	// Backoff holds the failed entry until the next window.
	assert.Equal(t, 0, p.Tick(ctx))
	assert.Len(t, replayer.calls, 2)
}

func TestPoller_ReplayNowIgnoresBackoff(t *testing.T) {
	ctx := context.Background()
	journal := NewMemoryJournal()
	require.NoError(t, journal.Record(ctx, pending("0x3", time.Now())))

	replayer := &fakeReplayer{errs: map[string]error{"0x3": errors.New("db down")}}
	p := NewPoller(journal, replayer, time.Hour, logger.Discard())
	p.Tick(ctx)

	delete(replayer.errs, "0x3")
	require.NoError(t, p.ReplayNow(ctx, "0x3"))
	_, err := journal.Get(ctx, "0x3")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, p.ReplayNow(ctx, "0xmissing"), ErrNotFound)
}

func TestPoller_Backoff(t *testing.T) {
	p := NewPoller(NewMemoryJournal(), &fakeReplayer{}, time.Minute, logger.Discard())
	assert.Equal(t, time.Minute, p.backoff(1))
	assert.Equal(t, 4*time.Minute, p.backoff(3))
	assert.Equal(t, maxBackoff, p.backoff(40))
}

func TestPoller_StartStop(t *testing.T) {
	ctx := context.Background()
	journal := NewMemoryJournal()
	require.NoError(t, journal.Record(ctx, pending("0x4", time.Now())))
	p := NewPoller(journal, &fakeReplayer{}, 10*time.Millisecond, logger.Discard())

	require.NoError(t, p.Start(ctx))
	require.NoError(t, p.Start(ctx))
	require.Eventually(t, func() bool {
		entries, _ := journal.List(ctx)
		return len(entries) == 0
	}, time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, p.Stop(stopCtx))
	require.NoError(t, p.Stop(stopCtx))
}
