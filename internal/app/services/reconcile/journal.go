// Package reconcile keeps payments that went through on chain but failed to
// record, and replays them into the ledger until they stick.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-redis/redis/v8"

	"github.com/axomx/reward-ledger/internal/app/services/ledger"
)

// ErrNotFound is returned for an unknown tx hash.
var ErrNotFound = errors.New("journal entry not found")

// DefaultKey is the redis hash holding pending payments.
const DefaultKey = "reward-ledger:reconcile:pending"

// Journal stores pending payments keyed by tx hash.
type Journal interface {
	ledger.PaymentJournal
	List(ctx context.Context) ([]ledger.PendingPayment, error)
	Get(ctx context.Context, txHash string) (ledger.PendingPayment, error)
	Remove(ctx context.Context, txHash string) error
}

func sortPending(entries []ledger.PendingPayment) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].TxHash < entries[j].TxHash
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}

// MemoryJournal keeps entries in process memory. Entries are lost on restart.
type MemoryJournal struct {
	mu      sync.RWMutex
	entries map[string]ledger.PendingPayment
}

var _ Journal = (*MemoryJournal)(nil)

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{entries: make(map[string]ledger.PendingPayment)}
}

func (j *MemoryJournal) Record(_ context.Context, p ledger.PendingPayment) error {
	if p.TxHash == "" {
		return fmt.Errorf("record pending payment: empty tx hash")
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries[strings.ToLower(p.TxHash)] = p
	return nil
}

func (j *MemoryJournal) List(_ context.Context) ([]ledger.PendingPayment, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]ledger.PendingPayment, 0, len(j.entries))
	for _, p := range j.entries {
		out = append(out, p)
	}
	sortPending(out)
	return out, nil
}

func (j *MemoryJournal) Get(_ context.Context, txHash string) (ledger.PendingPayment, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	p, ok := j.entries[strings.ToLower(txHash)]
	if !ok {
		return ledger.PendingPayment{}, fmt.Errorf("%s: %w", txHash, ErrNotFound)
	}
	return p, nil
}

func (j *MemoryJournal) Remove(_ context.Context, txHash string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.entries, strings.ToLower(txHash))
	return nil
}

// RedisJournal stores entries as JSON fields of one redis hash.
type RedisJournal struct {
	client *redis.Client
	key    string
}

var _ Journal = (*RedisJournal)(nil)

// Connect initializes a redis client from a redis:// URL or host:port.
func Connect(addr, password string, db int) (*redis.Client, error) {
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opt, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}), nil
}

// NewRedisJournal creates a journal in the hash named key (DefaultKey when
// empty).
func NewRedisJournal(client *redis.Client, key string) *RedisJournal {
	if key == "" {
		key = DefaultKey
	}
	return &RedisJournal{client: client, key: key}
}

func (j *RedisJournal) Record(ctx context.Context, p ledger.PendingPayment) error {
	if p.TxHash == "" {
		return fmt.Errorf("record pending payment: empty tx hash")
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pending payment: %w", err)
	}
	if err := j.client.HSet(ctx, j.key, strings.ToLower(p.TxHash), raw).Err(); err != nil {
		return fmt.Errorf("journal %s: %w", p.TxHash, err)
	}
	return nil
}

func (j *RedisJournal) List(ctx context.Context) ([]ledger.PendingPayment, error) {
	data, err := j.client.HGetAll(ctx, j.key).Result()
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	out := make([]ledger.PendingPayment, 0, len(data))
	for hash, raw := range data {
		var p ledger.PendingPayment
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode journal entry %s: %w", hash, err)
		}
		out = append(out, p)
	}
	sortPending(out)
	return out, nil
}

func (j *RedisJournal) Get(ctx context.Context, txHash string) (ledger.PendingPayment, error) {
	raw, err := j.client.HGet(ctx, j.key, strings.ToLower(txHash)).Result()
	if errors.Is(err, redis.Nil) {
		return ledger.PendingPayment{}, fmt.Errorf("%s: %w", txHash, ErrNotFound)
	}
	if err != nil {
		return ledger.PendingPayment{}, fmt.Errorf("get journal entry: %w", err)
	}
	var p ledger.PendingPayment
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return ledger.PendingPayment{}, fmt.Errorf("decode journal entry %s: %w", txHash, err)
	}
	return p, nil
}

func (j *RedisJournal) Remove(ctx context.Context, txHash string) error {
	return j.client.HDel(ctx, j.key, strings.ToLower(txHash)).Err()
}
