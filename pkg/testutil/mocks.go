// Package testutil provides common testing utilities and mock implementations.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/axomx/reward-ledger/internal/app/services/payment"
)

// ManualClock is a clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a clock stopped at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current manual time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// AdvanceDays moves the clock forward by n days.
func (c *ManualClock) AdvanceDays(n int) time.Time {
	return c.Advance(time.Duration(n) * 24 * time.Hour)
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// StubGateway is a payment.Gateway that records requests and returns
// generated hashes, or Err when set.
type StubGateway struct {
	mu       sync.Mutex
	Err      error
	requests []payment.Request
	hashes   []string
}

var _ payment.Gateway = (*StubGateway)(nil)

// Pay records req and returns a fresh hash.
func (g *StubGateway) Pay(_ context.Context, req payment.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.Err != nil {
		return "", g.Err
	}
	hash := fmt.Sprintf("0x%x", uuid.New())
	g.hashes = append(g.hashes, hash)
	return hash, nil
}

// Requests returns every request seen so far.
func (g *StubGateway) Requests() []payment.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]payment.Request, len(g.requests))
	copy(out, g.requests)
	return out
}

// LastHash returns the most recent hash handed out.
func (g *StubGateway) LastHash() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.hashes) == 0 {
		return ""
	}
	return g.hashes[len(g.hashes)-1]
}

// Wallet returns a deterministic lowercase test address for n.
func Wallet(n int) string {
	return fmt.Sprintf("0x%040x", n)
}
