package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrSequenceClaimed is returned by a SequenceGuard when another writer
// already holds the requested block number.
var ErrSequenceClaimed = errors.New("store: sequence number already claimed")

// DefaultClaimTTL bounds how long a block number stays claimed. A claim only
// has to outlive the gap between the tip read and the ledger write; an
// expired claim left by a crashed writer frees its number again.
const DefaultClaimTTL = 10 * time.Second

// SequenceGuard hands out block numbers to concurrent writers so that two
// appends racing on the same tip cannot both commit. It is an optimistic
// token on the tip read, not a lock on the ledger.
type SequenceGuard interface {
	Claim(ctx context.Context, ledger string, seq int64) error
	Release(ctx context.Context, ledger string, seq int64) error
}

// MemoryGuard is a SequenceGuard for a single process.
type MemoryGuard struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	claimed map[string]time.Time // key -> expiry
}

// NewMemoryGuard creates a guard whose claims expire after ttl. A ttl <= 0
// uses DefaultClaimTTL.
func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	return &MemoryGuard{ttl: ttl, now: time.Now, claimed: make(map[string]time.Time)}
}

// WithClock overrides the clock for testing.
func (g *MemoryGuard) WithClock(now func() time.Time) *MemoryGuard {
	g.now = now
	return g
}

func (g *MemoryGuard) Claim(_ context.Context, ledger string, seq int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	for k, exp := range g.claimed {
		if !now.Before(exp) {
			delete(g.claimed, k)
		}
	}
	key := guardKey(ledger, seq)
	if _, ok := g.claimed[key]; ok {
		return ErrSequenceClaimed
	}
	g.claimed[key] = now.Add(g.ttl)
	return nil
}

func (g *MemoryGuard) Release(_ context.Context, ledger string, seq int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.claimed, guardKey(ledger, seq))
	return nil
}

func guardKey(ledger string, seq int64) string {
	return fmt.Sprintf("buildchain:%s:seq:%d", ledger, seq)
}
