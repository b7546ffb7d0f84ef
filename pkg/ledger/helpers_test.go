package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/programmer4yugal/buildchain/pkg/store"
)

var errInjected = errors.New("injected store failure")

// faultyStore wraps a MemoryStore, counts calls and fails appends to
// selected collections.
type faultyStore struct {
	*store.MemoryStore

	mu         sync.Mutex
	failAppend map[string]bool
	failQuery  bool
	calls      int
}

func newFaultyStore() *faultyStore {
	return &faultyStore{MemoryStore: store.NewMemoryStore(), failAppend: make(map[string]bool)}
}

func (f *faultyStore) Append(ctx context.Context, collection string, rec store.Record) (string, error) {
	f.mu.Lock()
	f.calls++
	fail := f.failAppend[collection]
	f.mu.Unlock()
	if fail {
		return "", errInjected
	}
	return f.MemoryStore.Append(ctx, collection, rec)
}

func (f *faultyStore) QueryOrderedByTimestamp(ctx context.Context, collection string, dir store.Direction, limit int) ([]store.Document, error) {
	f.mu.Lock()
	f.calls++
	fail := f.failQuery
	f.mu.Unlock()
	if fail {
		return nil, errInjected
	}
	return f.MemoryStore.QueryOrderedByTimestamp(ctx, collection, dir, limit)
}

func (f *faultyStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// stepClock returns a clock that advances by step on every call.
func stepClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := now
		now = now.Add(step)
		return t
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var testStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestWriter(t *testing.T, s store.Store) *Writer {
	t.Helper()
	w, err := NewWriter(s, DefaultConfig())
	require.NoError(t, err)
	return w.WithClock(stepClock(testStart, time.Second))
}

func newTestVerifier(t *testing.T, s store.Store) *Verifier {
	t.Helper()
	v, err := NewVerifier(s, DefaultConfig())
	require.NoError(t, err)
	return v
}

// ledgerDocs returns the canonical ledger in order.
func ledgerDocs(t *testing.T, s store.Store) []store.Document {
	t.Helper()
	docs, err := s.QueryOrderedByTimestamp(context.Background(), DefaultLedgerName, store.Ascending, 0)
	require.NoError(t, err)
	return docs
}
