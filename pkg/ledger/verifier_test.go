package ledger

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/programmer4yugal/buildchain/pkg/store"
)

// seedRoadAndCement appends the two-block chain used across these tests.
func seedRoadAndCement(t *testing.T, s store.Store) (*Block, *Block) {
	t.Helper()
	w := newTestWriter(t, s)
	a, err := w.Append(context.Background(), Project{Title: "Road", Budget: 1000})
	require.NoError(t, err)
	b, err := w.Append(context.Background(), MaterialDelivery{Material: "Cement", Quantity: 50})
	require.NoError(t, err)
	return a, b
}

func TestVerifier_EmptyLedger(t *testing.T) {
	report, err := newTestVerifier(t, store.NewMemoryStore()).Verify(context.Background())
	require.NoError(t, err)
	assert.True(t, report.IsValid)
	assert.Zero(t, report.TotalBlocks)
	assert.Empty(t, report.TamperedBlocks)
	assert.Empty(t, report.ChainBreaks)
	assert.Empty(t, report.HeadHash)
}

func TestVerifier_BudgetRewrittenTo9999(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	a, b := seedRoadAndCement(t, s)

	require.NoError(t, s.Update(ctx, DefaultLedgerName, a.ID, store.Record{"budget": 9999}))

	report, err := newTestVerifier(t, s).Verify(ctx)
	require.NoError(t, err)
	assert.False(t, report.IsValid)
	require.Len(t, report.TamperedBlocks, 1)
	assert.Equal(t, int64(1), report.TamperedBlocks[0].BlockNumber)
	assert.Equal(t, a.ID, report.TamperedBlocks[0].BlockID)
	assert.Equal(t, a.Hash, report.TamperedBlocks[0].StoredHash)
	assert.NotEqual(t, a.Hash, report.TamperedBlocks[0].ComputedHash)
	assert.Equal(t, "Road", report.TamperedBlocks[0].Label)
	assert.Empty(t, report.ChainBreaks)
	assert.Equal(t, b.Hash, report.HeadHash)
}

func TestVerifier_BrokenPreviousHash(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	_, b := seedRoadAndCement(t, s)

	require.NoError(t, s.Update(ctx, DefaultLedgerName, b.ID, store.Record{"previousHash": "0x1234"}))

	report, err := newTestVerifier(t, s).Verify(ctx)
	require.NoError(t, err)
	assert.False(t, report.IsValid)
	assert.Empty(t, report.TamperedBlocks)
	require.Len(t, report.ChainBreaks, 1)
	assert.Equal(t, int64(2), report.ChainBreaks[0].BlockNumber)
	assert.Equal(t, "0x1234", report.ChainBreaks[0].StoredPreviousHash)
}

func TestVerifier_AddedFieldIsTampering(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	_, b := seedRoadAndCement(t, s)

	require.NoError(t, s.Update(ctx, DefaultLedgerName, b.ID, store.Record{"supplier": "Acme"}))

	report, err := newTestVerifier(t, s).Verify(ctx)
	require.NoError(t, err)
	require.Len(t, report.TamperedBlocks, 1)
	assert.Equal(t, int64(2), report.TamperedBlocks[0].BlockNumber)
	assert.Equal(t, "materials", report.TamperedBlocks[0].Label)
}

func TestVerifier_MissingHashIsTampering(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	a, _ := seedRoadAndCement(t, s)

	require.NoError(t, s.Update(ctx, DefaultLedgerName, a.ID, store.Record{"hash": ""}))

	report, err := newTestVerifier(t, s).Verify(ctx)
	require.NoError(t, err)
	assert.False(t, report.IsValid)
	require.Len(t, report.TamperedBlocks, 1)
	assert.Equal(t, int64(1), report.TamperedBlocks[0].BlockNumber)
	assert.Empty(t, report.ChainBreaks)
}

// Stored linkage reports only the edited block; strict linkage also flags
// every successor, since none links to the recomputed predecessor.
func TestVerifier_StrictCascadesFromTamperedBlock(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	a, _ := seedRoadAndCement(t, s)
	require.NoError(t, s.Update(ctx, DefaultLedgerName, a.ID, store.Record{"budget": 9999}))

	cfg := DefaultConfig()
	cfg.StrictLinkage = true
	v, err := NewVerifier(s, cfg)
	require.NoError(t, err)
	report, err := v.Verify(ctx)
	require.NoError(t, err)
	assert.Len(t, report.TamperedBlocks, 2)
	require.Len(t, report.ChainBreaks, 1)
	assert.Equal(t, int64(2), report.ChainBreaks[0].BlockNumber)
}

func TestVerifier_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	a, _ := seedRoadAndCement(t, s)
	require.NoError(t, s.Update(ctx, DefaultLedgerName, a.ID, store.Record{"title": "Rail"}))

	v := newTestVerifier(t, s)
	first, err := v.Verify(ctx)
	require.NoError(t, err)
	second, err := v.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	before, _ := json.Marshal(ledgerDocs(t, s))
	_, err = v.Verify(ctx)
	require.NoError(t, err)
	after, _ := json.Marshal(ledgerDocs(t, s))
	assert.JSONEq(t, string(before), string(after))
}

// Rewriting and rehashing a block while patching its successor's
// previousHash still fails: the successor's hash commits to the original.
func TestVerifier_RehashedBlockCaughtBySuccessor(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	a, b := seedRoadAndCement(t, s)

	forged := &Block{
		Category:       CategoryProjects,
		Fields:         map[string]any{"title": "Road", "budget": 9999},
		Timestamp:      a.Timestamp,
		PreviousHash:   GenesisHash,
		SequenceNumber: 1,
	}
	forgedHash, err := ComputeHash(forged.HashInput(), GenesisHash, a.Timestamp)
	require.NoError(t, err)
	require.NoError(t, s.Update(ctx, DefaultLedgerName, a.ID, store.Record{"budget": 9999, "hash": forgedHash}))
	require.NoError(t, s.Update(ctx, DefaultLedgerName, b.ID, store.Record{"previousHash": forgedHash}))

	stored, err := newTestVerifier(t, s).Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModeStored, stored.Mode)
	assert.Empty(t, stored.ChainBreaks)
	require.Len(t, stored.TamperedBlocks, 1, "b's hash still commits to the original predecessor")
	assert.Equal(t, int64(2), stored.TamperedBlocks[0].BlockNumber)

	cfg := DefaultConfig()
	cfg.StrictLinkage = true
	strictV, err := NewVerifier(s, cfg)
	require.NoError(t, err)
	strict, err := strictV.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModeStrict, strict.Mode)
	assert.False(t, strict.IsValid)
	assert.Equal(t, stored.TamperedBlocks, strict.TamperedBlocks)
}

func TestVerifier_StrictAgreesOnCleanChain(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	seedRoadAndCement(t, s)

	cfg := DefaultConfig()
	cfg.StrictLinkage = true
	v, err := NewVerifier(s, cfg)
	require.NoError(t, err)
	report, err := v.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.IsValid)
}

func TestVerifier_ReportsForks(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	// Two unguarded writers that both read the empty tip.
	w1 := newTestWriter(t, s)
	a, err := w1.Append(ctx, Project{Title: "A"})
	require.NoError(t, err)

	fork := &Block{
		Category:       CategoryProjects,
		Fields:         map[string]any{"title": "B"},
		Timestamp:      FormatTimestamp(testStart.Add(time.Millisecond)),
		PreviousHash:   GenesisHash,
		SequenceNumber: 1,
	}
	fork.Hash, err = ComputeHash(fork.HashInput(), GenesisHash, fork.Timestamp)
	require.NoError(t, err)
	_, err = s.Append(ctx, DefaultLedgerName, fork.Record())
	require.NoError(t, err)

	report, err := newTestVerifier(t, s).Verify(ctx)
	require.NoError(t, err)
	require.Len(t, report.Forks, 2)
	assert.Equal(t, a.ID, report.Forks[0].ConflictsWith)
	assert.Equal(t, "shared previousHash", report.Forks[0].Reason)
	assert.Equal(t, "shared blockNumber", report.Forks[1].Reason)
	require.Len(t, report.ChainBreaks, 1, "the fork does not link to the block ordered before it")
	assert.Len(t, report.TamperedBlocks, 1)
}

func TestVerifier_LegacyGenesis(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	cfg := DefaultConfig()
	cfg.GenesisHash = LegacyGenesisHash
	w, err := NewWriter(s, cfg)
	require.NoError(t, err)
	w.WithClock(stepClock(testStart, time.Second))
	a, err := w.Append(ctx, Project{Title: "Road", Budget: 1000})
	require.NoError(t, err)
	assert.Equal(t, LegacyGenesisHash, a.PreviousHash)
	assert.Equal(t, "0xa0822de0bc2e45b6ebc4965a55b93ccc5c83fd7bb65f01ccc66f5b438c4e4cc8", a.Hash)

	v, err := NewVerifier(s, cfg)
	require.NoError(t, err)
	report, err := v.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.IsValid)

	// The same chain fails under the default genesis.
	report, err = newTestVerifier(t, s).Verify(ctx)
	require.NoError(t, err)
	assert.Len(t, report.ChainBreaks, 1)
}

func TestVerifier_StorageFailurePropagates(t *testing.T) {
	s := newFaultyStore()
	s.failQuery = true
	_, err := newTestVerifier(t, s).Verify(context.Background())
	assert.ErrorIs(t, err, errInjected)
}
