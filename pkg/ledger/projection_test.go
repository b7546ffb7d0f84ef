package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/programmer4yugal/buildchain/pkg/store"
)

func findCategory(t *testing.T, r *ReconcileReport, c string) CategoryReconciliation {
	t.Helper()
	for _, cr := range r.Categories {
		if cr.Category == c {
			return cr
		}
	}
	t.Fatalf("category %s missing from report", c)
	return CategoryReconciliation{}
}

func TestReconciler_RepairsMissingProjection(t *testing.T) {
	ctx := context.Background()
	s := newFaultyStore()
	w := newTestWriter(t, s)

	_, err := w.Append(ctx, Project{Title: "Road"})
	require.NoError(t, err)
	s.failAppend["materials"] = true
	lost, err := w.Append(ctx, MaterialDelivery{Material: "Cement", Quantity: 50})
	require.ErrorIs(t, err, ErrProjectionWrite)
	s.failAppend["materials"] = false

	r, err := NewReconciler(s, DefaultConfig())
	require.NoError(t, err)

	dry, err := r.Reconcile(ctx, true)
	require.NoError(t, err)
	assert.True(t, dry.DryRun)
	assert.Equal(t, 1, dry.Missing)
	assert.Zero(t, dry.Repaired)
	assert.Equal(t, []string{lost.Hash}, findCategory(t, dry, "materials").Missing)
	assert.Zero(t, s.Len("materials"))

	fixed, err := r.Reconcile(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, fixed.Repaired)
	assert.Equal(t, 1, s.Len("materials"))

	docs, err := s.QueryOrderedByTimestamp(ctx, "materials", store.Ascending, 0)
	require.NoError(t, err)
	assert.Equal(t, lost.Hash, docs[0].Fields.String("hash"))

	again, err := r.Reconcile(ctx, false)
	require.NoError(t, err)
	assert.Zero(t, again.Missing)
	assert.Zero(t, again.Repaired)
}

func TestReconciler_ReportsOrphansWithoutDeleting(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	w := newTestWriter(t, s)
	_, err := w.Append(ctx, Project{Title: "Road"})
	require.NoError(t, err)

	_, err = s.Append(ctx, "projects", store.Record{"title": "Ghost", "hash": "0xghost", "timestamp": testTimestamp})
	require.NoError(t, err)

	r, err := NewReconciler(s, DefaultConfig())
	require.NoError(t, err)
	report, err := r.Reconcile(ctx, false)
	require.NoError(t, err)

	projects := findCategory(t, report, "projects")
	assert.Equal(t, []string{"0xghost"}, projects.Orphans)
	assert.Equal(t, 1, projects.LedgerBlocks)
	assert.Equal(t, 2, projects.ProjectionBlocks)
	assert.Equal(t, 2, s.Len("projects"))
}

func TestReconciler_CoversKnownCategoriesWhenEmpty(t *testing.T) {
	r, err := NewReconciler(store.NewMemoryStore(), DefaultConfig())
	require.NoError(t, err)
	report, err := r.Reconcile(context.Background(), true)
	require.NoError(t, err)
	assert.Len(t, report.Categories, len(KnownCategories))
}
