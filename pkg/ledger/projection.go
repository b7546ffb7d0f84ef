package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/programmer4yugal/buildchain/pkg/store"
)

// CategoryReconciliation compares one projection with the ledger.
type CategoryReconciliation struct {
	Category         string   `json:"category"`
	LedgerBlocks     int      `json:"ledgerBlocks"`
	ProjectionBlocks int      `json:"projectionBlocks"`
	Missing          []string `json:"missing"`
	Orphans          []string `json:"orphans"`
	Repaired         int      `json:"repaired"`
}

// ReconcileReport is the outcome of a reconciliation run.
type ReconcileReport struct {
	DryRun     bool                     `json:"dryRun"`
	Categories []CategoryReconciliation `json:"categories"`
	Missing    int                      `json:"missing"`
	Orphans    int                      `json:"orphans"`
	Repaired   int                      `json:"repaired"`
}

// Reconciler rebuilds category projections from the canonical ledger after
// a projection write failed.
type Reconciler struct {
	store  store.Store
	cfg    Config
	logger *slog.Logger
}

// NewReconciler creates a reconciler over s.
func NewReconciler(s store.Store, cfg Config) (*Reconciler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Reconciler{
		store:  s,
		cfg:    cfg,
		logger: slog.Default().With("component", "ledger.reconciler", "ledger", cfg.LedgerName),
	}, nil
}

// Reconcile copies ledger blocks missing from their projection back into it,
// matched by block hash. Projection blocks absent from the ledger are
// reported as orphans and left alone. With dryRun nothing is written.
func (r *Reconciler) Reconcile(ctx context.Context, dryRun bool) (*ReconcileReport, error) {
	docs, err := r.store.QueryOrderedByTimestamp(ctx, r.cfg.LedgerName, store.Ascending, 0)
	if err != nil {
		return nil, fmt.Errorf("ledger: read %s: %w", r.cfg.LedgerName, err)
	}

	byCategory := make(map[string][]store.Document)
	for _, c := range KnownCategories {
		byCategory[string(c)] = nil
	}
	for _, d := range docs {
		c := d.Fields.String(FieldType)
		if !Category(c).Valid() || c == r.cfg.LedgerName || c == SubmissionsCollection {
			r.logger.WarnContext(ctx, "skipping ledger block with unusable category", "id", d.ID, "type", c)
			continue
		}
		byCategory[c] = append(byCategory[c], d)
	}

	names := make([]string, 0, len(byCategory))
	for c := range byCategory {
		names = append(names, c)
	}
	sort.Strings(names)

	report := &ReconcileReport{DryRun: dryRun, Categories: make([]CategoryReconciliation, 0, len(names))}
	for _, c := range names {
		cr, err := r.reconcileCategory(ctx, c, byCategory[c], dryRun)
		if err != nil {
			return nil, err
		}
		report.Categories = append(report.Categories, *cr)
		report.Missing += len(cr.Missing)
		report.Orphans += len(cr.Orphans)
		report.Repaired += cr.Repaired
	}

	if report.Missing > 0 || report.Orphans > 0 {
		r.logger.InfoContext(ctx, "projections reconciled",
			"dry_run", dryRun, "missing", report.Missing, "orphans", report.Orphans, "repaired", report.Repaired)
	}
	return report, nil
}

func (r *Reconciler) reconcileCategory(ctx context.Context, category string, ledgerDocs []store.Document, dryRun bool) (*CategoryReconciliation, error) {
	projected, err := r.store.QueryOrderedByTimestamp(ctx, category, store.Ascending, 0)
	if err != nil {
		return nil, fmt.Errorf("ledger: read projection %s: %w", category, err)
	}

	inProjection := make(map[string]struct{}, len(projected))
	for _, d := range projected {
		inProjection[d.Fields.String(FieldHash)] = struct{}{}
	}
	inLedger := make(map[string]struct{}, len(ledgerDocs))
	for _, d := range ledgerDocs {
		inLedger[d.Fields.String(FieldHash)] = struct{}{}
	}

	cr := &CategoryReconciliation{
		Category:         category,
		LedgerBlocks:     len(ledgerDocs),
		ProjectionBlocks: len(projected),
		Missing:          []string{},
		Orphans:          []string{},
	}
	for _, d := range ledgerDocs {
		hash := d.Fields.String(FieldHash)
		if _, ok := inProjection[hash]; ok {
			continue
		}
		cr.Missing = append(cr.Missing, hash)
		if dryRun {
			continue
		}
		if _, err := r.store.Append(ctx, category, d.Fields.Clone()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrProjectionWrite, category, err)
		}
		inProjection[hash] = struct{}{}
		cr.Repaired++
	}
	for _, d := range projected {
		hash := d.Fields.String(FieldHash)
		if _, ok := inLedger[hash]; !ok {
			cr.Orphans = append(cr.Orphans, hash)
		}
	}
	return cr, nil
}
