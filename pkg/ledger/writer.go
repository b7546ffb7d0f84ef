package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/programmer4yugal/buildchain/pkg/store"
)

// Writer appends blocks to the canonical ledger and mirrors each one into
// its category projection.
//
// The tip is read from the store on every append; no chain state is held in
// process. Without a SequenceGuard two writers racing on the same tip both
// commit and the Verifier reports the fork afterwards.
type Writer struct {
	store  store.Store
	cfg    Config
	guard  store.SequenceGuard
	clock  func() time.Time
	obs    Observer
	logger *slog.Logger
}

// NewWriter creates a writer over s.
func NewWriter(s store.Store, cfg Config) (*Writer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Writer{
		store:  s,
		cfg:    cfg,
		clock:  time.Now,
		obs:    noopObserver{},
		logger: slog.Default().With("component", "ledger.writer", "ledger", cfg.LedgerName),
	}, nil
}

// WithClock overrides the clock for testing.
func (w *Writer) WithClock(clock func() time.Time) *Writer {
	w.clock = clock
	return w
}

// WithGuard enables sequence claims before each write.
func (w *Writer) WithGuard(g store.SequenceGuard) *Writer {
	w.guard = g
	return w
}

// WithObserver attaches tracing and metrics.
func (w *Writer) WithObserver(o Observer) *Writer {
	if o != nil {
		w.obs = o
	}
	return w
}

// Config returns the writer's configuration.
func (w *Writer) Config() Config { return w.cfg }

// Append validates p, links it to the current tip and persists it to the
// canonical ledger and then to the category projection.
//
// Writes are not retried. On ErrProjectionWrite the block has been committed
// to the ledger and is returned together with the error.
func (w *Writer) Append(ctx context.Context, p Payload) (*Block, error) {
	if p == nil {
		return nil, invalid("payload is nil")
	}
	ctx, finish := w.obs.TrackOperation(ctx, "ledger.append",
		AttrLedger.String(w.cfg.LedgerName),
		AttrCategory.String(string(p.Category())),
	)
	block, err := w.append(ctx, p)
	finish(err)
	return block, err
}

func (w *Writer) append(ctx context.Context, p Payload) (*Block, error) {
	category := p.Category()
	if err := w.checkCategory(category); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	fields, err := p.Fields()
	if err != nil {
		return nil, err
	}
	if err := checkExtra(fields); err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		tip, err := w.Tip(ctx)
		if err != nil {
			w.logger.ErrorContext(ctx, "tip read failed", "error", err)
			return nil, fmt.Errorf("ledger: read tip: %w", err)
		}

		prevHash, prevSeq := w.cfg.GenesisHash, int64(0)
		if tip != nil {
			if tip.Hash != "" {
				prevHash = tip.Hash
			}
			prevSeq = tip.SequenceNumber
		}
		seq := prevSeq + 1

		if w.guard != nil {
			if err := w.guard.Claim(ctx, w.cfg.LedgerName, seq); err != nil {
				if !errors.Is(err, store.ErrSequenceClaimed) {
					return nil, fmt.Errorf("ledger: claim block %d: %w", seq, err)
				}
				if attempt >= w.cfg.MaxAppendAttempts {
					w.logger.WarnContext(ctx, "append gave up after losing sequence claims", "block_number", seq, "attempts", attempt)
					return nil, fmt.Errorf("%w: block %d claimed by another writer", ErrConcurrentAppend, seq)
				}
				w.logger.DebugContext(ctx, "sequence claimed by another writer, re-reading tip", "block_number", seq, "attempt", attempt)
				if err := sleepCtx(ctx, time.Duration(attempt)*25*time.Millisecond); err != nil {
					return nil, err
				}
				continue
			}
		}

		block, err := w.commit(ctx, category, fields, tip, prevHash, seq)
		if err != nil && w.guard != nil && errors.Is(err, ErrLedgerWrite) {
			if rerr := w.guard.Release(context.WithoutCancel(ctx), w.cfg.LedgerName, seq); rerr != nil {
				w.logger.WarnContext(ctx, "failed to release sequence claim", "block_number", seq, "error", rerr)
			}
		}
		return block, err
	}
}

func (w *Writer) commit(ctx context.Context, category Category, fields map[string]any, tip *Block, prevHash string, seq int64) (*Block, error) {
	ts := w.nextTimestamp(ctx, tip)

	block := &Block{
		Category:       category,
		Fields:         fields,
		Timestamp:      ts,
		PreviousHash:   prevHash,
		SequenceNumber: seq,
	}
	hash, err := ComputeHash(block.HashInput(), prevHash, ts)
	if err != nil {
		return nil, err
	}
	block.Hash = hash

	rec := block.Record()
	id, err := w.store.Append(ctx, w.cfg.LedgerName, rec)
	if err != nil {
		w.logger.ErrorContext(ctx, "ledger write failed", "category", category, "block_number", seq, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrLedgerWrite, err)
	}
	block.ID = id
	w.obs.RecordBlockAppended(ctx, w.cfg.LedgerName, string(category), seq, hash)

	if _, err := w.store.Append(ctx, string(category), rec); err != nil {
		w.logger.ErrorContext(ctx, "projection write failed, projection is behind the ledger",
			"category", category, "block_number", seq, "hash", hash, "error", err)
		return block, fmt.Errorf("%w: %s: %w", ErrProjectionWrite, category, err)
	}

	w.logger.DebugContext(ctx, "block appended", "category", category, "block_number", seq, "hash", hash)
	return block, nil
}

// nextTimestamp captures the block time once. It never goes backwards past
// the tip so that timestamp order stays equal to append order.
func (w *Writer) nextTimestamp(ctx context.Context, tip *Block) string {
	now := w.clock().UTC().Truncate(time.Millisecond)
	if tip == nil || tip.Timestamp == "" {
		return FormatTimestamp(now)
	}
	tipTime, err := ParseTimestamp(tip.Timestamp)
	if err != nil {
		w.logger.WarnContext(ctx, "tip timestamp unparseable", "timestamp", tip.Timestamp, "error", err)
		return FormatTimestamp(now)
	}
	if !now.After(tipTime) {
		now = tipTime.Truncate(time.Millisecond).Add(time.Millisecond)
	}
	return FormatTimestamp(now)
}

func (w *Writer) checkCategory(c Category) error {
	if !c.Valid() {
		return invalid("category %q is not a valid name", c)
	}
	if string(c) == w.cfg.LedgerName || string(c) == SubmissionsCollection {
		return invalid("category %q is reserved", c)
	}
	return nil
}

// Tip returns the latest block of the canonical ledger, or nil when empty.
func (w *Writer) Tip(ctx context.Context) (*Block, error) {
	docs, err := w.store.QueryOrderedByTimestamp(ctx, w.cfg.LedgerName, store.Descending, 1)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return BlockFromDocument(docs[0]), nil
}

// ListCategory returns up to limit blocks from a category projection,
// newest first. A limit <= 0 returns all of them.
func (w *Writer) ListCategory(ctx context.Context, category Category, limit int) ([]*Block, error) {
	if err := w.checkCategory(category); err != nil {
		return nil, err
	}
	docs, err := w.store.QueryOrderedByTimestamp(ctx, string(category), store.Descending, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: list %s: %w", category, err)
	}
	blocks := make([]*Block, 0, len(docs))
	for _, d := range docs {
		blocks = append(blocks, BlockFromDocument(d))
	}
	return blocks, nil
}

// Timeline returns up to limit blocks of the canonical ledger across all
// categories, newest first. A non-empty category keeps only its blocks. A
// limit <= 0 returns all of them.
func (w *Writer) Timeline(ctx context.Context, category Category, limit int) ([]*Block, error) {
	if category != "" && !category.Valid() {
		return nil, invalid("category %q is not a valid name", category)
	}
	queryLimit := limit
	if category != "" {
		queryLimit = 0
	}
	docs, err := w.store.QueryOrderedByTimestamp(ctx, w.cfg.LedgerName, store.Descending, queryLimit)
	if err != nil {
		return nil, fmt.Errorf("ledger: read %s: %w", w.cfg.LedgerName, err)
	}
	blocks := make([]*Block, 0, len(docs))
	for _, d := range docs {
		b := BlockFromDocument(d)
		if category != "" && b.Category != category {
			continue
		}
		blocks = append(blocks, b)
		if limit > 0 && len(blocks) == limit {
			break
		}
	}
	return blocks, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
