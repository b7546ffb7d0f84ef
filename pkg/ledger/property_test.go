package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/programmer4yugal/buildchain/pkg/store"
)

// Property: any chain built only through Append links every block to its
// predecessor and verifies clean.
func TestProperty_AppendOnlyChainsVerify(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("append-only chains are valid", prop.ForAll(
		func(titles []string, quantities []int64) bool {
			ctx := context.Background()
			s := store.NewMemoryStore()
			w, err := NewWriter(s, DefaultConfig())
			if err != nil {
				return false
			}
			w.WithClock(fixedClock(testStart))

			for i, title := range titles {
				var p Payload = Project{Title: "p-" + title}
				if i < len(quantities) && i%2 == 1 {
					p = MaterialDelivery{Material: "m-" + title, Quantity: quantities[i]}
				}
				if _, err := w.Append(ctx, p); err != nil {
					return false
				}
			}

			docs, err := s.QueryOrderedByTimestamp(ctx, DefaultLedgerName, store.Ascending, 0)
			if err != nil || len(docs) != len(titles) {
				return false
			}
			prev := GenesisHash
			for _, d := range docs {
				if d.Fields.String(FieldPreviousHash) != prev {
					return false
				}
				prev = d.Fields.String(FieldHash)
			}

			v, err := NewVerifier(s, DefaultConfig())
			if err != nil {
				return false
			}
			report, err := v.Verify(ctx)
			return err == nil && report.IsValid && report.TotalBlocks == len(titles)
		},
		gen.SliceOfN(8, gen.AlphaString()),
		gen.SliceOfN(8, gen.Int64Range(1, 10_000)),
	))

	properties.TestingRun(t)
}

// Property: editing one payload field of block k yields exactly one tampered
// entry, for block k, and no chain breaks.
func TestProperty_SingleEditIsLocalised(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("one edit, one tampered block", prop.ForAll(
		func(n int, k int, replacement string) bool {
			ctx := context.Background()
			s := store.NewMemoryStore()
			w, err := NewWriter(s, DefaultConfig())
			if err != nil {
				return false
			}
			w.WithClock(stepClock(testStart, time.Millisecond))

			var blocks []*Block
			for i := 0; i < n; i++ {
				b, err := w.Append(ctx, Project{Title: "block", Budget: float64(i)})
				if err != nil {
					return false
				}
				blocks = append(blocks, b)
			}
			target := blocks[k%n]
			if err := s.Update(ctx, DefaultLedgerName, target.ID, store.Record{"title": "edited-" + replacement}); err != nil {
				return false
			}

			v, err := NewVerifier(s, DefaultConfig())
			if err != nil {
				return false
			}
			report, err := v.Verify(ctx)
			if err != nil {
				return false
			}
			return len(report.TamperedBlocks) == 1 &&
				report.TamperedBlocks[0].BlockNumber == target.SequenceNumber &&
				len(report.ChainBreaks) == 0
		},
		gen.IntRange(1, 6),
		gen.IntRange(0, 100),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
