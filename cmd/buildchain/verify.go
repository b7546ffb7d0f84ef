package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/programmer4yugal/buildchain/pkg/ledger"
)

// verifyCmd re-derives every block hash.
//
// Exit codes:
//
//	0 = chain valid
//	1 = tampering or broken linkage found
//	2 = runtime error
func (c *cli) verifyCmd() *cobra.Command {
	var (
		jsonOut bool
		strict  bool
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify the integrity of the ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return c.withApp(ctx, func(a *app) error {
				v := a.verifier
				if strict || c.cfg.VerifyStrict {
					v = a.strict
				}
				report, err := v.Verify(ctx)
				if err != nil {
					return &exitError{code: exitRuntime, msg: fmt.Sprintf("Error: verification failed: %v", err)}
				}

				if jsonOut {
					if err := c.printJSON(report); err != nil {
						return err
					}
				} else {
					c.printReport(report)
				}
				if !report.IsValid {
					return &exitError{code: exitIntegrity}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the report as JSON")
	cmd.Flags().BoolVar(&strict, "strict", false, "link each block to the recomputed hash of its predecessor")
	return cmd
}

func (c *cli) printReport(r *ledger.Report) {
	w := c.stdout
	if r.IsValid {
		_, _ = fmt.Fprintf(w, "Ledger %s is VALID (%d blocks, %s linkage)\n", r.Ledger, r.TotalBlocks, r.Mode)
	} else {
		_, _ = fmt.Fprintf(w, "Ledger %s is INVALID (%d blocks, %s linkage)\n", r.Ledger, r.TotalBlocks, r.Mode)
	}
	if r.HeadHash != "" {
		_, _ = fmt.Fprintf(w, "Head: %s\n", r.HeadHash)
	}

	categories := make([]string, 0, len(r.CountsByCategory))
	for cat := range r.CountsByCategory {
		categories = append(categories, cat)
	}
	sort.Strings(categories)
	for _, cat := range categories {
		_, _ = fmt.Fprintf(w, "  %-20s %d\n", displayName(cat), r.CountsByCategory[cat])
	}

	for _, t := range r.TamperedBlocks {
		_, _ = fmt.Fprintf(w, "  TAMPERED block %d (%s): stored %s, computed %s\n", t.BlockNumber, t.Label, t.StoredHash, t.ComputedHash)
	}
	for _, b := range r.ChainBreaks {
		_, _ = fmt.Fprintf(w, "  BROKEN link at block %d: previousHash %s, expected %s\n", b.BlockNumber, b.StoredPreviousHash, b.ExpectedPreviousHash)
	}
	for _, f := range r.Forks {
		_, _ = fmt.Fprintf(w, "  fork at block %d: %s (conflicts with %s)\n", f.BlockNumber, f.Reason, f.ConflictsWith)
	}
}
