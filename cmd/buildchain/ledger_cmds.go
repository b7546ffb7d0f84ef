package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/programmer4yugal/buildchain/pkg/ledger"
)

func (c *cli) appendCmd() *cobra.Command {
	var (
		category string
		data     string
	)
	cmd := &cobra.Command{
		Use:   "append",
		Short: "Append a record to the ledger",
		Example: `  buildchain append --category projects --data '{"title":"Road","budget":1000}'
  buildchain append --category materials --data '{"material":"Cement","quantity":50}'`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if ledger.Category(category) == ledger.CategoryMilestones {
				return fmt.Errorf("milestones are recorded by approving a submission")
			}
			dec := json.NewDecoder(bytes.NewReader([]byte(data)))
			dec.UseNumber()
			var fields map[string]any
			if err := dec.Decode(&fields); err != nil {
				return fmt.Errorf("--data must be a JSON object: %w", err)
			}
			ledger.ApplyDefaults(ledger.Category(category), fields, time.Now())
			p, err := ledger.ParsePayload(ledger.Category(category), fields)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			return c.withApp(ctx, func(a *app) error {
				block, err := a.writer.Append(ctx, p)
				if block == nil {
					return err
				}
				if err != nil {
					_, _ = fmt.Fprintf(c.stderr, "warning: %v\n", err)
				}
				return c.printJSON(block)
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "record category, e.g. projects (REQUIRED)")
	cmd.Flags().StringVar(&data, "data", "", "record fields as a JSON object (REQUIRED)")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func (c *cli) tipCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tip",
		Short: "Show the latest block",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return c.withApp(ctx, func(a *app) error {
				tip, err := a.writer.Tip(ctx)
				if err != nil {
					return err
				}
				if tip == nil {
					_, _ = fmt.Fprintf(c.stdout, "Ledger %s is empty (genesis %s)\n", a.ledger.LedgerName, a.ledger.GenesisHash)
					return nil
				}
				_, _ = fmt.Fprintf(c.stdout, "Block %d: %s %q\n", tip.SequenceNumber, displayName(string(tip.Category)), tip.Label())
				_, _ = fmt.Fprintf(c.stdout, "Hash:     %s\nPrevious: %s\nTime:     %s\n", tip.Hash, tip.PreviousHash, tip.Timestamp)
				return nil
			})
		},
	}
}
