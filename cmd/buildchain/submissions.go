package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/programmer4yugal/buildchain/pkg/ledger"
	"github.com/programmer4yugal/buildchain/pkg/lifecycle"
)

func (c *cli) submissionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submissions",
		Short: "Stage and approve milestone submissions",
	}
	cmd.AddCommand(c.submitCmd(), c.listSubmissionsCmd(), c.approveCmd())
	return cmd
}

func (c *cli) submitCmd() *cobra.Command {
	var req lifecycle.SubmitRequest
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Stage a milestone for approval",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return c.withApp(ctx, func(a *app) error {
				sub, err := a.lifecycle.Submit(ctx, req)
				if err != nil {
					return err
				}
				return c.printJSON(sub)
			})
		},
	}
	cmd.Flags().StringVar(&req.ProjectID, "project", "", "project id (REQUIRED)")
	cmd.Flags().StringVar(&req.Description, "description", "", "what was completed (REQUIRED)")
	cmd.Flags().StringVar(&req.DefinedMilestoneID, "milestone", "", "defined milestone id")
	cmd.Flags().StringVar(&req.ProofHash, "proof", "", "content hash of the supporting evidence")
	cmd.Flags().StringVar(&req.From, "from", "", "submitting contractor")
	return cmd
}

func (c *cli) listSubmissionsCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List submissions by status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return c.withApp(ctx, func(a *app) error {
				subs, err := a.lifecycle.List(ctx, status)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(tw, "ID\tPROJECT\tSTATUS\tSUBMITTED\tDESCRIPTION")
				for _, s := range subs {
					_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.ProjectID, s.Status, s.Timestamp, s.Description)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", ledger.StatusPending, "submission status to list")
	return cmd
}

func (c *cli) approveCmd() *cobra.Command {
	var approver string
	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a submission and record it on the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withApp(ctx, func(a *app) error {
				block, err := a.lifecycle.Approve(ctx, args[0], approver)
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
	cmd.Flags().StringVar(&approver, "approver", "", "approving administrator (REQUIRED)")
	_ = cmd.MarkFlagRequired("approver")
	return cmd
}
