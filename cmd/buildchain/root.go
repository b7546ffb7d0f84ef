package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/programmer4yugal/buildchain/pkg/config"
)

type cli struct {
	stdout io.Writer
	stderr io.Writer
	cfg    *config.Config
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "buildchain",
		Short:         "Tamper-evident ledger for construction project records",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			c.cfg = cfg
			setupLogger(cfg.LogLevel, stderr)
			return nil
		},
	}

	root.AddCommand(
		c.serveCmd(),
		c.verifyCmd(),
		c.appendCmd(),
		c.tipCmd(),
		c.submissionsCmd(),
		c.reconcileCmd(),
		c.snapshotCmd(),
		c.tokenCmd(),
	)
	return root
}

// withApp opens the configured stores for the duration of fn.
func (c *cli) withApp(ctx context.Context, fn func(*app) error) (err error) {
	a, err := openApp(ctx, c.cfg)
	if err != nil {
		return &exitError{code: exitRuntime, msg: fmt.Sprintf("Error: %v", err)}
	}
	defer func() {
		if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(a)
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var titleCaser = cases.Title(language.English)

// displayName renders a category like "defined_milestones" as
// "Defined Milestones".
func displayName(category string) string {
	return titleCaser.String(strings.ReplaceAll(category, "_", " "))
}
