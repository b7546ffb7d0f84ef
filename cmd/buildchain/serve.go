package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/programmer4yugal/buildchain/pkg/api"
	"github.com/programmer4yugal/buildchain/pkg/auth"
	"github.com/programmer4yugal/buildchain/pkg/server"
)

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return c.withApp(ctx, func(a *app) error {
				exp, err := a.exporter(ctx)
				if err != nil {
					return err
				}

				limiter := api.NewRateLimiter(c.cfg.RateLimitRPS, c.cfg.RateLimitRPS*2)
				go limiter.Run(ctx)

				srv, err := server.New(server.Deps{
					Writer:     a.writer,
					Verifier:   a.verifier,
					Strict:     a.strict,
					Reconciler: a.reconciler,
					Lifecycle:  a.lifecycle,
					Exporter:   exp,
					Validator:  auth.NewValidator(c.cfg.JWTSecret),
					Limiter:    limiter,
				})
				if err != nil {
					return err
				}
				return srv.ListenAndServe(ctx, ":"+c.cfg.Port)
			})
		},
	}
}
