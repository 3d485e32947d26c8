package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/Dr1DeX/orgtree/migrations"
	"github.com/Dr1DeX/orgtree/pkg/configuration"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect the org schema migrations",
	}
	cmd.AddCommand(newMigrateSubCmd("up", "Apply all pending migrations", func(cmd *cobra.Command, r *migrations.Runner) (any, error) {
		return r.Up(cmd.Context())
	}))
	cmd.AddCommand(newMigrateSubCmd("down", "Roll back the latest migration", func(cmd *cobra.Command, r *migrations.Runner) (any, error) {
		return r.Down(cmd.Context())
	}))
	cmd.AddCommand(newMigrateSubCmd("status", "List migrations and whether they are applied", func(cmd *cobra.Command, r *migrations.Runner) (any, error) {
		return r.Status(cmd.Context())
	}))
	return cmd
}

func newMigrateSubCmd(use, short string, fn func(cmd *cobra.Command, r *migrations.Runner) (any, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := connectDB(cmd.Context(), configuration.Use())
			if err != nil {
				return err
			}
			defer pool.Close()

			runner, err := migrations.NewRunner(pool)
			if err != nil {
				return withCode(exitDB, err)
			}
			defer func() { _ = runner.Close() }()

			start := time.Now()
			res, err := fn(cmd, runner)
			if err != nil {
				return withCode(exitDB, err)
			}
			return writeResult(cmd, commandOutput{
				Command:    "migrate " + use,
				DurationMS: time.Since(start).Milliseconds(),
				Result:     res,
			})
		},
	}
}
