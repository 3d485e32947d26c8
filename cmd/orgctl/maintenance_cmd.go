package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVerifyCmd(opts *rootOptions) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check path, level and structure_path consistency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var ok bool
			err := run(cmd, opts, "verify", func(e *cliEnv) (any, error) {
				report, err := e.svc.Consistency.Verify(e.ctx)
				if err != nil {
					return nil, err
				}
				ok = report.OK()
				return report, nil
			})
			if err != nil {
				return err
			}
			if strict && !ok {
				return withCode(exitConflict, fmt.Errorf("verify: inconsistencies found"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when inconsistencies are found")
	return cmd
}

func newReconcileCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Rebuild every department path from parent links and repair employees",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, "reconcile", func(e *cliEnv) (any, error) {
				return e.svc.Consistency.Reconcile(e.ctx)
			})
		},
	}
}

func newPropagateCmd(opts *rootOptions) *cobra.Command {
	var departmentID int64
	cmd := &cobra.Command{
		Use:   "propagate",
		Short: "Re-stamp structure_path for employees under a department",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, "propagate", func(e *cliEnv) (any, error) {
				res, err := e.svc.Propagator.PropagateDepartment(e.ctx, departmentID)
				if err != nil {
					return nil, err
				}
				if res.Rewritten > 0 {
					if err := e.svc.Cache.Invalidate(e.ctx); err != nil {
						return nil, err
					}
				}
				return res, nil
			})
		},
	}
	cmd.Flags().Int64Var(&departmentID, "department", 0, "Department id (required)")
	_ = cmd.MarkFlagRequired("department")
	return cmd
}
