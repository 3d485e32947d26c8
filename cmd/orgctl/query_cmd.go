package main

import (
	"github.com/spf13/cobra"

	"github.com/Dr1DeX/orgtree/modules/org/presentation/mappers"
	"github.com/Dr1DeX/orgtree/modules/org/services"
)

func newCountCmd(opts *rootOptions) *cobra.Command {
	var (
		departmentID int64
		subtree      bool
	)
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count employees of a department, including its subtree by default",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, "count", func(e *cliEnv) (any, error) {
				var (
					n   int64
					err error
				)
				if subtree {
					n, err = e.svc.Queries.CountUnder(e.ctx, departmentID)
				} else {
					n, err = e.svc.Queries.CountDirect(e.ctx, departmentID)
				}
				if err != nil {
					return nil, err
				}
				return map[string]any{
					"department_id":   departmentID,
					"include_subtree": subtree,
					"count":           n,
				}, nil
			})
		},
	}
	cmd.Flags().Int64Var(&departmentID, "department", 0, "Department id (required)")
	cmd.Flags().BoolVar(&subtree, "subtree", true, "Include employees of descendant departments")
	_ = cmd.MarkFlagRequired("department")
	return cmd
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var (
		departmentID int64
		subtree      bool
		page         int
		perPage      int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Page through the employees of a department",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, "list", func(e *cliEnv) (any, error) {
				res, err := e.svc.Queries.ListUnder(e.ctx, departmentID, services.ListParams{
					IncludeSubtree: subtree,
					Page:           page,
					PageSize:       perPage,
				})
				if err != nil {
					return nil, err
				}
				return mappers.EmployeePageToViewModel(res), nil
			})
		},
	}
	cmd.Flags().Int64Var(&departmentID, "department", 0, "Department id (required)")
	cmd.Flags().BoolVar(&subtree, "subtree", false, "Include employees of descendant departments")
	cmd.Flags().IntVar(&page, "page", 1, "Page number; out of range falls back to 1")
	cmd.Flags().IntVar(&perPage, "per-page", 0, "Page size (default PAGE_SIZE)")
	_ = cmd.MarkFlagRequired("department")
	return cmd
}

func newTreeCmd(opts *rootOptions) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:     "tree",
		Aliases: []string{"snapshot"},
		Short:   "Print the department forest with employee counts",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, "tree", func(e *cliEnv) (any, error) {
				if refresh {
					if err := e.svc.Cache.Invalidate(e.ctx); err != nil {
						return nil, err
					}
				}
				snap, err := e.svc.Queries.TreeSnapshot(e.ctx)
				if err != nil {
					return nil, err
				}
				return mappers.SnapshotToTree(snap), nil
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Drop the cached snapshot before reading")
	return cmd
}
