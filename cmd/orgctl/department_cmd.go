package main

import (
	"github.com/spf13/cobra"

	"github.com/Dr1DeX/orgtree/modules/org/presentation/mappers"
	"github.com/Dr1DeX/orgtree/modules/org/services"
)

func newDepartmentCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "department",
		Aliases: []string{"dept"},
		Short:   "Create, move, rename and delete departments",
	}
	cmd.AddCommand(newDepartmentCreateCmd(opts))
	cmd.AddCommand(newDepartmentRenameCmd(opts))
	cmd.AddCommand(newDepartmentMoveCmd(opts))
	cmd.AddCommand(newDepartmentDeleteCmd(opts))
	cmd.AddCommand(newDepartmentGetCmd(opts))
	cmd.AddCommand(newDepartmentListCmd(opts))
	return cmd
}

func newDepartmentCreateCmd(opts *rootOptions) *cobra.Command {
	var (
		name     string
		parentID int64
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a department under --parent, or at the top level",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, "department create", func(e *cliEnv) (any, error) {
				d, err := e.svc.Hierarchy.CreateDepartment(e.ctx, services.CreateDepartmentInput{
					Name:     name,
					ParentID: optionalID(parentID),
				})
				if err != nil {
					return nil, err
				}
				return mappers.DepartmentToViewModel(*d), nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Department name (required)")
	cmd.Flags().Int64Var(&parentID, "parent", 0, "Parent department id (0 for top level)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newDepartmentRenameCmd(opts *rootOptions) *cobra.Command {
	var (
		id   int64
		name string
	)
	cmd := &cobra.Command{
		Use:   "rename",
		Short: "Rename a department",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, "department rename", func(e *cliEnv) (any, error) {
				d, err := e.svc.Hierarchy.RenameDepartment(e.ctx, id, name)
				if err != nil {
					return nil, err
				}
				return mappers.DepartmentToViewModel(*d), nil
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "Department id (required)")
	cmd.Flags().StringVar(&name, "name", "", "New name (required)")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newDepartmentMoveCmd(opts *rootOptions) *cobra.Command {
	var (
		id       int64
		parentID int64
	)
	cmd := &cobra.Command{
		Use:   "move",
		Short: "Reparent a department and rewrite its subtree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, "department move", func(e *cliEnv) (any, error) {
				res, err := e.svc.Hierarchy.ReparentDepartment(e.ctx, services.ReparentDepartmentInput{
					ID:          id,
					NewParentID: optionalID(parentID),
				})
				if err != nil {
					return nil, err
				}
				return mappers.ReparentResultToViewModel(res), nil
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "Department id (required)")
	cmd.Flags().Int64Var(&parentID, "parent", 0, "New parent id (0 for top level)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newDepartmentDeleteCmd(opts *rootOptions) *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a department without children or employees",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, "department delete", func(e *cliEnv) (any, error) {
				if err := e.svc.Hierarchy.DeleteDepartment(e.ctx, id); err != nil {
					return nil, err
				}
				return map[string]any{"id": id, "deleted": true}, nil
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "Department id (required)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newDepartmentGetCmd(opts *rootOptions) *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show one department",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, "department get", func(e *cliEnv) (any, error) {
				d, err := e.svc.Hierarchy.GetDepartment(e.ctx, id)
				if err != nil {
					return nil, err
				}
				return mappers.DepartmentToViewModel(*d), nil
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "Department id (required)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newDepartmentListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every department ordered by path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, "department list", func(e *cliEnv) (any, error) {
				ds, err := e.svc.Hierarchy.ListDepartments(e.ctx)
				if err != nil {
					return nil, err
				}
				return mappers.DepartmentsToViewModels(ds), nil
			})
		},
	}
}
