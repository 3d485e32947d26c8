package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Dr1DeX/orgtree/modules/org/presentation/mappers"
	"github.com/Dr1DeX/orgtree/modules/org/services"
)

func newEmployeeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "employee",
		Aliases: []string{"emp"},
		Short:   "Hire, update, move and remove employees",
	}
	cmd.AddCommand(newEmployeeCreateCmd(opts))
	cmd.AddCommand(newEmployeeUpdateCmd(opts))
	cmd.AddCommand(newEmployeeDeleteCmd(opts))
	cmd.AddCommand(newEmployeeGetCmd(opts))
	cmd.AddCommand(newEmployeeImportCmd(opts))
	return cmd
}

func parseDate(raw string) (time.Time, error) {
	t, err := time.Parse(mappers.DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, withCode(exitUsage, fmt.Errorf("invalid date %q (expected YYYY-MM-DD)", raw))
	}
	return t.UTC(), nil
}

func parseSalary(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, withCode(exitUsage, fmt.Errorf("invalid salary %q", raw))
	}
	return d, nil
}

func newEmployeeCreateCmd(opts *rootOptions) *cobra.Command {
	var (
		name         string
		position     string
		hiredAt      string
		salary       string
		departmentID int64
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Hire an employee into a department",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hired, err := parseDate(hiredAt)
			if err != nil {
				return err
			}
			amount, err := parseSalary(salary)
			if err != nil {
				return err
			}
			return run(cmd, opts, "employee create", func(e *cliEnv) (any, error) {
				emp, err := e.svc.Employees.CreateEmployee(e.ctx, services.CreateEmployeeInput{
					FullName:     name,
					Position:     position,
					HiredAt:      hired,
					Salary:       amount,
					DepartmentID: departmentID,
				})
				if err != nil {
					return nil, err
				}
				return mappers.EmployeeToViewModel(*emp), nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Full name (required)")
	cmd.Flags().StringVar(&position, "position", "", "Position (required)")
	cmd.Flags().StringVar(&hiredAt, "hired-at", time.Now().UTC().Format(mappers.DateLayout), "Hire date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&salary, "salary", "0", "Salary, at most 2 decimal places")
	cmd.Flags().Int64Var(&departmentID, "department", 0, "Department id (required)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("position")
	_ = cmd.MarkFlagRequired("department")
	return cmd
}

func newEmployeeUpdateCmd(opts *rootOptions) *cobra.Command {
	var (
		id           int64
		name         string
		position     string
		hiredAt      string
		salary       string
		departmentID int64
	)
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Patch an employee; --department moves them and re-stamps structure_path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := services.UpdateEmployeeInput{ID: id}
			flags := cmd.Flags()
			if flags.Changed("name") {
				in.FullName = &name
			}
			if flags.Changed("position") {
				in.Position = &position
			}
			if flags.Changed("hired-at") {
				hired, err := parseDate(hiredAt)
				if err != nil {
					return err
				}
				in.HiredAt = &hired
			}
			if flags.Changed("salary") {
				amount, err := parseSalary(salary)
				if err != nil {
					return err
				}
				in.Salary = &amount
			}
			if flags.Changed("department") {
				in.DepartmentID = &departmentID
			}
			return run(cmd, opts, "employee update", func(e *cliEnv) (any, error) {
				emp, err := e.svc.Employees.UpdateEmployee(e.ctx, in)
				if err != nil {
					return nil, err
				}
				return mappers.EmployeeToViewModel(*emp), nil
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "Employee id (required)")
	cmd.Flags().StringVar(&name, "name", "", "Full name")
	cmd.Flags().StringVar(&position, "position", "", "Position")
	cmd.Flags().StringVar(&hiredAt, "hired-at", "", "Hire date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&salary, "salary", "", "Salary")
	cmd.Flags().Int64Var(&departmentID, "department", 0, "Move to this department")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newEmployeeDeleteCmd(opts *rootOptions) *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove an employee",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, "employee delete", func(e *cliEnv) (any, error) {
				if err := e.svc.Employees.DeleteEmployee(e.ctx, id); err != nil {
					return nil, err
				}
				return map[string]any{"id": id, "deleted": true}, nil
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "Employee id (required)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newEmployeeGetCmd(opts *rootOptions) *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show one employee",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, "employee get", func(e *cliEnv) (any, error) {
				emp, err := e.svc.Employees.GetEmployee(e.ctx, id)
				if err != nil {
					return nil, err
				}
				return mappers.EmployeeToViewModel(*emp), nil
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "Employee id (required)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
