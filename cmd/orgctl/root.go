package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	requestID string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "orgctl",
		Short:         "Department tree maintenance and query tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.requestID, "request-id", "", "Request id recorded on emitted events (default: random uuid)")
	cmd.PersistentFlags().StringP("output", "o", outputJSON, "Output format: json|yaml")

	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newDepartmentCmd(opts))
	cmd.AddCommand(newEmployeeCmd(opts))
	cmd.AddCommand(newCountCmd(opts))
	cmd.AddCommand(newListCmd(opts))
	cmd.AddCommand(newTreeCmd(opts))
	cmd.AddCommand(newVerifyCmd(opts))
	cmd.AddCommand(newReconcileCmd(opts))
	cmd.AddCommand(newPropagateCmd(opts))
	cmd.AddCommand(newEventsCmd())
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		code := exitCode(err)
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(code)
	}
}
