package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/Dr1DeX/orgtree/modules/org/infrastructure/outbox"
	"github.com/Dr1DeX/orgtree/pkg/configuration"
)

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect the org change stream",
	}
	cmd.AddCommand(newEventsTailCmd())
	return cmd
}

func newEventsTailCmd() *cobra.Command {
	var count int64
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print the most recent change events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf := configuration.Use()
			if !conf.Org.EventsStream {
				return withCode(exitUsage, errors.New("events stream is disabled (set ORG_EVENTS_STREAM=true)"))
			}
			rdb, err := connectRedis(cmd.Context(), conf)
			if err != nil {
				return err
			}
			defer func() { _ = rdb.Close() }()

			start := time.Now()
			publisher := outbox.NewStreamPublisher(rdb, conf.Org.EventsStreamName, conf.Org.EventsStreamMaxLen)
			evs, err := publisher.Recent(cmd.Context(), count)
			if err != nil {
				return withCode(exitDB, err)
			}
			return writeResult(cmd, commandOutput{
				Command:    "events tail",
				DurationMS: time.Since(start).Milliseconds(),
				Result:     evs,
			})
		},
	}
	cmd.Flags().Int64Var(&count, "count", 20, "Number of events")
	return cmd
}
