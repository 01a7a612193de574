package main

import (
	"fmt"

	"connectrpc.com/connect"
	"github.com/spf13/cobra"

	"github.com/NavarchProject/spotorch/pkg/api"
	"github.com/NavarchProject/spotorch/pkg/events"
)

func eventCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Send worker-region capacity events",
	}
	cmd.AddCommand(eventSendCmd())
	return cmd
}

func eventSendCmd() *cobra.Command {
	var source, region, operation string
	var notFulfilled bool

	cmd := &cobra.Command{
		Use:   "send <task-token>",
		Short: "Report a capacity outcome for a callback token",
		Long:  "Send the event a worker region emits after a spot request. Useful for replaying a lost callback.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			detailType := events.DetailTypeFulfilled
			if notFulfilled {
				detailType = events.DetailTypeNotFulfilled
			}

			ctx, cancel := requestContext()
			defer cancel()

			resp, err := newClient().RouteCapacityEvent(ctx, connect.NewRequest(&api.RouteCapacityEventRequest{
				Source:     source,
				DetailType: detailType,
				Detail: api.CapacityEventDetail{
					TaskToken: args[0],
					Region:    region,
					Operation: operation,
				},
			}))
			if err != nil {
				return fmt.Errorf("failed to send event: %w", err)
			}

			if outputFormat == "json" {
				return writeJSON(cmd.OutOrStdout(), resp.Msg)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", resp.Msg.Result, resp.Msg.Message)
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "spotorch.spotworker", "Event source")
	cmd.Flags().StringVar(&region, "region", "", "Region reporting the outcome")
	cmd.Flags().StringVar(&operation, "operation", "", "Provisioning operation name")
	cmd.Flags().BoolVar(&notFulfilled, "not-fulfilled", false, "Report that capacity was not available")

	return cmd
}
