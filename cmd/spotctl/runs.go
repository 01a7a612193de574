package main

import (
	"fmt"

	"connectrpc.com/connect"
	"github.com/spf13/cobra"

	"github.com/NavarchProject/spotorch/pkg/api"
)

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect and drive provisioning runs",
	}

	cmd.AddCommand(runsListCmd())
	cmd.AddCommand(runsGetCmd())
	cmd.AddCommand(runsStartCmd())
	cmd.AddCommand(runsStopCmd())

	return cmd
}

func runsListCmd() *cobra.Command {
	var statuses []string
	var active bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if active {
				statuses = append(statuses, "pending", "awaiting_fulfillment")
			}

			ctx, cancel := requestContext()
			defer cancel()

			resp, err := newClient().ListRuns(ctx, connect.NewRequest(&api.ListRunsRequest{Statuses: statuses}))
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			out := cmd.OutOrStdout()
			switch outputFormat {
			case "json":
				return writeJSON(out, resp.Msg.Runs)
			case "table":
				if len(resp.Msg.Runs) == 0 {
					fmt.Fprintln(out, "No runs found")
					return nil
				}
				return writeRunsTable(out, resp.Msg.Runs)
			default:
				return fmt.Errorf("unsupported output format: %s", outputFormat)
			}
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (pending, awaiting_fulfillment, succeeded, failed, stopped)")
	cmd.Flags().BoolVar(&active, "active", false, "Only runs still in flight")

	return cmd
}

func runsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <run-id>",
		Short: "Get details about a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			resp, err := newClient().GetRun(ctx, connect.NewRequest(&api.GetRunRequest{RunID: args[0]}))
			if err != nil {
				return fmt.Errorf("failed to get run: %w", err)
			}
			return printRun(cmd, resp.Msg.Run)
		},
	}
}

func runsStartCmd() *cobra.Command {
	var exclude []string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a provisioning run",
		Long:  "Start a run directly, regardless of the provisioning switch.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			resp, err := newClient().StartRun(ctx, connect.NewRequest(&api.StartRunRequest{ExcludeRegions: exclude}))
			if err != nil {
				return fmt.Errorf("failed to start run: %w", err)
			}
			return printRun(cmd, resp.Msg.Run)
		},
	}

	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "Regions the run must not try")

	return cmd
}

func runsStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <run-id>",
		Short: "Stop a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			resp, err := newClient().StopRun(ctx, connect.NewRequest(&api.StopRunRequest{RunID: args[0]}))
			if err != nil {
				return fmt.Errorf("failed to stop run: %w", err)
			}
			return printRun(cmd, resp.Msg.Run)
		},
	}
}

func printRun(cmd *cobra.Command, run *api.Run) error {
	switch outputFormat {
	case "json":
		return writeJSON(cmd.OutOrStdout(), run)
	case "table":
		writeRunDetails(cmd.OutOrStdout(), run)
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s", outputFormat)
	}
}
