package main

import (
	"fmt"

	"connectrpc.com/connect"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/NavarchProject/spotorch/pkg/api"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the provisioning switch and in-flight runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()

			ctx, cancel := requestContext()
			defer cancel()

			state, err := client.GetProvisioningState(ctx, connect.NewRequest(&api.GetProvisioningStateRequest{}))
			if err != nil {
				return fmt.Errorf("failed to get provisioning state: %w", err)
			}
			runs, err := client.ListRuns(ctx, connect.NewRequest(&api.ListRunsRequest{
				Statuses: []string{"pending", "awaiting_fulfillment"},
			}))
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			if outputFormat == "json" {
				return writeJSON(cmd.OutOrStdout(), struct {
					*api.GetProvisioningStateResponse
					Runs []*api.Run `json:"runs"`
				}{state.Msg, runs.Msg.Runs})
			}

			pterm.DefaultSection.WithWriter(cmd.OutOrStdout()).Println("Provisioning")
			fmt.Fprintln(cmd.OutOrStdout(), formatEnabled(state.Msg.Enabled))
			if err := pterm.DefaultTable.WithHasHeader().WithBoxed().
				WithWriter(cmd.OutOrStdout()).
				WithData(stateTable(state.Msg)).Render(); err != nil {
				return err
			}

			if len(runs.Msg.Runs) == 0 {
				return nil
			}
			pterm.DefaultSection.WithWriter(cmd.OutOrStdout()).Println("Active runs")
			return pterm.DefaultTable.WithHasHeader().WithBoxed().
				WithWriter(cmd.OutOrStdout()).
				WithData(activeRunsTable(runs.Msg.Runs)).Render()
		},
	}
}

func instancesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "instances",
		Short: "Print the instances record the orchestrator keeps for workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			resp, err := newClient().GetInstancesInfo(ctx, connect.NewRequest(&api.GetInstancesInfoRequest{}))
			if err != nil {
				return fmt.Errorf("failed to get instances info: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Msg.Info)
			return nil
		},
	}
}
