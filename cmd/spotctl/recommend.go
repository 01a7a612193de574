package main

import (
	"fmt"

	"connectrpc.com/connect"
	"github.com/spf13/cobra"

	"github.com/NavarchProject/spotorch/pkg/api"
)

func recommendCmd() *cobra.Command {
	var exclude []string

	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Show the region the orchestrator would try next",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()

			resp, err := newClient().RecommendRegion(ctx, connect.NewRequest(&api.RecommendRegionRequest{
				ExcludeRegions: exclude,
			}))
			if err != nil {
				return fmt.Errorf("failed to recommend region: %w", err)
			}

			if outputFormat == "json" {
				return writeJSON(cmd.OutOrStdout(), resp.Msg)
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatRegion(resp.Msg.Region))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "Regions to leave out (repeatable or comma separated)")

	return cmd
}
