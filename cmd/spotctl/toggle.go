package main

import (
	"fmt"

	"connectrpc.com/connect"
	"github.com/spf13/cobra"

	"github.com/NavarchProject/spotorch/pkg/api"
)

func enableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable",
		Short: "Enable spot provisioning",
		Long:  "Turn the provisioning switch on and start a run if none is in flight.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return toggle(cmd, &api.ToggleRequest{Action: "enable"})
		},
	}
}

func disableCmd() *cobra.Command {
	var teardown bool

	cmd := &cobra.Command{
		Use:   "disable",
		Short: "Disable spot provisioning",
		Long:  "Turn the provisioning switch off and stop in-flight runs. With --teardown every worker region is told to release its spot instances.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return toggle(cmd, &api.ToggleRequest{Action: "disable", Teardown: teardown})
		},
	}

	cmd.Flags().BoolVar(&teardown, "teardown", false, "Ask every region to release its spot instances")

	return cmd
}

func toggle(cmd *cobra.Command, req *api.ToggleRequest) error {
	ctx, cancel := requestContext()
	defer cancel()

	resp, err := newClient().Toggle(ctx, connect.NewRequest(req))
	if err != nil {
		return fmt.Errorf("failed to %s provisioning: %w", req.Action, err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), resp.Msg.Message)
	return nil
}
