package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	controlPlaneAddr string
	outputFormat     string
	authToken        string
	requestTimeout   time.Duration
	insecure         bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "spotctl",
		Short: "Spot capacity orchestrator CLI",
		Long:  `spotctl drives the spot orchestrator control plane: the provisioning switch, region recommendations and provisioning runs.`,
	}

	defaultAddr := "http://localhost:50051"
	if envAddr := os.Getenv("SPOTORCH_CONTROL_PLANE"); envAddr != "" {
		defaultAddr = envAddr
	}

	rootCmd.PersistentFlags().StringVar(&controlPlaneAddr, "control-plane", defaultAddr, "Control plane address (env: SPOTORCH_CONTROL_PLANE)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", os.Getenv("SPOTORCH_TOKEN"), "Bearer token (env: SPOTORCH_TOKEN)")
	rootCmd.PersistentFlags().DurationVar(&requestTimeout, "timeout", 30*time.Second, "Request timeout")
	rootCmd.PersistentFlags().BoolVar(&insecure, "insecure", false, "Skip TLS certificate verification")

	rootCmd.AddCommand(enableCmd())
	rootCmd.AddCommand(disableCmd())
	rootCmd.AddCommand(recommendCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(eventCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(instancesCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
