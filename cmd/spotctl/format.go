package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/pterm/pterm"

	"github.com/NavarchProject/spotorch/pkg/api"
)

// now is replaced in tests.
var now = time.Now

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeRunsTable(w io.Writer, runs []*api.Run) error {
	table := tablewriter.NewWriter(w)
	table.Append([]string{"Run ID", "Status", "Region", "Attempts", "Created", "Updated"})

	for _, run := range runs {
		table.Append([]string{
			run.RunID,
			formatStatus(run.Status),
			formatCandidate(run.CandidateRegion),
			fmt.Sprintf("%d", len(run.Attempts)),
			formatTimestamp(run.CreatedAt),
			formatTimestamp(run.UpdatedAt),
		})
	}

	return table.Render()
}

func writeRunDetails(w io.Writer, run *api.Run) {
	fmt.Fprintf(w, "Run ID:        %s\n", run.RunID)
	fmt.Fprintf(w, "Status:        %s\n", formatStatus(run.Status))
	fmt.Fprintf(w, "Resource Type: %s\n", run.ResourceType)
	fmt.Fprintf(w, "Region:        %s\n", formatCandidate(run.CandidateRegion))
	if len(run.ExcludedRegions) > 0 {
		fmt.Fprintf(w, "Excluded:      %s\n", strings.Join(run.ExcludedRegions, ", "))
	}
	if run.Reason != "" {
		fmt.Fprintf(w, "Reason:        %s\n", run.Reason)
	}
	fmt.Fprintf(w, "Created:       %s\n", formatTimestamp(run.CreatedAt))
	if run.AwaitingSince != nil {
		fmt.Fprintf(w, "Awaiting:      %s\n", formatTimestamp(*run.AwaitingSince))
	}

	if len(run.Attempts) > 0 {
		fmt.Fprintf(w, "\nAttempts:\n")
		for i, a := range run.Attempts {
			outcome := a.Outcome
			if outcome == "" {
				outcome = "pending"
			}
			fmt.Fprintf(w, "  %d. %-16s %-14s started %s\n", i+1, a.Region, outcome, formatTimestamp(a.StartedAt))
		}
	}
}

func stateTable(state *api.GetProvisioningStateResponse) pterm.TableData {
	return pterm.TableData{
		{"Resource Type", "Regions", "Active Runs"},
		{state.ResourceType, fmt.Sprintf("%d", len(state.Regions)), fmt.Sprintf("%d", state.ActiveRuns)},
	}
}

func activeRunsTable(runs []*api.Run) pterm.TableData {
	data := pterm.TableData{{"Run ID", "Status", "Region", "Waiting"}}
	for _, run := range runs {
		waiting := "-"
		if run.AwaitingSince != nil {
			waiting = formatTimestamp(*run.AwaitingSince)
		}
		data = append(data, []string{run.RunID, formatStatus(run.Status), formatCandidate(run.CandidateRegion), waiting})
	}
	return data
}

func formatStatus(status string) string {
	switch status {
	case "pending":
		return "Pending"
	case "awaiting_fulfillment":
		return "Awaiting Fulfillment"
	case "succeeded":
		return "Succeeded"
	case "failed":
		return "Failed"
	case "stopped":
		return "Stopped"
	default:
		return "Unknown"
	}
}

func formatEnabled(enabled bool) string {
	if enabled {
		return pterm.Green("enabled")
	}
	return pterm.Yellow("disabled")
}

func formatRegion(region *string) string {
	if region == nil {
		return "No eligible region"
	}
	return *region
}

func formatCandidate(region string) string {
	if region == "" {
		return "-"
	}
	return region
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "Never"
	}
	duration := now().Sub(t)
	if duration < time.Minute {
		return fmt.Sprintf("%ds ago", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm ago", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh ago", int(duration.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(duration.Hours()/24))
}
