package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/pterm/pterm"

	"github.com/NavarchProject/spotorch/pkg/api"
)

func fixNow(t *testing.T, at time.Time) {
	t.Helper()
	prev := now
	now = func() time.Time { return at }
	t.Cleanup(func() { now = prev })
}

func TestFormatTimestamp(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	fixNow(t, base)

	tests := []struct {
		name string
		in   time.Time
		want string
	}{
		{"zero", time.Time{}, "Never"},
		{"seconds", base.Add(-42 * time.Second), "42s ago"},
		{"minutes", base.Add(-5 * time.Minute), "5m ago"},
		{"hours", base.Add(-3 * time.Hour), "3h ago"},
		{"days", base.Add(-50 * time.Hour), "2d ago"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatTimestamp(tt.in); got != tt.want {
				t.Errorf("formatTimestamp() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatStatus(t *testing.T) {
	tests := map[string]string{
		"pending":              "Pending",
		"awaiting_fulfillment": "Awaiting Fulfillment",
		"succeeded":            "Succeeded",
		"failed":               "Failed",
		"stopped":              "Stopped",
		"running":              "Unknown",
		"":                     "Unknown",
	}
	for in, want := range tests {
		if got := formatStatus(in); got != want {
			t.Errorf("formatStatus(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatRegion(t *testing.T) {
	if got := formatRegion(nil); got != "No eligible region" {
		t.Errorf("formatRegion(nil) = %q", got)
	}
	r := "us-west-2"
	if got := formatRegion(&r); got != "us-west-2" {
		t.Errorf("formatRegion() = %q", got)
	}
	if got := formatCandidate(""); got != "-" {
		t.Errorf("formatCandidate(\"\") = %q", got)
	}
}

func TestWriteRunsTable(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	fixNow(t, base)

	runs := []*api.Run{
		{
			RunID:           "run-1",
			Status:          "awaiting_fulfillment",
			CandidateRegion: "us-west-2",
			Attempts:        []api.Attempt{{Region: "us-east-1", Outcome: "not_fulfilled"}, {Region: "us-west-2"}},
			CreatedAt:       base.Add(-10 * time.Minute),
			UpdatedAt:       base.Add(-time.Minute),
		},
		{RunID: "run-2", Status: "failed", CreatedAt: base.Add(-2 * time.Hour), UpdatedAt: base.Add(-time.Hour)},
	}

	var buf bytes.Buffer
	if err := writeRunsTable(&buf, runs); err != nil {
		t.Fatalf("writeRunsTable() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"run-1", "run-2", "Awaiting Fulfillment", "us-west-2", "Failed", "10m ago"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteRunDetails(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	fixNow(t, base)
	awaiting := base.Add(-30 * time.Second)

	var buf bytes.Buffer
	writeRunDetails(&buf, &api.Run{
		RunID:           "run-1",
		Status:          "awaiting_fulfillment",
		ResourceType:    "p5.48xlarge",
		CandidateRegion: "eu-west-1",
		ExcludedRegions: []string{"us-east-1", "us-west-2"},
		Attempts:        []api.Attempt{{Region: "eu-west-1", StartedAt: awaiting}},
		CreatedAt:       base.Add(-time.Minute),
		AwaitingSince:   &awaiting,
	})

	out := buf.String()
	for _, want := range []string{"run-1", "p5.48xlarge", "eu-west-1", "us-east-1, us-west-2", "30s ago", "pending"} {
		if !strings.Contains(out, want) {
			t.Errorf("details missing %q:\n%s", want, out)
		}
	}
}

func TestActiveRunsTable(t *testing.T) {
	fixNow(t, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))

	data := activeRunsTable([]*api.Run{{RunID: "run-1", Status: "pending"}})
	want := pterm.TableData{
		{"Run ID", "Status", "Region", "Waiting"},
		{"run-1", "Pending", "-", "-"},
	}
	if len(data) != len(want) {
		t.Fatalf("rows = %d, want %d", len(data), len(want))
	}
	for i := range want {
		if strings.Join(data[i], "|") != strings.Join(want[i], "|") {
			t.Errorf("row %d = %v, want %v", i, data[i], want[i])
		}
	}

	state := stateTable(&api.GetProvisioningStateResponse{
		ResourceType: "p5.48xlarge",
		Regions:      []string{"a", "b", "c"},
		ActiveRuns:   1,
	})
	if got := strings.Join(state[1], "|"); got != "p5.48xlarge|3|1" {
		t.Errorf("state row = %q", got)
	}
}

func TestWriteJSON(t *testing.T) {
	region := "us-west-2"
	var buf bytes.Buffer
	if err := writeJSON(&buf, &api.RecommendRegionResponse{Region: &region}); err != nil {
		t.Fatalf("writeJSON() error = %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if got["region"] != "us-west-2" {
		t.Errorf("region = %v", got["region"])
	}
}
