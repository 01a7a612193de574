// Package api defines the OrchestratorService messages and the connect
// handler and client for them. Messages travel as JSON.
package api

import "time"

// ToggleRequest flips the provisioning switch.
type ToggleRequest struct {
	// Action is "enable" or "disable".
	Action string `json:"action"`
	// Teardown asks every worker region to release its spot instances.
	// Only meaningful with "disable".
	Teardown bool `json:"teardown,omitempty"`
}

type ToggleResponse struct {
	Message string `json:"message"`
}

type RecommendRegionRequest struct {
	ExcludeRegions []string `json:"exclude_regions,omitempty"`
}

// RecommendRegionResponse carries the recommended region, or null when no
// candidate is eligible.
type RecommendRegionResponse struct {
	Region *string `json:"region"`
}

// RouteCapacityEventRequest is a worker-region event in EventBridge shape.
type RouteCapacityEventRequest struct {
	Source     string              `json:"source"`
	DetailType string              `json:"detail-type"`
	Detail     CapacityEventDetail `json:"detail"`
}

type CapacityEventDetail struct {
	TaskToken string `json:"TaskToken"`
	Region    string `json:"region,omitempty"`
	Operation string `json:"operation,omitempty"`
}

type RouteCapacityEventResponse struct {
	Result  string `json:"result"`
	Message string `json:"message"`
}

type StartRunRequest struct {
	ExcludeRegions []string `json:"exclude_regions,omitempty"`
}

type StartRunResponse struct {
	Run *Run `json:"run"`
}

type StopRunRequest struct {
	RunID string `json:"run_id"`
}

type StopRunResponse struct {
	Run *Run `json:"run"`
}

type GetRunRequest struct {
	RunID string `json:"run_id"`
}

type GetRunResponse struct {
	Run *Run `json:"run"`
}

// ListRunsRequest filters runs by status. Empty returns every run.
type ListRunsRequest struct {
	Statuses []string `json:"statuses,omitempty"`
}

type ListRunsResponse struct {
	Runs []*Run `json:"runs"`
}

type GetProvisioningStateRequest struct{}

type GetProvisioningStateResponse struct {
	Enabled      bool     `json:"enabled"`
	ActiveRuns   int      `json:"active_runs"`
	Regions      []string `json:"regions"`
	ResourceType string   `json:"resource_type"`
}

type GetInstancesInfoRequest struct{}

// GetInstancesInfoResponse returns the stored instances record verbatim.
type GetInstancesInfoResponse struct {
	Info string `json:"info"`
}

// Run is the wire form of a workflow run.
type Run struct {
	RunID           string     `json:"run_id"`
	Status          string     `json:"status"`
	ResourceType    string     `json:"resource_type"`
	CandidateRegion string     `json:"candidate_region,omitempty"`
	ExcludedRegions []string   `json:"excluded_regions,omitempty"`
	Attempts        []Attempt  `json:"attempts,omitempty"`
	Reason          string     `json:"reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	AwaitingSince   *time.Time `json:"awaiting_since,omitempty"`
}

// Attempt is one region tried by a run.
type Attempt struct {
	Region     string     `json:"region"`
	Outcome    string     `json:"outcome,omitempty"`
	Operation  string     `json:"operation,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}
