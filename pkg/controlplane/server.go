package controlplane

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"connectrpc.com/connect"

	"github.com/NavarchProject/spotorch/pkg/api"
	"github.com/NavarchProject/spotorch/pkg/controller"
	"github.com/NavarchProject/spotorch/pkg/controlplane/db"
	"github.com/NavarchProject/spotorch/pkg/events"
	"github.com/NavarchProject/spotorch/pkg/paramstore"
	"github.com/NavarchProject/spotorch/pkg/region"
	"github.com/NavarchProject/spotorch/pkg/router"
	"github.com/NavarchProject/spotorch/pkg/workflow"
)

// Server implements the OrchestratorService connect service.
type Server struct {
	engine     *workflow.Engine
	scorer     workflow.Recommender
	router     *router.Router
	controller *controller.Controller
	store      paramstore.Store
	config     Config
	logger     *slog.Logger
}

var _ api.OrchestratorServiceHandler = (*Server)(nil)

// Config holds configuration for the control plane server.
type Config struct {
	// InstancesInfoKey is the parameter store key of the instances record
	// returned by GetInstancesInfo.
	InstancesInfoKey string
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		InstancesInfoKey: "/spotorch/instances-info",
	}
}

// NewServer creates a new Server. If logger is nil, slog.Default() is used.
func NewServer(engine *workflow.Engine, scorer workflow.Recommender, rt *router.Router, ctrl *controller.Controller, store paramstore.Store, cfg Config, logger *slog.Logger) *Server {
	if cfg.InstancesInfoKey == "" {
		cfg.InstancesInfoKey = DefaultConfig().InstancesInfoKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:     engine,
		scorer:     scorer,
		router:     rt,
		controller: ctrl,
		store:      store,
		config:     cfg,
		logger:     logger,
	}
}

// Toggle enables or disables spot provisioning.
func (s *Server) Toggle(ctx context.Context, req *connect.Request[api.ToggleRequest]) (*connect.Response[api.ToggleResponse], error) {
	enabled, err := controller.ParseAction(req.Msg.Action)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	s.logger.InfoContext(ctx, "toggling spot provisioning",
		slog.Bool("enabled", enabled),
		slog.Bool("teardown", req.Msg.Teardown),
	)

	if err := s.controller.SetEnabled(ctx, enabled, req.Msg.Teardown); err != nil {
		s.logger.ErrorContext(ctx, "failed to toggle provisioning",
			slog.Bool("enabled", enabled),
			slog.String("error", err.Error()),
		)
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("toggle failed: %w", err))
	}

	action := controller.ActionDisable
	if enabled {
		action = controller.ActionEnable
	}
	return connect.NewResponse(&api.ToggleResponse{
		Message: fmt.Sprintf("Spot provisioning %sd successfully", action),
	}), nil
}

// RecommendRegion returns the best region outside the excluded set.
func (s *Server) RecommendRegion(ctx context.Context, req *connect.Request[api.RecommendRegionRequest]) (*connect.Response[api.RecommendRegionResponse], error) {
	best, err := s.scorer.Recommend(ctx, s.engine.Regions(), s.engine.ResourceType(), req.Msg.ExcludeRegions)
	if errors.Is(err, region.ErrNotFound) {
		s.logger.InfoContext(ctx, "no eligible region", slog.Any("exclude_regions", req.Msg.ExcludeRegions))
		return connect.NewResponse(&api.RecommendRegionResponse{}), nil
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to recommend region", slog.String("error", err.Error()))
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("recommend region: %w", err))
	}
	return connect.NewResponse(&api.RecommendRegionResponse{Region: &best}), nil
}

// RouteCapacityEvent accepts a worker-region fulfillment event.
func (s *Server) RouteCapacityEvent(ctx context.Context, req *connect.Request[api.RouteCapacityEventRequest]) (*connect.Response[api.RouteCapacityEventResponse], error) {
	s.logger.DebugContext(ctx, "capacity event received",
		slog.String("source", req.Msg.Source),
		slog.String("detail_type", req.Msg.DetailType),
		slog.String("region", req.Msg.Detail.Region),
	)

	result, err := s.router.Route(ctx, events.WorkerEvent{
		Source:     req.Msg.Source,
		DetailType: req.Msg.DetailType,
		Detail: events.WorkerDetail{
			TaskToken: req.Msg.Detail.TaskToken,
			Region:    req.Msg.Detail.Region,
			Operation: req.Msg.Detail.Operation,
		},
	})
	if errors.Is(err, router.ErrMalformed) {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to route capacity event", slog.String("error", err.Error()))
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("error processing event: %w", err))
	}

	return connect.NewResponse(&api.RouteCapacityEventResponse{
		Result:  string(result),
		Message: routeMessage(result, req.Msg.DetailType),
	}), nil
}

func routeMessage(result router.Result, detailType string) string {
	switch result {
	case router.Resolved:
		if detailType == events.DetailTypeFulfilled {
			return "capacity request fulfilled"
		}
		return "capacity request not fulfilled, failing over"
	case router.AlreadyResolved:
		return "callback token already resolved"
	case router.UnknownToken:
		return "callback token not recognized"
	default:
		return string(result)
	}
}

// StartRun starts a new run outside the trigger schedule.
func (s *Server) StartRun(ctx context.Context, req *connect.Request[api.StartRunRequest]) (*connect.Response[api.StartRunResponse], error) {
	run, err := s.engine.Start(ctx, req.Msg.ExcludeRegions)
	if run == nil {
		s.logger.ErrorContext(ctx, "failed to start run", slog.String("error", err.Error()))
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("start run: %w", err))
	}
	if err != nil {
		s.logger.WarnContext(ctx, "run started but not yet dispatched",
			slog.String("run_id", run.RunID),
			slog.String("error", err.Error()),
		)
	}
	return connect.NewResponse(&api.StartRunResponse{Run: toRun(run)}), nil
}

// StopRun stops an active run. Stopping a finished run returns it unchanged.
func (s *Server) StopRun(ctx context.Context, req *connect.Request[api.StopRunRequest]) (*connect.Response[api.StopRunResponse], error) {
	if req.Msg.RunID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("run_id is required"))
	}
	run, err := s.engine.Stop(ctx, req.Msg.RunID)
	if err != nil {
		return nil, s.runError(ctx, "stop run", req.Msg.RunID, err)
	}
	return connect.NewResponse(&api.StopRunResponse{Run: toRun(run)}), nil
}

// GetRun returns one run.
func (s *Server) GetRun(ctx context.Context, req *connect.Request[api.GetRunRequest]) (*connect.Response[api.GetRunResponse], error) {
	if req.Msg.RunID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("run_id is required"))
	}
	run, err := s.engine.Get(ctx, req.Msg.RunID)
	if err != nil {
		return nil, s.runError(ctx, "get run", req.Msg.RunID, err)
	}
	return connect.NewResponse(&api.GetRunResponse{Run: toRun(run)}), nil
}

// ListRuns returns runs, oldest first, optionally filtered by status.
func (s *Server) ListRuns(ctx context.Context, req *connect.Request[api.ListRunsRequest]) (*connect.Response[api.ListRunsResponse], error) {
	statuses := make([]db.RunStatus, 0, len(req.Msg.Statuses))
	for _, raw := range req.Msg.Statuses {
		status, err := db.ParseRunStatus(raw)
		if err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
		statuses = append(statuses, status)
	}

	runs, err := s.engine.List(ctx, statuses...)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list runs", slog.String("error", err.Error()))
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("failed to list runs: %w", err))
	}

	out := make([]*api.Run, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRun(run))
	}
	return connect.NewResponse(&api.ListRunsResponse{Runs: out}), nil
}

// GetProvisioningState reports the switch position and active run count.
func (s *Server) GetProvisioningState(ctx context.Context, req *connect.Request[api.GetProvisioningStateRequest]) (*connect.Response[api.GetProvisioningStateResponse], error) {
	enabled, err := s.controller.Enabled(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to read provisioning state", slog.String("error", err.Error()))
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	active, err := s.engine.Active(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list active runs", slog.String("error", err.Error()))
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(&api.GetProvisioningStateResponse{
		Enabled:      enabled,
		ActiveRuns:   len(active),
		Regions:      s.engine.Regions(),
		ResourceType: s.engine.ResourceType(),
	}), nil
}

// GetInstancesInfo returns the instances record published by the workers.
func (s *Server) GetInstancesInfo(ctx context.Context, req *connect.Request[api.GetInstancesInfoRequest]) (*connect.Response[api.GetInstancesInfoResponse], error) {
	info, err := s.store.Get(ctx, s.config.InstancesInfoKey)
	if errors.Is(err, paramstore.ErrNotFound) {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("parameter %s not found", s.config.InstancesInfoKey))
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to read instances info",
			slog.String("key", s.config.InstancesInfoKey),
			slog.String("error", err.Error()),
		)
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(&api.GetInstancesInfoResponse{Info: info}), nil
}

func (s *Server) runError(ctx context.Context, op, runID string, err error) error {
	if errors.Is(err, workflow.ErrRunNotFound) {
		return connect.NewError(connect.CodeNotFound, fmt.Errorf("run not found: %s", runID))
	}
	s.logger.ErrorContext(ctx, "failed to "+op,
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
	)
	return connect.NewError(connect.CodeInternal, fmt.Errorf("%s: %w", op, err))
}

func toRun(run *db.RunRecord) *api.Run {
	out := &api.Run{
		RunID:           run.RunID,
		Status:          string(run.Status),
		ResourceType:    run.ResourceType,
		CandidateRegion: run.CandidateRegion,
		ExcludedRegions: run.ExcludedRegions,
		Reason:          run.Reason,
		CreatedAt:       run.CreatedAt,
		UpdatedAt:       run.UpdatedAt,
		AwaitingSince:   timePtr(run.AwaitingSince),
	}
	for _, a := range run.Attempts {
		out.Attempts = append(out.Attempts, api.Attempt{
			Region:     a.Region,
			Outcome:    string(a.Outcome),
			Operation:  a.Operation,
			StartedAt:  a.StartedAt,
			ResolvedAt: timePtr(a.ResolvedAt),
		})
	}
	return out
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
