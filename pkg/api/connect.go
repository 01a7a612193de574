package api

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// ServiceName is the fully-qualified name of the OrchestratorService.
const ServiceName = "spotorch.v1.OrchestratorService"

// Procedure paths, of the form "/<ServiceName>/<Method>".
const (
	ToggleProcedure               = "/" + ServiceName + "/Toggle"
	RecommendRegionProcedure      = "/" + ServiceName + "/RecommendRegion"
	RouteCapacityEventProcedure   = "/" + ServiceName + "/RouteCapacityEvent"
	StartRunProcedure             = "/" + ServiceName + "/StartRun"
	StopRunProcedure              = "/" + ServiceName + "/StopRun"
	GetRunProcedure               = "/" + ServiceName + "/GetRun"
	ListRunsProcedure             = "/" + ServiceName + "/ListRuns"
	GetProvisioningStateProcedure = "/" + ServiceName + "/GetProvisioningState"
	GetInstancesInfoProcedure     = "/" + ServiceName + "/GetInstancesInfo"
)

// OrchestratorServiceHandler is implemented by the control plane.
type OrchestratorServiceHandler interface {
	Toggle(context.Context, *connect.Request[ToggleRequest]) (*connect.Response[ToggleResponse], error)
	RecommendRegion(context.Context, *connect.Request[RecommendRegionRequest]) (*connect.Response[RecommendRegionResponse], error)
	RouteCapacityEvent(context.Context, *connect.Request[RouteCapacityEventRequest]) (*connect.Response[RouteCapacityEventResponse], error)
	StartRun(context.Context, *connect.Request[StartRunRequest]) (*connect.Response[StartRunResponse], error)
	StopRun(context.Context, *connect.Request[StopRunRequest]) (*connect.Response[StopRunResponse], error)
	GetRun(context.Context, *connect.Request[GetRunRequest]) (*connect.Response[GetRunResponse], error)
	ListRuns(context.Context, *connect.Request[ListRunsRequest]) (*connect.Response[ListRunsResponse], error)
	GetProvisioningState(context.Context, *connect.Request[GetProvisioningStateRequest]) (*connect.Response[GetProvisioningStateResponse], error)
	GetInstancesInfo(context.Context, *connect.Request[GetInstancesInfoRequest]) (*connect.Response[GetInstancesInfoResponse], error)
}

// NewOrchestratorServiceHandler builds an HTTP handler for svc. It returns
// the path to mount the handler on.
func NewOrchestratorServiceHandler(svc OrchestratorServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)

	handlers := map[string]http.Handler{
		ToggleProcedure:               connect.NewUnaryHandler(ToggleProcedure, svc.Toggle, opts...),
		RecommendRegionProcedure:      connect.NewUnaryHandler(RecommendRegionProcedure, svc.RecommendRegion, opts...),
		RouteCapacityEventProcedure:   connect.NewUnaryHandler(RouteCapacityEventProcedure, svc.RouteCapacityEvent, opts...),
		StartRunProcedure:             connect.NewUnaryHandler(StartRunProcedure, svc.StartRun, opts...),
		StopRunProcedure:              connect.NewUnaryHandler(StopRunProcedure, svc.StopRun, opts...),
		GetRunProcedure:               connect.NewUnaryHandler(GetRunProcedure, svc.GetRun, opts...),
		ListRunsProcedure:             connect.NewUnaryHandler(ListRunsProcedure, svc.ListRuns, opts...),
		GetProvisioningStateProcedure: connect.NewUnaryHandler(GetProvisioningStateProcedure, svc.GetProvisioningState, opts...),
		GetInstancesInfoProcedure:     connect.NewUnaryHandler(GetInstancesInfoProcedure, svc.GetInstancesInfo, opts...),
	}

	return "/" + ServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// OrchestratorServiceClient calls a remote OrchestratorService.
type OrchestratorServiceClient interface {
	Toggle(context.Context, *connect.Request[ToggleRequest]) (*connect.Response[ToggleResponse], error)
	RecommendRegion(context.Context, *connect.Request[RecommendRegionRequest]) (*connect.Response[RecommendRegionResponse], error)
	RouteCapacityEvent(context.Context, *connect.Request[RouteCapacityEventRequest]) (*connect.Response[RouteCapacityEventResponse], error)
	StartRun(context.Context, *connect.Request[StartRunRequest]) (*connect.Response[StartRunResponse], error)
	StopRun(context.Context, *connect.Request[StopRunRequest]) (*connect.Response[StopRunResponse], error)
	GetRun(context.Context, *connect.Request[GetRunRequest]) (*connect.Response[GetRunResponse], error)
	ListRuns(context.Context, *connect.Request[ListRunsRequest]) (*connect.Response[ListRunsResponse], error)
	GetProvisioningState(context.Context, *connect.Request[GetProvisioningStateRequest]) (*connect.Response[GetProvisioningStateResponse], error)
	GetInstancesInfo(context.Context, *connect.Request[GetInstancesInfoRequest]) (*connect.Response[GetInstancesInfoResponse], error)
}

// NewOrchestratorServiceClient creates a client for the service at baseURL.
func NewOrchestratorServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) OrchestratorServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(JSONCodec{})}, opts...)
	return &orchestratorServiceClient{
		toggle:               connect.NewClient[ToggleRequest, ToggleResponse](httpClient, baseURL+ToggleProcedure, opts...),
		recommendRegion:      connect.NewClient[RecommendRegionRequest, RecommendRegionResponse](httpClient, baseURL+RecommendRegionProcedure, opts...),
		routeCapacityEvent:   connect.NewClient[RouteCapacityEventRequest, RouteCapacityEventResponse](httpClient, baseURL+RouteCapacityEventProcedure, opts...),
		startRun:             connect.NewClient[StartRunRequest, StartRunResponse](httpClient, baseURL+StartRunProcedure, opts...),
		stopRun:              connect.NewClient[StopRunRequest, StopRunResponse](httpClient, baseURL+StopRunProcedure, opts...),
		getRun:               connect.NewClient[GetRunRequest, GetRunResponse](httpClient, baseURL+GetRunProcedure, opts...),
		listRuns:             connect.NewClient[ListRunsRequest, ListRunsResponse](httpClient, baseURL+ListRunsProcedure, opts...),
		getProvisioningState: connect.NewClient[GetProvisioningStateRequest, GetProvisioningStateResponse](httpClient, baseURL+GetProvisioningStateProcedure, opts...),
		getInstancesInfo:     connect.NewClient[GetInstancesInfoRequest, GetInstancesInfoResponse](httpClient, baseURL+GetInstancesInfoProcedure, opts...),
	}
}

type orchestratorServiceClient struct {
	toggle               *connect.Client[ToggleRequest, ToggleResponse]
	recommendRegion      *connect.Client[RecommendRegionRequest, RecommendRegionResponse]
	routeCapacityEvent   *connect.Client[RouteCapacityEventRequest, RouteCapacityEventResponse]
	startRun             *connect.Client[StartRunRequest, StartRunResponse]
	stopRun              *connect.Client[StopRunRequest, StopRunResponse]
	getRun               *connect.Client[GetRunRequest, GetRunResponse]
	listRuns             *connect.Client[ListRunsRequest, ListRunsResponse]
	getProvisioningState *connect.Client[GetProvisioningStateRequest, GetProvisioningStateResponse]
	getInstancesInfo     *connect.Client[GetInstancesInfoRequest, GetInstancesInfoResponse]
}

func (c *orchestratorServiceClient) Toggle(ctx context.Context, req *connect.Request[ToggleRequest]) (*connect.Response[ToggleResponse], error) {
	return c.toggle.CallUnary(ctx, req)
}

func (c *orchestratorServiceClient) RecommendRegion(ctx context.Context, req *connect.Request[RecommendRegionRequest]) (*connect.Response[RecommendRegionResponse], error) {
	return c.recommendRegion.CallUnary(ctx, req)
}

func (c *orchestratorServiceClient) RouteCapacityEvent(ctx context.Context, req *connect.Request[RouteCapacityEventRequest]) (*connect.Response[RouteCapacityEventResponse], error) {
	return c.routeCapacityEvent.CallUnary(ctx, req)
}

func (c *orchestratorServiceClient) StartRun(ctx context.Context, req *connect.Request[StartRunRequest]) (*connect.Response[StartRunResponse], error) {
	return c.startRun.CallUnary(ctx, req)
}

func (c *orchestratorServiceClient) StopRun(ctx context.Context, req *connect.Request[StopRunRequest]) (*connect.Response[StopRunResponse], error) {
	return c.stopRun.CallUnary(ctx, req)
}

func (c *orchestratorServiceClient) GetRun(ctx context.Context, req *connect.Request[GetRunRequest]) (*connect.Response[GetRunResponse], error) {
	return c.getRun.CallUnary(ctx, req)
}

func (c *orchestratorServiceClient) ListRuns(ctx context.Context, req *connect.Request[ListRunsRequest]) (*connect.Response[ListRunsResponse], error) {
	return c.listRuns.CallUnary(ctx, req)
}

func (c *orchestratorServiceClient) GetProvisioningState(ctx context.Context, req *connect.Request[GetProvisioningStateRequest]) (*connect.Response[GetProvisioningStateResponse], error) {
	return c.getProvisioningState.CallUnary(ctx, req)
}

func (c *orchestratorServiceClient) GetInstancesInfo(ctx context.Context, req *connect.Request[GetInstancesInfoRequest]) (*connect.Response[GetInstancesInfoResponse], error) {
	return c.getInstancesInfo.CallUnary(ctx, req)
}
