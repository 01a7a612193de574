package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"connectrpc.com/connect"

	"github.com/NavarchProject/spotorch/pkg/api"
	"github.com/NavarchProject/spotorch/pkg/auth"
	"github.com/NavarchProject/spotorch/pkg/config"
	"github.com/NavarchProject/spotorch/pkg/controller"
	"github.com/NavarchProject/spotorch/pkg/controlplane"
	"github.com/NavarchProject/spotorch/pkg/controlplane/db"
	"github.com/NavarchProject/spotorch/pkg/events"
	"github.com/NavarchProject/spotorch/pkg/metrics"
	"github.com/NavarchProject/spotorch/pkg/paramstore"
	"github.com/NavarchProject/spotorch/pkg/provider"
	provideraws "github.com/NavarchProject/spotorch/pkg/provider/aws"
	"github.com/NavarchProject/spotorch/pkg/provider/fake"
	"github.com/NavarchProject/spotorch/pkg/provider/httpapi"
	"github.com/NavarchProject/spotorch/pkg/region"
	"github.com/NavarchProject/spotorch/pkg/retry"
	"github.com/NavarchProject/spotorch/pkg/router"
	"github.com/NavarchProject/spotorch/pkg/workflow"
)

// secrets are credentials supplied by flag or environment rather than the
// config file.
type secrets struct {
	AuthToken string
	WorkerKey string
}

// stack is the wired control plane.
type stack struct {
	handler    http.Handler
	engine     *workflow.Engine
	controller *controller.Controller
	sweeper    *workflow.Sweeper
	database   db.DB
	schedule   *controller.ScheduleTrigger
}

func buildStack(ctx context.Context, cfg *config.Config, creds secrets, logger *slog.Logger) (*stack, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		awsCfg    awssdk.Config
		awsLoaded bool
	)
	loadAWS := func() (awssdk.Config, error) {
		if awsLoaded {
			return awsCfg, nil
		}
		c, err := provideraws.LoadConfig(ctx, cfg.Provider.Region)
		if err != nil {
			return awssdk.Config{}, err
		}
		awsCfg, awsLoaded = c, true
		return awsCfg, nil
	}

	m := metrics.New()

	market, err := buildMarket(ctx, cfg, loadAWS)
	if err != nil {
		return nil, err
	}

	regions := cfg.Orchestrator.Regions
	if len(regions) == 0 {
		lister, ok := market.(provider.RegionLister)
		if !ok {
			return nil, fmt.Errorf("provider %s cannot list regions; set orchestrator.regions", market.Name())
		}
		regions, err = lister.ListRegions(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing regions: %w", err)
		}
		logger.Info("discovered region universe", slog.Int("regions", len(regions)))
	}

	policy, err := region.CompilePolicy(cfg.Orchestrator.Policy)
	if err != nil {
		return nil, err
	}

	database, err := buildDatabase(cfg, loadAWS)
	if err != nil {
		return nil, err
	}
	store, err := buildParamStore(cfg, loadAWS)
	if err != nil {
		return nil, err
	}
	channel, err := buildChannel(cfg, loadAWS, logger)
	if err != nil {
		return nil, err
	}

	scorer := region.NewScorer(market, market, region.ScorerConfig{
		PriceWindow: cfg.Orchestrator.PriceWindow,
		Policy:      policy,
		Logger:      logger,
		Metrics:     m,
	})

	engine := workflow.NewEngine(database, scorer, channel, workflow.Config{
		Regions:            regions,
		ResourceType:       cfg.Orchestrator.ResourceType,
		FulfillmentTimeout: cfg.Orchestrator.FulfillmentTimeout,
		Metrics:            m,
	}, logger)

	s := &stack{engine: engine, database: database}

	var trigger controller.Trigger
	switch cfg.Trigger.Type {
	case config.TriggerSchedule:
		s.schedule = controller.NewScheduleTrigger(engine, store, controller.ScheduleConfig{
			Interval: cfg.Trigger.Interval,
			StateKey: cfg.Orchestrator.StateKey,
		}, logger)
		trigger = s.schedule
	case config.TriggerRule:
		c, err := loadAWS()
		if err != nil {
			return nil, err
		}
		trigger = provideraws.NewRuleTriggerFromConfig(c, cfg.Trigger.Rule, cfg.Trigger.EventBus, logger)
	default:
		trigger = noopTrigger{}
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.Teardown.MaxAttempts
	retryCfg.InitialDelay = cfg.Teardown.InitialDelay

	s.controller = controller.New(store, trigger, engine, channel, controller.Config{
		StateKey:            cfg.Orchestrator.StateKey,
		TeardownRetry:       retryCfg,
		TeardownConcurrency: cfg.Teardown.Concurrency,
		Metrics:             m,
	}, logger)

	s.sweeper = workflow.NewSweeper(engine, workflow.SweeperConfig{Interval: cfg.Server.SweepInterval}, logger)

	rt := router.New(engine, router.Config{SourceSuffix: cfg.Orchestrator.WorkerSourceSuffix, Metrics: m}, logger)
	srv := controlplane.NewServer(engine, scorer, rt, s.controller, store, controlplane.Config{
		InstancesInfoKey: cfg.Orchestrator.InstancesInfoKey,
	}, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		m,
		controlplane.NewRunCollector(database, nil),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	authEnabled := creds.AuthToken != "" || creds.WorkerKey != ""
	var handlerOpts []connect.HandlerOption
	if authEnabled {
		handlerOpts = append(handlerOpts, connect.WithInterceptors(
			auth.NewRequireGroupInterceptor([]string{auth.GroupOperators},
				api.ToggleProcedure, api.StartRunProcedure, api.StopRunProcedure),
		))
	}

	mux := http.NewServeMux()
	path, handler := api.NewOrchestratorServiceHandler(srv, handlerOpts...)
	mux.Handle(path, handler)
	mux.HandleFunc("/healthz", healthzHandler)
	mux.HandleFunc("/readyz", readyzHandler(database, logger))
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	s.handler = mux
	if authEnabled {
		logger.Info("authentication enabled")
		authenticator := auth.NewChainAuthenticator(
			auth.NewBearerTokenAuthenticator(creds.AuthToken, "operator", []string{auth.GroupOperators}),
			auth.NewAPIKeyAuthenticator(cfg.Auth.WorkerHeader, creds.WorkerKey, "worker", []string{auth.GroupWorkers}),
		)
		s.handler = auth.NewMiddleware(authenticator,
			auth.WithExcludedPaths("/healthz", "/readyz", "/metrics"),
			auth.WithLogger(logger),
		).Wrap(mux)
	}

	return s, nil
}

func buildMarket(ctx context.Context, cfg *config.Config, loadAWS func() (awssdk.Config, error)) (provider.Market, error) {
	p := cfg.Provider
	switch p.Type {
	case config.ProviderAWS:
		c, err := loadAWS()
		if err != nil {
			return nil, err
		}
		return provideraws.New(c, provideraws.Config{Region: p.Region, ProductDescription: p.ProductDescription}), nil

	case config.ProviderHTTPAPI:
		hc := httpapi.Config{
			BaseURL: p.BaseURL,
			APIKey:  config.SecretFromEnv(p.APIKeyEnv),
			Timeout: p.Timeout,
		}
		if p.OAuth2 != nil {
			hc.OAuth2 = &httpapi.OAuth2Config{
				TokenURL:     p.OAuth2.TokenURL,
				ClientID:     p.OAuth2.ClientID,
				ClientSecret: config.SecretFromEnv(p.OAuth2.ClientSecretEnv),
				Scopes:       p.OAuth2.Scopes,
			}
		}
		market, err := httpapi.New(ctx, hc)
		if err != nil {
			return nil, err
		}
		return market, nil

	case config.ProviderFake:
		scores := p.Scores
		if len(scores) == 0 {
			scores = make(map[string]int, len(cfg.Orchestrator.Regions))
			for _, r := range cfg.Orchestrator.Regions {
				scores[r] = 5
			}
		}
		return fake.New(fake.Config{Scores: scores, Prices: p.Prices}), nil

	default:
		return nil, fmt.Errorf("unknown provider type: %s", p.Type)
	}
}

func buildDatabase(cfg *config.Config, loadAWS func() (awssdk.Config, error)) (db.DB, error) {
	if cfg.Store.Type != config.StoreDynamoDB {
		return db.NewInMemDB(), nil
	}
	c, err := loadAWS()
	if err != nil {
		return nil, err
	}
	database, err := db.NewDynamoDB(c, db.DynamoDBConfig{
		RunsTable:   cfg.Store.RunsTable,
		TokensTable: cfg.Store.TokensTable,
	})
	if err != nil {
		return nil, err
	}
	return database, nil
}

func buildParamStore(cfg *config.Config, loadAWS func() (awssdk.Config, error)) (paramstore.Store, error) {
	if cfg.Params.Type != config.StoreSSM {
		return paramstore.NewMemory(), nil
	}
	c, err := loadAWS()
	if err != nil {
		return nil, err
	}
	return paramstore.NewSSM(c), nil
}

func buildChannel(cfg *config.Config, loadAWS func() (awssdk.Config, error), logger *slog.Logger) (events.Channel, error) {
	switch cfg.Channel.Type {
	case config.ChannelEventBridge:
		c, err := loadAWS()
		if err != nil {
			return nil, err
		}
		return events.NewEventBridge(c, events.EventBridgeConfig{
			Prefix:   cfg.Orchestrator.Prefix,
			EventBus: cfg.Channel.EventBus,
		}), nil
	case config.ChannelWebhook:
		return events.NewWebhook(events.WebhookConfig{
			Prefix:     cfg.Orchestrator.Prefix,
			URLs:       cfg.Channel.URLs,
			DefaultURL: cfg.Channel.DefaultURL,
			Timeout:    cfg.Channel.Timeout,
			Headers:    cfg.Channel.Headers,
		}, logger), nil
	default:
		return events.NewLogChannel(logger.With(slog.String("component", "log-channel"))), nil
	}
}

type noopTrigger struct{}

func (noopTrigger) Activate(ctx context.Context) error   { return nil }
func (noopTrigger) Deactivate(ctx context.Context) error { return nil }

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func readyzHandler(database db.DB, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if _, err := database.ListRuns(ctx, db.ActiveStatuses...); err != nil {
			logger.Warn("readiness check failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("database not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	}
}
