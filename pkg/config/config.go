// Package config loads the orchestrator's YAML configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider types.
const (
	ProviderAWS     = "aws"
	ProviderHTTPAPI = "httpapi"
	ProviderFake    = "fake"
)

// Store types, used for both the run store and the parameter store.
const (
	StoreMemory   = "memory"
	StoreDynamoDB = "dynamodb"
	StoreSSM      = "ssm"
)

// Channel types.
const (
	ChannelEventBridge = "eventbridge"
	ChannelWebhook     = "webhook"
	ChannelLog         = "log"
)

// Trigger types.
const (
	TriggerSchedule = "schedule"
	TriggerRule     = "eventbridge_rule"
	TriggerNone     = "none"
)

// Config is the root configuration for the orchestrator.
type Config struct {
	Server       ServerConfig       `yaml:"server,omitempty"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Provider     ProviderConfig     `yaml:"provider"`
	Store        StoreConfig        `yaml:"store,omitempty"`
	Params       ParamsConfig       `yaml:"params,omitempty"`
	Channel      ChannelConfig      `yaml:"channel,omitempty"`
	Trigger      TriggerConfig      `yaml:"trigger,omitempty"`
	Teardown     TeardownConfig     `yaml:"teardown,omitempty"`
	Auth         AuthConfig         `yaml:"auth,omitempty"`
}

// ServerConfig configures the control plane server.
type ServerConfig struct {
	Address       string        `yaml:"address,omitempty"`        // Default: ":50051"
	SweepInterval time.Duration `yaml:"sweep_interval,omitempty"` // Default: 1m
}

// OrchestratorConfig describes what to provision and where.
type OrchestratorConfig struct {
	// Prefix namespaces event sources ("<prefix>.spotorchestrator") and
	// parameter keys ("/<prefix>/...").
	Prefix       string   `yaml:"prefix"`
	ResourceType string   `yaml:"resource_type"`
	Regions      []string `yaml:"regions,omitempty"` // Empty: ask the provider

	FulfillmentTimeout time.Duration `yaml:"fulfillment_timeout,omitempty"` // Default: 15m
	PriceWindow        time.Duration `yaml:"price_window,omitempty"`        // Default: 1h

	// Policy is a CEL expression over region, score and resource_type
	// that must hold for a region to be recommended.
	Policy string `yaml:"policy,omitempty"`

	// WorkerSourceSuffix terminates the source of inbound worker events.
	WorkerSourceSuffix string `yaml:"worker_source_suffix,omitempty"` // Default: ".spotworker"

	StateKey         string `yaml:"state_key,omitempty"`          // Default: "/<prefix>/provisioning-enabled"
	InstancesInfoKey string `yaml:"instances_info_key,omitempty"` // Default: "/<prefix>/instances-info"
}

// ProviderConfig selects the capacity market.
type ProviderConfig struct {
	Type string `yaml:"type"` // aws, httpapi, fake

	// AWS
	Region             string `yaml:"region,omitempty"`
	ProductDescription string `yaml:"product_description,omitempty"`

	// HTTP API
	BaseURL   string        `yaml:"base_url,omitempty"`
	APIKeyEnv string        `yaml:"api_key_env,omitempty"` // Environment variable name
	OAuth2    *OAuth2Config `yaml:"oauth2,omitempty"`
	Timeout   time.Duration `yaml:"timeout,omitempty"`

	// Fake
	Scores map[string]int     `yaml:"scores,omitempty"`
	Prices map[string]float64 `yaml:"prices,omitempty"`
}

// OAuth2Config configures client-credentials auth for the HTTP API.
type OAuth2Config struct {
	TokenURL        string   `yaml:"token_url"`
	ClientID        string   `yaml:"client_id"`
	ClientSecretEnv string   `yaml:"client_secret_env"`
	Scopes          []string `yaml:"scopes,omitempty"`
}

// StoreConfig selects the run store.
type StoreConfig struct {
	Type        string `yaml:"type,omitempty"` // memory, dynamodb. Default: memory
	RunsTable   string `yaml:"runs_table,omitempty"`
	TokensTable string `yaml:"tokens_table,omitempty"`
}

// ParamsConfig selects the parameter store.
type ParamsConfig struct {
	Type string `yaml:"type,omitempty"` // memory, ssm. Default: memory
}

// ChannelConfig selects how events reach worker regions.
type ChannelConfig struct {
	Type string `yaml:"type,omitempty"` // eventbridge, webhook, log. Default: log

	// EventBridge
	EventBus string `yaml:"event_bus,omitempty"`

	// Webhook
	URLs       map[string]string `yaml:"urls,omitempty"`
	DefaultURL string            `yaml:"default_url,omitempty"`
	Timeout    time.Duration     `yaml:"timeout,omitempty"`
	Headers    map[string]string `yaml:"headers,omitempty"`
}

// TriggerConfig selects what starts runs while provisioning is enabled.
type TriggerConfig struct {
	Type     string        `yaml:"type,omitempty"`     // schedule, eventbridge_rule, none. Default: schedule
	Interval time.Duration `yaml:"interval,omitempty"` // schedule. Default: 10m
	Rule     string        `yaml:"rule,omitempty"`     // eventbridge_rule
	EventBus string        `yaml:"event_bus,omitempty"`
}

// TeardownConfig bounds the teardown broadcast. Each region gets one send
// unless max_attempts asks for retries of failed sends.
type TeardownConfig struct {
	MaxAttempts  int           `yaml:"max_attempts,omitempty"`  // Per region. Default: 1 (no retry)
	InitialDelay time.Duration `yaml:"initial_delay,omitempty"` // Default: 500ms
	Concurrency  int           `yaml:"concurrency,omitempty"`   // Default: 8
}

// AuthConfig configures inbound authentication. Secrets are read from the
// environment.
type AuthConfig struct {
	TokenEnv     string `yaml:"token_env,omitempty"`      // Operator bearer token
	WorkerKeyEnv string `yaml:"worker_key_env,omitempty"` // Worker API key
	WorkerHeader string `yaml:"worker_header,omitempty"`  // Default: X-Api-Key
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse parses, validates and defaults configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Default returns a development configuration: fake market, in-memory
// stores, log channel.
func Default() *Config {
	cfg := &Config{
		Orchestrator: OrchestratorConfig{
			Prefix:       "spotorch",
			ResourceType: "p5.48xlarge",
			Regions:      []string{"us-east-1", "us-west-2", "eu-west-1"},
		},
		Provider: ProviderConfig{
			Type:   ProviderFake,
			Scores: map[string]int{"us-east-1": 7, "us-west-2": 9, "eu-west-1": 5},
		},
	}
	cfg.applyDefaults()
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	o := c.Orchestrator
	if o.Prefix == "" {
		return fmt.Errorf("orchestrator.prefix is required")
	}
	if strings.ContainsAny(o.Prefix, "/ ") {
		return fmt.Errorf("orchestrator.prefix %q must not contain '/' or spaces", o.Prefix)
	}
	if o.ResourceType == "" {
		return fmt.Errorf("orchestrator.resource_type is required")
	}
	for _, r := range o.Regions {
		if r == "" {
			return fmt.Errorf("orchestrator.regions must not contain empty names")
		}
	}
	if o.FulfillmentTimeout < 0 || o.PriceWindow < 0 {
		return fmt.Errorf("orchestrator durations must be positive")
	}

	switch c.Provider.Type {
	case ProviderAWS:
	case ProviderHTTPAPI:
		if c.Provider.BaseURL == "" {
			return fmt.Errorf("provider %q: base_url is required", c.Provider.Type)
		}
		if o2 := c.Provider.OAuth2; o2 != nil && (o2.TokenURL == "" || o2.ClientID == "") {
			return fmt.Errorf("provider %q: oauth2 requires token_url and client_id", c.Provider.Type)
		}
	case ProviderFake:
		if len(o.Regions) == 0 && len(c.Provider.Scores) == 0 {
			return fmt.Errorf("provider %q: regions or scores are required", c.Provider.Type)
		}
	case "":
		return fmt.Errorf("provider.type is required")
	default:
		return fmt.Errorf("provider: unknown type %q", c.Provider.Type)
	}

	switch c.Store.Type {
	case StoreMemory:
	case StoreDynamoDB:
		if c.Store.RunsTable == "" || c.Store.TokensTable == "" {
			return fmt.Errorf("store %q: runs_table and tokens_table are required", c.Store.Type)
		}
	default:
		return fmt.Errorf("store: unknown type %q", c.Store.Type)
	}

	switch c.Params.Type {
	case StoreMemory, StoreSSM:
	default:
		return fmt.Errorf("params: unknown type %q", c.Params.Type)
	}

	switch c.Channel.Type {
	case ChannelEventBridge, ChannelLog:
	case ChannelWebhook:
		if len(c.Channel.URLs) == 0 && c.Channel.DefaultURL == "" {
			return fmt.Errorf("channel %q: urls or default_url is required", c.Channel.Type)
		}
	default:
		return fmt.Errorf("channel: unknown type %q", c.Channel.Type)
	}

	switch c.Trigger.Type {
	case TriggerSchedule, TriggerNone:
	case TriggerRule:
		if c.Trigger.Rule == "" {
			return fmt.Errorf("trigger %q: rule is required", c.Trigger.Type)
		}
	default:
		return fmt.Errorf("trigger: unknown type %q", c.Trigger.Type)
	}

	if c.Teardown.MaxAttempts < 0 {
		return fmt.Errorf("teardown.max_attempts must be >= 0")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":50051"
	}
	if c.Server.SweepInterval == 0 {
		c.Server.SweepInterval = time.Minute
	}

	o := &c.Orchestrator
	if o.FulfillmentTimeout == 0 {
		o.FulfillmentTimeout = 15 * time.Minute
	}
	if o.PriceWindow == 0 {
		o.PriceWindow = time.Hour
	}
	if o.WorkerSourceSuffix == "" {
		o.WorkerSourceSuffix = ".spotworker"
	}
	if o.Prefix != "" {
		if o.StateKey == "" {
			o.StateKey = "/" + o.Prefix + "/provisioning-enabled"
		}
		if o.InstancesInfoKey == "" {
			o.InstancesInfoKey = "/" + o.Prefix + "/instances-info"
		}
	}

	if c.Store.Type == "" {
		c.Store.Type = StoreMemory
	}
	if c.Params.Type == "" {
		c.Params.Type = StoreMemory
	}
	if c.Channel.Type == "" {
		c.Channel.Type = ChannelLog
	}
	if c.Channel.Type == ChannelEventBridge && c.Channel.EventBus == "" {
		c.Channel.EventBus = "default"
	}
	if c.Trigger.Type == "" {
		c.Trigger.Type = TriggerSchedule
	}
	if c.Trigger.Interval == 0 {
		c.Trigger.Interval = 10 * time.Minute
	}

	if c.Teardown.MaxAttempts == 0 {
		c.Teardown.MaxAttempts = 1
	}
	if c.Teardown.InitialDelay == 0 {
		c.Teardown.InitialDelay = 500 * time.Millisecond
	}
	if c.Teardown.Concurrency == 0 {
		c.Teardown.Concurrency = 8
	}
}

// SecretFromEnv reads the environment variable named by name. An empty
// name yields an empty secret.
func SecretFromEnv(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
