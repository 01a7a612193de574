package events

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
)

// PutEventsAPI is the subset of the EventBridge client the channel uses.
type PutEventsAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventBridgeConfig configures the EventBridge channel.
type EventBridgeConfig struct {
	// Prefix namespaces the event source as "<prefix>.spotorchestrator".
	Prefix string
	// EventBus defaults to "default". Rules on the bus forward events to
	// the worker regions.
	EventBus string
}

// EventBridge publishes outbound events with PutEvents.
type EventBridge struct {
	client PutEventsAPI
	source string
	bus    string
}

var _ Channel = (*EventBridge)(nil)

// NewEventBridge creates a channel backed by a real EventBridge client.
func NewEventBridge(cfg awssdk.Config, ebCfg EventBridgeConfig) *EventBridge {
	return NewEventBridgeWithClient(eventbridge.NewFromConfig(cfg), ebCfg)
}

// NewEventBridgeWithClient creates a channel with an injected client.
func NewEventBridgeWithClient(client PutEventsAPI, cfg EventBridgeConfig) *EventBridge {
	if cfg.EventBus == "" {
		cfg.EventBus = "default"
	}
	return &EventBridge{
		client: client,
		source: cfg.Prefix + SourceSuffix,
		bus:    cfg.EventBus,
	}
}

// Source returns the source attached to every event.
func (c *EventBridge) Source() string {
	return c.source
}

func (c *EventBridge) Send(ctx context.Context, event Event) error {
	detail, err := event.DetailJSON()
	if err != nil {
		return err
	}

	entry := types.PutEventsRequestEntry{
		Source:       awssdk.String(c.source),
		DetailType:   awssdk.String(string(event.Kind)),
		Detail:       awssdk.String(string(detail)),
		EventBusName: awssdk.String(c.bus),
	}
	if !event.Time.IsZero() {
		entry.Time = awssdk.Time(event.Time)
	}

	out, err := c.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{entry},
	})
	if err != nil {
		return fmt.Errorf("put %s event for %s: %w", event.Kind, event.Region, err)
	}
	if out.FailedEntryCount > 0 {
		for _, e := range out.Entries {
			if e.ErrorCode != nil {
				return fmt.Errorf("put %s event for %s: %s: %s", event.Kind, event.Region, awssdk.ToString(e.ErrorCode), awssdk.ToString(e.ErrorMessage))
			}
		}
		return fmt.Errorf("put %s event for %s: %d entries failed", event.Kind, event.Region, out.FailedEntryCount)
	}
	return nil
}
