// Package events defines the messages exchanged with worker regions and
// the channels that carry outbound messages to them.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies an outbound event. The value is used as the EventBridge
// detail-type.
type Kind string

const (
	KindCapacityRequest Kind = "SpotCapacityRequest"
	KindTeardown        Kind = "SpotInstanceTeardown"
)

// Detail types a worker region reports back with.
const (
	DetailTypeFulfilled    = "SpotCapacityFulfilled"
	DetailTypeNotFulfilled = "SpotCapacityNotFulfilled"
)

// SourceSuffix terminates the source of every outbound event.
const SourceSuffix = ".spotorchestrator"

// Event is an outbound message addressed to one worker region.
type Event struct {
	Kind   Kind
	Region string
	// Token is the callback token a worker must echo back. Only set on
	// capacity requests.
	Token        string
	RunID        string
	ResourceType string
	Time         time.Time
}

// capacityRequestDetail is the detail of a capacity request. The worker
// echoes TaskToken in its fulfillment event.
type capacityRequestDetail struct {
	Region       string `json:"region"`
	TaskToken    string `json:"TaskToken"`
	RunID        string `json:"run_id"`
	ResourceType string `json:"resource_type,omitempty"`
	Action       string `json:"action"`
}

type teardownDetail struct {
	Region string `json:"region"`
	Action string `json:"action"`
}

// DetailJSON renders the event-specific detail payload.
func (e Event) DetailJSON() ([]byte, error) {
	switch e.Kind {
	case KindCapacityRequest:
		return json.Marshal(capacityRequestDetail{
			Region:       e.Region,
			TaskToken:    e.Token,
			RunID:        e.RunID,
			ResourceType: e.ResourceType,
			Action:       "provision",
		})
	case KindTeardown:
		return json.Marshal(teardownDetail{Region: e.Region, Action: "teardown"})
	default:
		return nil, fmt.Errorf("unknown event kind %q", e.Kind)
	}
}

// Envelope is the JSON form of an outbound event. It mirrors the
// EventBridge event shape so webhook receivers and EventBridge targets can
// share a parser.
type Envelope struct {
	Source     string          `json:"source"`
	DetailType string          `json:"detail-type"`
	Time       time.Time       `json:"time"`
	Region     string          `json:"region"`
	Detail     json.RawMessage `json:"detail"`
}

// NewEnvelope wraps e under source.
func NewEnvelope(source string, e Event) (*Envelope, error) {
	detail, err := e.DetailJSON()
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Source:     source,
		DetailType: string(e.Kind),
		Time:       e.Time.UTC(),
		Region:     e.Region,
		Detail:     detail,
	}, nil
}

// WorkerEvent is an inbound event reported by a worker region. Field names
// follow the EventBridge envelope.
type WorkerEvent struct {
	Source     string       `json:"source"`
	DetailType string       `json:"detail-type"`
	Detail     WorkerDetail `json:"detail"`
}

// WorkerDetail carries the echoed callback token and what the worker did.
type WorkerDetail struct {
	TaskToken string `json:"TaskToken"`
	Region    string `json:"region,omitempty"`
	Operation string `json:"operation,omitempty"`
}

// Channel delivers outbound events to worker regions.
type Channel interface {
	Send(ctx context.Context, event Event) error
}
