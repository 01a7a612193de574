package aws

import (
	"context"
	"fmt"
	"log/slog"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
)

// RulesAPI is the subset of the EventBridge client RuleTrigger uses.
type RulesAPI interface {
	EnableRule(ctx context.Context, params *eventbridge.EnableRuleInput, optFns ...func(*eventbridge.Options)) (*eventbridge.EnableRuleOutput, error)
	DisableRule(ctx context.Context, params *eventbridge.DisableRuleInput, optFns ...func(*eventbridge.Options)) (*eventbridge.DisableRuleOutput, error)
}

// RuleTrigger switches an EventBridge scheduled rule on and off. The rule's
// target is expected to call StartRun on the control plane.
type RuleTrigger struct {
	client   RulesAPI
	rule     string
	eventBus string
	logger   *slog.Logger
}

// NewRuleTrigger creates a trigger for rule on eventBus. An empty eventBus
// means the default bus.
func NewRuleTrigger(client RulesAPI, rule, eventBus string, logger *slog.Logger) *RuleTrigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleTrigger{
		client:   client,
		rule:     rule,
		eventBus: eventBus,
		logger:   logger.With(slog.String("component", "rule-trigger")),
	}
}

// NewRuleTriggerFromConfig creates a trigger backed by a real EventBridge client.
func NewRuleTriggerFromConfig(cfg awssdk.Config, rule, eventBus string, logger *slog.Logger) *RuleTrigger {
	return NewRuleTrigger(eventbridge.NewFromConfig(cfg), rule, eventBus, logger)
}

func (t *RuleTrigger) busName() *string {
	if t.eventBus == "" {
		return nil
	}
	return awssdk.String(t.eventBus)
}

// Activate enables the rule.
func (t *RuleTrigger) Activate(ctx context.Context) error {
	_, err := t.client.EnableRule(ctx, &eventbridge.EnableRuleInput{
		Name:         awssdk.String(t.rule),
		EventBusName: t.busName(),
	})
	if err != nil {
		return fmt.Errorf("enable rule %s: %w", t.rule, err)
	}
	t.logger.Info("schedule rule enabled", slog.String("rule", t.rule))
	return nil
}

// Deactivate disables the rule.
func (t *RuleTrigger) Deactivate(ctx context.Context) error {
	_, err := t.client.DisableRule(ctx, &eventbridge.DisableRuleInput{
		Name:         awssdk.String(t.rule),
		EventBusName: t.busName(),
	})
	if err != nil {
		return fmt.Errorf("disable rule %s: %w", t.rule, err)
	}
	t.logger.Info("schedule rule disabled", slog.String("rule", t.rule))
	return nil
}
