package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// WebhookConfig configures the webhook channel.
type WebhookConfig struct {
	// Prefix namespaces the envelope source as "<prefix>.spotorchestrator".
	Prefix string `yaml:"prefix"`

	// URLs maps a region to the endpoint that receives its events.
	URLs map[string]string `yaml:"urls"`

	// DefaultURL receives events for regions missing from URLs.
	DefaultURL string `yaml:"default_url"`

	// Timeout for webhook requests. Defaults to 30s.
	Timeout time.Duration `yaml:"timeout"`

	// Headers to include in webhook requests (e.g., for authentication).
	Headers map[string]string `yaml:"headers"`
}

// Webhook delivers events as JSON envelopes over HTTP POST, for worker
// regions that are not reachable through EventBridge.
type Webhook struct {
	config WebhookConfig
	source string
	client *http.Client
	logger *slog.Logger
}

var _ Channel = (*Webhook)(nil)

// NewWebhook creates a new webhook channel.
func NewWebhook(config WebhookConfig, logger *slog.Logger) *Webhook {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{
		config: config,
		source: config.Prefix + SourceSuffix,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger.With(slog.String("component", "webhook-channel")),
	}
}

func (w *Webhook) urlFor(region string) string {
	if url, ok := w.config.URLs[region]; ok {
		return url
	}
	return w.config.DefaultURL
}

func (w *Webhook) Send(ctx context.Context, event Event) error {
	url := w.urlFor(event.Region)
	if url == "" {
		return fmt.Errorf("no webhook configured for region %s", event.Region)
	}

	envelope, err := NewEnvelope(w.source, event)
	if err != nil {
		return err
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.config.Headers {
		req.Header.Set(k, v)
	}

	w.logger.Debug("sending webhook",
		slog.String("url", url),
		slog.String("kind", string(event.Kind)),
		slog.String("region", event.Region),
	)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(body))
	}

	w.logger.Info("webhook sent successfully",
		slog.String("kind", string(event.Kind)),
		slog.String("region", event.Region),
	)
	return nil
}
