package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWebhook(t *testing.T) {
	ctx := context.Background()

	t.Run("sends capacity request to region URL", func(t *testing.T) {
		var received Envelope
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("expected POST, got %s", r.Method)
			}
			if r.Header.Get("Content-Type") != "application/json" {
				t.Errorf("expected Content-Type application/json, got %s", r.Header.Get("Content-Type"))
			}
			if r.Header.Get("X-Api-Key") != "secret" {
				t.Errorf("expected X-Api-Key header, got %q", r.Header.Get("X-Api-Key"))
			}
			if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
				t.Errorf("failed to decode request body: %v", err)
			}
			w.WriteHeader(http.StatusAccepted)
		}))
		defer server.Close()

		webhook := NewWebhook(WebhookConfig{
			Prefix:  "acme",
			URLs:    map[string]string{"us-west-2": server.URL},
			Headers: map[string]string{"X-Api-Key": "secret"},
		}, nil)

		at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		err := webhook.Send(ctx, Event{Kind: KindCapacityRequest, Region: "us-west-2", Token: "tok", RunID: "run-1", Time: at})
		if err != nil {
			t.Fatalf("Send failed: %v", err)
		}

		if received.Source != "acme.spotorchestrator" {
			t.Errorf("expected source acme.spotorchestrator, got %q", received.Source)
		}
		if received.DetailType != "SpotCapacityRequest" {
			t.Errorf("expected detail-type SpotCapacityRequest, got %q", received.DetailType)
		}
		if !received.Time.Equal(at) {
			t.Errorf("expected time %v, got %v", at, received.Time)
		}
		var detail struct {
			TaskToken string `json:"TaskToken"`
		}
		if err := json.Unmarshal(received.Detail, &detail); err != nil {
			t.Fatalf("failed to decode detail: %v", err)
		}
		if detail.TaskToken != "tok" {
			t.Errorf("expected TaskToken tok, got %q", detail.TaskToken)
		}
	})

	t.Run("falls back to default URL", func(t *testing.T) {
		called := false
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		webhook := NewWebhook(WebhookConfig{DefaultURL: server.URL}, nil)
		if err := webhook.Send(ctx, Event{Kind: KindTeardown, Region: "eu-west-1"}); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
		if !called {
			t.Error("expected default URL to be called")
		}
	})

	t.Run("no URL for region", func(t *testing.T) {
		webhook := NewWebhook(WebhookConfig{}, nil)
		if err := webhook.Send(ctx, Event{Kind: KindTeardown, Region: "eu-west-1"}); err == nil {
			t.Error("expected error without a configured URL")
		}
	})

	t.Run("non-2xx is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("upstream down"))
		}))
		defer server.Close()

		webhook := NewWebhook(WebhookConfig{DefaultURL: server.URL}, nil)
		if err := webhook.Send(ctx, Event{Kind: KindTeardown, Region: "eu-west-1"}); err == nil {
			t.Error("expected error for 502 response")
		}
	})
}
