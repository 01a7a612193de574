package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NavarchProject/spotorch/pkg/clock"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "api key",
			cfg:     Config{BaseURL: "http://example.test", APIKey: "k"},
			wantErr: false,
		},
		{
			name:    "oauth2",
			cfg:     Config{BaseURL: "http://example.test", OAuth2: &OAuth2Config{TokenURL: "http://example.test/token"}},
			wantErr: false,
		},
		{
			name:    "missing base URL",
			cfg:     Config{APIKey: "k"},
			wantErr: true,
		},
		{
			name:    "missing credentials",
			cfg:     Config{BaseURL: "http://example.test"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(context.Background(), tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && m == nil {
				t.Error("New() returned nil market")
			}
		})
	}
}

func TestMarket_Name(t *testing.T) {
	m, _ := New(context.Background(), Config{BaseURL: "http://example.test", APIKey: "k"})
	if got := m.Name(); got != "httpapi" {
		t.Errorf("Name() = %v, want httpapi", got)
	}
}

func TestMarket_Scores(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/capacity-scores" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Error("missing or invalid authorization header")
		}

		var req scoresRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.ResourceType != "gpu_8x_h100_sxm5" || req.TargetCapacity != 1 || len(req.Regions) != 2 {
			t.Errorf("unexpected request: %+v", req)
		}

		fmt.Fprint(w, `{"data":[{"region":"us-east-1","score":7},{"region":"us-west-1","score":2}]}`)
	}))
	defer server.Close()

	m, err := New(context.Background(), Config{BaseURL: server.URL, APIKey: "test-key", Clock: clock.NewFakeClock(testNow)})
	if err != nil {
		t.Fatal(err)
	}
	scores, err := m.Scores(context.Background(), "gpu_8x_h100_sxm5", []string{"us-east-1", "us-west-1"}, 1)
	if err != nil {
		t.Fatalf("Scores() error = %v", err)
	}
	if len(scores) != 2 {
		t.Fatalf("got %d scores, want 2", len(scores))
	}
	if scores[0].Region != "us-east-1" || scores[0].Score != 7 || !scores[0].AsOf.Equal(testNow) {
		t.Errorf("scores[0] = %+v", scores[0])
	}
}

func TestMarket_History(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/spot-prices" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("region") != "us-east-1" || q.Get("resource_type") != "gpu_1x_a10" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		if q.Get("since") != "2026-03-01T11:00:00Z" {
			t.Errorf("since = %q", q.Get("since"))
		}
		fmt.Fprint(w, `{"data":[{"price":0.75,"observed_at":"2026-03-01T11:45:00Z"}]}`)
	}))
	defer server.Close()

	m, _ := New(context.Background(), Config{BaseURL: server.URL, APIKey: "k", Clock: clock.NewFakeClock(testNow)})
	quotes, err := m.History(context.Background(), "gpu_1x_a10", "us-east-1", time.Hour)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(quotes) != 1 || quotes[0].Price != 0.75 || quotes[0].Region != "us-east-1" {
		t.Fatalf("History() = %+v", quotes)
	}
	if !quotes[0].ObservedAt.Equal(testNow.Add(-15 * time.Minute)) {
		t.Errorf("ObservedAt = %v", quotes[0].ObservedAt)
	}
}

func TestMarket_ListRegions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"name":"us-east-1"},{"name":"europe-central-1"}]}`)
	}))
	defer server.Close()

	m, _ := New(context.Background(), Config{BaseURL: server.URL, APIKey: "k"})
	regions, err := m.ListRegions(context.Background())
	if err != nil {
		t.Fatalf("ListRegions() error = %v", err)
	}
	if len(regions) != 2 || regions[1] != "europe-central-1" {
		t.Errorf("ListRegions() = %v", regions)
	}
}

func TestMarket_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"code":"rate_limited","message":"slow down"}}`)
	}))
	defer server.Close()

	m, _ := New(context.Background(), Config{BaseURL: server.URL, APIKey: "k"})
	_, err := m.Scores(context.Background(), "t", []string{"r"}, 1)
	if err == nil || !strings.Contains(err.Error(), "slow down") {
		t.Errorf("Scores() error = %v, want API error message", err)
	}
}

func TestMarket_OAuth2ClientCredentials(t *testing.T) {
	var tokenRequests atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		tokenRequests.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse token form: %v", err)
		}
		if r.Form.Get("grant_type") != "client_credentials" {
			t.Errorf("grant_type = %q", r.Form.Get("grant_type"))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"issued-token","token_type":"bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/regions", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer issued-token" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		fmt.Fprint(w, `{"data":[{"name":"us-east-1"}]}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	m, err := New(context.Background(), Config{
		BaseURL: server.URL,
		OAuth2: &OAuth2Config{
			TokenURL:     server.URL + "/oauth/token",
			ClientID:     "spotorch",
			ClientSecret: "secret",
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if _, err := m.ListRegions(context.Background()); err != nil {
			t.Fatalf("ListRegions() error = %v", err)
		}
	}
	if got := tokenRequests.Load(); got != 1 {
		t.Errorf("token endpoint called %d times, want 1 (token should be cached)", got)
	}
}
