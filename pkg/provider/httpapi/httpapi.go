// Package httpapi implements a capacity market backed by a JSON HTTP API.
// Requests authenticate either with a static API key or with OAuth2 client
// credentials.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/NavarchProject/spotorch/pkg/clock"
	"github.com/NavarchProject/spotorch/pkg/provider"
)

const defaultTimeout = 30 * time.Second

// OAuth2Config configures the client-credentials grant.
type OAuth2Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Config holds configuration for the HTTP market.
type Config struct {
	BaseURL string
	// APIKey is sent as a bearer token. Ignored when OAuth2 is set.
	APIKey  string
	OAuth2  *OAuth2Config
	Timeout time.Duration
	Clock   clock.Clock
}

// Market implements provider.Market against an HTTP capacity API.
type Market struct {
	baseURL string
	apiKey  string
	client  *http.Client
	clock   clock.Clock
}

var (
	_ provider.Market       = (*Market)(nil)
	_ provider.RegionLister = (*Market)(nil)
)

// New creates a new HTTP market client.
func New(ctx context.Context, cfg Config) (*Market, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.APIKey == "" && cfg.OAuth2 == nil {
		return nil, fmt.Errorf("API key or OAuth2 credentials are required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}

	client := &http.Client{Timeout: timeout}
	apiKey := cfg.APIKey
	if cfg.OAuth2 != nil {
		cc := clientcredentials.Config{
			ClientID:     cfg.OAuth2.ClientID,
			ClientSecret: cfg.OAuth2.ClientSecret,
			TokenURL:     cfg.OAuth2.TokenURL,
			Scopes:       cfg.OAuth2.Scopes,
		}
		tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: timeout})
		client = cc.Client(tokenCtx)
		client.Timeout = timeout
		apiKey = ""
	}

	return &Market{
		baseURL: cfg.BaseURL,
		apiKey:  apiKey,
		client:  client,
		clock:   clk,
	}, nil
}

func (m *Market) Name() string {
	return "httpapi"
}

// Scores posts the whole region batch to /capacity-scores.
func (m *Market) Scores(ctx context.Context, resourceType string, regions []string, capacity int) ([]provider.CapacityScore, error) {
	if len(regions) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(scoresRequest{
		ResourceType:   resourceType,
		Regions:        regions,
		TargetCapacity: capacity,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var resp scoresResponse
	if err := m.do(ctx, http.MethodPost, "/capacity-scores", bytes.NewReader(body), &resp); err != nil {
		return nil, fmt.Errorf("failed to get capacity scores: %w", err)
	}

	now := m.clock.Now()
	scores := make([]provider.CapacityScore, 0, len(resp.Data))
	for _, s := range resp.Data {
		scores = append(scores, provider.CapacityScore{Region: s.Region, Score: s.Score, AsOf: now})
	}
	return scores, nil
}

// History reads /spot-prices for one region since the start of the window.
func (m *Market) History(ctx context.Context, resourceType, region string, window time.Duration) ([]provider.PriceQuote, error) {
	q := url.Values{}
	q.Set("resource_type", resourceType)
	q.Set("region", region)
	q.Set("since", m.clock.Now().Add(-window).UTC().Format(time.RFC3339))

	var resp pricesResponse
	if err := m.do(ctx, http.MethodGet, "/spot-prices?"+q.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get spot prices for %s: %w", region, err)
	}

	quotes := make([]provider.PriceQuote, 0, len(resp.Data))
	for _, p := range resp.Data {
		quotes = append(quotes, provider.PriceQuote{Region: region, Price: p.Price, ObservedAt: p.ObservedAt})
	}
	return quotes, nil
}

// ListRegions returns the regions the API serves.
func (m *Market) ListRegions(ctx context.Context) ([]string, error) {
	var resp regionsResponse
	if err := m.do(ctx, http.MethodGet, "/regions", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list regions: %w", err)
	}
	regions := make([]string, 0, len(resp.Data))
	for _, r := range resp.Data {
		regions = append(regions, r.Name)
	}
	return regions, nil
}

func (m *Market) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	m.setHeaders(req)

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return m.parseError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (m *Market) setHeaders(req *http.Request) {
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
}

func (m *Market) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var errResp errorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		return fmt.Errorf("capacity API error: %s (code: %s)", errResp.Error.Message, errResp.Error.Code)
	}
	return fmt.Errorf("capacity API error: status %d, body: %s", resp.StatusCode, string(body))
}

type scoresRequest struct {
	ResourceType   string   `json:"resource_type"`
	Regions        []string `json:"regions"`
	TargetCapacity int      `json:"target_capacity"`
}

type scoresResponse struct {
	Data []struct {
		Region string `json:"region"`
		Score  int    `json:"score"`
	} `json:"data"`
}

type pricesResponse struct {
	Data []struct {
		Price      float64   `json:"price"`
		ObservedAt time.Time `json:"observed_at"`
	} `json:"data"`
}

type regionsResponse struct {
	Data []struct {
		Name string `json:"name"`
	} `json:"data"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
