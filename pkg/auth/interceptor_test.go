package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"

	"github.com/NavarchProject/spotorch/pkg/api"
)

func TestTokenInterceptor(t *testing.T) {
	tests := []struct {
		token string
		want  string
	}{
		{"test-token", "Bearer test-token"},
		{"", ""},
	}
	for _, tt := range tests {
		called := false
		next := func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			called = true
			if got := req.Header().Get("Authorization"); got != tt.want {
				t.Errorf("expected Authorization %q, got %q", tt.want, got)
			}
			return nil, nil
		}

		_, _ = NewTokenInterceptor(tt.token).WrapUnary(next)(context.Background(), connect.NewRequest(&struct{}{}))
		if !called {
			t.Error("expected next to be called")
		}
	}
}

type ping struct{}

func TestRequireGroupInterceptor(t *testing.T) {
	const guarded = "/test.v1.Svc/Toggle"
	const open = "/test.v1.Svc/Status"

	handlerFor := func(procedure string) http.Handler {
		return connect.NewUnaryHandler(procedure,
			func(ctx context.Context, req *connect.Request[ping]) (*connect.Response[ping], error) {
				return connect.NewResponse(&ping{}), nil
			},
			connect.WithCodec(api.JSONCodec{}),
			connect.WithInterceptors(NewRequireGroupInterceptor([]string{GroupOperators}, guarded)),
		)
	}

	mux := http.NewServeMux()
	mux.Handle(guarded, handlerFor(guarded))
	mux.Handle(open, handlerFor(open))

	chain := NewChainAuthenticator(
		NewBearerTokenAuthenticator("op", "operator:ci", []string{GroupOperators}),
		NewAPIKeyAuthenticator("", "wk", "worker:eventbridge", []string{GroupWorkers}),
	)
	srv := httptest.NewServer(NewMiddleware(chain, WithRequireAuth(false)).Wrap(mux))
	defer srv.Close()

	call := func(procedure string, header, value string) error {
		client := connect.NewClient[ping, ping](srv.Client(), srv.URL+procedure, connect.WithCodec(api.JSONCodec{}))
		req := connect.NewRequest(&ping{})
		if header != "" {
			req.Header().Set(header, value)
		}
		_, err := client.CallUnary(context.Background(), req)
		return err
	}

	if err := call(guarded, "Authorization", "Bearer op"); err != nil {
		t.Errorf("operator should reach guarded procedure: %v", err)
	}
	if err := call(guarded, "X-Api-Key", "wk"); connect.CodeOf(err) != connect.CodePermissionDenied {
		t.Errorf("expected permission denied for worker, got %v", err)
	}
	if err := call(open, "X-Api-Key", "wk"); err != nil {
		t.Errorf("worker should reach unguarded procedure: %v", err)
	}
	if err := call(guarded, "", ""); err != nil {
		t.Errorf("unauthenticated calls pass when auth is optional: %v", err)
	}
}
