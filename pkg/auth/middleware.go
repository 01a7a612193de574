package auth

import (
	"errors"
	"log/slog"
	"net/http"
)

// Middleware authenticates HTTP requests and attaches the Identity to the
// request context.
type Middleware struct {
	authenticator Authenticator
	excluded      map[string]bool
	requireAuth   bool
	logger        *slog.Logger
}

// MiddlewareOption configures a Middleware.
type MiddlewareOption func(*Middleware)

// WithExcludedPaths skips authentication for exact paths such as /healthz.
func WithExcludedPaths(paths ...string) MiddlewareOption {
	return func(m *Middleware) {
		for _, p := range paths {
			m.excluded[p] = true
		}
	}
}

// WithRequireAuth rejects requests without credentials. Default true.
func WithRequireAuth(require bool) MiddlewareOption {
	return func(m *Middleware) {
		m.requireAuth = require
	}
}

// WithLogger sets the logger for rejected requests.
func WithLogger(logger *slog.Logger) MiddlewareOption {
	return func(m *Middleware) {
		m.logger = logger
	}
}

// NewMiddleware creates an authentication middleware.
func NewMiddleware(authenticator Authenticator, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{
		authenticator: authenticator,
		excluded:      make(map[string]bool),
		requireAuth:   true,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With(slog.String("component", "auth"))
	return m
}

// Wrap returns next guarded by authentication.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.excluded[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		identity, ok, err := m.authenticator.AuthenticateRequest(r)
		if err != nil {
			m.logger.Warn("authentication failed",
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("error", err.Error()),
			)
			msg := "invalid credentials"
			if errors.Is(err, ErrMalformedAuthHeader) {
				msg = "invalid authorization format, expected 'Bearer <token>'"
			}
			unauthorized(w, msg)
			return
		}
		if !ok {
			if m.requireAuth {
				unauthorized(w, "missing credentials")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
	})
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="spotorch"`)
	http.Error(w, msg, http.StatusUnauthorized)
}
