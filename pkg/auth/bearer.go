package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"slices"
	"strings"
)

var (
	// ErrInvalidToken is returned when a credential is present but wrong.
	ErrInvalidToken = errors.New("invalid credentials")

	// ErrMalformedAuthHeader is returned when the Authorization header is
	// not of the form "Bearer <token>".
	ErrMalformedAuthHeader = errors.New("malformed authorization header")
)

// DefaultAPIKeyHeader is the header worker regions put their key in.
const DefaultAPIKeyHeader = "X-Api-Key"

// BearerTokenAuthenticator accepts a single pre-shared bearer token.
type BearerTokenAuthenticator struct {
	token    []byte
	identity Identity
}

// NewBearerTokenAuthenticator creates a bearer token authenticator. An
// empty token never authenticates anything.
func NewBearerTokenAuthenticator(token, subject string, groups []string) *BearerTokenAuthenticator {
	return &BearerTokenAuthenticator{
		token:    []byte(token),
		identity: Identity{Subject: subject, Groups: slices.Clone(groups), Method: "bearer-token"},
	}
}

// AuthenticateRequest implements Authenticator.
func (a *BearerTokenAuthenticator) AuthenticateRequest(r *http.Request) (*Identity, bool, error) {
	if len(a.token) == 0 {
		return nil, false, nil
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, false, nil
	}
	provided, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || provided == "" {
		return nil, false, ErrMalformedAuthHeader
	}

	if subtle.ConstantTimeCompare([]byte(provided), a.token) != 1 {
		return nil, false, ErrInvalidToken
	}
	return a.identity.clone(), true, nil
}

// Method implements AuthenticatorDescriptor.
func (a *BearerTokenAuthenticator) Method() string {
	return "bearer-token"
}

// APIKeyAuthenticator accepts a static key in a request header.
type APIKeyAuthenticator struct {
	header   string
	key      []byte
	identity Identity
}

// NewAPIKeyAuthenticator creates an API key authenticator reading header,
// or DefaultAPIKeyHeader when header is empty. An empty key never
// authenticates anything.
func NewAPIKeyAuthenticator(header, key, subject string, groups []string) *APIKeyAuthenticator {
	if header == "" {
		header = DefaultAPIKeyHeader
	}
	return &APIKeyAuthenticator{
		header:   header,
		key:      []byte(key),
		identity: Identity{Subject: subject, Groups: slices.Clone(groups), Method: "api-key"},
	}
}

// AuthenticateRequest implements Authenticator.
func (a *APIKeyAuthenticator) AuthenticateRequest(r *http.Request) (*Identity, bool, error) {
	if len(a.key) == 0 {
		return nil, false, nil
	}
	provided := r.Header.Get(a.header)
	if provided == "" {
		return nil, false, nil
	}
	if subtle.ConstantTimeCompare([]byte(provided), a.key) != 1 {
		return nil, false, ErrInvalidToken
	}
	return a.identity.clone(), true, nil
}

// Method implements AuthenticatorDescriptor.
func (a *APIKeyAuthenticator) Method() string {
	return "api-key"
}

func (id Identity) clone() *Identity {
	id.Groups = slices.Clone(id.Groups)
	return &id
}
