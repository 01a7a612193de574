package auth

import (
	"net/http"
	"slices"
)

// ChainAuthenticator tries authenticators in order. The first one that
// authenticates wins; the first one that rejects credentials stops the
// chain with its error.
type ChainAuthenticator struct {
	authenticators []Authenticator
}

// NewChainAuthenticator creates a chain over authenticators.
func NewChainAuthenticator(authenticators ...Authenticator) *ChainAuthenticator {
	return &ChainAuthenticator{authenticators: slices.Clone(authenticators)}
}

// AuthenticateRequest implements Authenticator.
func (c *ChainAuthenticator) AuthenticateRequest(r *http.Request) (*Identity, bool, error) {
	for _, a := range c.authenticators {
		identity, ok, err := a.AuthenticateRequest(r)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return identity, true, nil
		}
	}
	return nil, false, nil
}

// Methods returns the method names of the chained authenticators.
func (c *ChainAuthenticator) Methods() []string {
	var methods []string
	for _, a := range c.authenticators {
		if desc, ok := a.(AuthenticatorDescriptor); ok {
			methods = append(methods, desc.Method())
		}
	}
	return methods
}
