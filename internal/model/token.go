package model

import "context"

// StateManager issues and verifies the signed OAuth state parameter that binds
// an authorization callback to the browser that started it.
type StateManager interface {
	Issue(nonce string) (string, error)
	Verify(state, nonce string) error
}

// Authorizer is the OAuth handshake with the provider.
type Authorizer interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (UID, Credential, error)
}
