package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dtroode/mdpublish/internal/logger"
	"github.com/dtroode/mdpublish/internal/model"
)

// Auth runs the OAuth authorization-code handshake and stores the resulting
// credential.
type Auth struct {
	authorizer  model.Authorizer
	states      model.StateManager
	credentials model.CredentialStore
	logger      *logger.Logger
}

func NewAuth(
	authorizer model.Authorizer,
	states model.StateManager,
	credentials model.CredentialStore,
	logger *logger.Logger,
) *Auth {
	return &Auth{
		authorizer:  authorizer,
		states:      states,
		credentials: credentials,
		logger:      logger,
	}
}

// Begin returns the provider URL to send the browser to and the nonce the
// browser must present on callback.
func (a *Auth) Begin() (authURL string, nonce string, err error) {
	nonce = uuid.NewString()

	state, err := a.states.Issue(nonce)
	if err != nil {
		a.logger.Error("Auth service: failed to issue state", "error", err.Error())
		return "", "", fmt.Errorf("failed to issue state: %w", err)
	}

	return a.authorizer.AuthCodeURL(state), nonce, nil
}

// Complete verifies state against nonce, exchanges code and stores the
// credential. Nothing is stored when any step fails.
func (a *Auth) Complete(ctx context.Context, code, state, nonce string) (model.UID, error) {
	if err := a.states.Verify(state, nonce); err != nil {
		a.logger.Warn("Auth service: rejected callback state", "error", err.Error())
		return "", err
	}

	if code == "" {
		return "", fmt.Errorf("%w: missing authorization code", model.ErrInvalidState)
	}

	uid, credential, err := a.authorizer.Exchange(ctx, code)
	if err != nil {
		a.logger.Error("Auth service: failed to exchange code", "error", err.Error())
		return "", fmt.Errorf("failed to exchange code: %w", err)
	}

	if err := a.credentials.Set(ctx, uid, credential); err != nil {
		a.logger.Error("Auth service: failed to store credential",
			"uid", string(uid),
			"error", err.Error())
		return "", fmt.Errorf("failed to store credential: %w", err)
	}

	a.logger.Info("Auth service: user authorized", "uid", string(uid))

	return uid, nil
}
