package dropbox

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/oauth2"

	"github.com/dtroode/mdpublish/internal/model"
)

var _ model.Authorizer = (*Authenticator)(nil)

// Authenticator runs the OAuth2 authorization-code flow against Dropbox.
type Authenticator struct {
	cfg *oauth2.Config
}

// NewAuthenticator creates an Authenticator for the given app and callback URL.
func NewAuthenticator(appKey, appSecret, redirectURL, authURL, tokenURL string) *Authenticator {
	return &Authenticator{
		cfg: &oauth2.Config{
			ClientID:     appKey,
			ClientSecret: appSecret,
			RedirectURL:  redirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:  authURL,
				TokenURL: tokenURL,
			},
		},
	}
}

// AuthCodeURL returns the provider URL the user is redirected to.
func (a *Authenticator) AuthCodeURL(state string) string {
	return a.cfg.AuthCodeURL(state)
}

// Exchange trades an authorization code for the user's id and access token.
func (a *Authenticator) Exchange(ctx context.Context, code string) (model.UID, model.Credential, error) {
	token, err := a.cfg.Exchange(ctx, code)
	if err != nil {
		return "", "", fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	// webhook notifications name users by this numeric uid only
	uid := extraString(token, "uid")
	if uid == "" {
		return "", "", fmt.Errorf("token response carries no uid")
	}

	return model.UID(uid), model.Credential(token.AccessToken), nil
}

func extraString(token *oauth2.Token, key string) string {
	switch v := token.Extra(key).(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}
