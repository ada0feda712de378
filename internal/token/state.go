package token

import (
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dtroode/mdpublish/internal/model"
)

const (
	stateTTL  = 10 * time.Minute
	typeState = "oauth_state"
)

// StateClaims binds an OAuth round trip to the nonce kept in the browser cookie.
type StateClaims struct {
	jwt.RegisteredClaims
	Nonce     string `json:"nonce"`
	TokenType string `json:"typ"`
}

// State implements StateManager backed by symmetric HMAC.
type State struct {
	secretKey string
	ttl       time.Duration
	now       func() time.Time
}

var _ model.StateManager = (*State)(nil)

// NewState creates a state manager signing with secretKey.
func NewState(secretKey string) *State {
	return &State{
		secretKey: secretKey,
		ttl:       stateTTL,
		now:       time.Now,
	}
}

// Issue signs a short-lived state for nonce.
func (s *State) Issue(nonce string) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, StateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Nonce:     nonce,
		TokenType: typeState,
	})

	tokenString, err := token.SignedString([]byte(s.secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign state: %w", err)
	}

	return tokenString, nil
}

// Verify checks the signature, the expiry and that state was issued for nonce.
// All failures wrap ErrInvalidState.
func (s *State) Verify(state, nonce string) error {
	if state == "" || nonce == "" {
		return fmt.Errorf("%w: missing state or nonce", model.ErrInvalidState)
	}

	claims := &StateClaims{}
	token, err := jwt.ParseWithClaims(state, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
		}
		return []byte(s.secretKey), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrInvalidState, err)
	}
	if !token.Valid {
		return fmt.Errorf("%w: token is invalid", model.ErrInvalidState)
	}
	if claims.TokenType != typeState {
		return fmt.Errorf("%w: token type mismatch: %s", model.ErrInvalidState, claims.TokenType)
	}
	if subtle.ConstantTimeCompare([]byte(claims.Nonce), []byte(nonce)) != 1 {
		return fmt.Errorf("%w: nonce mismatch", model.ErrInvalidState)
	}
	return nil
}
