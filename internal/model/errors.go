package model

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrNoCredential       = errors.New("no credential stored for user")
	ErrAuthExpired        = errors.New("credential rejected by provider")
	ErrTransientNetwork   = errors.New("transient network error")
	ErrRateLimited        = errors.New("rate limited by provider")
	ErrCursorReset        = errors.New("cursor reset required")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrSignatureInvalid   = errors.New("webhook signature invalid")
	ErrInvalidState       = errors.New("invalid oauth state")
)
