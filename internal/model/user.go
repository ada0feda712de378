package model

import "context"

// UID identifies a Dropbox user. It is assigned by the provider during authorization.
type UID string

// Credential is an opaque bearer token authorizing API access on a user's behalf.
type Credential string

// CredentialStore persists the tokens map: one access token per user.
type CredentialStore interface {
	// Get returns ErrNotFound when the user never authorized.
	Get(ctx context.Context, uid UID) (Credential, error)
	// Set creates or overwrites the user's credential.
	Set(ctx context.Context, uid UID, credential Credential) error
	// List returns every user with a stored credential.
	List(ctx context.Context) ([]UID, error)
}

// CursorStore persists the cursors map: the last fully processed change-feed
// position for each user.
type CursorStore interface {
	// Get reports ok=false when the user has no cursor yet (null cursor).
	Get(ctx context.Context, uid UID) (cursor string, ok bool, err error)
	Set(ctx context.Context, uid UID, cursor string) error
	// Reset puts the cursor back to null so the next sync starts from the
	// beginning of history.
	Reset(ctx context.Context, uid UID) error
}

// Locker hands out exclusive per-key leases. The returned release func is
// safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}
