package model

import "context"

// EntryMetadata describes a changed file or folder. A nil *EntryMetadata in a
// ChangeEntry marks a deletion.
type EntryMetadata struct {
	IsDir bool
	Rev   string
	Size  int64
}

// ChangeEntry is one element of a change-feed page.
type ChangeEntry struct {
	Path     string
	Metadata *EntryMetadata
}

// Page is a single response of the change feed: an ordered diff between the
// requested cursor and Cursor.
type Page struct {
	Entries []ChangeEntry
	Cursor  string
	HasMore bool
}

// Provider is the set of storage capabilities the sync engine needs on behalf
// of one user.
type Provider interface {
	// ListDelta fetches the page following cursor. hasCursor=false means
	// "from the beginning of history".
	ListDelta(ctx context.Context, cursor string, hasCursor bool) (Page, error)
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte, overwrite bool) error
}

// ProviderFactory binds a Provider to a user's credential.
type ProviderFactory interface {
	ForCredential(credential Credential) Provider
}
