package model

// SyncResult summarizes one sync attempt for a user.
type SyncResult struct {
	RunID   string
	Pages   int
	Written int
	Skipped int
	Cursor  string
}
