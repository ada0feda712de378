// Package memory keeps credentials and cursors in process memory. Nothing
// survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/dtroode/mdpublish/internal/model"
)

var (
	_ model.CredentialStore = (*CredentialStore)(nil)
	_ model.CursorStore     = (*CursorStore)(nil)
)

type CredentialStore struct {
	mu     sync.RWMutex
	tokens map[model.UID]model.Credential
}

func NewCredentialStore() *CredentialStore {
	return &CredentialStore{tokens: make(map[model.UID]model.Credential)}
}

func (s *CredentialStore) Get(_ context.Context, uid model.UID) (model.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	credential, ok := s.tokens[uid]
	if !ok {
		return "", model.ErrNotFound
	}
	return credential, nil
}

func (s *CredentialStore) Set(_ context.Context, uid model.UID, credential model.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[uid] = credential
	return nil
}

func (s *CredentialStore) List(_ context.Context) ([]model.UID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uids := make([]model.UID, 0, len(s.tokens))
	for uid := range s.tokens {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}

type CursorStore struct {
	mu      sync.RWMutex
	cursors map[model.UID]string
}

func NewCursorStore() *CursorStore {
	return &CursorStore{cursors: make(map[model.UID]string)}
}

func (s *CursorStore) Get(_ context.Context, uid model.UID) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cursor, ok := s.cursors[uid]
	return cursor, ok, nil
}

func (s *CursorStore) Set(_ context.Context, uid model.UID, cursor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cursors[uid] = cursor
	return nil
}

func (s *CursorStore) Reset(_ context.Context, uid model.UID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cursors, uid)
	return nil
}
