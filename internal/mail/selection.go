package mail

import (
	"sync"

	"github.com/google/uuid"
)

// Selection tracks what the user is currently looking at. Each Select hands
// out a fresh token; background work captured under an older token is stale
// and its results must be dropped.
type Selection struct {
	mu    sync.Mutex
	key   string
	token uuid.UUID
}

// Select makes key (a mailbox or thread id) current and returns its token.
// Selecting the same key again still invalidates earlier tokens.
func (s *Selection) Select(key string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.key = key
	s.token = uuid.New()
	return s.token
}

// Current reports whether token is still the active selection.
func (s *Selection) Current(token uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return token != uuid.Nil && token == s.token
}

// Key returns the selected key.
func (s *Selection) Key() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}
