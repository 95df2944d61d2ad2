package jwks

import (
	"sync"
	"time"
)

// missStore remembers key identifiers that a freshly fetched key set did
// not contain, so repeated presentations of the same unknown kid fail
// fast instead of refetching the remote set every time.
type missStore struct {
	mu        sync.Mutex
	seenUntil map[string]time.Time
	window    time.Duration
}

func newMissStore(window time.Duration) *missStore {
	return &missStore{seenUntil: map[string]time.Time{}, window: window}
}

func (s *missStore) mark(kid string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Opportunistic cleanup.
	for k, exp := range s.seenUntil {
		if !exp.After(now) {
			delete(s.seenUntil, k)
		}
	}
	s.seenUntil[kid] = now.Add(s.window)
}

func (s *missStore) recent(kid string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.seenUntil[kid]
	if !ok {
		return false
	}
	if !exp.After(now) {
		delete(s.seenUntil, kid)
		return false
	}
	return true
}
