package core

import "sync"

// chatSequencer hands out one lock per chat. Entries are refcounted and
// removed when the last holder releases them.
type chatSequencer struct {
	mu    sync.Mutex
	locks map[string]*chatLock
}

type chatLock struct {
	mu   sync.Mutex
	refs int
}

func newChatSequencer() *chatSequencer {
	return &chatSequencer{locks: make(map[string]*chatLock)}
}

// lock blocks until the caller owns chatID and returns the release func.
func (s *chatSequencer) lock(chatID string) func() {
	s.mu.Lock()
	l, ok := s.locks[chatID]
	if !ok {
		l = &chatLock{}
		s.locks[chatID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, chatID)
		}
		s.mu.Unlock()
	}
}

func (s *chatSequencer) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
