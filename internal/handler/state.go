package handler

import "sync"

type awaiting int

const (
	awaitingNothing awaiting = iota
	awaitingNote
	awaitingTime
)

// chatState is the in-progress dialog of one chat. It lives in memory only.
type chatState struct {
	awaiting awaiting
	score    int
}

type chatStates struct {
	mu     sync.Mutex
	states map[int64]chatState
}

func newChatStates() *chatStates {
	return &chatStates{states: make(map[int64]chatState)}
}

func (s *chatStates) get(chatID int64) chatState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[chatID]
}

func (s *chatStates) set(chatID int64, state chatState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[chatID] = state
}

func (s *chatStates) clear(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, chatID)
}

// chatLocks serializes updates of one chat while different chats run in parallel.
type chatLocks struct {
	mu    sync.Mutex
	locks map[int64]*chatLock
}

type chatLock struct {
	mu   sync.Mutex
	refs int
}

func newChatLocks() *chatLocks {
	return &chatLocks{locks: make(map[int64]*chatLock)}
}

// lock blocks until chatID is free and returns the matching unlock.
func (l *chatLocks) lock(chatID int64) func() {
	l.mu.Lock()
	lock, ok := l.locks[chatID]
	if !ok {
		lock = &chatLock{}
		l.locks[chatID] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()

	return func() {
		lock.mu.Unlock()

		l.mu.Lock()
		defer l.mu.Unlock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, chatID)
		}
	}
}
