// Package comparison drives the two-step "pick two buildings from history"
// conversation.
package comparison

import (
	"sync"
	"time"
)

// State is one of Idle, AwaitingFirst or AwaitingSecond.
type State interface {
	isState()
}

type Idle struct{}

type AwaitingFirst struct{}

// AwaitingSecond remembers the zero-based history index chosen first.
type AwaitingSecond struct {
	First int
}

func (Idle) isState()           {}
func (AwaitingFirst) isState()  {}
func (AwaitingSecond) isState() {}

type session struct {
	state   State
	touched time.Time
}

// Sessions holds the comparison state of every user that is not Idle.
type Sessions struct {
	mu       sync.Mutex
	sessions map[int64]session
	now      func() time.Time
}

func NewSessions() *Sessions {
	return &Sessions{
		sessions: make(map[int64]session),
		now:      time.Now,
	}
}

func (s *Sessions) Get(userID int64) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[userID]; ok {
		return sess.state
	}
	return Idle{}
}

// Set stores state and refreshes the user's last activity. Idle removes the
// session.
func (s *Sessions) Set(userID int64, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, idle := state.(Idle); idle || state == nil {
		delete(s.sessions, userID)
		return
	}
	s.sessions[userID] = session{state: state, touched: s.now()}
}

// Reset returns the user to Idle and reports whether a flow was open.
func (s *Sessions) Reset(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[userID]
	delete(s.sessions, userID)
	return ok
}

// ExpireIdle resets every session untouched for longer than maxIdle and
// returns the affected users.
func (s *Sessions) ExpireIdle(maxIdle time.Duration) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxIdle)
	var expired []int64
	for userID, sess := range s.sessions {
		if sess.touched.Before(cutoff) {
			delete(s.sessions, userID)
			expired = append(expired, userID)
		}
	}
	return expired
}

// Active is the number of users in the middle of a comparison.
func (s *Sessions) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
