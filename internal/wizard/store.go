package wizard

import (
	"sync"
	"time"

	"gatebot/internal/transport"
)

// Step is where an admin session currently is.
type Step string

const (
	StepNone          Step = ""
	StepAwaitKey      Step = "AWAIT_KEY"
	StepAwaitLabel    Step = "AWAIT_LABEL"
	StepAwaitAsset    Step = "AWAIT_ASSET"
	StepAwaitNewAsset Step = "AWAIT_NEW_ASSET"
	StepAwaitNewLabel Step = "AWAIT_NEW_LABEL"

	StepAwaitBroadcastContent Step = "AWAIT_BROADCAST_CONTENT"
	StepAwaitBroadcastConfirm Step = "AWAIT_BROADCAST_CONFIRM"
)

// Session is the transient data held between steps of one admin flow.
type Session struct {
	AdminID int64
	Step    Step
	Key     string
	Label   string

	// Draft is the message an admin asked to broadcast.
	Draft *transport.MessageRef

	UpdatedAt time.Time
}

// Store keeps one session per admin. Expired sessions behave as absent and
// are dropped on access or by Sweep.
type Store struct {
	mu  sync.Mutex
	ttl time.Duration
	now func() time.Time
	m   map[int64]Session
}

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Store{ttl: ttl, now: time.Now, m: map[int64]Session{}}
}

// SetTTL applies to live sessions too. Values <= 0 are ignored.
func (s *Store) SetTTL(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	s.mu.Lock()
	s.ttl = ttl
	s.mu.Unlock()
}

func (s *Store) Get(adminID int64) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[adminID]
	if !ok {
		return Session{}, false
	}
	if s.now().Sub(sess.UpdatedAt) > s.ttl {
		delete(s.m, adminID)
		return Session{}, false
	}
	return sess, true
}

func (s *Store) Put(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.UpdatedAt = s.now()
	s.m[sess.AdminID] = sess
}

// Delete reports whether a live session was removed.
func (s *Store) Delete(adminID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[adminID]
	delete(s.m, adminID)
	return ok && s.now().Sub(sess.UpdatedAt) <= s.ttl
}

// Sweep drops expired sessions and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for id, sess := range s.m {
		if now.Sub(sess.UpdatedAt) > s.ttl {
			delete(s.m, id)
			n++
		}
	}
	return n
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
