package services

import (
	"sync"

	"clinic-booking-chatbot/models"
)

// IdentityProvider exposes the user currently signed in to a chat session and
// notifies subscribers when that user changes.
type IdentityProvider interface {
	CurrentUser() *models.User
	OnChange(fn func(prev, next *models.User)) (unsubscribe func())
}

// SessionIdentity is the identity of one chat session. The HTTP layer feeds
// it whatever user the auth gateway reports on each request.
type SessionIdentity struct {
	mu        sync.RWMutex
	user      *models.User
	nextID    int
	listeners map[int]func(prev, next *models.User)
}

func NewSessionIdentity(user *models.User) *SessionIdentity {
	return &SessionIdentity{
		user:      cloneUser(user),
		listeners: make(map[int]func(prev, next *models.User)),
	}
}

// CurrentUser returns a copy of the signed-in user, or nil.
func (s *SessionIdentity) CurrentUser() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneUser(s.user)
}

// SetUser replaces the signed-in user. Listeners run only when the account
// actually changes; a new display name for the same id is stored silently.
func (s *SessionIdentity) SetUser(user *models.User) {
	s.mu.Lock()
	prev := s.user
	s.user = cloneUser(user)
	changed := !models.SameUser(prev, user)
	var listeners []func(prev, next *models.User)
	if changed {
		listeners = make([]func(prev, next *models.User), 0, len(s.listeners))
		for _, fn := range s.listeners {
			listeners = append(listeners, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(cloneUser(prev), cloneUser(user))
	}
}

// SignOut clears the signed-in user.
func (s *SessionIdentity) SignOut() {
	s.SetUser(nil)
}

func (s *SessionIdentity) OnChange(fn func(prev, next *models.User)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func cloneUser(u *models.User) *models.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
