package session

import (
	"errors"
	"sync"
)

var ErrAlreadyRegistered = errors.New("call already registered")

// Registry maps a call SID to its active session so inbound carrier frames
// route to the right session and teardown never targets a stale one. It is the
// only structure shared across sessions; the mutex is never held across I/O.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*CallSession
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*CallSession)}
}

// Register adds a session under callSID. A duplicate registration is a
// protocol violation and returns ErrAlreadyRegistered.
func (r *Registry) Register(callSID string, s *CallSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[callSID]; ok {
		return ErrAlreadyRegistered
	}
	r.sessions[callSID] = s
	return nil
}

// Lookup returns the session registered under callSID, if any.
func (r *Registry) Lookup(callSID string) (*CallSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[callSID]
	return s, ok
}

// Remove deletes the registration. Removing an absent entry is a no-op.
func (r *Registry) Remove(callSID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, callSID)
}

// Len reports the number of active sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
