package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/tkoivu/threadline-backend/internal/pkg/logger"
)

// Registry maps live sessions both by session id and by transport id. One
// registry is owned by the process entry point and threaded through the
// transport handlers.
type Registry struct {
	mu          sync.RWMutex
	log         *logger.Logger
	byID        map[uuid.UUID]*Session
	byTransport map[string]*Session
}

func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		log:         log.With("component", "SessionRegistry"),
		byID:        map[uuid.UUID]*Session{},
		byTransport: map[string]*Session{},
	}
}

func (r *Registry) Add(s *Session) {
	if s == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[s.ID] = s
	if tid := s.TransportID(); tid != "" {
		r.byTransport[tid] = s
	}
}

func (r *Registry) ByID(id uuid.UUID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	return s, ok
}

func (r *Registry) ByTransport(transportID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byTransport[transportID]
	return s, ok
}

// Rebind moves a session to a new transport id on reconnect.
func (r *Registry) Rebind(s *Session, newTransportID string) {
	if s == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if old := s.TransportID(); old != "" {
		delete(r.byTransport, old)
	}
	s.Restore(newTransportID)
	r.byTransport[newTransportID] = s
}

func (r *Registry) Remove(s *Session) {
	if s == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, s.ID)
	if tid := s.TransportID(); tid != "" {
		delete(r.byTransport, tid)
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
