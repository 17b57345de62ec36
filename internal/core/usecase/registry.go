package usecase

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/GoBeromsu/My-awesome-RA/internal/core/domain"
	"github.com/GoBeromsu/My-awesome-RA/internal/core/ports"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// SessionFactory builds the session for one editor session id.
type SessionFactory func(ctx context.Context, id string) (*Session, error)

// SessionObserver is told about every mount and unmount.
type SessionObserver interface {
	SessionMounted()
	SessionClosed()
}

type RegistryOption func(*SessionRegistry)

func WithSessionObserver(observer SessionObserver) RegistryOption {
	return func(r *SessionRegistry) {
		if observer != nil {
			r.observer = observer
		}
	}
}

type noopObserver struct{}

func (noopObserver) SessionMounted() {}
func (noopObserver) SessionClosed()  {}

// SessionRegistry mounts sessions lazily and unmounts them on request.
type SessionRegistry struct {
	factory  SessionFactory
	observer SessionObserver

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

func NewSessionRegistry(factory SessionFactory, opts ...RegistryOption) *SessionRegistry {
	r := &SessionRegistry{
		factory:  factory,
		observer: noopObserver{},
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

func (r *SessionRegistry) Session(ctx context.Context, id string) (ports.EvidencePanel, error) {
	if !ValidSessionID(id) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "session", fmt.Errorf("invalid session id %q", id))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, domain.ErrSessionClosed
	}
	if s, ok := r.sessions[id]; ok {
		return s, nil
	}
	s, err := r.factory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("mount session %s: %w", id, err)
	}
	r.sessions[id] = s
	r.observer.SessionMounted()
	return s, nil
}

func (r *SessionRegistry) CloseSession(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return domain.WrapError(domain.ErrSessionNotFound, "close session", fmt.Errorf("session %q", id))
	}
	s.Close()
	r.observer.SessionClosed()
	return nil
}

// Len reports the number of mounted sessions.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close unmounts every session. The registry rejects new sessions afterwards.
func (r *SessionRegistry) Close() {
	r.mu.Lock()
	r.closed = true
	sessions := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		sessions = append(sessions, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Close()
			r.observer.SessionClosed()
		}()
	}
	wg.Wait()
}
