package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nmoralez/rudder/internal/flow"
	"github.com/nmoralez/rudder/internal/knowledge"
)

// ErrSessionNotFound is returned when a session id is unknown.
var ErrSessionNotFound = errors.New("session not found")

// Deps carries the shared collaborators every session is built with.
// Retriever and Recorder may be nil; nil means no facts and no persistence.
type Deps struct {
	Retriever knowledge.Retriever
	Recorder  Recorder
	Logger    zerolog.Logger
}

// Manager owns the live session registry. Sessions are created lazily and
// kept until EndSession; each one processes its turns independently.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	spec     *flow.Specification
	deps     Deps
	log      zerolog.Logger
}

// NewManager builds a manager for one flow specification.
func NewManager(spec *flow.Specification, deps Deps) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		spec:     spec,
		deps:     deps,
		log:      deps.Logger.With().Str("component", "session_manager").Logger(),
	}
}

// StartSession creates a new session with a generated id.
func (m *Manager) StartSession() (*Session, error) {
	return m.startWithID(uuid.NewString())
}

func (m *Manager) startWithID(id string) (*Session, error) {
	s, err := newSession(id, m.spec, m.deps)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existing, ok := m.sessions[id]; ok {
		// Another turn adopted this id between our lookup and now. Keep the
		// registered session so both turns serialize on the same state machine.
		m.mu.Unlock()
		return existing, nil
	}
	m.sessions[id] = s
	m.mu.Unlock()

	m.log.Info().Str("session_id", id).Msg("session started")
	return s, nil
}

// Get returns a live session by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// ProcessTurn routes a message to its session, creating the session when the
// id is empty or unknown. Callers that want strict existence checks use Get.
func (m *Manager) ProcessTurn(ctx context.Context, sessionID, message string) (*TurnResult, error) {
	var s *Session
	var err error
	switch {
	case sessionID == "":
		s, err = m.StartSession()
	default:
		s, err = m.Get(sessionID)
		if errors.Is(err, ErrSessionNotFound) {
			s, err = m.startWithID(sessionID)
		}
	}
	if err != nil {
		return nil, err
	}
	return s.ProcessTurn(ctx, message)
}

// EndSession drops a session from the registry.
func (m *Manager) EndSession(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	m.log.Info().Str("session_id", id).Msg("session ended")
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
