package agent

import (
	"log"
	"sync"

	"github.com/rahul/vidya/internal/store"
)

// Well-known fact keys.
const (
	FactLastCourse    = "last_course_id"
	FactPendingPlan   = "pending_plan_id"
	FactWorkflowStage = "workflow_stage"
	FactLastAction    = "last_action"
)

// SessionStore persists session facts and turn history.
type SessionStore interface {
	LoadFacts(userID string) (map[string]string, error)
	SaveFact(userID, key, value string) error
	AddTurn(userID string, turn store.Turn) error
	RecentTurns(userID string, limit int) ([]store.Turn, error)
}

// Session holds one user's conversation history and derived facts.
//
// A Session is only touched by the goroutine processing its current turn;
// the Manager serializes turns per user, so no internal locking is needed.
// Only the coordinator and synthesizer mutate it.
type Session struct {
	UserID string

	facts        map[string]string
	turns        []store.Turn
	historyLimit int
	store        SessionStore
}

// Fact returns a derived fact, or "" when unset.
func (s *Session) Fact(key string) string {
	return s.facts[key]
}

// SetFact records a derived fact and writes it through to the store.
func (s *Session) SetFact(key, value string) {
	s.facts[key] = value
	if s.store != nil {
		if err := s.store.SaveFact(s.UserID, key, value); err != nil {
			log.Printf("failed to persist fact %s for %s: %v", key, s.UserID, err)
		}
	}
}

// Turns returns the retained history, oldest first.
func (s *Session) Turns() []store.Turn {
	return s.turns
}

// AppendTurn adds a turn to the history, evicting the oldest beyond the
// retention bound, and persists it.
func (s *Session) AppendTurn(t store.Turn) {
	s.turns = append(s.turns, t)
	if s.historyLimit > 0 && len(s.turns) > s.historyLimit {
		s.turns = s.turns[len(s.turns)-s.historyLimit:]
	}
	if s.store != nil {
		if err := s.store.AddTurn(s.UserID, t); err != nil {
			log.Printf("failed to persist turn for %s: %v", s.UserID, err)
		}
	}
}

// Manager owns all live sessions and serializes turn processing per user.
// Turns for different users run fully concurrently.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry

	store        SessionStore
	historyLimit int
}

type sessionEntry struct {
	session *Session
	turnMu  sync.Mutex
}

func NewManager(store SessionStore, historyLimit int) *Manager {
	return &Manager{
		sessions:     make(map[string]*sessionEntry),
		store:        store,
		historyLimit: historyLimit,
	}
}

// Acquire returns the session for userID, creating and hydrating it on
// first use, and blocks until any in-flight turn for the same user has
// finished. The caller must call release when the turn is done.
func (m *Manager) Acquire(userID string) (session *Session, release func()) {
	m.mu.Lock()
	entry, ok := m.sessions[userID]
	if !ok {
		entry = &sessionEntry{session: m.hydrate(userID)}
		m.sessions[userID] = entry
	}
	m.mu.Unlock()

	entry.turnMu.Lock()
	return entry.session, entry.turnMu.Unlock
}

func (m *Manager) hydrate(userID string) *Session {
	s := &Session{
		UserID:       userID,
		facts:        make(map[string]string),
		historyLimit: m.historyLimit,
		store:        m.store,
	}
	if m.store == nil {
		return s
	}
	facts, err := m.store.LoadFacts(userID)
	if err != nil {
		log.Printf("failed to load facts for %s: %v", userID, err)
	} else {
		for k, v := range facts {
			s.facts[k] = v
		}
	}
	turns, err := m.store.RecentTurns(userID, m.historyLimit)
	if err != nil {
		log.Printf("failed to load history for %s: %v", userID, err)
	} else {
		s.turns = turns
	}
	return s
}
