package observability

import (
	"sync"
	"time"
)

type Phase string

const (
	PhaseIdle        Phase = "IDLE"
	PhaseClassifying Phase = "CLASSIFYING"
	PhasePlanning    Phase = "PLANNING"
	PhaseExecuting   Phase = "EXECUTING"
	PhaseSynthesis   Phase = "SYNTHESIS"
)

type SystemStatus struct {
	mu            sync.RWMutex
	CurrentPhase  Phase
	ActiveTurn    string
	ActiveTurns   int
	LastHeartbeat time.Time
}

var globalStatus = &SystemStatus{
	CurrentPhase:  PhaseIdle,
	LastHeartbeat: time.Now(),
}

// BeginTurn and EndTurn bracket one user turn. Phase and turn label are
// last-writer-wins across concurrent turns; idle is only entered when no
// turn is in flight, so one turn finishing cannot blank another's status.
func BeginTurn(turn string) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.ActiveTurns++
	globalStatus.ActiveTurn = turn
}

func EndTurn() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	if globalStatus.ActiveTurns > 0 {
		globalStatus.ActiveTurns--
	}
	if globalStatus.ActiveTurns == 0 {
		globalStatus.CurrentPhase = PhaseIdle
		globalStatus.ActiveTurn = ""
	}
}

// SetStatus updates the global system status.
func SetStatus(phase Phase, turn string) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.CurrentPhase = phase
	globalStatus.ActiveTurn = turn
}

// GetStatus retrieves a copy of the global system status.
func GetStatus() (Phase, string, time.Time) {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	return globalStatus.CurrentPhase, globalStatus.ActiveTurn, globalStatus.LastHeartbeat
}

// ActiveTurnCount reports how many turns are currently in flight.
func ActiveTurnCount() int {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	return globalStatus.ActiveTurns
}

// Heartbeat refreshes the liveness timestamp.
func Heartbeat() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.LastHeartbeat = time.Now()
}
