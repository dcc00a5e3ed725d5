package observability

import (
	"testing"
	"time"
)

func TestSetAndGetStatus(t *testing.T) {
	SetStatus(PhaseExecuting, "u1")
	defer SetStatus(PhaseIdle, "")

	phase, turn, _ := GetStatus()
	if phase != PhaseExecuting {
		t.Errorf("Expected EXECUTING, got %s", phase)
	}
	if turn != "u1" {
		t.Errorf("Expected active turn u1, got %s", turn)
	}
}

func TestConcurrentTurnsKeepStatusLive(t *testing.T) {
	BeginTurn("u1")
	SetStatus(PhaseExecuting, "u1")
	BeginTurn("u2")
	SetStatus(PhasePlanning, "u2")

	if n := ActiveTurnCount(); n != 2 {
		t.Errorf("Expected 2 active turns, got %d", n)
	}

	// One turn finishing must not blank the other's status.
	EndTurn()
	phase, turn, _ := GetStatus()
	if phase == PhaseIdle {
		t.Error("Status went idle while a turn was still in flight")
	}
	if turn != "u2" {
		t.Errorf("Expected last-writer turn u2, got %s", turn)
	}

	EndTurn()
	phase, turn, _ = GetStatus()
	if phase != PhaseIdle {
		t.Errorf("Expected IDLE after last turn ended, got %s", phase)
	}
	if turn != "" {
		t.Errorf("Expected no active turn, got %s", turn)
	}
	if n := ActiveTurnCount(); n != 0 {
		t.Errorf("Expected 0 active turns, got %d", n)
	}
}

func TestHeartbeatAdvances(t *testing.T) {
	_, _, before := GetStatus()
	time.Sleep(2 * time.Millisecond)
	Heartbeat()
	_, _, after := GetStatus()

	if !after.After(before) {
		t.Error("Heartbeat should advance the liveness timestamp")
	}
}
