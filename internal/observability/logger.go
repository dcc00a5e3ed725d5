package observability

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeTurn        EventType = "turn"
	EventTypeIntent      EventType = "intent"
	EventTypePlan        EventType = "plan"
	EventTypeTask        EventType = "task"
	EventTypeRetry       EventType = "retry"
	EventTypePolicyCheck EventType = "policy_check"
	EventTypeLLM         EventType = "llm"
	EventTypeHeartbeat   EventType = "heartbeat"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	UserID    string    `json:"user_id,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging.
type Logger struct {
	llmLogPath string
	maxSize    int64
}

func NewLogger() *Logger {
	return &Logger{
		llmLogPath: filepath.Join("logs", "llm.jsonl"),
		maxSize:    10 * 1024 * 1024, // 10MB
	}
}

// Log emits a structured JSON event to stdout.
func (l *Logger) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		fmt.Printf("{\"error\": \"failed to marshal event: %v\"}\n", err)
		return
	}
	fmt.Println(string(data))

	if evt.Type == EventTypeLLM {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	// Check size before writing
	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogTurn(userID, planID string, taskCount int) {
	l.Log(Event{
		Type:   EventTypeTurn,
		UserID: userID,
		Data: map[string]any{
			"plan_id": planID,
			"tasks":   taskCount,
		},
	})
}

func (l *Logger) LogIntent(userID, capability string, params any) {
	l.Log(Event{
		Type:   EventTypeIntent,
		UserID: userID,
		Data: map[string]any{
			"capability": capability,
			"params":     params,
		},
	})
}

func (l *Logger) LogPlan(userID, planID string, order []string) {
	l.Log(Event{
		Type:   EventTypePlan,
		UserID: userID,
		Data: map[string]any{
			"plan_id": planID,
			"order":   order,
		},
	})
}

func (l *Logger) LogTask(userID, taskID, capability, status string) {
	l.Log(Event{
		Type:   EventTypeTask,
		UserID: userID,
		TaskID: taskID,
		Data: map[string]string{
			"capability": capability,
			"status":     status,
		},
	})
}

func (l *Logger) LogRetry(userID, taskID string, attempt int, reason string) {
	l.Log(Event{
		Type:   EventTypeRetry,
		UserID: userID,
		TaskID: taskID,
		Data: map[string]any{
			"attempt": attempt,
			"reason":  reason,
		},
	})
}

func (l *Logger) LogPolicyCheck(userID, capability, effect, reason string) {
	l.Log(Event{
		Type:   EventTypePolicyCheck,
		UserID: userID,
		Data: map[string]string{
			"capability": capability,
			"effect":     effect,
			"reason":     reason,
		},
	})
}

func (l *Logger) LogHeartbeat() {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]string{"status": "alive"},
	})
}

func (l *Logger) LogLLM(userID, taskID string, prompt any, response string) {
	l.Log(Event{
		Type:   EventTypeLLM,
		UserID: userID,
		TaskID: taskID,
		Data: map[string]any{
			"prompt":   prompt,
			"response": response,
		},
	})
}
