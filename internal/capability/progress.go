package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rahul/vidya/internal/store"
)

// Progress records a completed study event against a course.
type Progress struct {
	Store *store.Store
}

func NewProgress(st *store.Store) *Progress {
	return &Progress{Store: st}
}

func (p *Progress) Descriptor() Descriptor {
	return Descriptor{
		Name:           NameRecordProgress,
		Description:    "Record a completed study session, quiz score, or milestone for a course.",
		RequiresCourse: true,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"course_id": map[string]any{
					"type": "string",
				},
				"event_type": map[string]any{
					"type":        "string",
					"description": "What happened: study_session, quiz, or milestone",
				},
				"duration_minutes": map[string]any{
					"type":        "string",
					"description": "How long the session lasted, in minutes",
				},
				"score": map[string]any{
					"type":        "string",
					"description": "Quiz score between 0 and 100, if applicable",
				},
				"notes": map[string]any{
					"type":        "string",
					"description": "Freeform notes about the session",
				},
			},
			"required": []string{"course_id"},
		},
	}
}

func (p *Progress) Execute(ctx context.Context, inv Invocation) (string, error) {
	courseID := inv.Param("course_id")
	if courseID == "" {
		return "", Permanent(NameRecordProgress, fmt.Errorf("no course established"))
	}

	eventType := inv.Param("event_type")
	if eventType == "" {
		eventType = "study_session"
	}

	duration := 0
	if v := inv.Param("duration_minutes"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return "", Permanent(NameRecordProgress, fmt.Errorf("invalid duration %q", v))
		}
		duration = n
	}

	score := 0.0
	if v := inv.Param("score"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 100 {
			return "", Permanent(NameRecordProgress, fmt.Errorf("invalid score %q", v))
		}
		score = f
	}

	metadata := ""
	if notes := inv.Param("notes"); notes != "" {
		raw, err := json.Marshal(map[string]string{"notes": notes})
		if err == nil {
			metadata = string(raw)
		}
	}

	if err := p.Store.RecordProgress(ctx, inv.UserID, courseID, eventType, duration, score, metadata); err != nil {
		return "", Permanent(NameRecordProgress, err)
	}

	msg := fmt.Sprintf("Recorded %s", eventType)
	if duration > 0 {
		msg += fmt.Sprintf(" (%d min)", duration)
	}
	if score > 0 {
		msg += fmt.Sprintf(", score %.0f", score)
	}
	return msg + ".", nil
}
