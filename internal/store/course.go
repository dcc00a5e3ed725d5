package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CourseRecord is a persisted course.
type CourseRecord struct {
	ID          string
	OwnerID     string
	Title       string
	Outline     string
	Description string
	CreatedAt   time.Time
}

// Material is one piece of stored course content.
type Material struct {
	ID       string
	CourseID string
	Title    string
	Content  string
}

// ResolveOrCreate returns the id of the course with the given owner and
// title, inserting it first if absent. Idempotent per (owner, title): the
// UNIQUE constraint makes concurrent calls converge on one row.
func (s *Store) ResolveOrCreate(ctx context.Context, ownerID, title, outline string) (string, error) {
	if strings.TrimSpace(title) == "" {
		return "", fmt.Errorf("course title is required")
	}

	id := uuid.NewString()
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO courses (id, owner_id, title, outline) VALUES (?, ?, ?, ?)
		 ON CONFLICT(owner_id, title) DO NOTHING`,
		id, ownerID, title, outline)
	if err != nil {
		return "", fmt.Errorf("failed to create course: %w", err)
	}

	// The insert may have lost the race; read back whichever row won.
	var existing string
	err = s.DB.QueryRowContext(ctx,
		`SELECT id FROM courses WHERE owner_id = ? AND title = ?`,
		ownerID, title).Scan(&existing)
	if err != nil {
		return "", fmt.Errorf("failed to resolve course: %w", err)
	}
	return existing, nil
}

// GetCourse loads one course by id.
func (s *Store) GetCourse(ctx context.Context, courseID string) (CourseRecord, error) {
	var rec CourseRecord
	var outline, description sql.NullString
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, owner_id, title, outline, description, created_at
		 FROM courses WHERE id = ?`, courseID).
		Scan(&rec.ID, &rec.OwnerID, &rec.Title, &outline, &description, &rec.CreatedAt)
	if err != nil {
		return CourseRecord{}, fmt.Errorf("course %s: %w", courseID, err)
	}
	rec.Outline = outline.String
	rec.Description = description.String
	return rec, nil
}

// SaveMaterial stores course content and returns its id.
func (s *Store) SaveMaterial(ctx context.Context, courseID, title, content string) (string, error) {
	id := uuid.NewString()
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO materials (id, course_id, title, content) VALUES (?, ?, ?, ?)`,
		id, courseID, title, content)
	if err != nil {
		return "", fmt.Errorf("failed to save material: %w", err)
	}
	return id, nil
}

// SearchMaterials returns materials of a course whose title or content
// contains the query, most recent first.
func (s *Store) SearchMaterials(ctx context.Context, courseID, query string, limit int) ([]Material, error) {
	if limit <= 0 {
		limit = 5
	}
	like := "%" + query + "%"
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, course_id, title, content FROM materials
		 WHERE course_id = ? AND (title LIKE ? OR content LIKE ?)
		 ORDER BY created_at DESC LIMIT ?`,
		courseID, like, like, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Material
	for rows.Next() {
		var m Material
		var title, content sql.NullString
		if err := rows.Scan(&m.ID, &m.CourseID, &title, &content); err != nil {
			return nil, err
		}
		m.Title = title.String
		m.Content = content.String
		out = append(out, m)
	}
	return out, rows.Err()
}

// RecordProgress appends one study progress event.
func (s *Store) RecordProgress(ctx context.Context, userID, courseID, eventType string, durationMinutes int, score float64, metadata string) error {
	if metadata == "" {
		metadata = "{}"
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO progress (id, user_id, course_id, event_type, duration_minutes, score, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), userID, courseID, eventType, durationMinutes, score, metadata)
	if err != nil {
		return fmt.Errorf("failed to record progress: %w", err)
	}
	return nil
}
