package store

import "time"

// Turn is the immutable record of one request/response cycle.
type Turn struct {
	ID        string
	Input     string
	PlanID    string
	CreatedAt time.Time
}

// LoadFacts returns all derived facts for a user.
func (s *Store) LoadFacts(userID string) (map[string]string, error) {
	rows, err := s.DB.Query(`SELECT key, value FROM facts WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	facts := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		facts[k] = v
	}
	return facts, rows.Err()
}

// SaveFact upserts one fact. An empty value deletes it.
func (s *Store) SaveFact(userID, key, value string) error {
	if value == "" {
		_, err := s.DB.Exec(`DELETE FROM facts WHERE user_id = ? AND key = ?`, userID, key)
		return err
	}
	_, err := s.DB.Exec(
		`INSERT INTO facts (user_id, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(user_id, key) DO UPDATE SET value = excluded.value`,
		userID, key, value)
	return err
}

// AddTurn persists one turn of a session.
func (s *Store) AddTurn(userID string, turn Turn) error {
	_, err := s.DB.Exec(
		`INSERT INTO turns (id, user_id, input, plan_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		turn.ID, userID, turn.Input, turn.PlanID, turn.CreatedAt)
	return err
}

// RecentTurns returns the newest turns for a user in chronological order.
func (s *Store) RecentTurns(userID string, limit int) ([]Turn, error) {
	rows, err := s.DB.Query(
		`SELECT id, input, plan_id, created_at FROM turns
		 WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.Input, &t.PlanID, &t.CreatedAt); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to get chronological order
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}
