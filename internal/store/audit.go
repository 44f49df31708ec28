package store

import (
	"fmt"
	"time"
)

// AppendAudit inserts an audit entry.
func (s *Store) AppendAudit(e *AuditEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.Exec(`INSERT INTO audit_entries (persona_id, action, target_id, detail, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.PersonaID, e.Action, e.TargetID, e.Detail, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	e.ID, _ = res.LastInsertId()
	return nil
}

// ListAudit returns the most recent audit entries for a persona. An empty
// persona id lists across all personas.
func (s *Store) ListAudit(personaID string, limit int) ([]*AuditEntry, error) {
	query := `SELECT id, persona_id, action, target_id, detail, created_at FROM audit_entries`
	args := []any{}
	if personaID != "" {
		query += ` WHERE persona_id = ?`
		args = append(args, personaID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	var out []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.PersonaID, &e.Action, &e.TargetID, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
