package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const scheduleColumns = `id, persona_id, kind, slots, timezone, active, next_run_at, created_at, updated_at`

func scanSchedule(row interface{ Scan(...any) error }) (*Schedule, error) {
	var sc Schedule
	var slots string
	err := row.Scan(&sc.ID, &sc.PersonaID, &sc.Kind, &slots, &sc.Timezone,
		&sc.Active, &sc.NextRunAt, &sc.CreatedAt, &sc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sc.Slots = unmarshalStrings(slots)
	return &sc, nil
}

// GetSchedule returns a schedule by id.
func (s *Store) GetSchedule(id string) (*Schedule, error) {
	row := s.db.QueryRow(`SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	sc, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule %s: %w", id, err)
	}
	return sc, nil
}

// InsertSchedule creates a schedule row.
func (s *Store) InsertSchedule(sc *Schedule) error {
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	sc.CreatedAt, sc.UpdatedAt = now, now
	_, err := s.db.Exec(`INSERT INTO schedules
		(id, persona_id, kind, slots, timezone, active, next_run_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.ID, sc.PersonaID, sc.Kind, marshalStrings(sc.Slots), sc.Timezone,
		sc.Active, sc.NextRunAt.UTC(), sc.CreatedAt, sc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert schedule %s: %w", sc.ID, err)
	}
	return nil
}

// DueSchedules returns active schedules whose next_run_at is at or before now.
func (s *Store) DueSchedules(now time.Time, limit int) ([]*Schedule, error) {
	rows, err := s.db.Query(`SELECT `+scheduleColumns+` FROM schedules
		WHERE active = 1 AND next_run_at <= ?
		ORDER BY next_run_at LIMIT ?`, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("due schedules: %w", err)
	}
	defer rows.Close()

	var out []*Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// ResetNextRun sets a schedule's next_run_at unconditionally. Configuration
// edits use this; the dispatcher uses the guarded advance instead.
func (s *Store) ResetNextRun(id string, next time.Time) error {
	_, err := s.db.Exec(`UPDATE schedules SET next_run_at = ?, updated_at = ? WHERE id = ?`,
		next.UTC(), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("reset next run %s: %w", id, err)
	}
	return nil
}

// EnqueueAndAdvance creates a queued post and advances the schedule's
// next_run_at as one transaction. The advance is guarded on the next_run_at
// the sweep observed; a zero affected-row count means a concurrent sweep
// already advanced it, the transaction rolls back, and won = false. Neither
// write happens without the other.
func (s *Store) EnqueueAndAdvance(post *QueuedPost, scheduleID string, observed, next time.Time) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`UPDATE schedules SET next_run_at = ?, updated_at = ?
		WHERE id = ? AND next_run_at = ?`,
		next.UTC(), time.Now().UTC(), scheduleID, observed.UTC())
	if err != nil {
		return false, fmt.Errorf("advance schedule %s: %w", scheduleID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		// Another sweep won the advance; the post belongs to it.
		return false, nil
	}

	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	post.Status = PostStatusQueued
	post.CreatedAt, post.UpdatedAt = now, now
	if post.MaxRetries == 0 {
		post.MaxRetries = 3
	}
	if _, err := tx.Exec(`INSERT INTO queued_posts
		(id, persona_id, content, scheduled_for, status, auto_generated,
		 retry_count, max_retries, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		post.ID, post.PersonaID, post.Content, post.ScheduledFor.UTC(),
		post.Status, post.AutoGenerated, post.RetryCount, post.MaxRetries,
		post.CreatedAt, post.UpdatedAt); err != nil {
		return false, fmt.Errorf("enqueue post for schedule %s: %w", scheduleID, err)
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}
