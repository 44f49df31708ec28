package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const replyColumns = `id, persona_id, provider_reply_id, author_id, author_handle,
	parent_post_id, text, received_at, status, handled, retryable,
	scheduled_reply_at, cached_response, error_text, created_at, updated_at`

func scanReply(row interface{ Scan(...any) error }) (*ReplyRecord, error) {
	var r ReplyRecord
	var scheduledAt sql.NullTime
	err := row.Scan(&r.ID, &r.PersonaID, &r.ProviderReplyID, &r.AuthorID,
		&r.AuthorHandle, &r.ParentPostID, &r.Text, &r.ReceivedAt, &r.Status,
		&r.Handled, &r.Retryable, &scheduledAt, &r.CachedResponse,
		&r.ErrorText, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if scheduledAt.Valid {
		t := scheduledAt.Time
		r.ScheduledReplyAt = &t
	}
	return &r, nil
}

// GetReply returns a reply record by id.
func (s *Store) GetReply(id string) (*ReplyRecord, error) {
	row := s.db.QueryRow(`SELECT `+replyColumns+` FROM reply_records WHERE id = ?`, id)
	r, err := scanReply(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reply %s: %w", id, err)
	}
	return r, nil
}

// InsertReply records an inbound reply with status received. Insertion is
// idempotent on (persona, provider reply id): a duplicate webhook delivery
// reports inserted = false and leaves the existing row untouched.
func (s *Store) InsertReply(r *ReplyRecord) (bool, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.Status = ReplyStatusReceived
	r.Retryable = true
	r.CreatedAt, r.UpdatedAt = now, now
	if r.ReceivedAt.IsZero() {
		r.ReceivedAt = now
	}
	res, err := s.db.Exec(`INSERT OR IGNORE INTO reply_records
		(id, persona_id, provider_reply_id, author_id, author_handle,
		 parent_post_id, text, received_at, status, handled, retryable,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 1, ?, ?)`,
		r.ID, r.PersonaID, r.ProviderReplyID, r.AuthorID, r.AuthorHandle,
		r.ParentPostID, r.Text, r.ReceivedAt.UTC(), r.Status,
		r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("insert reply %s: %w", r.ProviderReplyID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ClaimReply attempts the received/failed → processing transition. The WHERE
// clause requires the record still be eligible and its failure (if any)
// retryable; zero affected rows means another worker owns it and the caller
// must exit without side effects. This conditional update is the lock.
func (s *Store) ClaimReply(id string) (bool, error) {
	res, err := s.db.Exec(`UPDATE reply_records SET status = ?, updated_at = ?
		WHERE id = ? AND handled = 0 AND retryable = 1 AND status IN (?, ?)`,
		ReplyStatusProcessing, time.Now().UTC(), id,
		ReplyStatusReceived, ReplyStatusFailed)
	if err != nil {
		return false, fmt.Errorf("claim reply %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ClaimScheduledReply attempts the scheduled → processing transition for the
// delayed-send sweep, under the same affected-row discipline.
func (s *Store) ClaimScheduledReply(id string, now time.Time) (bool, error) {
	res, err := s.db.Exec(`UPDATE reply_records SET status = ?, updated_at = ?
		WHERE id = ? AND handled = 0 AND status = ? AND scheduled_reply_at <= ?`,
		ReplyStatusProcessing, time.Now().UTC(), id,
		ReplyStatusScheduled, now.UTC())
	if err != nil {
		return false, fmt.Errorf("claim scheduled reply %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkReplyScheduled moves a processing record to scheduled with its cached
// response and send time.
func (s *Store) MarkReplyScheduled(id string, at time.Time, cached string) error {
	_, err := s.db.Exec(`UPDATE reply_records
		SET status = ?, scheduled_reply_at = ?, cached_response = ?, updated_at = ?
		WHERE id = ?`, ReplyStatusScheduled, at.UTC(), cached, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark reply scheduled %s: %w", id, err)
	}
	return nil
}

// MarkReplySent finalizes a record: status sent, handled flag set. The record
// leaves the eligible set permanently.
func (s *Store) MarkReplySent(id, response string) error {
	_, err := s.db.Exec(`UPDATE reply_records
		SET status = ?, handled = 1, cached_response = ?, error_text = '', updated_at = ?
		WHERE id = ?`, ReplyStatusSent, response, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark reply sent %s: %w", id, err)
	}
	return nil
}

// MarkReplyFailed records a failure. Retryable failures re-enter claim
// eligibility on the next sweep; non-retryable ones (configuration errors)
// wait for an external backoff/alerting sweep.
func (s *Store) MarkReplyFailed(id, reason string, retryable bool) error {
	_, err := s.db.Exec(`UPDATE reply_records
		SET status = ?, retryable = ?, error_text = ?, updated_at = ?
		WHERE id = ?`, ReplyStatusFailed, retryable, reason, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark reply failed %s: %w", id, err)
	}
	return nil
}

// UnhandledReplies returns records still eligible for automation: received,
// or failed with retries allowed.
func (s *Store) UnhandledReplies(limit int) ([]*ReplyRecord, error) {
	rows, err := s.db.Query(`SELECT `+replyColumns+` FROM reply_records
		WHERE handled = 0 AND retryable = 1 AND status IN (?, ?)
		ORDER BY received_at LIMIT ?`,
		ReplyStatusReceived, ReplyStatusFailed, limit)
	if err != nil {
		return nil, fmt.Errorf("unhandled replies: %w", err)
	}
	defer rows.Close()
	return collectReplies(rows)
}

// DueScheduledReplies returns scheduled records whose send time has arrived.
func (s *Store) DueScheduledReplies(now time.Time, limit int) ([]*ReplyRecord, error) {
	rows, err := s.db.Query(`SELECT `+replyColumns+` FROM reply_records
		WHERE handled = 0 AND status = ? AND scheduled_reply_at <= ?
		ORDER BY scheduled_reply_at LIMIT ?`,
		ReplyStatusScheduled, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("due scheduled replies: %w", err)
	}
	defer rows.Close()
	return collectReplies(rows)
}

// RepliesForPost returns prior replies in a thread, oldest first, for AI
// context building.
func (s *Store) RepliesForPost(parentPostID string, limit int) ([]*ReplyRecord, error) {
	rows, err := s.db.Query(`SELECT `+replyColumns+` FROM reply_records
		WHERE parent_post_id = ? ORDER BY received_at LIMIT ?`, parentPostID, limit)
	if err != nil {
		return nil, fmt.Errorf("replies for post %s: %w", parentPostID, err)
	}
	defer rows.Close()
	return collectReplies(rows)
}

func collectReplies(rows *sql.Rows) ([]*ReplyRecord, error) {
	var out []*ReplyRecord
	for rows.Next() {
		r, err := scanReply(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
