package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const postColumns = `id, persona_id, content, scheduled_for, status, auto_generated,
	retry_count, max_retries, remote_id, error_text, created_at, updated_at`

func scanPost(row interface{ Scan(...any) error }) (*QueuedPost, error) {
	var p QueuedPost
	err := row.Scan(&p.ID, &p.PersonaID, &p.Content, &p.ScheduledFor, &p.Status,
		&p.AutoGenerated, &p.RetryCount, &p.MaxRetries, &p.RemoteID,
		&p.ErrorText, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPost returns a queued post by id.
func (s *Store) GetPost(id string) (*QueuedPost, error) {
	row := s.db.QueryRow(`SELECT `+postColumns+` FROM queued_posts WHERE id = ?`, id)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get post %s: %w", id, err)
	}
	return p, nil
}

// EnqueuePost inserts a queued post with status queued.
func (s *Store) EnqueuePost(p *QueuedPost) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.Status = PostStatusQueued
	p.CreatedAt, p.UpdatedAt = now, now
	if p.MaxRetries == 0 {
		p.MaxRetries = 3
	}
	_, err := s.db.Exec(`INSERT INTO queued_posts
		(id, persona_id, content, scheduled_for, status, auto_generated,
		 retry_count, max_retries, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.PersonaID, p.Content, p.ScheduledFor.UTC(), p.Status,
		p.AutoGenerated, p.RetryCount, p.MaxRetries, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("enqueue post: %w", err)
	}
	return nil
}

// ClaimDuePosts claims up to limit queued posts due at or before now, moving
// each to processing via its own conditional update. Posts whose claim loses
// the race are skipped.
func (s *Store) ClaimDuePosts(now time.Time, limit int) ([]*QueuedPost, error) {
	rows, err := s.db.Query(`SELECT `+postColumns+` FROM queued_posts
		WHERE status = ? AND scheduled_for <= ?
		ORDER BY scheduled_for LIMIT ?`, PostStatusQueued, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("due posts: %w", err)
	}
	candidates := []*QueuedPost{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		candidates = append(candidates, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var claimed []*QueuedPost
	for _, p := range candidates {
		res, err := s.db.Exec(`UPDATE queued_posts SET status = ?, updated_at = ?
			WHERE id = ? AND status = ?`,
			PostStatusProcessing, time.Now().UTC(), p.ID, PostStatusQueued)
		if err != nil {
			return claimed, fmt.Errorf("claim post %s: %w", p.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			p.Status = PostStatusProcessing
			claimed = append(claimed, p)
		}
	}
	return claimed, nil
}

// MarkPostPublished moves a processing post to published and records the
// remote id the platform assigned.
func (s *Store) MarkPostPublished(id, remoteID string) error {
	_, err := s.db.Exec(`UPDATE queued_posts SET status = ?, remote_id = ?, error_text = '', updated_at = ?
		WHERE id = ?`, PostStatusPublished, remoteID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark post published %s: %w", id, err)
	}
	return nil
}

// MarkPostFailed records a publish failure. While retries remain the post
// goes back to queued; otherwise it lands in failed.
func (s *Store) MarkPostFailed(id, reason string) error {
	p, err := s.GetPost(id)
	if err != nil {
		return err
	}
	status := PostStatusQueued
	if p.RetryCount+1 >= p.MaxRetries {
		status = PostStatusFailed
	}
	_, err = s.db.Exec(`UPDATE queued_posts
		SET status = ?, retry_count = retry_count + 1, error_text = ?, updated_at = ?
		WHERE id = ?`, status, reason, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark post failed %s: %w", id, err)
	}
	return nil
}

// InvalidateAutoPosts removes auto-generated posts still waiting in the queue
// for a persona. Called after a schedule edit so stale entries don't fire
// with obsolete timing intent. Manually created posts are never touched.
func (s *Store) InvalidateAutoPosts(personaID string) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM queued_posts
		WHERE persona_id = ? AND auto_generated = 1 AND status = ?`,
		personaID, PostStatusQueued)
	if err != nil {
		return 0, fmt.Errorf("invalidate auto posts %s: %w", personaID, err)
	}
	return res.RowsAffected()
}

// PostContentByRemoteID returns the content of a published post by the
// platform-assigned id, for reply thread context. Empty when unknown.
func (s *Store) PostContentByRemoteID(remoteID string) (string, error) {
	var content string
	err := s.db.QueryRow(`SELECT content FROM queued_posts WHERE remote_id = ?`, remoteID).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("post content by remote id %s: %w", remoteID, err)
	}
	return content, nil
}
