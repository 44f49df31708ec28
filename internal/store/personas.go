package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

const personaColumns = `id, owner_id, name, handle, platform_user_id, voice, tone,
	expertise, personality, post_prompt, reply_mode, ai_fallback, keywords,
	reply_template, reply_delay_sec, access_token, webhook_secret, verify_token,
	api_keys, active, created_at, updated_at`

func scanPersona(row interface{ Scan(...any) error }) (*Persona, error) {
	var p Persona
	var expertise, keywords, apiKeys string
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Handle, &p.PlatformUserID,
		&p.Voice, &p.Tone, &expertise, &p.Personality, &p.PostPrompt,
		&p.ReplyMode, &p.AIFallback, &keywords, &p.ReplyTemplate,
		&p.ReplyDelaySec, &p.AccessToken, &p.WebhookSecret, &p.VerifyToken,
		&apiKeys, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Expertise = unmarshalStrings(expertise)
	p.Keywords = unmarshalStrings(keywords)
	p.APIKeys = unmarshalStringMap(apiKeys)
	return &p, nil
}

// GetPersona returns a persona by id.
func (s *Store) GetPersona(id string) (*Persona, error) {
	row := s.db.QueryRow(`SELECT `+personaColumns+` FROM personas WHERE id = ?`, id)
	p, err := scanPersona(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get persona %s: %w", id, err)
	}
	return p, nil
}

// ListActivePersonas returns all personas with active = true.
func (s *Store) ListActivePersonas() ([]*Persona, error) {
	rows, err := s.db.Query(`SELECT ` + personaColumns + ` FROM personas WHERE active = 1 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list active personas: %w", err)
	}
	defer rows.Close()

	var out []*Persona
	for rows.Next() {
		p, err := scanPersona(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PersonasForPlatformUser returns active personas bound to the given
// provider-assigned account id. Webhook deliveries address personas this way.
func (s *Store) PersonasForPlatformUser(platformUserID string) ([]*Persona, error) {
	rows, err := s.db.Query(`SELECT `+personaColumns+` FROM personas
		WHERE active = 1 AND platform_user_id = ?`, platformUserID)
	if err != nil {
		return nil, fmt.Errorf("personas for platform user %s: %w", platformUserID, err)
	}
	defer rows.Close()

	var out []*Persona
	for rows.Next() {
		p, err := scanPersona(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertPersona inserts or replaces a persona row. The engine itself never
// calls this outside credential rotation; it exists for configuration tooling
// and tests.
func (s *Store) UpsertPersona(p *Persona) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	_, err := s.db.Exec(`INSERT OR REPLACE INTO personas
		(id, owner_id, name, handle, platform_user_id, voice, tone, expertise,
		 personality, post_prompt, reply_mode, ai_fallback, keywords, reply_template,
		 reply_delay_sec, access_token, webhook_secret, verify_token, api_keys,
		 active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OwnerID, p.Name, p.Handle, p.PlatformUserID, p.Voice, p.Tone,
		marshalStrings(p.Expertise), p.Personality, p.PostPrompt, p.ReplyMode,
		p.AIFallback, marshalStrings(p.Keywords), p.ReplyTemplate, p.ReplyDelaySec,
		p.AccessToken, p.WebhookSecret, p.VerifyToken, marshalStringMap(p.APIKeys),
		p.Active, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert persona %s: %w", p.ID, err)
	}
	return nil
}

// RotateCredential replaces one named encrypted API key on a persona.
func (s *Store) RotateCredential(personaID, keyName, encrypted string) error {
	p, err := s.GetPersona(personaID)
	if err != nil {
		return err
	}
	if p.APIKeys == nil {
		p.APIKeys = map[string]string{}
	}
	p.APIKeys[keyName] = encrypted
	_, err = s.db.Exec(`UPDATE personas SET api_keys = ?, updated_at = ? WHERE id = ?`,
		marshalStringMap(p.APIKeys), time.Now().UTC(), personaID)
	if err != nil {
		return fmt.Errorf("rotate credential %s/%s: %w", personaID, keyName, err)
	}
	return nil
}
