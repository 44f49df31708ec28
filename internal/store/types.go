package store

import (
	"time"
)

// Persona is a configured automated identity. Rows are created and edited by
// external configuration tooling; the engine reads them and never writes
// anything except through credential rotation helpers.
type Persona struct {
	ID             string            `json:"id"`
	OwnerID        string            `json:"owner_id"`
	Name           string            `json:"name"`
	Handle         string            `json:"handle"`           // Platform handle, without @
	PlatformUserID string            `json:"platform_user_id"` // Provider-assigned account id
	Voice          string            `json:"voice"`
	Tone           string            `json:"tone"`
	Expertise      []string          `json:"expertise"`
	Personality    string            `json:"personality"`
	PostPrompt     string            `json:"post_prompt"` // Standing instructions for scheduled posts
	ReplyMode      string            `json:"reply_mode"`  // disabled, keyword, ai
	AIFallback     bool              `json:"ai_fallback"` // Keyword miss falls through to AI
	Keywords       []string          `json:"keywords"`
	ReplyTemplate  string            `json:"reply_template"`
	ReplyDelaySec  int               `json:"reply_delay_sec"`
	AccessToken    string            `json:"-"` // Encrypted platform credential
	WebhookSecret  string            `json:"-"` // Encrypted webhook signing secret
	VerifyToken    string            `json:"-"` // Subscription handshake token
	APIKeys        map[string]string `json:"-"` // Named encrypted generation keys
	Active         bool              `json:"active"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Reply mode values.
const (
	ReplyModeDisabled = "disabled"
	ReplyModeKeyword  = "keyword"
	ReplyModeAI       = "ai"
)

// Schedule is a posting schedule for one persona. next_run_at is always an
// absolute UTC instant even though slots are local times of day.
type Schedule struct {
	ID        string    `json:"id"`
	PersonaID string    `json:"persona_id"`
	Kind      string    `json:"kind"` // single, multi, random
	Slots     []string  `json:"slots"`
	Timezone  string    `json:"timezone"`
	Active    bool      `json:"active"`
	NextRunAt time.Time `json:"next_run_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// QueuedPost is generated content awaiting publication.
type QueuedPost struct {
	ID            string    `json:"id"`
	PersonaID     string    `json:"persona_id"`
	Content       string    `json:"content"`
	ScheduledFor  time.Time `json:"scheduled_for"`
	Status        string    `json:"status"`
	AutoGenerated bool      `json:"auto_generated"`
	RetryCount    int       `json:"retry_count"`
	MaxRetries    int       `json:"max_retries"`
	RemoteID      string    `json:"remote_id,omitempty"`
	ErrorText     string    `json:"error_text,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Queued post status values.
const (
	PostStatusQueued     = "queued"
	PostStatusProcessing = "processing"
	PostStatusPublished  = "published"
	PostStatusFailed     = "failed"
)

// ReplyRecord is a stored inbound reply tracked through the automation
// lifecycle. Status plus the handled flag form the concurrency guard: a worker
// owns a record only after a conditional update out of an eligible state
// reports one affected row.
type ReplyRecord struct {
	ID               string     `json:"id"`
	PersonaID        string     `json:"persona_id"`
	ProviderReplyID  string     `json:"provider_reply_id"`
	AuthorID         string     `json:"author_id"`
	AuthorHandle     string     `json:"author_handle"`
	ParentPostID     string     `json:"parent_post_id"`
	Text             string     `json:"text"`
	ReceivedAt       time.Time  `json:"received_at"`
	Status           string     `json:"status"`
	Handled          bool       `json:"handled"`
	Retryable        bool       `json:"retryable"`
	ScheduledReplyAt *time.Time `json:"scheduled_reply_at,omitempty"`
	CachedResponse   string     `json:"cached_response,omitempty"`
	ErrorText        string     `json:"error_text,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Reply record status values.
const (
	ReplyStatusReceived   = "received"
	ReplyStatusProcessing = "processing"
	ReplyStatusScheduled  = "scheduled"
	ReplyStatusSent       = "sent"
	ReplyStatusFailed     = "failed"
)

// AuditEntry records an automation action taken on behalf of a persona.
type AuditEntry struct {
	ID        int64     `json:"id"`
	PersonaID string    `json:"persona_id"`
	Action    string    `json:"action"`
	TargetID  string    `json:"target_id"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
