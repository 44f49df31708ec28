package store

// Schema is the initial database schema. Later columns are added by
// best-effort migrations in Open.
const Schema = `
CREATE TABLE IF NOT EXISTS personas (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL,
	handle TEXT NOT NULL DEFAULT '',
	platform_user_id TEXT NOT NULL DEFAULT '',
	voice TEXT NOT NULL DEFAULT '',
	tone TEXT NOT NULL DEFAULT '',
	expertise TEXT NOT NULL DEFAULT '[]',
	personality TEXT NOT NULL DEFAULT '',
	post_prompt TEXT NOT NULL DEFAULT '',
	reply_mode TEXT NOT NULL DEFAULT 'disabled',
	ai_fallback BOOLEAN NOT NULL DEFAULT 0,
	keywords TEXT NOT NULL DEFAULT '[]',
	reply_template TEXT NOT NULL DEFAULT '',
	reply_delay_sec INTEGER NOT NULL DEFAULT 0,
	access_token TEXT NOT NULL DEFAULT '',
	webhook_secret TEXT NOT NULL DEFAULT '',
	verify_token TEXT NOT NULL DEFAULT '',
	api_keys TEXT NOT NULL DEFAULT '{}',
	active BOOLEAN NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_personas_platform ON personas(platform_user_id);
CREATE INDEX IF NOT EXISTS idx_personas_active ON personas(active);

CREATE TABLE IF NOT EXISTS schedules (
	id TEXT PRIMARY KEY,
	persona_id TEXT NOT NULL REFERENCES personas(id),
	kind TEXT NOT NULL,
	slots TEXT NOT NULL DEFAULT '[]',
	timezone TEXT NOT NULL DEFAULT 'UTC',
	active BOOLEAN NOT NULL DEFAULT 1,
	next_run_at DATETIME NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_schedules_due ON schedules(active, next_run_at);

CREATE TABLE IF NOT EXISTS queued_posts (
	id TEXT PRIMARY KEY,
	persona_id TEXT NOT NULL REFERENCES personas(id),
	content TEXT NOT NULL,
	scheduled_for DATETIME NOT NULL,
	status TEXT NOT NULL DEFAULT 'queued',
	auto_generated BOOLEAN NOT NULL DEFAULT 0,
	retry_count INTEGER NOT NULL DEFAULT 0,
	max_retries INTEGER NOT NULL DEFAULT 3,
	remote_id TEXT NOT NULL DEFAULT '',
	error_text TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_posts_due ON queued_posts(status, scheduled_for);

CREATE TABLE IF NOT EXISTS reply_records (
	id TEXT PRIMARY KEY,
	persona_id TEXT NOT NULL REFERENCES personas(id),
	provider_reply_id TEXT NOT NULL,
	author_id TEXT NOT NULL DEFAULT '',
	author_handle TEXT NOT NULL DEFAULT '',
	parent_post_id TEXT NOT NULL DEFAULT '',
	text TEXT NOT NULL DEFAULT '',
	received_at DATETIME NOT NULL,
	status TEXT NOT NULL DEFAULT 'received',
	handled BOOLEAN NOT NULL DEFAULT 0,
	retryable BOOLEAN NOT NULL DEFAULT 1,
	scheduled_reply_at DATETIME,
	cached_response TEXT NOT NULL DEFAULT '',
	error_text TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(persona_id, provider_reply_id)
);

CREATE INDEX IF NOT EXISTS idx_replies_status ON reply_records(status, handled);
CREATE INDEX IF NOT EXISTS idx_replies_due ON reply_records(status, scheduled_reply_at);
CREATE INDEX IF NOT EXISTS idx_replies_parent ON reply_records(parent_post_id);

CREATE TABLE IF NOT EXISTS audit_entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	persona_id TEXT NOT NULL,
	action TEXT NOT NULL,
	target_id TEXT NOT NULL DEFAULT '',
	detail TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_audit_persona ON audit_entries(persona_id);
`
