package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	mailbox      TEXT NOT NULL,
	uid          INTEGER NOT NULL,
	message_id   TEXT NOT NULL DEFAULT '',
	subject      TEXT NOT NULL DEFAULT '',
	from_name    TEXT NOT NULL DEFAULT '',
	from_email   TEXT NOT NULL DEFAULT '',
	date         DATETIME NOT NULL,
	is_unread    INTEGER NOT NULL DEFAULT 1,
	is_answered  INTEGER NOT NULL DEFAULT 0,
	is_starred   INTEGER NOT NULL DEFAULT 0,
	in_reply_to  TEXT NOT NULL DEFAULT '',
	refs         TEXT NOT NULL DEFAULT '',
	snippet      TEXT NOT NULL DEFAULT '',
	body_preview TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL,
	UNIQUE (mailbox, uid)
);

CREATE INDEX IF NOT EXISTS idx_messages_message_id ON messages(message_id);
CREATE INDEX IF NOT EXISTS idx_messages_date ON messages(date DESC);

CREATE TABLE IF NOT EXISTS message_bodies (
	message_id   INTEGER PRIMARY KEY REFERENCES messages(id) ON DELETE CASCADE,
	body_text    TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	created_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS message_analysis (
	message_id        INTEGER PRIMARY KEY REFERENCES messages(id) ON DELETE CASCADE,
	body_hash         TEXT NOT NULL DEFAULT '',
	version           INTEGER NOT NULL DEFAULT 0,
	lang              TEXT NOT NULL DEFAULT '',
	bullets           TEXT NOT NULL DEFAULT '[]',
	key_actions       TEXT NOT NULL DEFAULT '[]',
	urgency           INTEGER NOT NULL DEFAULT 0 CHECK (urgency BETWEEN 0 AND 5),
	importance        INTEGER NOT NULL DEFAULT 0 CHECK (importance BETWEEN 0 AND 5),
	priority          INTEGER NOT NULL DEFAULT 0 CHECK (priority BETWEEN 0 AND 100),
	confidence        REAL NOT NULL DEFAULT 0 CHECK (confidence BETWEEN 0 AND 1),
	truncated         INTEGER NOT NULL DEFAULT 0,
	model             TEXT NOT NULL DEFAULT '',
	prompt_tokens     INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	notes             TEXT NOT NULL DEFAULT '',
	last_error        TEXT NOT NULL DEFAULT '',
	analyzed_at       DATETIME,
	updated_at        DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_message_analysis_priority ON message_analysis(priority DESC);

CREATE TABLE IF NOT EXISTS labels (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	color      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS message_labels (
	message_id INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	label_id   INTEGER NOT NULL REFERENCES labels(id) ON DELETE CASCADE,
	PRIMARY KEY (message_id, label_id)
);

CREATE TABLE IF NOT EXISTS memory_items (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	kind       TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	expires_at DATETIME,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE (kind, key)
);

CREATE TABLE IF NOT EXISTS mailboxes (
	name         TEXT PRIMARY KEY,
	uid_validity INTEGER NOT NULL DEFAULT 0,
	last_uid     INTEGER NOT NULL DEFAULT 0,
	last_seen_at DATETIME
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
	subject,
	from_name,
	from_email,
	snippet,
	body_preview,
	content='messages',
	content_rowid='id',
	tokenize='unicode61 remove_diacritics 2'
);

CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
	INSERT INTO messages_fts(rowid, subject, from_name, from_email, snippet, body_preview)
	VALUES (new.id, new.subject, new.from_name, new.from_email, new.snippet, new.body_preview);
END;

CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
	INSERT INTO messages_fts(messages_fts, rowid, subject, from_name, from_email, snippet, body_preview)
	VALUES ('delete', old.id, old.subject, old.from_name, old.from_email, old.snippet, old.body_preview);
END;

CREATE TRIGGER IF NOT EXISTS messages_au
AFTER UPDATE OF subject, from_name, from_email, snippet, body_preview ON messages BEGIN
	INSERT INTO messages_fts(messages_fts, rowid, subject, from_name, from_email, snippet, body_preview)
	VALUES ('delete', old.id, old.subject, old.from_name, old.from_email, old.snippet, old.body_preview);
	INSERT INTO messages_fts(rowid, subject, from_name, from_email, snippet, body_preview)
	VALUES (new.id, new.subject, new.from_name, new.from_email, new.snippet, new.body_preview);
END;

INSERT INTO messages_fts(messages_fts) VALUES ('rebuild');

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
