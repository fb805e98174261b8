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

CREATE TABLE IF NOT EXISTS integration_connections (
	id                 TEXT PRIMARY KEY,
	user_id            TEXT NOT NULL,
	provider_kind      TEXT NOT NULL,
	status             TEXT NOT NULL DEFAULT 'created',
	failure_message    TEXT,
	provider_user_id   TEXT,
	config             TEXT NOT NULL DEFAULT '{}',
	context            TEXT,
	created_at         DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL,
	UNIQUE(user_id, provider_kind)
);

CREATE INDEX IF NOT EXISTS idx_integration_connections_status ON integration_connections(status);

CREATE TABLE IF NOT EXISTS third_party_items (
	id                        TEXT PRIMARY KEY,
	source_id                 TEXT NOT NULL,
	kind                      TEXT NOT NULL,
	data                      TEXT NOT NULL,
	user_id                   TEXT NOT NULL,
	integration_connection_id TEXT NOT NULL,
	source_item_id            TEXT REFERENCES third_party_items(id) ON DELETE SET NULL,
	created_at                DATETIME NOT NULL,
	updated_at                DATETIME NOT NULL,
	UNIQUE(user_id, source_id, integration_connection_id)
);

CREATE INDEX IF NOT EXISTS idx_third_party_items_kind ON third_party_items(user_id, kind);

CREATE TABLE IF NOT EXISTS tasks (
	id             TEXT PRIMARY KEY,
	title          TEXT NOT NULL,
	body           TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'active' CHECK(status IN ('active', 'done', 'deleted')),
	completed_at   DATETIME,
	priority       INTEGER NOT NULL DEFAULT 4 CHECK(priority BETWEEN 1 AND 4),
	due_at         TEXT,
	tags           TEXT NOT NULL DEFAULT '[]',
	parent_id      TEXT,
	project        TEXT NOT NULL DEFAULT '',
	is_recurring   INTEGER NOT NULL DEFAULT 0 CHECK(is_recurring IN (0, 1)),
	user_id        TEXT NOT NULL,
	kind           TEXT NOT NULL,
	source_item_id TEXT NOT NULL UNIQUE REFERENCES third_party_items(id) ON DELETE CASCADE,
	sink_item_id   TEXT REFERENCES third_party_items(id) ON DELETE SET NULL,
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_user_status ON tasks(user_id, status);
CREATE INDEX IF NOT EXISTS idx_tasks_kind ON tasks(kind);

CREATE TABLE IF NOT EXISTS notifications (
	id             TEXT PRIMARY KEY,
	title          TEXT NOT NULL,
	status         TEXT NOT NULL CHECK(status IN ('unread', 'read', 'deleted', 'unsubscribed')),
	last_read_at   DATETIME,
	snoozed_until  DATETIME,
	user_id        TEXT NOT NULL,
	kind           TEXT NOT NULL,
	task_id        TEXT REFERENCES tasks(id) ON DELETE SET NULL,
	source_item_id TEXT NOT NULL UNIQUE REFERENCES third_party_items(id) ON DELETE CASCADE,
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_user_status ON notifications(user_id, status);
CREATE INDEX IF NOT EXISTS idx_notifications_kind ON notifications(kind);
CREATE INDEX IF NOT EXISTS idx_notifications_task_id ON notifications(task_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS sync_bookkeeping (
	integration_connection_id TEXT NOT NULL REFERENCES integration_connections(id) ON DELETE CASCADE,
	sync_type                 TEXT NOT NULL CHECK(sync_type IN ('notifications', 'tasks')),
	started_at                DATETIME,
	completed_at              DATETIME,
	failed_at                 DATETIME,
	failure_message           TEXT,
	failures                  INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (integration_connection_id, sync_type)
);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
