package store

// migration is one schema step. Versions start at 1 and increase by one.
type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		// Documents live in kv; backups keeps previous values per key.
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS backups (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	key        TEXT NOT NULL,
	value      BLOB NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_backups_key ON backups(key, id);
`,
	},
}
