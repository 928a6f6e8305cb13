package casestore

// Schema shared by SQLite and PostgreSQL. Timestamps are stored as
// RFC 3339 text so both drivers scan them the same way.

const schemaCases = `
CREATE TABLE IF NOT EXISTS cases (
    id TEXT PRIMARY KEY,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    incident_text TEXT NOT NULL DEFAULT '',
    analysis TEXT
);
`

const schemaUploads = `
CREATE TABLE IF NOT EXISTS case_uploads (
    case_id TEXT NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    original_name TEXT NOT NULL,
    saved_name TEXT NOT NULL,
    size_kb REAL NOT NULL,
    sha256 TEXT NOT NULL,
    uploaded_at TEXT NOT NULL,
    PRIMARY KEY (case_id, seq)
);
`

func allSchemas() []string {
	return []string{schemaCases, schemaUploads}
}
