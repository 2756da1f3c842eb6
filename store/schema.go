package store

// Schema is the DDL for the fidelity tables.
const Schema = `
CREATE TABLE IF NOT EXISTS reports (
    id                 TEXT PRIMARY KEY,
    file_key           TEXT NOT NULL,
    frame_name         TEXT NOT NULL,
    page_url           TEXT NOT NULL,
    similarity         REAL,
    content_similarity REAL,
    mismatch_count     INTEGER NOT NULL DEFAULT 0,
    body               TEXT NOT NULL,
    created_at         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_created ON reports(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_reports_file ON reports(file_key, frame_name);

-- Page snapshots: sanitised markup and markdown captured for a report.
CREATE TABLE IF NOT EXISTS snapshots (
    report_id   TEXT PRIMARY KEY,
    page_url    TEXT NOT NULL,
    title       TEXT NOT NULL DEFAULT '',
    html        TEXT NOT NULL DEFAULT '',
    markdown    TEXT NOT NULL DEFAULT '',
    captured_at INTEGER NOT NULL,
    FOREIGN KEY (report_id) REFERENCES reports(id) ON DELETE CASCADE
);
`
