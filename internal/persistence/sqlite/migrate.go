package sqlite

import (
	"database/sql"
	"fmt"
)

const schemaVersion = 1

// Migrate brings the database schema up to the current version. All
// tables live in one file, so the version counter is owned here rather
// than by the individual stores.
func Migrate(db *sql.DB) error {
	var current int
	if err := db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read user_version: %w", err)
	}

	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS scheduler_locks (
		task_name TEXT PRIMARY KEY,
		owner_id TEXT,
		expires_at_ms INTEGER NOT NULL DEFAULT 0,
		last_run_at_ms INTEGER,
		generation INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_scheduler_locks_expires ON scheduler_locks(expires_at_ms);

	CREATE TABLE IF NOT EXISTS upload_records (
		upload_id TEXT PRIMARY KEY,
		upload_status TEXT NOT NULL,
		file_status TEXT,
		filename TEXT NOT NULL DEFAULT '',
		content_type TEXT NOT NULL DEFAULT '',
		detected_content_type TEXT NOT NULL DEFAULT '',
		content_length INTEGER NOT NULL DEFAULT 0,
		checksum TEXT NOT NULL DEFAULT '',
		storage_bucket TEXT NOT NULL DEFAULT '',
		storage_key TEXT NOT NULL DEFAULT '',
		reference TEXT NOT NULL DEFAULT '',
		entity_type TEXT NOT NULL DEFAULT '',
		entity_id TEXT NOT NULL DEFAULT '',
		rejection_reason TEXT NOT NULL DEFAULT '',
		rejected_count INTEGER NOT NULL DEFAULT 0,
		owner_user_id TEXT NOT NULL DEFAULT '',
		created_at_ms INTEGER NOT NULL,
		updated_at_ms INTEGER NOT NULL,
		completed_at_ms INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_upload_records_status ON upload_records(upload_status, created_at_ms);
	CREATE INDEX IF NOT EXISTS idx_upload_records_reference ON upload_records(reference);

	CREATE TABLE IF NOT EXISTS project_attachments (
		reference TEXT PRIMARY KEY,
		upload_id TEXT NOT NULL,
		filename TEXT NOT NULL DEFAULT '',
		content_type TEXT NOT NULL DEFAULT '',
		content_length INTEGER NOT NULL DEFAULT 0,
		download_url TEXT NOT NULL DEFAULT '',
		url_expires_at_ms INTEGER,
		updated_at_ms INTEGER NOT NULL
	);
	`

	if _, err := tx.Exec(schema); err != nil {
		return fmt.Errorf("sqlite: apply schema: %w", err)
	}

	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}

	return tx.Commit()
}
