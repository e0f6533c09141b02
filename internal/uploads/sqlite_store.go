// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package uploads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const recordColumns = `upload_id, upload_status, file_status, filename, content_type,
	detected_content_type, content_length, checksum, storage_bucket, storage_key,
	reference, entity_type, entity_id, rejection_reason, rejected_count,
	owner_user_id, created_at_ms, updated_at_ms, completed_at_ms`

// SqliteRecordStore keeps upload records in the shared SQLite database.
type SqliteRecordStore struct {
	db *sql.DB
}

// NewSqliteRecordStore wraps an already-migrated database handle.
func NewSqliteRecordStore(db *sql.DB) *SqliteRecordStore {
	return &SqliteRecordStore{db: db}
}

func (s *SqliteRecordStore) Create(ctx context.Context, rec *Record) error {
	if rec.UploadID == "" {
		return fmt.Errorf("uploads: create: upload id is empty")
	}
	if !rec.Status.Valid() {
		return fmt.Errorf("uploads: create: status %q is not valid", rec.Status)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO upload_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(upload_id) DO NOTHING`,
		rec.UploadID, string(rec.Status), rec.FileStatus, rec.Filename, rec.ContentType,
		rec.DetectedContentType, rec.ContentLength, rec.Checksum, rec.StorageBucket, rec.StorageKey,
		rec.Reference, rec.EntityType, rec.EntityID, rec.RejectionReason, rec.RejectedCount,
		rec.OwnerUserID, rec.CreatedAt.UnixMilli(), rec.UpdatedAt.UnixMilli(), completedMs(rec.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("uploads: create %s: %w", rec.UploadID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, rec.UploadID)
	}
	return nil
}

func (s *SqliteRecordStore) Get(ctx context.Context, uploadID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM upload_records WHERE upload_id = ?`, uploadID)
	return scanRecord(row)
}

// Update re-reads the record inside one transaction, applies mutate to the
// fresh copy and enforces the state machine before writing back. Concurrent
// reconcilers that both try to finish a record therefore converge: the
// second one sees the terminal row and gets ErrAlreadyTerminal.
func (s *SqliteRecordStore) Update(ctx context.Context, uploadID string, mutate func(*Record) error) (*Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("uploads: update %s: begin: %w", uploadID, err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM upload_records WHERE upload_id = ?`, uploadID)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, err
	}

	from := rec.Status
	if err := mutate(rec); err != nil {
		return nil, err
	}

	if rec.Status != from {
		switch {
		case from.Terminal() && !CanTransition(from, rec.Status):
			return nil, fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, uploadID, from)
		case !CanTransition(from, rec.Status):
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, rec.Status)
		}
	}
	rec.UpdatedAt = time.Now()

	_, err = tx.ExecContext(ctx, `
		UPDATE upload_records SET
			upload_status = ?, file_status = ?, filename = ?, content_type = ?,
			detected_content_type = ?, content_length = ?, checksum = ?,
			storage_bucket = ?, storage_key = ?, reference = ?, entity_type = ?,
			entity_id = ?, rejection_reason = ?, rejected_count = ?, owner_user_id = ?,
			updated_at_ms = ?, completed_at_ms = ?
		WHERE upload_id = ?`,
		string(rec.Status), rec.FileStatus, rec.Filename, rec.ContentType,
		rec.DetectedContentType, rec.ContentLength, rec.Checksum,
		rec.StorageBucket, rec.StorageKey, rec.Reference, rec.EntityType,
		rec.EntityID, rec.RejectionReason, rec.RejectedCount, rec.OwnerUserID,
		rec.UpdatedAt.UnixMilli(), completedMs(rec.CompletedAt), uploadID,
	)
	if err != nil {
		return nil, fmt.Errorf("uploads: update %s: %w", uploadID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("uploads: update %s: commit: %w", uploadID, err)
	}
	return rec, nil
}

func (s *SqliteRecordStore) ListStale(ctx context.Context, statuses []Status, cutoff time.Time, limit int) ([]*Record, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}

	placeholders := strings.Repeat("?,", len(statuses))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(statuses)+2)
	for _, st := range statuses {
		args = append(args, string(st))
	}
	args = append(args, cutoff.UnixMilli(), limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM upload_records
		 WHERE upload_status IN (`+placeholders+`) AND created_at_ms < ?
		 ORDER BY created_at_ms ASC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("uploads: list stale: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var status string
	var fileStatus sql.NullString
	var created, updated int64
	var completed sql.NullInt64

	err := row.Scan(
		&rec.UploadID, &status, &fileStatus, &rec.Filename, &rec.ContentType,
		&rec.DetectedContentType, &rec.ContentLength, &rec.Checksum,
		&rec.StorageBucket, &rec.StorageKey, &rec.Reference, &rec.EntityType,
		&rec.EntityID, &rec.RejectionReason, &rec.RejectedCount,
		&rec.OwnerUserID, &created, &updated, &completed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("uploads: scan record: %w", err)
	}

	rec.Status = Status(status)
	rec.FileStatus = fileStatus.String
	rec.CreatedAt = time.UnixMilli(created)
	rec.UpdatedAt = time.UnixMilli(updated)
	if completed.Valid && completed.Int64 > 0 {
		rec.CompletedAt = time.UnixMilli(completed.Int64)
	}
	return &rec, nil
}

func completedMs(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}
