// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package projects persists the attachment rows that link a finished upload
// to its flood-risk project. Rows are written by the upload engine once a
// file reaches ready; the project service reads them by business reference.
package projects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound marks a lookup for a reference with no attachment.
var ErrNotFound = errors.New("projects: attachment not found")

// Attachment is one upload bound to a project by its business reference.
// DownloadURL is presigned and expires; readers must check URLExpiresAt.
type Attachment struct {
	Reference     string
	UploadID      string
	Filename      string
	ContentType   string
	ContentLength int64
	DownloadURL   string
	URLExpiresAt  time.Time
	UpdatedAt     time.Time
}

// SqliteAttachmentStore stores attachments in the shared SQLite database.
type SqliteAttachmentStore struct {
	db *sql.DB
}

// NewSqliteAttachmentStore wraps an already-migrated database handle.
func NewSqliteAttachmentStore(db *sql.DB) *SqliteAttachmentStore {
	return &SqliteAttachmentStore{db: db}
}

// Attach inserts or replaces the attachment for a reference. Re-running the
// writeback for the same reference is safe; the newest row wins.
func (s *SqliteAttachmentStore) Attach(ctx context.Context, a Attachment) error {
	if a.Reference == "" {
		return fmt.Errorf("projects: attach: reference is empty")
	}
	if a.UploadID == "" {
		return fmt.Errorf("projects: attach: upload id is empty")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO project_attachments
			(reference, upload_id, filename, content_type, content_length, download_url, url_expires_at_ms, updated_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(reference) DO UPDATE SET
			upload_id         = excluded.upload_id,
			filename          = excluded.filename,
			content_type      = excluded.content_type,
			content_length    = excluded.content_length,
			download_url      = excluded.download_url,
			url_expires_at_ms = excluded.url_expires_at_ms,
			updated_at_ms     = excluded.updated_at_ms`,
		a.Reference, a.UploadID, a.Filename, a.ContentType, a.ContentLength,
		a.DownloadURL, a.URLExpiresAt.UnixMilli(), a.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("projects: attach %s: %w", a.Reference, err)
	}
	return nil
}

// Get returns the attachment for a reference.
func (s *SqliteAttachmentStore) Get(ctx context.Context, reference string) (*Attachment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT reference, upload_id, filename, content_type, content_length, download_url, url_expires_at_ms, updated_at_ms
		FROM project_attachments WHERE reference = ?`, reference)

	var a Attachment
	var urlExpires, updated int64
	err := row.Scan(&a.Reference, &a.UploadID, &a.Filename, &a.ContentType,
		&a.ContentLength, &a.DownloadURL, &urlExpires, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("projects: get %s: %w", reference, err)
	}

	a.URLExpiresAt = time.UnixMilli(urlExpires)
	a.UpdatedAt = time.UnixMilli(updated)
	return &a, nil
}
