// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package uploads implements the file-upload lifecycle. Sessions are opened
// against the external scan service, scan verdicts are reconciled into local
// records on every read, and finished uploads are attached to their project
// and served through presigned download URLs. The scan service owns the file
// content; this package owns the lifecycle record.
package uploads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/floodgate/internal/log"
	platformnet "github.com/ManuGH/floodgate/internal/platform/net"
	"github.com/ManuGH/floodgate/internal/projects"
	"github.com/ManuGH/floodgate/internal/scanner"
)

var (
	// ErrInvalidInput marks initiate calls with missing or rejected fields.
	ErrInvalidInput = errors.New("uploads: invalid input")

	// ErrNotReady marks a download request for a record that is not ready.
	ErrNotReady = errors.New("uploads: upload is not ready for download")

	// ErrQuarantined marks a download request for a quarantined file.
	ErrQuarantined = errors.New("uploads: file is quarantined")

	// ErrStorageMissing marks a record without storage coordinates.
	ErrStorageMissing = errors.New("uploads: record has no storage location")

	// ErrCallbackDisabled marks a callback received while the push path is
	// switched off.
	ErrCallbackDisabled = errors.New("uploads: callback path is disabled")
)

// ScanService is the slice of the scan client the engine needs.
type ScanService interface {
	Initiate(ctx context.Context, req scanner.InitiateRequest) (*scanner.InitiateResponse, error)
	Status(ctx context.Context, uploadID string) (*scanner.StatusResponse, error)
}

// ObjectStore is the slice of the object-store adapter the engine needs.
type ObjectStore interface {
	PresignedDownload(ctx context.Context, bucket, key string, expiresIn time.Duration, filename string) (string, time.Time, error)
	DeleteObject(ctx context.Context, bucket, key string) error
}

// AttachmentStore receives the project writeback on transitions to ready.
type AttachmentStore interface {
	Attach(ctx context.Context, a projects.Attachment) error
}

// Config carries the engine's operator-tunable behaviour.
type Config struct {
	MaxFileSize       int64
	AllowedMIMETypes  []string
	AllowedExtensions []string
	DownloadURLTTL    time.Duration

	CallbackEnabled bool
	CallbackBaseURL string

	StorageBucket     string
	StoragePathPrefix string

	// Outbound restricts redirect and download URLs accepted on initiate.
	// A disabled policy skips the check entirely; restriction is opt-in.
	Outbound platformnet.OutboundPolicy
}

// Engine drives upload records through their lifecycle.
type Engine struct {
	store       RecordStore
	scan        ScanService
	objects     ObjectStore
	attachments AttachmentStore
	cfg         Config
	logger      zerolog.Logger
}

// NewEngine wires the engine. attachments may be nil; the writeback is then
// skipped.
func NewEngine(store RecordStore, scan ScanService, objects ObjectStore, attachments AttachmentStore, cfg Config) *Engine {
	if cfg.DownloadURLTTL <= 0 {
		cfg.DownloadURLTTL = 15 * time.Minute
	}
	return &Engine{
		store:       store,
		scan:        scan,
		objects:     objects,
		attachments: attachments,
		cfg:         cfg,
		logger:      log.WithComponent("uploads"),
	}
}

// InitiateInput is the caller's side of opening an upload session.
type InitiateInput struct {
	EntityType   string
	EntityID     string
	Reference    string
	Redirect     string
	UserID       string
	DownloadURLs []string
}

// InitiateResult is the session handle handed back to the caller.
type InitiateResult struct {
	UploadID  string
	UploadURL string
	StatusURL string
	Reference string
}

// Initiate opens a session with the scan service and persists the pending
// record. With DownloadURLs present the scan service fetches the files
// itself and the record starts in processing instead.
func (e *Engine) Initiate(ctx context.Context, in InitiateInput) (*InitiateResult, error) {
	if strings.TrimSpace(in.Redirect) == "" {
		return nil, fmt.Errorf("%w: redirect is required", ErrInvalidInput)
	}
	redirect, err := e.checkOutbound(ctx, in.Redirect)
	if err != nil {
		return nil, fmt.Errorf("%w: redirect %s: %v", ErrInvalidInput, platformnet.SanitizeURL(in.Redirect), err)
	}

	downloadURLs := make([]string, 0, len(in.DownloadURLs))
	for _, raw := range in.DownloadURLs {
		u, err := e.checkOutbound(ctx, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: download url %s: %v", ErrInvalidInput, platformnet.SanitizeURL(raw), err)
		}
		downloadURLs = append(downloadURLs, u)
	}

	req := scanner.InitiateRequest{
		Redirect:      redirect,
		Metadata:      initiateMetadata(in),
		MimeTypes:     e.cfg.AllowedMIMETypes,
		MaxFileSize:   e.cfg.MaxFileSize,
		StorageBucket: e.cfg.StorageBucket,
		StoragePath:   e.cfg.StoragePathPrefix,
		DownloadURLs:  downloadURLs,
	}
	if e.cfg.CallbackEnabled && e.cfg.CallbackBaseURL != "" {
		req.Callback = strings.TrimRight(e.cfg.CallbackBaseURL, "/") + "/api/v1/file-uploads/callback"
	}

	resp, err := e.scan.Initiate(ctx, req)
	if err != nil {
		return nil, err
	}

	uploadID := resp.UploadID
	if uploadID == "" {
		uploadID = uuid.NewString()
	}

	status := StatusPending
	mode := "browser"
	if len(downloadURLs) > 0 {
		status = StatusProcessing
		mode = "server_fetch"
	}

	now := time.Now()
	rec := &Record{
		UploadID:    uploadID,
		Status:      status,
		Reference:   in.Reference,
		EntityType:  in.EntityType,
		EntityID:    in.EntityID,
		OwnerUserID: in.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.store.Create(ctx, rec); err != nil {
		return nil, err
	}

	uploadsInitiated.WithLabelValues(mode).Inc()
	e.logger.Info().
		Str("upload_id", uploadID).
		Str("reference", in.Reference).
		Str("mode", mode).
		Msg("upload.initiated")

	return &InitiateResult{
		UploadID:  uploadID,
		UploadURL: resp.UploadURL,
		StatusURL: resp.StatusURL,
		Reference: in.Reference,
	}, nil
}

// Reconcile loads the record and, unless it is terminal, folds the current
// scan verdict into it. Terminal records are returned unchanged without
// touching the scan service.
func (e *Engine) Reconcile(ctx context.Context, uploadID string) (*Record, error) {
	rec, err := e.store.Get(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if rec.Status.Terminal() {
		return rec, nil
	}

	st, err := e.scan.Status(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	return e.apply(ctx, rec, st)
}

// HandleCallback applies a pushed scan verdict. The pushed payload is not
// trusted beyond the upload id; the verdict is re-fetched from the scan
// service so the callback and polling paths share one reconciliation.
func (e *Engine) HandleCallback(ctx context.Context, uploadID string) (*Record, error) {
	if !e.cfg.CallbackEnabled {
		return nil, ErrCallbackDisabled
	}
	return e.Reconcile(ctx, uploadID)
}

// DownloadGrant is a time-limited URL for fetching the scanned file.
type DownloadGrant struct {
	URL       string
	ExpiresAt time.Time
	ExpiresIn time.Duration
}

// Download issues a presigned URL for a ready, non-quarantined record.
func (e *Engine) Download(ctx context.Context, uploadID string) (*DownloadGrant, error) {
	rec, err := e.store.Get(ctx, uploadID)
	if err != nil {
		return nil, err
	}

	if rec.FileStatus == FileStatusQuarantined {
		return nil, fmt.Errorf("%w: %s", ErrQuarantined, uploadID)
	}
	if rec.Status != StatusReady {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotReady, uploadID, rec.Status)
	}
	if rec.StorageBucket == "" || rec.StorageKey == "" {
		return nil, fmt.Errorf("%w: %s", ErrStorageMissing, uploadID)
	}

	url, expiresAt, err := e.objects.PresignedDownload(ctx, rec.StorageBucket, rec.StorageKey, e.cfg.DownloadURLTTL, rec.Filename)
	if err != nil {
		return nil, err
	}

	downloadGrants.Inc()
	return &DownloadGrant{URL: url, ExpiresAt: expiresAt, ExpiresIn: e.cfg.DownloadURLTTL}, nil
}

// Delete removes the stored object and marks the record deleted. A record
// already deleted is a no-op success, so retries never touch storage twice.
// The record is only mutated after the object-store delete succeeded.
func (e *Engine) Delete(ctx context.Context, uploadID string) (*Record, error) {
	rec, err := e.store.Get(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if rec.Status == StatusDeleted {
		return rec, nil
	}
	if !CanTransition(rec.Status, StatusDeleted) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.Status, StatusDeleted)
	}
	if rec.StorageBucket == "" || rec.StorageKey == "" {
		return nil, fmt.Errorf("%w: %s", ErrStorageMissing, uploadID)
	}

	if err := e.objects.DeleteObject(ctx, rec.StorageBucket, rec.StorageKey); err != nil {
		return nil, err
	}

	updated, err := e.store.Update(ctx, uploadID, func(r *Record) error {
		if r.Status == StatusDeleted {
			return fmt.Errorf("%w: %s", ErrAlreadyTerminal, uploadID)
		}
		r.Status = StatusDeleted
		return nil
	})
	if errors.Is(err, ErrAlreadyTerminal) {
		return e.store.Get(ctx, uploadID)
	}
	if err != nil {
		return nil, err
	}

	statusTransitions.WithLabelValues(string(rec.Status), string(StatusDeleted)).Inc()
	e.logger.Info().Str("upload_id", uploadID).Msg("upload.deleted")
	return updated, nil
}

// SweepStale force-fails uploads stuck in pending or processing beyond
// olderThan. Each candidate gets one more reconcile first; only records the
// scan service cannot resolve are closed out. Returns how many were closed.
func (e *Engine) SweepStale(ctx context.Context, olderThan time.Duration) (int, error) {
	const batchSize = 100

	cutoff := time.Now().Add(-olderThan)
	recs, err := e.store.ListStale(ctx, []Status{StatusPending, StatusProcessing}, cutoff, batchSize)
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return closed, err
		}

		updated, err := e.Reconcile(ctx, rec.UploadID)
		switch {
		case err == nil && updated.Status.Terminal():
			continue // resolved by the reconcile
		case err == nil:
			// scan service still reports an open session after olderThan
		case errors.Is(err, scanner.ErrNotFound):
			// scan service no longer knows the session
		default:
			e.logger.Warn().Err(err).Str("upload_id", rec.UploadID).Msg("upload.sweep_skipped")
			continue
		}

		from := rec.Status
		_, err = e.store.Update(ctx, rec.UploadID, func(r *Record) error {
			if r.Status.Terminal() {
				return fmt.Errorf("%w: %s", ErrAlreadyTerminal, r.UploadID)
			}
			from = r.Status
			r.Status = StatusFailed
			r.RejectionReason = "upload expired before the scan completed"
			return nil
		})
		if errors.Is(err, ErrAlreadyTerminal) {
			continue
		}
		if err != nil {
			e.logger.Warn().Err(err).Str("upload_id", rec.UploadID).Msg("upload.sweep_failed")
			continue
		}

		closed++
		staleSwept.Inc()
		statusTransitions.WithLabelValues(string(from), string(StatusFailed)).Inc()
		e.logger.Info().Str("upload_id", rec.UploadID).Str("from", string(from)).Msg("upload.expired")
	}
	return closed, nil
}

// apply folds one scan status document into the record.
func (e *Engine) apply(ctx context.Context, rec *Record, st *scanner.StatusResponse) (*Record, error) {
	target, reason, rejectedCount := e.derive(st)
	if !target.Valid() {
		e.logger.Warn().
			Str("upload_id", rec.UploadID).
			Str("external_status", st.UploadStatus).
			Msg("upload.unknown_external_status")
		return rec, nil
	}
	if target == rec.Status {
		return rec, nil
	}
	if !CanTransition(rec.Status, target) {
		// Stale external state (e.g. "pending" after we saw "processing").
		return rec, nil
	}

	from := rec.Status
	updated, err := e.store.Update(ctx, rec.UploadID, func(r *Record) error {
		if r.Status.Terminal() {
			return fmt.Errorf("%w: %s", ErrAlreadyTerminal, r.UploadID)
		}
		f := st.Form.File
		if f.Filename != "" {
			r.Filename = f.Filename
		}
		if f.ContentType != "" {
			r.ContentType = f.ContentType
		}
		if f.DetectedContentType != "" {
			r.DetectedContentType = f.DetectedContentType
		}
		if f.ContentLength > 0 {
			r.ContentLength = f.ContentLength
		}
		if f.Checksum != "" {
			r.Checksum = f.Checksum
		}
		if f.S3Bucket != "" {
			r.StorageBucket = f.S3Bucket
		}
		if f.S3Key != "" {
			r.StorageKey = f.S3Key
		}
		r.FileStatus = f.FileStatus
		r.RejectionReason = reason
		r.RejectedCount = rejectedCount
		if target == StatusReady {
			r.CompletedAt = time.Now()
		}
		from = r.Status
		r.Status = target
		return nil
	})
	if errors.Is(err, ErrAlreadyTerminal) || errors.Is(err, ErrInvalidTransition) {
		// A concurrent reconcile or callback got there first.
		return e.store.Get(ctx, rec.UploadID)
	}
	if err != nil {
		return nil, err
	}

	statusTransitions.WithLabelValues(string(from), string(target)).Inc()
	e.logger.Info().
		Str("upload_id", rec.UploadID).
		Str("from", string(from)).
		Str("to", string(target)).
		Msg("upload.reconciled")

	if updated.Status == StatusReady && updated.Reference != "" {
		e.writeback(ctx, updated)
	}
	return updated, nil
}

// derive computes the local target status from the external document.
// "ready" downgrades to failed when the scan rejected the file, reported an
// error, or the metadata fails local validation.
func (e *Engine) derive(st *scanner.StatusResponse) (Status, string, int) {
	target := Status(st.UploadStatus)
	reason := st.Form.File.RejectionReason
	rejectedCount := st.RejectedCount
	if !target.Valid() {
		return target, reason, rejectedCount
	}

	if target == StatusReady && (st.RejectedCount > 0 || st.Error != "") {
		target = StatusFailed
		if reason == "" {
			reason = st.Error
		}
		if rejectedCount < 1 {
			rejectedCount = 1
		}
	}

	if target == StatusReady {
		violations := validateFile(FileMetadata{
			Filename:            st.Form.File.Filename,
			ContentType:         st.Form.File.ContentType,
			DetectedContentType: st.Form.File.DetectedContentType,
			ContentLength:       st.Form.File.ContentLength,
			ArchiveEntries:      st.Form.File.ArchiveEntries,
		}, ValidationConfig{
			MaxFileSize:       e.cfg.MaxFileSize,
			AllowedMIMETypes:  e.cfg.AllowedMIMETypes,
			AllowedExtensions: e.cfg.AllowedExtensions,
		})
		if len(violations) > 0 {
			msgs := make([]string, len(violations))
			for i, v := range violations {
				validationFailures.WithLabelValues(v.rule).Inc()
				msgs[i] = v.message
			}
			target = StatusFailed
			reason = strings.Join(msgs, "; ")
			if rejectedCount < 1 {
				rejectedCount = 1
			}
		}
	}

	return target, reason, rejectedCount
}

// writeback attaches the finished upload to its project with a fresh
// presigned URL. Failures are logged and counted but never undo the upload
// transition; the attach is retried once before giving up.
func (e *Engine) writeback(ctx context.Context, rec *Record) {
	if e.attachments == nil {
		return
	}

	url, expiresAt, err := e.objects.PresignedDownload(ctx, rec.StorageBucket, rec.StorageKey, e.cfg.DownloadURLTTL, rec.Filename)
	if err != nil {
		writebackFailures.Inc()
		e.logger.Warn().Err(err).
			Str("upload_id", rec.UploadID).
			Str("reference", rec.Reference).
			Msg("upload.writeback_failed")
		return
	}

	contentType := rec.DetectedContentType
	if contentType == "" {
		contentType = rec.ContentType
	}
	att := projects.Attachment{
		Reference:     rec.Reference,
		UploadID:      rec.UploadID,
		Filename:      rec.Filename,
		ContentType:   contentType,
		ContentLength: rec.ContentLength,
		DownloadURL:   url,
		URLExpiresAt:  expiresAt,
		UpdatedAt:     time.Now(),
	}

	err = e.attachments.Attach(ctx, att)
	if err != nil {
		err = e.attachments.Attach(ctx, att)
	}
	if err != nil {
		writebackFailures.Inc()
		e.logger.Warn().Err(err).
			Str("upload_id", rec.UploadID).
			Str("reference", rec.Reference).
			Msg("upload.writeback_failed")
		return
	}

	e.logger.Info().
		Str("upload_id", rec.UploadID).
		Str("reference", rec.Reference).
		Msg("upload.attached")
}

func (e *Engine) checkOutbound(ctx context.Context, raw string) (string, error) {
	if !e.cfg.Outbound.Enabled {
		return raw, nil
	}
	return platformnet.ValidateOutboundURL(ctx, raw, e.cfg.Outbound)
}

func initiateMetadata(in InitiateInput) map[string]string {
	meta := map[string]string{}
	if in.EntityType != "" {
		meta["entity_type"] = in.EntityType
	}
	if in.EntityID != "" {
		meta["entity_id"] = in.EntityID
	}
	if in.Reference != "" {
		meta["reference"] = in.Reference
	}
	if in.UserID != "" {
		meta["user_id"] = in.UserID
	}
	return meta
}
