// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/floodgate/internal/log"
	"github.com/ManuGH/floodgate/internal/uploads"
)

const maxBodyBytes = 1 << 20

type initiateRequest struct {
	EntityType   string   `json:"entity_type"`
	EntityID     string   `json:"entity_id"`
	Reference    string   `json:"reference"`
	Redirect     string   `json:"redirect"`
	UserID       string   `json:"user_id"`
	DownloadURLs []string `json:"download_urls"`
}

type initiateResponse struct {
	UploadID  string `json:"upload_id"`
	UploadURL string `json:"upload_url,omitempty"`
	StatusURL string `json:"status_url,omitempty"`
	Reference string `json:"reference,omitempty"`
}

type callbackRequest struct {
	UploadID string `json:"upload_id"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type downloadResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
	ExpiresIn int64     `json:"expires_in"`
}

// recordSnapshot is the wire form of one upload record.
type recordSnapshot struct {
	UploadID            string     `json:"upload_id"`
	UploadStatus        string     `json:"upload_status"`
	FileStatus          string     `json:"file_status,omitempty"`
	Filename            string     `json:"filename,omitempty"`
	ContentType         string     `json:"content_type,omitempty"`
	DetectedContentType string     `json:"detected_content_type,omitempty"`
	ContentLength       int64      `json:"content_length,omitempty"`
	Checksum            string     `json:"checksum,omitempty"`
	StorageBucket       string     `json:"storage_bucket,omitempty"`
	StorageKey          string     `json:"storage_key,omitempty"`
	Reference           string     `json:"reference,omitempty"`
	EntityType          string     `json:"entity_type,omitempty"`
	EntityID            string     `json:"entity_id,omitempty"`
	RejectionReason     string     `json:"rejection_reason,omitempty"`
	RejectedCount       int        `json:"rejected_count,omitempty"`
	OwnerUserID         string     `json:"owner_user_id,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
}

func snapshotOf(rec *uploads.Record) recordSnapshot {
	snap := recordSnapshot{
		UploadID:            rec.UploadID,
		UploadStatus:        string(rec.Status),
		FileStatus:          rec.FileStatus,
		Filename:            rec.Filename,
		ContentType:         rec.ContentType,
		DetectedContentType: rec.DetectedContentType,
		ContentLength:       rec.ContentLength,
		Checksum:            rec.Checksum,
		StorageBucket:       rec.StorageBucket,
		StorageKey:          rec.StorageKey,
		Reference:           rec.Reference,
		EntityType:          rec.EntityType,
		EntityID:            rec.EntityID,
		RejectionReason:     rec.RejectionReason,
		RejectedCount:       rec.RejectedCount,
		OwnerUserID:         rec.OwnerUserID,
		CreatedAt:           rec.CreatedAt,
		UpdatedAt:           rec.UpdatedAt,
	}
	if !rec.CompletedAt.IsZero() {
		t := rec.CompletedAt
		snap.CompletedAt = &t
	}
	return snap
}

func (s *Server) handleInitiate(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api")

	var req initiateRequest
	if err := decodeBody(w, r, &req); err != nil {
		logger.Warn().Err(err).Str("event", "upload.initiate.bad_payload").Msg("rejected initiate payload")
		writeAPIError(w, http.StatusBadRequest, codeInvalidInput, "invalid request body")
		return
	}

	res, err := s.uploads.Initiate(r.Context(), uploads.InitiateInput{
		EntityType:   req.EntityType,
		EntityID:     req.EntityID,
		Reference:    req.Reference,
		Redirect:     req.Redirect,
		UserID:       req.UserID,
		DownloadURLs: req.DownloadURLs,
	})
	if err != nil {
		logger.Error().Err(err).Str("event", "upload.initiate.failed").Msg("initiate failed")
		writeUploadError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, initiateResponse{
		UploadID:  res.UploadID,
		UploadURL: res.UploadURL,
		StatusURL: res.StatusURL,
		Reference: res.Reference,
	})
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api")

	var req callbackRequest
	if err := decodeBody(w, r, &req); err != nil || strings.TrimSpace(req.UploadID) == "" {
		logger.Warn().Str("event", "upload.callback.bad_payload").Msg("rejected callback payload")
		writeAPIError(w, http.StatusBadRequest, codeInvalidInput, "upload_id is required")
		return
	}

	if _, err := s.uploads.HandleCallback(r.Context(), req.UploadID); err != nil {
		logger.Warn().Err(err).
			Str("event", "upload.callback.failed").
			Str("upload_id", req.UploadID).
			Msg("callback reconcile failed")
		writeUploadError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api")
	uploadID := chi.URLParam(r, "uploadID")

	rec, err := s.uploads.Reconcile(r.Context(), uploadID)
	if err != nil {
		logger.Warn().Err(err).
			Str("event", "upload.status.failed").
			Str("upload_id", uploadID).
			Msg("status reconcile failed")
		writeUploadError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snapshotOf(rec))
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api")
	uploadID := chi.URLParam(r, "uploadID")

	grant, err := s.uploads.Download(r.Context(), uploadID)
	if err != nil {
		logger.Warn().Err(err).
			Str("event", "upload.download.refused").
			Str("upload_id", uploadID).
			Msg("download refused")
		writeUploadError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, downloadResponse{
		URL:       grant.URL,
		ExpiresAt: grant.ExpiresAt,
		ExpiresIn: int64(grant.ExpiresIn / time.Second),
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api")
	uploadID := chi.URLParam(r, "uploadID")

	if _, err := s.uploads.Delete(r.Context(), uploadID); err != nil {
		logger.Warn().Err(err).
			Str("event", "upload.delete.failed").
			Str("upload_id", uploadID).
			Msg("delete failed")
		writeUploadError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// decodeBody decodes a bounded JSON body. Unknown fields are tolerated;
// the scan service pushes its full status document to the callback and
// only upload_id is read from it.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}
