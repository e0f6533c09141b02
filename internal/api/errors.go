// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/floodgate/internal/scanner"
	"github.com/ManuGH/floodgate/internal/uploads"
)

// APIError is the stable error body. Code is machine-readable and does
// not change between releases; Message is for humans.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error APIError `json:"error"`
}

// Stable error codes.
const (
	codeInvalidInput   = "invalid_input"
	codeNotReady       = "not_ready"
	codeQuarantined    = "quarantined"
	codeNotFound       = "not_found"
	codeConflict       = "conflict"
	codeStorageMissing = "storage_missing"
	codeScanService    = "scan_service_error"
	codeInternal       = "internal"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: APIError{Code: code, Message: message}})
}

// writeUploadError maps engine and adapter errors onto the HTTP
// contract. Adapter internals (response bodies, transport causes) never
// reach the client; logs carry them.
func writeUploadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, uploads.ErrInvalidInput):
		writeAPIError(w, http.StatusBadRequest, codeInvalidInput, err.Error())
	case errors.Is(err, uploads.ErrNotReady):
		writeAPIError(w, http.StatusBadRequest, codeNotReady, "upload is not ready for download")
	case errors.Is(err, uploads.ErrQuarantined):
		writeAPIError(w, http.StatusForbidden, codeQuarantined, "file is quarantined")
	case errors.Is(err, uploads.ErrNotFound):
		writeAPIError(w, http.StatusNotFound, codeNotFound, "upload not found")
	case errors.Is(err, uploads.ErrCallbackDisabled):
		// The callback path is invisible while it is switched off.
		writeAPIError(w, http.StatusNotFound, codeNotFound, "not found")
	case errors.Is(err, uploads.ErrStorageMissing):
		writeAPIError(w, http.StatusInternalServerError, codeStorageMissing, "upload has no storage location")
	case errors.Is(err, uploads.ErrInvalidTransition), errors.Is(err, uploads.ErrAlreadyTerminal):
		writeAPIError(w, http.StatusConflict, codeConflict, "upload state does not permit this operation")
	case isScanError(err):
		writeAPIError(w, http.StatusInternalServerError, codeScanService, "scan service request failed")
	default:
		writeAPIError(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

func isScanError(err error) bool {
	var scanErr *scanner.ScanError
	return errors.As(err, &scanErr)
}
