// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/ManuGH/floodgate/internal/log"
)

// HeaderRequestID is the canonical request correlation header.
const HeaderRequestID = "X-Request-ID"

// RequestID adds a unique ID to every request.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(HeaderRequestID)
		if reqID == "" {
			reqID = uuid.New().String()
		}
		w.Header().Set(HeaderRequestID, reqID)
		ctx := log.ContextWithRequestID(r.Context(), reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
