// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// Middleware returns an HTTP middleware that logs one line per handled request.
// 5xx responses are logged at error level, everything else at info. When a
// span is active the line carries its trace and span IDs.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger := WithTraceContext(r.Context())
			evt := logger.Info()
			if ww.Status() >= http.StatusInternalServerError {
				evt = logger.Error()
			}
			evt.
				Str(FieldEvent, "request.handled").
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("remote_addr", r.RemoteAddr).
				Msg("request handled")
		})
	}
}
