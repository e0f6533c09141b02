// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"net/http"
	"time"

	"github.com/ManuGH/floodgate/internal/log"
	"github.com/ManuGH/floodgate/internal/version"
)

type versionResponse struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

type healthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime,omitempty"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Uptime: time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			logger := log.WithComponentFromContext(r.Context(), "api")
			logger.Warn().Err(err).Str("event", "readiness.failed").Msg("readiness probe failed")
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	v := s.cfg.Version
	if v == "" {
		v = version.Version
	}
	writeJSON(w, http.StatusOK, versionResponse{
		Version: v,
		Commit:  version.Commit,
		Date:    version.Date,
	})
}
