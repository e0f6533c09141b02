// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"net/http"
	"time"

	"github.com/ManuGH/floodgate/internal/log"
	"github.com/ManuGH/floodgate/internal/scheduler"
)

// taskStatus is the wire form of one scheduled task's lease state.
// Tasks that never ran have null last_run_at and no owner.
type taskStatus struct {
	TaskName   string     `json:"task_name"`
	LastRunAt  *time.Time `json:"last_run_at"`
	OwnerID    string     `json:"owner_id,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	HeldBySelf bool       `json:"held_by_self"`
}

func (s *Server) handleSchedulerTasks(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api")

	out := []taskStatus{}
	if s.reg == nil || s.locks == nil {
		writeJSON(w, http.StatusOK, out)
		return
	}

	rows, err := s.locks.Snapshot(r.Context())
	if err != nil {
		logger.Error().Err(err).Str("event", "scheduler.snapshot.failed").Msg("lock snapshot failed")
		writeAPIError(w, http.StatusInternalServerError, codeInternal, "lock store unavailable")
		return
	}

	byName := make(map[string]int, len(rows))
	for i, row := range rows {
		byName[row.TaskName] = i
	}

	now := time.Now()
	seen := make(map[string]bool)
	for _, task := range s.reg.Tasks() {
		seen[task.Name] = true
		st := taskStatus{TaskName: task.Name}
		if i, ok := byName[task.Name]; ok {
			st = leaseStatus(rows[i], now)
		}
		if s.lockSvc != nil {
			st.HeldBySelf = s.lockSvc.Holds(task.Name)
		}
		out = append(out, st)
	}

	// Rows for tasks this replica does not register still show up; another
	// replica may own them.
	for _, row := range rows {
		if seen[row.TaskName] {
			continue
		}
		out = append(out, leaseStatus(row, now))
	}

	writeJSON(w, http.StatusOK, out)
}

func leaseStatus(row scheduler.LockInfo, now time.Time) taskStatus {
	st := taskStatus{TaskName: row.TaskName}
	if !row.LastRunAt.IsZero() {
		t := row.LastRunAt
		st.LastRunAt = &t
	}
	if row.Live(now) {
		st.OwnerID = row.OwnerID
		t := row.ExpiresAt
		st.ExpiresAt = &t
	}
	return st
}
