// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package uploads

import "time"

// Status is the lifecycle state of an upload record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
	StatusDeleted    Status = "deleted"
)

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusReady, StatusFailed, StatusDeleted:
		return true
	}
	return false
}

// Terminal reports whether s accepts no further reconciliation. A ready
// record can still be deleted; that is the single edge out of a terminal
// state.
func (s Status) Terminal() bool {
	switch s {
	case StatusReady, StatusFailed, StatusDeleted:
		return true
	}
	return false
}

// File status verdicts reported by the scan service
// (complete, scanned, quarantined, rejected). Only the two below carry
// meaning here; other values pass through as opaque strings.
const (
	FileStatusScanned     = "scanned"
	FileStatusQuarantined = "quarantined"
)

// transitions is the full edge set of the lifecycle state machine.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusReady, StatusFailed},
	StatusProcessing: {StatusReady, StatusFailed},
	StatusReady:      {StatusDeleted},
}

// CanTransition reports whether from -> to is a legal lifecycle edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Record is one upload session and the scan verdict mirrored from the
// external service. StorageBucket and StorageKey stay empty until the scan
// service has moved the file into its final location.
type Record struct {
	UploadID string
	Status   Status

	FileStatus          string
	Filename            string
	ContentType         string
	DetectedContentType string
	ContentLength       int64
	Checksum            string

	StorageBucket string
	StorageKey    string

	Reference  string
	EntityType string
	EntityID   string

	RejectionReason string
	RejectedCount   int

	OwnerUserID string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt time.Time // zero until the scan reached ready
}

// Clone returns a deep copy. Records cross goroutine boundaries in the
// engine; callers mutate copies only.
func (r *Record) Clone() *Record {
	cp := *r
	return &cp
}
