// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package scheduler implements leased task scheduling across process
// replicas. A shared lock store serializes ownership per task name; a
// lock service keeps held leases alive with background refreshers; the
// runner fires registered tasks on their schedules under that exclusion.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// LockInfo is a point-in-time view of one lease row, used by the
// introspection endpoint and by Snapshot-based tests.
type LockInfo struct {
	TaskName   string
	OwnerID    string
	ExpiresAt  time.Time
	LastRunAt  time.Time
	Generation int64
}

// Live reports whether the lease is currently held.
func (l LockInfo) Live(now time.Time) bool {
	return l.OwnerID != "" && l.ExpiresAt.After(now)
}

// LockStore is the persistence contract for named leases. Every method
// is a single atomic operation against the backing store; concurrent
// TryAcquire calls for one name yield exactly one winner.
type LockStore interface {
	// TryAcquire inserts a lease row if none exists for name, or takes
	// over a row whose expiry has passed. True iff the caller now owns it.
	TryAcquire(ctx context.Context, name, owner string, expiresAt time.Time) (bool, error)

	// Verify reports whether the live row for name is owned by owner.
	Verify(ctx context.Context, name, owner string) (bool, error)

	// Refresh extends the lease expiry iff owner still holds it.
	Refresh(ctx context.Context, name, owner string, newExpiry time.Time) (bool, error)

	// Release clears ownership iff owner holds it. The row survives so
	// last_run_at and generation persist across runs.
	Release(ctx context.Context, name, owner string) (bool, error)

	// UpdateLastRun stamps last_run_at with the current time iff owner
	// holds the lease. A lost lease makes this a silent no-op.
	UpdateLastRun(ctx context.Context, name, owner string) error

	// SweepExpired deletes rows whose expiry lies more than grace in the
	// past, bounding the table. Returns the number of rows removed.
	SweepExpired(ctx context.Context, grace time.Duration) (int64, error)

	// ReleaseAllByOwner clears every row owned by owner. Shutdown hook.
	ReleaseAllByOwner(ctx context.Context, owner string) (int64, error)

	// Snapshot returns all lease rows for introspection.
	Snapshot(ctx context.Context) ([]LockInfo, error)
}

// NewOwnerID builds a process-unique owner identity. Hostname and pid
// make it readable in the lock table; the uuid suffix keeps replicas on
// one host distinct across restarts.
func NewOwnerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.New().String()[:8])
}
