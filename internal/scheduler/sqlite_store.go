// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package scheduler

import (
	"context"
	"database/sql"
	"time"
)

// SqliteLockStore implements LockStore on a shared SQLite database.
// Every mutation is one conditional statement; SQLite's writer lock
// serializes them, which is what makes TryAcquire race-free.
type SqliteLockStore struct {
	db *sql.DB
}

// NewSqliteLockStore wraps an already-open database. The caller is
// responsible for running migrations before first use.
func NewSqliteLockStore(db *sql.DB) *SqliteLockStore {
	return &SqliteLockStore{db: db}
}

func (s *SqliteLockStore) TryAcquire(ctx context.Context, name, owner string, expiresAt time.Time) (bool, error) {
	// Insert fresh, or take over a dead row (released or expired).
	// last_run_at_ms deliberately survives takeover.
	query := `
	INSERT INTO scheduler_locks (task_name, owner_id, expires_at_ms, generation)
	VALUES (?, ?, ?, 1)
	ON CONFLICT(task_name) DO UPDATE SET
		owner_id = excluded.owner_id,
		expires_at_ms = excluded.expires_at_ms,
		generation = scheduler_locks.generation + 1
	WHERE scheduler_locks.owner_id IS NULL OR scheduler_locks.expires_at_ms <= ?
	`
	res, err := s.db.ExecContext(ctx, query, name, owner, expiresAt.UnixMilli(), time.Now().UnixMilli())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SqliteLockStore) Verify(ctx context.Context, name, owner string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM scheduler_locks WHERE task_name = ? AND owner_id = ? AND expires_at_ms > ?`,
		name, owner, time.Now().UnixMilli(),
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *SqliteLockStore) Refresh(ctx context.Context, name, owner string, newExpiry time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduler_locks SET expires_at_ms = ? WHERE task_name = ? AND owner_id = ?`,
		newExpiry.UnixMilli(), name, owner,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SqliteLockStore) Release(ctx context.Context, name, owner string) (bool, error) {
	// Ownership is cleared but the row stays, keeping last_run_at and
	// generation across runs. SweepExpired reaps abandoned rows later.
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduler_locks SET owner_id = NULL WHERE task_name = ? AND owner_id = ?`,
		name, owner,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SqliteLockStore) UpdateLastRun(ctx context.Context, name, owner string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduler_locks SET last_run_at_ms = ? WHERE task_name = ? AND owner_id = ?`,
		time.Now().UnixMilli(), name, owner,
	)
	return err
}

func (s *SqliteLockStore) SweepExpired(ctx context.Context, grace time.Duration) (int64, error) {
	cutoff := time.Now().Add(-grace).UnixMilli()
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM scheduler_locks WHERE expires_at_ms < ?`, cutoff,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SqliteLockStore) ReleaseAllByOwner(ctx context.Context, owner string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduler_locks SET owner_id = NULL WHERE owner_id = ?`, owner,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SqliteLockStore) Snapshot(ctx context.Context) ([]LockInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_name, owner_id, expires_at_ms, last_run_at_ms, generation FROM scheduler_locks ORDER BY task_name`,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var infos []LockInfo
	for rows.Next() {
		var (
			info    LockInfo
			owner   sql.NullString
			expires int64
			lastRun sql.NullInt64
		)
		if err := rows.Scan(&info.TaskName, &owner, &expires, &lastRun, &info.Generation); err != nil {
			return nil, err
		}
		if owner.Valid {
			info.OwnerID = owner.String
		}
		info.ExpiresAt = ms2t(expires)
		if lastRun.Valid {
			info.LastRunAt = ms2t(lastRun.Int64)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func ms2t(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
