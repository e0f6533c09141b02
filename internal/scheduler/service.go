// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/floodgate/internal/log"
)

// storeCallTimeout bounds background store calls (refresh, release)
// that run outside any request context.
const storeCallTimeout = 5 * time.Second

type heldLock struct {
	generation int64
	stop       chan struct{}
	done       chan struct{}
}

// Service is the per-process face of the distributed lock. It owns the
// in-memory set of held leases and one refresher goroutine per lease.
// All failure modes surface as a false return, never an error: a caller
// that cannot lock simply skips its tick.
type Service struct {
	store   LockStore
	ownerID string
	timeout time.Duration // lease duration T
	refresh time.Duration // refresher interval R, validated R < T/2
	logger  zerolog.Logger

	mu     sync.Mutex
	active map[string]*heldLock
}

// NewService creates a lock service with a fresh process-unique owner id.
func NewService(store LockStore, timeout, refreshInterval time.Duration) *Service {
	return &Service{
		store:   store,
		ownerID: NewOwnerID(),
		timeout: timeout,
		refresh: refreshInterval,
		logger:  log.WithComponent("scheduler"),
		active:  make(map[string]*heldLock),
	}
}

// OwnerID returns the stable owner identity of this process.
func (s *Service) OwnerID() string { return s.ownerID }

// Holds reports whether this process currently holds the named lease.
func (s *Service) Holds(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[name]
	return ok
}

// Generation returns the fencing generation of a held lease, or 0 when
// the lease is not held. Handlers that fence downstream writes include
// it and reject stale values.
func (s *Service) Generation(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.active[name]; ok {
		return h.generation
	}
	return 0
}

// Acquire attempts to take the named lease. On success a background
// refresher keeps it alive until Release. The two-step try+verify
// closes the race where two acquirers both replace one expiring row.
func (s *Service) Acquire(ctx context.Context, name string) bool {
	s.mu.Lock()
	if _, held := s.active[name]; held {
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()

	expiresAt := time.Now().Add(s.timeout)
	ok, err := s.store.TryAcquire(ctx, name, s.ownerID, expiresAt)
	if err != nil {
		s.logger.Warn().Err(err).Str("task", name).Str("event", "lock.acquire_failed").Msg("lock store unreachable")
		return false
	}
	if !ok {
		return false
	}

	ok, err = s.store.Verify(ctx, name, s.ownerID)
	if err != nil {
		s.logger.Warn().Err(err).Str("task", name).Str("event", "lock.verify_failed").Msg("lock store unreachable")
		return false
	}
	if !ok {
		// Another replica won the takeover between the two steps.
		return false
	}

	h := &heldLock{
		generation: s.lookupGeneration(ctx, name),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}

	s.mu.Lock()
	s.active[name] = h
	activeLeases.Set(float64(len(s.active)))
	s.mu.Unlock()

	go s.refreshLoop(name, h)
	return true
}

// Release stops the refresher and clears ownership. Idempotent; safe to
// call for leases this process never held.
func (s *Service) Release(ctx context.Context, name string) {
	s.mu.Lock()
	h, held := s.active[name]
	if held {
		delete(s.active, name)
		activeLeases.Set(float64(len(s.active)))
	}
	s.mu.Unlock()

	if held {
		close(h.stop)
		<-h.done
	}

	// Conditional on owner, so this is harmless after a takeover.
	if _, err := s.store.Release(ctx, name, s.ownerID); err != nil {
		s.logger.Warn().Err(err).Str("task", name).Str("event", "lock.release_failed").Msg("lease release failed")
	}
}

// MarkSuccess stamps last_run_at for a lease this process holds.
func (s *Service) MarkSuccess(ctx context.Context, name string) {
	if err := s.store.UpdateLastRun(ctx, name, s.ownerID); err != nil {
		s.logger.Warn().Err(err).Str("task", name).Msg("last run update failed")
	}
}

// ReleaseAll stops every refresher and clears every row owned by this
// process. Registered as a shutdown hook.
func (s *Service) ReleaseAll(ctx context.Context) {
	s.mu.Lock()
	entries := s.active
	s.active = make(map[string]*heldLock)
	activeLeases.Set(0)
	s.mu.Unlock()

	for _, h := range entries {
		close(h.stop)
	}
	for _, h := range entries {
		<-h.done
	}

	n, err := s.store.ReleaseAllByOwner(ctx, s.ownerID)
	if err != nil {
		s.logger.Error().Err(err).Str("owner", s.ownerID).Msg("release all failed")
		return
	}
	s.logger.Info().Int64("released", n).Str("owner", s.ownerID).Msg("released all held leases")
}

// refreshLoop extends the lease every R until stopped. Any failure,
// including discovering another owner, drops the in-memory entry; the
// next scheduled tick re-acquires from scratch.
func (s *Service) refreshLoop(name string, h *heldLock) {
	defer close(h.done)

	ticker := time.NewTicker(s.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), storeCallTimeout)
			ok, err := s.store.Refresh(ctx, name, s.ownerID, time.Now().Add(s.timeout))
			cancel()

			if err != nil {
				s.logger.Warn().Err(err).Str("task", name).Str("owner", s.ownerID).
					Str("event", "lock.refresh_failed").Msg("lease refresh failed, dropping lock")
				s.drop(name, h)
				return
			}
			if !ok {
				lockTakeovers.WithLabelValues(name).Inc()
				s.logger.Warn().Str("task", name).Str("owner", s.ownerID).
					Str("event", "lock.taken_over").Msg("lease taken over by another replica, dropping lock")
				s.drop(name, h)
				return
			}
		}
	}
}

func (s *Service) drop(name string, h *heldLock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.active[name]; ok && cur == h {
		delete(s.active, name)
		activeLeases.Set(float64(len(s.active)))
	}
}

func (s *Service) lookupGeneration(ctx context.Context, name string) int64 {
	infos, err := s.store.Snapshot(ctx)
	if err != nil {
		s.logger.Debug().Err(err).Str("task", name).Msg("generation lookup failed")
		return 0
	}
	for _, info := range infos {
		if info.TaskName == name && info.OwnerID == s.ownerID {
			return info.Generation
		}
	}
	return 0
}
