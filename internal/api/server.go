// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package api exposes the HTTP boundary: the file-upload lifecycle
// endpoints, scheduler introspection and the system surface. Handlers
// translate between the wire contract and the engines; they hold no
// business rules of their own.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/floodgate/internal/middleware"
	"github.com/ManuGH/floodgate/internal/scheduler"
	"github.com/ManuGH/floodgate/internal/uploads"
)

// UploadService is the slice of the upload engine the handlers need.
type UploadService interface {
	Initiate(ctx context.Context, in uploads.InitiateInput) (*uploads.InitiateResult, error)
	Reconcile(ctx context.Context, uploadID string) (*uploads.Record, error)
	HandleCallback(ctx context.Context, uploadID string) (*uploads.Record, error)
	Download(ctx context.Context, uploadID string) (*uploads.DownloadGrant, error)
	Delete(ctx context.Context, uploadID string) (*uploads.Record, error)
}

// Config carries the boundary's own knobs. Everything else belongs to
// the engines behind it.
type Config struct {
	Version      string
	RateLimitRPM int

	// TracingService names the service in HTTP spans; empty disables
	// the tracing middleware.
	TracingService string
}

// Deps are the collaborators the server calls into. Ready is the
// readiness probe; typically a database ping.
type Deps struct {
	Uploads  UploadService
	Locks    scheduler.LockStore
	Registry *scheduler.Registry
	LockSvc  *scheduler.Service
	Ready    func(ctx context.Context) error
}

// Server is the HTTP boundary.
type Server struct {
	cfg     Config
	uploads UploadService
	locks   scheduler.LockStore
	reg     *scheduler.Registry
	lockSvc *scheduler.Service
	ready   func(ctx context.Context) error
	started time.Time
}

// NewServer wires the HTTP boundary. Scheduler deps may be nil; the
// introspection endpoint then reports an empty task list.
func NewServer(cfg Config, deps Deps) *Server {
	return &Server{
		cfg:     cfg,
		uploads: deps.Uploads,
		locks:   deps.Locks,
		reg:     deps.Registry,
		lockSvc: deps.LockSvc,
		ready:   deps.Ready,
		started: time.Now(),
	}
}

// Handler builds the routed handler with the canonical middleware stack.
func (s *Server) Handler() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		TracingService:        s.cfg.TracingService,
		EnableLogging:         true,
		EnableRateLimit:       s.cfg.RateLimitRPM > 0,
		RateLimitRPM:          s.cfg.RateLimitRPM,
	})

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/version", s.handleVersion)
		r.Get("/scheduler/tasks", s.handleSchedulerTasks)

		r.Route("/file-uploads", func(r chi.Router) {
			r.Post("/initiate", s.handleInitiate)
			r.Post("/callback", s.handleCallback)
			r.Get("/{uploadID}/status", s.handleStatus)
			r.Get("/{uploadID}/download", s.handleDownload)
			r.Delete("/{uploadID}", s.handleDelete)
		})
	})

	return r
}
