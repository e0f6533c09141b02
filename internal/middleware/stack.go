// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package middleware provides the canonical HTTP ingress middleware stack.
package middleware

import (
	"net"

	fglog "github.com/ManuGH/floodgate/internal/log"
	"github.com/go-chi/chi/v5"
)

// StackConfig configures the canonical HTTP ingress middleware stack.
// API and metrics servers share it to prevent drift in cross-cutting concerns.
type StackConfig struct {
	// Security headers
	EnableSecurityHeaders bool
	CSP                   string

	// TrustedProxies defines which IPs are trusted to set X-Forwarded-Proto.
	TrustedProxies []*net.IPNet

	// Observability
	EnableMetrics  bool
	TracingService string // empty disables tracing
	EnableLogging  bool

	// Rate limiting
	EnableRateLimit bool
	RateLimitRPM    int
}

// NewRouter constructs a chi router with the canonical middleware stack applied.
func NewRouter(cfg StackConfig) *chi.Mux {
	r := chi.NewRouter()
	ApplyStack(r, cfg)
	return r
}

// ApplyStack applies the canonical middleware stack to r.
func ApplyStack(r chi.Router, cfg StackConfig) {
	// 1. Recoverer (outermost safety net)
	r.Use(Recoverer)
	// 2. RequestID (correlation early)
	r.Use(RequestID)
	// 3. Security headers
	if cfg.EnableSecurityHeaders {
		r.Use(SecurityHeaders(cfg.CSP, cfg.TrustedProxies))
	}
	// 4. Metrics (track all requests)
	if cfg.EnableMetrics {
		r.Use(Metrics())
	}
	// 5. Tracing (distributed tracing with OpenTelemetry)
	if cfg.TracingService != "" {
		r.Use(Tracing(cfg.TracingService))
	}
	// 6. Logging (wraps handlers, captures full latency)
	if cfg.EnableLogging {
		r.Use(fglog.Middleware())
	}
	// 7. Rate limit (global protection)
	if cfg.EnableRateLimit {
		r.Use(APIRateLimit(cfg.RateLimitRPM))
	}
}
