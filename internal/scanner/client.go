// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package scanner is the client for the external upload/scan service. All
// verdicts about uploaded files (clean, rejected, quarantined) originate
// here; the lifecycle engine only mirrors them into local records.
package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/ManuGH/floodgate/internal/platform/httpx"
	"github.com/ManuGH/floodgate/internal/resilience"
	"github.com/ManuGH/floodgate/internal/telemetry"
)

const (
	defaultRateLimit      = 10
	defaultRateLimitBurst = 20
	defaultThreshold      = 5
	defaultReset          = 30 * time.Second

	// maxResponseBytes bounds how much of a scan-service response we are
	// willing to buffer. Status documents are small; anything larger is bogus.
	maxResponseBytes = 1 << 20
	errBodyLimit     = 512
)

// Client talks to the scan service over HTTP. It rate-limits outbound calls
// and routes them through a circuit breaker so a dead scan service degrades
// to fast local failures instead of piling up blocked requests.
type Client struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
}

// Options configures the scan client behavior.
type Options struct {
	Timeout          time.Duration
	RateLimitRPS     float64
	RateLimitBurst   int
	BreakerThreshold int
	BreakerReset     time.Duration
}

// NewClient creates a scan service client for the given base URL.
func NewClient(baseURL string, opts Options) *Client {
	rps := opts.RateLimitRPS
	if rps <= 0 {
		rps = defaultRateLimit
	}
	burst := opts.RateLimitBurst
	if burst <= 0 {
		burst = defaultRateLimitBurst
	}
	threshold := opts.BreakerThreshold
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	reset := opts.BreakerReset
	if reset <= 0 {
		reset = defaultReset
	}

	return &Client{
		base:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    httpx.NewClient(opts.Timeout),
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		breaker: resilience.NewCircuitBreaker("scan-service", threshold, reset),
	}
}

// BreakerState exposes the circuit state for readiness reporting.
func (c *Client) BreakerState() string {
	return c.breaker.State()
}

// Initiate opens an upload session and returns the session handle.
func (c *Client) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResponse, error) {
	var out InitiateResponse
	if err := c.do(ctx, "initiate", http.MethodPost, "/api/v1/uploads", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status fetches the current scan verdict for one session.
func (c *Client) Status(ctx context.Context, uploadID string) (*StatusResponse, error) {
	var out StatusResponse
	path := "/api/v1/uploads/" + url.PathEscape(uploadID) + "/status"
	if err := c.do(ctx, "status", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do runs one request through the limiter and breaker. Only transport
// failures and 5xx responses count against the breaker; 4xx responses and
// decode failures are the caller's problem, not a sign the service is down.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	tracer := telemetry.Tracer("floodgate.scanner")
	ctx, span := tracer.Start(ctx, "floodgate.scan."+op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", path),
	)
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &ScanError{Sentinel: ErrUnavailable, Operation: op, Err: err}
	}

	var softErr *ScanError
	start := time.Now()
	execErr := c.breaker.Execute(func() error {
		softErr = nil

		var body io.Reader
		if in != nil {
			buf, err := json.Marshal(in)
			if err != nil {
				softErr = &ScanError{Sentinel: ErrDecode, Operation: op, Err: err}
				return nil
			}
			body = bytes.NewReader(buf)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
		if err != nil {
			softErr = &ScanError{Sentinel: ErrBadStatus, Operation: op, Err: err}
			return nil
		}
		req.Header.Set("Accept", "application/json")
		if in != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return &ScanError{Sentinel: ErrUnavailable, Operation: op, Err: err}
		}
		defer func() { _ = resp.Body.Close() }()
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

		switch {
		case resp.StatusCode >= http.StatusInternalServerError:
			return &ScanError{Sentinel: ErrUnavailable, Operation: op, Status: resp.StatusCode, Body: snippet(resp.Body)}
		case resp.StatusCode == http.StatusNotFound:
			softErr = &ScanError{Sentinel: ErrNotFound, Operation: op, Status: resp.StatusCode, Body: snippet(resp.Body)}
			return nil
		case resp.StatusCode >= http.StatusBadRequest:
			softErr = &ScanError{Sentinel: ErrBadStatus, Operation: op, Status: resp.StatusCode, Body: snippet(resp.Body)}
			return nil
		}

		if out != nil {
			if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
				softErr = &ScanError{Sentinel: ErrDecode, Operation: op, Status: resp.StatusCode, Err: err}
				return nil
			}
		}
		return nil
	})
	duration := time.Since(start)

	if execErr != nil {
		if errors.Is(execErr, resilience.ErrCircuitOpen) {
			execErr = &ScanError{Sentinel: ErrUnavailable, Operation: op, Err: execErr}
			recordRequest(op, "breaker_open", duration)
		} else {
			recordRequest(op, "error", duration)
		}
		span.RecordError(execErr)
		span.SetStatus(codes.Error, execErr.Error())
		return execErr
	}
	if softErr != nil {
		recordRequest(op, "error", duration)
		span.RecordError(softErr)
		span.SetStatus(codes.Error, softErr.Error())
		return softErr
	}

	recordRequest(op, "success", duration)
	span.SetStatus(codes.Ok, "")
	return nil
}

func snippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, errBodyLimit))
	return strings.TrimSpace(string(b))
}
