// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"fmt"
	"time"
)

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes of the response
	WriteTimeout time.Duration

	// IdleTimeout is the maximum amount of time to wait for the next request
	IdleTimeout time.Duration

	// MaxHeaderBytes controls the maximum number of bytes the server will read parsing the request header's keys and values
	MaxHeaderBytes int

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown
	ShutdownTimeout time.Duration
}

const (
	// Default server timeouts
	defaultReadTimeout     = 30 * time.Second
	defaultWriteTimeout    = 60 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultMaxHeaderBytes  = 1 << 20 // 1 MB
	defaultShutdownTimeout = 15 * time.Second
)

// ParseServerConfig reads server tuning from environment variables with
// sensible defaults. The listen address comes from the loaded AppConfig.
func ParseServerConfig(listenAddr string) ServerConfig {
	return ServerConfig{
		ListenAddr:      listenAddr,
		ReadTimeout:     ParseDuration("FLOODGATE_HTTP_READ_TIMEOUT", defaultReadTimeout),
		WriteTimeout:    ParseDuration("FLOODGATE_HTTP_WRITE_TIMEOUT", defaultWriteTimeout),
		IdleTimeout:     ParseDuration("FLOODGATE_HTTP_IDLE_TIMEOUT", defaultIdleTimeout),
		MaxHeaderBytes:  ParseInt("FLOODGATE_HTTP_MAX_HEADER_BYTES", defaultMaxHeaderBytes),
		ShutdownTimeout: ParseDuration("FLOODGATE_HTTP_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
	}
}

// Validate checks server configuration bounds.
func (c *ServerConfig) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address is empty")
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	if c.MaxHeaderBytes <= 0 {
		return fmt.Errorf("max header bytes must be positive")
	}
	return nil
}
