// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/floodgate/internal/config"
)

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		ListenAddr:      "127.0.0.1:0",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		IdleTimeout:     5 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 2 * time.Second,
	}
}

func testDeps(t *testing.T) Deps {
	return Deps{
		Logger:     zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.ErrorLevel),
		APIHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }),
	}
}

func TestNewManager_Validation(t *testing.T) {
	deps := testDeps(t)
	deps.APIHandler = nil
	_, err := NewManager(testServerConfig(), deps)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingAPIHandler)

	deps = testDeps(t)
	deps.Logger = zerolog.Nop().Level(zerolog.Disabled)
	_, err = NewManager(testServerConfig(), deps)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingLogger)
}

func TestManager_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	m, err := NewManager(testServerConfig(), testDeps(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not stop in time")
	}
}

func TestManager_ShutdownHooksRunLIFO(t *testing.T) {
	m, err := NewManager(testServerConfig(), testDeps(t))
	require.NoError(t, err)

	var mu sync.Mutex
	var order []string
	record := func(name string) ShutdownHook {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}
	m.RegisterShutdownHook("first", record("first"))
	m.RegisterShutdownHook("second", record("second"))
	m.RegisterShutdownHook("third", record("third"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"third", "second", "first"}, order)
}

func TestManager_HookFailureSurfaces(t *testing.T) {
	m, err := NewManager(testServerConfig(), testDeps(t))
	require.NoError(t, err)

	m.RegisterShutdownHook("broken", func(context.Context) error {
		return fmt.Errorf("close failed")
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	err = <-done
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestManager_ShutdownBeforeStart(t *testing.T) {
	m, err := NewManager(testServerConfig(), testDeps(t))
	require.NoError(t, err)

	err = m.Shutdown(context.Background())
	assert.ErrorIs(t, err, ErrManagerNotStarted)
}

func TestManager_DoubleShutdown(t *testing.T) {
	m, err := NewManager(testServerConfig(), testDeps(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	// Second shutdown is a no-op.
	assert.NoError(t, m.Shutdown(context.Background()))
}

func TestManager_MetricsServer(t *testing.T) {
	defer goleak.VerifyNone(t)

	deps := testDeps(t)
	deps.MetricsHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	deps.MetricsAddr = "127.0.0.1:0"

	m, err := NewManager(testServerConfig(), deps)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}
