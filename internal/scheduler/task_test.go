// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopHandler(ctx context.Context) error { return nil }

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry(5 * time.Minute)

	err := reg.Register(Task{
		Name:           "upload-sweep",
		Schedule:       Every(time.Hour),
		Handler:        noopHandler,
		MaxRunDuration: time.Minute,
	})
	require.NoError(t, err)

	tasks := reg.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "upload-sweep", tasks[0].Name)

	_, ok := reg.Lookup("upload-sweep")
	assert.True(t, ok)
	_, ok = reg.Lookup("unknown")
	assert.False(t, ok)
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	reg := NewRegistry(5 * time.Minute)

	task := Task{
		Name:           "upload-sweep",
		Schedule:       Every(time.Hour),
		Handler:        noopHandler,
		MaxRunDuration: time.Minute,
	}
	require.NoError(t, reg.Register(task))

	err := reg.Register(task)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistry_Validation(t *testing.T) {
	reg := NewRegistry(5 * time.Minute)

	tests := []struct {
		name    string
		task    Task
		wantErr string
	}{
		{
			name:    "empty name",
			task:    Task{Schedule: Every(time.Hour), Handler: noopHandler, MaxRunDuration: time.Minute},
			wantErr: "name must not be empty",
		},
		{
			name:    "nil schedule",
			task:    Task{Name: "t", Handler: noopHandler, MaxRunDuration: time.Minute},
			wantErr: "schedule must not be nil",
		},
		{
			name:    "nil handler",
			task:    Task{Name: "t", Schedule: Every(time.Hour), MaxRunDuration: time.Minute},
			wantErr: "handler must not be nil",
		},
		{
			name:    "zero max run duration",
			task:    Task{Name: "t", Schedule: Every(time.Hour), Handler: noopHandler},
			wantErr: "must be positive",
		},
		{
			name:    "max run duration reaches lock timeout",
			task:    Task{Name: "t", Schedule: Every(time.Hour), Handler: noopHandler, MaxRunDuration: 5 * time.Minute},
			wantErr: "must stay below lock timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.Register(tt.task)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRegistry_TasksSortedByName(t *testing.T) {
	reg := NewRegistry(5 * time.Minute)

	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, reg.Register(Task{
			Name:           name,
			Schedule:       Every(time.Hour),
			Handler:        noopHandler,
			MaxRunDuration: time.Minute,
		}))
	}

	tasks := reg.Tasks()
	require.Len(t, tasks, 3)
	assert.Equal(t, "alpha", tasks[0].Name)
	assert.Equal(t, "mid", tasks[1].Name)
	assert.Equal(t, "zeta", tasks[2].Name)
}
