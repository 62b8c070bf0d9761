package servers

import (
	"context"
	"testing"

	"github.com/deepnote/deepnoted/src/deepnoted/entity"
	"github.com/deepnote/deepnoted/src/deepnoted/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tally "github.com/uber-go/tally/v4"
)

func newServer(envID string, pid, jupyterPort, lspPort int) *entity.ServerProcess {
	return &entity.ServerProcess{
		EnvironmentID: envID,
		PID:           pid,
		Info: entity.ServerInfo{
			URL:         "http://localhost:8888",
			JupyterPort: jupyterPort,
			LSPPort:     lspPort,
		},
	}
}

func TestSetGetDelete(t *testing.T) {
	ctx := context.Background()
	r := New(tally.NoopScope)

	_, err := r.Get(ctx, "env-1")
	id, ok := errors.NotFoundEnvironment(err)
	require.True(t, ok)
	assert.Equal(t, "env-1", id)

	s := newServer("env-1", 100, 8888, 8889)
	require.NoError(t, r.Set(ctx, s))

	got, err := r.Get(ctx, "env-1")
	require.NoError(t, err)
	assert.Equal(t, s, got)

	count, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, r.Delete(ctx, "env-1"))
	_, err = r.Get(ctx, "env-1")
	assert.Error(t, err)
}

func TestSetNil(t *testing.T) {
	r := New(tally.NoopScope)
	assert.Error(t, r.Set(context.Background(), nil))
}

func TestList(t *testing.T) {
	ctx := context.Background()
	r := New(tally.NoopScope)
	require.NoError(t, r.Set(ctx, newServer("env-1", 100, 8888, 8889)))
	require.NoError(t, r.Set(ctx, newServer("env-2", 101, 8890, 8891)))

	list, err := r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestReservedPortsCombinesReservationsAndServers(t *testing.T) {
	ctx := context.Background()
	r := New(tally.NoopScope)

	r.ReservePorts(ctx, 9000, 9001)
	require.NoError(t, r.Set(ctx, newServer("env-1", 100, 8888, 8889)))

	reserved := r.ReservedPorts(ctx)
	for _, port := range []int{9000, 9001, 8888, 8889} {
		_, ok := reserved[port]
		assert.True(t, ok, "port %d should be reserved", port)
	}

	r.ReleasePorts(ctx, 9000, 9001)
	reserved = r.ReservedPorts(ctx)
	_, ok := reserved[9000]
	assert.False(t, ok)
	// Ports held by a tracked server stay reserved.
	_, ok = reserved[8888]
	assert.True(t, ok)
}
