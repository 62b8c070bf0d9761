package portalloc

import (
	"context"
	"sync"
	"testing"

	"github.com/deepnote/deepnoted/src/deepnoted/internal/errors"
	"github.com/deepnote/deepnoted/src/deepnoted/repository/servers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tally "github.com/uber-go/tally/v4"
)

// freeProbe pretends every port is free.
func freeProbe(port int) (int, error) {
	return port, nil
}

func TestAllocatePair(t *testing.T) {
	repo := servers.New(tally.NoopScope)
	a := NewAllocator(repo, WithProbeFunc(freeProbe))

	portA, portB, err := a.AllocatePair(context.Background(), 8888)
	require.NoError(t, err)
	assert.Equal(t, 8888, portA)
	assert.Equal(t, 8889, portB)

	// The pair is reserved before AllocatePair returns.
	reserved := repo.ReservedPorts(context.Background())
	_, ok := reserved[8888]
	assert.True(t, ok)
	_, ok = reserved[8889]
	assert.True(t, ok)
}

func TestAllocatePairSkipsReserved(t *testing.T) {
	ctx := context.Background()
	repo := servers.New(tally.NoopScope)
	repo.ReservePorts(ctx, 8888, 8889)
	a := NewAllocator(repo, WithProbeFunc(freeProbe))

	portA, portB, err := a.AllocatePair(ctx, 8888)
	require.NoError(t, err)
	assert.Equal(t, 8890, portA)
	assert.Equal(t, 8891, portB)
}

func TestAllocatePairAcceptsOSSuggestion(t *testing.T) {
	ctx := context.Background()
	repo := servers.New(tally.NoopScope)

	// The requested port is bound on the host; the OS suggests another.
	probe := func(port int) (int, error) {
		if port == 8888 {
			return 52000, nil
		}
		return port, nil
	}
	a := NewAllocator(repo, WithProbeFunc(probe))

	portA, portB, err := a.AllocatePair(ctx, 8888)
	require.NoError(t, err)
	assert.Equal(t, 52000, portA)
	assert.Equal(t, 52001, portB)
}

func TestAllocatePairRejectsReservedSuggestion(t *testing.T) {
	ctx := context.Background()
	repo := servers.New(tally.NoopScope)
	repo.ReservePorts(ctx, 52000)

	probe := func(port int) (int, error) {
		if port == 8888 {
			// OS suggestion collides with an existing reservation.
			return 52000, nil
		}
		return port, nil
	}
	a := NewAllocator(repo, WithProbeFunc(probe))

	portA, _, err := a.AllocatePair(ctx, 8888)
	require.NoError(t, err)
	assert.NotEqual(t, 52000, portA)
}

func TestConcurrentAllocationsAreDisjoint(t *testing.T) {
	const n = 8
	ctx := context.Background()
	repo := servers.New(tally.NoopScope)
	a := NewAllocator(repo, WithProbeFunc(freeProbe))

	var mu sync.Mutex
	seen := make(map[int]struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			portA, portB, err := a.AllocatePair(ctx, 8888)
			require.NoError(t, err)

			mu.Lock()
			defer mu.Unlock()
			_, dupA := seen[portA]
			_, dupB := seen[portB]
			assert.False(t, dupA, "port %d allocated twice", portA)
			assert.False(t, dupB, "port %d allocated twice", portB)
			seen[portA] = struct{}{}
			seen[portB] = struct{}{}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 2*n)
}

func TestPortExhaustion(t *testing.T) {
	ctx := context.Background()
	repo := servers.New(tally.NoopScope)
	for port := 8888; port < 8888+2*_maxAttempts; port++ {
		repo.ReservePorts(ctx, port)
	}
	a := NewAllocator(repo, WithProbeFunc(freeProbe))

	_, _, err := a.AllocatePair(ctx, 8888)
	var exhausted *errors.PortExhaustionError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, _maxAttempts, exhausted.Attempts)
	assert.NotEmpty(t, exhausted.Excluded)
}
