// Package portalloc hands out disjoint TCP port pairs for toolkit servers.
// Allocation is globally serialized so that concurrent environment starts
// can never compute overlapping pairs, and every returned pair is reserved
// in the live-server table before the caller sees it.
package portalloc

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/deepnote/deepnoted/src/deepnoted/internal/errors"
	"github.com/deepnote/deepnoted/src/deepnoted/repository/servers"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const _maxAttempts = 100

// Module provides a module to inject using fx.
var Module = fx.Options(
	fx.Provide(func(repo servers.Repository, logger *zap.SugaredLogger) Allocator {
		return NewAllocator(repo, WithLogger(logger))
	}),
)

// Allocator selects free, unreserved port pairs.
type Allocator interface {
	// AllocatePair returns two distinct free ports at or above
	// preferredBase, already reserved in the live-server table.
	AllocatePair(ctx context.Context, preferredBase int) (int, int, error)
}

// ProbeFunc reports a free port at or above the requested one. The OS may
// suggest a different port than asked for when the requested one is bound.
type ProbeFunc func(port int) (int, error)

type allocator struct {
	mu      sync.Mutex
	servers servers.Repository
	probe   ProbeFunc
	logger  *zap.SugaredLogger
}

// Option defines options to customize the allocator's behavior.
type Option func(*allocator)

// WithLogger overrides the default noop logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(a *allocator) {
		a.logger = logger
	}
}

// WithProbeFunc provides customized port probing, used in tests to avoid
// binding real sockets.
func WithProbeFunc(probe ProbeFunc) Option {
	return func(a *allocator) {
		a.probe = probe
	}
}

// NewAllocator creates an Allocator backed by real socket probes unless
// overridden.
func NewAllocator(repo servers.Repository, opts ...Option) Allocator {
	a := &allocator{
		servers: repo,
		probe:   probeFreePort,
		logger:  zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AllocatePair is serialized by a single mutex: concurrent callers queue
// rather than interleave, so the reserved set each caller computes is
// complete by the time it picks ports.
func (a *allocator) AllocatePair(ctx context.Context, preferredBase int) (int, int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	reserved := a.servers.ReservedPorts(ctx)

	portA, err := a.findFree(preferredBase, reserved)
	if err != nil {
		return 0, 0, err
	}
	reserved[portA] = struct{}{}

	portB, err := a.findFree(portA+1, reserved)
	if err != nil {
		return 0, 0, err
	}

	// Reserve before returning so the window between allocation and spawn
	// is closed for the next caller.
	a.servers.ReservePorts(ctx, portA, portB)
	a.logger.Debugw("allocated port pair", "portA", portA, "portB", portB)
	return portA, portB, nil
}

func (a *allocator) findFree(start int, reserved map[int]struct{}) (int, error) {
	candidate := start
	for attempt := 0; attempt < _maxAttempts; attempt++ {
		if _, taken := reserved[candidate]; taken {
			candidate++
			continue
		}
		free, err := a.probe(candidate)
		if err != nil {
			candidate++
			continue
		}
		if free == candidate {
			return candidate, nil
		}
		// The OS suggested a different free port; accept it unless that
		// suggestion is itself reserved.
		if _, taken := reserved[free]; !taken {
			return free, nil
		}
		candidate++
	}

	return 0, &errors.PortExhaustionError{
		Attempts: _maxAttempts,
		Excluded: sortedPorts(reserved),
	}
}

// probeFreePort binds the requested port to verify it is free. When the
// bind fails, a second bind on port 0 asks the OS for any free port.
func probeFreePort(port int) (int, error) {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err == nil {
		l.Close()
		return port, nil
	}

	l, err = net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func sortedPorts(reserved map[int]struct{}) []int {
	ports := make([]int, 0, len(reserved))
	for port := range reserved {
		ports = append(ports, port)
	}
	sort.Ints(ports)
	return ports
}
