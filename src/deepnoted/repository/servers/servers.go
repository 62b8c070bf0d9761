// Package servers is the live-server table: the single in-process record of
// which environments have a running toolkit server and which ports are
// spoken for. One instance exists per daemon, owned by the server
// controller; there are no ambient singletons.
package servers

import (
	"context"
	"sync"

	"github.com/deepnote/deepnoted/src/deepnoted/entity"
	"github.com/deepnote/deepnoted/src/deepnoted/internal/errors"
	tally "github.com/uber-go/tally/v4"
)

// Repository is the environment-keyed server store.
type Repository interface {
	Get(ctx context.Context, environmentID string) (*entity.ServerProcess, error)
	Set(ctx context.Context, server *entity.ServerProcess) error
	Delete(ctx context.Context, environmentID string) error
	List(ctx context.Context) ([]*entity.ServerProcess, error)
	Count(ctx context.Context) (int, error)

	// ReservePorts marks ports as taken before the owning server is
	// tracked, closing the window between allocation and spawn.
	ReservePorts(ctx context.Context, ports ...int)
	// ReleasePorts drops explicit reservations, typically after the server
	// entry carrying the same ports has been Set or the start failed.
	ReleasePorts(ctx context.Context, ports ...int)
	// ReservedPorts returns every port currently reserved or held by a
	// tracked server.
	ReservedPorts(ctx context.Context) map[int]struct{}
}

type repository struct {
	mu       sync.Mutex
	memstore map[string]*entity.ServerProcess
	reserved map[int]struct{}
	stats    tally.Scope
}

// New returns a repository to a key-value server data store.
func New(stats tally.Scope) Repository {
	return &repository{
		memstore: make(map[string]*entity.ServerProcess),
		reserved: make(map[int]struct{}),
		stats:    stats,
	}
}

// Get returns the server tracked for the given environment id.
func (r *repository) Get(ctx context.Context, environmentID string) (*entity.ServerProcess, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.memstore[environmentID]
	if !ok {
		return nil, &errors.EnvironmentNotFoundError{ID: environmentID}
	}
	return s, nil
}

// Set tracks the server under its environment id.
func (r *repository) Set(ctx context.Context, server *entity.ServerProcess) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if server == nil {
		return errors.New("can't track nil server")
	}
	r.memstore[server.EnvironmentID] = server
	r.stats.Gauge("live_servers").Update(float64(len(r.memstore)))
	return nil
}

// Delete removes the server tracked for the given environment id.
func (r *repository) Delete(ctx context.Context, environmentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.memstore, environmentID)
	r.stats.Gauge("live_servers").Update(float64(len(r.memstore)))
	return nil
}

// List returns all tracked servers.
func (r *repository) List(ctx context.Context) ([]*entity.ServerProcess, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	servers := make([]*entity.ServerProcess, 0, len(r.memstore))
	for _, s := range r.memstore {
		servers = append(servers, s)
	}
	return servers, nil
}

// Count returns the number of tracked servers.
func (r *repository) Count(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.memstore), nil
}

func (r *repository) ReservePorts(ctx context.Context, ports ...int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, port := range ports {
		r.reserved[port] = struct{}{}
	}
}

func (r *repository) ReleasePorts(ctx context.Context, ports ...int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, port := range ports {
		delete(r.reserved, port)
	}
}

func (r *repository) ReservedPorts(ctx context.Context) map[int]struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	reserved := make(map[int]struct{}, len(r.reserved)+2*len(r.memstore))
	for port := range r.reserved {
		reserved[port] = struct{}{}
	}
	for _, s := range r.memstore {
		reserved[s.Info.JupyterPort] = struct{}{}
		reserved[s.Info.LSPPort] = struct{}{}
	}
	return reserved
}
