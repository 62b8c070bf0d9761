// Package server implements the toolkit-server lifecycle: starting and
// stopping the per-environment Jupyter-compatible server process, health
// checking it, and tearing everything down on shutdown. All operations for
// one environment id are strictly serialized through the pending store.
package server

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/deepnote/deepnoted/src/deepnoted/controller/environment"
	"github.com/deepnote/deepnoted/src/deepnoted/entity"
	"github.com/deepnote/deepnoted/src/deepnoted/internal/errors"
	"github.com/deepnote/deepnoted/src/deepnoted/internal/executor"
	"github.com/deepnote/deepnoted/src/deepnoted/internal/httpprobe"
	"github.com/deepnote/deepnoted/src/deepnoted/internal/lockfile"
	"github.com/deepnote/deepnoted/src/deepnoted/internal/pending"
	"github.com/deepnote/deepnoted/src/deepnoted/internal/portalloc"
	"github.com/deepnote/deepnoted/src/deepnoted/repository/servers"
	tally "github.com/uber-go/tally/v4"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

const (
	_nameKey = "server"

	_configKeyServer = "server"

	_serverModule = "deepnote_toolkit.server"
	_healthPath   = "/api"

	_outputBufferBytes = 5000

	// Markers on the spawned process environment. Detached mode keeps the
	// toolkit from calling out to a Deepnote backend that does not exist in
	// a local session.
	_envDetachedMarker   = "DEEPNOTE_TOOLKIT_DETACHED=1"
	_envConstraintMarker = "DEEPNOTE_ENFORCE_CONSTRAINTS=1"
	_envInterpreterHome  = "PYTHONHOME"
)

// Config is the server lifecycle configuration block.
type Config struct {
	PortBase            int `yaml:"portBase"`
	HealthTimeoutSec    int `yaml:"healthTimeoutSeconds"`
	HealthIntervalMs    int `yaml:"healthIntervalMs"`
	DisposeGraceSec     int `yaml:"disposeGraceSeconds"`
	PendingWaitSec      int `yaml:"pendingWaitSeconds"`
}

// IntegrationEnvProvider supplies externally managed environment variables
// (integration credentials and the like) merged into the spawned server's
// process environment. Optional; the host wires one in when integrations
// are configured.
type IntegrationEnvProvider interface {
	GetEnvironmentVariables(ctx context.Context, env *entity.Environment) (map[string]string, error)
}

// Controller orchestrates toolkit server processes.
type Controller interface {
	// Start brings up a server for the environment, or returns the existing
	// healthy one. Concurrent calls for one environment coalesce onto a
	// single spawn.
	Start(ctx context.Context, env *entity.Environment) (*entity.ServerInfo, error)
	// Stop terminates the environment's server if one is tracked. A stop
	// waits for any in-flight start on the same environment first.
	Stop(ctx context.Context, environmentID string) error
	// Running reports the tracked ServerInfo for the environment, if any.
	Running(ctx context.Context, environmentID string) (*entity.ServerInfo, bool)
	// Dispose stops every tracked server, bounded in time, and clears all
	// state. Safe to call with zero tracked servers.
	Dispose(ctx context.Context) error
}

// Params are inbound parameters to initialize a new controller.
type Params struct {
	fx.In

	Lifecycle    fx.Lifecycle
	Logger       *zap.SugaredLogger
	Config       config.Provider
	Stats        tally.Scope
	Executor     executor.Executor
	Probe        httpprobe.Probe
	Servers      servers.Repository
	Lockfiles    lockfile.Registry
	Environments environment.Controller
	Ports        portalloc.Allocator
	Pending      *pending.Store
	Integrations IntegrationEnvProvider `optional:"true"`
}

type controller struct {
	cfg          Config
	logger       *zap.SugaredLogger
	stats        tally.Scope
	executor     executor.Executor
	probe        httpprobe.Probe
	servers      servers.Repository
	lockfiles    lockfile.Registry
	environments environment.Controller
	ports        portalloc.Allocator
	pending      *pending.Store
	integrations IntegrationEnvProvider

	handles *handleStore
}

// New creates a new controller for server lifecycle management and hooks
// Dispose into daemon shutdown.
func New(p Params) (Controller, error) {
	cfg := Config{}
	if err := p.Config.Get(_configKeyServer).Populate(&cfg); err != nil {
		return nil, fmt.Errorf("getting configuration for %q: %w", _configKeyServer, err)
	}
	c := &controller{
		cfg:          cfg,
		logger:       p.Logger.With("component", _nameKey),
		stats:        p.Stats.SubScope("server_ctrl"),
		executor:     p.Executor,
		probe:        p.Probe,
		servers:      p.Servers,
		lockfiles:    p.Lockfiles,
		environments: p.Environments,
		ports:        p.Ports,
		pending:      p.Pending,
		integrations: p.Integrations,
		handles:      newHandleStore(),
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return c.Dispose(ctx)
		},
	})

	return c, nil
}

func (c *controller) Start(ctx context.Context, env *entity.Environment) (*entity.ServerInfo, error) {
	for {
		op, owner := c.pending.Begin(env.ID, pending.KindStart)
		if owner {
			info, err := c.start(ctx, env)
			op.Complete(info, err)
			return info, err
		}

		value, err := op.Await(ctx)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err == nil && op.Kind() == pending.KindStart {
			return value.(*entity.ServerInfo), nil
		}
		// A stop or a failed start was in flight; take a turn ourselves.
	}
}

func (c *controller) Stop(ctx context.Context, environmentID string) error {
	for {
		op, owner := c.pending.Begin(environmentID, pending.KindStop)
		if owner {
			err := c.stop(ctx, environmentID)
			op.Complete(nil, err)
			return err
		}
		if _, err := op.Await(ctx); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *controller) Running(ctx context.Context, environmentID string) (*entity.ServerInfo, bool) {
	server, err := c.servers.Get(ctx, environmentID)
	if err != nil {
		return nil, false
	}
	info := server.Info
	return &info, true
}

func (c *controller) start(ctx context.Context, env *entity.Environment) (*entity.ServerInfo, error) {
	// Idempotent no-op when the tracked server still answers.
	if existing, err := c.servers.Get(ctx, env.ID); err == nil {
		if c.probe.Exists(ctx, existing.Info.URL+_healthPath) {
			c.stats.Counter("start_reused").Inc(1)
			info := existing.Info
			return &info, nil
		}
		c.logger.Warnw("tracked server unhealthy, replacing", "environment", env.ID, "pid", existing.PID)
		c.teardown(ctx, env.ID)
	}

	install, err := c.environments.Ensure(ctx, env)
	if err != nil {
		return nil, err
	}

	jupyterPort, lspPort, err := c.ports.AllocatePair(ctx, c.cfg.PortBase)
	if err != nil {
		return nil, err
	}

	processEnv, err := c.buildProcessEnv(ctx, env)
	if err != nil {
		c.servers.ReleasePorts(ctx, jupyterPort, lspPort)
		return nil, &errors.ServerStartupError{EnvironmentID: env.ID, Cause: err}
	}

	stdout := entity.NewRingBuffer(_outputBufferBytes)
	stderr := entity.NewRingBuffer(_outputBufferBytes)

	args := []string{
		"-m", _serverModule,
		"--jupyter-port", strconv.Itoa(jupyterPort),
		"--ls-port", strconv.Itoa(lspPort),
	}
	c.logger.Infow("starting server", "environment", env.ID, "jupyterPort", jupyterPort, "lsPort", lspPort)
	handle, err := c.executor.Spawn(ctx, install.InterpreterPath, args, executor.SpawnOpts{
		Env:    processEnv,
		Stdout: stdout,
		Stderr: stderr,
	})
	if err != nil {
		c.servers.ReleasePorts(ctx, jupyterPort, lspPort)
		return nil, &errors.ServerStartupError{EnvironmentID: env.ID, Cause: err}
	}

	server := &entity.ServerProcess{
		EnvironmentID: env.ID,
		PID:           handle.PID(),
		Info: entity.ServerInfo{
			URL:         fmt.Sprintf("http://localhost:%d", jupyterPort),
			JupyterPort: jupyterPort,
			LSPPort:     lspPort,
		},
		Stdout: stdout,
		Stderr: stderr,
	}

	c.lockfiles.Write(handle.PID())
	c.servers.Set(ctx, server)
	c.handles.set(env.ID, handle)
	// The tracked entry now carries the ports.
	c.servers.ReleasePorts(ctx, jupyterPort, lspPort)

	if err := c.awaitHealthy(ctx, server, handle); err != nil {
		c.teardown(ctx, env.ID)
		return nil, err
	}

	c.stats.Counter("start_spawned").Inc(1)
	c.logger.Infow("server ready", "environment", env.ID, "url", server.Info.URL, "pid", server.PID)
	info := server.Info
	return &info, nil
}

// awaitHealthy polls the health endpoint until it answers, the process
// exits, the caller cancels, or the readiness bound elapses.
func (c *controller) awaitHealthy(ctx context.Context, server *entity.ServerProcess, handle executor.Handle) error {
	url := server.Info.URL + _healthPath
	timeout := time.Duration(c.cfg.HealthTimeoutSec) * time.Second
	interval := time.Duration(c.cfg.HealthIntervalMs) * time.Millisecond

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			if c.probe.Exists(ctx, url) {
				return nil
			}
		case <-handle.Done():
			return &errors.ServerStartupError{
				EnvironmentID: server.EnvironmentID,
				Output:        server.Stderr.String(),
				Cause:         fmt.Errorf("server process exited during startup: %v", handle.Err()),
			}
		case <-ctx.Done():
			return errors.ErrOperationCancelled
		case <-deadline.C:
			return &errors.ServerTimeoutError{
				EnvironmentID: server.EnvironmentID,
				URL:           url,
				Timeout:       timeout.String(),
				LastStderr:    server.Stderr.String(),
			}
		}
	}
}

func (c *controller) stop(ctx context.Context, environmentID string) error {
	server, err := c.servers.Get(ctx, environmentID)
	if err != nil {
		// Nothing tracked; stopping is a no-op.
		return nil
	}

	c.logger.Infow("stopping server", "environment", environmentID, "pid", server.PID)
	c.stats.Counter("stop").Inc(1)
	c.teardown(ctx, environmentID)
	return nil
}

// teardown kills the tracked process (graceful, then forced) and removes
// every trace of it: repository entry, output buffers, handle, lock file.
func (c *controller) teardown(ctx context.Context, environmentID string) {
	server, err := c.servers.Get(ctx, environmentID)
	if err != nil {
		return
	}

	if handle, ok := c.handles.take(environmentID); ok {
		c.terminate(handle)
	}
	c.servers.Delete(ctx, environmentID)
	c.lockfiles.Delete(server.PID)
}

// terminate asks the process to exit, escalating to a kill after the grace
// period.
func (c *controller) terminate(handle executor.Handle) {
	grace := time.Duration(c.cfg.DisposeGraceSec) * time.Second

	if err := handle.Signal(syscall.SIGTERM); err != nil {
		c.logger.Debugw("terminate signal failed", "pid", handle.PID(), "error", err)
	}
	select {
	case <-handle.Done():
		return
	case <-time.After(grace):
	}

	c.logger.Warnw("escalating to kill", "pid", handle.PID())
	if err := handle.Kill(); err != nil {
		c.logger.Warnw("kill failed", "pid", handle.PID(), "error", err)
	}
	<-handle.Done()
}

func (c *controller) Dispose(ctx context.Context) error {
	pendingWait := time.Duration(c.cfg.PendingWaitSec) * time.Second
	waitCtx, cancel := context.WithTimeout(ctx, pendingWait)
	defer cancel()
	if err := c.pending.AwaitAll(waitCtx); err != nil {
		c.logger.Warnw("pending operations still in flight at dispose", "error", err)
	}

	tracked, _ := c.servers.List(ctx)
	var errs error
	for _, server := range tracked {
		if handle, ok := c.handles.take(server.EnvironmentID); ok {
			c.terminate(handle)
		}
		if err := c.servers.Delete(ctx, server.EnvironmentID); err != nil {
			errs = multierr.Append(errs, err)
		}
		c.lockfiles.Delete(server.PID)
	}
	c.handles.clear()
	return errs
}

// buildProcessEnv constructs the spawned server's environment: the venv's
// bin directory first on PATH, the venv marker set, detached and constraint
// markers present, optional integration variables merged in, and any
// interpreter-home variable removed so it cannot shadow the venv.
func (c *controller) buildProcessEnv(ctx context.Context, env *entity.Environment) ([]string, error) {
	binDir := environment.BinDir(env.VenvPath)

	merged := make([]string, 0, len(os.Environ())+6)
	for _, kv := range os.Environ() {
		key := strings.SplitN(kv, "=", 2)[0]
		switch {
		case strings.EqualFold(key, _envInterpreterHome):
			continue
		case strings.EqualFold(key, "PATH"):
			merged = append(merged, fmt.Sprintf("PATH=%s%c%s", binDir, os.PathListSeparator, kv[len(key)+1:]))
		default:
			merged = append(merged, kv)
		}
	}
	merged = append(merged,
		"VIRTUAL_ENV="+env.VenvPath,
		_envDetachedMarker,
		_envConstraintMarker,
	)

	if c.integrations != nil {
		vars, err := c.integrations.GetEnvironmentVariables(ctx, env)
		if err != nil {
			return nil, fmt.Errorf("resolving integration variables: %w", err)
		}
		for key, value := range vars {
			merged = append(merged, key+"="+value)
		}
	}

	return merged, nil
}
