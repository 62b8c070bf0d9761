// Package reaper finds and kills toolkit server processes abandoned by a
// previous session. It runs opportunistically at daemon activation, never
// propagates failures, and is deliberately conservative: a process is only
// killed when its command line marks it as Deepnote-related AND it is
// independently confirmed orphaned.
package reaper

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/deepnote/deepnoted/src/deepnoted/internal/lockfile"
	"github.com/deepnote/deepnoted/src/deepnoted/internal/procinspect"
	tally "github.com/uber-go/tally/v4"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

const (
	_nameKey = "reaper"

	_configKeyReaper = "reaper"

	_killGrace   = 2 * time.Second
	_joinTimeout = 5 * time.Second
)

// Config is the orphan reaper configuration block.
type Config struct {
	// Markers identify Deepnote-related processes by command-line content.
	Markers []string `yaml:"markers"`
	// LSPPort is the fixed port the legacy language server listened on.
	LSPPort int `yaml:"lspPort"`
	// JupyterPortStart/End bound the scanned range of default server ports.
	JupyterPortStart int `yaml:"jupyterPortStart"`
	JupyterPortEnd   int `yaml:"jupyterPortEnd"`
}

// Controller scans for and kills orphaned toolkit processes.
type Controller interface {
	// CleanupOnActivation performs one full scan-and-kill pass. It never
	// returns an error; failures are logged and skipped.
	CleanupOnActivation(ctx context.Context)
}

// Params are inbound parameters to initialize a new controller.
type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Logger    *zap.SugaredLogger
	Config    config.Provider
	Stats     tally.Scope
	Inspector procinspect.Inspector
	Lockfiles lockfile.Registry
}

type controller struct {
	cfg       Config
	logger    *zap.SugaredLogger
	stats     tally.Scope
	inspector procinspect.Inspector
	lockfiles lockfile.Registry
}

// New creates the reaper and schedules its activation pass as a background
// task joined (bounded) at shutdown.
func New(p Params) (Controller, error) {
	cfg := Config{}
	if err := p.Config.Get(_configKeyReaper).Populate(&cfg); err != nil {
		return nil, fmt.Errorf("getting configuration for %q: %w", _configKeyReaper, err)
	}
	c := &controller{
		cfg:       cfg,
		logger:    p.Logger.With("component", _nameKey),
		stats:     p.Stats.SubScope("reaper"),
		inspector: p.Inspector,
		lockfiles: p.Lockfiles,
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				defer close(done)
				c.CleanupOnActivation(runCtx)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-time.After(_joinTimeout):
				c.logger.Warn("activation cleanup still running at shutdown")
			case <-ctx.Done():
			}
			return nil
		},
	})

	return c, nil
}

func (c *controller) CleanupOnActivation(ctx context.Context) {
	c.logger.Info("scanning for orphaned toolkit processes")

	killed := c.reapByPort(ctx)
	killed += c.reapByCommandLine(ctx)
	killed += c.reapByLockFiles(ctx)

	if killed > 0 {
		c.stats.Counter("orphans_killed").Inc(int64(killed))
		c.logger.Infow("orphan cleanup finished", "killed", killed)
	} else {
		c.logger.Debug("no orphaned processes found")
	}
}

// reapByPort inspects the well-known ports a leaked server would hold.
func (c *controller) reapByPort(ctx context.Context) int {
	ports := []int{c.cfg.LSPPort}
	for port := c.cfg.JupyterPortStart; port <= c.cfg.JupyterPortEnd; port++ {
		ports = append(ports, port)
	}

	killed := 0
	for _, port := range ports {
		if ctx.Err() != nil {
			return killed
		}
		pids, err := c.inspector.ListeningPIDs(ctx, port)
		if err != nil {
			c.logger.Debugw("port scan failed", "port", port, "error", err)
			continue
		}
		for _, pid := range pids {
			if c.reviewAndKill(ctx, pid, nil) {
				killed++
			}
		}
	}
	return killed
}

// reapByCommandLine enumerates every process whose command line carries
// toolkit markers and cross-references the lock-file registry.
func (c *controller) reapByCommandLine(ctx context.Context) int {
	summaries, err := c.inspector.ListAll(ctx)
	if err != nil {
		c.logger.Warnw("process enumeration failed", "error", err)
		return 0
	}

	killed := 0
	for _, summary := range summaries {
		if ctx.Err() != nil {
			return killed
		}
		if !c.isDeepnoteRelated(summary.Command) {
			continue
		}
		if c.reviewAndKill(ctx, summary.PID, &summary) {
			killed++
		}
	}
	return killed
}

// reapByLockFiles seeds candidates from ownership records persisted by
// earlier sessions and prunes records whose process is already gone.
func (c *controller) reapByLockFiles(ctx context.Context) int {
	killed := 0
	for _, record := range c.lockfiles.List() {
		if ctx.Err() != nil {
			return killed
		}
		if record.SessionID == c.lockfiles.SessionID() {
			continue
		}
		if !c.inspector.IsAlive(ctx, record.PID) {
			c.lockfiles.Delete(record.PID)
			continue
		}
		if c.reviewAndKill(ctx, record.PID, nil) {
			killed++
		}
	}
	return killed
}

// reviewAndKill applies the full decision chain to one candidate pid and
// kills it when, and only when, every check passes. summary may carry an
// already-known command line and parent pid.
func (c *controller) reviewAndKill(ctx context.Context, pid int, summary *procinspect.ProcessSummary) bool {
	if pid == os.Getpid() {
		return false
	}

	// Never kill on port evidence alone; the command line must match.
	command := ""
	if summary != nil {
		command = summary.Command
	} else {
		var err error
		if command, err = c.inspector.CommandLine(ctx, pid); err != nil {
			c.logger.Debugw("command line unavailable, skipping", "pid", pid, "error", err)
			return false
		}
	}
	if !c.isDeepnoteRelated(command) {
		return false
	}

	// A lock file from our own session means the process is ours; leave it.
	if record := c.lockfiles.Read(pid); record != nil && record.SessionID == c.lockfiles.SessionID() {
		return false
	}

	if !c.isOrphaned(ctx, pid, summary) {
		return false
	}

	c.logger.Warnw("killing orphaned process", "pid", pid, "command", command)
	c.kill(ctx, pid)
	c.lockfiles.Delete(pid)
	return true
}

// isOrphaned checks the parent process: re-parented to init, or a parent
// that no longer exists, means orphaned. Any uncertainty reads as not
// orphaned.
func (c *controller) isOrphaned(ctx context.Context, pid int, summary *procinspect.ProcessSummary) bool {
	ppid := -1
	if summary != nil {
		ppid = summary.PPID
	} else {
		var err error
		if ppid, err = c.inspector.ParentPID(ctx, pid); err != nil {
			return false
		}
	}

	if ppid == 1 {
		return true
	}
	if ppid <= 0 {
		return false
	}
	return !c.inspector.IsAlive(ctx, ppid)
}

// kill escalates from a graceful request to a forced kill.
func (c *controller) kill(ctx context.Context, pid int) {
	if err := c.inspector.Terminate(ctx, pid); err != nil {
		c.logger.Debugw("graceful termination failed", "pid", pid, "error", err)
	}

	deadline := time.Now().Add(_killGrace)
	for time.Now().Before(deadline) {
		if !c.inspector.IsAlive(ctx, pid) {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}

	if err := c.inspector.Kill(ctx, pid); err != nil {
		c.logger.Warnw("forced kill failed", "pid", pid, "error", err)
	}
}

func (c *controller) isDeepnoteRelated(command string) bool {
	for _, marker := range c.cfg.Markers {
		if marker != "" && strings.Contains(command, marker) {
			return true
		}
	}
	return false
}
