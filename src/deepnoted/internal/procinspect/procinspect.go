// Package procinspect isolates the platform-specific process interactions
// needed for orphan cleanup: who listens on a port, who is a process's
// parent, what its command line is, and how to kill it. Callers stay
// platform-agnostic; the implementation is selected at build time.
package procinspect

import (
	"context"

	"github.com/deepnote/deepnoted/src/deepnoted/internal/executor"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// ProcessSummary is one row of a full-process listing.
type ProcessSummary struct {
	PID     int
	PPID    int
	Command string
}

// Inspector answers process questions and delivers signals.
type Inspector interface {
	// ListeningPIDs returns the pids of processes listening on the TCP port.
	ListeningPIDs(ctx context.Context, port int) ([]int, error)
	// ParentPID returns the parent pid, or an error if pid cannot be resolved.
	ParentPID(ctx context.Context, pid int) (int, error)
	// CommandLine returns the full command line of pid.
	CommandLine(ctx context.Context, pid int) (string, error)
	// IsAlive reports whether pid names a live process.
	IsAlive(ctx context.Context, pid int) bool
	// ListAll enumerates all visible processes with their command lines.
	ListAll(ctx context.Context) ([]ProcessSummary, error)
	// Terminate requests a graceful exit.
	Terminate(ctx context.Context, pid int) error
	// Kill forces an exit.
	Kill(ctx context.Context, pid int) error
}

// Params define values to be used by the Inspector.
type Params struct {
	fx.In

	Executor executor.Executor
	Logger   *zap.SugaredLogger
}

// New creates the Inspector for the current platform.
func New(p Params) Inspector {
	return newPlatformInspector(p.Executor, p.Logger.With("component", "procinspect"))
}
