package executor

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides a module to inject using fx.
var Module = fx.Options(
	fx.Provide(func(logger *zap.SugaredLogger) Executor {
		return NewExecutor(WithLogger(logger))
	}),
)

// Executor wraps the execution of subprocesses to allow adding logs to each
// exec and makes it easier to test. Run covers short-lived utility
// invocations (pip, venv creation, platform process tools); Spawn covers the
// long-running toolkit server itself.
type Executor interface {

	// Run - logs and executes the command, returning its captured output.
	Run(ctx context.Context, name string, args []string, opts RunOpts) (stdout string, stderr string, exitCode int, err error)
	// Spawn - logs and starts a long-running command without waiting for it.
	Spawn(ctx context.Context, name string, args []string, opts SpawnOpts) (Handle, error)
}

// RunOpts customizes a short-lived invocation.
type RunOpts struct {
	Env []string
	Dir string
}

// SpawnOpts customizes a long-running invocation. Stdout/Stderr receive the
// process output as it arrives.
type SpawnOpts struct {
	Env    []string
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
}

// Handle is the caller's grip on a spawned process.
type Handle interface {
	PID() int
	// Signal delivers sig to the process. On platforms without the given
	// signal this falls back to Kill.
	Signal(sig os.Signal) error
	Kill() error
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// Err returns the exit error, valid after Done is closed.
	Err() error
}

// executorImpl implements Executor.
type executorImpl struct {
	logger *zap.SugaredLogger
	// execFunc may be overridden to avoid real execution in tests.
	execFunc func(cmd *exec.Cmd) error
	// startFunc may be overridden to avoid real spawning in tests.
	startFunc func(cmd *exec.Cmd) error
}

// Option defines options to customize executorImpl's behavior.
type Option func(*executorImpl)

// WithLogger overrides the default noop logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(e *executorImpl) {
		e.logger = logger
	}
}

// WithExecFunc provides customized exec behavior for short-lived runs.
func WithExecFunc(execFunc func(cmd *exec.Cmd) error) Option {
	return func(e *executorImpl) {
		e.execFunc = execFunc
	}
}

// WithStartFunc provides customized spawn behavior.
func WithStartFunc(startFunc func(cmd *exec.Cmd) error) Option {
	return func(e *executorImpl) {
		e.startFunc = startFunc
	}
}

// NewExecutor creates an executor with real exec behavior and a noop logger
// unless overridden.
func NewExecutor(opts ...Option) Executor {
	e := &executorImpl{
		logger:    zap.NewNop().Sugar(),
		execFunc:  func(cmd *exec.Cmd) error { return cmd.Run() },
		startFunc: func(cmd *exec.Cmd) error { return cmd.Start() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run logs the invocation and executes it, capturing output.
func (e *executorImpl) Run(ctx context.Context, name string, args []string, opts RunOpts) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = opts.Dir
	if opts.Env != nil {
		cmd.Env = opts.Env
	}

	var stdoutB, stderrB bytes.Buffer
	cmd.Stdout = &stdoutB
	cmd.Stderr = &stderrB

	e.logger.Infow("Exec", "Path", name, "Dir", opts.Dir, "Args", args)
	err := e.execFunc(cmd)

	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	return stdoutB.String(), stderrB.String(), exitCode, err
}

// Spawn logs the invocation and starts it. The returned handle reports exit
// via Done; the context is only consulted before the spawn, it does not
// bind the process lifetime.
func (e *executorImpl) Spawn(ctx context.Context, name string, args []string, opts SpawnOpts) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(name, args...)
	cmd.Dir = opts.Dir
	if opts.Env != nil {
		cmd.Env = opts.Env
	}
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr

	e.logger.Infow("Spawn", "Path", name, "Dir", opts.Dir, "Args", args)
	if err := e.startFunc(cmd); err != nil {
		return nil, err
	}

	h := &handle{cmd: cmd, done: make(chan struct{})}
	go func() {
		h.err = cmd.Wait()
		close(h.done)
	}()
	return h, nil
}

type handle struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func (h *handle) PID() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

func (h *handle) Signal(sig os.Signal) error {
	if h.cmd.Process == nil {
		return nil
	}
	if err := h.cmd.Process.Signal(sig); err != nil {
		return h.cmd.Process.Kill()
	}
	return nil
}

func (h *handle) Kill() error {
	if h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Kill()
}

func (h *handle) Done() <-chan struct{} { return h.done }

func (h *handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}
