// Package environment implements the venv installer: it brings a Python
// virtual environment to the point where the Deepnote toolkit is importable
// and its kernel spec registered, idempotently and safely under concurrent
// callers.
package environment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/deepnote/deepnoted/src/deepnoted/entity"
	"github.com/deepnote/deepnoted/src/deepnoted/internal/errors"
	"github.com/deepnote/deepnoted/src/deepnoted/internal/executor"
	"github.com/deepnote/deepnoted/src/deepnoted/internal/fs"
	"github.com/deepnote/deepnoted/src/deepnoted/internal/pending"
	tally "github.com/uber-go/tally/v4"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

const (
	_nameKey = "environment"

	_configKeyToolkit = "toolkit"

	_toolkitModule     = "deepnote_toolkit"
	_kernelSpecModule  = "deepnote_toolkit.install_kernel_spec"
	_kernelDirRelative = "share/jupyter/kernels/deepnote"

	// Set while pip runs so the toolkit's dependency constraints are
	// enforced inside the venv.
	_envConstraintMarker = "DEEPNOTE_ENFORCE_CONSTRAINTS=1"
)

// ToolkitConfig is the toolkit package configuration block.
type ToolkitConfig struct {
	// PackageSpec is what pip installs, e.g. "deepnote-toolkit==1.4.2" or a
	// wheel URL.
	PackageSpec string `yaml:"packageSpec"`
}

// Controller ensures environments are installed and ready.
type Controller interface {
	// Ensure makes the environment's venv ready: interpreter present,
	// toolkit importable, kernel spec registered. Idempotent; concurrent
	// calls for the same venv path coalesce.
	Ensure(ctx context.Context, env *entity.Environment) (*entity.ToolkitInstall, error)
	// InstallAdditionalPackages installs user-requested packages into the
	// venv, serialized against Ensure on the same venv path.
	InstallAdditionalPackages(ctx context.Context, env *entity.Environment, packages []string) error
}

// Params are inbound parameters to initialize a new controller.
type Params struct {
	fx.In

	Logger   *zap.SugaredLogger
	Config   config.Provider
	Stats    tally.Scope
	FS       fs.DaemonFS
	Executor executor.Executor
	Pending  *pending.Store
}

type controller struct {
	toolkit  ToolkitConfig
	logger   *zap.SugaredLogger
	stats    tally.Scope
	fs       fs.DaemonFS
	executor executor.Executor
	pending  *pending.Store
}

// New creates a new controller for environment installs.
func New(p Params) (Controller, error) {
	toolkit := ToolkitConfig{}
	if err := p.Config.Get(_configKeyToolkit).Populate(&toolkit); err != nil {
		return nil, fmt.Errorf("getting configuration for %q: %w", _configKeyToolkit, err)
	}
	if toolkit.PackageSpec == "" {
		return nil, fmt.Errorf("missing %q.packageSpec in config", _configKeyToolkit)
	}
	return &controller{
		toolkit:  toolkit,
		logger:   p.Logger.With("component", _nameKey),
		stats:    p.Stats.SubScope("environment_ctrl"),
		fs:       p.FS,
		executor: p.Executor,
		pending:  p.Pending,
	}, nil
}

// Ensure coalesces concurrent installs for one venv path: the second caller
// shares a successful in-flight result, and re-attempts after observing a
// failure rather than caching it.
func (c *controller) Ensure(ctx context.Context, env *entity.Environment) (*entity.ToolkitInstall, error) {
	for {
		op, owner := c.pending.Begin(env.VenvPath, pending.KindInstall)
		if owner {
			install, err := c.ensure(ctx, env)
			op.Complete(install, err)
			return install, err
		}

		value, err := op.Await(ctx)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err == nil && op.Kind() == pending.KindInstall {
			return value.(*entity.ToolkitInstall), nil
		}
		// The in-flight operation failed or was unrelated; take a turn.
	}
}

// InstallAdditionalPackages shares the venv-path key with Ensure so package
// installs can never race venv creation.
func (c *controller) InstallAdditionalPackages(ctx context.Context, env *entity.Environment, packages []string) error {
	if len(packages) == 0 {
		return nil
	}
	for {
		op, owner := c.pending.Begin(env.VenvPath, pending.KindExtra)
		if owner {
			err := c.installPackages(ctx, env, packages)
			op.Complete(nil, err)
			return err
		}
		if _, err := op.Await(ctx); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *controller) ensure(ctx context.Context, env *entity.Environment) (*entity.ToolkitInstall, error) {
	interpreter := InterpreterPath(env.VenvPath)

	if ready, version := c.checkReady(ctx, interpreter); ready {
		c.logger.Debugw("venv already ready", "venv", env.VenvPath, "version", version)
		if err := c.ensureKernelSpec(ctx, env.VenvPath, interpreter); err != nil {
			return nil, err
		}
		return &entity.ToolkitInstall{InterpreterPath: interpreter, ToolkitVersion: version}, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.ErrOperationCancelled
	}

	c.stats.Counter("venv_create").Inc(1)
	c.logger.Infow("creating venv", "venv", env.VenvPath, "interpreter", env.BaseInterpreter)
	_, stderr, _, err := c.executor.Run(ctx, env.BaseInterpreter, []string{"-m", "venv", env.VenvPath}, executor.RunOpts{})
	if err != nil {
		c.removePartialVenv(env.VenvPath)
		return nil, &errors.VenvCreationError{Interpreter: env.BaseInterpreter, VenvPath: env.VenvPath, Stderr: stderr}
	}
	if exists, _ := c.fs.FileExists(interpreter); !exists {
		c.removePartialVenv(env.VenvPath)
		return nil, &errors.VenvCreationError{
			Interpreter: env.BaseInterpreter,
			VenvPath:    env.VenvPath,
			Stderr:      fmt.Sprintf("no interpreter at %q after venv creation", interpreter),
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.ErrOperationCancelled
	}

	// Old bundled pips routinely fail to install modern wheels.
	if _, stderr, _, err = c.executor.Run(ctx, interpreter, []string{"-m", "pip", "install", "--upgrade", "pip"}, executor.RunOpts{Env: installEnv()}); err != nil {
		c.logger.Warnw("pip self-upgrade failed, continuing", "venv", env.VenvPath, "stderr", tail(stderr))
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.ErrOperationCancelled
	}

	c.stats.Counter("toolkit_install").Inc(1)
	c.logger.Infow("installing toolkit", "venv", env.VenvPath, "package", c.toolkit.PackageSpec)
	stdout, stderr, _, err := c.executor.Run(ctx, interpreter, []string{"-m", "pip", "install", c.toolkit.PackageSpec}, executor.RunOpts{Env: installEnv()})
	if err != nil {
		return nil, &errors.ToolkitInstallError{PackageSpec: c.toolkit.PackageSpec, VenvPath: env.VenvPath, Stdout: stdout, Stderr: stderr}
	}

	ready, version := c.checkReady(ctx, interpreter)
	if !ready {
		return nil, &errors.ToolkitInstallError{
			PackageSpec: c.toolkit.PackageSpec,
			VenvPath:    env.VenvPath,
			Stdout:      stdout,
			Stderr:      fmt.Sprintf("toolkit not importable after install: %s", tail(stderr)),
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.ErrOperationCancelled
	}

	if err := c.ensureKernelSpec(ctx, env.VenvPath, interpreter); err != nil {
		return nil, err
	}

	c.logger.Infow("venv ready", "venv", env.VenvPath, "version", version)
	return &entity.ToolkitInstall{InterpreterPath: interpreter, ToolkitVersion: version}, nil
}

// checkReady imports the toolkit inside the venv and reads its version.
func (c *controller) checkReady(ctx context.Context, interpreter string) (bool, string) {
	if exists, _ := c.fs.FileExists(interpreter); !exists {
		return false, ""
	}
	script := fmt.Sprintf("import %s; print(%s.__version__)", _toolkitModule, _toolkitModule)
	stdout, _, _, err := c.executor.Run(ctx, interpreter, []string{"-c", script}, executor.RunOpts{})
	if err != nil {
		return false, ""
	}
	version := strings.TrimSpace(stdout)
	return version != "", version
}

// ensureKernelSpec registers the toolkit kernel, skipped when the kernel
// directory already exists.
func (c *controller) ensureKernelSpec(ctx context.Context, venvPath string, interpreter string) error {
	kernelDir := filepath.Join(venvPath, filepath.FromSlash(_kernelDirRelative))
	if exists, _ := c.fs.DirExists(kernelDir); exists {
		return nil
	}

	stdout, stderr, _, err := c.executor.Run(ctx, interpreter, []string{"-m", _kernelSpecModule}, executor.RunOpts{Env: installEnv()})
	if err != nil {
		return &errors.ToolkitInstallError{
			PackageSpec: c.toolkit.PackageSpec,
			VenvPath:    venvPath,
			Stdout:      stdout,
			Stderr:      stderr,
		}
	}
	return nil
}

// removePartialVenv clears a venv directory left behind by a failed
// creation so the next attempt starts from nothing.
func (c *controller) removePartialVenv(venvPath string) {
	if err := c.fs.RemoveAll(venvPath); err != nil {
		c.logger.Warnw("removing partial venv", "venv", venvPath, "error", err)
	}
}

func (c *controller) installPackages(ctx context.Context, env *entity.Environment, packages []string) error {
	if err := ctx.Err(); err != nil {
		return errors.ErrOperationCancelled
	}

	interpreter := InterpreterPath(env.VenvPath)
	c.stats.Counter("extra_packages_install").Inc(1)
	c.logger.Infow("installing additional packages", "venv", env.VenvPath, "packages", packages)

	args := append([]string{"-m", "pip", "install"}, packages...)
	stdout, stderr, _, err := c.executor.Run(ctx, interpreter, args, executor.RunOpts{Env: installEnv()})
	if err != nil {
		return &errors.ToolkitInstallError{
			PackageSpec: strings.Join(packages, " "),
			VenvPath:    env.VenvPath,
			Stdout:      stdout,
			Stderr:      stderr,
		}
	}
	return nil
}

// InterpreterPath returns the conventional per-OS interpreter location
// inside a venv.
func InterpreterPath(venvPath string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(venvPath, "Scripts", "python.exe")
	}
	return filepath.Join(venvPath, "bin", "python")
}

// BinDir returns the venv's executable directory, prepended to PATH when
// spawning the server.
func BinDir(venvPath string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(venvPath, "Scripts")
	}
	return filepath.Join(venvPath, "bin")
}

func installEnv() []string {
	return append(os.Environ(), _envConstraintMarker, "PIP_DISABLE_PIP_VERSION_CHECK=1")
}

func tail(s string) string {
	const max = 500
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
