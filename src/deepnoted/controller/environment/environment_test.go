package environment

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/deepnote/deepnoted/src/deepnoted/entity"
	"github.com/deepnote/deepnoted/src/deepnoted/factory"
	"github.com/deepnote/deepnoted/src/deepnoted/internal/errors"
	"github.com/deepnote/deepnoted/src/deepnoted/internal/executor/executormock"
	"github.com/deepnote/deepnoted/src/deepnoted/internal/fs/fsmock"
	"github.com/deepnote/deepnoted/src/deepnoted/internal/pending"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tally "github.com/uber-go/tally/v4"
	"go.uber.org/config"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

const _versionScript = "import deepnote_toolkit; print(deepnote_toolkit.__version__)"

type testDeps struct {
	executor *executormock.MockExecutor
	fs       *fsmock.MockDaemonFS
}

func newTestController(t *testing.T) (Controller, testDeps) {
	ctrl := gomock.NewController(t)
	deps := testDeps{
		executor: executormock.NewMockExecutor(ctrl),
		fs:       fsmock.NewMockDaemonFS(ctrl),
	}

	provider, err := config.NewStaticProvider(map[string]interface{}{
		_configKeyToolkit: map[string]interface{}{
			"packageSpec": "deepnote-toolkit",
		},
	})
	require.NoError(t, err)

	c, err := New(Params{
		Logger:   zap.NewNop().Sugar(),
		Config:   provider,
		Stats:    tally.NoopScope,
		FS:       deps.fs,
		Executor: deps.executor,
		Pending:  pending.NewStore(),
	})
	require.NoError(t, err)
	return c, deps
}

func TestNewRequiresPackageSpec(t *testing.T) {
	provider, err := config.NewStaticProvider(map[string]interface{}{})
	require.NoError(t, err)

	_, err = New(Params{
		Logger:  zap.NewNop().Sugar(),
		Config:  provider,
		Stats:   tally.NoopScope,
		Pending: pending.NewStore(),
	})
	assert.Error(t, err)
}

func TestEnsureAlreadyReady(t *testing.T) {
	c, deps := newTestController(t)
	env := &entity.Environment{ID: "env-1", VenvPath: "/venvs/a", BaseInterpreter: "python3"}
	interpreter := InterpreterPath(env.VenvPath)
	kernelDir := filepath.Join(env.VenvPath, filepath.FromSlash(_kernelDirRelative))

	deps.fs.EXPECT().FileExists(interpreter).Return(true, nil)
	deps.executor.EXPECT().
		Run(gomock.Any(), interpreter, []string{"-c", _versionScript}, gomock.Any()).
		Return("1.4.2\n", "", 0, nil)
	deps.fs.EXPECT().DirExists(kernelDir).Return(true, nil)

	install, err := c.Ensure(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, interpreter, install.InterpreterPath)
	assert.Equal(t, "1.4.2", install.ToolkitVersion)
}

func TestEnsureFullInstall(t *testing.T) {
	c, deps := newTestController(t)
	env := &entity.Environment{ID: "env-1", VenvPath: "/venvs/a", BaseInterpreter: "python3"}
	interpreter := InterpreterPath(env.VenvPath)
	kernelDir := filepath.Join(env.VenvPath, filepath.FromSlash(_kernelDirRelative))

	gomock.InOrder(
		// Not ready yet.
		deps.fs.EXPECT().FileExists(interpreter).Return(false, nil),
		deps.executor.EXPECT().
			Run(gomock.Any(), "python3", []string{"-m", "venv", env.VenvPath}, gomock.Any()).
			Return("", "", 0, nil),
		deps.fs.EXPECT().FileExists(interpreter).Return(true, nil),
		deps.executor.EXPECT().
			Run(gomock.Any(), interpreter, []string{"-m", "pip", "install", "--upgrade", "pip"}, gomock.Any()).
			Return("", "", 0, nil),
		deps.executor.EXPECT().
			Run(gomock.Any(), interpreter, []string{"-m", "pip", "install", "deepnote-toolkit"}, gomock.Any()).
			Return("", "", 0, nil),
		deps.fs.EXPECT().FileExists(interpreter).Return(true, nil),
		deps.executor.EXPECT().
			Run(gomock.Any(), interpreter, []string{"-c", _versionScript}, gomock.Any()).
			Return("2.0.0\n", "", 0, nil),
		deps.fs.EXPECT().DirExists(kernelDir).Return(false, nil),
		deps.executor.EXPECT().
			Run(gomock.Any(), interpreter, []string{"-m", _kernelSpecModule}, gomock.Any()).
			Return("", "", 0, nil),
	)

	install, err := c.Ensure(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", install.ToolkitVersion)
}

func TestEnsureVenvCreationFailure(t *testing.T) {
	c, deps := newTestController(t)
	env := &entity.Environment{ID: "env-1", VenvPath: "/venvs/a", BaseInterpreter: "python3"}
	interpreter := InterpreterPath(env.VenvPath)

	deps.fs.EXPECT().FileExists(interpreter).Return(false, nil)
	deps.executor.EXPECT().
		Run(gomock.Any(), "python3", []string{"-m", "venv", env.VenvPath}, gomock.Any()).
		Return("", "permission denied", 1, errors.New("exit status 1"))
	// The half-created venv is cleared so the next attempt starts clean.
	deps.fs.EXPECT().RemoveAll(env.VenvPath).Return(nil)

	_, err := c.Ensure(context.Background(), env)
	var venvErr *errors.VenvCreationError
	require.ErrorAs(t, err, &venvErr)
	assert.Equal(t, "permission denied", venvErr.Stderr)
}

func TestEnsureCancelledBeforeInstallNeverReportsReady(t *testing.T) {
	c, deps := newTestController(t)
	env := &entity.Environment{ID: "env-1", VenvPath: "/venvs/a", BaseInterpreter: "python3"}
	interpreter := InterpreterPath(env.VenvPath)

	ctx, cancel := context.WithCancel(context.Background())

	gomock.InOrder(
		deps.fs.EXPECT().FileExists(interpreter).Return(false, nil),
		// The caller goes away while the venv is being created.
		deps.executor.EXPECT().
			Run(gomock.Any(), "python3", []string{"-m", "venv", env.VenvPath}, gomock.Any()).
			DoAndReturn(func(context.Context, string, []string, interface{}) (string, string, int, error) {
				cancel()
				return "", "", 0, nil
			}),
		deps.fs.EXPECT().FileExists(interpreter).Return(true, nil),
	)

	install, err := c.Ensure(ctx, env)
	assert.ErrorIs(t, err, errors.ErrOperationCancelled)
	assert.Nil(t, install)
}

func TestEnsureToolkitInstallFailure(t *testing.T) {
	c, deps := newTestController(t)
	env := &entity.Environment{ID: "env-1", VenvPath: "/venvs/a", BaseInterpreter: "python3"}
	interpreter := InterpreterPath(env.VenvPath)

	gomock.InOrder(
		deps.fs.EXPECT().FileExists(interpreter).Return(false, nil),
		deps.executor.EXPECT().
			Run(gomock.Any(), "python3", []string{"-m", "venv", env.VenvPath}, gomock.Any()).
			Return("", "", 0, nil),
		deps.fs.EXPECT().FileExists(interpreter).Return(true, nil),
		deps.executor.EXPECT().
			Run(gomock.Any(), interpreter, []string{"-m", "pip", "install", "--upgrade", "pip"}, gomock.Any()).
			Return("", "", 0, nil),
		deps.executor.EXPECT().
			Run(gomock.Any(), interpreter, []string{"-m", "pip", "install", "deepnote-toolkit"}, gomock.Any()).
			Return("", "no matching distribution", 1, errors.New("exit status 1")),
	)

	_, err := c.Ensure(context.Background(), env)
	var installErr *errors.ToolkitInstallError
	require.ErrorAs(t, err, &installErr)
	assert.Equal(t, "deepnote-toolkit", installErr.PackageSpec)
}

func TestEnsureCoalescesConcurrentCalls(t *testing.T) {
	c, deps := newTestController(t)
	env := &entity.Environment{ID: "env-1", VenvPath: "/venvs/a", BaseInterpreter: "python3"}
	interpreter := InterpreterPath(env.VenvPath)
	kernelDir := filepath.Join(env.VenvPath, filepath.FromSlash(_kernelDirRelative))

	started := make(chan struct{})
	release := make(chan struct{})

	// The owner's readiness check runs exactly once; the second caller must
	// share its result rather than re-running the install.
	deps.fs.EXPECT().FileExists(interpreter).Return(true, nil).Times(1)
	deps.executor.EXPECT().
		Run(gomock.Any(), interpreter, []string{"-c", _versionScript}, gomock.Any()).
		DoAndReturn(func(context.Context, string, []string, interface{}) (string, string, int, error) {
			close(started)
			<-release
			return "1.0.0\n", "", 0, nil
		}).Times(1)
	deps.fs.EXPECT().DirExists(kernelDir).Return(true, nil).Times(1)

	var wg sync.WaitGroup
	results := make([]*entity.ToolkitInstall, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		install, err := c.Ensure(context.Background(), env)
		assert.NoError(t, err)
		results[0] = install
	}()

	<-started
	wg.Add(1)
	go func() {
		defer wg.Done()
		install, err := c.Ensure(context.Background(), env)
		assert.NoError(t, err)
		results[1] = install
	}()

	close(release)
	wg.Wait()

	require.NotNil(t, results[0])
	assert.Same(t, results[0], results[1])
}

func TestEnsureFailureIsNotSharedWithWaiters(t *testing.T) {
	c, deps := newTestController(t)
	env := &entity.Environment{ID: "env-1", VenvPath: "/venvs/a", BaseInterpreter: "python3"}
	interpreter := InterpreterPath(env.VenvPath)
	kernelDir := filepath.Join(env.VenvPath, filepath.FromSlash(_kernelDirRelative))

	started := make(chan struct{})
	release := make(chan struct{})

	gomock.InOrder(
		// First caller: toolkit install fails.
		deps.fs.EXPECT().FileExists(interpreter).
			DoAndReturn(func(string) (bool, error) {
				close(started)
				<-release
				return false, nil
			}),
		deps.executor.EXPECT().
			Run(gomock.Any(), "python3", []string{"-m", "venv", env.VenvPath}, gomock.Any()).
			Return("", "", 0, nil),
		deps.fs.EXPECT().FileExists(interpreter).Return(true, nil),
		deps.executor.EXPECT().
			Run(gomock.Any(), interpreter, []string{"-m", "pip", "install", "--upgrade", "pip"}, gomock.Any()).
			Return("", "", 0, nil),
		deps.executor.EXPECT().
			Run(gomock.Any(), interpreter, []string{"-m", "pip", "install", "deepnote-toolkit"}, gomock.Any()).
			Return("", "no matching distribution", 1, errors.New("exit status 1")),
		// Second caller observes the failure and runs its own attempt.
		deps.fs.EXPECT().FileExists(interpreter).Return(true, nil),
		deps.executor.EXPECT().
			Run(gomock.Any(), interpreter, []string{"-c", _versionScript}, gomock.Any()).
			Return("3.0.0\n", "", 0, nil),
		deps.fs.EXPECT().DirExists(kernelDir).Return(true, nil),
	)

	var wg sync.WaitGroup
	var ownerErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, ownerErr = c.Ensure(context.Background(), env)
	}()

	<-started
	var waiterInstall *entity.ToolkitInstall
	var waiterErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		waiterInstall, waiterErr = c.Ensure(context.Background(), env)
	}()

	close(release)
	wg.Wait()

	var installErr *errors.ToolkitInstallError
	require.ErrorAs(t, ownerErr, &installErr)
	require.NoError(t, waiterErr)
	require.NotNil(t, waiterInstall)
	assert.Equal(t, "3.0.0", waiterInstall.ToolkitVersion)
}

func TestInstallAdditionalPackages(t *testing.T) {
	c, deps := newTestController(t)
	env := &entity.Environment{ID: "env-1", VenvPath: "/venvs/a"}
	interpreter := InterpreterPath(env.VenvPath)

	deps.executor.EXPECT().
		Run(gomock.Any(), interpreter, []string{"-m", "pip", "install", "numpy", "pandas"}, gomock.Any()).
		Return("", "", 0, nil)

	assert.NoError(t, c.InstallAdditionalPackages(context.Background(), env, []string{"numpy", "pandas"}))
}

func TestInstallAdditionalPackagesEmptyIsNoop(t *testing.T) {
	c, _ := newTestController(t)
	assert.NoError(t, c.InstallAdditionalPackages(context.Background(), factory.EnvironmentValid("env-1"), nil))
}

func TestInstallAdditionalPackagesFailure(t *testing.T) {
	c, deps := newTestController(t)
	env := &entity.Environment{ID: "env-1", VenvPath: "/venvs/a"}
	interpreter := InterpreterPath(env.VenvPath)

	deps.executor.EXPECT().
		Run(gomock.Any(), interpreter, []string{"-m", "pip", "install", "leftpad"}, gomock.Any()).
		Return("", "no matching distribution", 1, errors.New("exit status 1"))

	err := c.InstallAdditionalPackages(context.Background(), env, []string{"leftpad"})
	var installErr *errors.ToolkitInstallError
	require.ErrorAs(t, err, &installErr)
	assert.Equal(t, "leftpad", installErr.PackageSpec)
}
