package lockfile

import (
	"path/filepath"
	"testing"

	"github.com/deepnote/deepnoted/src/deepnoted/internal/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/config"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func newTestRegistry(t *testing.T) Registry {
	provider, err := config.NewStaticProvider(map[string]interface{}{
		_configKeyLockDir: filepath.Join(t.TempDir(), "locks"),
	})
	require.NoError(t, err)

	lc := fxtest.NewLifecycle(t)
	r, err := New(Params{
		Config:    provider,
		Lifecycle: lc,
		Logger:    zap.NewNop().Sugar(),
		FS:        fs.New(),
	})
	require.NoError(t, err)
	lc.RequireStart()
	t.Cleanup(lc.RequireStop)
	return r
}

func TestWriteReadDelete(t *testing.T) {
	r := newTestRegistry(t)

	assert.Nil(t, r.Read(4242))

	r.Write(4242)
	record := r.Read(4242)
	require.NotNil(t, record)
	assert.Equal(t, r.SessionID(), record.SessionID)
	assert.Equal(t, 4242, record.PID)
	assert.NotZero(t, record.Timestamp)

	r.Delete(4242)
	assert.Nil(t, r.Read(4242))
}

func TestList(t *testing.T) {
	r := newTestRegistry(t)

	r.Write(100)
	r.Write(200)

	records := r.List()
	require.Len(t, records, 2)
	pids := map[int]bool{}
	for _, record := range records {
		pids[record.PID] = true
		assert.Equal(t, r.SessionID(), record.SessionID)
	}
	assert.True(t, pids[100])
	assert.True(t, pids[200])
}

func TestListSkipsUnrelatedFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "locks")
	provider, err := config.NewStaticProvider(map[string]interface{}{
		_configKeyLockDir: dir,
	})
	require.NoError(t, err)

	lc := fxtest.NewLifecycle(t)
	daemonFS := fs.New()
	r, err := New(Params{
		Config:    provider,
		Lifecycle: lc,
		Logger:    zap.NewNop().Sugar(),
		FS:        daemonFS,
	})
	require.NoError(t, err)
	lc.RequireStart()
	defer lc.RequireStop()

	r.Write(300)
	require.NoError(t, daemonFS.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi")))
	require.NoError(t, daemonFS.WriteFile(filepath.Join(dir, "server-bad.json"), []byte("{not json")))

	records := r.List()
	require.Len(t, records, 1)
	assert.Equal(t, 300, records[0].PID)
}

func TestSessionIDsDiffer(t *testing.T) {
	a := newTestRegistry(t)
	b := newTestRegistry(t)
	assert.NotEqual(t, a.SessionID(), b.SessionID())
}
