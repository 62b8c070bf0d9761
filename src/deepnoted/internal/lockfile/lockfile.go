// Package lockfile persists which host session owns which toolkit server
// process. One JSON file per pid lives in a shared temp directory; a record
// whose session id differs from ours marks a process spawned by another
// (possibly dead) session. Lock files are a best-effort cross-restart
// ownership oracle, not a concurrency primitive; every operation here logs
// failures and carries on.
package lockfile

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/deepnote/deepnoted/src/deepnoted/entity"
	"github.com/deepnote/deepnoted/src/deepnoted/factory"
	"github.com/deepnote/deepnoted/src/deepnoted/internal/fs"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	_configKeyLockDir = "lockDir"
	_lockDirName      = "deepnote-locks"
	_filePrefix       = "server-"
	_fileSuffix       = ".json"
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// Registry reads and writes per-pid ownership records.
type Registry interface {
	// SessionID is the UUID identifying this host process; every record the
	// process writes carries it.
	SessionID() string
	// Write records this session's ownership of pid.
	Write(pid int)
	// Read returns the record for pid, or nil if absent or unreadable.
	Read(pid int) *entity.LockFileRecord
	// Delete removes the record for pid.
	Delete(pid int)
	// List returns every readable record in the lock directory.
	List() []*entity.LockFileRecord
}

// Params define values to be used by the Registry.
type Params struct {
	fx.In

	Config    config.Provider
	Lifecycle fx.Lifecycle
	Logger    *zap.SugaredLogger
	FS        fs.DaemonFS
}

type registry struct {
	dir       string
	sessionID string
	logger    *zap.SugaredLogger
	fs        fs.DaemonFS

	mu      sync.Mutex
	cache   map[int]*entity.LockFileRecord
	watcher *fsnotify.Watcher
}

// New creates a Registry rooted at the configured lock directory, creating
// it if needed, and starts a directory watcher that keeps the in-memory
// cache of peer records fresh.
func New(p Params) (Registry, error) {
	var dir string
	if err := p.Config.Get(_configKeyLockDir).Populate(&dir); err != nil {
		return nil, fmt.Errorf("getting config field %q: %w", _configKeyLockDir, err)
	}
	if dir == "" {
		dir = filepath.Join(p.FS.TempDir(), _lockDirName)
	}
	if err := p.FS.MkdirAll(dir); err != nil {
		return nil, fmt.Errorf("creating lock directory %q: %w", dir, err)
	}

	r := &registry{
		dir:       dir,
		sessionID: factory.UUID().String(),
		logger:    p.Logger.With("component", "lockfile"),
		fs:        p.FS,
		cache:     make(map[int]*entity.LockFileRecord),
	}

	if err := r.startWatcher(); err != nil {
		// Watcher is an optimization only; fall back to uncached reads.
		r.logger.Warnw("lock directory watcher unavailable", "error", err)
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error { return r.close() },
	})

	return r, nil
}

func (r *registry) SessionID() string { return r.sessionID }

func (r *registry) Write(pid int) {
	record := &entity.LockFileRecord{
		SessionID: r.sessionID,
		PID:       pid,
		Timestamp: time.Now().UnixMilli(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		r.logger.Warnw("marshalling lock record", "pid", pid, "error", err)
		return
	}
	if err := r.fs.WriteFile(r.path(pid), data); err != nil {
		r.logger.Warnw("writing lock file", "pid", pid, "error", err)
		return
	}

	r.mu.Lock()
	r.cache[pid] = record
	r.mu.Unlock()
}

func (r *registry) Read(pid int) *entity.LockFileRecord {
	r.mu.Lock()
	if record, ok := r.cache[pid]; ok && r.watcher != nil {
		r.mu.Unlock()
		return record
	}
	r.mu.Unlock()

	record := r.readFile(r.path(pid))
	if record == nil {
		return nil
	}

	r.mu.Lock()
	r.cache[pid] = record
	r.mu.Unlock()
	return record
}

func (r *registry) Delete(pid int) {
	if err := r.fs.Remove(r.path(pid)); err != nil {
		r.logger.Debugw("removing lock file", "pid", pid, "error", err)
	}
	r.mu.Lock()
	delete(r.cache, pid)
	r.mu.Unlock()
}

func (r *registry) List() []*entity.LockFileRecord {
	entries, err := r.fs.ReadDir(r.dir)
	if err != nil {
		r.logger.Warnw("listing lock directory", "dir", r.dir, "error", err)
		return nil
	}

	records := make([]*entity.LockFileRecord, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, _filePrefix) || !strings.HasSuffix(name, _fileSuffix) {
			continue
		}
		if record := r.readFile(filepath.Join(r.dir, name)); record != nil {
			records = append(records, record)
		}
	}
	return records
}

func (r *registry) path(pid int) string {
	return filepath.Join(r.dir, _filePrefix+strconv.Itoa(pid)+_fileSuffix)
}

func (r *registry) readFile(path string) *entity.LockFileRecord {
	data, err := r.fs.ReadFile(path)
	if err != nil {
		return nil
	}
	var record entity.LockFileRecord
	if err := json.Unmarshal(data, &record); err != nil {
		// Corrupt lock files are ignored, not fatal.
		r.logger.Debugw("unreadable lock file", "path", path, "error", err)
		return nil
	}
	return &record
}

// startWatcher invalidates cached records when another session creates or
// removes lock files under the shared directory.
func (r *registry) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(r.dir); err != nil {
		watcher.Close()
		return err
	}
	r.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				r.invalidate(event.Name)
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}

func (r *registry) invalidate(path string) {
	name := filepath.Base(path)
	if !strings.HasPrefix(name, _filePrefix) || !strings.HasSuffix(name, _fileSuffix) {
		return
	}
	pid, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, _filePrefix), _fileSuffix))
	if err != nil {
		return
	}
	r.mu.Lock()
	delete(r.cache, pid)
	r.mu.Unlock()
}

func (r *registry) close() error {
	if r.watcher == nil {
		return nil
	}
	return r.watcher.Close()
}
