package fs

import (
	"io/fs"
	"os"

	"go.uber.org/fx"
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// DaemonFS wraps the filesystem operations used by the daemon, so that
// venv, kernel-spec and lock-file handling can be tested without a disk.
type DaemonFS interface {
	TempDir() string
	MkdirAll(path string) error
	DirExists(path string) (bool, error)
	FileExists(path string) (bool, error)
	ReadDir(name string) ([]fs.DirEntry, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte) error
	Remove(name string) error
	RemoveAll(path string) error
}

type fsImpl struct{}

// New creates a new DaemonFS.
func New() DaemonFS {
	return fsImpl{}
}

// TempDir returns the OS temp directory.
func (fsImpl) TempDir() string { return os.TempDir() }

// MkdirAll creates a directory and all its parents.
func (fsImpl) MkdirAll(path string) error { return os.MkdirAll(path, os.ModePerm) }

func (fsImpl) DirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

func (fsImpl) FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

// ReadDir reads all the items in a directory (non-recursive).
func (fsImpl) ReadDir(name string) ([]fs.DirEntry, error) {
	return os.ReadDir(name)
}

func (fsImpl) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

func (fsImpl) WriteFile(name string, data []byte) error {
	return os.WriteFile(name, data, 0644)
}

func (fsImpl) Remove(name string) error {
	return os.Remove(name)
}

func (fsImpl) RemoveAll(path string) error {
	return os.RemoveAll(path)
}
