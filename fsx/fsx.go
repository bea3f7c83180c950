// Package fsx is the filesystem port: the small, fallible set of primitives
// the durable-execution core needs from a POSIX-style filesystem. Every
// other package in this module reaches the disk exclusively through this
// interface, so that crash-consistency tests can swap in a fault-injecting
// implementation without touching store logic.
package fsx

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

// Code classifies filesystem failures into the closed set the core
// distinguishes between. Callers should use errors.Is against the
// package-level sentinels rather than inspecting Code directly.
type Code string

const (
	// CodeNotFound indicates the target path does not exist.
	CodeNotFound Code = "FS_NOT_FOUND"
	// CodeExists indicates an exclusive-create target already exists.
	CodeExists Code = "FS_EXISTS"
	// CodeIO indicates a transient or unclassified I/O failure.
	CodeIO Code = "FS_IO_ERROR"
	// CodePermission indicates the process lacks permission for the operation.
	CodePermission Code = "FS_PERMISSION"
)

// Error wraps an underlying OS error with a closed Code classification.
type Error struct {
	Code Code
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Op + " " + e.Path + ": " + string(e.Code) + ": " + e.Err.Error()
	}
	return e.Op + " " + e.Path + ": " + string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

var (
	// ErrNotFound matches any Error with Code == CodeNotFound.
	ErrNotFound = errors.New("fsx: not found")
	// ErrExists matches any Error with Code == CodeExists.
	ErrExists = errors.New("fsx: already exists")
)

// Is implements the errors.Is protocol so that errors.Is(err, ErrNotFound)
// and errors.Is(err, ErrExists) classify Error values by Code.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Code == CodeNotFound
	case ErrExists:
		return e.Code == CodeExists
	}
	return false
}

func liftErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	code := CodeIO
	switch {
	case os.IsNotExist(err):
		code = CodeNotFound
	case os.IsExist(err):
		code = CodeExists
	case os.IsPermission(err):
		code = CodePermission
	}
	return &Error{Code: code, Op: op, Path: path, Err: err}
}

// AppendHandle is an open handle to a file opened for exclusive sequential
// appends. Callers must Close it; Close does not fsync, so callers that
// need durability call Sync first.
type AppendHandle struct {
	f *os.File
}

// FS is the set of filesystem primitives the durable-execution core
// depends on. LocalFS is the only production implementation; tests may
// substitute a fault-injecting stand-in.
type FS interface {
	// MkdirAll creates dir and any missing parents.
	MkdirAll(dir string) error
	// ReadFile reads the full contents of path.
	ReadFile(path string) ([]byte, error)
	// WriteFileAtomic durably replaces path's contents: write to a sibling
	// temp file, fsync the temp file, rename over path, fsync path's parent
	// directory. The write is all-or-nothing with respect to crashes.
	WriteFileAtomic(path string, data []byte, perm os.FileMode) error
	// OpenAppend opens path for appending, creating it if absent.
	OpenAppend(path string, perm os.FileMode) (*AppendHandle, error)
	// OpenExclusive creates path, failing with ErrExists if it is already present.
	OpenExclusive(path string, perm os.FileMode) (*os.File, error)
	// FsyncDir fsyncs the directory entry at dir (so a prior rename/create
	// within it is durable).
	FsyncDir(dir string) error
	// Rename atomically renames oldPath to newPath.
	Rename(oldPath, newPath string) error
	// Unlink removes path. Removing an absent path is not an error.
	Unlink(path string) error
	// Stat returns os.Stat(path), lifted into a fsx.Error on failure.
	Stat(path string) (os.FileInfo, error)
}

// LocalFS implements FS against the local POSIX filesystem.
type LocalFS struct{}

// New returns the local filesystem implementation.
func New() FS { return LocalFS{} }

func (LocalFS) MkdirAll(dir string) error {
	return liftErr("mkdir_all", dir, os.MkdirAll(dir, 0o755))
}

func (LocalFS) ReadFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, liftErr("read_file", path, err)
	}
	return b, nil
}

func (LocalFS) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return liftErr("write_file_atomic:create_temp", path, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }() // no-op once renamed away

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return liftErr("write_file_atomic:write", path, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return liftErr("write_file_atomic:chmod", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return liftErr("write_file_atomic:fsync_file", path, err)
	}
	if err := tmp.Close(); err != nil {
		return liftErr("write_file_atomic:close", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return liftErr("write_file_atomic:rename", path, err)
	}
	if err := fsyncDir(dir); err != nil {
		return liftErr("write_file_atomic:fsync_dir", dir, err)
	}
	return nil
}

func (LocalFS) OpenAppend(path string, perm os.FileMode) (*AppendHandle, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, perm)
	if err != nil {
		return nil, liftErr("open_append", path, err)
	}
	return &AppendHandle{f: f}, nil
}

// WriteAll writes p to the handle without fsyncing.
func (h *AppendHandle) WriteAll(p []byte) error {
	_, err := h.f.Write(p)
	if err != nil {
		return liftErr("append:write", h.f.Name(), err)
	}
	return nil
}

// Sync fsyncs the underlying file.
func (h *AppendHandle) Sync() error {
	return liftErr("append:fsync_file", h.f.Name(), h.f.Sync())
}

// Close closes the underlying file without an implicit fsync; callers that
// need durability must call Sync first.
func (h *AppendHandle) Close() error {
	return liftErr("append:close", h.f.Name(), h.f.Close())
}

func (LocalFS) OpenExclusive(path string, perm os.FileMode) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
	if err != nil {
		return nil, liftErr("open_exclusive", path, err)
	}
	return f, nil
}

func (LocalFS) FsyncDir(dir string) error {
	return liftErr("fsync_dir", dir, fsyncDir(dir))
}

func fsyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()
	if err := d.Sync(); err != nil {
		// Some platforms (notably certain overlay/network filesystems)
		// return ENOTSUP/EINVAL for directory fsync. The append/rename
		// protocol already guarantees file-level durability in that case;
		// treat directory fsync failure on those filesystems as best
		// effort rather than fatal.
		if errors.Is(err, syscall.EINVAL) || errors.Is(err, errors.ErrUnsupported) {
			return nil
		}
		return err
	}
	return nil
}

func (LocalFS) Rename(oldPath, newPath string) error {
	return liftErr("rename", oldPath+" -> "+newPath, os.Rename(oldPath, newPath))
}

func (LocalFS) Unlink(path string) error {
	err := os.Remove(path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return liftErr("unlink", path, err)
}

func (LocalFS) Stat(path string) (os.FileInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, liftErr("stat", path, err)
	}
	return fi, nil
}

// ReadAllFrom reads r fully, lifting any failure into an fsx.Error tagged
// with op/path for callers streaming segment files rather than reading
// them whole via ReadFile.
func ReadAllFrom(op, path string, r io.Reader) ([]byte, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, liftErr(op, path, err)
	}
	return b, nil
}
