package fsx

import (
	"os"
	"path/filepath"
)

// DataDirEnvVar is the only environment variable the core consults
// directly (spec.md §6.4). Collaborators such as workflow providers may
// read their own environment variables, but the core never does.
const DataDirEnvVar = "WORKRAIL_DATA_DIR"

// DataDir resolves the WorkRail-owned data root and the fixed subdirectory
// layout beneath it (spec.md §6.1). It is not the caller's project
// directory: by default it lives under the user's home directory, entirely
// outside any project tree, and can only be overridden by
// DataDirEnvVar.
type DataDir struct {
	Root string
}

// Resolve returns the DataDir for the current process environment,
// honoring DataDirEnvVar when set.
func Resolve() (DataDir, error) {
	if v := os.Getenv(DataDirEnvVar); v != "" {
		return DataDir{Root: v}, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return DataDir{}, &Error{Code: CodeIO, Op: "resolve_data_dir", Path: "$HOME", Err: err}
	}
	return DataDir{Root: filepath.Join(home, ".workrail", "data")}, nil
}

// EnsureLayout creates the fixed top-level subdirectories if absent.
func (d DataDir) EnsureLayout(fs FS) error {
	for _, sub := range []string{"sessions", "snapshots", "keys", filepath.Join("workflows", "pinned")} {
		if err := fs.MkdirAll(filepath.Join(d.Root, sub)); err != nil {
			return err
		}
	}
	return nil
}

// SessionDir returns the directory owned by the given session.
func (d DataDir) SessionDir(sessionID string) string {
	return filepath.Join(d.Root, "sessions", sessionID)
}

// SessionEventsDir returns the directory holding a session's segment files.
func (d DataDir) SessionEventsDir(sessionID string) string {
	return filepath.Join(d.SessionDir(sessionID), "events")
}

// SessionManifestPath returns the path of a session's manifest file.
func (d DataDir) SessionManifestPath(sessionID string) string {
	return filepath.Join(d.SessionDir(sessionID), "manifest.jsonl")
}

// SessionLockPath returns the path of a session's lock file.
func (d DataDir) SessionLockPath(sessionID string) string {
	return filepath.Join(d.SessionDir(sessionID), "lock")
}

// SnapshotsRoot returns the root of the content-addressed snapshot store.
func (d DataDir) SnapshotsRoot() string {
	return filepath.Join(d.Root, "snapshots")
}

// PinnedWorkflowsRoot returns the root of the content-addressed pinned
// workflow store.
func (d DataDir) PinnedWorkflowsRoot() string {
	return filepath.Join(d.Root, "workflows", "pinned")
}

// KeyringPath returns the path of the HMAC keyring file.
func (d DataDir) KeyringPath() string {
	return filepath.Join(d.Root, "keys", "keyring.json")
}

// CASPath derives the on-disk path for a sha256 hex digest rooted at root,
// splitting it into <aa>/<bb>/<hex> as spec.md §3.4/§6.1 requires.
func CASPath(root, hexDigest string) string {
	if len(hexDigest) < 4 {
		return filepath.Join(root, hexDigest)
	}
	return filepath.Join(root, hexDigest[0:2], hexDigest[2:4], hexDigest)
}
