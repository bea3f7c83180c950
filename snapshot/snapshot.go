// Package snapshot implements the content-addressed store (CAS) holding
// engine-state snapshots and pinned workflow definitions (spec.md §3.4).
//
// Writes are write-idempotent: compute the digest, write to a sibling temp
// file, fsync it, atomically rename it into place, fsync the parent
// directory. If the target already exists the write is a no-op — two
// threads racing to write the same digest both succeed because the target
// content is identical (spec.md §5 "shared-resource policy").
package snapshot

import (
	"errors"
	"fmt"

	"github.com/workrail/engine/canon"
	"github.com/workrail/engine/fsx"
)

// ErrNotFound indicates the requested digest is not present in the store.
var ErrNotFound = errors.New("snapshot: not found")

// Store is a content-addressed store rooted at a single directory (either
// the snapshots root or the pinned-workflows root; both share this
// implementation per spec.md §3.4).
type Store struct {
	fs   fsx.FS
	root string
}

// New returns a Store rooted at root. Callers pass the snapshots root for
// execution-snapshot payloads and the pinned-workflows root for workflow
// definitions; the two stores never share a root.
func New(fs fsx.FS, root string) *Store {
	return &Store{fs: fs, root: root}
}

// Put canonicalizes payload, computes its sha256 digest, and durably writes
// it under <root>/<aa>/<bb>/<hex> if not already present. It returns the
// "sha256:<hex>" ref regardless of whether a write occurred.
func (s *Store) Put(payload any) (ref string, err error) {
	ref, b, err := canon.DigestRef(payload)
	if err != nil {
		return "", fmt.Errorf("snapshot: canonicalize: %w", err)
	}
	hexDigest := ref[len("sha256:"):]
	path := fsx.CASPath(s.root, hexDigest)
	dir := path[:len(path)-len(hexDigest)-1]

	if _, err := s.fs.Stat(path); err == nil {
		return ref, nil // already present: no-op write.
	} else if !errors.Is(err, fsx.ErrNotFound) {
		return "", fmt.Errorf("snapshot: stat existing: %w", err)
	}

	if err := s.fs.MkdirAll(dir); err != nil {
		return "", fmt.Errorf("snapshot: mkdir: %w", err)
	}
	if err := s.fs.WriteFileAtomic(path, b, 0o644); err != nil {
		return "", fmt.Errorf("snapshot: write: %w", err)
	}
	return ref, nil
}

// Get reads the canonical bytes stored at ref ("sha256:<hex>").
func (s *Store) Get(ref string) ([]byte, error) {
	hexDigest, err := stripRefPrefix(ref)
	if err != nil {
		return nil, err
	}
	path := fsx.CASPath(s.root, hexDigest)
	b, err := s.fs.ReadFile(path)
	if err != nil {
		if errors.Is(err, fsx.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("snapshot: read: %w", err)
	}
	return b, nil
}

// Has reports whether ref is present in the store.
func (s *Store) Has(ref string) (bool, error) {
	hexDigest, err := stripRefPrefix(ref)
	if err != nil {
		return false, err
	}
	path := fsx.CASPath(s.root, hexDigest)
	_, err = s.fs.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fsx.ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("snapshot: stat: %w", err)
}

func stripRefPrefix(ref string) (string, error) {
	const prefix = "sha256:"
	if len(ref) <= len(prefix) || ref[:len(prefix)] != prefix {
		return "", fmt.Errorf("snapshot: malformed ref %q", ref)
	}
	return ref[len(prefix):], nil
}
