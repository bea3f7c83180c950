package fsx_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/workrail/engine/fsx"
)

func TestWriteFileAtomicReplacesContentAndSurvivesRereading(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.jsonl")
	fs := fsx.New()

	require.NoError(t, fs.WriteFileAtomic(path, []byte("v1"), 0o644))
	got, err := fs.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "v1", string(got))

	require.NoError(t, fs.WriteFileAtomic(path, []byte("v2-longer"), 0o644))
	got, err = fs.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "v2-longer", string(got))

	// no leftover temp files
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestOpenExclusiveFailsOnSecondCreate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lock")
	fs := fsx.New()

	f, err := fs.OpenExclusive(path, 0o644)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = fs.OpenExclusive(path, 0o644)
	require.Error(t, err)
	require.True(t, errors.Is(err, fsx.ErrExists))
}

func TestReadFileMissingReturnsNotFound(t *testing.T) {
	fs := fsx.New()
	_, err := fs.ReadFile(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	require.True(t, errors.Is(err, fsx.ErrNotFound))
}

func TestOpenAppendWritesSequentially(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	fs := fsx.New()

	h, err := fs.OpenAppend(path, 0o644)
	require.NoError(t, err)
	require.NoError(t, h.WriteAll([]byte("line1\n")))
	require.NoError(t, h.WriteAll([]byte("line2\n")))
	require.NoError(t, h.Sync())
	require.NoError(t, h.Close())

	got, err := fs.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "line1\nline2\n", string(got))
}

func TestUnlinkMissingIsNotAnError(t *testing.T) {
	fs := fsx.New()
	require.NoError(t, fs.Unlink(filepath.Join(t.TempDir(), "missing")))
}
