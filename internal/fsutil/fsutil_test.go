package fsutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMetaFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "root.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.json"), 0o755))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	got := map[string]bool{}
	for _, e := range entries {
		ok, err := IsMetaFile(e)
		require.NoError(t, err)
		got[e.Name()] = ok
	}
	assert.True(t, got["root.json"])
	assert.False(t, got["notes.txt"])
	assert.False(t, got["sub.json"])
}

func TestEnsurePermission(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file mode bits are not meaningful on windows")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "f.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.NoError(t, EnsurePermission(fi, 0o644))
	assert.NoError(t, EnsurePermission(fi, 0o664))
	assert.ErrorIs(t, EnsurePermission(fi, 0o600), ErrPermission)
}
