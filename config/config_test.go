package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumanth8495/trustchain/mirrors"
)

func TestNewDefaults(t *testing.T) {
	root := []byte(`{"signed":{}}`)
	list := []mirrors.Mirror{{URLPrefix: "https://example.com/repo"}}
	cfg := New(root, list)

	assert.Equal(t, root, cfg.RootBytes)
	assert.Equal(t, list, cfg.Mirrors)
	assert.Equal(t, int64(32), cfg.MaxRootRotations)
	assert.Equal(t, 32, cfg.MaxDelegations)
	assert.Equal(t, int64(512000), cfg.RootMaxLength)
	assert.Equal(t, int64(16384), cfg.TimestampMaxLength)
	assert.Equal(t, int64(2000000), cfg.SnapshotMaxLength)
	assert.Equal(t, int64(5000000), cfg.TargetsMaxLength)
	assert.Equal(t, 15*time.Second, cfg.FetchTimeout)
	assert.NotNil(t, cfg.Fetcher)
}

func TestLoadMirrors(t *testing.T) {
	content := `mirrors:
  - url_prefix: https://primary.example/repo
    metadata_path: metadata
    targets_path: targets
  - url_prefix: https://backup.example/repo
`
	path := filepath.Join(t.TempDir(), "mirrors.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	list, err := LoadMirrors(path)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "https://primary.example/repo", list[0].URLPrefix)
	assert.Equal(t, "metadata", list[0].MetadataPath)
	assert.Equal(t, "targets", list[0].TargetsPath)
	assert.Equal(t, "https://backup.example/repo", list[1].URLPrefix)
	assert.Empty(t, list[1].MetadataPath)
}

func TestLoadMirrorsErrors(t *testing.T) {
	_, err := LoadMirrors(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mirrors: {not: [valid"), 0o644))
	_, err = LoadMirrors(path)
	assert.Error(t, err)
}
