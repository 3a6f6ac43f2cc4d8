// Package config holds the updater configuration: download ceilings,
// rotation and delegation bounds, timeouts, the mirror list and the
// injectable transport and clock.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sumanth8495/trustchain/fetcher"
	"github.com/sumanth8495/trustchain/mirrors"
)

type Config struct {
	// RootBytes is the initial, out-of-band trusted root metadata.
	RootBytes []byte

	Mirrors []mirrors.Mirror

	LocalMetadataDir string
	LocalTargetsDir  string

	MaxRootRotations int64
	MaxDelegations   int

	RootMaxLength      int64
	TimestampMaxLength int64
	SnapshotMaxLength  int64
	TargetsMaxLength   int64

	FetchTimeout time.Duration

	// Fetcher overrides the transport, used by tests to serve metadata from
	// memory.
	Fetcher fetcher.Fetcher

	// Now overrides the reference time for expiration checks.
	Now func() time.Time
}

// New creates a Config with the default ceilings and an HTTP transport.
func New(rootBytes []byte, mirrorList []mirrors.Mirror) *Config {
	return &Config{
		RootBytes:          rootBytes,
		Mirrors:            mirrorList,
		MaxRootRotations:   32,
		MaxDelegations:     32,
		RootMaxLength:      512000,  // bytes
		TimestampMaxLength: 16384,   // bytes
		SnapshotMaxLength:  2000000, // bytes
		TargetsMaxLength:   5000000, // bytes
		FetchTimeout:       15 * time.Second,
		Fetcher:            &fetcher.HTTPFetcher{MaxRetries: 2},
	}
}

// mirrorsFile is the on-disk YAML shape:
//
//	mirrors:
//	  - url_prefix: https://example.com/repo
//	    metadata_path: metadata
//	    targets_path: targets
type mirrorsFile struct {
	Mirrors []mirrors.Mirror `yaml:"mirrors"`
}

// LoadMirrors reads an ordered mirror list from a YAML file.
func LoadMirrors(path string) ([]mirrors.Mirror, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var mf mirrorsFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, err
	}
	return mf.Mirrors, nil
}
