// Package trust implements the role-based metadata model used by the
// trustchain client: signed envelopes for the root, timestamp, snapshot and
// targets roles, the key/role registry built from verified root metadata,
// and the length/hash file-info checks that bind one role to the exact bytes
// of another document or target file.
package trust

import (
	"sync"
	"time"
)

// Top level role names.
const (
	RoleRoot      = "root"
	RoleTimestamp = "timestamp"
	RoleSnapshot  = "snapshot"
	RoleTargets   = "targets"
)

// TopLevelRoles lists the top level roles in refresh order.
var TopLevelRoles = []string{RoleRoot, RoleTimestamp, RoleSnapshot, RoleTargets}

// Body constrains the role-specific signed payloads.
type Body interface {
	RootBody | TimestampBody | SnapshotBody | TargetsBody
}

// Envelope is the signed document wrapper shared by all roles.
type Envelope[T Body] struct {
	Signed     T           `json:"signed"`
	Signatures []Signature `json:"signatures"`
}

// Signature is a single signature over the canonical form of Signed.
type Signature struct {
	KeyID     string   `json:"keyid"`
	Signature HexBytes `json:"sig"`
}

// RootBody is the self-describing source of trust: it maps every role to its
// authorized key IDs and signature threshold.
type RootBody struct {
	Type    string               `json:"_type"`
	Version int64                `json:"version"`
	Expires time.Time            `json:"expires"`
	Keys    map[string]*Key      `json:"keys"`
	Roles   map[string]*RoleKeys `json:"roles"`
}

// TimestampBody attests freshness: its only payload is a file-info pointer to
// the current snapshot document.
type TimestampBody struct {
	Type    string               `json:"_type"`
	Version int64                `json:"version"`
	Expires time.Time            `json:"expires"`
	Meta    map[string]*MetaFile `json:"meta"`
}

// SnapshotBody pins the exact version (and optionally length/hashes) of every
// targets-family document currently valid.
type SnapshotBody struct {
	Type    string               `json:"_type"`
	Version int64                `json:"version"`
	Expires time.Time            `json:"expires"`
	Meta    map[string]*MetaFile `json:"meta"`
}

// TargetsBody maps target file paths to their file-info and optionally
// delegates path subsets to child roles.
type TargetsBody struct {
	Type        string                 `json:"_type"`
	Version     int64                  `json:"version"`
	Expires     time.Time              `json:"expires"`
	Targets     map[string]*TargetFile `json:"targets"`
	Delegations *Delegations           `json:"delegations,omitempty"`
}

// RoleKeys is the authorized key set and threshold for one role.
type RoleKeys struct {
	KeyIDs    []string `json:"keyids"`
	Threshold int      `json:"threshold"`
}

// Key is public key material as carried inside root or delegations.
type Key struct {
	Type   string `json:"keytype"`
	Scheme string `json:"scheme"`
	Value  KeyVal `json:"keyval"`

	id     string
	idOnce sync.Once
}

type KeyVal struct {
	PublicKey string `json:"public"`
}

type HexBytes []byte

type Hashes map[string]HexBytes

// MetaFile is the version/length/hash fingerprint one role records for
// another metadata document. Length and hashes are optional.
type MetaFile struct {
	Version int64  `json:"version"`
	Length  int64  `json:"length,omitempty"`
	Hashes  Hashes `json:"hashes,omitempty"`
}

// TargetFile is the length/hash fingerprint for a target file.
type TargetFile struct {
	Length int64  `json:"length"`
	Hashes Hashes `json:"hashes"`
	Path   string `json:"-"`
}

// Delegations is the optional delegation section of a targets document.
type Delegations struct {
	Keys  map[string]*Key `json:"keys"`
	Roles []DelegatedRole `json:"roles"`
}

// DelegatedRole names a child targets role, its keys/threshold and the path
// patterns it is trusted to cover. A terminating delegation forecloses the
// search into sibling delegations once one of its patterns matches.
type DelegatedRole struct {
	Name        string   `json:"name"`
	KeyIDs      []string `json:"keyids"`
	Threshold   int      `json:"threshold"`
	Terminating bool     `json:"terminating"`
	Paths       []string `json:"paths"`
}
