// Package trustedset maintains the collection of currently trusted metadata
// for one repository session. Update methods enforce the ordered client
// workflow: each candidate document is verified against the registry built
// from trusted root, checked for rollback against the previously trusted
// version, bound to the referring role's file-info, and checked for
// expiration on every attempt. A role is installed wholesale or not at all;
// on a snapshot rejection the snapshot and the whole targets family are
// evicted while root and timestamp stay trusted.
package trustedset

import (
	"fmt"
	"sort"
	"time"

	"github.com/sumanth8495/trustchain/trust"
)

// TrustedSet holds the trusted metadata for root, timestamp, snapshot and
// the targets family (top level plus delegated roles, keyed by role name).
type TrustedSet struct {
	Root      *trust.Envelope[trust.RootBody]
	Timestamp *trust.Envelope[trust.TimestampBody]
	Snapshot  *trust.Envelope[trust.SnapshotBody]
	Targets   map[string]*trust.Envelope[trust.TargetsBody]

	// Now supplies the reference time for expiration checks. Injectable so
	// freshness logic is deterministically testable.
	Now func() time.Time

	registry *trust.Registry

	// timestamp's snapshot pointer recorded when snapshot was accepted,
	// used to decide whether a refresh needs to re-download snapshot.
	snapshotInfo *trust.MetaFile
}

// New creates a TrustedSet from initial root metadata obtained through the
// out-of-band trust bootstrap. The initial root must carry its own threshold
// of valid signatures; an expired initial root is accepted here, expiry is
// enforced once the final root for a refresh cycle is established.
func New(rootData []byte) (*TrustedSet, error) {
	ts := &TrustedSet{
		Targets: map[string]*trust.Envelope[trust.TargetsBody]{},
		Now:     func() time.Time { return time.Now().UTC() },
	}
	root, err := trust.Parse[trust.RootBody](rootData)
	if err != nil {
		return nil, err
	}
	db := trust.RegistryFromRoot(&root.Signed)
	if err := trust.VerifyEnvelope(db, trust.RoleRoot, root); err != nil {
		return nil, err
	}
	ts.Root = root
	ts.registry = db
	trust.GetLogger().Info("loaded trusted root", "version", root.Signed.Version)
	return ts, nil
}

// Registry returns the key/role registry in effect, rebuilt only when a new
// root is accepted.
func (ts *TrustedSet) Registry() *trust.Registry {
	return ts.registry
}

// UpdateRoot verifies and installs rootData as the next trusted root. The
// candidate must be version trusted+1 and carry both the previous root's and
// its own signature thresholds. Expiry of intermediate roots is not checked;
// CheckFinalRoot covers the final one.
func (ts *TrustedSet) UpdateRoot(rootData []byte) error {
	root, err := trust.Parse[trust.RootBody](rootData)
	if err != nil {
		return err
	}
	// signed by the trusted root's threshold
	if err := trust.VerifyEnvelope(ts.registry, trust.RoleRoot, root); err != nil {
		return trust.ErrRootRotation{Msg: fmt.Sprintf("new root v%d not signed by trusted root: %v", root.Signed.Version, err)}
	}
	if root.Signed.Version < ts.Root.Signed.Version {
		return trust.ErrRollback{Msg: fmt.Sprintf("new root version %d < trusted version %d", root.Signed.Version, ts.Root.Signed.Version)}
	}
	if root.Signed.Version != ts.Root.Signed.Version+1 {
		return trust.ErrRootRotation{Msg: fmt.Sprintf("bad root version number, expected %d, got %d", ts.Root.Signed.Version+1, root.Signed.Version)}
	}
	// signed by its own threshold
	db := trust.RegistryFromRoot(&root.Signed)
	if err := trust.VerifyEnvelope(db, trust.RoleRoot, root); err != nil {
		return trust.ErrRootRotation{Msg: fmt.Sprintf("new root v%d not signed by itself: %v", root.Signed.Version, err)}
	}
	ts.Root = root
	ts.registry = db
	trust.GetLogger().Info("updated root", "version", root.Signed.Version)
	return nil
}

// CheckFinalRoot errors if the trusted root established for this refresh
// cycle is expired.
func (ts *TrustedSet) CheckFinalRoot() error {
	if ts.Root.Signed.IsExpired(ts.Now()) {
		return trust.ErrExpiredMetadata{Msg: "final root.json is expired"}
	}
	return nil
}

// UpdateTimestamp verifies and installs timestampData as trusted timestamp.
// A candidate with a version equal to the trusted one is re-accepted so that
// expiration is re-validated even when the mirror offers nothing new; a lower
// version is a rollback attack.
func (ts *TrustedSet) UpdateTimestamp(timestampData []byte) error {
	if err := ts.CheckFinalRoot(); err != nil {
		return err
	}
	timestamp, err := trust.Parse[trust.TimestampBody](timestampData)
	if err != nil {
		return err
	}
	if err := trust.VerifyEnvelope(ts.registry, trust.RoleTimestamp, timestamp); err != nil {
		return err
	}
	if ts.Timestamp != nil {
		if timestamp.Signed.Version < ts.Timestamp.Signed.Version {
			return trust.ErrRollback{Msg: fmt.Sprintf(
				"new timestamp version %d < trusted version %d", timestamp.Signed.Version, ts.Timestamp.Signed.Version)}
		}
		oldMeta := ts.Timestamp.Signed.Meta[trust.MetaName(trust.RoleSnapshot)]
		newMeta := timestamp.Signed.Meta[trust.MetaName(trust.RoleSnapshot)]
		if oldMeta != nil && (newMeta == nil || newMeta.Version < oldMeta.Version) {
			return trust.ErrRollback{Msg: fmt.Sprintf(
				"new timestamp rolls back snapshot version %d", oldMeta.Version)}
		}
	}
	if timestamp.Signed.IsExpired(ts.Now()) {
		return trust.ErrExpiredMetadata{Msg: "timestamp.json is expired"}
	}
	ts.Timestamp = timestamp
	trust.GetLogger().Info("updated timestamp", "version", timestamp.Signed.Version)
	return nil
}

// SnapshotMeta returns trusted timestamp's file-info pointer for snapshot.
func (ts *TrustedSet) SnapshotMeta() *trust.MetaFile {
	if ts.Timestamp == nil {
		return nil
	}
	return ts.Timestamp.Signed.Meta[trust.MetaName(trust.RoleSnapshot)]
}

// NeedsSnapshot reports whether timestamp's snapshot pointer differs from the
// file-info recorded when the trusted snapshot was accepted. When it does
// not, a refresh only re-validates the trusted snapshot's expiration.
func (ts *TrustedSet) NeedsSnapshot() bool {
	if ts.Snapshot == nil {
		return true
	}
	return !ts.snapshotInfo.Equal(ts.SnapshotMeta())
}

// CheckSnapshot re-validates the trusted snapshot's expiration without any
// new data being offered. This is the freeze-attack defense: a locally
// trusted but now time-expired snapshot is evicted together with the targets
// family it anchors.
func (ts *TrustedSet) CheckSnapshot() error {
	if ts.Snapshot == nil {
		return trust.ErrRuntime{Msg: "no trusted snapshot to check"}
	}
	if ts.Snapshot.Signed.IsExpired(ts.Now()) {
		ts.evictSnapshot()
		return trust.ErrExpiredMetadata{Msg: "snapshot.json is expired"}
	}
	return nil
}

// checkFinalTimestamp errors if trusted timestamp has expired since it was
// accepted.
func (ts *TrustedSet) checkFinalTimestamp() error {
	if ts.Timestamp.Signed.IsExpired(ts.Now()) {
		return trust.ErrExpiredMetadata{Msg: "timestamp.json is expired"}
	}
	return nil
}

// UpdateSnapshot verifies and installs snapshotData as trusted snapshot. On
// any rejection the currently trusted snapshot and every targets role are
// evicted; root and timestamp stay trusted and a later refresh can recover.
func (ts *TrustedSet) UpdateSnapshot(snapshotData []byte) error {
	if ts.Timestamp == nil {
		return trust.ErrRuntime{Msg: "cannot update snapshot before timestamp"}
	}
	if err := ts.updateSnapshot(snapshotData); err != nil {
		ts.evictSnapshot()
		return err
	}
	return nil
}

func (ts *TrustedSet) updateSnapshot(snapshotData []byte) error {
	if err := ts.checkFinalTimestamp(); err != nil {
		return err
	}
	meta := ts.SnapshotMeta()
	if meta == nil {
		return trust.ErrRepository{Msg: "timestamp does not contain snapshot info"}
	}
	// bind the downloaded bytes to timestamp's pointer
	if err := meta.VerifyLengthHashes(snapshotData); err != nil {
		return err
	}
	snapshot, err := trust.Parse[trust.SnapshotBody](snapshotData)
	if err != nil {
		return err
	}
	if err := trust.VerifyEnvelope(ts.registry, trust.RoleSnapshot, snapshot); err != nil {
		return err
	}
	if snapshot.Signed.Version < meta.Version {
		return trust.ErrRollback{Msg: fmt.Sprintf(
			"new snapshot version %d < version %d declared by timestamp", snapshot.Signed.Version, meta.Version)}
	}
	if snapshot.Signed.Version != meta.Version {
		return trust.ErrRepository{Msg: fmt.Sprintf(
			"expected snapshot version %d, got %d", meta.Version, snapshot.Signed.Version)}
	}
	if ts.Snapshot != nil {
		if snapshot.Signed.Version < ts.Snapshot.Signed.Version {
			return trust.ErrRollback{Msg: fmt.Sprintf(
				"new snapshot version %d < trusted version %d", snapshot.Signed.Version, ts.Snapshot.Signed.Version)}
		}
		for name, info := range ts.Snapshot.Signed.Meta {
			newInfo, ok := snapshot.Signed.Meta[name]
			if !ok {
				return trust.ErrRollback{Msg: fmt.Sprintf("new snapshot is missing info for %s", name)}
			}
			if newInfo.Version < info.Version {
				return trust.ErrRollback{Msg: fmt.Sprintf(
					"new snapshot rolls back %s from version %d to %d", name, info.Version, newInfo.Version)}
			}
		}
	}
	if snapshot.Signed.IsExpired(ts.Now()) {
		return trust.ErrExpiredMetadata{Msg: "snapshot.json is expired"}
	}
	ts.Snapshot = snapshot
	ts.snapshotInfo = meta
	trust.GetLogger().Info("updated snapshot", "version", snapshot.Signed.Version)
	return nil
}

// checkFinalSnapshot errors if trusted snapshot has expired or no longer
// matches timestamp's pointer.
func (ts *TrustedSet) checkFinalSnapshot() error {
	if ts.Snapshot.Signed.IsExpired(ts.Now()) {
		return trust.ErrExpiredMetadata{Msg: "snapshot.json is expired"}
	}
	meta := ts.SnapshotMeta()
	if meta == nil || ts.Snapshot.Signed.Version != meta.Version {
		return trust.ErrRepository{Msg: fmt.Sprintf("snapshot version %d no longer matches timestamp", ts.Snapshot.Signed.Version)}
	}
	return nil
}

// TargetsMeta returns trusted snapshot's file-info for the named targets
// family role.
func (ts *TrustedSet) TargetsMeta(roleName string) *trust.MetaFile {
	if ts.Snapshot == nil {
		return nil
	}
	return ts.Snapshot.Signed.Meta[trust.MetaName(roleName)]
}

// NeedsTargets reports whether the named role must be re-downloaded because
// snapshot pins a version other than the trusted one.
func (ts *TrustedSet) NeedsTargets(roleName string) bool {
	role, ok := ts.Targets[roleName]
	if !ok {
		return true
	}
	meta := ts.TargetsMeta(roleName)
	return meta == nil || role.Signed.Version != meta.Version
}

// CheckTargets re-validates the named trusted targets role's expiration,
// evicting it on failure.
func (ts *TrustedSet) CheckTargets(roleName string) error {
	role, ok := ts.Targets[roleName]
	if !ok {
		return trust.ErrRuntime{Msg: fmt.Sprintf("no trusted %s to check", roleName)}
	}
	if role.Signed.IsExpired(ts.Now()) {
		delete(ts.Targets, roleName)
		return trust.ErrExpiredMetadata{Msg: fmt.Sprintf("%s is expired", trust.MetaName(roleName))}
	}
	return nil
}

// UpdateTargets verifies and installs targetsData as trusted top level
// targets metadata.
func (ts *TrustedSet) UpdateTargets(targetsData []byte) error {
	return ts.UpdateDelegatedTargets(targetsData, trust.RoleTargets, trust.RoleRoot)
}

// UpdateDelegatedTargets verifies and installs targetsData as trusted
// metadata for roleName, delegated by delegatorName ("root" for the top level
// targets role, a targets family role name otherwise).
func (ts *TrustedSet) UpdateDelegatedTargets(targetsData []byte, roleName, delegatorName string) error {
	if ts.Snapshot == nil {
		return trust.ErrRuntime{Msg: "cannot load targets before snapshot"}
	}
	if err := ts.checkFinalSnapshot(); err != nil {
		return err
	}
	var db *trust.Registry
	if delegatorName == trust.RoleRoot {
		db = ts.registry
	} else {
		delegator, ok := ts.Targets[delegatorName]
		if !ok {
			return trust.ErrRuntime{Msg: fmt.Sprintf("cannot load %s before delegator %s", roleName, delegatorName)}
		}
		db = trust.RegistryFromDelegations(delegator.Signed.Delegations)
	}
	meta := ts.TargetsMeta(roleName)
	if meta == nil {
		return trust.ErrRepository{Msg: fmt.Sprintf("snapshot does not contain information for %s", roleName)}
	}
	if err := meta.VerifyLengthHashes(targetsData); err != nil {
		return err
	}
	targets, err := trust.Parse[trust.TargetsBody](targetsData)
	if err != nil {
		return err
	}
	if err := trust.VerifyEnvelope(db, roleName, targets); err != nil {
		return err
	}
	if targets.Signed.Version < meta.Version {
		return trust.ErrRollback{Msg: fmt.Sprintf(
			"new %s version %d < version %d declared by snapshot", roleName, targets.Signed.Version, meta.Version)}
	}
	if targets.Signed.Version != meta.Version {
		return trust.ErrRepository{Msg: fmt.Sprintf(
			"expected %s version %d, got %d", roleName, meta.Version, targets.Signed.Version)}
	}
	if targets.Signed.IsExpired(ts.Now()) {
		return trust.ErrExpiredMetadata{Msg: fmt.Sprintf("%s is expired", trust.MetaName(roleName))}
	}
	ts.Targets[roleName] = targets
	trust.GetLogger().Info("updated targets role", "role", roleName, "version", targets.Signed.Version)
	return nil
}

// evictSnapshot removes snapshot and every targets role anchored through it.
func (ts *TrustedSet) evictSnapshot() {
	ts.Snapshot = nil
	ts.snapshotInfo = nil
	ts.Targets = map[string]*trust.Envelope[trust.TargetsBody]{}
}

// Has reports whether the named role is currently trusted.
func (ts *TrustedSet) Has(roleName string) bool {
	switch roleName {
	case trust.RoleRoot:
		return ts.Root != nil
	case trust.RoleTimestamp:
		return ts.Timestamp != nil
	case trust.RoleSnapshot:
		return ts.Snapshot != nil
	default:
		_, ok := ts.Targets[roleName]
		return ok
	}
}

// Roles returns the sorted names of all currently trusted roles.
func (ts *TrustedSet) Roles() []string {
	var roles []string
	if ts.Root != nil {
		roles = append(roles, trust.RoleRoot)
	}
	if ts.Timestamp != nil {
		roles = append(roles, trust.RoleTimestamp)
	}
	if ts.Snapshot != nil {
		roles = append(roles, trust.RoleSnapshot)
	}
	for name := range ts.Targets {
		roles = append(roles, name)
	}
	sort.Strings(roles)
	return roles
}
