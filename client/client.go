// Package client implements the client-side update workflow. A Session owns
// the trusted metadata for one repository and brings it up to date against a
// set of untrusted mirrors:
//
//   - New loads and validates the initial trusted root, which is the source
//     of trust for all other metadata, and any locally cached roles.
//   - Refresh downloads, verifies and installs the top level roles in the
//     required order (root -> timestamp -> snapshot -> targets), detecting
//     rollback, freeze, mix-and-match and oversized-response attacks.
//   - TargetInfo resolves a target path to verified file metadata, walking
//     delegated targets roles on demand.
//   - DownloadTarget fetches a target file and verifies its length and
//     hashes before releasing it to the caller.
//
// A root or timestamp failure means the repository cannot be trusted this
// session and Refresh returns without touching snapshot or targets. A
// snapshot or targets rejection evicts those roles from the trusted set but
// keeps root and timestamp, so a later Refresh against an honest mirror
// recovers; the error is still returned, stale data is never served
// silently.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/sumanth8495/trustchain/config"
	"github.com/sumanth8495/trustchain/fetcher"
	"github.com/sumanth8495/trustchain/internal/fsutil"
	"github.com/sumanth8495/trustchain/mirrors"
	"github.com/sumanth8495/trustchain/trust"
	"github.com/sumanth8495/trustchain/trustedset"
)

// Session is a repository session: trusted metadata plus the mirror client
// used to refresh it. Concurrent refreshes are serialized; interleaving
// root rotation with snapshot eviction would break version monotonicity.
type Session struct {
	cfg     *config.Config
	trusted *trustedset.TrustedSet
	remote  *mirrors.Client

	mu sync.Mutex
}

// New creates a Session, bootstrapping trust from cfg.RootBytes (or a cached
// root.json in cfg.LocalMetadataDir) and loading any other locally cached
// roles that still verify.
func New(cfg *config.Config) (*Session, error) {
	if len(cfg.Mirrors) == 0 {
		return nil, trust.ErrValue{Msg: "no mirrors configured"}
	}
	rootBytes := cfg.RootBytes
	if rootBytes == nil {
		var err error
		rootBytes, err = readMetaFile(cfg.LocalMetadataDir, trust.MetaName(trust.RoleRoot))
		if err != nil {
			return nil, fmt.Errorf("no trusted root metadata available: %w", err)
		}
	}
	trusted, err := trustedset.New(rootBytes)
	if err != nil {
		return nil, err
	}
	if cfg.Now != nil {
		trusted.Now = cfg.Now
	}
	transport := cfg.Fetcher
	if transport == nil {
		transport = &fetcher.HTTPFetcher{MaxRetries: 2}
	}
	s := &Session{
		cfg:     cfg,
		trusted: trusted,
		remote: &mirrors.Client{
			Mirrors: cfg.Mirrors,
			Fetcher: transport,
			Timeout: cfg.FetchTimeout,
		},
	}
	s.loadCached()
	return s, nil
}

// loadCached replays locally persisted metadata through the normal update
// path. Anything that no longer verifies is treated as absent and will be
// fetched from the mirrors on the next refresh.
func (s *Session) loadCached() {
	if s.cfg.LocalMetadataDir == "" {
		return
	}
	log := trust.GetLogger()
	if data, err := readMetaFile(s.cfg.LocalMetadataDir, trust.MetaName(trust.RoleTimestamp)); err == nil {
		if err := s.trusted.UpdateTimestamp(data); err != nil {
			log.Info("cached timestamp not usable", "err", err)
			return
		}
	} else {
		return
	}
	if data, err := readMetaFile(s.cfg.LocalMetadataDir, trust.MetaName(trust.RoleSnapshot)); err == nil {
		if err := s.trusted.UpdateSnapshot(data); err != nil {
			log.Info("cached snapshot not usable", "err", err)
			return
		}
	} else {
		return
	}
	if data, err := readMetaFile(s.cfg.LocalMetadataDir, trust.MetaName(trust.RoleTargets)); err == nil {
		if err := s.trusted.UpdateTargets(data); err != nil {
			log.Info("cached targets not usable", "err", err)
		}
	}
}

// Refresh brings the trusted set to the most up-to-date state obtainable
// from the configured mirrors, or fails loudly. The context is consulted
// between role steps; a role is installed atomically or not at all.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refresh(ctx)
}

func (s *Session) refresh(ctx context.Context) error {
	if err := s.loadRoot(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.loadTimestamp(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.loadSnapshot(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.loadTargetsRole(trust.RoleTargets, trust.RoleRoot)
}

// loadRoot walks the root rotation chain one version at a time: each
// candidate must be signed by the previous trusted root's threshold and by
// itself. A 403/404 from every mirror means the trusted root is the newest
// available and ends the walk.
func (s *Session) loadRoot() error {
	lower := s.trusted.Root.Signed.Version + 1
	upper := lower + s.cfg.MaxRootRotations
	for next := lower; next < upper; next++ {
		data, err := s.remote.FetchMetadata(trust.RoleRoot, next, s.cfg.RootMaxLength, s.trusted.UpdateRoot)
		if err != nil {
			if allMirrorsNotFound(err) {
				break
			}
			return err
		}
		s.persist(trust.MetaName(trust.RoleRoot), data)
	}
	return s.trusted.CheckFinalRoot()
}

// loadTimestamp always fetches: timestamp is never served from cache without
// a freshness check.
func (s *Session) loadTimestamp() error {
	data, err := s.remote.FetchMetadata(trust.RoleTimestamp, 0, s.cfg.TimestampMaxLength, s.trusted.UpdateTimestamp)
	if err != nil {
		return err
	}
	s.persist(trust.MetaName(trust.RoleTimestamp), data)
	return nil
}

// loadSnapshot fetches snapshot when timestamp points at something other
// than the trusted copy. When it does not, the trusted snapshot's
// expiration is still re-validated: a mirror replaying the newest-seen
// version forever must not keep an expired snapshot trusted.
func (s *Session) loadSnapshot() error {
	if !s.trusted.NeedsSnapshot() {
		if err := s.trusted.CheckSnapshot(); err != nil {
			s.dropCached(trust.MetaName(trust.RoleSnapshot))
			return err
		}
		return nil
	}
	meta := s.trusted.SnapshotMeta()
	if meta == nil {
		return trust.ErrRepository{Msg: "timestamp does not contain snapshot info"}
	}
	maxLength := meta.Length
	if maxLength == 0 {
		maxLength = s.cfg.SnapshotMaxLength
	}
	data, err := s.remote.FetchMetadata(trust.RoleSnapshot, 0, maxLength, s.trusted.UpdateSnapshot)
	if err != nil {
		s.dropCached(trust.MetaName(trust.RoleSnapshot))
		return err
	}
	s.persist(trust.MetaName(trust.RoleSnapshot), data)
	return nil
}

// loadTargetsRole fetches the named targets family role when snapshot pins a
// version other than the trusted one, re-validating expiration otherwise.
func (s *Session) loadTargetsRole(roleName, delegatorName string) error {
	if !s.trusted.NeedsTargets(roleName) {
		if err := s.trusted.CheckTargets(roleName); err != nil {
			s.dropCached(trust.MetaName(roleName))
			return err
		}
		return nil
	}
	meta := s.trusted.TargetsMeta(roleName)
	if meta == nil {
		return trust.ErrRepository{Msg: fmt.Sprintf("snapshot does not contain information for %s", roleName)}
	}
	maxLength := meta.Length
	if maxLength == 0 {
		maxLength = s.cfg.TargetsMaxLength
	}
	data, err := s.remote.FetchMetadata(roleName, 0, maxLength, func(data []byte) error {
		return s.trusted.UpdateDelegatedTargets(data, roleName, delegatorName)
	})
	if err != nil {
		return err
	}
	s.persist(trust.MetaName(roleName), data)
	return nil
}

// delegation is one edge of the delegation graph to visit.
type delegation struct {
	role      string
	delegator string
}

// TargetInfo resolves targetPath to verified file metadata, loading
// delegated targets roles on demand. Refresh happens implicitly if no
// trusted targets metadata is loaded yet.
func (s *Session) TargetInfo(ctx context.Context, targetPath string) (*trust.TargetFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.trusted.Has(trust.RoleTargets) {
		if err := s.refresh(ctx); err != nil {
			return nil, err
		}
	}
	return s.preOrderDepthFirstWalk(targetPath)
}

// preOrderDepthFirstWalk interrogates the delegation graph in declaration
// order and returns the match found in the most trusted role. The signed
// data is adversarial, so revisits are skipped (cycle guard) and the walk is
// bounded by MaxDelegations.
func (s *Session) preOrderDepthFirstWalk(targetPath string) (*trust.TargetFile, error) {
	stack := []delegation{{role: trust.RoleTargets, delegator: trust.RoleRoot}}
	visited := map[string]bool{}
	for len(stack) > 0 {
		if len(visited) >= s.cfg.MaxDelegations {
			return nil, trust.ErrRuntime{Msg: fmt.Sprintf(
				"delegation walk exceeded %d roles resolving %s", s.cfg.MaxDelegations, targetPath)}
		}
		d := stack[0]
		stack = stack[1:]
		if visited[d.role] {
			continue
		}
		visited[d.role] = true
		if err := s.loadTargetsRole(d.role, d.delegator); err != nil {
			return nil, err
		}
		env := s.trusted.Targets[d.role]
		if tf, ok := env.Signed.Targets[targetPath]; ok {
			found := *tf
			found.Path = targetPath
			return &found, nil
		}
		if env.Signed.Delegations == nil {
			continue
		}
		matched := env.Signed.Delegations.RolesForTarget(targetPath)
		if len(matched) == 0 {
			continue
		}
		children := make([]delegation, 0, len(matched))
		for _, role := range matched {
			children = append(children, delegation{role: role.Name, delegator: d.role})
		}
		if matched[len(matched)-1].Terminating {
			// a terminating match forecloses all sibling delegations
			stack = children
		} else {
			stack = append(children, stack...)
		}
	}
	return nil, trust.ErrUnknownTarget{Msg: fmt.Sprintf("no trusted role covers %s", targetPath)}
}

// DownloadTarget downloads the target described by info, verifies its length
// and hashes, writes it under dstPath (derived from the targets dir when
// empty) and returns the path written.
func (s *Session) DownloadTarget(ctx context.Context, info *trust.TargetFile, dstPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if dstPath == "" {
		var err error
		dstPath, err = s.targetFilePath(info)
		if err != nil {
			return "", err
		}
	}
	data, err := s.remote.FetchTarget(info.Path, info.Length, info.VerifyLengthHashes)
	if err != nil {
		return "", err
	}
	if err := writeFileAtomic(dstPath, data); err != nil {
		return "", err
	}
	trust.GetLogger().Info("downloaded target", "path", info.Path)
	return dstPath, nil
}

// FindCachedTarget reports whether a previously downloaded file still
// matches info, returning its path when it does and an empty path when a
// download is needed.
func (s *Session) FindCachedTarget(info *trust.TargetFile, filePath string) (string, error) {
	if filePath == "" {
		var err error
		filePath, err = s.targetFilePath(info)
		if err != nil {
			return "", err
		}
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", nil
	}
	if err := info.VerifyLengthHashes(data); err != nil {
		return "", nil
	}
	return filePath, nil
}

// TrustedRoles returns the sorted names of the currently trusted roles.
func (s *Session) TrustedRoles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trusted.Roles()
}

func (s *Session) targetFilePath(info *trust.TargetFile) (string, error) {
	if s.cfg.LocalTargetsDir == "" {
		return "", trust.ErrValue{Msg: "local targets dir must be set if no download path is given"}
	}
	return filepath.Join(s.cfg.LocalTargetsDir, url.QueryEscape(info.Path)), nil
}

// persist writes accepted metadata to the local cache atomically. Cache
// writes are best effort: trust lives in memory, the cache only speeds up
// the next session.
func (s *Session) persist(name string, data []byte) {
	if s.cfg.LocalMetadataDir == "" {
		return
	}
	path := filepath.Join(s.cfg.LocalMetadataDir, url.QueryEscape(name))
	if err := writeFileAtomic(path, data); err != nil {
		trust.GetLogger().Error(err, "failed to persist metadata", "name", name)
	}
}

// dropCached removes a rejected role's cached file so a stale copy is never
// reloaded by a later session.
func (s *Session) dropCached(name string) {
	if s.cfg.LocalMetadataDir == "" {
		return
	}
	_ = os.Remove(filepath.Join(s.cfg.LocalMetadataDir, url.QueryEscape(name)))
}

func readMetaFile(dir, name string) ([]byte, error) {
	path := filepath.Join(dir, url.QueryEscape(name))
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if err := fsutil.EnsurePermission(fi, 0o644); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "trustchain_tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}

// allMirrorsNotFound reports whether err is an aggregated mirror failure in
// which every mirror answered 403 or 404, the signal that the requested
// versioned document does not exist.
func allMirrorsNotFound(err error) bool {
	var agg trust.ErrNoWorkingMirror
	if !errors.As(err, &agg) || len(agg.Errors) == 0 {
		return false
	}
	for _, me := range agg.Errors {
		var httpErr trust.ErrDownloadHTTP
		if !errors.As(me.Err, &httpErr) {
			return false
		}
		if httpErr.StatusCode != 404 && httpErr.StatusCode != 403 {
			return false
		}
	}
	return true
}
