// Package simulator provides an in-memory repository for tests.
//
// RepositorySimulator lets test code "publish" new repository versions by
// mutating metadata directly, while serving every version to clients over
// the fetcher interface: no network connections or file access happen,
// everything is served from memory.
//
// Metadata and targets are made available under the URL paths "/metadata/..."
// and "/targets/..." respectively.
//
// Example:
//
//	// Initialize repository with top-level metadata
//	sim := simulator.NewRepository()
//
//	// metadata can be modified directly: it is immediately available to clients
//	sim.MDSnapshot.Signed.Version++
//
//	// As an exception, new root versions require explicit publishing
//	sim.MDRoot.Signed.Version++
//	sim.PublishRoot()
//
//	// there are helper functions
//	sim.AddTarget("file1.txt", []byte("content"))
//	sim.MDTargets.Signed.Version++
//	sim.UpdateSnapshot()
package simulator

import (
	"crypto"
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sigstore/sigstore/pkg/signature"

	"github.com/sumanth8495/trustchain/trust"
)

// repositoryTarget pairs target data with its published metadata.
type repositoryTarget struct {
	data       []byte
	targetFile *trust.TargetFile
}

// RepositorySimulator simulates a repository for client tests. It implements
// fetcher.Fetcher so a client Session can use it as its transport.
type RepositorySimulator struct {
	MDRoot      *trust.Envelope[trust.RootBody]
	MDTimestamp *trust.Envelope[trust.TimestampBody]
	MDSnapshot  *trust.Envelope[trust.SnapshotBody]
	MDTargets   *trust.Envelope[trust.TargetsBody]
	MDDelegates map[string]*trust.Envelope[trust.TargetsBody]

	// Root versions must be published explicitly with PublishRoot; this list
	// holds every serialized version, index 0 being version 1.
	SignedRoots [][]byte

	// Signers are used on demand at fetch time, keyed role -> keyID.
	Signers map[string]map[string]signature.Signer

	targetFiles map[string]repositoryTarget

	// ComputeMetafileHashesAndLength controls whether timestamp and snapshot
	// pin hashes and lengths for the documents they describe.
	ComputeMetafileHashesAndLength bool

	// MetadataRequests records every metadata fetch as "role" or "role:version"
	// so tests can assert which documents a refresh actually downloaded.
	MetadataRequests []string

	SafeExpiry time.Time
}

// NewRepository initializes a minimal valid repository: one ed25519 key per
// top level role at threshold 1, all roles at version 1.
func NewRepository() *RepositorySimulator {
	now := time.Now().UTC()
	rs := &RepositorySimulator{
		MDDelegates: map[string]*trust.Envelope[trust.TargetsBody]{},
		SignedRoots: [][]byte{},
		Signers:     map[string]map[string]signature.Signer{},
		targetFiles: map[string]repositoryTarget{},
		SafeExpiry:  now.Truncate(time.Second).AddDate(0, 0, 30),
	}
	rs.setupMinimalValidRepository()
	return rs
}

func (rs *RepositorySimulator) setupMinimalValidRepository() {
	rs.MDTargets = trust.NewTargets(rs.SafeExpiry)
	rs.MDSnapshot = trust.NewSnapshot(rs.SafeExpiry)
	rs.MDTimestamp = trust.NewTimestamp(rs.SafeExpiry)
	rs.MDRoot = trust.NewRoot(rs.SafeExpiry)

	for _, role := range trust.TopLevelRoles {
		key, signer := CreateKey()
		if err := rs.MDRoot.Signed.AddKey(key, role); err != nil {
			log.Debugf("repository simulator: failed to add key: %v", err)
		}
		rs.AddSigner(role, key.ID(), signer)
	}
	rs.PublishRoot()
}

// CreateKey generates an ed25519 key pair and returns the public key and a
// ready-to-use signer for it.
func CreateKey() (*trust.Key, signature.Signer) {
	public, private, err := ed25519.GenerateKey(nil)
	if err != nil {
		log.Panicf("failed to generate key: %v", err)
	}
	signer, err := signature.LoadSigner(private, crypto.Hash(0))
	if err != nil {
		log.Panicf("failed to load signer: %v", err)
	}
	key, err := trust.KeyFromPublicKey(public)
	if err != nil {
		log.Panicf("failed to convert key: %v", err)
	}
	return key, signer
}

func (rs *RepositorySimulator) AddSigner(role, keyID string, signer signature.Signer) {
	if _, ok := rs.Signers[role]; !ok {
		rs.Signers[role] = map[string]signature.Signer{}
	}
	rs.Signers[role][keyID] = signer
}

// RotateKeys removes all keys for role, then adds a threshold of new keys.
func (rs *RepositorySimulator) RotateKeys(role string) {
	rs.MDRoot.Signed.Roles[role].KeyIDs = []string{}
	for k := range rs.Signers[role] {
		delete(rs.Signers[role], k)
	}
	for i := 0; i < rs.MDRoot.Signed.Roles[role].Threshold; i++ {
		key, signer := CreateKey()
		if err := rs.MDRoot.Signed.AddKey(key, role); err != nil {
			log.Debugf("repository simulator: failed to add key: %v", err)
		}
		rs.AddSigner(role, key.ID(), signer)
	}
}

// PublishRoot signs and stores a new serialized version of root.
func (rs *RepositorySimulator) PublishRoot() {
	rs.MDRoot.ClearSignatures()
	for _, signer := range rs.Signers[trust.RoleRoot] {
		if _, err := rs.MDRoot.Sign(signer); err != nil {
			log.Debugf("repository simulator: failed to sign root: %v", err)
		}
	}
	data, err := rs.MDRoot.Bytes(true)
	if err != nil {
		log.Debugf("failed to serialize root while publishing: %v", err)
	}
	rs.SignedRoots = append(rs.SignedRoots, data)
	log.Debugf("published root v%d", rs.MDRoot.Signed.Version)
}

// DownloadFile implements fetcher.Fetcher, serving metadata and targets from
// memory with the same length policing as the HTTP transport.
func (rs *RepositorySimulator) DownloadFile(urlPath string, maxLength int64, timeout time.Duration) ([]byte, error) {
	data, err := rs.fetch(urlPath)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxLength {
		return nil, trust.ErrDownloadLengthMismatch{Msg: fmt.Sprintf(
			"downloaded %d bytes exceeding the maximum allowed length of %d", len(data), maxLength)}
	}
	return data, nil
}

func (rs *RepositorySimulator) fetch(urlPath string) ([]byte, error) {
	parsed, err := url.Parse(urlPath)
	if err != nil {
		return nil, err
	}
	path := parsed.Path
	switch {
	case strings.Contains(path, "/metadata/") && strings.HasSuffix(path, ".json"):
		name := path[strings.Index(path, "/metadata/")+len("/metadata/"):]
		name = strings.TrimSuffix(name, ".json")
		// only root is served with version prefixes
		if ver, rest, ok := splitVersion(name); ok && rest == trust.RoleRoot {
			return rs.fetchRoot(ver)
		}
		return rs.fetchMetadata(name)
	case strings.Contains(path, "/targets/"):
		targetPath := path[strings.Index(path, "/targets/")+len("/targets/"):]
		return rs.fetchTarget(targetPath)
	}
	return nil, trust.ErrDownloadHTTP{StatusCode: 404, URL: urlPath}
}

// splitVersion splits "N.name" into N and name, reporting whether the prefix
// was numeric.
func splitVersion(name string) (int64, string, bool) {
	prefix, rest, found := strings.Cut(name, ".")
	if !found {
		return 0, name, false
	}
	ver, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0, name, false
	}
	return ver, rest, true
}

func (rs *RepositorySimulator) fetchRoot(version int64) ([]byte, error) {
	rs.MetadataRequests = append(rs.MetadataRequests, fmt.Sprintf("%s:%d", trust.RoleRoot, version))
	if version <= 0 || version > int64(len(rs.SignedRoots)) {
		log.Debugf("unknown root version %d", version)
		return nil, trust.ErrDownloadHTTP{StatusCode: 404}
	}
	log.Debugf("fetched root v%d", version)
	return rs.SignedRoots[version-1], nil
}

// fetchMetadata signs and serializes the current version of the requested
// role on demand.
func (rs *RepositorySimulator) fetchMetadata(role string) ([]byte, error) {
	rs.MetadataRequests = append(rs.MetadataRequests, role)
	switch role {
	case trust.RoleTimestamp:
		return signEnvelope(role, rs.MDTimestamp, rs)
	case trust.RoleSnapshot:
		return signEnvelope(role, rs.MDSnapshot, rs)
	case trust.RoleTargets:
		return signEnvelope(role, rs.MDTargets, rs)
	default:
		md, ok := rs.MDDelegates[role]
		if !ok {
			log.Debugf("unknown role %s", role)
			return nil, trust.ErrDownloadHTTP{StatusCode: 404}
		}
		return signEnvelope(role, md, rs)
	}
}

func (rs *RepositorySimulator) fetchTarget(targetPath string) ([]byte, error) {
	target, ok := rs.targetFiles[targetPath]
	if !ok {
		return nil, trust.ErrDownloadHTTP{StatusCode: 404, URL: targetPath}
	}
	log.Debugf("fetched target %s", targetPath)
	return target.data, nil
}

func signEnvelope[T trust.Body](role string, env *trust.Envelope[T], rs *RepositorySimulator) ([]byte, error) {
	env.ClearSignatures()
	for _, signer := range rs.Signers[role] {
		if _, err := env.Sign(signer); err != nil {
			log.Debugf("repository simulator: failed to sign %s: %v", role, err)
		}
	}
	return env.Bytes(true)
}

func (rs *RepositorySimulator) computeHashesAndLength(role string) (trust.Hashes, int64) {
	data, err := rs.fetchMetadata(role)
	if err != nil {
		log.Debugf("failed to fetch metadata: %v", err)
	}
	digest := sha256.Sum256(data)
	return trust.Hashes{trust.AlgSHA256: digest[:]}, int64(len(data))
}

// UpdateTimestamp bumps timestamp and points its snapshot meta at the
// current snapshot version.
func (rs *RepositorySimulator) UpdateTimestamp() {
	meta := &trust.MetaFile{Version: rs.MDSnapshot.Signed.Version}
	if rs.ComputeMetafileHashesAndLength {
		meta.Hashes, meta.Length = rs.computeHashesAndLength(trust.RoleSnapshot)
	}
	rs.MDTimestamp.Signed.Meta[trust.MetaName(trust.RoleSnapshot)] = meta
	rs.MDTimestamp.Signed.Version++
}

// UpdateSnapshot bumps snapshot, pins the current versions of every targets
// family role, and updates timestamp.
func (rs *RepositorySimulator) UpdateSnapshot() {
	rs.pinTargetsRole(trust.RoleTargets, rs.MDTargets.Signed.Version)
	for role, md := range rs.MDDelegates {
		rs.pinTargetsRole(role, md.Signed.Version)
	}
	rs.MDSnapshot.Signed.Version++
	rs.UpdateTimestamp()
}

func (rs *RepositorySimulator) pinTargetsRole(role string, version int64) {
	meta := &trust.MetaFile{Version: version}
	if rs.ComputeMetafileHashesAndLength {
		meta.Hashes, meta.Length = rs.computeHashesAndLength(role)
	}
	rs.MDSnapshot.Signed.Meta[trust.MetaName(role)] = meta
}

func (rs *RepositorySimulator) getDelegator(delegatorName string) *trust.TargetsBody {
	if delegatorName == trust.RoleTargets {
		return &rs.MDTargets.Signed
	}
	return &rs.MDDelegates[delegatorName].Signed
}

// AddTarget publishes data as a target of the top level targets role.
func (rs *RepositorySimulator) AddTarget(path string, data []byte) {
	rs.AddTargetToRole(trust.RoleTargets, path, data)
}

// AddTargetToRole publishes data as a target of the named targets family role.
func (rs *RepositorySimulator) AddTargetToRole(role, path string, data []byte) {
	target, err := trust.TargetFileFromBytes(path, data, trust.AlgSHA256)
	if err != nil {
		log.Panicf("failed to create target from %s: %v", path, err)
	}
	rs.getDelegator(role).Targets[path] = target
	rs.targetFiles[path] = repositoryTarget{data: data, targetFile: target}
}

// AddDelegation adds a delegated targets role under delegatorName with a
// fresh key at threshold 1 and registers an empty metadata document for it.
func (rs *RepositorySimulator) AddDelegation(delegatorName string, role trust.DelegatedRole) {
	delegator := rs.getDelegator(delegatorName)
	if delegator.Delegations == nil {
		delegator.Delegations = &trust.Delegations{Keys: map[string]*trust.Key{}}
	}
	if role.Threshold == 0 {
		role.Threshold = 1
	}
	delegator.Delegations.Roles = append(delegator.Delegations.Roles, role)

	key, signer := CreateKey()
	if err := delegator.AddKey(key, role.Name); err != nil {
		log.Panicf("failed to add delegation key: %v", err)
	}
	rs.AddSigner(role.Name, key.ID(), signer)

	if _, ok := rs.MDDelegates[role.Name]; !ok {
		rs.MDDelegates[role.Name] = trust.NewTargets(rs.SafeExpiry)
	}
}
