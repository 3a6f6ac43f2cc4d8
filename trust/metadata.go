package trust

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/secure-systems-lab/go-securesystemslib/cjson"
	"github.com/sigstore/sigstore/pkg/signature"
	"golang.org/x/exp/slices"
)

// NewRoot returns an empty root envelope with every top level role present at
// threshold 1 and no keys.
func NewRoot(expires time.Time) *Envelope[RootBody] {
	roles := map[string]*RoleKeys{}
	for _, r := range TopLevelRoles {
		roles[r] = &RoleKeys{KeyIDs: []string{}, Threshold: 1}
	}
	return &Envelope[RootBody]{
		Signed: RootBody{
			Type:    RoleRoot,
			Version: 1,
			Expires: expires,
			Keys:    map[string]*Key{},
			Roles:   roles,
		},
		Signatures: []Signature{},
	}
}

// NewTimestamp returns a timestamp envelope pointing at snapshot version 1.
func NewTimestamp(expires time.Time) *Envelope[TimestampBody] {
	return &Envelope[TimestampBody]{
		Signed: TimestampBody{
			Type:    RoleTimestamp,
			Version: 1,
			Expires: expires,
			Meta: map[string]*MetaFile{
				MetaName(RoleSnapshot): {Version: 1},
			},
		},
		Signatures: []Signature{},
	}
}

// NewSnapshot returns a snapshot envelope pinning targets version 1.
func NewSnapshot(expires time.Time) *Envelope[SnapshotBody] {
	return &Envelope[SnapshotBody]{
		Signed: SnapshotBody{
			Type:    RoleSnapshot,
			Version: 1,
			Expires: expires,
			Meta: map[string]*MetaFile{
				MetaName(RoleTargets): {Version: 1},
			},
		},
		Signatures: []Signature{},
	}
}

// NewTargets returns an empty targets envelope.
func NewTargets(expires time.Time) *Envelope[TargetsBody] {
	return &Envelope[TargetsBody]{
		Signed: TargetsBody{
			Type:    RoleTargets,
			Version: 1,
			Expires: expires,
			Targets: map[string]*TargetFile{},
		},
		Signatures: []Signature{},
	}
}

// MetaName maps a role name to the document name used in meta mappings and on
// the wire, e.g. "snapshot" -> "snapshot.json".
func MetaName(role string) string {
	return fmt.Sprintf("%s.json", role)
}

// Parse deserializes a signed envelope of the requested role type, verifying
// that the document's declared type matches and that signature key IDs are
// unique.
func Parse[T Body](data []byte) (*Envelope[T], error) {
	if err := checkType[T](data); err != nil {
		return nil, err
	}
	env := &Envelope[T]{}
	if err := json.Unmarshal(data, env); err != nil {
		return nil, ErrValue{Msg: fmt.Sprintf("malformed metadata document: %v", err)}
	}
	seen := []string{}
	for _, sig := range env.Signatures {
		if slices.Contains(seen, sig.KeyID) {
			return nil, ErrValue{Msg: fmt.Sprintf("multiple signatures found for key ID %s", sig.KeyID)}
		}
		seen = append(seen, sig.KeyID)
	}
	return env, nil
}

// ParseFile reads and parses an envelope from a local file.
func ParseFile[T Body](name string) (*Envelope[T], error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return Parse[T](data)
}

// checkType verifies that the document's "_type" field matches the requested
// role type before the full unmarshal.
func checkType[T Body](data []byte) error {
	var doc struct {
		Signed struct {
			Type string `json:"_type"`
		} `json:"signed"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return ErrValue{Msg: fmt.Sprintf("malformed metadata document: %v", err)}
	}
	var want string
	switch any(new(T)).(type) {
	case *RootBody:
		want = RoleRoot
	case *TimestampBody:
		want = RoleTimestamp
	case *SnapshotBody:
		want = RoleSnapshot
	case *TargetsBody:
		want = RoleTargets
	}
	if doc.Signed.Type != want {
		return ErrType{Msg: fmt.Sprintf("expected metadata type %s, got %s", want, doc.Signed.Type)}
	}
	return nil
}

// Bytes serializes the envelope.
func (e *Envelope[T]) Bytes(pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(e, "", "\t")
	}
	return json.Marshal(e)
}

// CanonicalSigned returns the deterministic byte representation of the signed
// body, the exact bytes signatures are produced and verified over.
func (e *Envelope[T]) CanonicalSigned() ([]byte, error) {
	return cjson.EncodeCanonical(e.Signed)
}

// Sign appends a signature over the canonical signed body.
func (e *Envelope[T]) Sign(signer signature.Signer) (*Signature, error) {
	payload, err := e.CanonicalSigned()
	if err != nil {
		return nil, err
	}
	sb, err := signer.SignMessage(bytes.NewReader(payload))
	if err != nil {
		return nil, ErrUnsignedMetadata{Msg: fmt.Sprintf("problem signing metadata: %v", err)}
	}
	pub, err := signer.PublicKey()
	if err != nil {
		return nil, err
	}
	key, err := KeyFromPublicKey(pub)
	if err != nil {
		return nil, err
	}
	sig := &Signature{KeyID: key.ID(), Signature: sb}
	e.Signatures = append(e.Signatures, *sig)
	return sig, nil
}

// ClearSignatures drops all signatures from the envelope.
func (e *Envelope[T]) ClearSignatures() {
	e.Signatures = []Signature{}
}

// IsExpired reports whether the document is past its expiration at ref.
func (b *RootBody) IsExpired(ref time.Time) bool      { return ref.After(b.Expires) }
func (b *TimestampBody) IsExpired(ref time.Time) bool { return ref.After(b.Expires) }
func (b *SnapshotBody) IsExpired(ref time.Time) bool  { return ref.After(b.Expires) }
func (b *TargetsBody) IsExpired(ref time.Time) bool   { return ref.After(b.Expires) }

// VerifyLengthHashes checks downloaded document bytes against the recorded
// fingerprint. Length and hashes are both optional for MetaFile; length is
// checked first so truncated or padded responses fail before hashing.
func (f *MetaFile) VerifyLengthHashes(data []byte) error {
	if f.Length != 0 {
		if err := verifyLength(data, f.Length); err != nil {
			return err
		}
	}
	if len(f.Hashes) > 0 {
		if err := verifyHashes(data, f.Hashes); err != nil {
			return err
		}
	}
	return nil
}

// Equal reports whether two fingerprints describe the same document. A nil
// fingerprint never equals a non-nil one.
func (f *MetaFile) Equal(other *MetaFile) bool {
	if f == nil || other == nil {
		return f == other
	}
	if f.Version != other.Version || f.Length != other.Length || len(f.Hashes) != len(other.Hashes) {
		return false
	}
	for alg, digest := range f.Hashes {
		if !bytes.Equal(digest, other.Hashes[alg]) {
			return false
		}
	}
	return true
}

// VerifyLengthHashes checks downloaded target bytes against the recorded
// fingerprint, length first.
func (f *TargetFile) VerifyLengthHashes(data []byte) error {
	if err := verifyLength(data, f.Length); err != nil {
		return err
	}
	return verifyHashes(data, f.Hashes)
}

// TargetFileFromBytes builds the fingerprint for target data using the given
// hash algorithms (sha256 if none given).
func TargetFileFromBytes(targetPath string, data []byte, algs ...string) (*TargetFile, error) {
	if len(algs) == 0 {
		algs = []string{AlgSHA256}
	}
	tf := &TargetFile{
		Length: int64(len(data)),
		Hashes: Hashes{},
		Path:   targetPath,
	}
	for _, alg := range algs {
		digest, err := computeHash(alg, data)
		if err != nil {
			return nil, err
		}
		tf.Hashes[alg] = digest
	}
	return tf, nil
}

// MatchesPath reports whether targetPath falls under one of the delegation's
// path patterns.
func (d *DelegatedRole) MatchesPath(targetPath string) bool {
	for _, pattern := range d.Paths {
		if ok, err := path.Match(pattern, targetPath); err == nil && ok {
			return true
		}
	}
	return false
}

// RolesForTarget yields the delegated roles responsible for targetPath in
// declaration order, stopping after the first terminating match.
func (d *Delegations) RolesForTarget(targetPath string) []DelegatedRole {
	var res []DelegatedRole
	for _, role := range d.Roles {
		if role.MatchesPath(targetPath) {
			res = append(res, role)
			if role.Terminating {
				break
			}
		}
	}
	return res
}
