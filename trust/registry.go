package trust

import (
	"bytes"
	"fmt"

	"github.com/sigstore/sigstore/pkg/signature"
)

// Registry holds the authorized public keys and signature threshold per role
// name. It is populated exclusively from verified root metadata (or from the
// delegations section of a verified targets document) and stays immutable for
// the remainder of a refresh cycle, so a malicious non-root document can
// never redefine who may sign what.
type Registry struct {
	keys  map[string]*Key
	roles map[string]*RoleKeys
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		keys:  map[string]*Key{},
		roles: map[string]*RoleKeys{},
	}
}

// RegistryFromRoot builds the registry in effect after root has been
// verified: every top level role with the keys and threshold root declares
// for it.
func RegistryFromRoot(root *RootBody) *Registry {
	db := NewRegistry()
	for id, key := range root.Keys {
		db.keys[id] = key
	}
	for name, role := range root.Roles {
		db.roles[name] = &RoleKeys{KeyIDs: role.KeyIDs, Threshold: role.Threshold}
	}
	return db
}

// RegistryFromDelegations builds a registry scoped to the delegated roles a
// verified targets document declares.
func RegistryFromDelegations(d *Delegations) *Registry {
	db := NewRegistry()
	if d == nil {
		return db
	}
	for id, key := range d.Keys {
		db.keys[id] = key
	}
	for _, role := range d.Roles {
		role := role
		db.roles[role.Name] = &RoleKeys{KeyIDs: role.KeyIDs, Threshold: role.Threshold}
	}
	return db
}

// Role returns the key IDs and threshold registered for the named role.
func (db *Registry) Role(name string) (*RoleKeys, bool) {
	r, ok := db.roles[name]
	return r, ok
}

// Verify checks that sigs carries at least the role's threshold of valid
// signatures over payload from distinct authorized keys. It returns the
// number of distinct valid signatures found; duplicate signatures from the
// same key count once, signatures from unauthorized keys count never.
func (db *Registry) Verify(role string, payload []byte, sigs []Signature) (int, error) {
	roleKeys, ok := db.roles[role]
	if !ok || len(roleKeys.KeyIDs) == 0 {
		return 0, ErrValue{Msg: fmt.Sprintf("no keys registered for role %s", role)}
	}
	verified := map[string]bool{}
	for _, keyID := range roleKeys.KeyIDs {
		key, ok := db.keys[keyID]
		if !ok {
			continue
		}
		var sig *Signature
		for i := range sigs {
			if sigs[i].KeyID == keyID {
				sig = &sigs[i]
				break
			}
		}
		if sig == nil {
			continue
		}
		pub, err := key.ToPublicKey()
		if err != nil {
			log.Error(err, "unusable key material", "role", role, "keyid", keyID)
			continue
		}
		verifier, err := signature.LoadVerifier(pub, key.HashForScheme())
		if err != nil {
			log.Error(err, "failed to load verifier", "role", role, "keyid", keyID)
			continue
		}
		if err := verifier.VerifySignature(bytes.NewReader(sig.Signature), bytes.NewReader(payload)); err != nil {
			log.Info("signature verification failed", "role", role, "keyid", keyID)
			continue
		}
		verified[keyID] = true
	}
	if len(verified) < roleKeys.Threshold {
		return len(verified), ErrUnsignedMetadata{Msg: fmt.Sprintf(
			"verifying %s failed, not enough signatures, got %d, want %d", role, len(verified), roleKeys.Threshold)}
	}
	return len(verified), nil
}

// VerifyEnvelope verifies the envelope's signatures for role against the
// registry, using the canonical form of its signed body.
func VerifyEnvelope[T Body](db *Registry, role string, env *Envelope[T]) error {
	payload, err := env.CanonicalSigned()
	if err != nil {
		return err
	}
	_, err = db.Verify(role, payload, env.Signatures)
	return err
}
