package trust

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryFromRoot(t *testing.T) {
	expires := time.Now().UTC().AddDate(0, 0, 1)
	root := NewRoot(expires)
	key, _ := createSigner(t)
	require.NoError(t, root.Signed.AddKey(key, RoleTimestamp))

	db := RegistryFromRoot(&root.Signed)
	role, ok := db.Role(RoleTimestamp)
	require.True(t, ok)
	assert.Equal(t, []string{key.ID()}, role.KeyIDs)
	assert.Equal(t, 1, role.Threshold)

	_, ok = db.Role("nonexistent")
	assert.False(t, ok)
}

func TestVerifyThreshold(t *testing.T) {
	expires := time.Now().UTC().AddDate(0, 0, 1)
	ts := NewTimestamp(expires)

	root := NewRoot(expires)
	key1, signer1 := createSigner(t)
	key2, signer2 := createSigner(t)
	require.NoError(t, root.Signed.AddKey(key1, RoleTimestamp))
	require.NoError(t, root.Signed.AddKey(key2, RoleTimestamp))
	root.Signed.Roles[RoleTimestamp].Threshold = 2
	db := RegistryFromRoot(&root.Signed)

	_, err := ts.Sign(signer1)
	require.NoError(t, err)
	assert.ErrorIs(t, VerifyEnvelope(db, RoleTimestamp, ts), ErrUnsignedMetadata{})

	_, err = ts.Sign(signer2)
	require.NoError(t, err)
	assert.NoError(t, VerifyEnvelope(db, RoleTimestamp, ts))
}

func TestVerifyUnauthorizedKey(t *testing.T) {
	expires := time.Now().UTC().AddDate(0, 0, 1)
	ts := NewTimestamp(expires)

	root := NewRoot(expires)
	key, _ := createSigner(t)
	require.NoError(t, root.Signed.AddKey(key, RoleTimestamp))
	db := RegistryFromRoot(&root.Signed)

	// signed by a key the root never authorized for timestamp
	_, rogueSigner := createSigner(t)
	_, err := ts.Sign(rogueSigner)
	require.NoError(t, err)
	assert.ErrorIs(t, VerifyEnvelope(db, RoleTimestamp, ts), ErrUnsignedMetadata{})
}

func TestVerifyDuplicateSignaturesCountOnce(t *testing.T) {
	expires := time.Now().UTC().AddDate(0, 0, 1)
	ts := NewTimestamp(expires)

	root := NewRoot(expires)
	key, signer := createSigner(t)
	otherKey, _ := createSigner(t)
	require.NoError(t, root.Signed.AddKey(key, RoleTimestamp))
	require.NoError(t, root.Signed.AddKey(otherKey, RoleTimestamp))
	root.Signed.Roles[RoleTimestamp].Threshold = 2
	db := RegistryFromRoot(&root.Signed)

	// two signatures from the same key must not satisfy a threshold of two
	_, err := ts.Sign(signer)
	require.NoError(t, err)
	ts.Signatures = append(ts.Signatures, ts.Signatures[0])
	assert.ErrorIs(t, VerifyEnvelope(db, RoleTimestamp, ts), ErrUnsignedMetadata{})
}

func TestRegistryFromDelegations(t *testing.T) {
	key, _ := createSigner(t)
	d := &Delegations{
		Keys: map[string]*Key{key.ID(): key},
		Roles: []DelegatedRole{
			{Name: "alpha", KeyIDs: []string{key.ID()}, Threshold: 1, Paths: []string{"*"}},
		},
	}
	db := RegistryFromDelegations(d)
	role, ok := db.Role("alpha")
	require.True(t, ok)
	assert.Equal(t, 1, role.Threshold)
}
