package identity_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passportxyz/passport-claim/identity"
	"github.com/passportxyz/passport-claim/types"
)

func TestNullifierStableUnderKeyOrder(t *testing.T) {
	gen, err := identity.NewHashNullifier("secret-key")
	require.NoError(t, err)

	a, err := gen.Nullifier(types.ProofRecord{"type": "Google", "email": "a@b.c", "version": "0.0.0"})
	require.NoError(t, err)
	b, err := gen.Nullifier(types.ProofRecord{"version": "0.0.0", "email": "a@b.c", "type": "Google"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, identity.Version+":"))
}

func TestNullifierChangesWithSecret(t *testing.T) {
	gen1, err := identity.NewHashNullifier("secret-1")
	require.NoError(t, err)
	gen2, err := identity.NewHashNullifier("secret-2")
	require.NoError(t, err)

	record := types.ProofRecord{"type": "Google", "email": "a@b.c"}
	a, err := gen1.Nullifier(record)
	require.NoError(t, err)
	b, err := gen2.Nullifier(record)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestNullifierChangesWithRecord(t *testing.T) {
	gen, err := identity.NewHashNullifier("secret-key")
	require.NoError(t, err)

	a, err := gen.Nullifier(types.ProofRecord{"type": "Google", "email": "a@b.c"})
	require.NoError(t, err)
	b, err := gen.Nullifier(types.ProofRecord{"type": "Google", "email": "x@y.z"})
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestNullifierRejectsEmptyKey(t *testing.T) {
	_, err := identity.NewHashNullifier("")
	require.Error(t, err)
}
