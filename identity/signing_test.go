package identity_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passportxyz/passport-claim/identity"
)

// Throwaway key for tests only.
const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestSignAndValidate(t *testing.T) {
	signer, err := identity.NewKeySigner(testKey)
	require.NoError(t, err)

	payload := []byte("challenge-abc123")
	envelope, err := signer.Sign(payload)
	require.NoError(t, err)

	assert.Equal(t, string(payload), envelope.Payload)
	assert.True(t, strings.HasPrefix(envelope.Signer, "did:pkh:eip155:1:0x"))

	require.NoError(t, identity.ValidateSignature(signer.Address(), payload, envelope.Signature))
}

func TestValidateRejectsWrongAddress(t *testing.T) {
	signer, err := identity.NewKeySigner(testKey)
	require.NoError(t, err)

	envelope, err := signer.Sign([]byte("challenge-abc123"))
	require.NoError(t, err)

	err = identity.ValidateSignature(
		"0x0000000000000000000000000000000000000001", []byte("challenge-abc123"), envelope.Signature)
	require.Error(t, err)
}

func TestValidateRejectsTamperedPayload(t *testing.T) {
	signer, err := identity.NewKeySigner(testKey)
	require.NoError(t, err)

	envelope, err := signer.Sign([]byte("challenge-abc123"))
	require.NoError(t, err)

	err = identity.ValidateSignature(signer.Address(), []byte("challenge-tampered"), envelope.Signature)
	require.Error(t, err)
}

func TestAddressFromDID(t *testing.T) {
	signer, err := identity.NewKeySigner(testKey)
	require.NoError(t, err)

	addr, err := identity.AddressFromDID(signer.DID())
	require.NoError(t, err)
	assert.True(t, strings.EqualFold(signer.Address(), addr))

	_, err = identity.AddressFromDID("did:key:z6Mk")
	require.Error(t, err)
	_, err = identity.AddressFromDID("did:pkh:eip155:1:not-an-address")
	require.Error(t, err)
}
