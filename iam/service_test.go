package iam_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goware/cachestore/memlru"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passportxyz/passport-claim/iam"
	"github.com/passportxyz/passport-claim/identity"
	"github.com/passportxyz/passport-claim/types"
)

const (
	issuerKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	callerKey = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

type staticVerifier struct {
	id     types.ProviderID
	record types.ProofRecord
	err    error
}

func (v *staticVerifier) ProviderID() types.ProviderID { return v.id }

func (v *staticVerifier) Verify(context.Context, types.VerificationRequest) (types.ProofRecord, error) {
	if v.err != nil {
		return nil, v.err
	}
	return v.record, nil
}

func newTestService(t *testing.T, verifiers ...iam.Verifier) (*iam.Service, identity.Signer) {
	t.Helper()

	signer, err := identity.NewKeySigner(issuerKey)
	require.NoError(t, err)
	nullifier, err := identity.NewHashNullifier("test-nullifier-secret")
	require.NoError(t, err)

	registry := iam.NewVerifierRegistry()
	for _, v := range verifiers {
		require.NoError(t, registry.Register(v))
	}

	service, err := iam.NewService(signer, nullifier, registry, memlru.Backend(128), zerolog.Nop())
	require.NoError(t, err)
	return service, signer
}

func TestChallengeVerifyRoundTrip(t *testing.T) {
	service, issuer := newTestService(t, &staticVerifier{
		id:     "Google",
		record: types.ProofRecord{"id": "user-123", "email": "user@example.com"},
	})
	server := iam.NewServer(service, zerolog.Nop(), nil)

	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	caller, err := identity.NewKeySigner(callerKey)
	require.NoError(t, err)
	client := identity.NewClient(nil, zerolog.Nop())

	resp, err := client.FetchVerifiableCredential(context.Background(), srv.URL, types.VerificationRequest{
		Type:          "Google",
		Types:         []types.ProviderID{"Google"},
		Version:       iam.APIVersion,
		Address:       caller.Address(),
		Proofs:        types.ProviderPayload{"code": "authcode", "state": "Google-abc"},
		SignatureType: "EthSign",
	}, caller)
	require.NoError(t, err)

	valid := resp.ValidCredentials()
	require.Len(t, valid, 1)
	credential := valid[0].Credential

	assert.Equal(t, issuer.DID(), credential.Issuer)
	assert.Equal(t, "Google", credential.CredentialSubject.Provider)
	assert.Equal(t, "did:pkh:eip155:1:"+strings.ToLower(caller.Address()), credential.CredentialSubject.ID)
	assert.True(t, strings.HasPrefix(credential.CredentialSubject.Hash, identity.Version+":"))
	require.NoError(t, identity.VerifyCredential(credential))

	require.NotNil(t, valid[0].Record)
	assert.Equal(t, "Google", valid[0].Record.Type)
}

func TestNullifierStableAcrossRuns(t *testing.T) {
	service, _ := newTestService(t, &staticVerifier{
		id:     "Google",
		record: types.ProofRecord{"id": "user-123"},
	})
	server := iam.NewServer(service, zerolog.Nop(), nil)
	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	caller, err := identity.NewKeySigner(callerKey)
	require.NoError(t, err)
	client := identity.NewClient(nil, zerolog.Nop())

	req := types.VerificationRequest{
		Type:    "Google",
		Types:   []types.ProviderID{"Google"},
		Version: iam.APIVersion,
		Address: caller.Address(),
		Proofs:  types.ProviderPayload{"code": "authcode"},
	}

	first, err := client.FetchVerifiableCredential(context.Background(), srv.URL, req, caller)
	require.NoError(t, err)
	second, err := client.FetchVerifiableCredential(context.Background(), srv.URL, req, caller)
	require.NoError(t, err)

	assert.Equal(t,
		first.ValidCredentials()[0].Credential.CredentialSubject.Hash,
		second.ValidCredentials()[0].Credential.CredentialSubject.Hash)
}

func TestChallengeIsSingleUse(t *testing.T) {
	service, _ := newTestService(t)

	caller, err := identity.NewKeySigner(callerKey)
	require.NoError(t, err)

	ctx := context.Background()
	challenge, err := service.Challenge(ctx, types.ChallengeRequest{Type: "Google", Address: caller.Address()})
	require.NoError(t, err)

	signed, err := caller.Sign([]byte(challenge.CredentialSubject.Challenge))
	require.NoError(t, err)

	body := types.VerifyRequestBody{
		Payload: types.VerificationRequest{
			Type:    "Google",
			Types:   []types.ProviderID{"Google"},
			Address: caller.Address(),
		},
		Challenge:       challenge,
		SignedChallenge: signed,
	}
	_, err = service.Verify(ctx, body)
	require.NoError(t, err)

	// Replaying the same signed challenge must fail.
	_, err = service.Verify(ctx, body)
	var apiErr *types.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.Code)
}

func TestVerifyRejectsWrongSigner(t *testing.T) {
	service, _ := newTestService(t)

	caller, err := identity.NewKeySigner(callerKey)
	require.NoError(t, err)
	impostor, err := identity.NewKeySigner(issuerKey)
	require.NoError(t, err)

	ctx := context.Background()
	challenge, err := service.Challenge(ctx, types.ChallengeRequest{Type: "Google", Address: caller.Address()})
	require.NoError(t, err)

	signed, err := impostor.Sign([]byte(challenge.CredentialSubject.Challenge))
	require.NoError(t, err)

	_, err = service.Verify(ctx, types.VerifyRequestBody{
		Payload: types.VerificationRequest{
			Type:    "Google",
			Address: caller.Address(),
		},
		Challenge:       challenge,
		SignedChallenge: signed,
	})
	var apiErr *types.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.Code)
}

func TestVerifyWithoutChallengeFails(t *testing.T) {
	service, _ := newTestService(t)

	caller, err := identity.NewKeySigner(callerKey)
	require.NoError(t, err)

	_, err = service.Verify(context.Background(), types.VerifyRequestBody{
		Payload: types.VerificationRequest{Type: "Google", Address: caller.Address()},
	})
	var apiErr *types.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.Code)
}

func TestUnsupportedProviderYieldsErrorEntry(t *testing.T) {
	service, _ := newTestService(t)

	caller, err := identity.NewKeySigner(callerKey)
	require.NoError(t, err)

	ctx := context.Background()
	challenge, err := service.Challenge(ctx, types.ChallengeRequest{Type: "Unknown", Address: caller.Address()})
	require.NoError(t, err)
	signed, err := caller.Sign([]byte(challenge.CredentialSubject.Challenge))
	require.NoError(t, err)

	resp, err := service.Verify(ctx, types.VerifyRequestBody{
		Payload: types.VerificationRequest{
			Type:    "Unknown",
			Types:   []types.ProviderID{"Unknown"},
			Address: caller.Address(),
		},
		SignedChallenge: signed,
	})
	require.NoError(t, err)
	require.Len(t, resp.Credentials, 1)
	assert.False(t, resp.Credentials[0].Valid())
	assert.Equal(t, 400, resp.Credentials[0].Code)
	assert.Empty(t, resp.ValidCredentials())
}

func TestFailingVerifierYieldsErrorEntryNextToValidOne(t *testing.T) {
	service, _ := newTestService(t,
		&staticVerifier{id: "GoogleBasic", record: types.ProofRecord{"id": "user-123"}},
		&staticVerifier{id: "GooglePro", err: errors.New("not enough activity")},
	)

	caller, err := identity.NewKeySigner(callerKey)
	require.NoError(t, err)

	ctx := context.Background()
	challenge, err := service.Challenge(ctx, types.ChallengeRequest{Type: "Google", Address: caller.Address()})
	require.NoError(t, err)
	signed, err := caller.Sign([]byte(challenge.CredentialSubject.Challenge))
	require.NoError(t, err)

	resp, err := service.Verify(ctx, types.VerifyRequestBody{
		Payload: types.VerificationRequest{
			Type:    "Google",
			Types:   []types.ProviderID{"GoogleBasic", "GooglePro"},
			Address: caller.Address(),
		},
		SignedChallenge: signed,
	})
	require.NoError(t, err)
	require.Len(t, resp.Credentials, 2)

	valid := resp.ValidCredentials()
	require.Len(t, valid, 1)
	assert.Equal(t, "GoogleBasic", valid[0].Record.Type)

	entry, found := resp.FindByProvider("GooglePro")
	assert.False(t, found)
	assert.Empty(t, entry.Credential)
}
