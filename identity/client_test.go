package identity_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passportxyz/passport-claim/identity"
	"github.com/passportxyz/passport-claim/types"
)

func TestFetchVerifiableCredential(t *testing.T) {
	signer, err := identity.NewKeySigner(testKey)
	require.NoError(t, err)

	var verifyBody types.VerifyRequestBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v0.0.0/challenge":
			var body types.ChallengeRequestBody
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, types.PlatformID("Google"), body.Payload.Type)

			_ = json.NewEncoder(w).Encode(types.ChallengeResponse{
				Credential: &types.VerifiableCredential{
					CredentialSubject: types.CredentialSubject{
						Provider:  "challenge-Google",
						Address:   body.Payload.Address,
						Challenge: "challenge-abc123",
					},
				},
			})
		case "/api/v0.0.0/verify":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&verifyBody))
			_ = json.NewEncoder(w).Encode(types.VerifyCredentialsResponse{
				Credentials: []types.CredentialResponseBody{
					{
						Record:     &types.ProviderRecord{Type: "Google"},
						Credential: &types.VerifiableCredential{Issuer: "did:key:iam"},
					},
				},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := identity.NewClient(nil, zerolog.Nop())
	res, err := client.FetchVerifiableCredential(context.Background(), srv.URL+"/api", types.VerificationRequest{
		Type:          "Google",
		Types:         []types.ProviderID{"Google"},
		Version:       "0.0.0",
		Address:       signer.Address(),
		Proofs:        types.ProviderPayload{"code": "oauth-code"},
		SignatureType: "EIP712",
	}, signer)
	require.NoError(t, err)

	require.Len(t, res.Credentials, 1)
	assert.True(t, res.Credentials[0].Valid())

	// Verify request carried the signed challenge the server issued.
	assert.Equal(t, "challenge-abc123", verifyBody.SignedChallenge.Payload)
	require.NoError(t, identity.ValidateSignature(
		signer.Address(), []byte(verifyBody.SignedChallenge.Payload), verifyBody.SignedChallenge.Signature))
}

func TestFetchVerifiableCredentialSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		types.RespondWithError(w, types.NewAPIError(http.StatusUnauthorized, "Unable to verify payload"))
	}))
	defer srv.Close()

	signer, err := identity.NewKeySigner(testKey)
	require.NoError(t, err)

	client := identity.NewClient(nil, zerolog.Nop())
	_, err = client.FetchVerifiableCredential(context.Background(), srv.URL, types.VerificationRequest{
		Type:    "Google",
		Version: "0.0.0",
		Address: signer.Address(),
	}, signer)
	require.Error(t, err)

	var apiErr *types.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Code)
}
