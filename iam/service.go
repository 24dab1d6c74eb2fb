package iam

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goware/cachestore"
	"github.com/rs/zerolog"

	"github.com/passportxyz/passport-claim/identity"
	"github.com/passportxyz/passport-claim/session"
	"github.com/passportxyz/passport-claim/types"
)

// APIVersion names the wire version segment of the issuance routes.
const APIVersion = "0.0.0"

// RecordVersion stamps the provider record carried in each issued
// credential response.
const RecordVersion = "0.0.0"

const (
	didPrefix = "did:pkh:eip155:1:"

	// challengeTTL is how long a caller has to sign a challenge before
	// it evaporates.
	challengeTTL = 5 * time.Minute

	// credentialLifetime is how long an issued stamp stays valid.
	credentialLifetime = 90 * 24 * time.Hour

	// challengeLifetime bounds the challenge credential itself.
	challengeLifetime = 30 * time.Minute
)

// challengeSession is one pending proof-of-control exchange.
type challengeSession struct {
	Challenge string           `json:"challenge"`
	Type      types.PlatformID `json:"type"`
	Address   string           `json:"address"`
}

// Service issues verifiable credentials: it mints address-bound
// challenges, checks the signed challenge on verification, runs the
// per-provider verifiers and signs one credential per verified claim.
type Service struct {
	signer     identity.Signer
	nullifier  identity.NullifierGenerator
	verifiers  *VerifierRegistry
	challenges *session.Store[challengeSession]
	log        zerolog.Logger
}

func NewService(
	signer identity.Signer,
	nullifier identity.NullifierGenerator,
	verifiers *VerifierRegistry,
	cacheBackend cachestore.Backend,
	log zerolog.Logger,
) (*Service, error) {
	challenges, err := session.NewStore[challengeSession](cacheBackend, challengeTTL)
	if err != nil {
		return nil, fmt.Errorf("iam: open challenge store: %w", err)
	}
	return &Service{
		signer:     signer,
		nullifier:  nullifier,
		verifiers:  verifiers,
		challenges: challenges,
		log:        log,
	}, nil
}

// Challenge mints a challenge credential bound to the request address.
// The caller must sign the challenge string and present it on verify.
func (s *Service) Challenge(ctx context.Context, req types.ChallengeRequest) (*types.VerifiableCredential, error) {
	if req.Address == "" {
		return nil, types.NewAPIError(http.StatusBadRequest, "address is required")
	}
	if req.Type == "" {
		return nil, types.NewAPIError(http.StatusBadRequest, "type is required")
	}

	challenge, err := identity.RandomChallenge(req.Address)
	if err != nil {
		return nil, fmt.Errorf("mint challenge: %w", err)
	}

	sess := challengeSession{
		Challenge: challenge,
		Type:      req.Type,
		Address:   req.Address,
	}
	if err := s.challenges.Create(ctx, challengeKey(req.Address, req.Type), sess); err != nil {
		return nil, fmt.Errorf("store challenge: %w", err)
	}

	credential := identity.NewCredential(s.signer.DID(), types.CredentialSubject{
		ID:        didPrefix + strings.ToLower(req.Address),
		Provider:  "challenge-" + string(req.Type),
		Address:   req.Address,
		Challenge: challenge,
	}, challengeLifetime)
	if err := identity.SignCredential(s.signer, credential); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("op", "challenge").
		Str("type", string(req.Type)).
		Msg("iam: challenge issued")
	return credential, nil
}

// Verify checks the signed challenge and issues one credential response
// entry per requested provider. Provider failures produce error entries;
// only a rejected challenge fails the whole request.
func (s *Service) Verify(ctx context.Context, body types.VerifyRequestBody) (*types.VerifyCredentialsResponse, error) {
	req := body.Payload
	if err := s.checkChallenge(ctx, req, body.SignedChallenge); err != nil {
		return nil, err
	}

	providers := req.Types
	if len(providers) == 0 && req.Type != "" {
		providers = []types.ProviderID{types.ProviderID(req.Type)}
	}
	if len(providers) == 0 {
		return nil, types.NewAPIError(http.StatusBadRequest, "no provider types requested")
	}

	resp := &types.VerifyCredentialsResponse{
		Credentials: make([]types.CredentialResponseBody, 0, len(providers)),
	}
	for _, provider := range providers {
		entry := s.issueFor(ctx, provider, req)
		resp.Credentials = append(resp.Credentials, entry)
	}
	return resp, nil
}

func (s *Service) checkChallenge(ctx context.Context, req types.VerificationRequest, signed types.SignedEnvelope) error {
	key := challengeKey(req.Address, req.Type)
	sess, exists, err := s.challenges.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("get challenge: %w", err)
	}
	if !exists {
		return types.NewAPIError(http.StatusUnauthorized, "challenge not found or expired")
	}
	if signed.Payload != sess.Challenge {
		return types.NewAPIError(http.StatusUnauthorized, "challenge mismatch")
	}
	if err := identity.ValidateSignature(req.Address, []byte(signed.Payload), signed.Signature); err != nil {
		s.log.Warn().Err(err).
			Str("op", "verify").
			Str("type", string(req.Type)).
			Msg("iam: challenge signature rejected")
		return types.NewAPIError(http.StatusUnauthorized, "challenge signature verification failed")
	}

	// Single use: a replayed challenge must re-enter through /challenge.
	if err := s.challenges.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete challenge: %w", err)
	}
	return nil
}

func (s *Service) issueFor(ctx context.Context, provider types.ProviderID, req types.VerificationRequest) types.CredentialResponseBody {
	verifier, ok := s.verifiers.Lookup(provider)
	if !ok {
		return types.CredentialResponseBody{
			Error: fmt.Sprintf("unsupported provider: %s", provider),
			Code:  http.StatusBadRequest,
		}
	}

	record, err := verifier.Verify(ctx, req)
	if err != nil {
		s.log.Warn().Err(err).
			Str("op", "verify").
			Str("provider", string(provider)).
			Msg("iam: provider verification failed")
		return types.CredentialResponseBody{
			Error: fmt.Sprintf("unable to verify provider %s", provider),
			Code:  http.StatusForbidden,
		}
	}

	// The record carries provider identity plus the hashing scheme
	// version, so nullifiers never collide across providers.
	hashRecord := types.ProofRecord{"type": string(provider), "version": RecordVersion}
	for k, v := range record {
		hashRecord[k] = v
	}
	hash, err := s.nullifier.Nullifier(hashRecord)
	if err != nil {
		return types.CredentialResponseBody{
			Error: fmt.Sprintf("unable to hash record for provider %s", provider),
			Code:  http.StatusInternalServerError,
		}
	}

	credential := identity.NewCredential(s.signer.DID(), types.CredentialSubject{
		ID:       didPrefix + strings.ToLower(req.Address),
		Provider: string(provider),
		Hash:     hash,
		Context: map[string]string{
			"hash":     "https://schema.org/Text",
			"provider": "https://schema.org/Text",
		},
	}, credentialLifetime)
	if err := identity.SignCredential(s.signer, credential); err != nil {
		return types.CredentialResponseBody{
			Error: fmt.Sprintf("unable to sign credential for provider %s", provider),
			Code:  http.StatusInternalServerError,
		}
	}

	return types.CredentialResponseBody{
		Record:     &types.ProviderRecord{Type: string(provider), Version: RecordVersion},
		Credential: credential,
	}
}

func challengeKey(address string, platform types.PlatformID) string {
	return strings.ToLower(address) + "#" + string(platform)
}
