package types

// PlatformID identifies a logical grouping of providers with a shared
// connection flow, e.g. "Github" or "Google".
type PlatformID string

// EVMBulkVerify is a pseudo-platform with no bound implementation. Its
// provider payload is always empty; verification happens entirely on the
// issuance side from on-chain reads.
const EVMBulkVerify PlatformID = "EVMBulkVerify"

// ProviderID is the smallest verifiable claim unit within a platform,
// e.g. a specific Github contribution threshold.
type ProviderID string

// ProviderPayload is the opaque bag of proof material produced by a
// platform adapter: OAuth code/state, signature, session key, etc. It is
// owned transiently by the claim loop and never persisted.
type ProviderPayload map[string]string

// SessionKeyField is the reserved payload key whose value may signal a
// sponsorship short-circuit.
const SessionKeyField = "sessionKey"

// SponsorshipChannelBrightID is the sponsorship discriminator: a payload
// whose session key carries this value aborts credential issuance in
// favor of the out-of-band BrightID sponsorship flow.
const SponsorshipChannelBrightID = "brightid"

// SponsorshipChannel extracts the sponsorship discriminator from a
// payload, or "" if the payload requests normal issuance.
func (p ProviderPayload) SponsorshipChannel() string {
	if p[SessionKeyField] == SponsorshipChannelBrightID {
		return SponsorshipChannelBrightID
	}
	return ""
}

// StampClaim is one unit of claim work: a platform group and the
// providers selected within it. Constructed by the caller, consumed once
// per claim run.
type StampClaim struct {
	PlatformID        PlatformID   `json:"platformId"`
	SelectedProviders []ProviderID `json:"selectedProviders"`
}

// StampPatch maps one provider to either a verified credential or an
// explicit "no credential" tombstone. A provider whose verification
// failed still produces a patch with Credential unset; it is never
// omitted from the patch array.
type StampPatch struct {
	Provider   ProviderID            `json:"provider"`
	Credential *VerifiableCredential `json:"credential,omitempty"`
}

// VerificationRequest is the typed request sent to the issuance service,
// constructed fresh per platform group.
type VerificationRequest struct {
	Type          PlatformID      `json:"type"`
	Types         []ProviderID    `json:"types"`
	Version       string          `json:"version"`
	Address       string          `json:"address"`
	Proofs        ProviderPayload `json:"proofs"`
	SignatureType string          `json:"signatureType"`
}

// ChallengeRequest asks the issuance service for a challenge bound to an
// address before verification.
type ChallengeRequest struct {
	Type          PlatformID `json:"type"`
	Address       string     `json:"address"`
	SignatureType string     `json:"signatureType"`
}

// SignedEnvelope wraps a payload in the caller's DID signature. The
// issuance service recovers the signer and checks it against the request
// address.
type SignedEnvelope struct {
	Signer    string `json:"signer"`
	Signature string `json:"signature"`
	Payload   string `json:"payload"`
}

// ChallengeRequestBody is the wire body of the challenge endpoint.
type ChallengeRequestBody struct {
	Payload ChallengeRequest `json:"payload"`
}

// VerifyRequestBody is the wire body of the verify endpoint: the typed
// verification request plus the signed challenge proving control of the
// claimed address.
type VerifyRequestBody struct {
	Payload         VerificationRequest   `json:"payload"`
	Challenge       *VerifiableCredential `json:"challenge,omitempty"`
	SignedChallenge SignedEnvelope        `json:"signedChallenge"`
}
