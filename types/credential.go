package types

// W3C verifiable credential shapes as issued by the IAM service. The
// wire format is owned by the issuance side; these mirror it exactly.

type VerifiableCredential struct {
	Context           []string          `json:"@context"`
	Type              []string          `json:"type"`
	CredentialSubject CredentialSubject `json:"credentialSubject"`
	Issuer            string            `json:"issuer"`
	IssuanceDate      string            `json:"issuanceDate"`
	ExpirationDate    string            `json:"expirationDate"`
	Proof             *CredentialProof  `json:"proof,omitempty"`
}

type CredentialSubject struct {
	ID        string            `json:"id"`
	Context   map[string]string `json:"@context,omitempty"`
	Hash      string            `json:"hash,omitempty"`
	Provider  string            `json:"provider"`
	Address   string            `json:"address,omitempty"`
	Challenge string            `json:"challenge,omitempty"`
}

type CredentialProof struct {
	Context            string `json:"@context,omitempty"`
	Type               string `json:"type"`
	ProofPurpose       string `json:"proofPurpose"`
	ProofValue         string `json:"proofValue"`
	VerificationMethod string `json:"verificationMethod"`
	Created            string `json:"created"`
}

// ProofRecord holds the provider-verified facts a nullifier is derived
// from. Keys and values are both strings; ordering is canonicalized
// before hashing.
type ProofRecord map[string]string

// CredentialResponseBody is one entry of the issuance response. A valid
// entry carries Record and Credential; an errored entry carries Error
// and, when known, the provider it was requested for.
type CredentialResponseBody struct {
	Record     *ProviderRecord       `json:"record,omitempty"`
	Credential *VerifiableCredential `json:"credential,omitempty"`
	Error      string                `json:"error,omitempty"`
	Code       int                   `json:"code,omitempty"`
}

// ProviderRecord names the provider a credential was issued for.
type ProviderRecord struct {
	Type    string `json:"type"`
	Version string `json:"version,omitempty"`
}

// Valid reports whether the entry carries an issued credential rather
// than an error marker.
func (b CredentialResponseBody) Valid() bool {
	return b.Error == "" && b.Credential != nil
}

// VerifyCredentialsResponse is the issuance service's reply to a
// verification request.
type VerifyCredentialsResponse struct {
	Credentials []CredentialResponseBody `json:"credentials,omitempty"`
}

// ChallengeResponse carries the challenge credential the caller must
// sign before verification.
type ChallengeResponse struct {
	Credential *VerifiableCredential `json:"credential"`
}

// ValidCredentials filters the response down to successfully issued
// credentials, preserving order.
func (r VerifyCredentialsResponse) ValidCredentials() []CredentialResponseBody {
	valid := make([]CredentialResponseBody, 0, len(r.Credentials))
	for _, cred := range r.Credentials {
		if cred.Valid() {
			valid = append(valid, cred)
		}
	}
	return valid
}

// FindByProvider returns the first valid credential issued for the given
// provider id, matching on the record type.
func (r VerifyCredentialsResponse) FindByProvider(provider ProviderID) (CredentialResponseBody, bool) {
	for _, cred := range r.Credentials {
		if cred.Valid() && cred.Record != nil && cred.Record.Type == string(provider) {
			return cred, true
		}
	}
	return CredentialResponseBody{}, false
}
