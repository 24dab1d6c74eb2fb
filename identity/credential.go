package identity

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"

	"github.com/0xsequence/ethkit/go-ethereum/common/hexutil"
	"github.com/gowebpki/jcs"

	"github.com/passportxyz/passport-claim/types"
)

const (
	credentialContext = "https://www.w3.org/2018/credentials/v1"
	proofType         = "EcdsaSecp256k1RecoverySignature2020"
	proofPurpose      = "assertionMethod"
)

// NewCredential builds an unsigned credential for the subject, valid
// from now for the given lifetime.
func NewCredential(issuer string, subject types.CredentialSubject, lifetime time.Duration) *types.VerifiableCredential {
	now := time.Now().UTC()
	return &types.VerifiableCredential{
		Context:           []string{credentialContext},
		Type:              []string{"VerifiableCredential"},
		CredentialSubject: subject,
		Issuer:            issuer,
		IssuanceDate:      now.Format(time.RFC3339),
		ExpirationDate:    now.Add(lifetime).Format(time.RFC3339),
	}
}

// SignCredential attaches an issuer proof: a recoverable secp256k1
// signature over the canonicalized credential without its proof.
func SignCredential(signer Signer, credential *types.VerifiableCredential) error {
	canonical, err := canonicalCredential(credential)
	if err != nil {
		return err
	}
	envelope, err := signer.Sign(canonical)
	if err != nil {
		return fmt.Errorf("sign credential: %w", err)
	}
	credential.Proof = &types.CredentialProof{
		Type:               proofType,
		ProofPurpose:       proofPurpose,
		ProofValue:         envelope.Signature,
		VerificationMethod: signer.DID() + "#blockchainAccountId",
		Created:            time.Now().UTC().Format(time.RFC3339),
	}
	return nil
}

// VerifyCredential checks the issuer proof against the credential's
// issuer DID.
func VerifyCredential(credential *types.VerifiableCredential) error {
	if credential.Proof == nil {
		return fmt.Errorf("credential has no proof")
	}
	address, err := AddressFromDID(credential.Issuer)
	if err != nil {
		return fmt.Errorf("issuer: %w", err)
	}

	unsigned := *credential
	unsigned.Proof = nil
	canonical, err := canonicalCredential(&unsigned)
	if err != nil {
		return err
	}
	if err := ValidateSignature(address, canonical, credential.Proof.ProofValue); err != nil {
		return fmt.Errorf("credential proof: %w", err)
	}
	return nil
}

// ExpiredCredential reports whether the credential's expiration date has
// passed. Unparseable dates count as expired.
func ExpiredCredential(credential *types.VerifiableCredential, now time.Time) bool {
	expiry, err := time.Parse(time.RFC3339, credential.ExpirationDate)
	if err != nil {
		return true
	}
	return now.After(expiry)
}

func canonicalCredential(credential *types.VerifiableCredential) ([]byte, error) {
	raw, err := json.Marshal(credential)
	if err != nil {
		return nil, fmt.Errorf("marshal credential: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize credential: %w", err)
	}
	return canonical, nil
}

// RandomChallenge mints the statement a caller signs to prove control
// of an address.
func RandomChallenge(address string) (string, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return fmt.Sprintf("I commit that this wallet is under my control and I wish to verify it: %s nonce: %s",
		address, hexutil.Encode(nonce)), nil
}
