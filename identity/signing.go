package identity

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/0xsequence/ethkit/go-ethereum/common"
	"github.com/0xsequence/ethkit/go-ethereum/common/hexutil"
	"github.com/0xsequence/ethkit/go-ethereum/crypto"

	"github.com/passportxyz/passport-claim/types"
)

// didPrefix binds signatures to mainnet pkh DIDs.
const didPrefix = "did:pkh:eip155:1:"

// Signer produces DID-signed envelopes over request payloads.
type Signer interface {
	DID() string
	Address() string
	Sign(payload []byte) (types.SignedEnvelope, error)
}

// KeySigner signs with a raw secp256k1 key, EIP-191 style over the
// keccak digest of the payload.
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewKeySigner(hexKey string) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	return &KeySigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

func (s *KeySigner) DID() string {
	return didPrefix + strings.ToLower(s.address.String())
}

func (s *KeySigner) Address() string {
	return s.address.String()
}

func (s *KeySigner) Sign(payload []byte) (types.SignedEnvelope, error) {
	sig, err := crypto.Sign(prefixedDigest(payload), s.key)
	if err != nil {
		return types.SignedEnvelope{}, fmt.Errorf("sign payload: %w", err)
	}
	sig[64] += 27
	return types.SignedEnvelope{
		Signer:    s.DID(),
		Signature: hexutil.Encode(sig),
		Payload:   string(payload),
	}, nil
}

// ValidateSignature checks that the envelope's signature over the given
// payload recovers to the expected address.
func ValidateSignature(address string, payload []byte, signature string) error {
	sigBytes, err := hexutil.Decode(signature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	if len(sigBytes) != 65 {
		return errors.New("invalid signature length")
	}

	// handle recovery byte
	if sigBytes[64] == 27 || sigBytes[64] == 28 {
		sigBytes[64] -= 27
	}

	pubKey, err := crypto.Ecrecover(prefixedDigest(payload), sigBytes)
	if err != nil {
		return fmt.Errorf("failed to recover public key: %w", err)
	}
	addr := common.BytesToAddress(crypto.Keccak256(pubKey[1:])[12:])

	if !strings.EqualFold(addr.String(), address) {
		return errors.New("verification failed")
	}
	return nil
}

// AddressFromDID extracts the account address from a pkh DID.
func AddressFromDID(did string) (string, error) {
	idx := strings.LastIndex(did, ":")
	if !strings.HasPrefix(did, "did:pkh:") || idx < 0 {
		return "", fmt.Errorf("not a pkh DID: %s", did)
	}
	addr := did[idx+1:]
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("invalid address in DID: %s", did)
	}
	return addr, nil
}

// prefixedDigest hashes the payload and wraps the hex digest in the
// Ethereum signed-message prefix, matching the wallet-side signer.
func prefixedDigest(payload []byte) []byte {
	digestHex := hexutil.Encode(crypto.Keccak256(payload))
	return crypto.Keccak256([]byte(fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(digestHex), digestHex)))
}
