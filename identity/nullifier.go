package identity

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/passportxyz/passport-claim/types"
)

// Version tracks the hashing mechanism (algorithm + canonicalization).
// It prefixes every nullifier so old hashes stay distinguishable if the
// mechanism ever changes.
const Version = "v0.0.0"

// NullifierGenerator derives the uniqueness hash recorded in a
// credential subject from the provider-verified proof record.
type NullifierGenerator interface {
	Nullifier(record types.ProofRecord) (string, error)
}

// HashNullifier hashes the canonicalized proof record together with a
// server-side secret, so the same proof always maps to the same
// nullifier without revealing the record.
type HashNullifier struct {
	key string
}

func NewHashNullifier(key string) (*HashNullifier, error) {
	if key == "" {
		return nil, fmt.Errorf("nullifier: empty key")
	}
	return &HashNullifier{key: key}, nil
}

func (n *HashNullifier) Nullifier(record types.ProofRecord) (string, error) {
	canonical, err := canonicalizeRecord(record)
	if err != nil {
		return "", fmt.Errorf("canonicalize record: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(n.key))
	h.Write(canonical)
	return Version + ":" + base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

// canonicalizeRecord produces the RFC 8785 canonical JSON of the record,
// giving a stable byte sequence regardless of key ordering.
func canonicalizeRecord(record types.ProofRecord) ([]byte, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(raw)
}
