package iam

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/passportxyz/passport-claim/types"
)

// Verifier checks one provider's claim from the proof material in a
// verification request and returns the facts the credential attests to.
// The returned record seeds the subject's uniqueness hash, so it must be
// stable for the same underlying identity.
type Verifier interface {
	ProviderID() types.ProviderID
	Verify(ctx context.Context, req types.VerificationRequest) (types.ProofRecord, error)
}

// VerifierRegistry maps provider ids to their verifiers.
type VerifierRegistry struct {
	mu        sync.RWMutex
	verifiers map[types.ProviderID]Verifier
}

func NewVerifierRegistry() *VerifierRegistry {
	return &VerifierRegistry{verifiers: map[types.ProviderID]Verifier{}}
}

func (r *VerifierRegistry) Register(v Verifier) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := v.ProviderID()
	if _, exists := r.verifiers[id]; exists {
		return fmt.Errorf("verifier already registered for provider %q", id)
	}
	r.verifiers[id] = v
	return nil
}

func (r *VerifierRegistry) Lookup(id types.ProviderID) (Verifier, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.verifiers[id]
	return v, ok
}

func (r *VerifierRegistry) IDs() []types.ProviderID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]types.ProviderID, 0, len(r.verifiers))
	for id := range r.verifiers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
