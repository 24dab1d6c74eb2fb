package data

import (
	"context"
	"sort"
	"sync"

	"github.com/passportxyz/passport-claim/types"
)

// MemoryStamps is an in-memory stamp store for one holder, used in
// local mode and tests.
type MemoryStamps struct {
	mu     sync.Mutex
	stamps map[types.ProviderID]*types.VerifiableCredential
}

func NewMemoryStamps() *MemoryStamps {
	return &MemoryStamps{
		stamps: map[types.ProviderID]*types.VerifiableCredential{},
	}
}

// PatchStamps applies the whole patch array under one lock hold, so a
// concurrent reader never observes a half-applied array.
func (m *MemoryStamps) PatchStamps(_ context.Context, patches []types.StampPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, patch := range patches {
		if patch.Credential == nil {
			delete(m.stamps, patch.Provider)
			continue
		}
		m.stamps[patch.Provider] = patch.Credential
	}
	return nil
}

func (m *MemoryStamps) Get(provider types.ProviderID) (*types.VerifiableCredential, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	credential, ok := m.stamps[provider]
	return credential, ok
}

// Providers lists the providers with a live stamp, sorted.
func (m *MemoryStamps) Providers() []types.ProviderID {
	m.mu.Lock()
	defer m.mu.Unlock()
	providers := make([]types.ProviderID, 0, len(m.stamps))
	for provider := range m.stamps {
		providers = append(providers, provider)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })
	return providers
}
