package platforms

import (
	"fmt"
	"sort"
	"sync"

	"github.com/passportxyz/passport-claim/types"
)

// Registry holds the bound platform implementations, keyed by platform
// id. The EVMBulkVerify pseudo-platform is deliberately never registered;
// the claim loop recognizes it by id and uses an empty payload.
type Registry struct {
	mu        sync.RWMutex
	platforms map[types.PlatformID]Platform
}

func NewRegistry() *Registry {
	return &Registry{platforms: make(map[types.PlatformID]Platform)}
}

// Register binds a platform implementation. Registering twice under the
// same id or registering the EVMBulkVerify pseudo-platform is a
// programming error.
func (r *Registry) Register(p Platform) error {
	id := p.PlatformID()
	if id == types.EVMBulkVerify {
		return fmt.Errorf("%q is a pseudo-platform and cannot be bound", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.platforms[id]; ok {
		return fmt.Errorf("platform %q already registered", id)
	}
	r.platforms[id] = p
	return nil
}

// Lookup resolves a platform id to its implementation.
func (r *Registry) Lookup(id types.PlatformID) (Platform, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.platforms[id]
	return p, ok
}

// IDs returns the registered platform ids in stable order.
func (r *Registry) IDs() []types.PlatformID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]types.PlatformID, 0, len(r.platforms))
	for id := range r.platforms {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
