package evm

import (
	"context"

	"github.com/passportxyz/passport-claim/platforms"
	"github.com/passportxyz/passport-claim/types"
)

// Platform covers the on-chain platform family (Gitcoin, NFT, GtcStaking
// and friends): there is no user-facing acquisition step, verification
// happens entirely on the issuance side from chain reads, so the
// provider payload is trivially empty.
type Platform struct {
	id types.PlatformID
}

var _ platforms.Platform = (*Platform)(nil)

func New(id types.PlatformID) *Platform {
	return &Platform{id: id}
}

func (p *Platform) PlatformID() types.PlatformID { return p.id }
func (p *Platform) Path() string                 { return string(p.id) }

func (p *Platform) GetProviderPayload(context.Context, platforms.AppContext) (types.ProviderPayload, error) {
	return types.ProviderPayload{}, nil
}
