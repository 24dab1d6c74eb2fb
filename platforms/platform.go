package platforms

import (
	"context"

	"github.com/passportxyz/passport-claim/types"
)

// RedirectFn suspends until the OAuth redirect for the given platform
// path lands, returning the code and state it carried. Implementations
// must release any underlying channel on return.
type RedirectFn func(ctx context.Context, path string) (code string, state string, err error)

// AppContext carries everything a platform adapter may need to acquire
// its proof material for one claim group.
type AppContext struct {
	// State is the fresh anti-forgery token minted for this acquisition,
	// of the form "<path>-<random>".
	State string

	// CallerDID is the claiming user's decentralized identifier.
	CallerDID string

	// CallbackURL is the origin redirect-based flows return to.
	CallbackURL string

	// SelectedProviders are the provider ids requested for this group.
	SelectedProviders []types.ProviderID

	// WaitForRedirect is the rendezvous primitive for redirect-based
	// flows. Nil for adapters that never redirect.
	WaitForRedirect RedirectFn
}

// Platform is the capability a platform adapter exposes to the claim
// loop. GetProviderPayload may suspend arbitrarily long on user
// interaction in an external window; it should honor ctx cancellation
// and return an error on user cancel.
type Platform interface {
	PlatformID() types.PlatformID
	Path() string
	GetProviderPayload(ctx context.Context, app AppContext) (types.ProviderPayload, error)
}
