package oauth

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/passportxyz/passport-claim/platforms"
	"github.com/passportxyz/passport-claim/types"
)

// Config describes one authorization-code platform. The code exchange
// itself happens on the issuance side; this adapter only drives the
// user-facing half of the flow and collects the redirect's code.
type Config struct {
	PlatformID types.PlatformID
	// Path overrides the rendezvous channel path; defaults to the
	// platform id.
	Path      string
	AuthURL   string
	ClientID  string
	Scope     string
}

// Platform is a generic OAuth authorization-code adapter: hand the
// authorize URL to an external window, suspend on the redirect
// rendezvous, and return the code/state pair as proof material.
type Platform struct {
	cfg Config
	log zerolog.Logger
}

var _ platforms.Platform = (*Platform)(nil)

func New(cfg Config, log zerolog.Logger) (*Platform, error) {
	if cfg.PlatformID == "" {
		return nil, fmt.Errorf("oauth: platform id is required")
	}
	if cfg.AuthURL == "" {
		return nil, fmt.Errorf("oauth: auth url is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("oauth: client id is required")
	}
	if cfg.Path == "" {
		cfg.Path = string(cfg.PlatformID)
	}
	return &Platform{cfg: cfg, log: log}, nil
}

func (p *Platform) PlatformID() types.PlatformID { return p.cfg.PlatformID }
func (p *Platform) Path() string                 { return p.cfg.Path }

// AuthorizeURL builds the provider's authorize URL for the given state
// token and callback origin. The host surfaces it to the user's window.
func (p *Platform) AuthorizeURL(state, callbackURL string) string {
	query := url.Values{}
	query.Set("response_type", "code")
	query.Set("client_id", p.cfg.ClientID)
	query.Set("redirect_uri", callbackURL)
	query.Set("state", state)
	if p.cfg.Scope != "" {
		query.Set("scope", p.cfg.Scope)
	}
	return p.cfg.AuthURL + "?" + query.Encode()
}

func (p *Platform) GetProviderPayload(ctx context.Context, app platforms.AppContext) (types.ProviderPayload, error) {
	if app.WaitForRedirect == nil {
		return nil, fmt.Errorf("oauth: no redirect rendezvous available")
	}

	p.log.Info().
		Str("op", "getProviderPayload").
		Str("platform", string(p.cfg.PlatformID)).
		Str("authUrl", p.AuthorizeURL(app.State, app.CallbackURL)).
		Msg("oauth: awaiting redirect")

	code, state, err := app.WaitForRedirect(ctx, p.Path())
	if err != nil {
		return nil, fmt.Errorf("wait for redirect: %w", err)
	}
	if state != app.State {
		return nil, fmt.Errorf("oauth: state mismatch, got %q", state)
	}

	return types.ProviderPayload{
		"code":        code,
		"state":       state,
		"redirectUri": app.CallbackURL,
	}, nil
}
