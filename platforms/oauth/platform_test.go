package oauth_test

import (
	"context"
	"net/url"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passportxyz/passport-claim/platforms"
	"github.com/passportxyz/passport-claim/platforms/oauth"
)

func newPlatform(t *testing.T) *oauth.Platform {
	t.Helper()
	p, err := oauth.New(oauth.Config{
		PlatformID: "Google",
		AuthURL:    "https://accounts.google.com/o/oauth2/v2/auth",
		ClientID:   "client-123",
		Scope:      "email",
	}, zerolog.Nop())
	require.NoError(t, err)
	return p
}

func TestAuthorizeURL(t *testing.T) {
	p := newPlatform(t)

	raw := p.AuthorizeURL("Google-abc", "https://app.passport.xyz")
	parsed, err := url.Parse(raw)
	require.NoError(t, err)

	query := parsed.Query()
	assert.Equal(t, "code", query.Get("response_type"))
	assert.Equal(t, "client-123", query.Get("client_id"))
	assert.Equal(t, "Google-abc", query.Get("state"))
	assert.Equal(t, "https://app.passport.xyz", query.Get("redirect_uri"))
	assert.Equal(t, "email", query.Get("scope"))
}

func TestGetProviderPayload(t *testing.T) {
	p := newPlatform(t)

	app := platforms.AppContext{
		State:       "Google-abc",
		CallbackURL: "https://app.passport.xyz",
		WaitForRedirect: func(_ context.Context, path string) (string, string, error) {
			assert.Equal(t, "Google", path)
			return "oauth-code", "Google-abc", nil
		},
	}
	payload, err := p.GetProviderPayload(context.Background(), app)
	require.NoError(t, err)
	assert.Equal(t, "oauth-code", payload["code"])
	assert.Equal(t, "Google-abc", payload["state"])
	assert.Equal(t, "https://app.passport.xyz", payload["redirectUri"])
}

func TestGetProviderPayloadRejectsStateMismatch(t *testing.T) {
	p := newPlatform(t)

	app := platforms.AppContext{
		State: "Google-abc",
		WaitForRedirect: func(context.Context, string) (string, string, error) {
			return "oauth-code", "Google-forged", nil
		},
	}
	_, err := p.GetProviderPayload(context.Background(), app)
	require.Error(t, err)
}

func TestGetProviderPayloadRequiresRendezvous(t *testing.T) {
	p := newPlatform(t)
	_, err := p.GetProviderPayload(context.Background(), platforms.AppContext{State: "Google-abc"})
	require.Error(t, err)
}
