package idena

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goware/cachestore"
	"github.com/rs/zerolog"

	"github.com/passportxyz/passport-claim/platforms"
	"github.com/passportxyz/passport-claim/session"
	"github.com/passportxyz/passport-claim/types"
)

// PlatformID is the Idena platform id.
const PlatformID types.PlatformID = "Idena"

// DefaultAPIURL is the public Idena indexer API.
const DefaultAPIURL = "https://api.idena.io"

// sessionTTL bounds a sign-in session; the Idena app has this long to
// sign the nonce before the session evaporates.
const sessionTTL = 5 * time.Minute

type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// SignInSession is one Idena sign-in in progress: the app signs our
// nonce with the identity's private key, and we resolve the signature
// back to the identity address.
type SignInSession struct {
	Token     string `json:"token"`
	Nonce     string `json:"nonce,omitempty"`
	Address   string `json:"address,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// Authenticated reports whether the session completed the nonce
// signature exchange.
func (s SignInSession) Authenticated() bool {
	return s.Signature != ""
}

// Platform drives the Idena sign-in flow against an injected session
// store; there is no ambient session state.
type Platform struct {
	sessions *session.Store[SignInSession]
	apiURL   string
	client   HTTPClient
	log      zerolog.Logger

	// OnSignIn, when set, observes the minted session token and deep
	// link before the platform suspends on the redirect. The host uses
	// it to surface the link to the user's window.
	OnSignIn func(token, signInURL string)
}

var _ platforms.Platform = (*Platform)(nil)

func New(backend cachestore.Backend, apiURL string, client HTTPClient, log zerolog.Logger) (*Platform, error) {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	sessions, err := session.NewStore[SignInSession](backend, sessionTTL)
	if err != nil {
		return nil, fmt.Errorf("idena: open session store: %w", err)
	}
	return &Platform{
		sessions: sessions,
		apiURL:   strings.TrimSuffix(apiURL, "/"),
		client:   client,
		log:      log,
	}, nil
}

func (p *Platform) PlatformID() types.PlatformID { return PlatformID }
func (p *Platform) Path() string                 { return string(PlatformID) }

// InitSession mints a sign-in session and returns its token.
func (p *Platform) InitSession(ctx context.Context) (string, error) {
	token := "idena-" + randomHex(32)
	if err := p.sessions.Create(ctx, token, SignInSession{Token: token}); err != nil {
		return "", err
	}
	return token, nil
}

// StartSession records the address the Idena app claims and hands back
// the nonce it must sign. Starting an unknown or already-started
// session fails.
func (p *Platform) StartSession(ctx context.Context, token, address string) (string, error) {
	sess, exists, err := p.sessions.Get(ctx, token)
	if err != nil {
		return "", err
	}
	if !exists || sess.Nonce != "" {
		return "", fmt.Errorf("idena: no startable session for token")
	}

	sess.Nonce = "signin-" + randomHex(32)
	sess.Address = address
	if err := p.sessions.Update(ctx, token, sess); err != nil {
		return "", err
	}
	return sess.Nonce, nil
}

// Authenticate resolves the nonce signature to an address via the Idena
// API and accepts the session when it matches the claimed address.
func (p *Platform) Authenticate(ctx context.Context, token, signature string) (bool, error) {
	sess, exists, err := p.sessions.Get(ctx, token)
	if err != nil {
		return false, err
	}
	if !exists || sess.Address == "" || sess.Authenticated() {
		return false, fmt.Errorf("idena: no authenticatable session for token")
	}

	address, err := p.signatureAddress(ctx, sess.Nonce, signature)
	if err != nil {
		p.log.Error().Err(err).Str("op", "authenticate").Msg("idena: signature address lookup failed")
		return false, nil
	}
	if address == "" || !strings.EqualFold(address, sess.Address) {
		return false, nil
	}

	sess.Signature = signature
	if err := p.sessions.Update(ctx, token, sess); err != nil {
		return false, err
	}
	return true, nil
}

// Session exposes a live session to issuance-side verifiers.
func (p *Platform) Session(ctx context.Context, token string) (SignInSession, bool, error) {
	return p.sessions.Get(ctx, token)
}

// SignInURL is the deep link the Idena app opens to complete sign-in.
func (p *Platform) SignInURL(token, callbackURL string) string {
	query := url.Values{}
	query.Set("token", token)
	query.Set("callback_url", callbackURL)
	query.Set("callback_format", "html")
	return "dna://signin/v1?" + query.Encode()
}

func (p *Platform) GetProviderPayload(ctx context.Context, app platforms.AppContext) (types.ProviderPayload, error) {
	if app.WaitForRedirect == nil {
		return nil, fmt.Errorf("idena: no redirect rendezvous available")
	}

	token, err := p.InitSession(ctx)
	if err != nil {
		return nil, err
	}

	signInURL := p.SignInURL(token, app.CallbackURL)
	p.log.Info().
		Str("op", "getProviderPayload").
		Str("platform", string(PlatformID)).
		Str("signInUrl", signInURL).
		Msg("idena: awaiting sign-in")
	if p.OnSignIn != nil {
		p.OnSignIn(token, signInURL)
	}

	// The callback echoes the session token as the redirect code.
	code, _, err := app.WaitForRedirect(ctx, p.Path())
	if err != nil {
		return nil, fmt.Errorf("wait for redirect: %w", err)
	}
	if code != token {
		return nil, fmt.Errorf("idena: redirect token mismatch")
	}

	sess, exists, err := p.sessions.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if !exists || !sess.Authenticated() {
		return nil, fmt.Errorf("idena: session not authenticated")
	}

	return types.ProviderPayload{
		types.SessionKeyField: token,
		"code":                code,
		"address":             sess.Address,
	}, nil
}

type signatureAddressResponse struct {
	Result string `json:"result"`
}

func (p *Platform) signatureAddress(ctx context.Context, nonce, signature string) (string, error) {
	query := url.Values{}
	query.Set("value", nonce)
	query.Set("signature", signature)

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, p.apiURL+"/api/SignatureAddress?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var body signatureAddressResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return body.Result, nil
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("idena: read random: %v", err))
	}
	return hex.EncodeToString(b)
}
