package iam

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/rs/zerolog"

	"github.com/passportxyz/passport-claim/types"
)

type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
	Get(string) (*http.Response, error)
}

// OIDCConfig describes one OAuth provider whose claim is proven by an
// authorization code exchanged for a signed ID token.
type OIDCConfig struct {
	Provider      types.ProviderID
	Issuer        string
	ClientID      string
	TokenEndpoint string
	JWKSURL       string
	RedirectURI   string
}

// OIDCVerifier redeems the authorization code carried in the request
// proofs and validates the resulting ID token against the issuer's
// published keys.
type OIDCVerifier struct {
	cfg     OIDCConfig
	client  HTTPClient
	secrets SecretProvider
	keys    *jwk.Cache
	log     zerolog.Logger
}

var _ Verifier = (*OIDCVerifier)(nil)

func NewOIDCVerifier(ctx context.Context, cfg OIDCConfig, client HTTPClient, secrets SecretProvider, log zerolog.Logger) (*OIDCVerifier, error) {
	if client == nil {
		client = http.DefaultClient
	}
	keys := jwk.NewCache(ctx)
	if err := keys.Register(cfg.JWKSURL, jwk.WithMinRefreshInterval(15*time.Minute), jwk.WithHTTPClient(client)); err != nil {
		return nil, fmt.Errorf("register jwks url: %w", err)
	}
	return &OIDCVerifier{
		cfg:     cfg,
		client:  client,
		secrets: secrets,
		keys:    keys,
		log:     log,
	}, nil
}

func (v *OIDCVerifier) ProviderID() types.ProviderID {
	return v.cfg.Provider
}

func (v *OIDCVerifier) Verify(ctx context.Context, req types.VerificationRequest) (types.ProofRecord, error) {
	code := req.Proofs["code"]
	if code == "" {
		return nil, fmt.Errorf("missing authorization code")
	}

	idToken, err := v.exchangeCode(ctx, code, req.Proofs["redirectUri"])
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	tok, err := v.verifyToken(ctx, idToken)
	if err != nil {
		v.log.Error().Err(err).
			Str("op", "verify").
			Str("provider", string(v.cfg.Provider)).
			Msg("iam: id token rejected")
		return nil, fmt.Errorf("verify id token: %w", err)
	}

	record := types.ProofRecord{"id": tok.Subject()}
	if emailClaim, ok := tok.Get("email"); ok {
		if email, _ := emailClaim.(string); email != "" {
			record["email"] = email
		}
	}
	return record, nil
}

func (v *OIDCVerifier) exchangeCode(ctx context.Context, code, redirectURI string) (string, error) {
	clientSecret, err := v.secrets.GetClientSecret(ctx, v.cfg.Issuer, v.cfg.ClientID)
	if err != nil {
		return "", fmt.Errorf("get client secret: %w", err)
	}
	if redirectURI == "" {
		redirectURI = v.cfg.RedirectURI
	}

	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", redirectURI)
	data.Set("client_id", v.cfg.ClientID)
	data.Set("client_secret", clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.TokenEndpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if oauthErr, ok := body["error"]; ok {
		return "", fmt.Errorf("oauth error: %s", oauthErr)
	}

	idToken, _ := body["id_token"].(string)
	if idToken == "" {
		return "", fmt.Errorf("id_token not found in token response")
	}
	return idToken, nil
}

func (v *OIDCVerifier) verifyToken(ctx context.Context, idToken string) (jwt.Token, error) {
	keySet, err := v.keys.Get(ctx, v.cfg.JWKSURL)
	if err != nil {
		return nil, fmt.Errorf("fetch issuer keys: %w", err)
	}

	tok, err := jwt.Parse([]byte(idToken), jwt.WithKeySet(keySet), jwt.WithValidate(false))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	validateOptions := []jwt.ValidateOption{
		jwt.WithValidator(withIssuer(v.cfg.Issuer)),
		jwt.WithAudience(v.cfg.ClientID),
		jwt.WithAcceptableSkew(10 * time.Second),
	}
	if err := jwt.Validate(tok, validateOptions...); err != nil {
		return nil, fmt.Errorf("validate token: %w", err)
	}
	return tok, nil
}

func withIssuer(expectedIss string) jwt.ValidatorFunc {
	return func(ctx context.Context, tok jwt.Token) jwt.ValidationError {
		if normalizeIssuer(tok.Issuer()) != normalizeIssuer(expectedIss) {
			return jwt.NewValidationError(fmt.Errorf("iss not satisfied"))
		}
		return nil
	}
}

func normalizeIssuer(iss string) string {
	if !strings.HasPrefix(iss, "https://") && !strings.HasPrefix(iss, "http://") {
		iss = "https://" + iss
	}
	return strings.TrimSuffix(iss, "/")
}
