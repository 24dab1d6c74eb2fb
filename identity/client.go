package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/passportxyz/passport-claim/types"
)

type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Client talks to the issuance (IAM) service. It does not retry;
// the endpoints are safe for the caller to retry.
type Client struct {
	httpClient HTTPClient
	log        zerolog.Logger
}

func NewClient(httpClient HTTPClient, log zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{httpClient: httpClient, log: log}
}

// FetchVerifiableCredential runs the full issuance exchange for one
// platform group: fetch a challenge bound to the address, sign it with
// the caller's key, then submit the verification request. The response
// carries zero or more issued-or-errored credential entries.
func (c *Client) FetchVerifiableCredential(
	ctx context.Context, issuerURL string, req types.VerificationRequest, signer Signer,
) (types.VerifyCredentialsResponse, error) {
	challenge, err := c.fetchChallenge(ctx, issuerURL, types.ChallengeRequest{
		Type:          req.Type,
		Address:       req.Address,
		SignatureType: req.SignatureType,
	}, req.Version)
	if err != nil {
		return types.VerifyCredentialsResponse{}, fmt.Errorf("fetch challenge: %w", err)
	}
	if challenge.Credential == nil || challenge.Credential.CredentialSubject.Challenge == "" {
		return types.VerifyCredentialsResponse{}, fmt.Errorf("issuer returned empty challenge")
	}

	signed, err := signer.Sign([]byte(challenge.Credential.CredentialSubject.Challenge))
	if err != nil {
		return types.VerifyCredentialsResponse{}, fmt.Errorf("sign challenge: %w", err)
	}

	body := types.VerifyRequestBody{
		Payload:         req,
		Challenge:       challenge.Credential,
		SignedChallenge: signed,
	}

	var res types.VerifyCredentialsResponse
	if err := c.post(ctx, endpoint(issuerURL, req.Version, "verify"), body, &res); err != nil {
		return types.VerifyCredentialsResponse{}, fmt.Errorf("verify credentials: %w", err)
	}

	c.log.Debug().
		Str("op", "fetchVerifiableCredential").
		Str("platform", string(req.Type)).
		Int("credentials", len(res.Credentials)).
		Msg("identity: verify response received")
	return res, nil
}

func (c *Client) fetchChallenge(
	ctx context.Context, issuerURL string, req types.ChallengeRequest, version string,
) (types.ChallengeResponse, error) {
	var res types.ChallengeResponse
	err := c.post(ctx, endpoint(issuerURL, version, "challenge"), types.ChallengeRequestBody{Payload: req}, &res)
	return res, err
}

func (c *Client) post(ctx context.Context, url string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr types.APIError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Message != "" {
			apiErr.Code = resp.StatusCode
			return &apiErr
		}
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func endpoint(issuerURL, version, name string) string {
	return strings.TrimSuffix(issuerURL, "/") + "/v" + version + "/" + name
}
