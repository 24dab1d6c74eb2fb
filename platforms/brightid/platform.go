package brightid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/passportxyz/passport-claim/platforms"
	"github.com/passportxyz/passport-claim/types"
)

// PlatformID is the BrightID platform id.
const PlatformID types.PlatformID = "Brightid"

type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Platform triggers a BrightID sponsorship. Credential issuance depends
// on BrightID approving the sponsorship out of band, so the payload
// carries the sponsorship discriminator instead of proof material: the
// claim loop short-circuits and the stamp is picked up on a later run.
type Platform struct {
	sponsorURL string
	client     HTTPClient
	log        zerolog.Logger
}

var _ platforms.Platform = (*Platform)(nil)

func New(sponsorURL string, client HTTPClient, log zerolog.Logger) *Platform {
	if client == nil {
		client = http.DefaultClient
	}
	return &Platform{sponsorURL: sponsorURL, client: client, log: log}
}

func (p *Platform) PlatformID() types.PlatformID { return PlatformID }
func (p *Platform) Path() string                 { return string(PlatformID) }

func (p *Platform) GetProviderPayload(ctx context.Context, app platforms.AppContext) (types.ProviderPayload, error) {
	result := "success"
	if err := p.triggerSponsorship(ctx, app.CallerDID); err != nil {
		p.log.Error().
			Err(err).
			Str("op", "getProviderPayload").
			Str("platform", string(PlatformID)).
			Msg("brightid: sponsorship trigger failed")
		result = "failure"
	}

	return types.ProviderPayload{
		types.SessionKeyField: types.SponsorshipChannelBrightID,
		"code":                result,
	}, nil
}

func (p *Platform) triggerSponsorship(ctx context.Context, contextID string) error {
	body, err := json.Marshal(map[string]string{"contextIdData": contextID})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.sponsorURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}
