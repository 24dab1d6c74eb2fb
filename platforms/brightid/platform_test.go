package brightid_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passportxyz/passport-claim/platforms"
	"github.com/passportxyz/passport-claim/platforms/brightid"
	"github.com/passportxyz/passport-claim/types"
)

func TestSponsorshipPayload(t *testing.T) {
	var contextID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		contextID = body["contextIdData"]
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := brightid.New(srv.URL, nil, zerolog.Nop())
	payload, err := p.GetProviderPayload(context.Background(), platforms.AppContext{
		CallerDID: "did:pkh:eip155:1:0xabc",
	})
	require.NoError(t, err)

	assert.Equal(t, "did:pkh:eip155:1:0xabc", contextID)
	assert.Equal(t, types.SponsorshipChannelBrightID, payload.SponsorshipChannel())
	assert.Equal(t, "success", payload["code"])
}

func TestSponsorshipFailureStillShortCircuits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := brightid.New(srv.URL, nil, zerolog.Nop())
	payload, err := p.GetProviderPayload(context.Background(), platforms.AppContext{})
	require.NoError(t, err)

	// The flow still signals the sponsorship channel; the result code
	// distinguishes the failure notification.
	assert.Equal(t, types.SponsorshipChannelBrightID, payload.SponsorshipChannel())
	assert.Equal(t, "failure", payload["code"])
}
