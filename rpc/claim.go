package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/passportxyz/passport-claim/rendezvous"
	"github.com/passportxyz/passport-claim/types"
)

type claimRequest struct {
	Claims []types.StampClaim `json:"claims"`
}

// claimHandler kicks off a claim run for the posted platform groups.
// The run detaches from the request: redirect waits can take minutes,
// so the caller polls /claim/status for progress.
func (s *RPC) claimHandler(w http.ResponseWriter, r *http.Request) {
	var body claimRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		types.RespondWithError(w, types.NewAPIError(http.StatusBadRequest, "invalid request body"))
		return
	}
	if len(body.Claims) == 0 {
		types.RespondWithError(w, types.NewAPIError(http.StatusBadRequest, "no claims provided"))
		return
	}
	// The claimer's progress status oscillates back to idle between
	// groups, so it cannot double as a reentrancy guard. A dedicated
	// flag holds for the whole run.
	if !atomic.CompareAndSwapInt32(&s.claiming, 0, 1) {
		types.RespondWithError(w, types.NewAPIError(http.StatusConflict, "claim run already in progress"))
		return
	}

	go func() {
		defer atomic.StoreInt32(&s.claiming, 0)
		ctx := context.Background()
		onStep := func(_ context.Context, step int, platformID types.PlatformID) error {
			s.Log.Info().
				Str("op", "claim").
				Int("step", step).
				Str("platform", string(platformID)).
				Msg("rpc: claim step")
			return nil
		}
		onError := func(err error) {
			s.Log.Error().Err(err).Str("op", "claim").Msg("rpc: claim group error")
		}
		if err := s.Claimer.ClaimCredentials(ctx, onStep, onError, body.Claims); err != nil {
			s.Log.Error().Err(err).Str("op", "claim").Msg("rpc: claim run failed")
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"accepted": true,
		"groups":   len(body.Claims),
	})
}

func (s *RPC) claimStatusHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": s.Claimer.Status(),
	})
}

// oauthCallbackHandler is the landing endpoint for OAuth provider
// redirects. The state token's platform prefix names the rendezvous
// channel the waiting claim run opened.
func (s *RPC) oauthCallbackHandler(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		types.RespondWithError(w, types.NewAPIError(http.StatusBadRequest, "code and state are required"))
		return
	}

	idx := strings.LastIndex(state, "-")
	if idx <= 0 {
		types.RespondWithError(w, types.NewAPIError(http.StatusBadRequest, "malformed state"))
		return
	}
	target := state[:idx]

	delivered := s.Broker.Publish(rendezvous.Message{
		Target: target,
		Data:   rendezvous.Redirect{Code: code, State: state},
	})
	s.Log.Info().
		Str("op", "oauthCallback").
		Str("target", target).
		Bool("delivered", delivered).
		Msg("rpc: oauth redirect received")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("<!DOCTYPE html><html><body><p>Verification complete. You may close this window.</p></body></html>"))
}

type idenaStartSessionRequest struct {
	Token   string `json:"token"`
	Address string `json:"address"`
}

type idenaAuthenticateRequest struct {
	Token     string `json:"token"`
	Signature string `json:"signature"`
}

// idenaStartSessionHandler and idenaAuthenticateHandler implement the
// callback half of the Idena sign-in protocol: the Idena app posts the
// session token with the identity address, receives a nonce, then posts
// the nonce signature back.
func (s *RPC) idenaStartSessionHandler(w http.ResponseWriter, r *http.Request) {
	var body idenaStartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		types.RespondWithError(w, types.NewAPIError(http.StatusBadRequest, "invalid request body"))
		return
	}

	nonce, err := s.Idena.StartSession(r.Context(), body.Token, body.Address)
	if err != nil {
		types.RespondWithError(w, types.NewAPIError(http.StatusBadRequest, "unable to start session"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    map[string]string{"nonce": nonce},
	})
}

func (s *RPC) idenaAuthenticateHandler(w http.ResponseWriter, r *http.Request) {
	var body idenaAuthenticateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		types.RespondWithError(w, types.NewAPIError(http.StatusBadRequest, "invalid request body"))
		return
	}

	ok, err := s.Idena.Authenticate(r.Context(), body.Token, body.Signature)
	if err != nil {
		types.RespondWithError(w, types.NewAPIError(http.StatusBadRequest, "unable to authenticate session"))
		return
	}

	if ok {
		// Release the claim run suspended on the Idena channel; the
		// session token doubles as the redirect code.
		s.Broker.Publish(rendezvous.Message{
			Target: s.Idena.Path(),
			Data:   rendezvous.Redirect{Code: body.Token},
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": ok,
		"data":    map[string]bool{"authenticated": ok},
	})
}
