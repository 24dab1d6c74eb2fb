package claim

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/passportxyz/passport-claim/identity"
	"github.com/passportxyz/passport-claim/o11y"
	"github.com/passportxyz/passport-claim/platforms"
	"github.com/passportxyz/passport-claim/types"
)

// RequestVersion is the verification request wire version.
const RequestVersion = "0.0.0"

// StepFn reports progress positions to the caller. Steps are contiguous
// over eligible groups, starting at 0; the terminal call uses step -1
// with an empty platform id once the run completes.
type StepFn func(ctx context.Context, step int, platformID types.PlatformID) error

// ErrorFn is invoked at minimum once whenever a group yields zero valid
// credentials out of a non-empty selection.
type ErrorFn func(err error)

// IssuanceClient is the credential issuance boundary. The claimer does
// not retry; implementations must be safe to retry by the caller.
type IssuanceClient interface {
	FetchVerifiableCredential(
		ctx context.Context, issuerURL string, req types.VerificationRequest, signer identity.Signer,
	) (types.VerifyCredentialsResponse, error)
}

// StampStore is the credential-store patch boundary. One call per group;
// the store applies the patch array atomically relative to concurrent
// readers.
type StampStore interface {
	PatchStamps(ctx context.Context, patches []types.StampPatch) error
}

// Config wires a Claimer. DID and address are captured once here;
// changing them mid-run is not supported.
type Config struct {
	Platforms     *platforms.Registry
	Issuance      IssuanceClient
	Stamps        StampStore
	Sponsor       SponsorHandler
	Signer        identity.Signer
	Redirects     platforms.RedirectFn
	IssuerURL     string
	CallbackURL   string
	SignatureType string
	Metrics       *o11y.ClaimMetrics
}

// Claimer drives a full claim run to completion exactly once per
// ClaimCredentials call. It is not re-entrant: a second concurrent call
// on the same Claimer is a caller error.
type Claimer struct {
	cfg Config
	log zerolog.Logger

	mu     sync.RWMutex
	status ProgressStatus
}

func NewClaimer(cfg Config, log zerolog.Logger) (*Claimer, error) {
	if cfg.Platforms == nil {
		return nil, fmt.Errorf("claim: platform registry is nil")
	}
	if cfg.Issuance == nil {
		return nil, fmt.Errorf("claim: issuance client is nil")
	}
	if cfg.Stamps == nil {
		return nil, fmt.Errorf("claim: stamp store is nil")
	}
	if cfg.Sponsor == nil {
		cfg.Sponsor = NewSponsorNotifier(nil, log)
	}
	return &Claimer{cfg: cfg, log: log, status: StatusIdle}, nil
}

// Status reports whether any claim work is in flight.
func (c *Claimer) Status() ProgressStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *Claimer) setStatus(status ProgressStatus) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
}

// ClaimCredentials processes the platform groups sequentially, in input
// order, fully awaiting each group's payload acquisition, issuance
// request and patch commit before the next group starts. Per-group
// failures are logged and never abort the run; only a missing caller
// identity does. The sponsorship short-circuit terminates the run early
// without the terminal step callback.
func (c *Claimer) ClaimCredentials(
	ctx context.Context, onStep StepFn, onError ErrorFn, groups []types.StampClaim,
) error {
	if c.cfg.Signer == nil || c.cfg.Signer.DID() == "" {
		return types.ErrMissingIdentity
	}
	if onStep == nil {
		onStep = func(context.Context, int, types.PlatformID) error { return nil }
	}

	c.cfg.Metrics.RunStarted()

	// step counts the groups actually processed. It differs from the
	// loop index because ineligible groups are skipped without a gap in
	// the caller's step sequence.
	step := -1

	for i, group := range groups {
		c.setStatus(StatusIdle)

		platform, bound := c.cfg.Platforms.Lookup(group.PlatformID)
		if (!bound && group.PlatformID != types.EVMBulkVerify) || len(group.SelectedProviders) == 0 {
			c.cfg.Metrics.GroupOutcome("skipped")
			c.log.Error().
				Str("op", "claim").
				Str("platform", string(group.PlatformID)).
				Msg("claim: request for claiming stamp for invalid platform")
			continue
		}

		step++
		outcome, err := c.processGroup(ctx, onStep, onError, step, platform, group)
		if err != nil {
			c.cfg.Metrics.GroupOutcome("failed")
			c.log.Error().
				Err(err).
				Str("op", "claim").
				Str("platform", string(group.PlatformID)).
				Int("group", i).
				Msg("claim: verification error")
			continue
		}
		if outcome == outcomeStopRun {
			// Sponsorship short-circuit: intentional full-run
			// termination, no terminal step callback.
			c.setStatus(StatusIdle)
			return nil
		}
		c.cfg.Metrics.GroupOutcome("processed")
	}

	c.setStatus(StatusIdle)
	if err := onStep(ctx, -1, ""); err != nil {
		return fmt.Errorf("terminal step callback: %w", err)
	}
	return nil
}

func (c *Claimer) processGroup(
	ctx context.Context,
	onStep StepFn,
	onError ErrorFn,
	step int,
	platform platforms.Platform,
	group types.StampClaim,
) (stepOutcome, error) {
	// Announce start, then started: two awaited callback invocations
	// per eligible group, with the platform diagnostic in between.
	if err := onStep(ctx, step, group.PlatformID); err != nil {
		return outcomeContinue, fmt.Errorf("step callback: %w", err)
	}
	c.log.Info().
		Str("op", "claim").
		Str("platform", string(group.PlatformID)).
		Int("step", step).
		Msg("claim: saving stamp")
	if err := onStep(ctx, step, group.PlatformID); err != nil {
		return outcomeContinue, fmt.Errorf("step callback: %w", err)
	}

	c.setStatus(StatusInProgress)

	// Empty payload is correct as-is for the EVMBulkVerify
	// pseudo-platform; bound platforms overwrite it below.
	payload := types.ProviderPayload{}

	if platform != nil {
		state := platform.Path() + "-" + randomID(10)
		var err error
		payload, err = platform.GetProviderPayload(ctx, platforms.AppContext{
			State:             state,
			CallerDID:         c.cfg.Signer.DID(),
			CallbackURL:       c.cfg.CallbackURL,
			SelectedProviders: group.SelectedProviders,
			WaitForRedirect:   c.cfg.Redirects,
		})
		if err != nil {
			return outcomeContinue, fmt.Errorf("get provider payload: %w", err)
		}

		if payload.SponsorshipChannel() != "" {
			c.cfg.Sponsor.HandleSponsorship(ctx, platform, payload["code"])
			return outcomeStopRun, nil
		}
	}

	started := time.Now()
	res, err := c.cfg.Issuance.FetchVerifiableCredential(ctx, c.cfg.IssuerURL, types.VerificationRequest{
		Type:          group.PlatformID,
		Types:         group.SelectedProviders,
		Version:       RequestVersion,
		Address:       c.cfg.Signer.Address(),
		Proofs:        payload,
		SignatureType: c.cfg.SignatureType,
	}, c.cfg.Signer)
	c.cfg.Metrics.ObserveIssuance(time.Since(started))
	if err != nil {
		if onError != nil {
			onError(err)
		}
		return outcomeContinue, fmt.Errorf("fetch verifiable credential: %w", err)
	}

	valid := res.ValidCredentials()
	c.cfg.Metrics.Credentials(len(valid), len(res.Credentials)-len(valid))
	if len(valid) == 0 && onError != nil {
		onError(fmt.Errorf("no valid credentials issued for platform %s", group.PlatformID))
	}

	// One patch per originally selected provider: a verified credential
	// where issuance matched, an explicit tombstone otherwise.
	patches := make([]types.StampPatch, 0, len(group.SelectedProviders))
	for _, provider := range group.SelectedProviders {
		patch := types.StampPatch{Provider: provider}
		if cred, ok := res.FindByProvider(provider); ok {
			patch.Credential = cred.Credential
		}
		patches = append(patches, patch)
	}

	if err := c.cfg.Stamps.PatchStamps(ctx, patches); err != nil {
		return outcomeContinue, fmt.Errorf("patch stamps: %w", err)
	}
	c.cfg.Metrics.PatchesCommitted(len(patches))

	return outcomeContinue, nil
}

const idAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// randomID mints the random suffix of a state token.
func randomID(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("claim: read random: %v", err))
	}
	for i := range b {
		b[i] = idAlphabet[int(b[i])%len(idAlphabet)]
	}
	return string(b)
}
