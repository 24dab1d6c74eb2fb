package claim

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/passportxyz/passport-claim/platforms"
)

// SponsorshipSuccess is the result discriminator a sponsorship platform
// reports when the out-of-band sponsorship was triggered.
const SponsorshipSuccess = "success"

// Notification is the user-facing outcome of a sponsorship flow. The
// flow itself completes outside this run; no stamp patch is produced
// here, and the credential is picked up on a later run once the external
// approval lands.
type Notification struct {
	Title       string
	Message     string
	Success     bool
	Dismissible bool
	Duration    time.Duration
}

// NotifyFn delivers a notification to whatever UI surface the host has.
type NotifyFn func(Notification)

// SponsorHandler handles providers whose acquisition flow is itself an
// external asynchronous approval rather than a synchronous issuance.
type SponsorHandler interface {
	HandleSponsorship(ctx context.Context, platform platforms.Platform, result string)
}

// SponsorNotifier emits a long-lived dismissible notification for each
// sponsorship outcome and records a structured diagnostic.
type SponsorNotifier struct {
	notify NotifyFn
	log    zerolog.Logger
}

func NewSponsorNotifier(notify NotifyFn, log zerolog.Logger) *SponsorNotifier {
	if notify == nil {
		notify = func(Notification) {}
	}
	return &SponsorNotifier{notify: notify, log: log}
}

func (h *SponsorNotifier) HandleSponsorship(ctx context.Context, platform platforms.Platform, result string) {
	if result == SponsorshipSuccess {
		h.notify(Notification{
			Title:       "Sponsored through Gitcoin for Bright ID",
			Message:     "For verification status updates, check BrightID's app. Once you are verified, return here to complete this stamp.",
			Success:     true,
			Dismissible: true,
			Duration:    9 * time.Second,
		})
		h.log.Info().
			Str("op", "sponsorship").
			Str("platform", string(platform.PlatformID())).
			Msg("claim: successfully sponsored user")
		return
	}

	h.notify(Notification{
		Title:       "Failure",
		Message:     "Failed to trigger BrightID sponsorship",
		Success:     false,
		Dismissible: true,
		Duration:    9 * time.Second,
	})
	h.log.Error().
		Str("op", "sponsorship").
		Str("platform", string(platform.PlatformID())).
		Str("result", result).
		Msg("claim: failed to sponsor user")
}
