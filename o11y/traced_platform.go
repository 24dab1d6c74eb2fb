package o11y

import (
	"context"

	"github.com/passportxyz/passport-claim/platforms"
	"github.com/passportxyz/passport-claim/types"
)

type tracedPlatform struct {
	platforms.Platform
}

// NewTracedPlatform wraps a platform adapter so every payload
// acquisition shows up as a span.
func NewTracedPlatform(platform platforms.Platform) platforms.Platform {
	return &tracedPlatform{Platform: platform}
}

func (t *tracedPlatform) GetProviderPayload(ctx context.Context, app platforms.AppContext) (_ types.ProviderPayload, err error) {
	ctx, span := Trace(ctx, "platform."+t.Path()+".GetProviderPayload")
	defer func() {
		span.RecordError(err)
		span.End()
	}()

	span.SetAnnotation("operation", "platform.getProviderPayload")
	span.SetAnnotation("platform", string(t.PlatformID()))

	return t.Platform.GetProviderPayload(ctx, app)
}
