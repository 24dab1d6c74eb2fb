package o11y

import (
	"context"
	"strconv"

	"github.com/passportxyz/passport-claim/types"
)

// StampStore is the stamp reconciliation surface the tracing wrapper
// decorates; it matches the store consumed by claim runs.
type StampStore interface {
	PatchStamps(ctx context.Context, patches []types.StampPatch) error
}

type tracedStamps struct {
	label string
	StampStore
}

func NewTracedStamps(label string, store StampStore) StampStore {
	return &tracedStamps{label: label, StampStore: store}
}

func (t *tracedStamps) PatchStamps(ctx context.Context, patches []types.StampPatch) (err error) {
	ctx, span := Trace(ctx, "stamps.PatchStamps", WithAnnotation("store", t.label))
	defer func() {
		span.RecordError(err)
		span.End()
	}()

	tombstones := 0
	for _, patch := range patches {
		if patch.Credential == nil {
			tombstones++
		}
	}
	span.SetAnnotation("patches", strconv.Itoa(len(patches)))
	span.SetAnnotation("tombstones", strconv.Itoa(tombstones))

	return t.StampStore.PatchStamps(ctx, patches)
}
