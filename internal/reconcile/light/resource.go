package light

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/irlightd/internal/driver"
	"github.com/dokzlo13/irlightd/internal/eventbus"
	"github.com/dokzlo13/irlightd/internal/ledger"
	"github.com/dokzlo13/irlightd/internal/reconcile"
	"github.com/dokzlo13/irlightd/internal/state"
)

// Resource pushes the desired state of a single light.
type Resource struct {
	light     *driver.Light
	store     *state.TypedStore[driver.Desired]
	ledger    *ledger.Ledger
	publisher Publisher

	// Internal state populated by Load()
	desired        driver.Desired
	desiredVersion int64
}

// NewResource creates a new light resource.
func NewResource(
	l *driver.Light,
	store *state.TypedStore[driver.Desired],
	lg *ledger.Ledger,
	publisher Publisher,
) *Resource {
	return &Resource{
		light:     l,
		store:     store,
		ledger:    lg,
		publisher: publisher,
	}
}

// Key returns the resource key.
func (r *Resource) Key() reconcile.ResourceKey {
	return reconcile.ResourceKey{Kind: reconcile.KindLight, ID: r.light.ID}
}

// Load fetches the desired state.
func (r *Resource) Load(ctx context.Context) error {
	var err error
	r.desired, r.desiredVersion, err = r.store.Get(ctx, r.light.ID)
	return err
}

// NeedsApply reports whether any desired state was ever stored. There is
// no actual state to compare against.
func (r *Resource) NeedsApply() bool {
	return r.desiredVersion > 0
}

// Apply records a ledger batch, drives the translator and announces the
// result on the bus.
func (r *Resource) Apply(ctx context.Context) error {
	batch := ledger.NewBatch(r.light.ID)
	ctx = ledger.WithBatch(ctx, batch)

	if r.ledger != nil {
		err := r.ledger.RecordApply(ctx, batch, map[string]any{
			"on":         r.desired.On,
			"brightness": r.desired.Brightness,
			"mireds":     r.desired.Mireds,
			"version":    r.desiredVersion,
		})
		if err != nil {
			log.Warn().Err(err).Str("light", r.light.ID).Msg("Failed to record apply")
		}
	}

	target := r.light.Apply(ctx, r.desired)

	log.Info().
		Str("light", r.light.ID).
		Bool("on", !target.IsOff()).
		Float64("brightness", target.Brightness).
		Float64("mireds", target.Mireds).
		Int64("version", r.desiredVersion).
		Msg("Light applied")

	if r.publisher != nil {
		r.publisher.Publish(eventbus.Applied(r.light.ID, batch.ID, r.desiredVersion, target.Brightness, target.Mireds))
	}

	return nil
}

// DesiredVersion returns the version of desired state.
func (r *Resource) DesiredVersion() int64 {
	return r.desiredVersion
}
