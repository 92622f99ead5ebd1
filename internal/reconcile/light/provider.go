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

// StoreKind is the resource_state kind used for desired light state.
const StoreKind = "light"

// Publisher receives applied events.
type Publisher interface {
	Publish(event eventbus.Event) int
}

// Provider provides light resources for reconciliation.
type Provider struct {
	store     *state.TypedStore[driver.Desired]
	lights    *driver.Registry
	ledger    *ledger.Ledger
	publisher Publisher
}

// NewProvider creates a new light provider. ledger and publisher may be nil.
func NewProvider(
	store *state.TypedStore[driver.Desired],
	lights *driver.Registry,
	l *ledger.Ledger,
	publisher Publisher,
) *Provider {
	return &Provider{
		store:     store,
		lights:    lights,
		ledger:    l,
		publisher: publisher,
	}
}

// Kind returns the resource kind.
func (p *Provider) Kind() reconcile.Kind {
	return reconcile.KindLight
}

// ListDirty returns resources that have changed since last reconcile.
// Stored state for lights no longer in the configuration is skipped.
func (p *Provider) ListDirty(ctx context.Context, lastVersions map[string]int64) ([]reconcile.Resource, error) {
	ids, err := p.store.GetDirty(ctx, lastVersions)
	if err != nil {
		return nil, err
	}

	resources := make([]reconcile.Resource, 0, len(ids))
	for _, id := range ids {
		r, err := p.Get(ctx, id)
		if err != nil {
			log.Debug().Str("light", id).Msg("Skipping stored state for unconfigured light")
			continue
		}
		resources = append(resources, r)
	}

	return resources, nil
}

// Get returns a specific resource by ID.
func (p *Provider) Get(ctx context.Context, id string) (reconcile.Resource, error) {
	l, err := p.lights.Get(id)
	if err != nil {
		return nil, err
	}
	return NewResource(l, p.store, p.ledger, p.publisher), nil
}

// Store returns the typed store for direct access.
func (p *Provider) Store() *state.TypedStore[driver.Desired] {
	return p.store
}
