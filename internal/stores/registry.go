// Package stores provides centralized access to typed state stores.
package stores

import (
	"context"

	"github.com/dokzlo13/irlightd/internal/driver"
	"github.com/dokzlo13/irlightd/internal/reconcile/light"
	"github.com/dokzlo13/irlightd/internal/state"
)

// Registry provides centralized access to all typed stores.
type Registry struct {
	base       *state.Store
	lightStore *state.TypedStore[driver.Desired]
}

// NewRegistry creates a new store registry with typed stores for each resource kind.
func NewRegistry(base *state.Store) *Registry {
	return &Registry{
		base:       base,
		lightStore: state.NewTypedStore[driver.Desired](base, light.StoreKind),
	}
}

// Lights returns the typed store for light desired state.
func (r *Registry) Lights() *state.TypedStore[driver.Desired] {
	return r.lightStore
}

// Clear removes all state from all stores.
func (r *Registry) Clear(ctx context.Context) error {
	return r.base.Clear(ctx, "")
}
