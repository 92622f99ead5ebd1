// Package reconcile drives lights toward their stored desired state. Fixtures
// give no feedback, so reconciliation is open loop: a resource is applied once
// per desired version.
package reconcile

import "context"

// Kind identifies a type of reconcilable resource.
type Kind string

// Resource kinds
const (
	KindLight Kind = "light"
)

// ResourceKey uniquely identifies a reconcilable resource.
type ResourceKey struct {
	Kind Kind
	ID   string
}

// Resource is one thing the orchestrator can push desired state to.
type Resource interface {
	// Key returns unique identifier for this resource.
	Key() ResourceKey

	// Load fetches the desired state into internal fields.
	Load(ctx context.Context) error

	// NeedsApply returns true if there is anything to apply.
	NeedsApply() bool

	// Apply sends the loaded desired state. There is no second step: the
	// fixture cannot report whether it took effect.
	Apply(ctx context.Context) error

	// DesiredVersion returns version of desired state (for dirty tracking).
	DesiredVersion() int64
}

// ResourceProvider creates and manages resources of a specific kind.
type ResourceProvider interface {
	// Kind returns the resource type this provider handles.
	Kind() Kind

	// ListDirty returns resources whose desired version moved past lastVersions.
	ListDirty(ctx context.Context, lastVersions map[string]int64) ([]Resource, error)

	// Get returns a specific resource by ID.
	Get(ctx context.Context, id string) (Resource, error)
}
