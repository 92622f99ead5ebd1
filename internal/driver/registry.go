package driver

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gobwas/glob"

	"github.com/dokzlo13/irlightd/internal/config"
	"github.com/dokzlo13/irlightd/internal/ir"
)

// ErrUnknownLight is returned for ids that aren't configured.
var ErrUnknownLight = errors.New("unknown light")

// Registry holds every configured light. It is immutable after construction.
type Registry struct {
	lights map[string]*Light
	ids    []string
}

// NewRegistry builds lights for all configs over a shared sender.
func NewRegistry(cfgs []config.LightConfig, sender ir.Sender, delayer ir.Delayer) (*Registry, error) {
	r := &Registry{lights: make(map[string]*Light, len(cfgs))}
	for _, c := range cfgs {
		if _, dup := r.lights[c.ID]; dup {
			return nil, fmt.Errorf("%w: %s", config.ErrDuplicateLight, c.ID)
		}
		l, err := New(c, sender, delayer)
		if err != nil {
			return nil, err
		}
		r.lights[c.ID] = l
		r.ids = append(r.ids, c.ID)
	}
	sort.Strings(r.ids)
	return r, nil
}

// Get returns a light by id.
func (r *Registry) Get(id string) (*Light, error) {
	l, ok := r.lights[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLight, id)
	}
	return l, nil
}

// IDs returns all light ids in sorted order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}

// List returns all lights sorted by id.
func (r *Registry) List() []*Light {
	out := make([]*Light, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.lights[id])
	}
	return out
}

// Match returns lights whose id matches a glob pattern. Dots separate
// segments, so "bedroom.*" matches "bedroom.ceiling" but not
// "bedroom.ceiling.left"; use "bedroom.**" for that.
func (r *Registry) Match(pattern string) ([]*Light, error) {
	g, err := glob.Compile(pattern, '.')
	if err != nil {
		return nil, fmt.Errorf("invalid light pattern %q: %w", pattern, err)
	}

	var out []*Light
	for _, id := range r.ids {
		if g.Match(id) {
			out = append(out, r.lights[id])
		}
	}
	return out, nil
}
