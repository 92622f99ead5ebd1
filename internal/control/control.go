// Package control is the single entry point for changing desired light state.
// The API, Lua scripts and event handlers all go through a Controller, which
// stores the new state and wakes the orchestrator.
package control

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/irlightd/internal/driver"
	"github.com/dokzlo13/irlightd/internal/eventbus"
	"github.com/dokzlo13/irlightd/internal/fixture"
	"github.com/dokzlo13/irlightd/internal/state"
)

// Trigger wakes the reconciliation loop.
type Trigger interface {
	Trigger()
	TriggerLight(lightID string)
	Forget()
}

// Publisher receives target events.
type Publisher interface {
	Publish(event eventbus.Event) int
}

// Status is the reported state of one light.
type Status struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Kind    fixture.Kind   `json:"kind"`
	Traits  fixture.Traits `json:"traits"`
	Desired driver.Desired `json:"desired"`
	Version int64          `json:"version"`
}

// Change is a partial update. Nil fields keep their stored value.
type Change struct {
	On         *bool    `json:"on,omitempty"`
	Brightness *float64 `json:"brightness,omitempty"`
	Mireds     *float64 `json:"mireds,omitempty"`
}

// Merge applies the change on top of d.
func (c Change) Merge(d driver.Desired) driver.Desired {
	if c.On != nil {
		d.On = *c.On
	}
	if c.Brightness != nil {
		d.Brightness = *c.Brightness
	}
	if c.Mireds != nil {
		d.Mireds = *c.Mireds
	}
	return d
}

// Controller changes desired state for configured lights.
type Controller struct {
	lights    *driver.Registry
	store     *state.TypedStore[driver.Desired]
	trigger   Trigger
	publisher Publisher

	// serializes read-modify-write of stored state
	mu sync.Mutex
}

// New creates a controller. publisher may be nil.
func New(lights *driver.Registry, store *state.TypedStore[driver.Desired], trigger Trigger, publisher Publisher) *Controller {
	return &Controller{
		lights:    lights,
		store:     store,
		trigger:   trigger,
		publisher: publisher,
	}
}

// Lights returns the light registry.
func (c *Controller) Lights() *driver.Registry {
	return c.lights
}

// Set replaces the desired state of a light and returns the new version.
func (c *Controller) Set(ctx context.Context, id string, d driver.Desired) (int64, error) {
	return c.Update(ctx, id, Change{On: &d.On, Brightness: &d.Brightness, Mireds: &d.Mireds})
}

// Update merges a change into the stored desired state.
func (c *Controller) Update(ctx context.Context, id string, change Change) (int64, error) {
	if _, err := c.lights.Get(id); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var merged driver.Desired
	version, err := c.store.Update(ctx, id, func(cur driver.Desired) driver.Desired {
		merged = change.Merge(cur)
		return merged
	})
	if err != nil {
		return 0, fmt.Errorf("failed to store desired state for %s: %w", id, err)
	}

	log.Debug().
		Str("light", id).
		Bool("on", merged.On).
		Float64("brightness", merged.Brightness).
		Float64("mireds", merged.Mireds).
		Int64("version", version).
		Msg("Desired state updated")

	c.publish(id, merged, version)
	c.trigger.Trigger()
	return version, nil
}

// Off turns off every light matching a glob pattern and returns their ids.
func (c *Controller) Off(ctx context.Context, pattern string) ([]string, error) {
	ls, err := c.lights.Match(pattern)
	if err != nil {
		return nil, err
	}

	off := false
	ids := make([]string, 0, len(ls))
	for _, l := range ls {
		if _, err := c.Update(ctx, l.ID, Change{On: &off}); err != nil {
			return ids, err
		}
		ids = append(ids, l.ID)
	}
	return ids, nil
}

// Reapply resends the stored state of a light without changing it.
func (c *Controller) Reapply(id string) error {
	if _, err := c.lights.Get(id); err != nil {
		return err
	}
	c.trigger.TriggerLight(id)
	return nil
}

// Resync clears translator memory and resends the stored state of every
// light. Used when the fixtures were power cycled or driven by their own
// remotes.
func (c *Controller) Resync() {
	forgot := 0
	for _, l := range c.lights.List() {
		if l.Forget() {
			forgot++
		}
	}
	log.Info().Int("lights", len(c.lights.IDs())).Int("forgot", forgot).Msg("Resyncing all lights")
	c.trigger.Forget()
}

// Get returns the status of one light.
func (c *Controller) Get(ctx context.Context, id string) (Status, error) {
	l, err := c.lights.Get(id)
	if err != nil {
		return Status{}, err
	}

	d, version, err := c.store.Get(ctx, id)
	if err != nil {
		return Status{}, fmt.Errorf("failed to load desired state for %s: %w", id, err)
	}
	return statusOf(l, d, version), nil
}

// List returns the status of every light sorted by id.
func (c *Controller) List(ctx context.Context) ([]Status, error) {
	values, versions, err := c.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load desired state: %w", err)
	}

	out := make([]Status, 0, len(values))
	for _, l := range c.lights.List() {
		out = append(out, statusOf(l, values[l.ID], versions[l.ID]))
	}
	return out, nil
}

func statusOf(l *driver.Light, d driver.Desired, version int64) Status {
	return Status{
		ID:      l.ID,
		Name:    l.Name,
		Kind:    l.Kind(),
		Traits:  l.Traits(),
		Desired: d,
		Version: version,
	}
}

func (c *Controller) publish(id string, d driver.Desired, version int64) {
	if c.publisher == nil {
		return
	}
	c.publisher.Publish(eventbus.Target(id, d.On, d.Brightness, d.Mireds, version))
}

// Match returns the ids of lights matching a glob pattern.
func (c *Controller) Match(pattern string) ([]string, error) {
	ls, err := c.lights.Match(pattern)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(ls))
	for _, l := range ls {
		ids = append(ids, l.ID)
	}
	return ids, nil
}
