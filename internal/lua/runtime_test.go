package lua

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/irlightd/internal/control"
	"github.com/dokzlo13/irlightd/internal/eventbus"
	"github.com/dokzlo13/irlightd/internal/lua/modules"
)

type mockLights struct {
	mock.Mock
}

func (m *mockLights) Update(ctx context.Context, id string, change control.Change) (int64, error) {
	args := m.Called(id, change)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockLights) Off(ctx context.Context, pattern string) ([]string, error) {
	args := m.Called(pattern)
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockLights) Get(ctx context.Context, id string) (control.Status, error) {
	args := m.Called(id)
	return args.Get(0).(control.Status), args.Error(1)
}

func (m *mockLights) Match(pattern string) ([]string, error) {
	args := m.Called(pattern)
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockLights) Reapply(id string) error {
	return m.Called(id).Error(0)
}

func (m *mockLights) Resync() { m.Called() }

func startRuntime(t *testing.T, lights modules.LightController, script string) *Runtime {
	t.Helper()
	r := NewRuntime(RuntimeDeps{Lights: lights})
	require.NoError(t, r.LoadString(script))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		r.Close()
	})
	return r
}

func changeOf(on bool, brightness, mireds float64) interface{} {
	return mock.MatchedBy(func(c control.Change) bool {
		return c.On != nil && *c.On == on &&
			c.Brightness != nil && *c.Brightness == brightness &&
			c.Mireds != nil && *c.Mireds == mireds
	})
}

func TestRuntime_RunScene(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	lights := &mockLights{}
	lights.On("Update", "kitchen", changeOf(true, 0.4, 300)).Return(int64(3), nil)
	lights.On("Off", "bedroom.*").Return([]string{"bedroom.ceiling"}, nil)

	r := startRuntime(t, lights, `
		local lights = require("lights")
		local scene = require("scene")
		local log = require("log")

		scene.define("evening", function(args)
			local v, err = lights.set("kitchen", {brightness = args.level, mireds = 300})
			assert(err == nil, err)
			assert(v == 3)
			local ids = lights.off("bedroom.*")
			log.info("evening", {off = #ids})
		end)

		scene.define("broken", function()
			error("no such fixture")
		end)
	`)

	assert.True(t, r.HasScene("evening"))
	assert.Equal(t, []string{"broken", "evening"}, r.Scenes())

	require.NoError(t, r.RunScene(context.Background(), "evening", map[string]any{"level": 0.4}))
	lights.AssertExpectations(t)

	err := r.RunScene(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, modules.ErrUnknownScene)

	err = r.RunScene(context.Background(), "broken", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such fixture")
}

func TestRuntime_LightsErrors(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	lights := &mockLights{}
	lights.On("Get", "garage").Return(control.Status{}, errors.New("unknown light: garage"))
	lights.On("Match", "**").Return([]string{"a", "b"}, nil)

	r := startRuntime(t, lights, `
		local lights = require("lights")
		local scene = require("scene")

		scene.define("probe", function()
			local st, err = lights.get("garage")
			assert(st == nil)
			assert(err == "unknown light: garage")
			local ids = lights.list()
			assert(#ids == 2 and ids[1] == "a")
		end)
	`)

	require.NoError(t, r.RunScene(context.Background(), "probe", nil))
	lights.AssertExpectations(t)
}

func TestRuntime_Dispatch(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	lights := &mockLights{}
	lights.On("Reapply", "desk").Return(nil)

	r := startRuntime(t, lights, `
		local lights = require("lights")
		local events = require("events")

		events.on("applied", function(ev)
			if ev.version == 1 then
				lights.reapply(ev.light)
			end
		end)
	`)

	assert.Equal(t, []eventbus.EventType{eventbus.EventTypeApplied}, r.EventTypes())

	ok := r.Dispatch(context.Background(), eventbus.Event{
		Type: eventbus.EventTypeApplied,
		Data: map[string]interface{}{"light": "desk", "version": int64(1)},
	})
	require.True(t, ok)

	// DoSyncWithResult after Dispatch runs behind it on the same worker
	require.NoError(t, r.DoSyncWithResult(context.Background(), func(context.Context) error { return nil }))
	lights.AssertCalled(t, "Reapply", "desk")
}

func TestRuntime_Sched(t *testing.T) {
	r := NewRuntime(RuntimeDeps{})
	defer r.Close()

	require.NoError(t, r.LoadString(`
		local sched = require("sched")
		local id = sched.cron("0 30 7 * * *", function() end)
		assert(id > 0)
		assert(sched.remove(id) == true)
		assert(sched.remove(id) == false)
		sched.cron("@every 1h", function() end)
	`))

	err := r.LoadString(`require("sched").cron("every tuesday", function() end)`)
	assert.Error(t, err)
}

func TestRuntime_EventsRejectsUnknownType(t *testing.T) {
	r := NewRuntime(RuntimeDeps{})
	defer r.Close()

	err := r.LoadString(`require("events").on("button", function() end)`)
	assert.Error(t, err)
}

func TestRuntime_Closed(t *testing.T) {
	defer leaktest.Check(t)()

	r := NewRuntime(RuntimeDeps{})
	r.Close()
	r.Close()

	assert.ErrorIs(t, r.DoSync(context.Background(), func(context.Context) {}), ErrRuntimeClosed)
	assert.False(t, r.Do(context.Background(), func(context.Context) {}))

	// Run after Close returns immediately
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Run(ctx)
}

type memKV struct {
	values map[string]any
	ttls   map[string]time.Duration
}

func (m *memKV) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.values[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memKV) Get(_ context.Context, key string) (any, error) { return m.values[key], nil }

func (m *memKV) Delete(_ context.Context, key string) (bool, error) {
	_, ok := m.values[key]
	delete(m.values, key)
	return ok, nil
}

func (m *memKV) Keys(context.Context) ([]string, error) {
	var keys []string
	for k := range m.values {
		keys = append(keys, k)
	}
	return keys, nil
}

func TestRuntime_KV(t *testing.T) {
	store := &memKV{values: map[string]any{}, ttls: map[string]time.Duration{}}
	r := NewRuntime(RuntimeDeps{KV: store})
	defer r.Close()

	require.NoError(t, r.LoadString(`
		local kv = require("kv")
		assert(kv.get("preset") == nil)
		assert(kv.set("preset", 2))
		assert(kv.set("motion", true, 90))
		assert(kv.set("last", {name = "evening"}))
		assert(kv.get("preset") == 2)
		assert(kv.get("last").name == "evening")
		assert(kv.delete("motion") == true)
		assert(kv.delete("motion") == false)
		assert(#kv.keys() == 2)
	`))

	assert.Equal(t, float64(2), store.values["preset"])
	assert.Equal(t, map[string]interface{}{"name": "evening"}, store.values["last"])
	assert.Equal(t, 90*time.Second, store.ttls["motion"])
}

func TestRuntime_Resync(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	lights := &mockLights{}
	lights.On("Resync").Return()

	r := startRuntime(t, lights, `
		local lights = require("lights")
		require("scene").define("after_power_cut", function()
			lights.resync()
		end)
	`)

	require.NoError(t, r.RunScene(context.Background(), "after_power_cut", nil))
	lights.AssertNumberOfCalls(t, "Resync", 1)
}
