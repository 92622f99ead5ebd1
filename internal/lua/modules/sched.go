package modules

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"
	"gopkg.in/robfig/cron.v2"
)

// Submitter queues work on the Lua worker. Cron fires on its own goroutine
// and must never touch the LState directly.
type Submitter func(work func(ctx context.Context)) bool

// SchedModule provides sched.cron() and sched.remove() to Lua.
//
// ERROR HANDLING CONVENTION:
//   - cron(): raises on a bad spec, it is a setup failure
//   - remove(): returns false for unknown ids
type SchedModule struct {
	cron   *cron.Cron
	submit Submitter

	mu      sync.Mutex
	entries map[cron.EntryID]string
}

// NewSchedModule creates a new sched module
func NewSchedModule(submit Submitter) *SchedModule {
	return &SchedModule{
		cron:    cron.New(),
		submit:  submit,
		entries: make(map[cron.EntryID]string),
	}
}

// Loader is the module loader for Lua
func (m *SchedModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "cron", L.NewFunction(m.define))
	L.SetField(mod, "remove", L.NewFunction(m.remove))

	L.Push(mod)
	return 1
}

// Start begins firing jobs.
func (m *SchedModule) Start() {
	m.cron.Start()
}

// Stop stops firing jobs. Jobs already queued on the Lua worker still run.
func (m *SchedModule) Stop() {
	m.cron.Stop()
}

// Len returns the number of scheduled jobs.
func (m *SchedModule) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// cron(spec, fn) -> id
// spec is a cron expression with optional seconds, or a descriptor such as
// "@every 10m" or "@daily".
func (m *SchedModule) define(L *lua.LState) int {
	spec := L.CheckString(1)
	fn := L.CheckFunction(2)

	id, err := m.cron.AddFunc(spec, func() {
		queued := m.submit(func(ctx context.Context) {
			if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
				log.Error().Err(err).Str("spec", spec).Msg("Scheduled job failed")
			}
		})
		if !queued {
			log.Warn().Str("spec", spec).Msg("Scheduled job dropped")
		}
	})
	if err != nil {
		L.RaiseError("failed to schedule %q: %s", spec, err.Error())
		return 0
	}

	m.mu.Lock()
	m.entries[id] = spec
	m.mu.Unlock()

	log.Info().Str("spec", spec).Int("id", int(id)).Msg("Scheduled job")

	L.Push(lua.LNumber(id))
	return 1
}

// remove(id) -> ok
func (m *SchedModule) remove(L *lua.LState) int {
	id := cron.EntryID(L.CheckInt(1))

	m.mu.Lock()
	_, ok := m.entries[id]
	delete(m.entries, id)
	m.mu.Unlock()

	if ok {
		m.cron.Remove(id)
	}
	L.Push(lua.LBool(ok))
	return 1
}
