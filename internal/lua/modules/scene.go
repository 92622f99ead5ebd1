package modules

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"
)

// ErrUnknownScene is returned when running a scene nobody defined.
var ErrUnknownScene = errors.New("unknown scene")

// SceneModule provides scene.define() and scene.run() to Lua.
// Scenes are plain Lua functions taking an args table.
type SceneModule struct {
	mu     sync.RWMutex
	scenes map[string]*lua.LFunction
}

// NewSceneModule creates a new scene module
func NewSceneModule() *SceneModule {
	return &SceneModule{scenes: make(map[string]*lua.LFunction)}
}

// Loader is the module loader for Lua
func (m *SceneModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "define", L.NewFunction(m.define))
	L.SetField(mod, "run", L.NewFunction(m.run))
	L.SetField(mod, "list", L.NewFunction(m.list))

	L.Push(mod)
	return 1
}

// define(name, fn) - Register a scene, replacing any previous one
func (m *SceneModule) define(L *lua.LState) int {
	name := L.CheckString(1)
	fn := L.CheckFunction(2)

	m.mu.Lock()
	if _, exists := m.scenes[name]; exists {
		log.Warn().Str("scene", name).Msg("Scene redefined")
	}
	m.scenes[name] = fn
	m.mu.Unlock()

	log.Info().Str("scene", name).Msg("Registered scene")
	return 0
}

// run(name, args) -> (ok, err)
func (m *SceneModule) run(L *lua.LState) int {
	name := L.CheckString(1)
	args := L.OptTable(2, L.NewTable())

	if err := m.call(L, name, args); err != nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	L.Push(lua.LNil)
	return 2
}

// list() -> names
func (m *SceneModule) list(L *lua.LState) int {
	L.Push(GoToLuaValue(L, m.Names()))
	return 1
}

// Run calls a scene from Go. Must be called on the Lua worker.
func (m *SceneModule) Run(L *lua.LState, name string, args map[string]any) error {
	return m.call(L, name, MapToLuaTable(L, args))
}

// Names returns the defined scenes sorted by name.
func (m *SceneModule) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.scenes))
	for name := range m.scenes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether a scene is defined.
func (m *SceneModule) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.scenes[name]
	return ok
}

func (m *SceneModule) call(L *lua.LState, name string, args *lua.LTable) error {
	m.mu.RLock()
	fn, ok := m.scenes[name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownScene, name)
	}

	log.Info().Str("scene", name).Msg("Running scene")

	if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, args); err != nil {
		return fmt.Errorf("scene %s failed: %w", name, err)
	}
	return nil
}
