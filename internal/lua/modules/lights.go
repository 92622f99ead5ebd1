package modules

import (
	"context"

	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/irlightd/internal/control"
)

// LightController is what the lights module needs from the host.
type LightController interface {
	Update(ctx context.Context, id string, change control.Change) (int64, error)
	Off(ctx context.Context, pattern string) ([]string, error)
	Get(ctx context.Context, id string) (control.Status, error)
	Match(pattern string) ([]string, error)
	Reapply(id string) error
	Resync()
}

// LightsModule provides the lights table to Lua: set, off, get, list,
// reapply and resync.
//
// ERROR HANDLING CONVENTION: every function returns (result, err_string);
// bad argument types raise.
type LightsModule struct {
	ctrl LightController
}

// NewLightsModule creates a new lights module
func NewLightsModule(ctrl LightController) *LightsModule {
	return &LightsModule{ctrl: ctrl}
}

// Loader is the module loader for Lua
func (m *LightsModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "set", L.NewFunction(m.set))
	L.SetField(mod, "off", L.NewFunction(m.off))
	L.SetField(mod, "get", L.NewFunction(m.get))
	L.SetField(mod, "list", L.NewFunction(m.list))
	L.SetField(mod, "reapply", L.NewFunction(m.reapply))
	L.SetField(mod, "resync", L.NewFunction(m.resync))

	L.Push(mod)
	return 1
}

// set(id, {on=, brightness=, mireds=}) -> (version, err)
// Missing fields keep their stored value. Giving brightness without on
// implies on=true.
func (m *LightsModule) set(L *lua.LState) int {
	id := L.CheckString(1)
	tbl := L.CheckTable(2)

	var change control.Change
	if v := tbl.RawGetString("brightness"); v != lua.LNil {
		b := float64(lua.LVAsNumber(v))
		change.Brightness = &b
		on := true
		change.On = &on
	}
	if v := tbl.RawGetString("mireds"); v != lua.LNil {
		mireds := float64(lua.LVAsNumber(v))
		change.Mireds = &mireds
	}
	if v := tbl.RawGetString("on"); v != lua.LNil {
		on := lua.LVAsBool(v)
		change.On = &on
	}

	version, err := m.ctrl.Update(contextOf(L), id, change)
	if err != nil {
		return pushError(L, err)
	}

	L.Push(lua.LNumber(version))
	L.Push(lua.LNil)
	return 2
}

// off(pattern) -> (ids, err)
func (m *LightsModule) off(L *lua.LState) int {
	pattern := L.CheckString(1)

	ids, err := m.ctrl.Off(contextOf(L), pattern)
	if err != nil {
		return pushError(L, err)
	}

	L.Push(GoToLuaValue(L, ids))
	L.Push(lua.LNil)
	return 2
}

// get(id) -> ({id, name, kind, on, brightness, mireds, version}, err)
func (m *LightsModule) get(L *lua.LState) int {
	id := L.CheckString(1)

	st, err := m.ctrl.Get(contextOf(L), id)
	if err != nil {
		return pushError(L, err)
	}

	L.Push(MapToLuaTable(L, map[string]any{
		"id":         st.ID,
		"name":       st.Name,
		"kind":       string(st.Kind),
		"on":         st.Desired.On,
		"brightness": st.Desired.Brightness,
		"mireds":     st.Desired.Mireds,
		"version":    st.Version,
		"min_mireds": st.Traits.MinMireds,
		"max_mireds": st.Traits.MaxMireds,
	}))
	L.Push(lua.LNil)
	return 2
}

// list(pattern?) -> (ids, err)
func (m *LightsModule) list(L *lua.LState) int {
	pattern := L.OptString(1, "**")

	ids, err := m.ctrl.Match(pattern)
	if err != nil {
		return pushError(L, err)
	}

	L.Push(GoToLuaValue(L, ids))
	L.Push(lua.LNil)
	return 2
}

// reapply(id) -> (ok, err)
func (m *LightsModule) reapply(L *lua.LState) int {
	if err := m.ctrl.Reapply(L.CheckString(1)); err != nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	L.Push(lua.LNil)
	return 2
}

// resync() forgets what the fixtures were last told and resends everything.
func (m *LightsModule) resync(L *lua.LState) int {
	m.ctrl.Resync()
	return 0
}
