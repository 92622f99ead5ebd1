package modules

import (
	"context"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// KVStore is a persistent bucket owned by the script.
type KVStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (any, error)
	Delete(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context) ([]string, error)
}

// KVModule provides kv.set/get/delete/keys to Lua.
type KVModule struct {
	store KVStore
}

// NewKVModule creates a new kv module
func NewKVModule(store KVStore) *KVModule {
	return &KVModule{store: store}
}

// Loader is the module loader for Lua
func (m *KVModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "set", L.NewFunction(m.set))
	L.SetField(mod, "get", L.NewFunction(m.get))
	L.SetField(mod, "delete", L.NewFunction(m.delete))
	L.SetField(mod, "keys", L.NewFunction(m.keys))

	L.Push(mod)
	return 1
}

// set(key, value, ttl_seconds?) -> (true, err)
func (m *KVModule) set(L *lua.LState) int {
	key := L.CheckString(1)
	value := LuaToGo(L.CheckAny(2))
	ttl := time.Duration(float64(L.OptNumber(3, 0)) * float64(time.Second))

	if err := m.store.Set(contextOf(L), key, value, ttl); err != nil {
		return pushError(L, err)
	}
	L.Push(lua.LTrue)
	L.Push(lua.LNil)
	return 2
}

// get(key) -> (value, err); value is nil for missing keys
func (m *KVModule) get(L *lua.LState) int {
	key := L.CheckString(1)

	value, err := m.store.Get(contextOf(L), key)
	if err != nil {
		return pushError(L, err)
	}
	L.Push(GoToLuaValue(L, value))
	L.Push(lua.LNil)
	return 2
}

// delete(key) -> (existed, err)
func (m *KVModule) delete(L *lua.LState) int {
	key := L.CheckString(1)

	existed, err := m.store.Delete(contextOf(L), key)
	if err != nil {
		return pushError(L, err)
	}
	L.Push(lua.LBool(existed))
	L.Push(lua.LNil)
	return 2
}

// keys() -> (list, err)
func (m *KVModule) keys(L *lua.LState) int {
	keys, err := m.store.Keys(contextOf(L))
	if err != nil {
		return pushError(L, err)
	}
	L.Push(GoToLuaValue(L, keys))
	L.Push(lua.LNil)
	return 2
}
