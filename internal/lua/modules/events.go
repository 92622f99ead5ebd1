package modules

import (
	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/irlightd/internal/eventbus"
)

// EventsModule provides events.on() so scripts can react to bus events.
type EventsModule struct {
	handlers map[eventbus.EventType][]*lua.LFunction
}

// NewEventsModule creates a new events module
func NewEventsModule() *EventsModule {
	return &EventsModule{handlers: make(map[eventbus.EventType][]*lua.LFunction)}
}

// Loader is the module loader for Lua
func (m *EventsModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "on", L.NewFunction(m.on))

	L.Push(mod)
	return 1
}

// on(type, fn) - Register a handler for "target" or "applied" events
func (m *EventsModule) on(L *lua.LState) int {
	eventType := eventbus.EventType(L.CheckString(1))
	fn := L.CheckFunction(2)

	switch eventType {
	case eventbus.EventTypeTarget, eventbus.EventTypeApplied:
	default:
		L.ArgError(1, "unsupported event type: "+string(eventType))
		return 0
	}

	m.handlers[eventType] = append(m.handlers[eventType], fn)
	log.Info().Str("event_type", string(eventType)).Msg("Registered event handler")
	return 0
}

// Types returns event types with at least one handler.
func (m *EventsModule) Types() []eventbus.EventType {
	var out []eventbus.EventType
	for t := range m.handlers {
		out = append(out, t)
	}
	return out
}

// Dispatch calls every handler for the event. Must be called on the Lua
// worker. A failing handler doesn't stop the others.
func (m *EventsModule) Dispatch(L *lua.LState, event eventbus.Event) {
	for _, fn := range m.handlers[event.Type] {
		data := MapToLuaTable(L, event.Data)
		if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, data); err != nil {
			log.Error().Err(err).Str("event_type", string(event.Type)).Msg("Lua event handler failed")
		}
	}
}
