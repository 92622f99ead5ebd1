package lua

import (
	"github.com/dokzlo13/irlightd/internal/lua/modules"
)

// RuntimeDeps groups all dependencies needed by Lua runtime.
type RuntimeDeps struct {
	// Lights backs the lights module.
	Lights modules.LightController
	// KV backs the kv module; nil leaves it unavailable.
	KV modules.KVStore
	// ScriptPath is used to resolve relative script paths.
	ScriptPath string
	// QueueSize bounds pending work; zero means 100.
	QueueSize int
}
