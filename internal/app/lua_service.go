package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/irlightd/internal/config"
	"github.com/dokzlo13/irlightd/internal/control"
	"github.com/dokzlo13/irlightd/internal/eventbus"
	"github.com/dokzlo13/irlightd/internal/kv"
	luart "github.com/dokzlo13/irlightd/internal/lua"
)

// LuaService wraps the Lua runtime and provides thread-safe execution.
type LuaService struct {
	cfg     *config.Config
	Runtime *luart.Runtime
}

// NewLuaService creates a new LuaService.
func NewLuaService(cfg *config.Config, ctrl *control.Controller, bucket *kv.Bucket) *LuaService {
	runtime := luart.NewRuntime(luart.RuntimeDeps{
		Lights:     ctrl,
		KV:         bucket,
		ScriptPath: cfg.Script,
	})

	return &LuaService{
		cfg:     cfg,
		Runtime: runtime,
	}
}

// LoadScript loads and executes the Lua script.
// Must be called before Start().
func (s *LuaService) LoadScript() error {
	return s.Runtime.LoadScript(s.cfg.Script)
}

// Start begins the Lua worker goroutine.
func (s *LuaService) Start(ctx context.Context) {
	// Start Lua worker goroutine - this is the ONLY goroutine that touches Lua
	go s.Runtime.Run(ctx)

	if s.Runtime.HasScene("startup") {
		go func() {
			if err := s.RunScene(ctx, "startup", nil); err != nil {
				log.Error().Err(err).Msg("Failed to run startup scene")
			}
		}()
	}
}

// RunScene runs a scene through the Lua worker and waits for it.
func (s *LuaService) RunScene(ctx context.Context, name string, args map[string]any) error {
	return s.Runtime.RunScene(ctx, name, args)
}

// HasScene reports whether the script defined a scene.
func (s *LuaService) HasScene(name string) bool {
	return s.Runtime.HasScene(name)
}

// Scenes returns all defined scenes.
func (s *LuaService) Scenes() []string {
	return s.Runtime.Scenes()
}

// Dispatch forwards a bus event to the script's handlers.
func (s *LuaService) Dispatch(ctx context.Context, event eventbus.Event) bool {
	return s.Runtime.Dispatch(ctx, event)
}

// Close closes the Lua runtime.
func (s *LuaService) Close() {
	if s.Runtime != nil {
		s.Runtime.Close()
	}
}
