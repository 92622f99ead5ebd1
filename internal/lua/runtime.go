// Package lua hosts the user script. All Lua execution happens on one worker
// goroutine; everything else hands it work through Do/DoSync.
package lua

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/irlightd/internal/eventbus"
	"github.com/dokzlo13/irlightd/internal/lua/modules"
)

// ErrRuntimeClosed is returned when the Lua runtime is closed
var ErrRuntimeClosed = fmt.Errorf("lua runtime closed")

// LuaWork represents work to be executed on the Lua VM
// All Lua execution MUST go through this to ensure thread safety
type LuaWork func(ctx context.Context)

// Runtime manages the Lua VM with single-threaded execution
type Runtime struct {
	L          *lua.LState
	scriptPath string

	// Modules
	sceneModule  *modules.SceneModule
	schedModule  *modules.SchedModule
	eventsModule *modules.EventsModule

	// Work queue for thread-safe Lua execution
	workQueue chan LuaWork

	// Shutdown signaling - closing this channel signals senders to stop
	closing   chan struct{}
	closeOnce sync.Once

	// stopped is closed when Run returns; the LState is closed after that
	runOnce sync.Once
	stopped chan struct{}
}

// NewRuntime creates a new Lua runtime
func NewRuntime(deps RuntimeDeps) *Runtime {
	queueSize := deps.QueueSize
	if queueSize <= 0 {
		queueSize = 100
	}

	r := &Runtime{
		L:          lua.NewState(),
		scriptPath: deps.ScriptPath,
		workQueue:  make(chan LuaWork, queueSize),
		closing:    make(chan struct{}),
		stopped:    make(chan struct{}),
	}

	r.registerModules(deps)

	return r
}

// Close signals the runtime to stop accepting new work, waits for the worker
// to finish and closes the Lua state.
// This is safe to call concurrently with Do/DoSync - they will see the closing signal.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		close(r.closing)

		// Run was never started: nothing else owns the LState
		r.runOnce.Do(func() { close(r.stopped) })
		<-r.stopped
		r.L.Close()
	})
}

// Do queues work to be executed on the Lua VM (thread-safe, non-blocking)
// Returns false if the runtime is closing, queue is full, or context is cancelled.
func (r *Runtime) Do(ctx context.Context, work LuaWork) bool {
	if r.isClosing() {
		log.Warn().Msg("Lua runtime closing, dropping work")
		return false
	}

	select {
	case <-r.closing:
		log.Warn().Msg("Lua runtime closing, dropping work")
		return false
	case <-ctx.Done():
		log.Warn().Msg("Context cancelled, dropping Lua work")
		return false
	case r.workQueue <- work:
		return true
	default:
		log.Warn().Msg("Lua work queue full, dropping work")
		return false
	}
}

// DoSync queues work and blocks until there's space (thread-safe, blocking)
// Returns error if the runtime is closing or context is cancelled.
func (r *Runtime) DoSync(ctx context.Context, work LuaWork) error {
	if r.isClosing() {
		return ErrRuntimeClosed
	}

	select {
	case <-r.closing:
		return ErrRuntimeClosed
	case <-ctx.Done():
		return ctx.Err()
	case r.workQueue <- work:
		return nil
	}
}

// DoSyncWithResult queues work, waits for space, and waits for the result.
func (r *Runtime) DoSyncWithResult(ctx context.Context, work func(context.Context) error) error {
	done := make(chan error, 1)
	wrappedWork := LuaWork(func(c context.Context) {
		done <- work(c)
	})

	if r.isClosing() {
		return ErrRuntimeClosed
	}

	// Queue the work
	select {
	case <-r.closing:
		return ErrRuntimeClosed
	case <-ctx.Done():
		return ctx.Err()
	case r.workQueue <- wrappedWork:
		// Successfully queued
	}

	// Wait for result
	select {
	case <-r.closing:
		return ErrRuntimeClosed
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// isClosing checks the closing signal first; a select with a free queue slot
// would otherwise pick either case at random.
func (r *Runtime) isClosing() bool {
	select {
	case <-r.closing:
		return true
	default:
		return false
	}
}

// registerModules registers all Lua modules
func (r *Runtime) registerModules(deps RuntimeDeps) {
	r.L.PreloadModule("log", modules.NewLogModule().Loader)

	if deps.Lights != nil {
		r.L.PreloadModule("lights", modules.NewLightsModule(deps.Lights).Loader)
	}

	if deps.KV != nil {
		r.L.PreloadModule("kv", modules.NewKVModule(deps.KV).Loader)
	}

	r.sceneModule = modules.NewSceneModule()
	r.L.PreloadModule("scene", r.sceneModule.Loader)

	// Cron jobs fire on cron's goroutine and are queued back onto the worker
	r.schedModule = modules.NewSchedModule(func(work func(context.Context)) bool {
		return r.Do(context.Background(), LuaWork(work))
	})
	r.L.PreloadModule("sched", r.schedModule.Loader)

	r.eventsModule = modules.NewEventsModule()
	r.L.PreloadModule("events", r.eventsModule.Loader)
}

// Run starts the Lua worker goroutine - this is the ONLY goroutine that touches Lua
// It includes panic recovery to prevent crashes from killing the worker.
// Exits when context is cancelled or runtime is closed.
func (r *Runtime) Run(ctx context.Context) {
	started := false
	r.runOnce.Do(func() { started = true })
	if !started {
		return
	}
	defer close(r.stopped)

	r.schedModule.Start()
	defer r.schedModule.Stop()

	for {
		select {
		case <-ctx.Done():
			r.drainQueue(ctx)
			return
		case <-r.closing:
			r.drainQueue(ctx)
			return
		case work := <-r.workQueue:
			r.executeWork(ctx, work)
		}
	}
}

// drainQueue processes any remaining work in the queue before exiting
func (r *Runtime) drainQueue(ctx context.Context) {
	for {
		select {
		case work := <-r.workQueue:
			r.executeWork(ctx, work)
		default:
			return
		}
	}
}

// executeWork runs a single work item with panic recovery
func (r *Runtime) executeWork(ctx context.Context, work LuaWork) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Msg("Lua work panicked - worker continuing")
		}
	}()
	// Set context on LState so modules can access it via L.Context()
	r.L.SetContext(ctx)
	work(ctx)
}

// LoadScript loads and executes a Lua script (must be called before Run).
// Relative paths that don't exist are resolved against the configured script's directory.
func (r *Runtime) LoadScript(path string) error {
	if !filepath.IsAbs(path) {
		if _, err := os.Stat(path); os.IsNotExist(err) && r.scriptPath != "" {
			path = filepath.Join(filepath.Dir(r.scriptPath), path)
		}
	}

	log.Info().Str("path", path).Msg("Loading Lua script")

	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("failed to execute Lua script: %w", err)
	}

	log.Info().Strs("scenes", r.sceneModule.Names()).Int("jobs", r.schedModule.Len()).Msg("Lua script loaded successfully")
	return nil
}

// LoadString executes Lua source (must be called before Run).
func (r *Runtime) LoadString(source string) error {
	if err := r.L.DoString(source); err != nil {
		return fmt.Errorf("failed to execute Lua source: %w", err)
	}
	return nil
}

// RunScene runs a scene on the worker and waits for it to finish.
func (r *Runtime) RunScene(ctx context.Context, name string, args map[string]any) error {
	return r.DoSyncWithResult(ctx, func(context.Context) error {
		return r.sceneModule.Run(r.L, name, args)
	})
}

// HasScene reports whether the script defined a scene. Only valid after the
// script is loaded.
func (r *Runtime) HasScene(name string) bool {
	return r.sceneModule.Has(name)
}

// Scenes returns defined scene names. Only valid after the script is loaded.
func (r *Runtime) Scenes() []string {
	return r.sceneModule.Names()
}

// Dispatch queues a bus event for the script's event handlers.
func (r *Runtime) Dispatch(ctx context.Context, event eventbus.Event) bool {
	return r.Do(ctx, func(context.Context) {
		r.eventsModule.Dispatch(r.L, event)
	})
}

// EventTypes returns bus event types the script subscribed to.
func (r *Runtime) EventTypes() []eventbus.EventType {
	return r.eventsModule.Types()
}
