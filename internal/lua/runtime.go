package lua

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/sonosd/internal/lua/modules"
)

// ErrRuntimeClosed is returned when the Lua runtime is closed
var ErrRuntimeClosed = fmt.Errorf("lua runtime closed")

// LuaWork represents work to be executed on the Lua VM
// All Lua execution MUST go through this to ensure thread safety
type LuaWork func(ctx context.Context)

// Runtime manages the Lua VM with single-threaded execution
type Runtime struct {
	L *lua.LState

	// Modules
	sonosModule *modules.SonosModule

	// Work queue for thread-safe Lua execution
	workQueue chan LuaWork

	// Shutdown signaling - closing this channel signals senders to stop
	closing   chan struct{}
	closeOnce sync.Once
}

// NewRuntime creates a new Lua runtime
func NewRuntime() *Runtime {
	r := &Runtime{
		L:         lua.NewState(),
		workQueue: make(chan LuaWork, 100),
		closing:   make(chan struct{}),
	}

	r.registerModules()

	return r
}

// Close signals the runtime to stop accepting new work and closes the Lua state.
// Callers must stop Run first; the state is not safe to close under a running worker.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		close(r.closing)
	})
	r.L.Close()
}

// DoSyncWithResult queues work, waits for space, and waits for the result.
func (r *Runtime) DoSyncWithResult(ctx context.Context, work func(context.Context) error) error {
	done := make(chan error, 1)
	wrappedWork := LuaWork(func(c context.Context) {
		done <- work(c)
	})

	// Queue the work
	select {
	case <-r.closing:
		return ErrRuntimeClosed
	case <-ctx.Done():
		return ctx.Err()
	case r.workQueue <- wrappedWork:
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

// registerModules registers all Lua modules
func (r *Runtime) registerModules() {
	logModule := modules.NewLogModule()
	r.L.PreloadModule("log", logModule.Loader)

	r.sonosModule = modules.NewSonosModule()
	r.L.PreloadModule("sonos", r.sonosModule.Loader)
}

// Run starts the Lua worker goroutine - this is the ONLY goroutine that touches Lua
// after the script is loaded. Exits when context is cancelled or runtime is closed.
func (r *Runtime) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.drainQueue(ctx)
			return
		case <-r.closing:
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
	r.L.SetContext(ctx)
	work(ctx)
}

// LoadScript loads and executes a Lua script (must be called before Run)
func (r *Runtime) LoadScript(path string) error {
	log.Info().Str("path", path).Msg("Loading Lua script")

	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("failed to execute Lua script: %w", err)
	}

	log.Info().Strs("presets", r.sonosModule.PresetNames()).Msg("Lua script loaded successfully")
	return nil
}

// LoadString executes Lua source (must be called before Run)
func (r *Runtime) LoadString(src string) error {
	if err := r.L.DoString(src); err != nil {
		return fmt.Errorf("failed to execute Lua source: %w", err)
	}
	return nil
}

// Preset returns a preset declared with sonos.preset.
func (r *Runtime) Preset(name string) (modules.Preset, bool) {
	return r.sonosModule.Preset(name)
}

// AllowNotify runs the sonos.on_notify hook with req on the Lua worker. The
// request is allowed when no hook is registered or the hook returns anything
// but false.
func (r *Runtime) AllowNotify(ctx context.Context, req map[string]any) (bool, error) {
	hook := r.sonosModule.Hook()
	if hook == nil {
		return true, nil
	}

	allowed := true
	err := r.DoSyncWithResult(ctx, func(ctx context.Context) error {
		if err := r.L.CallByParam(lua.P{
			Fn:      hook,
			NRet:    1,
			Protect: true,
		}, modules.MapToLuaTable(r.L, req)); err != nil {
			return fmt.Errorf("on_notify hook failed: %w", err)
		}
		ret := r.L.Get(-1)
		r.L.Pop(1)
		allowed = ret != lua.LFalse
		return nil
	})
	if err != nil {
		return false, err
	}
	return allowed, nil
}
