package app

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/sonosd/internal/config"
	luart "github.com/dokzlo13/sonosd/internal/lua"
	"github.com/dokzlo13/sonosd/internal/lua/modules"
)

// LuaService wraps the Lua runtime holding notification presets and the
// notify hook.
type LuaService struct {
	cfg     *config.Config
	Runtime *luart.Runtime
	loaded  bool
}

// NewLuaService creates a new LuaService.
func NewLuaService(cfg *config.Config) *LuaService {
	return &LuaService{
		cfg:     cfg,
		Runtime: luart.NewRuntime(),
	}
}

// LoadScript loads and executes the Lua script. A missing script is not an
// error; the daemon then runs without presets or hook.
// Must be called before Start().
func (s *LuaService) LoadScript() error {
	if _, err := os.Stat(s.cfg.Script); errors.Is(err, fs.ErrNotExist) {
		log.Info().Str("script", s.cfg.Script).Msg("No Lua script found, presets disabled")
		return nil
	}
	if err := s.Runtime.LoadScript(s.cfg.Script); err != nil {
		return err
	}
	s.loaded = true
	log.Info().Str("script", s.cfg.Script).Msg("Lua script loaded")
	return nil
}

// Start begins the Lua worker goroutine.
func (s *LuaService) Start(ctx context.Context) {
	// The worker is the only goroutine that touches the Lua state.
	go s.Runtime.Run(ctx)
}

// Preset implements api.Presets.
func (s *LuaService) Preset(name string) (modules.Preset, bool) {
	return s.Runtime.Preset(name)
}

// AllowNotify implements api.Gate.
func (s *LuaService) AllowNotify(ctx context.Context, req map[string]any) (bool, error) {
	if !s.loaded {
		return true, nil
	}
	return s.Runtime.AllowNotify(ctx, req)
}

// Close closes the Lua runtime.
func (s *LuaService) Close() {
	if s.Runtime != nil {
		s.Runtime.Close()
	}
}
