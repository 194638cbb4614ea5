package modules

import (
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// Preset is a named set of notification defaults declared by the script.
type Preset struct {
	URI               string
	Title             string
	Volume            *int
	SameVolume        bool
	AutomaticDuration bool
	Duration          string
}

// SonosModule exposes preset registration and the notify hook to Lua.
//
//	sonos.preset("doorbell", { uri = "http://nas/ding.mp3", volume = 40, duration = "00:00:04" })
//	sonos.on_notify(function(req) return req.player ~= "nursery" end)
type SonosModule struct {
	mu      sync.RWMutex
	presets map[string]Preset
	hook    *lua.LFunction
}

// NewSonosModule creates a new sonos module
func NewSonosModule() *SonosModule {
	return &SonosModule{presets: make(map[string]Preset)}
}

// Loader is the module loader for Lua
func (m *SonosModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "preset", L.NewFunction(m.preset))
	L.SetField(mod, "on_notify", L.NewFunction(m.onNotify))

	L.Push(mod)
	return 1
}

// Preset returns a preset by name. Safe for concurrent use.
func (m *SonosModule) Preset(name string) (Preset, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.presets[name]
	return p, ok
}

// PresetNames returns the registered preset names, sorted.
func (m *SonosModule) PresetNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.presets))
	for name := range m.presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Hook returns the registered notify hook, or nil.
func (m *SonosModule) Hook() *lua.LFunction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hook
}

func (m *SonosModule) preset(L *lua.LState) int {
	name := L.CheckString(1)
	tbl := L.CheckTable(2)
	fields := LuaTableToMap(tbl)

	var p Preset
	if v, ok := fields["uri"].(string); ok {
		p.URI = v
	}
	if p.URI == "" {
		L.ArgError(2, "preset requires a uri")
		return 0
	}
	if v, ok := fields["title"].(string); ok {
		p.Title = v
	}
	if v, ok := fields["volume"].(float64); ok {
		volume := int(v)
		if volume < 0 || volume > 100 {
			L.ArgError(2, "volume must be within 0-100")
			return 0
		}
		p.Volume = &volume
	}
	if v, ok := fields["same_volume"].(bool); ok {
		p.SameVolume = v
	}
	if v, ok := fields["automatic_duration"].(bool); ok {
		p.AutomaticDuration = v
	}
	if v, ok := fields["duration"].(string); ok {
		p.Duration = v
	}

	m.mu.Lock()
	m.presets[name] = p
	m.mu.Unlock()
	return 0
}

func (m *SonosModule) onNotify(L *lua.LState) int {
	fn := L.CheckFunction(1)
	m.mu.Lock()
	m.hook = fn
	m.mu.Unlock()
	return 0
}
