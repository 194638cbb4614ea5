package api

import (
	"github.com/dokzlo13/sonosd/internal/lua/modules"
	"github.com/dokzlo13/sonosd/internal/notify"
	"github.com/dokzlo13/sonosd/internal/upnp"
)

// NotifyBody is the JSON body of POST /notify. Unset fields fall back to
// the named preset, if any.
type NotifyBody struct {
	Player            string `json:"player"`
	Preset            string `json:"preset,omitempty"`
	URI               string `json:"uri,omitempty"`
	Title             string `json:"title,omitempty"`
	Volume            *int   `json:"volume,omitempty"`
	SameVolume        *bool  `json:"same_volume,omitempty"`
	AutomaticDuration *bool  `json:"automatic_duration,omitempty"`
	// Duration is "HH:MM:SS" or a Go duration such as "5s".
	Duration string `json:"duration,omitempty"`
}

// NotifyRequest is the validated request published on the event bus.
type NotifyRequest struct {
	ID      string
	Player  string
	Address upnp.Address
	// Name is the display name to resolve, empty when Address is the player.
	Name    string
	Options notify.Options
}

func (b NotifyBody) withPreset(p modules.Preset) NotifyBody {
	if b.URI == "" {
		b.URI = p.URI
	}
	if b.Title == "" {
		b.Title = p.Title
	}
	if b.Volume == nil && p.Volume != nil {
		v := *p.Volume
		b.Volume = &v
	}
	if b.SameVolume == nil {
		v := p.SameVolume
		b.SameVolume = &v
	}
	if b.AutomaticDuration == nil {
		v := p.AutomaticDuration
		b.AutomaticDuration = &v
	}
	if b.Duration == "" {
		b.Duration = p.Duration
	}
	return b
}

// Options converts the body into validated notification options.
func (b NotifyBody) Options() (notify.Options, error) {
	d, err := notify.ParseDuration(b.Duration)
	if err != nil {
		return notify.Options{}, err
	}

	opts := notify.Options{
		URI:                 b.URI,
		Volume:              b.Volume,
		ApplyVolumeToAll:    b.SameVolume != nil && *b.SameVolume,
		UseReportedDuration: b.AutomaticDuration != nil && *b.AutomaticDuration,
		Duration:            d,
	}
	if b.Title != "" {
		opts.Metadata = notify.Metadata(b.URI, b.Title)
	}
	if err := opts.Validate(); err != nil {
		return notify.Options{}, err
	}
	return opts, nil
}

// hookRequest is the table handed to the script's notify hook.
func (b NotifyBody) hookRequest() map[string]any {
	req := map[string]any{
		"player": b.Player,
		"uri":    b.URI,
		"preset": b.Preset,
	}
	if b.Volume != nil {
		req["volume"] = *b.Volume
	}
	return req
}
