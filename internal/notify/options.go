package notify

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dokzlo13/sonosd/internal/upnp"
)

// ErrInvalidOptions is returned by Validate.
var ErrInvalidOptions = errors.New("invalid notification options")

// Options describe one notification.
type Options struct {
	// URI of the audio to play. Required.
	URI string
	// Metadata is the DIDL-Lite document sent with URI. Derived from URI
	// when empty.
	Metadata string
	// Volume to play the notification at, 0-100. Nil leaves volumes untouched
	// and skips capturing them.
	Volume *int
	// ApplyVolumeToAll sets Volume on every group member instead of only the
	// coordinator. Ignored for joiner diverts.
	ApplyVolumeToAll bool
	// UseReportedDuration waits for the track duration the player reports,
	// plus slack, instead of Duration.
	UseReportedDuration bool
	// Duration to wait before restoring. Zero falls back to the orchestrator
	// default (5s unless configured).
	Duration time.Duration
}

// Validate checks the options once at the boundary.
func (o Options) Validate() error {
	if strings.TrimSpace(o.URI) == "" {
		return fmt.Errorf("%w: uri is required", ErrInvalidOptions)
	}
	if o.Volume != nil && (*o.Volume < 0 || *o.Volume > 100) {
		return fmt.Errorf("%w: volume %d outside 0-100", ErrInvalidOptions, *o.Volume)
	}
	if o.Duration < 0 {
		return fmt.Errorf("%w: negative duration %s", ErrInvalidOptions, o.Duration)
	}
	return nil
}

func (o Options) metadata() string {
	if o.Metadata != "" {
		return o.Metadata
	}
	return Metadata(o.URI, "")
}

// ParseDuration accepts device time ("00:00:05") or Go duration ("5s") syntax.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if strings.Contains(s, ":") {
		return upnp.ParseTrackTime(s)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: duration %q", ErrInvalidOptions, s)
	}
	return d, nil
}
