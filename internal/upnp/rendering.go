package upnp

import (
	"context"
	"fmt"
	"strconv"
)

// GetVolume reads the master volume (0-100).
func (c *Client) GetVolume(ctx context.Context, addr Address) (int, error) {
	v, err := c.callValue(ctx, addr, RenderingControlPath, "GetVolume", Args{"InstanceID": 0, "Channel": "Master"})
	if err != nil {
		return 0, err
	}
	volume, err := strconv.Atoi(v)
	if err != nil || volume < 0 || volume > 100 {
		return 0, fmt.Errorf("%w: volume %q", ErrUnexpectedResponse, v)
	}
	return volume, nil
}

// SetVolume writes the master volume.
func (c *Client) SetVolume(ctx context.Context, addr Address, volume int) error {
	return c.call(ctx, addr, RenderingControlPath, "SetVolume", Args{
		"InstanceID":    0,
		"Channel":       "Master",
		"DesiredVolume": volume,
	})
}

// GetMute reads the master mute.
func (c *Client) GetMute(ctx context.Context, addr Address) (bool, error) {
	v, err := c.callValue(ctx, addr, RenderingControlPath, "GetMute", Args{"InstanceID": 0, "Channel": "Master"})
	if err != nil {
		return false, err
	}
	return v == "1", nil
}

// SetMute writes the master mute.
func (c *Client) SetMute(ctx context.Context, addr Address, mute bool) error {
	desired := 0
	if mute {
		desired = 1
	}
	return c.call(ctx, addr, RenderingControlPath, "SetMute", Args{
		"InstanceID":  0,
		"Channel":     "Master",
		"DesiredMute": desired,
	})
}
