package upnp

import (
	"context"
	"strconv"
	"time"
)

// Transport states reported by GetTransportInfo.
const (
	StatePlaying        = "PLAYING"
	StateTransitioning  = "TRANSITIONING"
	StatePausedPlayback = "PAUSED_PLAYBACK"
	StateStopped        = "STOPPED"
)

// Seek units.
const (
	SeekTrack   = "TRACK_NR"
	SeekRelTime = "REL_TIME"
)

// TransportInfo is the reply of GetTransportInfo.
type TransportInfo struct {
	State  string
	Status string
	Speed  string
}

// MediaInfo is the reply of GetMediaInfo.
type MediaInfo struct {
	NrTracks           int
	MediaDuration      string
	CurrentURI         string
	CurrentURIMetaData string
	NextURI            string
	PlayMedium         string
}

// PositionInfo is the reply of GetPositionInfo.
type PositionInfo struct {
	Track         int
	TrackDuration time.Duration
	TrackURI      string
	TrackMetaData string
	RelTime       time.Duration
}

// QueueAddResult is the reply of AddURIToQueue.
type QueueAddResult struct {
	FirstTrackNumberEnqueued int
	NumTracksAdded           int
	NewQueueLength           int
}

// SetAVTransportURI replaces the player's current content.
func (c *Client) SetAVTransportURI(ctx context.Context, addr Address, uri, metadata string) error {
	return c.call(ctx, addr, AVTransportPath, "SetAVTransportURI", Args{
		"InstanceID":         0,
		"CurrentURI":         uri,
		"CurrentURIMetaData": metadata,
	})
}

// Play starts playback at normal speed.
func (c *Client) Play(ctx context.Context, addr Address) error {
	return c.call(ctx, addr, AVTransportPath, "Play", Args{"InstanceID": 0, "Speed": 1})
}

// Pause pauses playback.
func (c *Client) Pause(ctx context.Context, addr Address) error {
	return c.call(ctx, addr, AVTransportPath, "Pause", Args{"InstanceID": 0})
}

// Stop stops playback.
func (c *Client) Stop(ctx context.Context, addr Address) error {
	return c.call(ctx, addr, AVTransportPath, "Stop", Args{"InstanceID": 0})
}

// Seek moves to a target expressed in unit (SeekTrack or SeekRelTime).
func (c *Client) Seek(ctx context.Context, addr Address, unit, target string) error {
	return c.call(ctx, addr, AVTransportPath, "Seek", Args{
		"InstanceID": 0,
		"Unit":       unit,
		"Target":     target,
	})
}

// GetTransportInfo reads the transport state.
func (c *Client) GetTransportInfo(ctx context.Context, addr Address) (*TransportInfo, error) {
	v, err := c.callValues(ctx, addr, AVTransportPath, "GetTransportInfo", Args{"InstanceID": 0})
	if err != nil {
		return nil, err
	}
	return &TransportInfo{
		State:  v["CurrentTransportState"],
		Status: v["CurrentTransportStatus"],
		Speed:  v["CurrentSpeed"],
	}, nil
}

// GetMediaInfo reads the current content.
func (c *Client) GetMediaInfo(ctx context.Context, addr Address) (*MediaInfo, error) {
	v, err := c.callValues(ctx, addr, AVTransportPath, "GetMediaInfo", Args{"InstanceID": 0})
	if err != nil {
		return nil, err
	}
	return &MediaInfo{
		NrTracks:           atoi(v["NrTracks"]),
		MediaDuration:      v["MediaDuration"],
		CurrentURI:         v["CurrentURI"],
		CurrentURIMetaData: v["CurrentURIMetaData"],
		NextURI:            v["NextURI"],
		PlayMedium:         v["PlayMedium"],
	}, nil
}

// GetPositionInfo reads the current track and elapsed time. Unparseable
// durations are reported as zero.
func (c *Client) GetPositionInfo(ctx context.Context, addr Address) (*PositionInfo, error) {
	v, err := c.callValues(ctx, addr, AVTransportPath, "GetPositionInfo", Args{"InstanceID": 0})
	if err != nil {
		return nil, err
	}
	duration, _ := ParseTrackTime(v["TrackDuration"])
	rel, _ := ParseTrackTime(v["RelTime"])
	return &PositionInfo{
		Track:         atoi(v["Track"]),
		TrackDuration: duration,
		TrackURI:      v["TrackURI"],
		TrackMetaData: v["TrackMetaData"],
		RelTime:       rel,
	}, nil
}

// RemoveAllTracksFromQueue empties the coordinator's queue.
func (c *Client) RemoveAllTracksFromQueue(ctx context.Context, addr Address) error {
	return c.call(ctx, addr, AVTransportPath, "RemoveAllTracksFromQueue", Args{"InstanceID": 0})
}

// AddURIToQueue appends uri to the queue.
func (c *Client) AddURIToQueue(ctx context.Context, addr Address, uri, metadata string) (*QueueAddResult, error) {
	v, err := c.callValues(ctx, addr, AVTransportPath, "AddURIToQueue", Args{
		"InstanceID":                      0,
		"EnqueuedURI":                     uri,
		"EnqueuedURIMetaData":             metadata,
		"DesiredFirstTrackNumberEnqueued": 0,
		"EnqueueAsNext":                   0,
	})
	if err != nil {
		return nil, err
	}
	return &QueueAddResult{
		FirstTrackNumberEnqueued: atoi(v["FirstTrackNumberEnqueued"]),
		NumTracksAdded:           atoi(v["NumTracksAdded"]),
		NewQueueLength:           atoi(v["NewQueueLength"]),
	}, nil
}

// SaveQueue stores the queue as a named playlist and returns its object id (SQ:n).
func (c *Client) SaveQueue(ctx context.Context, addr Address, title string) (string, error) {
	return c.callValue(ctx, addr, AVTransportPath, "SaveQueue", Args{
		"InstanceID": 0,
		"Title":      title,
		"ObjectID":   "",
	})
}

// BecomeCoordinatorOfStandaloneGroup makes the player leave its group.
func (c *Client) BecomeCoordinatorOfStandaloneGroup(ctx context.Context, addr Address) error {
	return c.call(ctx, addr, AVTransportPath, "BecomeCoordinatorOfStandaloneGroup", Args{"InstanceID": 0})
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
