// Package snapshot captures the playback state of a group and reapplies it
// after the group was diverted to other content.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/sonosd/internal/settle"
	"github.com/dokzlo13/sonosd/internal/topology"
	"github.com/dokzlo13/sonosd/internal/upnp"
)

// NonRestorableTag marks externally managed content that cannot be reattached.
const NonRestorableTag = "x-sonos-vli"

const savedQueueURIPrefix = "file:///jffs/settings/savedqueues.rsq#"

// ErrTopologyMismatch is returned by Restore when the group no longer has the
// members it had at capture time.
var ErrTopologyMismatch = errors.New("group topology changed since snapshot")

// Player is the subset of the action client snapshots need.
type Player interface {
	GetVolume(ctx context.Context, addr upnp.Address) (int, error)
	SetVolume(ctx context.Context, addr upnp.Address, volume int) error
	GetMute(ctx context.Context, addr upnp.Address) (bool, error)
	SetMute(ctx context.Context, addr upnp.Address, mute bool) error
	Browse(ctx context.Context, addr upnp.Address, objectID, flag string, start, count int) (*upnp.BrowseResult, error)
	SaveQueue(ctx context.Context, addr upnp.Address, title string) (string, error)
	RemoveAllTracksFromQueue(ctx context.Context, addr upnp.Address) error
	AddURIToQueue(ctx context.Context, addr upnp.Address, uri, metadata string) (*upnp.QueueAddResult, error)
	GetTransportInfo(ctx context.Context, addr upnp.Address) (*upnp.TransportInfo, error)
	GetMediaInfo(ctx context.Context, addr upnp.Address) (*upnp.MediaInfo, error)
	GetPositionInfo(ctx context.Context, addr upnp.Address) (*upnp.PositionInfo, error)
	SetAVTransportURI(ctx context.Context, addr upnp.Address, uri, metadata string) error
	Seek(ctx context.Context, addr upnp.Address, unit, target string) error
}

// TopologyLister re-reads the household topology before a restore.
type TopologyLister interface {
	ListGroups(ctx context.Context, addr upnp.Address) ([]topology.Group, error)
}

// Options select what Capture records.
type Options struct {
	CaptureVolumes bool
	CaptureMutes   bool
	// QueuePlaylistName, when set, saves a non-empty queue under this name.
	QueuePlaylistName string
}

// MemberState is the per-member part of a snapshot. Nil fields were not captured.
type MemberState struct {
	Address upnp.Address
	UUID    string
	Volume  *int
	Mute    *bool
}

// Snapshot is a point-in-time record of a group. Members follow the order of
// the group it was captured from.
type Snapshot struct {
	GroupID            string
	Coordinator        string
	WasPlaying         bool
	TransportState     string
	CurrentURI         string
	CurrentURIMetadata string
	TrackCount         int
	TrackIndex         int
	TrackDuration      time.Duration
	RelativeTime       time.Duration
	// SavedQueueID is the playlist id the queue was saved to, empty if none.
	SavedQueueID string
	Members      []MemberState
	CapturedAt   time.Time
}

// NonRestorable reports whether the captured content cannot be reattached.
func (s *Snapshot) NonRestorable() bool {
	return strings.Contains(s.CurrentURI, NonRestorableTag)
}

func (s *Snapshot) coordinatorAddress() upnp.Address {
	return s.Members[0].Address
}

// Manager captures and restores snapshots.
type Manager struct {
	player   Player
	settler  settle.Settler
	topology TopologyLister
}

// NewManager creates a manager. topology may be nil, in which case Restore
// trusts that membership is unchanged.
func NewManager(player Player, settler settle.Settler, topology TopologyLister) *Manager {
	if settler == nil {
		settler = settle.NewFixed(nil)
	}
	return &Manager{
		player:   player,
		settler:  settler,
		topology: topology,
	}
}

// Capture reads the state of group. It only reads, except for the optional
// playlist save, and never alters playback.
func (m *Manager) Capture(ctx context.Context, group topology.Group, opts Options) (*Snapshot, error) {
	if len(group.Members) == 0 {
		return nil, fmt.Errorf("cannot snapshot empty group %s", group.ID)
	}

	snap := &Snapshot{
		GroupID:     group.ID,
		Coordinator: group.Members[0].UUID,
		Members:     make([]MemberState, 0, len(group.Members)),
		CapturedAt:  time.Now(),
	}

	for _, member := range group.Members {
		state := MemberState{Address: member.Address, UUID: member.UUID}
		if opts.CaptureVolumes {
			volume, err := m.player.GetVolume(ctx, member.Address)
			if err != nil {
				return nil, fmt.Errorf("failed to read volume of %s: %w", member.Name, err)
			}
			state.Volume = &volume
		}
		if opts.CaptureMutes {
			mute, err := m.player.GetMute(ctx, member.Address)
			if err != nil {
				return nil, fmt.Errorf("failed to read mute of %s: %w", member.Name, err)
			}
			state.Mute = &mute
		}
		snap.Members = append(snap.Members, state)
	}

	coordinator := snap.coordinatorAddress()

	queue, err := m.player.Browse(ctx, coordinator, upnp.QueueObjectID, upnp.BrowseDirectChildren, 0, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to probe queue: %w", err)
	}
	if queue.TotalMatches > 0 && opts.QueuePlaylistName != "" {
		id, err := m.player.SaveQueue(ctx, coordinator, opts.QueuePlaylistName)
		if err != nil {
			return nil, fmt.Errorf("failed to save queue: %w", err)
		}
		snap.SavedQueueID = id
	}

	transport, err := m.player.GetTransportInfo(ctx, coordinator)
	if err != nil {
		return nil, fmt.Errorf("failed to read transport state: %w", err)
	}
	media, err := m.player.GetMediaInfo(ctx, coordinator)
	if err != nil {
		return nil, fmt.Errorf("failed to read media info: %w", err)
	}
	position, err := m.player.GetPositionInfo(ctx, coordinator)
	if err != nil {
		return nil, fmt.Errorf("failed to read position: %w", err)
	}

	snap.TransportState = transport.State
	snap.WasPlaying = transport.State == upnp.StatePlaying || transport.State == upnp.StateTransitioning
	snap.CurrentURI = media.CurrentURI
	snap.CurrentURIMetadata = media.CurrentURIMetaData
	snap.TrackCount = media.NrTracks
	snap.TrackIndex = position.Track
	snap.TrackDuration = position.TrackDuration
	snap.RelativeTime = position.RelTime

	log.Debug().
		Str("group", group.ID).
		Str("state", snap.TransportState).
		Str("uri", snap.CurrentURI).
		Int("track", snap.TrackIndex).
		Int("tracks", snap.TrackCount).
		Str("saved_queue", snap.SavedQueueID).
		Msg("Group snapshot captured")

	return snap, nil
}

// Restore reapplies a snapshot. It never resumes playback; callers decide
// that from WasPlaying. Failed seeks are logged and do not fail the restore.
func (m *Manager) Restore(ctx context.Context, snap *Snapshot) error {
	if len(snap.Members) == 0 {
		return fmt.Errorf("cannot restore empty snapshot of group %s", snap.GroupID)
	}
	if err := m.verifyTopology(ctx, snap); err != nil {
		return err
	}

	coordinator := snap.coordinatorAddress()

	if snap.SavedQueueID != "" {
		if err := m.player.RemoveAllTracksFromQueue(ctx, coordinator); err != nil {
			return fmt.Errorf("failed to clear queue: %w", err)
		}
		if _, err := m.player.AddURIToQueue(ctx, coordinator, savedQueueURI(snap.SavedQueueID), ""); err != nil {
			return fmt.Errorf("failed to repopulate queue from %s: %w", snap.SavedQueueID, err)
		}
		if err := m.settler.Settle(ctx, settle.QueuePopulate); err != nil {
			return err
		}
	}

	if snap.NonRestorable() {
		log.Info().
			Str("group", snap.GroupID).
			Str("uri", snap.CurrentURI).
			Msg("Captured content cannot be reattached, leaving group as is")
		return nil
	}

	if snap.CurrentURI != "" {
		if err := m.player.SetAVTransportURI(ctx, coordinator, snap.CurrentURI, snap.CurrentURIMetadata); err != nil {
			return fmt.Errorf("failed to reapply content: %w", err)
		}
	}

	degraded := 0
	if snap.TrackIndex >= 1 && snap.TrackIndex <= snap.TrackCount {
		if err := m.settler.Settle(ctx, settle.Seek); err != nil {
			return err
		}
		if err := m.player.Seek(ctx, coordinator, upnp.SeekTrack, fmt.Sprint(snap.TrackIndex)); err != nil {
			degraded++
			log.Warn().Err(err).Str("group", snap.GroupID).Int("track", snap.TrackIndex).Msg("Restore degraded: seek to track failed")
		}
	}

	if snap.RelativeTime > 0 {
		if err := m.settler.Settle(ctx, settle.Seek); err != nil {
			return err
		}
		target := upnp.FormatTrackTime(snap.RelativeTime)
		if err := m.player.Seek(ctx, coordinator, upnp.SeekRelTime, target); err != nil {
			degraded++
			log.Warn().Err(err).Str("group", snap.GroupID).Str("position", target).Msg("Restore degraded: seek to position failed")
		}
	}

	for _, member := range snap.Members {
		if member.Volume != nil {
			if err := m.player.SetVolume(ctx, member.Address, *member.Volume); err != nil {
				return fmt.Errorf("failed to restore volume of %s: %w", member.UUID, err)
			}
		}
		if member.Mute != nil {
			if err := m.player.SetMute(ctx, member.Address, *member.Mute); err != nil {
				return fmt.Errorf("failed to restore mute of %s: %w", member.UUID, err)
			}
		}
	}

	log.Debug().Str("group", snap.GroupID).Int("degraded_steps", degraded).Msg("Group snapshot restored")
	return nil
}

// verifyTopology requires the captured coordinator to still lead a group with
// the same members in the same order.
func (m *Manager) verifyTopology(ctx context.Context, snap *Snapshot) error {
	if m.topology == nil {
		return nil
	}
	groups, err := m.topology.ListGroups(ctx, snap.coordinatorAddress())
	if err != nil {
		return fmt.Errorf("failed to verify topology: %w", err)
	}

	want := make([]string, len(snap.Members))
	for i, member := range snap.Members {
		want[i] = member.UUID
	}
	for _, g := range groups {
		if g.Coordinator != snap.Coordinator {
			continue
		}
		if slices.Equal(g.UUIDs(), want) {
			return nil
		}
		return fmt.Errorf("%w: members %v, captured %v", ErrTopologyMismatch, g.UUIDs(), want)
	}
	return fmt.Errorf("%w: %s no longer coordinates a group", ErrTopologyMismatch, snap.Coordinator)
}

func savedQueueURI(id string) string {
	return savedQueueURIPrefix + strings.TrimPrefix(id, "SQ:")
}
