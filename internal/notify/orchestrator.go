// Package notify diverts players to transient notification audio and returns
// them to what they were doing before.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/sonosd/internal/settle"
	"github.com/dokzlo13/sonosd/internal/snapshot"
	"github.com/dokzlo13/sonosd/internal/topology"
	"github.com/dokzlo13/sonosd/internal/upnp"
)

// ErrCoordinatorTarget is returned when a joiner divert targets a coordinator.
var ErrCoordinatorTarget = errors.New("joiner divert cannot target the group coordinator")

// Defaults for duration resolution.
const (
	DefaultDuration      = 5 * time.Second
	DefaultDurationSlack = 1 * time.Second
)

// Player is the subset of the action client the orchestrator drives.
type Player interface {
	SetAVTransportURI(ctx context.Context, addr upnp.Address, uri, metadata string) error
	GetVolume(ctx context.Context, addr upnp.Address) (int, error)
	SetVolume(ctx context.Context, addr upnp.Address, volume int) error
	Play(ctx context.Context, addr upnp.Address) error
	GetPositionInfo(ctx context.Context, addr upnp.Address) (*upnp.PositionInfo, error)
}

// GroupResolver locates the group of a calling player.
type GroupResolver interface {
	ResolveCurrentGroup(ctx context.Context, addr upnp.Address, name string) (*topology.Current, error)
}

// Snapshots captures and restores group state.
type Snapshots interface {
	Capture(ctx context.Context, group topology.Group, opts snapshot.Options) (*snapshot.Snapshot, error)
	Restore(ctx context.Context, snap *snapshot.Snapshot) error
}

// Config tunes duration resolution.
type Config struct {
	// DefaultDuration applies when neither a reported nor an explicit
	// duration is available.
	DefaultDuration time.Duration
	// DurationSlack is added to a reported duration to cover startup latency.
	DurationSlack time.Duration
	// QueuePlaylistName, when set, saves a non-empty queue before a group
	// divert and repopulates it from that playlist on restore.
	QueuePlaylistName string
}

// Orchestrator runs divert and restore cycles. Steps within one cycle run
// strictly in order, one remote call at a time.
type Orchestrator struct {
	player    Player
	resolver  GroupResolver
	snapshots Snapshots
	leases    *Leases
	cfg       Config

	// wait suspends for the notification window.
	wait func(ctx context.Context, d time.Duration) error
}

// New creates an orchestrator.
func New(player Player, resolver GroupResolver, snapshots Snapshots, leases *Leases, cfg Config) *Orchestrator {
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = DefaultDuration
	}
	if cfg.DurationSlack < 0 {
		cfg.DurationSlack = 0
	}
	if leases == nil {
		leases = NewLeases()
	}
	return &Orchestrator{
		player:    player,
		resolver:  resolver,
		snapshots: snapshots,
		leases:    leases,
		cfg:       cfg,
		wait:      settle.Sleep,
	}
}

// SetWait replaces the function used to suspend for the notification window.
func (o *Orchestrator) SetWait(wait func(ctx context.Context, d time.Duration) error) {
	o.wait = wait
}

// Notify plays a notification on the player at addr (or named name). The
// whole group is diverted when the player coordinates it; a joiner is
// diverted alone and rejoins afterwards.
func (o *Orchestrator) Notify(ctx context.Context, addr upnp.Address, name string, opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	current, err := o.resolver.ResolveCurrentGroup(ctx, addr, name)
	if err != nil {
		return err
	}
	if current.Index == 0 {
		return o.PlayGroupDivert(ctx, current.Group, opts)
	}
	return o.PlayJoinerDivert(ctx, current.Member(), current.Group.Coordinator, opts)
}

// PlayGroupDivert plays opts.URI on the group coordinated by group.Members[0],
// then restores the group and resumes playback if it was playing.
//
// A failure other than a degraded seek aborts the sequence and may leave the
// group on the notification content.
func (o *Orchestrator) PlayGroupDivert(ctx context.Context, group topology.Group, opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if len(group.Members) == 0 {
		return fmt.Errorf("group %s has no members", group.ID)
	}

	coordinator := group.Members[0]
	release, err := o.leases.Acquire(coordinator.UUID)
	if err != nil {
		return err
	}
	defer release()

	logger := log.With().Str("group", group.ID).Str("coordinator", coordinator.Name).Logger()

	snap, err := o.snapshots.Capture(ctx, group, snapshot.Options{
		CaptureVolumes:    opts.Volume != nil,
		QueuePlaylistName: o.cfg.QueuePlaylistName,
	})
	if err != nil {
		return fmt.Errorf("failed to snapshot group: %w", err)
	}

	if err := o.player.SetAVTransportURI(ctx, coordinator.Address, opts.URI, opts.metadata()); err != nil {
		return fmt.Errorf("failed to set notification content: %w", err)
	}
	if opts.Volume != nil {
		targets := group.Members[:1]
		if opts.ApplyVolumeToAll {
			targets = group.Members
		}
		for _, m := range targets {
			if err := o.player.SetVolume(ctx, m.Address, *opts.Volume); err != nil {
				return fmt.Errorf("failed to set notification volume on %s: %w", m.Name, err)
			}
		}
	}
	if err := o.player.Play(ctx, coordinator.Address); err != nil {
		return fmt.Errorf("failed to start notification: %w", err)
	}

	d, err := o.duration(ctx, coordinator.Address, opts)
	if err != nil {
		return err
	}
	logger.Info().Str("uri", opts.URI).Dur("duration", d).Msg("Notification playing on group")

	o.suspend(ctx, d)

	// The group must go back even if the caller gave up during the window.
	rctx := context.WithoutCancel(ctx)
	if err := o.snapshots.Restore(rctx, snap); err != nil {
		return fmt.Errorf("failed to restore group: %w", err)
	}

	if snap.WasPlaying {
		if snap.NonRestorable() {
			logger.Info().Msg("Previous content cannot be resumed, leaving group stopped")
			return nil
		}
		if err := o.player.Play(rctx, coordinator.Address); err != nil {
			return fmt.Errorf("failed to resume playback: %w", err)
		}
	}

	logger.Info().Bool("resumed", snap.WasPlaying).Msg("Group restored after notification")
	return nil
}

// PlayJoinerDivert plays opts.URI on a single non-coordinator member, which
// leaves its group while doing so, then sends it back to coordinatorUUID.
// Only the joiner's volume is captured; the rest of the group is untouched.
func (o *Orchestrator) PlayJoinerDivert(ctx context.Context, joiner topology.Member, coordinatorUUID string, opts Options) error {
	if joiner.UUID == coordinatorUUID {
		return fmt.Errorf("%w: %s", ErrCoordinatorTarget, joiner.Name)
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	release, err := o.leases.Acquire(coordinatorUUID)
	if err != nil {
		return err
	}
	defer release()

	logger := log.With().Str("joiner", joiner.Name).Str("coordinator", coordinatorUUID).Logger()

	var saved *int
	if opts.Volume != nil {
		volume, err := o.player.GetVolume(ctx, joiner.Address)
		if err != nil {
			return fmt.Errorf("failed to read joiner volume: %w", err)
		}
		saved = &volume
	}

	if err := o.player.SetAVTransportURI(ctx, joiner.Address, opts.URI, opts.metadata()); err != nil {
		return fmt.Errorf("failed to set notification content: %w", err)
	}
	if opts.Volume != nil {
		if err := o.player.SetVolume(ctx, joiner.Address, *opts.Volume); err != nil {
			return fmt.Errorf("failed to set notification volume: %w", err)
		}
	}
	if err := o.player.Play(ctx, joiner.Address); err != nil {
		return fmt.Errorf("failed to start notification: %w", err)
	}

	d, err := o.duration(ctx, joiner.Address, opts)
	if err != nil {
		return err
	}
	logger.Info().Str("uri", opts.URI).Dur("duration", d).Msg("Notification playing on joiner")

	o.suspend(ctx, d)

	rctx := context.WithoutCancel(ctx)
	if saved != nil {
		if err := o.player.SetVolume(rctx, joiner.Address, *saved); err != nil {
			return fmt.Errorf("failed to restore joiner volume: %w", err)
		}
	}
	// Rejoining resumes automatically when the group is playing.
	if err := o.player.SetAVTransportURI(rctx, joiner.Address, "x-rincon:"+coordinatorUUID, ""); err != nil {
		return fmt.Errorf("failed to rejoin group: %w", err)
	}

	logger.Info().Msg("Joiner returned to its group")
	return nil
}

// duration resolves how long the notification window lasts.
func (o *Orchestrator) duration(ctx context.Context, addr upnp.Address, opts Options) (time.Duration, error) {
	if opts.UseReportedDuration {
		pos, err := o.player.GetPositionInfo(ctx, addr)
		if err != nil {
			return 0, fmt.Errorf("failed to read notification duration: %w", err)
		}
		if pos.TrackDuration > 0 {
			return pos.TrackDuration + o.cfg.DurationSlack, nil
		}
		log.Debug().Str("player", string(addr)).Msg("Player reported no duration, falling back")
	}
	if opts.Duration > 0 {
		return opts.Duration, nil
	}
	return o.cfg.DefaultDuration, nil
}

// suspend waits out the notification window. Cancellation ends it early; the
// caller still restores.
func (o *Orchestrator) suspend(ctx context.Context, d time.Duration) {
	if err := o.wait(ctx, d); err != nil {
		log.Warn().Err(err).Msg("Notification window interrupted, restoring early")
	}
}
