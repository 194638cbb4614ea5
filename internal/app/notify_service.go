package app

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/sonosd/internal/api"
	"github.com/dokzlo13/sonosd/internal/config"
	"github.com/dokzlo13/sonosd/internal/eventbus"
	"github.com/dokzlo13/sonosd/internal/ledger"
	"github.com/dokzlo13/sonosd/internal/notify"
	"github.com/dokzlo13/sonosd/internal/upnp"
)

// Notifier runs one notification cycle.
type Notifier interface {
	Notify(ctx context.Context, addr upnp.Address, name string, opts notify.Options) error
}

// NotifyService executes queued notification requests and records their
// outcome in the ledger.
type NotifyService struct {
	cfg      *config.Config
	notifier Notifier
	groups   api.GroupLister
	ledger   *ledger.Ledger
	seed     upnp.Address

	probeDelay time.Duration
	reachable  atomic.Bool
}

// NewNotifyService creates a new NotifyService.
func NewNotifyService(cfg *config.Config, notifier Notifier, groups api.GroupLister, l *ledger.Ledger, seed upnp.Address) *NotifyService {
	return &NotifyService{
		cfg:      cfg,
		notifier: notifier,
		groups:   groups,
		ledger:   l,
		seed:     seed,

		probeDelay: time.Second,
	}
}

// RegisterHandlers subscribes the service to notification events.
func (s *NotifyService) RegisterHandlers(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.EventTypeNotify, s.handle)
}

// Start runs the household probe and ledger cleanup in the background.
func (s *NotifyService) Start(ctx context.Context) {
	go s.probe(ctx)
	go s.runLedgerCleanup(ctx)
}

func (s *NotifyService) handle(ctx context.Context, event eventbus.Event) {
	req, ok := event.Payload.(api.NotifyRequest)
	if !ok {
		log.Error().Str("event_id", event.ID).Msgf("Unexpected notify payload %T", event.Payload)
		return
	}

	logger := log.With().
		Str("request_id", req.ID).
		Str("player", req.Player).
		Logger()

	s.record(ledger.EventNotificationStarted, req, map[string]any{
		"uri":     req.Options.URI,
		"address": req.Address.String(),
	})

	start := time.Now()
	err := s.notifier.Notify(ctx, req.Address, req.Name, req.Options)
	elapsed := time.Since(start)

	if err != nil {
		logger.Error().Err(err).Dur("elapsed", elapsed).Msg("Notification failed")
		s.record(ledger.EventNotificationFailed, req, map[string]any{
			"error":      err.Error(),
			"elapsed_ms": elapsed.Milliseconds(),
		})
		return
	}

	s.reachable.Store(true)
	logger.Info().Dur("elapsed", elapsed).Msg("Notification completed")
	s.record(ledger.EventNotificationCompleted, req, map[string]any{
		"elapsed_ms": elapsed.Milliseconds(),
	})
}

func (s *NotifyService) record(eventType ledger.EventType, req api.NotifyRequest, payload map[string]any) {
	if s.ledger == nil {
		return
	}
	if err := s.ledger.Append(eventType, req.ID, req.Player, payload); err != nil {
		log.Warn().Err(err).Str("request_id", req.ID).Msg("Failed to write ledger entry")
	}
}

// probe checks that the seed player answers topology queries. Failure is
// logged only; players may come online later.
func (s *NotifyService) probe(ctx context.Context) {
	if s.seed == "" {
		return
	}

	var groups int
	err := retry.Do(
		func() error {
			g, err := s.groups.ListGroups(ctx, s.seed)
			if err != nil {
				return err
			}
			groups = len(g)
			return nil
		},
		retry.Attempts(3),
		retry.Delay(s.probeDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Debug().Err(err).Uint("attempt", n+1).Str("seed", s.seed.String()).Msg("Household probe failed, retrying")
		}),
	)
	if err != nil {
		log.Warn().Err(err).Str("seed", s.seed.String()).Msg("Household seed not reachable")
		return
	}
	s.reachable.Store(true)
	log.Info().Int("groups", groups).Str("seed", s.seed.String()).Msg("Household topology available")
}

// Ready reports whether the seed player has answered the startup probe.
func (s *NotifyService) Ready() bool {
	return s.reachable.Load()
}

// runLedgerCleanup periodically removes expired ledger entries.
func (s *NotifyService) runLedgerCleanup(ctx context.Context) {
	if s.ledger == nil {
		return
	}
	retention := time.Duration(s.cfg.Ledger.RetentionDays) * 24 * time.Hour
	interval := s.cfg.Ledger.CleanupInterval.Duration()
	if retention <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.ledger.DeleteOlderThan(retention)
			if err != nil {
				log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
			} else if deleted > 0 {
				log.Info().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old ledger entries")
			}
		}
	}
}
