package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/sonosd/internal/api"
	"github.com/dokzlo13/sonosd/internal/config"
	"github.com/dokzlo13/sonosd/internal/db"
	"github.com/dokzlo13/sonosd/internal/eventbus"
	"github.com/dokzlo13/sonosd/internal/ledger"
	"github.com/dokzlo13/sonosd/internal/notify"
	"github.com/dokzlo13/sonosd/internal/settle"
	"github.com/dokzlo13/sonosd/internal/snapshot"
	"github.com/dokzlo13/sonosd/internal/telemetry"
	"github.com/dokzlo13/sonosd/internal/topology"
	"github.com/dokzlo13/sonosd/internal/upnp"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Ledger *ledger.Ledger
	Bus    *eventbus.Bus

	// Household control
	Client       *upnp.Client
	Topology     *topology.Resolver
	Snapshots    *snapshot.Manager
	Orchestrator *notify.Orchestrator
	Players      *PlayerDirectory

	// High-level services
	Lua    *LuaService
	Notify *NotifyService
	API    *APIService
	Health *HealthService

	settler           *settle.Fixed
	busCancel         context.CancelFunc
	telemetryShutdown func(context.Context) error
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	players, err := NewPlayerDirectory(cfg.Household.Seed, cfg.Players)
	if err != nil {
		return nil, err
	}
	s.Players = players

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	// Initialize ledger
	s.Ledger = ledger.New(database.DB)

	// Action client and the layers built on it
	s.Client = upnp.NewClient(cfg.UPnP.Timeout.Duration(), cfg.UPnP.RateLimitRPS)
	s.Topology = topology.NewResolver(s.Client)
	s.settler = settle.NewFixed(map[settle.Kind]time.Duration{
		settle.QueuePopulate: cfg.Settle.QueuePopulate.Duration(),
		settle.Seek:          cfg.Settle.Seek.Duration(),
	})
	s.Snapshots = snapshot.NewManager(s.Client, s.settler, s.Topology)
	s.Orchestrator = notify.New(s.Client, s.Topology, s.Snapshots, notify.NewLeases(), notify.Config{
		DefaultDuration:   cfg.Notify.DefaultDuration.Duration(),
		DurationSlack:     cfg.Notify.DurationSlack.Duration(),
		QueuePlaylistName: cfg.Notify.QueuePlaylistName,
	})

	// Event bus outlives request contexts; it is cancelled in Close
	busCtx, busCancel := context.WithCancel(context.Background())
	s.Bus = eventbus.NewWithConfig(busCtx, cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())
	s.busCancel = busCancel

	s.Lua = NewLuaService(cfg)
	s.Notify = NewNotifyService(cfg, s.Orchestrator, s.Topology, s.Ledger, players.Seed())
	s.API = NewAPIService(cfg, api.Deps{
		Directory: players,
		Presets:   s.Lua,
		Gate:      s.Lua,
		Groups:    s.Topology,
		History:   s.Ledger,
		Bus:       s.Bus,
	})
	s.Health = NewHealthService(cfg, s.Notify.Ready)

	return s, nil
}

// Start starts all services in the correct order.
// The onFatalError callback is called when a service cannot keep running.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	shutdown, err := telemetry.Setup(ctx, s.cfg.Telemetry.Endpoint, s.cfg.Telemetry.ServiceName)
	if err != nil {
		return err
	}
	s.telemetryShutdown = shutdown

	// Load Lua script before starting worker
	if err := s.Lua.LoadScript(); err != nil {
		return err
	}

	s.Notify.RegisterHandlers(s.Bus)

	s.Lua.Start(ctx)
	s.Notify.Start(ctx)
	s.API.Start(ctx, onFatalError)
	s.Health.Start(ctx)

	return nil
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Close()
	return nil
}

// drainTimeout bounds the wait for in-flight notifications on shutdown. A
// restore sleeps through the queue and seek settle intervals, so those come on
// top of the shutdown timeout.
func (s *Services) drainTimeout() time.Duration {
	return s.cfg.GetShutdownTimeout() +
		s.settler.Delay(settle.QueuePopulate) +
		2*s.settler.Delay(settle.Seek)
}

// Close releases all resources.
func (s *Services) Close() {
	timeout := s.cfg.GetShutdownTimeout()

	if s.Bus != nil {
		// Cancelling ends notification windows early; the restores that
		// follow run detached and are drained before the database closes.
		s.busCancel()
		ctx, cancel := context.WithTimeout(context.Background(), s.drainTimeout())
		s.Bus.Close(ctx)
		cancel()
	}
	if s.Lua != nil {
		s.Lua.Close()
	}
	if s.Client != nil {
		s.Client.Close()
	}
	if s.telemetryShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := s.telemetryShutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to flush traces")
		}
		cancel()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
