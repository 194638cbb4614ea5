package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/dokzlo13/sonosd/internal/api"
	"github.com/dokzlo13/sonosd/internal/config"
	"github.com/dokzlo13/sonosd/internal/db"
	"github.com/dokzlo13/sonosd/internal/eventbus"
	"github.com/dokzlo13/sonosd/internal/ledger"
	"github.com/dokzlo13/sonosd/internal/notify"
	"github.com/dokzlo13/sonosd/internal/upnp"
	"github.com/dokzlo13/sonosd/internal/upnp/upnptest"
)

func TestServices_CloseRestoresInFlightNotification(t *testing.T) {
	const (
		radio = "x-sonosapi-stream:radio"
		chime = "http://nas/chime.mp3"
	)

	coordinator := upnptest.NewPlayer(t, "RINCON_A", "Living Room")
	upnptest.Household(upnptest.Group{
		Coordinator: coordinator,
		Members:     []*upnptest.Player{coordinator},
	})
	coordinator.Update(func(s *upnptest.State) {
		s.Volume = 20
		s.URI = radio
		s.NrTracks = 1
		s.Track = 1
		s.RelTime = "0:01:00"
		s.TransportState = upnp.StatePlaying
	})

	dbPath := filepath.Join(t.TempDir(), "sonosd.sqlite")
	cfg := &config.Config{
		Household:       config.HouseholdConfig{Seed: coordinator.Address().String()},
		Database:        config.DatabaseConfig{Path: dbPath},
		Settle:          config.SettleConfig{QueuePopulate: config.Duration(10 * time.Millisecond), Seek: config.Duration(10 * time.Millisecond)},
		ShutdownTimeout: config.Duration(200 * time.Millisecond),
		Script:          filepath.Join(t.TempDir(), "missing.lua"),
	}

	s, err := NewServices(cfg)
	if err != nil {
		t.Fatalf("NewServices: %v", err)
	}
	s.Notify.RegisterHandlers(s.Bus)

	volume := 60
	req := api.NotifyRequest{
		ID:      "req-shutdown",
		Player:  "living room",
		Address: coordinator.Address(),
		Options: notify.Options{URI: chime, Volume: &volume, Duration: 3 * time.Second},
	}
	if !s.Bus.Publish(eventbus.Event{Type: eventbus.EventTypeNotify, ID: req.ID, Payload: req}) {
		t.Fatal("publish rejected")
	}

	deadline := time.Now().Add(2 * time.Second)
	for coordinator.State().TransportState != upnp.StatePlaying || coordinator.State().URI != chime {
		if time.Now().After(deadline) {
			t.Fatalf("notification never started: %+v", coordinator.State())
		}
		time.Sleep(10 * time.Millisecond)
	}

	start := time.Now()
	s.Close()
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Close took %s, notification window was not cut short", elapsed)
	}

	state := coordinator.State()
	if state.URI != radio || state.Volume != 20 {
		t.Errorf("after Close: uri=%q volume=%d, want %q at 20", state.URI, state.Volume, radio)
	}
	if state.TransportState != upnp.StatePlaying {
		t.Errorf("after Close: transport %s, want playback resumed", state.TransportState)
	}

	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()
	entries, err := ledger.New(database.DB).GetByRequest(req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[1].EventType != ledger.EventNotificationCompleted {
		t.Errorf("ledger = %+v, want started then completed", entries)
	}
}
