// Package api serves the HTTP control surface: notification requests,
// household topology and notification history.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/sonosd/internal/eventbus"
	"github.com/dokzlo13/sonosd/internal/ledger"
	"github.com/dokzlo13/sonosd/internal/lua/modules"
	"github.com/dokzlo13/sonosd/internal/topology"
	"github.com/dokzlo13/sonosd/internal/upnp"
)

// ErrUnknownPlayer is returned by a Directory for players it cannot place.
var ErrUnknownPlayer = errors.New("unknown player")

// Directory maps a requested player to the address to ask and, when the
// player is known only by display name, that name.
type Directory interface {
	Lookup(player string) (addr upnp.Address, name string, err error)
}

// Presets resolves script-defined notification presets.
type Presets interface {
	Preset(name string) (modules.Preset, bool)
}

// Gate may veto a notification request.
type Gate interface {
	AllowNotify(ctx context.Context, req map[string]any) (bool, error)
}

// GroupLister lists household groups.
type GroupLister interface {
	ListGroups(ctx context.Context, addr upnp.Address) ([]topology.Group, error)
}

// History returns recent notification history.
type History interface {
	GetRecent(limit int) ([]*ledger.Entry, error)
}

// Publisher queues notification requests.
type Publisher interface {
	Publish(event eventbus.Event) bool
}

// Deps are the collaborators of the server. Presets and Gate are optional.
type Deps struct {
	Directory Directory
	Presets   Presets
	Gate      Gate
	Groups    GroupLister
	History   History
	Bus       Publisher
}

// Server is the HTTP control API.
type Server struct {
	addr       string
	deps       Deps
	httpServer *http.Server
}

// NewServer creates a new API server.
func NewServer(addr string, deps Deps) *Server {
	return &Server{addr: addr, deps: deps}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Post("/notify", s.handleNotify)
	router.Get("/groups", s.handleGroups)
	router.Get("/history", s.handleHistory)
	return router
}

// Run starts the API server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	log.Info().Str("addr", s.addr).Msg("Starting API server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("API server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	var body NotifyBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON body: %w", err))
		return
	}
	if body.Preset != "" {
		if s.deps.Presets == nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("unknown preset %q", body.Preset))
			return
		}
		preset, ok := s.deps.Presets.Preset(body.Preset)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Errorf("unknown preset %q", body.Preset))
			return
		}
		body = body.withPreset(preset)
	}

	opts, err := body.Options()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	addr, name, err := s.deps.Directory.Lookup(body.Player)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	if s.deps.Gate != nil {
		allowed, err := s.deps.Gate.AllowNotify(r.Context(), body.hookRequest())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if !allowed {
			writeError(w, http.StatusForbidden, errors.New("notification rejected by script"))
			return
		}
	}

	req := NotifyRequest{
		ID:      uuid.NewString(),
		Player:  body.Player,
		Address: addr,
		Name:    name,
		Options: opts,
	}

	if !s.deps.Bus.Publish(eventbus.Event{Type: eventbus.EventTypeNotify, ID: req.ID, Payload: req}) {
		writeError(w, http.StatusServiceUnavailable, errors.New("notification queue is full"))
		return
	}

	log.Debug().
		Str("request_id", req.ID).
		Str("player", req.Player).
		Str("uri", opts.URI).
		Msg("Notification request accepted")

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "request_id": req.ID})
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	addr, _, err := s.deps.Directory.Lookup(r.URL.Query().Get("player"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	groups, err := s.deps.Groups.ListGroups(r.Context(), addr)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = min(n, 1000)
	}

	entries, err := s.deps.History.GetRecent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []*ledger.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write API response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
