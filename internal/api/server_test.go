package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dokzlo13/sonosd/internal/eventbus"
	"github.com/dokzlo13/sonosd/internal/ledger"
	"github.com/dokzlo13/sonosd/internal/lua/modules"
	"github.com/dokzlo13/sonosd/internal/topology"
	"github.com/dokzlo13/sonosd/internal/upnp"
)

type fakeDirectory map[string]upnp.Address

func (d fakeDirectory) Lookup(player string) (upnp.Address, string, error) {
	if addr, ok := d[player]; ok {
		return addr, "", nil
	}
	return "", "", ErrUnknownPlayer
}

type fakePresets map[string]modules.Preset

func (p fakePresets) Preset(name string) (modules.Preset, bool) {
	preset, ok := p[name]
	return preset, ok
}

type fakeGate struct{ deny string }

func (g fakeGate) AllowNotify(ctx context.Context, req map[string]any) (bool, error) {
	return req["player"] != g.deny, nil
}

type fakeBus struct {
	events []eventbus.Event
	full   bool
}

func (b *fakeBus) Publish(e eventbus.Event) bool {
	if b.full {
		return false
	}
	b.events = append(b.events, e)
	return true
}

type fakeGroups struct{ err error }

func (g fakeGroups) ListGroups(ctx context.Context, addr upnp.Address) ([]topology.Group, error) {
	if g.err != nil {
		return nil, g.err
	}
	return []topology.Group{{
		ID:          "RINCON_A:1",
		Coordinator: "RINCON_A",
		Members:     []topology.Member{{Address: addr, Name: "Kitchen", UUID: "RINCON_A", Visible: true}},
	}}, nil
}

type fakeHistory []*ledger.Entry

func (h fakeHistory) GetRecent(limit int) ([]*ledger.Entry, error) {
	if len(h) > limit {
		return h[:limit], nil
	}
	return h, nil
}

func newTestServer(bus *fakeBus) http.Handler {
	volume := 40
	s := NewServer("", Deps{
		Directory: fakeDirectory{"kitchen": "http://10.0.0.2:1400", "": "http://10.0.0.2:1400"},
		Presets: fakePresets{"doorbell": {
			URI:      "http://nas/ding.mp3",
			Volume:   &volume,
			Duration: "00:00:04",
		}},
		Gate:    fakeGate{deny: "nursery"},
		Groups:  fakeGroups{},
		History: fakeHistory{{ID: 2, EventType: ledger.EventNotificationCompleted, RequestID: "r1", Timestamp: time.Unix(10, 0)}},
		Bus:     bus,
	})
	return s.Handler()
}

func post(h http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/notify", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNotify_Accepted(t *testing.T) {
	bus := &fakeBus{}
	rec := post(newTestServer(bus), `{"player":"kitchen","uri":"http://nas/a.mp3","volume":50,"duration":"00:00:05","same_volume":true}`)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(bus.events) != 1 {
		t.Fatalf("published %d events", len(bus.events))
	}

	e := bus.events[0]
	req, ok := e.Payload.(NotifyRequest)
	if !ok {
		t.Fatalf("payload = %T", e.Payload)
	}
	if e.ID == "" || e.ID != resp["request_id"] || req.ID != e.ID {
		t.Errorf("ids: event %q, response %q, request %q", e.ID, resp["request_id"], req.ID)
	}
	if req.Address != "http://10.0.0.2:1400" || req.Options.URI != "http://nas/a.mp3" {
		t.Errorf("request = %+v", req)
	}
	if req.Options.Volume == nil || *req.Options.Volume != 50 {
		t.Errorf("volume = %v", req.Options.Volume)
	}
	if req.Options.Duration != 5*time.Second || !req.Options.ApplyVolumeToAll {
		t.Errorf("options = %+v", req.Options)
	}
}

func TestNotify_PresetMerge(t *testing.T) {
	bus := &fakeBus{}
	rec := post(newTestServer(bus), `{"player":"kitchen","preset":"doorbell","volume":10}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	opts := bus.events[0].Payload.(NotifyRequest).Options
	if opts.URI != "http://nas/ding.mp3" {
		t.Errorf("URI = %q, want preset uri", opts.URI)
	}
	if opts.Volume == nil || *opts.Volume != 10 {
		t.Errorf("volume = %v, want request override 10", opts.Volume)
	}
	if opts.Duration != 4*time.Second {
		t.Errorf("duration = %s, want preset 4s", opts.Duration)
	}
}

func TestNotify_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		full   bool
		status int
	}{
		{"bad json", `{`, false, http.StatusBadRequest},
		{"no uri", `{"player":"kitchen"}`, false, http.StatusBadRequest},
		{"bad volume", `{"player":"kitchen","uri":"http://a","volume":120}`, false, http.StatusBadRequest},
		{"bad duration", `{"player":"kitchen","uri":"http://a","duration":"soon"}`, false, http.StatusBadRequest},
		{"unknown preset", `{"player":"kitchen","preset":"nope"}`, false, http.StatusBadRequest},
		{"unknown player", `{"player":"garage","uri":"http://a"}`, false, http.StatusNotFound},
		{"queue full", `{"player":"kitchen","uri":"http://a"}`, true, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := &fakeBus{full: tt.full}
			rec := post(newTestServer(bus), tt.body)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body)
			}
			if len(bus.events) != 0 {
				t.Errorf("published %d events", len(bus.events))
			}
		})
	}
}

func TestNotify_EmptyPlayerUsesSeed(t *testing.T) {
	bus := &fakeBus{}
	rec := post(newTestServer(bus), `{"uri":"http://nas/a.mp3"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	req := bus.events[0].Payload.(NotifyRequest)
	if req.Player != "" || req.Address != "http://10.0.0.2:1400" {
		t.Errorf("request = %+v, want seed address", req)
	}
}

func TestNotify_EmptyPlayerWithoutSeed(t *testing.T) {
	bus := &fakeBus{}
	s := NewServer("", Deps{Directory: fakeDirectory{"kitchen": "http://10.0.0.2:1400"}, Bus: bus})
	rec := post(s.Handler(), `{"uri":"http://nas/a.mp3"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestNotify_GateVeto(t *testing.T) {
	bus := &fakeBus{}
	s := NewServer("", Deps{
		Directory: fakeDirectory{"nursery": "http://10.0.0.9:1400"},
		Gate:      fakeGate{deny: "nursery"},
		Bus:       bus,
	})

	rec := post(s.Handler(), `{"player":"nursery","uri":"http://a"}`)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	if len(bus.events) != 0 {
		t.Error("vetoed request was published")
	}
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(&fakeBus{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/notify", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /notify = %d, want 405", rec.Code)
	}
}

func TestGroups(t *testing.T) {
	h := newTestServer(&fakeBus{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/groups?player=kitchen", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var groups []topology.Group
	if err := json.Unmarshal(rec.Body.Bytes(), &groups); err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 || groups[0].Members[0].Name != "Kitchen" {
		t.Errorf("groups = %+v", groups)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/groups?player=garage", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown player status = %d", rec.Code)
	}
}

func TestGroups_UpstreamError(t *testing.T) {
	s := NewServer("", Deps{
		Directory: fakeDirectory{"": "http://10.0.0.2:1400"},
		Groups:    fakeGroups{err: errors.New("connection refused")},
	})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/groups", nil))
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestHistory(t *testing.T) {
	h := newTestServer(&fakeBus{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history?limit=5", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var entries []ledger.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].RequestID != "r1" {
		t.Errorf("entries = %+v", entries)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history?limit=zero", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", rec.Code)
	}
}
