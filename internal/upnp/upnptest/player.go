// Package upnptest provides an in-process fake player speaking the control
// protocol, for tests of packages built on the upnp client.
package upnptest

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/dokzlo13/sonosd/internal/upnp"
)

// SavedQueuePrefix is the URI form used to enqueue a saved playlist.
const SavedQueuePrefix = "file:///jffs/settings/savedqueues.rsq#"

// Call is one action received by a fake player.
type Call struct {
	Service    string
	Action     string
	SOAPAction string
	Args       map[string]string
}

// State is the mutable state of a fake player.
type State struct {
	Volume         int
	Mute           bool
	TransportState string
	URI            string
	Metadata       string
	NrTracks       int
	Track          int
	TrackDuration  string
	RelTime        string
	Queue          []string
	// Durations maps content URIs to the track duration reported after
	// the URI is set.
	Durations map[string]string
	Topology  string
}

// Player is a fake player backed by an httptest server.
type Player struct {
	UUID   string
	Name   string
	server *httptest.Server

	mu        sync.Mutex
	state     State
	saved     map[string][]string
	nextSaved int
	faults    map[string]string
	calls     []Call
}

// NewPlayer starts a fake player that is closed when the test ends.
func NewPlayer(t testing.TB, uuid, name string) *Player {
	t.Helper()
	p := &Player{
		UUID: uuid,
		Name: name,
		state: State{
			TransportState: upnp.StateStopped,
			RelTime:        "0:00:00",
			TrackDuration:  "0:00:00",
			Durations:      map[string]string{},
		},
		saved:  map[string][]string{},
		faults: map[string]string{},
	}
	p.server = httptest.NewServer(p)
	t.Cleanup(p.server.Close)
	return p
}

// Address returns the player origin.
func (p *Player) Address() upnp.Address {
	return upnp.Address(p.server.URL)
}

// Update mutates the player state under its lock.
func (p *Player) Update(fn func(s *State)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.state)
}

// State returns a copy of the player state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.state
	s.Queue = append([]string(nil), p.state.Queue...)
	return s
}

// Fail makes every subsequent call of action answer with a UPnP fault.
func (p *Player) Fail(action, code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.faults[action] = code
}

// Calls returns the actions received so far.
func (p *Player) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// Actions returns the names of the actions received so far.
func (p *Player) Actions() []string {
	calls := p.Calls()
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Action
	}
	return names
}

// Count returns how many times action was received.
func (p *Player) Count(action string) int {
	n := 0
	for _, c := range p.Calls() {
		if c.Action == action {
			n++
		}
	}
	return n
}

func (p *Player) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	action, args, err := upnp.ParseRequest(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	service := upnp.ServiceID(r.URL.Path)
	spec, err := upnp.Lookup(r.URL.Path, action)
	if err != nil {
		writeFault(w, "401")
		return
	}

	p.mu.Lock()
	p.calls = append(p.calls, Call{
		Service:    service,
		Action:     action,
		SOAPAction: r.Header.Get("SOAPAction"),
		Args:       args,
	})
	if code, ok := p.faults[action]; ok {
		p.mu.Unlock()
		writeFault(w, code)
		return
	}
	out, code := p.apply(action, args)
	p.mu.Unlock()

	if code != "" {
		writeFault(w, code)
		return
	}

	w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
	io.WriteString(w, upnp.BuildResponse(upnp.ServiceURN(service), action, spec.Out, out))
}

func writeFault(w http.ResponseWriter, code string) {
	w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
	w.WriteHeader(http.StatusInternalServerError)
	fmt.Fprintf(w, `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body><s:Fault>`+
		`<faultcode>s:Client</faultcode><faultstring>UPnPError</faultstring><detail>`+
		`<UPnPError xmlns="urn:schemas-upnp-org:control-1-0"><errorCode>%s</errorCode></UPnPError>`+
		`</detail></s:Fault></s:Body></s:Envelope>`, code)
}

// apply runs one action against the state; p.mu must be held.
func (p *Player) apply(action string, args map[string]string) (map[string]string, string) {
	s := &p.state
	switch action {
	case "SetAVTransportURI":
		s.URI = args["CurrentURI"]
		s.Metadata = args["CurrentURIMetaData"]
		s.TransportState = upnp.StateStopped
		s.Track = 1
		s.RelTime = "0:00:00"
		s.TrackDuration = "0:00:00"
		if d, ok := s.Durations[s.URI]; ok {
			s.TrackDuration = d
		}
		switch {
		case s.URI == "":
			s.NrTracks = 0
		case strings.HasPrefix(s.URI, "x-rincon-queue:"):
			s.NrTracks = len(s.Queue)
		default:
			s.NrTracks = 1
		}
	case "Play":
		s.TransportState = upnp.StatePlaying
	case "Pause":
		s.TransportState = upnp.StatePausedPlayback
	case "Stop":
		s.TransportState = upnp.StateStopped
	case "Seek":
		switch args["Unit"] {
		case upnp.SeekTrack:
			n, err := strconv.Atoi(args["Target"])
			if err != nil || n < 1 || n > s.NrTracks {
				return nil, "711"
			}
			s.Track = n
		case upnp.SeekRelTime:
			s.RelTime = args["Target"]
		default:
			return nil, "710"
		}
	case "GetTransportInfo":
		return map[string]string{
			"CurrentTransportState":  s.TransportState,
			"CurrentTransportStatus": "OK",
			"CurrentSpeed":           "1",
		}, ""
	case "GetMediaInfo":
		return map[string]string{
			"NrTracks":           strconv.Itoa(s.NrTracks),
			"MediaDuration":      "NOT_IMPLEMENTED",
			"CurrentURI":         s.URI,
			"CurrentURIMetaData": s.Metadata,
			"NextURI":            "",
			"NextURIMetaData":    "",
			"PlayMedium":         "NETWORK",
			"RecordMedium":       "NOT_IMPLEMENTED",
			"WriteStatus":        "NOT_IMPLEMENTED",
		}, ""
	case "GetPositionInfo":
		return map[string]string{
			"Track":         strconv.Itoa(s.Track),
			"TrackDuration": s.TrackDuration,
			"TrackMetaData": "",
			"TrackURI":      s.URI,
			"RelTime":       s.RelTime,
			"AbsTime":       "NOT_IMPLEMENTED",
			"RelCount":      "2147483647",
			"AbsCount":      "2147483647",
		}, ""
	case "GetVolume":
		return map[string]string{"CurrentVolume": strconv.Itoa(s.Volume)}, ""
	case "SetVolume":
		v, err := strconv.Atoi(args["DesiredVolume"])
		if err != nil || v < 0 || v > 100 {
			return nil, "601"
		}
		s.Volume = v
	case "GetMute":
		mute := "0"
		if s.Mute {
			mute = "1"
		}
		return map[string]string{"CurrentMute": mute}, ""
	case "SetMute":
		s.Mute = args["DesiredMute"] == "1"
	case "Browse":
		if args["ObjectID"] != upnp.QueueObjectID {
			return nil, "701"
		}
		count, _ := strconv.Atoi(args["RequestedCount"])
		returned := min(count, len(s.Queue))
		return map[string]string{
			"Result":         `<DIDL-Lite xmlns="urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/"></DIDL-Lite>`,
			"NumberReturned": strconv.Itoa(returned),
			"TotalMatches":   strconv.Itoa(len(s.Queue)),
			"UpdateID":       "1",
		}, ""
	case "SaveQueue":
		p.nextSaved++
		id := fmt.Sprintf("SQ:%d", p.nextSaved)
		p.saved[id] = append([]string(nil), s.Queue...)
		return map[string]string{"AssignedObjectID": id}, ""
	case "RemoveAllTracksFromQueue":
		s.Queue = nil
	case "AddURIToQueue":
		uri := args["EnqueuedURI"]
		first := len(s.Queue) + 1
		added := []string{uri}
		if strings.HasPrefix(uri, SavedQueuePrefix) {
			tracks, ok := p.saved["SQ:"+strings.TrimPrefix(uri, SavedQueuePrefix)]
			if !ok {
				return nil, "714"
			}
			added = tracks
		}
		s.Queue = append(s.Queue, added...)
		return map[string]string{
			"FirstTrackNumberEnqueued": strconv.Itoa(first),
			"NumTracksAdded":           strconv.Itoa(len(added)),
			"NewQueueLength":           strconv.Itoa(len(s.Queue)),
		}, ""
	case "GetZoneGroupState":
		return map[string]string{"ZoneGroupState": s.Topology}, ""
	}
	return nil, ""
}
