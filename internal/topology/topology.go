// Package topology reconstructs household group membership from the zone
// group state document any player reports.
package topology

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/sonosd/internal/upnp"
)

// ErrPlayerNotFound is returned when no visible member matches the caller.
var ErrPlayerNotFound = errors.New("player not found in household topology")

// Member is one addressable, visible player.
type Member struct {
	Address    upnp.Address `json:"address"`
	Name       string       `json:"name"`
	UUID       string       `json:"uuid"`
	GroupID    string       `json:"group_id"`
	Visible    bool         `json:"visible"`
	ChannelMap string       `json:"channel_map,omitempty"`
}

// Group is an ordered member list with the coordinator at index 0.
type Group struct {
	ID          string   `json:"id"`
	Coordinator string   `json:"coordinator"`
	Members     []Member `json:"members"`
}

// UUIDs returns the member UUIDs in group order.
func (g Group) UUIDs() []string {
	ids := make([]string, len(g.Members))
	for i, m := range g.Members {
		ids[i] = m.UUID
	}
	return ids
}

// IsCoordinator reports whether uuid coordinates the group.
func (g Group) IsCoordinator(uuid string) bool {
	return g.Coordinator == uuid
}

// Current is the group a player belongs to and its position in it.
type Current struct {
	Group Group
	Index int
}

// Member returns the matched player.
func (c *Current) Member() Member {
	return c.Group.Members[c.Index]
}

// StateReader fetches the topology document from a player.
type StateReader interface {
	GetZoneGroupState(ctx context.Context, addr upnp.Address) (string, error)
}

// Resolver answers topology queries. It keeps no state between calls since
// membership can change at any time through other controllers.
type Resolver struct {
	client StateReader
}

// NewResolver creates a resolver.
func NewResolver(client StateReader) *Resolver {
	return &Resolver{client: client}
}

// ListGroups asks addr for the household topology. Any player can answer for
// the whole household.
func (r *Resolver) ListGroups(ctx context.Context, addr upnp.Address) ([]Group, error) {
	doc, err := r.client.GetZoneGroupState(ctx, addr)
	if err != nil {
		return nil, err
	}
	groups, err := ParseState(doc)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("player", string(addr)).Int("groups", len(groups)).Msg("Topology fetched")
	return groups, nil
}

// ResolveCurrentGroup finds the group of the calling player: by exact display
// name when name is set, otherwise by the network origin of addr. Groups and
// members are scanned in reported order and the first match wins.
func (r *Resolver) ResolveCurrentGroup(ctx context.Context, addr upnp.Address, name string) (*Current, error) {
	groups, err := r.ListGroups(ctx, addr)
	if err != nil {
		return nil, err
	}
	current, ok := Find(groups, addr, name)
	if !ok {
		if name != "" {
			return nil, fmt.Errorf("%w: name %q", ErrPlayerNotFound, name)
		}
		return nil, fmt.Errorf("%w: address %s", ErrPlayerNotFound, addr)
	}
	return current, nil
}

// Find locates a player in already fetched groups.
func Find(groups []Group, addr upnp.Address, name string) (*Current, bool) {
	for _, g := range groups {
		for i, m := range g.Members {
			if name != "" {
				if m.Name == name {
					return &Current{Group: g, Index: i}, true
				}
				continue
			}
			if sameOrigin(m.Address, addr) {
				return &Current{Group: g, Index: i}, true
			}
		}
	}
	return nil, false
}

func sameOrigin(a, b upnp.Address) bool {
	return strings.EqualFold(strings.TrimRight(string(a), "/"), strings.TrimRight(string(b), "/"))
}

type zoneGroupState struct {
	Nested []zoneGroup `xml:"ZoneGroups>ZoneGroup"`
	// Older firmware reports <ZoneGroups> as the document root.
	Flat []zoneGroup `xml:"ZoneGroup"`
}

type zoneGroup struct {
	ID          string       `xml:"ID,attr"`
	Coordinator string       `xml:"Coordinator,attr"`
	Members     []zoneMember `xml:"ZoneGroupMember"`
}

type zoneMember struct {
	UUID            string `xml:"UUID,attr"`
	Location        string `xml:"Location,attr"`
	ZoneName        string `xml:"ZoneName,attr"`
	Invisible       string `xml:"Invisible,attr"`
	ChannelMapSet   string `xml:"ChannelMapSet,attr"`
	HTSatChanMapSet string `xml:"HTSatChanMapSet,attr"`
}

// ParseState turns a zone group state document into groups. Coordinators are
// moved to index 0, locations are reduced to origins and invisible members
// are dropped, as are groups without a visible coordinator. Group order
// follows the document.
func ParseState(doc string) ([]Group, error) {
	var state zoneGroupState
	if err := xml.Unmarshal([]byte(doc), &state); err != nil {
		return nil, fmt.Errorf("failed to parse zone group state: %w", err)
	}

	raw := state.Nested
	if len(raw) == 0 {
		raw = state.Flat
	}

	groups := make([]Group, 0, len(raw))
	for _, zg := range raw {
		g, err := buildGroup(zg)
		if err != nil {
			return nil, err
		}
		if len(g.Members) == 0 {
			continue
		}
		groups = append(groups, g)
	}
	return groups, nil
}

func buildGroup(zg zoneGroup) (Group, error) {
	ordered := make([]zoneMember, 0, len(zg.Members))
	for _, m := range zg.Members {
		if m.UUID == zg.Coordinator {
			ordered = append(ordered, m)
		}
	}
	for _, m := range zg.Members {
		if m.UUID != zg.Coordinator {
			ordered = append(ordered, m)
		}
	}

	g := Group{ID: zg.ID, Coordinator: zg.Coordinator}
	for _, m := range ordered {
		if isTrue(m.Invisible) {
			continue
		}
		addr, err := upnp.Origin(m.Location)
		if err != nil {
			return Group{}, fmt.Errorf("member %s: %w", m.UUID, err)
		}
		channelMap := m.ChannelMapSet
		if channelMap == "" {
			channelMap = m.HTSatChanMapSet
		}
		g.Members = append(g.Members, Member{
			Address:    addr,
			Name:       m.ZoneName,
			UUID:       m.UUID,
			GroupID:    zg.ID,
			Visible:    true,
			ChannelMap: channelMap,
		})
	}
	// A group whose coordinator is missing or invisible cannot be driven.
	if len(g.Members) > 0 && g.Members[0].UUID != zg.Coordinator {
		return Group{ID: zg.ID, Coordinator: zg.Coordinator}, nil
	}
	return g, nil
}

func isTrue(s string) bool {
	return s == "1" || strings.EqualFold(s, "true")
}
