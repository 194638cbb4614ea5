package upnptest

import (
	"fmt"
	"html"
	"strings"
)

// Group describes one zone group of a fake household.
type Group struct {
	Coordinator *Player
	Members     []*Player
	// Hidden members are reported with Invisible="1" (e.g. stereo pair halves).
	Hidden []*Player
}

// ZoneGroupState renders the topology document players report for groups.
// Coordinators are listed last within their group so consumers must reorder.
func ZoneGroupState(groups ...Group) string {
	var b strings.Builder
	b.WriteString("<ZoneGroupState><ZoneGroups>")
	for i, g := range groups {
		fmt.Fprintf(&b, `<ZoneGroup Coordinator="%s" ID="%s:%d">`, g.Coordinator.UUID, g.Coordinator.UUID, i+1)
		for _, m := range g.Members {
			if m != g.Coordinator {
				writeMember(&b, m, false)
			}
		}
		for _, m := range g.Hidden {
			writeMember(&b, m, true)
		}
		writeMember(&b, g.Coordinator, false)
		b.WriteString("</ZoneGroup>")
	}
	b.WriteString("</ZoneGroups><VanishedDevices></VanishedDevices></ZoneGroupState>")
	return b.String()
}

func writeMember(b *strings.Builder, p *Player, invisible bool) {
	fmt.Fprintf(b, `<ZoneGroupMember UUID="%s" Location="%s/xml/device_description.xml" ZoneName="%s"`,
		p.UUID, p.Address(), html.EscapeString(p.Name))
	if invisible {
		b.WriteString(` Invisible="1"`)
	}
	b.WriteString(`/>`)
}

// Household sets the topology document of every player in groups.
func Household(groups ...Group) string {
	doc := ZoneGroupState(groups...)
	for _, g := range groups {
		all := append([]*Player{g.Coordinator}, g.Members...)
		all = append(all, g.Hidden...)
		for _, p := range all {
			p.Update(func(s *State) { s.Topology = doc })
		}
	}
	return doc
}
