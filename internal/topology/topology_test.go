package topology_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dokzlo13/sonosd/internal/topology"
	"github.com/dokzlo13/sonosd/internal/upnp"
	"github.com/dokzlo13/sonosd/internal/upnp/upnptest"
)

const flatDoc = `<ZoneGroups>` +
	`<ZoneGroup Coordinator="RINCON_B" ID="RINCON_B:7">` +
	`<ZoneGroupMember UUID="RINCON_A" Location="http://10.0.0.2:1400/xml/device_description.xml" ZoneName="Kitchen"/>` +
	`<ZoneGroupMember UUID="RINCON_B" Location="http://10.0.0.3:1400/xml/device_description.xml" ZoneName="Living Room" HTSatChanMapSet="RINCON_B:LF,RF"/>` +
	`</ZoneGroup>` +
	`<ZoneGroup Coordinator="RINCON_C" ID="RINCON_C:1">` +
	`<ZoneGroupMember UUID="RINCON_C" Location="http://10.0.0.4:1400/xml/device_description.xml" ZoneName="Sub" Invisible="true"/>` +
	`</ZoneGroup>` +
	`</ZoneGroups>`

func TestParseState_FlatRoot(t *testing.T) {
	groups, err := topology.ParseState(flatDoc)
	if err != nil {
		t.Fatalf("ParseState: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("groups = %d, want 1 (group with only invisible members is dropped)", len(groups))
	}

	g := groups[0]
	if g.ID != "RINCON_B:7" {
		t.Errorf("ID = %q", g.ID)
	}
	if g.Members[0].UUID != "RINCON_B" {
		t.Errorf("coordinator not first: %v", g.UUIDs())
	}
	if g.Members[0].Address != "http://10.0.0.3:1400" {
		t.Errorf("Address = %q, want origin", g.Members[0].Address)
	}
	if g.Members[0].ChannelMap != "RINCON_B:LF,RF" {
		t.Errorf("ChannelMap = %q", g.Members[0].ChannelMap)
	}
	if !g.IsCoordinator("RINCON_B") || g.IsCoordinator("RINCON_A") {
		t.Error("IsCoordinator mismatch")
	}
}

func TestParseState_DropsGroupWithoutVisibleCoordinator(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"coordinator invisible", `<ZoneGroups><ZoneGroup Coordinator="RINCON_B" ID="RINCON_B:1">` +
			`<ZoneGroupMember UUID="RINCON_A" Location="http://10.0.0.2:1400/xml/device_description.xml" ZoneName="Kitchen"/>` +
			`<ZoneGroupMember UUID="RINCON_B" Location="http://10.0.0.3:1400/xml/device_description.xml" ZoneName="Sub" Invisible="1"/>` +
			`</ZoneGroup></ZoneGroups>`},
		{"coordinator absent", `<ZoneGroups><ZoneGroup Coordinator="RINCON_Z" ID="RINCON_Z:1">` +
			`<ZoneGroupMember UUID="RINCON_A" Location="http://10.0.0.2:1400/xml/device_description.xml" ZoneName="Kitchen"/>` +
			`</ZoneGroup></ZoneGroups>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groups, err := topology.ParseState(tt.doc)
			if err != nil {
				t.Fatalf("ParseState: %v", err)
			}
			if len(groups) != 0 {
				t.Errorf("groups = %+v, want none", groups)
			}
		})
	}
}

func TestParseState_Invalid(t *testing.T) {
	if _, err := topology.ParseState("<ZoneGroupState><ZoneGroups>"); err == nil {
		t.Error("expected error for truncated document")
	}
	bad := `<ZoneGroupState><ZoneGroups><ZoneGroup Coordinator="X" ID="X:1">` +
		`<ZoneGroupMember UUID="X" Location="not a url" ZoneName="Broken"/></ZoneGroup></ZoneGroups></ZoneGroupState>`
	if _, err := topology.ParseState(bad); err == nil {
		t.Error("expected error for relative location")
	}
}

func household(t *testing.T) (*upnptest.Player, *upnptest.Player, *upnptest.Player, *upnptest.Player) {
	t.Helper()
	kitchen := upnptest.NewPlayer(t, "RINCON_K", "Kitchen")
	living := upnptest.NewPlayer(t, "RINCON_L", "Living Room")
	sub := upnptest.NewPlayer(t, "RINCON_S", "Sub")
	office := upnptest.NewPlayer(t, "RINCON_O", "Office")
	upnptest.Household(
		upnptest.Group{Coordinator: living, Members: []*upnptest.Player{living, kitchen}, Hidden: []*upnptest.Player{sub}},
		upnptest.Group{Coordinator: office, Members: []*upnptest.Player{office}},
	)
	return kitchen, living, sub, office
}

func TestListGroups_ReordersAndFilters(t *testing.T) {
	kitchen, _, _, _ := household(t)
	r := topology.NewResolver(upnp.NewClient(0, 0))

	groups, err := r.ListGroups(context.Background(), kitchen.Address())
	if err != nil {
		t.Fatalf("ListGroups: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}

	got := groups[0].UUIDs()
	want := []string{"RINCON_L", "RINCON_K"}
	if len(got) != len(want) {
		t.Fatalf("members = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("members[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	for _, m := range groups[0].Members {
		if !m.Visible {
			t.Errorf("member %s not visible", m.UUID)
		}
		if m.GroupID != groups[0].ID {
			t.Errorf("member %s GroupID = %q", m.UUID, m.GroupID)
		}
	}
}

func TestResolveCurrentGroup(t *testing.T) {
	kitchen, living, sub, office := household(t)
	r := topology.NewResolver(upnp.NewClient(0, 0))
	ctx := context.Background()

	tests := []struct {
		name      string
		addr      upnp.Address
		display   string
		wantIndex int
		wantUUID  string
		wantErr   error
	}{
		{name: "coordinator by address", addr: living.Address(), wantIndex: 0, wantUUID: "RINCON_L"},
		{name: "joiner by address", addr: kitchen.Address(), wantIndex: 1, wantUUID: "RINCON_K"},
		{name: "by name through other player", addr: office.Address(), display: "Kitchen", wantIndex: 1, wantUUID: "RINCON_K"},
		{name: "standalone", addr: office.Address(), wantIndex: 0, wantUUID: "RINCON_O"},
		{name: "invisible member", addr: sub.Address(), wantErr: topology.ErrPlayerNotFound},
		{name: "unknown name", addr: kitchen.Address(), display: "Garage", wantErr: topology.ErrPlayerNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			current, err := r.ResolveCurrentGroup(ctx, tt.addr, tt.display)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveCurrentGroup: %v", err)
			}
			if current.Index != tt.wantIndex {
				t.Errorf("Index = %d, want %d", current.Index, tt.wantIndex)
			}
			if current.Member().UUID != tt.wantUUID {
				t.Errorf("member = %s, want %s", current.Member().UUID, tt.wantUUID)
			}
			if current.Group.Members[0].UUID != current.Group.Coordinator {
				t.Errorf("coordinator %s not at index 0", current.Group.Coordinator)
			}
		})
	}
}

func TestResolveCurrentGroup_NameAndAddressAgree(t *testing.T) {
	kitchen, _, _, office := household(t)
	r := topology.NewResolver(upnp.NewClient(0, 0))
	ctx := context.Background()

	byAddr, err := r.ResolveCurrentGroup(ctx, kitchen.Address(), "")
	if err != nil {
		t.Fatalf("by address: %v", err)
	}
	byName, err := r.ResolveCurrentGroup(ctx, office.Address(), "Kitchen")
	if err != nil {
		t.Fatalf("by name: %v", err)
	}
	if byAddr.Group.ID != byName.Group.ID || byAddr.Index != byName.Index {
		t.Errorf("by address %s/%d, by name %s/%d", byAddr.Group.ID, byAddr.Index, byName.Group.ID, byName.Index)
	}
}

func TestResolveCurrentGroup_TransportError(t *testing.T) {
	kitchen := upnptest.NewPlayer(t, "RINCON_K", "Kitchen")
	kitchen.Fail("GetZoneGroupState", "501")
	r := topology.NewResolver(upnp.NewClient(0, 0))

	_, err := r.ResolveCurrentGroup(context.Background(), kitchen.Address(), "")
	var fault *upnp.Fault
	if !errors.As(err, &fault) {
		t.Fatalf("err = %v, want *upnp.Fault", err)
	}
}
