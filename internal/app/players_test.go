package app

import (
	"errors"
	"testing"

	"github.com/dokzlo13/sonosd/internal/api"
	"github.com/dokzlo13/sonosd/internal/upnp"
)

func TestPlayerDirectory_Lookup(t *testing.T) {
	d, err := NewPlayerDirectory("10.0.0.2", map[string]string{
		"Kitchen": "10.0.0.3",
		"office":  "http://10.0.0.4:1400",
	})
	if err != nil {
		t.Fatalf("NewPlayerDirectory: %v", err)
	}

	tests := []struct {
		player   string
		wantAddr upnp.Address
		wantName string
	}{
		{"", "http://10.0.0.2:1400", ""},
		{"kitchen", "http://10.0.0.3:1400", ""},
		{"KITCHEN", "http://10.0.0.3:1400", ""},
		{"office", "http://10.0.0.4:1400", ""},
		{"Living Room", "http://10.0.0.2:1400", "Living Room"},
	}
	for _, tt := range tests {
		t.Run(tt.player, func(t *testing.T) {
			addr, name, err := d.Lookup(tt.player)
			if err != nil {
				t.Fatalf("Lookup: %v", err)
			}
			if addr != tt.wantAddr || name != tt.wantName {
				t.Errorf("Lookup(%q) = %s, %q; want %s, %q", tt.player, addr, name, tt.wantAddr, tt.wantName)
			}
		})
	}
}

func TestPlayerDirectory_SeedFromAliases(t *testing.T) {
	d, err := NewPlayerDirectory("", map[string]string{"office": "10.0.0.4", "bath": "10.0.0.5"})
	if err != nil {
		t.Fatal(err)
	}
	if d.Seed() != "http://10.0.0.5:1400" {
		t.Errorf("seed = %s, want first alias", d.Seed())
	}
}

func TestPlayerDirectory_NoSeed(t *testing.T) {
	d, err := NewPlayerDirectory("", nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, player := range []string{"", "garage"} {
		if _, _, err := d.Lookup(player); !errors.Is(err, api.ErrUnknownPlayer) {
			t.Errorf("Lookup(%q) err = %v, want ErrUnknownPlayer", player, err)
		}
	}
}

func TestPlayerDirectory_BadAddress(t *testing.T) {
	if _, err := NewPlayerDirectory("", map[string]string{"x": "http://"}); err == nil {
		t.Error("expected error for unparseable address")
	}
}
