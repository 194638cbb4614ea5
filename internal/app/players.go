package app

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dokzlo13/sonosd/internal/api"
	"github.com/dokzlo13/sonosd/internal/upnp"
)

// PlayerDirectory maps request player names onto addresses.
//
// An empty player means the seed. A configured alias resolves to its address.
// Anything else is treated as a room name and resolved through the seed's
// view of the household.
type PlayerDirectory struct {
	seed    upnp.Address
	aliases map[string]upnp.Address
}

// NewPlayerDirectory builds a directory from config. Without an explicit seed
// the alphabetically first alias is used.
func NewPlayerDirectory(seed string, players map[string]string) (*PlayerDirectory, error) {
	d := &PlayerDirectory{aliases: make(map[string]upnp.Address, len(players))}

	names := make([]string, 0, len(players))
	for alias, raw := range players {
		addr, err := upnp.ParseAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("player %q: %w", alias, err)
		}
		key := strings.ToLower(strings.TrimSpace(alias))
		d.aliases[key] = addr
		names = append(names, key)
	}

	if seed != "" {
		addr, err := upnp.ParseAddress(seed)
		if err != nil {
			return nil, fmt.Errorf("household seed: %w", err)
		}
		d.seed = addr
	} else if len(names) > 0 {
		sort.Strings(names)
		d.seed = d.aliases[names[0]]
	}

	return d, nil
}

// Seed returns the address asked for household topology.
func (d *PlayerDirectory) Seed() upnp.Address {
	return d.seed
}

// Lookup implements api.Directory.
func (d *PlayerDirectory) Lookup(player string) (upnp.Address, string, error) {
	player = strings.TrimSpace(player)
	if player == "" {
		if d.seed == "" {
			return "", "", api.ErrUnknownPlayer
		}
		return d.seed, "", nil
	}

	if addr, ok := d.aliases[strings.ToLower(player)]; ok {
		return addr, "", nil
	}

	if d.seed == "" {
		return "", "", fmt.Errorf("%w: %s", api.ErrUnknownPlayer, player)
	}
	return d.seed, player, nil
}
