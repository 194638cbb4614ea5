package upnp

import (
	"fmt"
	"net/url"
	"strings"
)

// Address is the network origin of one player, e.g. http://192.168.1.20:1400.
type Address string

// DefaultPort is the control port players listen on.
const DefaultPort = "1400"

// ParseAddress accepts "host", "host:port" or a full URL and returns its
// origin. Paths, queries and fragments are dropped.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty player address")
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid player address %q: %w", s, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid player address %q: no host", s)
	}
	host := u.Host
	if u.Port() == "" {
		host = host + ":" + DefaultPort
	}
	return Address(u.Scheme + "://" + host), nil
}

// Origin strips the path of a device-description URL, keeping scheme and host.
func Origin(location string) (Address, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("invalid location %q: %w", location, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid location %q: not absolute", location)
	}
	return Address(u.Scheme + "://" + u.Host), nil
}

// Host returns the host:port part of the address.
func (a Address) Host() string {
	if u, err := url.Parse(string(a)); err == nil {
		return u.Host
	}
	return string(a)
}

func (a Address) String() string {
	return string(a)
}
