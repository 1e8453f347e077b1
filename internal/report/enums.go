package report

import (
	"fmt"

	"github.com/anstrom/scanvault/internal/errors"
)

// HostState is the reachability nmap reported for a host.
type HostState uint8

// Host states.
const (
	HostUp HostState = iota
	HostDown
)

// Transport is the transport protocol of a port.
type Transport uint8

// Transports.
const (
	TCP Transport = iota
	UDP
)

// PortState is the state nmap determined for a port.
type PortState uint8

// Port states.
const (
	PortOpen PortState = iota
	PortClosed
	PortFiltered
)

var (
	hostStateNames = []string{"UP", "DOWN"}
	transportNames = []string{"TCP", "UDP"}
	portStateNames = []string{"OPEN", "CLOSED", "FILTERED"}
)

// ParseHostState converts nmap's host state attribute.
func ParseHostState(raw string) (HostState, error) {
	switch raw {
	case "up":
		return HostUp, nil
	case "down":
		return HostDown, nil
	default:
		return 0, errors.ErrInvalidEnum("host state", raw)
	}
}

// ParseTransport converts nmap's port protocol attribute.
func ParseTransport(raw string) (Transport, error) {
	switch raw {
	case "tcp":
		return TCP, nil
	case "udp":
		return UDP, nil
	default:
		return 0, errors.ErrInvalidEnum("transport", raw)
	}
}

// ParsePortState converts nmap's port state attribute.
func ParsePortState(raw string) (PortState, error) {
	switch raw {
	case "open":
		return PortOpen, nil
	case "closed":
		return PortClosed, nil
	case "filtered":
		return PortFiltered, nil
	default:
		return 0, errors.ErrInvalidEnum("port state", raw)
	}
}

func (s HostState) String() string { return enumName(hostStateNames, int(s)) }
func (t Transport) String() string { return enumName(transportNames, int(t)) }
func (s PortState) String() string { return enumName(portStateNames, int(s)) }

// MarshalText encodes the state by its upper-case name.
func (s HostState) MarshalText() ([]byte, error) { return marshalEnum(hostStateNames, int(s)) }

// MarshalText encodes the transport by its upper-case name.
func (t Transport) MarshalText() ([]byte, error) { return marshalEnum(transportNames, int(t)) }

// MarshalText encodes the state by its upper-case name.
func (s PortState) MarshalText() ([]byte, error) { return marshalEnum(portStateNames, int(s)) }

// UnmarshalText decodes an upper-case state name.
func (s *HostState) UnmarshalText(b []byte) error {
	i, err := unmarshalEnum(hostStateNames, "host state", string(b))
	*s = HostState(i)
	return err
}

// UnmarshalText decodes an upper-case transport name.
func (t *Transport) UnmarshalText(b []byte) error {
	i, err := unmarshalEnum(transportNames, "transport", string(b))
	*t = Transport(i)
	return err
}

// UnmarshalText decodes an upper-case state name.
func (s *PortState) UnmarshalText(b []byte) error {
	i, err := unmarshalEnum(portStateNames, "port state", string(b))
	*s = PortState(i)
	return err
}

func enumName(names []string, i int) string {
	if i < 0 || i >= len(names) {
		return fmt.Sprintf("UNKNOWN(%d)", i)
	}
	return names[i]
}

func marshalEnum(names []string, i int) ([]byte, error) {
	if i < 0 || i >= len(names) {
		return nil, fmt.Errorf("enum value %d out of range", i)
	}
	return []byte(names[i]), nil
}

func unmarshalEnum(names []string, kind, s string) (int, error) {
	for i, name := range names {
		if name == s {
			return i, nil
		}
	}
	return 0, errors.ErrInvalidEnum(kind, s)
}
