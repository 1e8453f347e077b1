// Package report defines the normalized scan model and the Loader that
// builds it from parser events.
package report

import (
	"net/netip"
	"time"
)

// ScanResult is one nmap run with all of its hosts.
type ScanResult struct {
	Scanner        string     `json:"scanner"`
	ScannerVersion string     `json:"scanner_version"`
	CommandLine    *string    `json:"command_line,omitempty"`
	Started        *time.Time `json:"started,omitempty"`
	Completed      *time.Time `json:"completed,omitempty"`
	Hosts          []Host     `json:"hosts"`
}

// Host is one scanned endpoint.
type Host struct {
	Started     *time.Time                   `json:"started,omitempty"`
	Completed   *time.Time                   `json:"completed,omitempty"`
	State       HostState                    `json:"state"`
	StateReason string                       `json:"state_reason"`
	Addresses   []netip.Addr                 `json:"addresses"`
	Hostnames   []Hostname                   `json:"hostnames"`
	Ports       []Port                       `json:"ports"`
	Scripts     map[string]map[string]string `json:"scripts,omitempty"`
	OS          []OSMatch                    `json:"os,omitempty"`
}

// Hostname is a name nmap associated with a host, with its source
// ("user" or "PTR").
type Hostname struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Port is one port nmap reported on a host.
type Port struct {
	Number      uint16                       `json:"number"`
	Transport   Transport                    `json:"transport"`
	State       *PortState                   `json:"state,omitempty"`
	StateReason string                       `json:"state_reason"`
	Service     *Service                     `json:"service,omitempty"`
	Scripts     map[string]map[string]string `json:"scripts,omitempty"`
}

// Service is the fingerprint nmap matched on a port.
type Service struct {
	Name       string   `json:"name"`
	Product    *string  `json:"product,omitempty"`
	Version    *string  `json:"version,omitempty"`
	ExtraInfo  *string  `json:"extra_info,omitempty"`
	Method     *string  `json:"method,omitempty"`
	Confidence *int     `json:"confidence,omitempty"`
	CPEs       []string `json:"cpes,omitempty"`
}

// OSMatch is an operating system guess with its accuracy percentage.
type OSMatch struct {
	Name     string   `json:"name"`
	Accuracy int      `json:"accuracy"`
	CPEs     []string `json:"cpes,omitempty"`
}

// PortCount returns the number of ports over all hosts.
func (r *ScanResult) PortCount() int {
	n := 0
	for i := range r.Hosts {
		n += len(r.Hosts[i].Ports)
	}
	return n
}
