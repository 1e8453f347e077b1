// Package nmapxml implements an incremental, push-fed parser for Nmap XML
// reports. Bytes are fed in arbitrary chunks and the parser emits typed
// events as soon as each report element completes, so a whole report never
// needs to be held as a document tree.
package nmapxml

import (
	"net/netip"
	"time"
)

// Event is one item produced by the parser. The concrete types are
// RunStarted, ScanInfo, TaskProgress, HostRecord, ScanCompleted and RunStats.
type Event interface {
	scanEvent()
}

// RunStarted is emitted for the <nmaprun> header.
type RunStarted struct {
	Scanner string
	Version string
	Args    string
	Start   time.Time
}

// ScanInfo is emitted for each <scaninfo> element.
type ScanInfo struct {
	Type        string
	Protocol    string
	NumServices int
	Services    string
}

// TaskProgress is emitted for each <taskprogress> element. Nmap writes
// these while a scan is still running.
type TaskProgress struct {
	Task      string
	Time      time.Time
	Percent   float64
	Remaining int
	ETC       time.Time
}

// HostRecord is emitted when a <host> element closes.
type HostRecord struct {
	StartTime  time.Time
	EndTime    time.Time
	Status     *Status
	Address    netip.Addr
	Hostnames  []Hostname
	Ports      []PortRecord
	ExtraPorts []ExtraPorts
	Scripts    map[string]ScriptResult
	OS         []OSMatch
}

// ScanCompleted is emitted for <runstats><finished>.
type ScanCompleted struct {
	Time    time.Time
	Summary string
	Exit    string
	Elapsed float64
}

// RunStats is emitted for <runstats><hosts>.
type RunStats struct {
	Up    int
	Down  int
	Total int
}

func (RunStarted) scanEvent()    {}
func (ScanInfo) scanEvent()      {}
func (TaskProgress) scanEvent()  {}
func (HostRecord) scanEvent()    {}
func (ScanCompleted) scanEvent() {}
func (RunStats) scanEvent()      {}

// Status is the host <status> element.
type Status struct {
	State  string
	Reason string
}

// Hostname is one <hostname> entry.
type Hostname struct {
	Name string
	Type string
}

// ExtraPorts summarizes ports nmap did not list individually.
type ExtraPorts struct {
	State string
	Count int
}

// PortState is the port <state> element.
type PortState struct {
	State  string
	Reason string
}

// PortRecord is a <port> with its nested state, service, CPEs and scripts.
type PortRecord struct {
	Protocol string
	PortID   uint16
	State    *PortState
	Service  *ServiceRecord
	CPEs     []string
	Scripts  map[string]ScriptResult
}

// ServiceRecord is the <service> element. Optional attributes are nil when absent.
type ServiceRecord struct {
	Name       string
	Product    *string
	Version    *string
	ExtraInfo  *string
	Method     *string
	Confidence *int
}

// ScriptResult holds a script's "output" attribute and one entry per <elem>.
// Keys of elements nested in tables are joined with "."; elements and tables
// without a key are numbered from 1 within their parent.
type ScriptResult map[string]string

// OSMatch is one <osmatch> candidate with the CPEs of its classes.
type OSMatch struct {
	Name     string
	Accuracy int
	CPEs     []string
}
