package report

import (
	"net/netip"
	"time"

	"github.com/anstrom/scanvault/internal/errors"
	"github.com/anstrom/scanvault/internal/nmapxml"
)

// unknownService names services nmap did not identify.
const unknownService = "unknown"

// Loader folds parser events into a ScanResult. Events can be applied one at
// a time as they are drained, so a large report never has to be queued in
// full.
type Loader struct {
	result  ScanResult
	started bool
	done    bool
}

// NewLoader returns an empty Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load builds a ScanResult from a complete event sequence.
func Load(events []nmapxml.Event) (ScanResult, error) {
	l := NewLoader()
	for _, ev := range events {
		if err := l.Apply(ev); err != nil {
			return ScanResult{}, err
		}
	}
	return l.Result()
}

// Apply folds one event into the scan being built.
func (l *Loader) Apply(ev nmapxml.Event) error {
	if l.done {
		return errors.NewReportError(errors.CodeConflict, "loader result already taken")
	}

	switch ev := ev.(type) {
	case nmapxml.RunStarted:
		if l.started {
			return errors.NewReportError(errors.CodeDuplicateScan, "only one scan per document is supported")
		}
		l.started = true
		l.result.Scanner = ev.Scanner
		l.result.ScannerVersion = ev.Version
		if ev.Args != "" {
			args := ev.Args
			l.result.CommandLine = &args
		}
		l.result.Started = timePtr(ev.Start)

	case nmapxml.HostRecord:
		// A host before the run header cannot be attributed to a scan.
		if !l.started {
			return nil
		}
		host, err := ConvertHost(ev)
		if err != nil {
			return err
		}
		l.result.Hosts = append(l.result.Hosts, host)

	case nmapxml.ScanCompleted:
		if !l.started {
			return nil
		}
		l.result.Completed = timePtr(ev.Time)
	}
	return nil
}

// Result returns the finished scan and hands ownership of it to the caller.
// The Loader cannot be used afterwards.
func (l *Loader) Result() (ScanResult, error) {
	if !l.started {
		return ScanResult{}, errors.ErrNoScan()
	}
	if l.done {
		return ScanResult{}, errors.NewReportError(errors.CodeConflict, "loader result already taken")
	}
	l.done = true

	result := l.result
	l.result = ScanResult{}
	if result.Hosts == nil {
		result.Hosts = []Host{}
	}
	return result, nil
}

// ConvertHost validates a raw host record and normalizes it.
func ConvertHost(rec nmapxml.HostRecord) (Host, error) {
	if rec.Status == nil {
		return Host{}, errors.NewReportError(errors.CodeMissingField, "host is missing state")
	}
	state, err := ParseHostState(rec.Status.State)
	if err != nil {
		return Host{}, err
	}

	host := Host{
		Started:     timePtr(rec.StartTime),
		Completed:   timePtr(rec.EndTime),
		State:       state,
		StateReason: rec.Status.Reason,
		Addresses:   []netip.Addr{},
		Hostnames:   make([]Hostname, 0, len(rec.Hostnames)),
		Ports:       make([]Port, 0, len(rec.Ports)),
	}
	if rec.Address.IsValid() {
		host.Addresses = append(host.Addresses, rec.Address)
	}
	for _, hn := range rec.Hostnames {
		host.Hostnames = append(host.Hostnames, Hostname{Name: hn.Name, Type: hn.Type})
	}
	for _, raw := range rec.Ports {
		port, err := ConvertPort(raw)
		if err != nil {
			return Host{}, err
		}
		host.Ports = append(host.Ports, port)
	}
	host.Scripts = convertScripts(rec.Scripts)
	for _, m := range rec.OS {
		host.OS = append(host.OS, OSMatch{Name: m.Name, Accuracy: m.Accuracy, CPEs: m.CPEs})
	}
	return host, nil
}

// ConvertPort validates a raw port record and normalizes it. CPEs are moved
// onto the service; a port with CPEs but no service gets an unknown one.
func ConvertPort(raw nmapxml.PortRecord) (Port, error) {
	transport, err := ParseTransport(raw.Protocol)
	if err != nil {
		return Port{}, err
	}
	port := Port{
		Number:    raw.PortID,
		Transport: transport,
		Scripts:   convertScripts(raw.Scripts),
	}
	if raw.State != nil {
		state, err := ParsePortState(raw.State.State)
		if err != nil {
			return Port{}, err
		}
		port.State = &state
		port.StateReason = raw.State.Reason
	}

	if raw.Service != nil || len(raw.CPEs) > 0 {
		svc := &Service{Name: unknownService}
		if s := raw.Service; s != nil {
			if s.Name != "" {
				svc.Name = s.Name
			}
			svc.Product = s.Product
			svc.Version = s.Version
			svc.ExtraInfo = s.ExtraInfo
			svc.Method = s.Method
			svc.Confidence = s.Confidence
		}
		if len(raw.CPEs) > 0 {
			svc.CPEs = append([]string(nil), raw.CPEs...)
		}
		port.Service = svc
	}
	return port, nil
}

func convertScripts(in map[string]nmapxml.ScriptResult) map[string]map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]map[string]string, len(in))
	for id, result := range in {
		out[id] = map[string]string(result)
	}
	return out
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
