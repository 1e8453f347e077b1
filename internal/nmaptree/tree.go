// Package nmaptree loads nmap reports by decoding the whole document with
// github.com/Ullaakut/nmap/v3 and walking the resulting tree. It produces the
// same events as the streaming parser and shares its Loader, which makes it
// useful for cross-checking the streaming path on a given file.
package nmaptree

import (
	"html"
	"strconv"
	"time"

	"github.com/Ullaakut/nmap/v3"

	"github.com/anstrom/scanvault/internal/errors"
	"github.com/anstrom/scanvault/internal/nmapxml"
	"github.com/anstrom/scanvault/internal/report"
)

// Load decodes a complete document and builds its ScanResult.
func Load(data []byte) (report.ScanResult, error) {
	run := &nmap.Run{}
	if err := nmap.Parse(data, run); err != nil {
		return report.ScanResult{}, errors.WrapReportError(errors.CodeMalformedDocument, "failed to decode report", err)
	}
	events, err := Events(run)
	if err != nil {
		return report.ScanResult{}, err
	}
	return report.Load(events)
}

// Events converts a decoded run into the events the streaming parser would
// emit for it. Informational scaninfo and taskprogress events are omitted.
func Events(run *nmap.Run) ([]nmapxml.Event, error) {
	if run.Scanner == "" {
		return nil, errors.ErrMissingField("nmaprun", "scanner")
	}

	events := make([]nmapxml.Event, 0, len(run.Hosts)+3)
	events = append(events, nmapxml.RunStarted{
		Scanner: run.Scanner,
		Version: run.Version,
		Args:    run.Args,
		Start:   unix(run.Start),
	})

	for i := range run.Hosts {
		rec, err := hostRecord(&run.Hosts[i])
		if err != nil {
			return nil, err
		}
		events = append(events, rec)
	}

	finished := run.Stats.Finished
	if at := unix(finished.Time); !at.IsZero() {
		events = append(events, nmapxml.ScanCompleted{
			Time:    at,
			Summary: finished.Summary,
			Exit:    finished.Exit,
			Elapsed: float64(finished.Elapsed),
		})
	}
	hosts := run.Stats.Hosts
	events = append(events, nmapxml.RunStats{Up: hosts.Up, Down: hosts.Down, Total: hosts.Total})
	return events, nil
}

func hostRecord(h *nmap.Host) (nmapxml.HostRecord, error) {
	rec := nmapxml.HostRecord{
		StartTime: unix(h.StartTime),
		EndTime:   unix(h.EndTime),
	}
	if h.Status.State != "" {
		rec.Status = &nmapxml.Status{State: h.Status.State, Reason: h.Status.Reason}
	}

	for _, a := range h.Addresses {
		addr, err := nmapxml.ParseAddress(a.Addr, a.AddrType)
		if err != nil {
			return rec, err
		}
		rec.Address = addr
	}
	for _, hn := range h.Hostnames {
		rec.Hostnames = append(rec.Hostnames, nmapxml.Hostname{Name: hn.Name, Type: hn.Type})
	}
	for _, ep := range h.ExtraPorts {
		rec.ExtraPorts = append(rec.ExtraPorts, nmapxml.ExtraPorts{State: ep.State, Count: ep.Count})
	}
	for i := range h.Ports {
		rec.Ports = append(rec.Ports, portRecord(&h.Ports[i]))
	}
	rec.Scripts = scripts(h.HostScripts)

	for _, m := range h.OS.Matches {
		match := nmapxml.OSMatch{Name: m.Name, Accuracy: m.Accuracy}
		for _, class := range m.Classes {
			for _, cpe := range class.CPEs {
				match.CPEs = append(match.CPEs, string(cpe))
			}
		}
		rec.OS = append(rec.OS, match)
	}
	return rec, nil
}

func portRecord(p *nmap.Port) nmapxml.PortRecord {
	rec := nmapxml.PortRecord{
		Protocol: p.Protocol,
		PortID:   p.ID,
		Scripts:  scripts(p.Scripts),
	}
	if p.State.State != "" {
		rec.State = &nmapxml.PortState{State: p.State.State, Reason: p.State.Reason}
	}

	svc := p.Service
	if svc.Name != "" {
		rec.Service = &nmapxml.ServiceRecord{
			Name:      svc.Name,
			Product:   optional(svc.Product),
			Version:   optional(svc.Version),
			ExtraInfo: optional(svc.ExtraInfo),
			Method:    optional(svc.Method),
		}
		if conf := svc.Confidence; conf != 0 {
			rec.Service.Confidence = &conf
		}
	}
	for _, cpe := range svc.CPEs {
		rec.CPEs = append(rec.CPEs, string(cpe))
	}
	return rec
}

// scripts flattens decoded scripts the way the streaming parser does.
// The decoder keeps tables and elements in separate lists, so unkeyed
// children are numbered tables first.
func scripts(in []nmap.Script) map[string]nmapxml.ScriptResult {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]nmapxml.ScriptResult, len(in))
	for _, s := range in {
		result := nmapxml.ScriptResult{"output": s.Output}
		flatten(result, "", s.Tables, s.Elements)
		out[s.ID] = result
	}
	return out
}

func flatten(result nmapxml.ScriptResult, prefix string, tables []nmap.Table, elems []nmap.Element) {
	unkeyed := 0
	key := func(k string) string {
		if k == "" {
			unkeyed++
			k = strconv.Itoa(unkeyed)
		}
		if prefix == "" {
			return k
		}
		return prefix + "." + k
	}
	for _, t := range tables {
		flatten(result, key(t.Key), t.Tables, t.Elements)
	}
	for _, e := range elems {
		result[key(e.Key)] = html.UnescapeString(e.Value)
	}
}

func unix(ts nmap.Timestamp) time.Time {
	t := time.Time(ts)
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC()
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
