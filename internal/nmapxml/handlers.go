package nmapxml

import (
	"net/netip"
	"strconv"
	"strings"

	"github.com/anstrom/scanvault/internal/errors"
)

type (
	startHandler func(*Parser, attributes) error
	endHandler   func(*Parser) error
)

// Element vocabulary. Elements missing from both tables are skipped.
var startHandlers = map[string]startHandler{
	"nmaprun":      (*Parser).startRun,
	"scaninfo":     (*Parser).startScanInfo,
	"taskprogress": (*Parser).startTaskProgress,
	"host":         (*Parser).startHost,
	"status":       (*Parser).startStatus,
	"address":      (*Parser).startAddress,
	"hostname":     (*Parser).startHostname,
	"extraports":   (*Parser).startExtraPorts,
	"port":         (*Parser).startPort,
	"state":        (*Parser).startPortState,
	"service":      (*Parser).startService,
	"cpe":          (*Parser).startCPE,
	"script":       (*Parser).startScript,
	"table":        (*Parser).startTable,
	"elem":         (*Parser).startElem,
	"osmatch":      (*Parser).startOSMatch,
	"hosts":        (*Parser).startHostStats,
	"finished":     (*Parser).startFinished,
}

var endHandlers = map[string]endHandler{
	"host":    (*Parser).endHost,
	"port":    (*Parser).endPort,
	"cpe":     (*Parser).endCPE,
	"script":  (*Parser).endScript,
	"table":   (*Parser).endTable,
	"elem":    (*Parser).endElem,
	"osmatch": (*Parser).endOSMatch,
}

func (p *Parser) startRun(a attributes) error {
	scanner, err := a.required("scanner")
	if err != nil {
		return err
	}
	start, err := a.epoch("start")
	if err != nil {
		return err
	}
	p.emit(RunStarted{
		Scanner: scanner,
		Version: a.str("version"),
		Args:    a.str("args"),
		Start:   start,
	})
	return nil
}

func (p *Parser) startScanInfo(a attributes) error {
	scanType, err := a.required("type")
	if err != nil {
		return err
	}
	protocol, err := a.required("protocol")
	if err != nil {
		return err
	}
	numServices, err := a.intOr("numservices", 0)
	if err != nil {
		return err
	}
	p.emit(ScanInfo{
		Type:        scanType,
		Protocol:    protocol,
		NumServices: numServices,
		Services:    a.str("services"),
	})
	return nil
}

func (p *Parser) startTaskProgress(a attributes) error {
	task, err := a.required("task")
	if err != nil {
		return err
	}
	ev := TaskProgress{Task: task}
	if ev.Time, err = a.epoch("time"); err != nil {
		return err
	}
	if ev.Percent, err = a.floatOr("percent", 0); err != nil {
		return err
	}
	if ev.Remaining, err = a.intOr("remaining", 0); err != nil {
		return err
	}
	if ev.ETC, err = a.epoch("etc"); err != nil {
		return err
	}
	p.emit(ev)
	return nil
}

func (p *Parser) startHost(a attributes) error {
	if p.host != nil {
		return errors.NewReportError(errors.CodeMalformedDocument, "nested <host>").InElement("host")
	}
	started, err := a.epoch("starttime")
	if err != nil {
		return err
	}
	ended, err := a.epoch("endtime")
	if err != nil {
		return err
	}
	p.host = &HostRecord{StartTime: started, EndTime: ended}
	return nil
}

func (p *Parser) endHost() error {
	if p.host == nil {
		return errors.NewReportError(errors.CodeMalformedDocument, "</host> without an open host")
	}
	p.emit(*p.host)
	p.host = nil
	return nil
}

func (p *Parser) currentHost(element string) (*HostRecord, error) {
	if p.host == nil {
		return nil, misplaced(element, "host")
	}
	return p.host, nil
}

func (p *Parser) currentPort(element string) (*PortRecord, error) {
	if p.port == nil {
		return nil, misplaced(element, "port")
	}
	return p.port, nil
}

func (p *Parser) startStatus(a attributes) error {
	host, err := p.currentHost(a.element)
	if err != nil {
		return err
	}
	state, err := a.required("state")
	if err != nil {
		return err
	}
	host.Status = &Status{State: state, Reason: a.str("reason")}
	return nil
}

func (p *Parser) startAddress(a attributes) error {
	host, err := p.currentHost(a.element)
	if err != nil {
		return err
	}
	addr, err := a.required("addr")
	if err != nil {
		return err
	}
	addrType, err := a.required("addrtype")
	if err != nil {
		return err
	}

	parsed, err := ParseAddress(addr, addrType)
	if err != nil {
		return err
	}
	host.Address = parsed
	return nil
}

// ParseAddress parses an <address> literal of type ipv4 or ipv6. Any other
// addrtype, mac included, is rejected.
func ParseAddress(addr, addrType string) (netip.Addr, error) {
	a := attributes{element: "address"}
	parsed, err := netip.ParseAddr(addr)
	switch addrType {
	case "ipv4":
		if err != nil || !parsed.Is4() {
			return netip.Addr{}, a.invalid("addr", addr, err)
		}
	case "ipv6":
		if err != nil || !parsed.Is6() {
			return netip.Addr{}, a.invalid("addr", addr, err)
		}
	default:
		return netip.Addr{}, a.invalid("addrtype", addrType, nil)
	}
	return parsed, nil
}

func (p *Parser) startHostname(a attributes) error {
	host, err := p.currentHost(a.element)
	if err != nil {
		return err
	}
	name, err := a.required("name")
	if err != nil {
		return err
	}
	host.Hostnames = append(host.Hostnames, Hostname{Name: name, Type: a.str("type")})
	return nil
}

func (p *Parser) startExtraPorts(a attributes) error {
	host, err := p.currentHost(a.element)
	if err != nil {
		return err
	}
	state, err := a.required("state")
	if err != nil {
		return err
	}
	count, err := a.requiredInt("count")
	if err != nil {
		return err
	}
	host.ExtraPorts = append(host.ExtraPorts, ExtraPorts{State: state, Count: count})
	return nil
}

func (p *Parser) startPort(a attributes) error {
	if _, err := p.currentHost(a.element); err != nil {
		return err
	}
	if p.port != nil {
		return errors.NewReportError(errors.CodeMalformedDocument, "nested <port>").InElement("port")
	}
	protocol, err := a.required("protocol")
	if err != nil {
		return err
	}
	raw, err := a.required("portid")
	if err != nil {
		return err
	}
	id, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		return a.invalid("portid", raw, err)
	}
	p.port = &PortRecord{Protocol: protocol, PortID: uint16(id)}
	return nil
}

func (p *Parser) endPort() error {
	if p.port == nil || p.host == nil {
		return errors.NewReportError(errors.CodeMalformedDocument, "</port> without an open port")
	}
	p.host.Ports = append(p.host.Ports, *p.port)
	p.port = nil
	return nil
}

func (p *Parser) startPortState(a attributes) error {
	port, err := p.currentPort(a.element)
	if err != nil {
		return err
	}
	state, err := a.required("state")
	if err != nil {
		return err
	}
	port.State = &PortState{State: state, Reason: a.str("reason")}
	return nil
}

func (p *Parser) startService(a attributes) error {
	port, err := p.currentPort(a.element)
	if err != nil {
		return err
	}
	name, err := a.required("name")
	if err != nil {
		return err
	}
	conf, err := a.optionalInt("conf")
	if err != nil {
		return err
	}
	port.Service = &ServiceRecord{
		Name:       name,
		Product:    a.optional("product"),
		Version:    a.optional("version"),
		ExtraInfo:  a.optional("extrainfo"),
		Method:     a.optional("method"),
		Confidence: conf,
	}
	return nil
}

// CPEs are collected for OS classes and for anything inside an open port;
// anywhere else they are read and dropped.
func (p *Parser) startCPE(_ attributes) error {
	p.cpeDst = nil
	switch {
	case p.tok.parent() == "osclass" && p.osMatch != nil:
		p.cpeDst = &p.osMatch.CPEs
	case p.port != nil:
		p.cpeDst = &p.port.CPEs
	}
	return p.startCapture()
}

func (p *Parser) endCPE() error {
	text, err := p.stopCapture()
	if err != nil {
		return err
	}
	if p.cpeDst != nil {
		*p.cpeDst = append(*p.cpeDst, strings.TrimSpace(text))
		p.cpeDst = nil
	}
	return nil
}

func (p *Parser) startOSMatch(a attributes) error {
	if p.host == nil {
		return nil
	}
	accuracy, err := a.intOr("accuracy", 0)
	if err != nil {
		return err
	}
	p.osMatch = &OSMatch{Name: a.str("name"), Accuracy: accuracy}
	return nil
}

func (p *Parser) endOSMatch() error {
	if p.osMatch != nil && p.host != nil {
		p.host.OS = append(p.host.OS, *p.osMatch)
	}
	p.osMatch = nil
	return nil
}

func (p *Parser) startHostStats(a attributes) error {
	if p.tok.parent() != "runstats" {
		return nil
	}
	var stats RunStats
	var err error
	if stats.Up, err = a.intOr("up", 0); err != nil {
		return err
	}
	if stats.Down, err = a.intOr("down", 0); err != nil {
		return err
	}
	if stats.Total, err = a.intOr("total", 0); err != nil {
		return err
	}
	p.emit(stats)
	return nil
}

func (p *Parser) startFinished(a attributes) error {
	finished, err := a.requiredEpoch("time")
	if err != nil {
		return err
	}
	elapsed, err := a.floatOr("elapsed", 0)
	if err != nil {
		return err
	}
	p.emit(ScanCompleted{
		Time:    finished,
		Summary: a.str("summary"),
		Exit:    a.str("exit"),
		Elapsed: elapsed,
	})
	return nil
}
