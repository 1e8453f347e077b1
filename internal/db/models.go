package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"net/netip"
	"time"

	"github.com/lib/pq"

	"github.com/anstrom/scanvault/internal/report"
	"github.com/anstrom/scanvault/internal/storage"
)

// JSONB wraps json.RawMessage for PostgreSQL JSONB type.
type JSONB json.RawMessage

// Scan implements sql.Scanner for PostgreSQL JSONB type.
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		*j = append(JSONB(nil), v...)
		return nil
	case string:
		*j = JSONB([]byte(v))
		return nil
	default:
		return fmt.Errorf("cannot scan %T into JSONB", value)
	}
}

// Value implements driver.Valuer for PostgreSQL JSONB type.
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return []byte(j), nil
}

// toJSONB encodes v, storing NULL for empty maps and slices.
func toJSONB[T any](v T, empty bool) (JSONB, error) {
	if empty {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return JSONB(data), nil
}

// decode unmarshals a non-NULL value into dst.
func (j JSONB) decode(dst any) error {
	if j == nil {
		return nil
	}
	return json.Unmarshal(j, dst)
}

// scanRow is a row of the scans table.
type scanRow struct {
	ID             string     `db:"id"`
	Scanner        string     `db:"scanner"`
	ScannerVersion string     `db:"scanner_version"`
	CommandLine    *string    `db:"command_line"`
	Started        *time.Time `db:"started"`
	Completed      *time.Time `db:"completed"`
	HostCount      int        `db:"host_count"`
}

// hostRow is a row of the hosts table.
type hostRow struct {
	ID          string         `db:"id"`
	ScanID      string         `db:"scan_id"`
	Position    int            `db:"position"`
	Started     *time.Time     `db:"started"`
	Completed   *time.Time     `db:"completed"`
	State       string         `db:"state"`
	StateReason string         `db:"state_reason"`
	Addresses   pq.StringArray `db:"addresses"`
	Hostnames   JSONB          `db:"hostnames"`
	Scripts     JSONB          `db:"scripts"`
	OS          JSONB          `db:"os"`
}

// portRow is a row of the ports table.
type portRow struct {
	HostID      string         `db:"host_id"`
	Position    int            `db:"position"`
	Number      int            `db:"number"`
	Transport   string         `db:"transport"`
	State       *string        `db:"state"`
	StateReason string         `db:"state_reason"`
	ServiceName *string        `db:"service_name"`
	Product     *string        `db:"product"`
	Version     *string        `db:"version"`
	ExtraInfo   *string        `db:"extra_info"`
	Method      *string        `db:"method"`
	Confidence  *int           `db:"confidence"`
	CPEs        pq.StringArray `db:"cpes"`
	Scripts     JSONB          `db:"scripts"`
}

func newHostRow(id, scanID string, position int, h *report.Host) (hostRow, error) {
	row := hostRow{
		ID:          id,
		ScanID:      scanID,
		Position:    position,
		Started:     h.Started,
		Completed:   h.Completed,
		State:       h.State.String(),
		StateReason: h.StateReason,
		Addresses:   make(pq.StringArray, 0, len(h.Addresses)),
	}
	for _, a := range h.Addresses {
		row.Addresses = append(row.Addresses, a.String())
	}

	hostnames := h.Hostnames
	if hostnames == nil {
		hostnames = []report.Hostname{}
	}
	var err error
	if row.Hostnames, err = toJSONB(hostnames, false); err != nil {
		return row, fmt.Errorf("encode hostnames: %w", err)
	}
	if row.Scripts, err = toJSONB(h.Scripts, len(h.Scripts) == 0); err != nil {
		return row, fmt.Errorf("encode host scripts: %w", err)
	}
	if row.OS, err = toJSONB(h.OS, len(h.OS) == 0); err != nil {
		return row, fmt.Errorf("encode os matches: %w", err)
	}
	return row, nil
}

func newPortRow(hostID string, position int, p *report.Port) (portRow, error) {
	row := portRow{
		HostID:      hostID,
		Position:    position,
		Number:      int(p.Number),
		Transport:   p.Transport.String(),
		StateReason: p.StateReason,
	}
	if p.State != nil {
		state := p.State.String()
		row.State = &state
	}
	if svc := p.Service; svc != nil {
		name := svc.Name
		row.ServiceName = &name
		row.Product = svc.Product
		row.Version = svc.Version
		row.ExtraInfo = svc.ExtraInfo
		row.Method = svc.Method
		row.Confidence = svc.Confidence
		row.CPEs = pq.StringArray(svc.CPEs)
	}
	var err error
	if row.Scripts, err = toJSONB(p.Scripts, len(p.Scripts) == 0); err != nil {
		return row, fmt.Errorf("encode port scripts: %w", err)
	}
	return row, nil
}

func (r *scanRow) summary() storage.ScanSummary {
	return storage.ScanSummary{
		ID:             r.ID,
		Scanner:        r.Scanner,
		ScannerVersion: r.ScannerVersion,
		CommandLine:    r.CommandLine,
		Started:        utcPtr(r.Started),
		Completed:      utcPtr(r.Completed),
		HostCount:      r.HostCount,
	}
}

func (r *hostRow) summary() (storage.HostSummary, error) {
	s := storage.HostSummary{
		ID:          r.ID,
		ScanID:      r.ScanID,
		Started:     utcPtr(r.Started),
		Completed:   utcPtr(r.Completed),
		StateReason: r.StateReason,
		Addresses:   make([]netip.Addr, 0, len(r.Addresses)),
		Hostnames:   []report.Hostname{},
	}
	if err := s.State.UnmarshalText([]byte(r.State)); err != nil {
		return s, err
	}
	for _, raw := range r.Addresses {
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return s, fmt.Errorf("stored address %q: %w", raw, err)
		}
		s.Addresses = append(s.Addresses, addr)
	}
	if err := r.Hostnames.decode(&s.Hostnames); err != nil {
		return s, fmt.Errorf("decode hostnames: %w", err)
	}
	return s, nil
}

func (r *portRow) port() (storage.PortDetail, error) {
	p := storage.PortDetail{
		Number:      uint16(r.Number),
		StateReason: r.StateReason,
	}
	if err := p.Transport.UnmarshalText([]byte(r.Transport)); err != nil {
		return p, err
	}
	if r.State != nil {
		var state report.PortState
		if err := state.UnmarshalText([]byte(*r.State)); err != nil {
			return p, err
		}
		p.State = &state
	}
	if r.ServiceName != nil {
		p.Service = &report.Service{
			Name:       *r.ServiceName,
			Product:    r.Product,
			Version:    r.Version,
			ExtraInfo:  r.ExtraInfo,
			Method:     r.Method,
			Confidence: r.Confidence,
		}
		if len(r.CPEs) > 0 {
			p.Service.CPEs = []string(r.CPEs)
		}
	}
	if err := r.Scripts.decode(&p.Scripts); err != nil {
		return p, fmt.Errorf("decode port scripts: %w", err)
	}
	return p, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
