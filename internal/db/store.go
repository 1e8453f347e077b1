package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/anstrom/scanvault/internal/errors"
	"github.com/anstrom/scanvault/internal/report"
	"github.com/anstrom/scanvault/internal/storage"
)

// Store keeps scan results in PostgreSQL.
type Store struct {
	db *DB
}

var _ storage.Store = (*Store)(nil)

// NewStore creates a store on an open connection.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// Sortable columns mapped to their SQL expressions.
var (
	scanOrderColumns = map[string]string{
		"scanner":         "scanner",
		"scanner_version": "scanner_version",
		"started":         "started",
		"completed":       "completed",
	}
	hostOrderColumns = map[string]string{
		"started":   "started",
		"completed": "completed",
		"state":     "state",
	}
)

const (
	insertScanQuery = `
		INSERT INTO scans (id, scanner, scanner_version, command_line, started, completed, host_count)
		VALUES (:id, :scanner, :scanner_version, :command_line, :started, :completed, :host_count)`

	insertHostQuery = `
		INSERT INTO hosts (
			id, scan_id, position, started, completed, state, state_reason,
			addresses, hostnames, scripts, os
		)
		VALUES (
			:id, :scan_id, :position, :started, :completed, :state, :state_reason,
			:addresses, :hostnames, :scripts, :os
		)`

	insertPortQuery = `
		INSERT INTO ports (
			host_id, position, number, transport, state, state_reason,
			service_name, product, version, extra_info, method, confidence, cpes, scripts
		)
		VALUES (
			:host_id, :position, :number, :transport, :state, :state_reason,
			:service_name, :product, :version, :extra_info, :method, :confidence, :cpes, :scripts
		)`

	scanColumns = `id, scanner, scanner_version, command_line, started, completed, host_count`
	hostColumns = `id, scan_id, position, started, completed, state, state_reason, addresses, hostnames`
	portColumns = `host_id, position, number, transport, state, state_reason,
		service_name, product, version, extra_info, method, confidence, cpes, scripts`
)

// InsertScan writes the scan, its hosts and their ports in one transaction.
func (s *Store) InsertScan(ctx context.Context, result report.ScanResult) (string, error) {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return "", sanitizeDBError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	scan := scanRow{
		ID:             uuid.New().String(),
		Scanner:        result.Scanner,
		ScannerVersion: result.ScannerVersion,
		CommandLine:    result.CommandLine,
		Started:        result.Started,
		Completed:      result.Completed,
		HostCount:      len(result.Hosts),
	}
	if _, err := tx.NamedExecContext(ctx, insertScanQuery, scan); err != nil {
		return "", sanitizeDBError("insert scan", err)
	}

	for i := range result.Hosts {
		host := &result.Hosts[i]
		row, err := newHostRow(uuid.New().String(), scan.ID, i, host)
		if err != nil {
			return "", errors.WrapDatabaseError(errors.CodeDatabaseQuery, "failed to encode host", err)
		}
		if _, err := tx.NamedExecContext(ctx, insertHostQuery, row); err != nil {
			return "", sanitizeDBError("insert host", err)
		}

		for j := range host.Ports {
			port, err := newPortRow(row.ID, j, &host.Ports[j])
			if err != nil {
				return "", errors.WrapDatabaseError(errors.CodeDatabaseQuery, "failed to encode port", err)
			}
			if _, err := tx.NamedExecContext(ctx, insertPortQuery, port); err != nil {
				return "", sanitizeDBError("insert port", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", sanitizeDBError("commit transaction", err)
	}
	return scan.ID, nil
}

// ListScans returns one page of scans.
func (s *Store) ListScans(ctx context.Context, page storage.PageRequest) (storage.PageResult[storage.ScanSummary], error) {
	var result storage.PageResult[storage.ScanSummary]
	page = page.Normalize()
	if err := page.Validate(storage.ScanSortColumns); err != nil {
		return result, err
	}

	if err := s.db.GetContext(ctx, &result.TotalCount, `SELECT COUNT(*) FROM scans`); err != nil {
		return result, sanitizeDBError("count scans", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM scans %s LIMIT $1 OFFSET $2`,
		scanColumns, orderBy(scanOrderColumns, page))
	var rows []scanRow
	if err := s.db.SelectContext(ctx, &rows, query, page.ItemsPerPage, page.Offset()); err != nil {
		return result, sanitizeDBError("list scans", err)
	}

	result.Items = make([]storage.ScanSummary, 0, len(rows))
	for i := range rows {
		result.Items = append(result.Items, rows[i].summary())
	}
	return result, nil
}

// GetScan returns a single scan.
func (s *Store) GetScan(ctx context.Context, id string) (*storage.ScanSummary, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.ErrNotFound("scan", id)
	}

	var row scanRow
	query := fmt.Sprintf(`SELECT %s FROM scans WHERE id = $1`, scanColumns)
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrNotFound("scan", id)
		}
		return nil, sanitizeDBError("get scan", err)
	}

	summary := row.summary()
	return &summary, nil
}

// ListHosts returns one page of hosts over all scans.
func (s *Store) ListHosts(ctx context.Context, page storage.PageRequest) (storage.PageResult[storage.HostSummary], error) {
	var result storage.PageResult[storage.HostSummary]
	page = page.Normalize()
	if err := page.Validate(storage.HostSortColumns); err != nil {
		return result, err
	}

	if err := s.db.GetContext(ctx, &result.TotalCount, `SELECT COUNT(*) FROM hosts`); err != nil {
		return result, sanitizeDBError("count hosts", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM hosts %s LIMIT $1 OFFSET $2`,
		hostColumns, orderBy(hostOrderColumns, page))
	var rows []hostRow
	if err := s.db.SelectContext(ctx, &rows, query, page.ItemsPerPage, page.Offset()); err != nil {
		return result, sanitizeDBError("list hosts", err)
	}

	result.Items = make([]storage.HostSummary, 0, len(rows))
	for i := range rows {
		summary, err := rows[i].summary()
		if err != nil {
			return result, errors.WrapDatabaseError(errors.CodeDatabaseQuery, "failed to decode host", err)
		}
		result.Items = append(result.Items, summary)
	}
	return result, nil
}

// GetHost returns a host with its ports, scripts and OS matches.
func (s *Store) GetHost(ctx context.Context, id string) (*storage.HostDetail, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.ErrNotFound("host", id)
	}

	var row hostRow
	query := fmt.Sprintf(`SELECT %s, scripts, os FROM hosts WHERE id = $1`, hostColumns)
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrNotFound("host", id)
		}
		return nil, sanitizeDBError("get host", err)
	}

	summary, err := row.summary()
	if err != nil {
		return nil, errors.WrapDatabaseError(errors.CodeDatabaseQuery, "failed to decode host", err)
	}
	detail := &storage.HostDetail{HostSummary: summary, Ports: []storage.PortDetail{}}
	if err := row.Scripts.decode(&detail.Scripts); err != nil {
		return nil, errors.WrapDatabaseError(errors.CodeDatabaseQuery, "failed to decode host scripts", err)
	}
	if err := row.OS.decode(&detail.OS); err != nil {
		return nil, errors.WrapDatabaseError(errors.CodeDatabaseQuery, "failed to decode os matches", err)
	}

	var ports []portRow
	portQuery := fmt.Sprintf(`SELECT %s FROM ports WHERE host_id = $1 ORDER BY position`, portColumns)
	if err := s.db.SelectContext(ctx, &ports, portQuery, id); err != nil {
		return nil, sanitizeDBError("get host ports", err)
	}
	for i := range ports {
		port, err := ports[i].port()
		if err != nil {
			return nil, errors.WrapDatabaseError(errors.CodeDatabaseQuery, "failed to decode port", err)
		}
		detail.Ports = append(detail.Ports, port)
	}
	return detail, nil
}

// Ping tests the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// orderBy renders an ORDER BY clause for a validated page request. Ties
// are broken by id so that pages do not overlap.
func orderBy(columns map[string]string, page storage.PageRequest) string {
	column, ok := columns[page.SortColumn]
	if !ok {
		column = columns[storage.DefaultSortColumn]
	}
	dir := "DESC"
	if page.SortAscending {
		dir = "ASC"
	}
	return fmt.Sprintf("ORDER BY %s %s NULLS LAST, id", column, dir)
}
