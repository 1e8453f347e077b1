package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	stderrors "errors"
	"net/netip"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/scanvault/internal/errors"
	"github.com/anstrom/scanvault/internal/report"
	"github.com/anstrom/scanvault/internal/storage"
)

const (
	testScanID = "6f1c2a52-93c4-4b71-9a3e-0e3c8b7f5d10"
	testHostID = "0a4e2f7c-5b1d-4c8e-a2f3-9d6b1e8c7a55"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewStore(Wrap(conn)), mock
}

func sampleResult() report.ScanResult {
	cmd := "nmap -sV 10.0.0.1"
	started := time.Date(2020, 4, 21, 14, 35, 12, 0, time.UTC)
	open := report.PortOpen
	product := "OpenSSH"
	conf := 10
	return report.ScanResult{
		Scanner:        "nmap",
		ScannerVersion: "7.80",
		CommandLine:    &cmd,
		Started:        &started,
		Hosts: []report.Host{{
			Started:     &started,
			State:       report.HostUp,
			StateReason: "syn-ack",
			Addresses:   []netip.Addr{netip.MustParseAddr("10.0.0.1")},
			Hostnames:   []report.Hostname{{Name: "gw.example", Type: "PTR"}},
			Ports: []report.Port{
				{
					Number: 22, Transport: report.TCP, State: &open, StateReason: "syn-ack",
					Service: &report.Service{Name: "ssh", Product: &product, Confidence: &conf, CPEs: []string{"cpe:/a:openbsd:openssh"}},
				},
				{Number: 53, Transport: report.UDP},
			},
		}},
	}
}

func TestStore_InsertScan(t *testing.T) {
	store, mock := newMockStore(t)
	result := sampleResult()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO scans")).
		WithArgs(sqlmock.AnyArg(), "nmap", "7.80", "nmap -sV 10.0.0.1", *result.Started, nil, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO hosts")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), 0, *result.Started, nil, "UP", "syn-ack",
			`{"10.0.0.1"}`, []byte(`[{"name":"gw.example","type":"PTR"}]`), nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ports")).
		WithArgs(sqlmock.AnyArg(), 0, 22, "TCP", "OPEN", "syn-ack",
			"ssh", "OpenSSH", nil, nil, nil, 10, `{"cpe:/a:openbsd:openssh"}`, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ports")).
		WithArgs(sqlmock.AnyArg(), 1, 53, "UDP", nil, "",
			nil, nil, nil, nil, nil, nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	id, err := store.InsertScan(context.Background(), result)
	require.NoError(t, err)
	assert.Len(t, id, 36)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_InsertScan_RollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO scans")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO hosts")).WillReturnError(&pq.Error{Code: "23514"})
	mock.ExpectRollback()

	_, err := store.InsertScan(context.Background(), sampleResult())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeValidation))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_InsertScan_EmptyScan(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO scans")).
		WithArgs(sqlmock.AnyArg(), "nmap", "", nil, nil, nil, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, err := store.InsertScan(context.Background(), report.ScanResult{Scanner: "nmap", Hosts: []report.Host{}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListScans(t *testing.T) {
	started := time.Date(2020, 4, 21, 14, 35, 12, 0, time.UTC)

	tests := []struct {
		name  string
		page  storage.PageRequest
		order string
		args  []driver.Value
	}{
		{
			name:  "defaults",
			page:  storage.PageRequest{},
			order: "ORDER BY started DESC NULLS LAST, id",
			args:  []driver.Value{storage.DefaultItemsPerPage, 0},
		},
		{
			name:  "second page by scanner ascending",
			page:  storage.PageRequest{PageNumber: 1, ItemsPerPage: 10, SortColumn: "scanner", SortAscending: true},
			order: "ORDER BY scanner ASC NULLS LAST, id",
			args:  []driver.Value{10, 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)

			mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM scans")).
				WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(11)))
			mock.ExpectQuery(regexp.QuoteMeta("FROM scans "+tt.order+" LIMIT $1 OFFSET $2")).
				WithArgs(tt.args...).
				WillReturnRows(sqlmock.NewRows([]string{"id", "scanner", "scanner_version", "command_line", "started", "completed", "host_count"}).
					AddRow(testScanID, "nmap", "7.80", "nmap -A x", started, nil, 27))

			page, err := store.ListScans(context.Background(), tt.page)
			require.NoError(t, err)
			assert.Equal(t, int64(11), page.TotalCount)
			require.Len(t, page.Items, 1)

			item := page.Items[0]
			assert.Equal(t, testScanID, item.ID)
			assert.Equal(t, "7.80", item.ScannerVersion)
			require.NotNil(t, item.CommandLine)
			assert.Equal(t, "nmap -A x", *item.CommandLine)
			require.NotNil(t, item.Started)
			assert.Equal(t, started, *item.Started)
			assert.Nil(t, item.Completed)
			assert.Equal(t, 27, item.HostCount)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStore_ListScans_InvalidPage(t *testing.T) {
	store, mock := newMockStore(t)

	_, err := store.ListScans(context.Background(), storage.PageRequest{ItemsPerPage: 1000})
	assert.True(t, errors.IsCode(err, errors.CodeValidation))

	_, err = store.ListScans(context.Background(), storage.PageRequest{SortColumn: "id; DROP TABLE scans"})
	assert.True(t, errors.IsCode(err, errors.CodeValidation))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetScan(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM scans WHERE id = $1")).
			WithArgs(testScanID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "scanner", "scanner_version", "command_line", "started", "completed", "host_count"}).
				AddRow(testScanID, "nmap", "7.80", nil, nil, nil, 0))

		scan, err := store.GetScan(context.Background(), testScanID)
		require.NoError(t, err)
		assert.Equal(t, "nmap", scan.Scanner)
		assert.Nil(t, scan.CommandLine)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM scans WHERE id = $1")).
			WithArgs(testScanID).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := store.GetScan(context.Background(), testScanID)
		assert.True(t, errors.IsCode(err, errors.CodeNotFound))
	})

	t.Run("malformed id", func(t *testing.T) {
		store, mock := newMockStore(t)
		_, err := store.GetScan(context.Background(), "5ea0a2b7e3f1")
		assert.True(t, errors.IsCode(err, errors.CodeNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_ListHosts(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM hosts")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery(regexp.QuoteMeta("FROM hosts ORDER BY state ASC NULLS LAST, id LIMIT $1 OFFSET $2")).
		WithArgs(5, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "scan_id", "position", "started", "completed", "state", "state_reason", "addresses", "hostnames"}).
			AddRow(testHostID, testScanID, 0, nil, nil, "DOWN", "no-response", "{10.0.0.1,fe80::1}", `[{"name":"a.example","type":"user"}]`))

	page, err := store.ListHosts(context.Background(), storage.PageRequest{ItemsPerPage: 5, SortColumn: "state", SortAscending: true})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	host := page.Items[0]
	assert.Equal(t, testHostID, host.ID)
	assert.Equal(t, testScanID, host.ScanID)
	assert.Equal(t, report.HostDown, host.State)
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("10.0.0.1"), netip.MustParseAddr("fe80::1")}, host.Addresses)
	assert.Equal(t, []report.Hostname{{Name: "a.example", Type: "user"}}, host.Hostnames)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetHost(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("scripts, os FROM hosts WHERE id = $1")).
		WithArgs(testHostID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "scan_id", "position", "started", "completed", "state", "state_reason", "addresses", "hostnames", "scripts", "os"}).
			AddRow(testHostID, testScanID, 0, nil, nil, "UP", "syn-ack", "{10.0.0.1}", `[]`,
				`{"clock-skew":{"output":"mean: -2s","mean":"-2"}}`, `[{"name":"Linux 2.6.32 - 3.10","accuracy":93}]`))
	mock.ExpectQuery(regexp.QuoteMeta("FROM ports WHERE host_id = $1 ORDER BY position")).
		WithArgs(testHostID).
		WillReturnRows(sqlmock.NewRows([]string{"host_id", "position", "number", "transport", "state", "state_reason",
			"service_name", "product", "version", "extra_info", "method", "confidence", "cpes", "scripts"}).
			AddRow(testHostID, 0, 22, "TCP", "OPEN", "syn-ack", "ssh", "Dropbear sshd", "2012.55", nil, "probed", 10,
				"{cpe:/a:matt_johnston:dropbear_ssh_server:2012.55}", nil).
			AddRow(testHostID, 1, 19, "TCP", "FILTERED", "host-unreach", nil, nil, nil, nil, nil, nil, nil, nil))

	host, err := store.GetHost(context.Background(), testHostID)
	require.NoError(t, err)

	assert.Equal(t, report.HostUp, host.State)
	assert.Empty(t, host.Hostnames)
	assert.Equal(t, "-2", host.Scripts["clock-skew"]["mean"])
	require.Len(t, host.OS, 1)
	assert.Equal(t, 93, host.OS[0].Accuracy)

	require.Len(t, host.Ports, 2)
	ssh := host.Ports[0]
	assert.Equal(t, uint16(22), ssh.Number)
	assert.Equal(t, report.TCP, ssh.Transport)
	require.NotNil(t, ssh.State)
	assert.Equal(t, report.PortOpen, *ssh.State)
	require.NotNil(t, ssh.Service)
	assert.Equal(t, "ssh", ssh.Service.Name)
	assert.Equal(t, "2012.55", *ssh.Service.Version)
	assert.Nil(t, ssh.Service.ExtraInfo)
	assert.Equal(t, 10, *ssh.Service.Confidence)
	assert.Equal(t, []string{"cpe:/a:matt_johnston:dropbear_ssh_server:2012.55"}, ssh.Service.CPEs)

	filtered := host.Ports[1]
	assert.Nil(t, filtered.Service)
	assert.Equal(t, report.PortFiltered, *filtered.State)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetHost_NotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM hosts WHERE id = $1")).
		WithArgs(testHostID).
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetHost(context.Background(), testHostID)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))

	var dbErr *errors.DatabaseError
	require.ErrorAs(t, err, &dbErr)
	assert.Equal(t, testHostID, dbErr.Context["id"])
}

func TestStore_PingAndClose(t *testing.T) {
	conn, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	store := NewStore(Wrap(conn))

	mock.ExpectPing()
	require.NoError(t, store.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(&pq.Error{Code: "08006"})
	err = store.Ping(context.Background())
	assert.True(t, errors.IsCode(err, errors.CodeDatabaseConnection))

	mock.ExpectClose()
	require.NoError(t, store.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSanitizeDBError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code errors.ErrorCode
	}{
		{"no rows", sql.ErrNoRows, errors.CodeNotFound},
		{"unique violation", &pq.Error{Code: "23505"}, errors.CodeConflict},
		{"foreign key", &pq.Error{Code: "23503"}, errors.CodeValidation},
		{"not null", &pq.Error{Code: "23502"}, errors.CodeValidation},
		{"check", &pq.Error{Code: "23514"}, errors.CodeValidation},
		{"canceled query", &pq.Error{Code: "57014"}, errors.CodeCanceled},
		{"admin shutdown", &pq.Error{Code: "57P01"}, errors.CodeDatabaseConnection},
		{"connection failure", &pq.Error{Code: "08006"}, errors.CodeDatabaseConnection},
		{"other postgres error", &pq.Error{Code: "42P01"}, errors.CodeDatabaseQuery},
		{"deadline", context.DeadlineExceeded, errors.CodeDatabaseTimeout},
		{"context canceled", context.Canceled, errors.CodeCanceled},
		{"plain error", stderrors.New("password=secret"), errors.CodeDatabaseQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sanitizeDBError("op", tt.err)
			assert.Equal(t, tt.code, errors.GetCode(err))
			assert.NotContains(t, err.Error(), "secret")
		})
	}

	assert.NoError(t, sanitizeDBError("op", nil))
}
