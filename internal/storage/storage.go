// Package storage defines the persistence contract for loaded scan results.
// Implementations live in internal/db (PostgreSQL) and internal/docstore
// (MongoDB).
package storage

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/anstrom/scanvault/internal/storage Store

import (
	"context"
	"fmt"
	"net/netip"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/anstrom/scanvault/internal/errors"
	"github.com/anstrom/scanvault/internal/report"
)

const (
	// DefaultItemsPerPage is used when a request leaves the page size unset.
	DefaultItemsPerPage = 50
	// MaxItemsPerPage bounds a single page.
	MaxItemsPerPage = 500
	// DefaultSortColumn orders listings by start time.
	DefaultSortColumn = "started"
)

// Sortable columns per listing.
var (
	ScanSortColumns = []string{"scanner", "scanner_version", "started", "completed"}
	HostSortColumns = []string{"started", "completed", "state"}
)

// Store persists scan results and serves them back in pages.
type Store interface {
	// InsertScan stores every host of the result, then the scan itself,
	// and returns the new scan id.
	InsertScan(ctx context.Context, result report.ScanResult) (string, error)
	ListScans(ctx context.Context, page PageRequest) (PageResult[ScanSummary], error)
	GetScan(ctx context.Context, id string) (*ScanSummary, error)
	ListHosts(ctx context.Context, page PageRequest) (PageResult[HostSummary], error)
	GetHost(ctx context.Context, id string) (*HostDetail, error)
	Ping(ctx context.Context) error
	Close() error
}

// PageRequest selects one page of a listing.
type PageRequest struct {
	PageNumber    int    `json:"page_number" validate:"gte=0"`
	ItemsPerPage  int    `json:"items_per_page" validate:"gte=1,lte=500"`
	SortColumn    string `json:"sort_column" validate:"omitempty,max=64"`
	SortAscending bool   `json:"sort_ascending"`
}

// PageResult is one page of items plus the size of the whole listing.
type PageResult[T any] struct {
	TotalCount int64 `json:"total_count"`
	Items      []T   `json:"items"`
}

// ScanSummary describes a stored scan.
type ScanSummary struct {
	ID             string     `json:"scan_id" db:"id"`
	Scanner        string     `json:"scanner" db:"scanner"`
	ScannerVersion string     `json:"scanner_version" db:"scanner_version"`
	CommandLine    *string    `json:"command_line" db:"command_line"`
	Started        *time.Time `json:"started" db:"started"`
	Completed      *time.Time `json:"completed" db:"completed"`
	HostCount      int        `json:"host_count" db:"host_count"`
}

// HostSummary describes a stored host without its ports.
type HostSummary struct {
	ID          string            `json:"host_id"`
	ScanID      string            `json:"scan_id"`
	Started     *time.Time        `json:"started"`
	Completed   *time.Time        `json:"completed"`
	State       report.HostState  `json:"state"`
	StateReason string            `json:"state_reason"`
	Addresses   []netip.Addr      `json:"addresses"`
	Hostnames   []report.Hostname `json:"hostnames"`
}

// PortDetail is a stored port.
type PortDetail = report.Port

// HostDetail is a stored host with everything recorded for it.
type HostDetail struct {
	HostSummary
	Ports   []PortDetail                 `json:"ports"`
	Scripts map[string]map[string]string `json:"scripts,omitempty"`
	OS      []report.OSMatch             `json:"os,omitempty"`
}

var validate = validator.New()

// Normalize fills in the page size and sort column when they are unset.
func (p PageRequest) Normalize() PageRequest {
	if p.ItemsPerPage == 0 {
		p.ItemsPerPage = DefaultItemsPerPage
	}
	if p.SortColumn == "" {
		p.SortColumn = DefaultSortColumn
	}
	return p
}

// Validate checks the bounds of the request and that its sort column is one
// of sortable.
func (p PageRequest) Validate(sortable []string) error {
	if err := validate.Struct(p); err != nil {
		return errors.NewReportValueError(errors.CodeValidation, "invalid page request", describe(err))
	}
	if p.SortColumn != "" && !slices.Contains(sortable, p.SortColumn) {
		return errors.NewReportValueError(errors.CodeValidation,
			fmt.Sprintf("cannot sort by column (allowed: %s)", strings.Join(sortable, ", ")), p.SortColumn)
	}
	return nil
}

// Offset is the number of items before the requested page.
func (p PageRequest) Offset() int {
	return p.PageNumber * p.ItemsPerPage
}

func describe(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s %s=%s", fe.Field(), fe.Tag(), fe.Param()))
	}
	return strings.Join(parts, "; ")
}
