package storage

import (
	"context"
	"time"

	"github.com/anstrom/scanvault/internal/metrics"
	"github.com/anstrom/scanvault/internal/report"
)

// Instrumented wraps a Store and records the duration and outcome of every
// call under the given backend label.
type Instrumented struct {
	next    Store
	backend string
	metrics *metrics.PrometheusMetrics
}

var _ Store = (*Instrumented)(nil)

// WithMetrics returns store wrapped with storage metrics.
func WithMetrics(store Store, backend string, m *metrics.PrometheusMetrics) *Instrumented {
	return &Instrumented{next: store, backend: backend, metrics: m}
}

func (s *Instrumented) observe(operation string, start time.Time, err error) {
	s.metrics.RecordStorageOperation(s.backend, operation, time.Since(start), err)
}

// InsertScan implements Store.
func (s *Instrumented) InsertScan(ctx context.Context, result report.ScanResult) (string, error) {
	start := time.Now()
	id, err := s.next.InsertScan(ctx, result)
	s.observe("insert_scan", start, err)
	return id, err
}

// ListScans implements Store.
func (s *Instrumented) ListScans(ctx context.Context, page PageRequest) (PageResult[ScanSummary], error) {
	start := time.Now()
	res, err := s.next.ListScans(ctx, page)
	s.observe("list_scans", start, err)
	return res, err
}

// GetScan implements Store.
func (s *Instrumented) GetScan(ctx context.Context, id string) (*ScanSummary, error) {
	start := time.Now()
	res, err := s.next.GetScan(ctx, id)
	s.observe("get_scan", start, err)
	return res, err
}

// ListHosts implements Store.
func (s *Instrumented) ListHosts(ctx context.Context, page PageRequest) (PageResult[HostSummary], error) {
	start := time.Now()
	res, err := s.next.ListHosts(ctx, page)
	s.observe("list_hosts", start, err)
	return res, err
}

// GetHost implements Store.
func (s *Instrumented) GetHost(ctx context.Context, id string) (*HostDetail, error) {
	start := time.Now()
	res, err := s.next.GetHost(ctx, id)
	s.observe("get_host", start, err)
	return res, err
}

// Ping implements Store.
func (s *Instrumented) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.next.Ping(ctx)
	s.observe("ping", start, err)
	return err
}

// Close implements Store.
func (s *Instrumented) Close() error {
	return s.next.Close()
}
