// Package services holds the application layer that ties report parsing,
// the worker pool, storage and the raw report archive together.
package services

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/anstrom/scanvault/internal/errors"
	"github.com/anstrom/scanvault/internal/logging"
	"github.com/anstrom/scanvault/internal/metrics"
	"github.com/anstrom/scanvault/internal/report"
	"github.com/anstrom/scanvault/internal/storage"
	"github.com/anstrom/scanvault/internal/workers"
)

// Sources label where a report came from in logs and metrics.
const (
	SourceAPI   = "api"
	SourceRPC   = "rpc"
	SourceSpool = "spool"
	SourceCLI   = "cli"
)

const parseJobType = "parse"

// Archiver keeps the raw bytes of stored reports.
type Archiver interface {
	Put(ctx context.Context, scanID string, document []byte) (string, error)
}

// Config bounds the work done for one report.
type Config struct {
	MaxDocumentBytes int64         `yaml:"max_document_bytes" json:"max_document_bytes"`
	ParseTimeout     time.Duration `yaml:"parse_timeout" json:"parse_timeout"`
	ChunkSize        int           `yaml:"chunk_size" json:"chunk_size"`
}

// DefaultConfig returns the default ingest limits.
func DefaultConfig() Config {
	return Config{
		MaxDocumentBytes: 64 << 20,
		ParseTimeout:     time.Minute,
		ChunkSize:        report.DefaultChunkSize,
	}
}

// Outcome describes a stored report.
type Outcome struct {
	ScanID     string `json:"scan_id"`
	Hosts      int    `json:"hosts"`
	Ports      int    `json:"ports"`
	ArchiveKey string `json:"archive_key,omitempty"`
}

// IngestService parses reports on the worker pool and stores the result.
type IngestService struct {
	store   storage.Store
	pool    *workers.Pool
	archive Archiver
	config  Config
	metrics *metrics.PrometheusMetrics
}

// NewIngestService creates an ingest service. archive may be nil.
func NewIngestService(store storage.Store, pool *workers.Pool, archive Archiver, cfg Config) *IngestService {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = report.DefaultChunkSize
	}
	return &IngestService{
		store:   store,
		pool:    pool,
		archive: archive,
		config:  cfg,
		metrics: metrics.GetGlobalMetrics(),
	}
}

// Parse checks the size of document and runs parse and load as a pool job,
// waiting at most ParseTimeout for it.
func (s *IngestService) Parse(ctx context.Context, document []byte) (report.ScanResult, error) {
	if err := s.checkSize(int64(len(document))); err != nil {
		return report.ScanResult{}, err
	}

	if s.config.ParseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ParseTimeout)
		defer cancel()
	}

	var result report.ScanResult
	job := workers.NewFuncJob(uuid.NewString(), parseJobType, func(context.Context) error {
		var err error
		result, err = report.ParseAndLoadChunked(bytes.NewReader(document), s.config.ChunkSize)
		return err
	})

	if _, err := s.pool.Do(ctx, job); err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return report.ScanResult{}, errors.WrapServiceError(errors.CodeTimeout, "ingest", "parsing timed out", err)
		}
		if stderrors.Is(err, context.Canceled) {
			return report.ScanResult{}, errors.WrapServiceError(errors.CodeCanceled, "ingest", "parsing canceled", err)
		}
		return report.ScanResult{}, err
	}
	return result, nil
}

// Ingest parses document, stores the result and archives the raw bytes.
// An archive failure is logged and does not fail the ingest.
func (s *IngestService) Ingest(ctx context.Context, source string, document []byte) (*Outcome, error) {
	start := time.Now()
	outcome, err := s.ingest(ctx, source, document)
	s.record(source, len(document), start, err)
	return outcome, err
}

func (s *IngestService) record(source string, size int, start time.Time, err error) {
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
		s.metrics.IncrementIngestErrors(source, string(errors.GetCode(err)))
		logging.ErrorIngest("Report rejected", source, err, "bytes", size)
	}
	s.metrics.RecordDocument(source, status, size, time.Since(start))
}

func (s *IngestService) ingest(ctx context.Context, source string, document []byte) (*Outcome, error) {
	result, err := s.Parse(ctx, document)
	if err != nil {
		return nil, err
	}

	scanID, err := s.store.InsertScan(ctx, result)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{ScanID: scanID, Hosts: len(result.Hosts), Ports: result.PortCount()}
	s.recordContents(&result)

	if s.archive != nil {
		key, err := s.archive.Put(ctx, scanID, document)
		if err != nil {
			logging.Warn("Failed to archive report", "scan_id", scanID, "source", source, "error", err)
		} else {
			outcome.ArchiveKey = key
		}
	}

	logging.InfoIngest("Report stored", source,
		"scan_id", scanID,
		"hosts", outcome.Hosts,
		"ports", outcome.Ports)
	return outcome, nil
}

// IngestReader reads a report from r, refusing to buffer more than
// MaxDocumentBytes, and ingests it.
func (s *IngestService) IngestReader(ctx context.Context, source string, r io.Reader) (*Outcome, error) {
	start := time.Now()
	document, err := s.readLimited(r)
	if err != nil {
		s.record(source, len(document), start, err)
		return nil, err
	}
	return s.Ingest(ctx, source, document)
}

func (s *IngestService) readLimited(r io.Reader) ([]byte, error) {
	if s.config.MaxDocumentBytes <= 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read report: %w", err)
		}
		return data, nil
	}

	data, err := io.ReadAll(io.LimitReader(r, s.config.MaxDocumentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	if err := s.checkSize(int64(len(data))); err != nil {
		return data, err
	}
	return data, nil
}

func (s *IngestService) checkSize(n int64) error {
	if s.config.MaxDocumentBytes > 0 && n > s.config.MaxDocumentBytes {
		return errors.NewReportValueError(errors.CodeDocumentTooLarge,
			fmt.Sprintf("document exceeds %d bytes", s.config.MaxDocumentBytes), fmt.Sprint(n))
	}
	return nil
}

func (s *IngestService) recordContents(result *report.ScanResult) {
	hosts := map[string]int{}
	ports := map[string]int{}
	for i := range result.Hosts {
		host := &result.Hosts[i]
		hosts[host.State.String()]++
		for j := range host.Ports {
			state := "UNKNOWN"
			if host.Ports[j].State != nil {
				state = host.Ports[j].State.String()
			}
			ports[state]++
		}
	}
	for state, n := range hosts {
		s.metrics.AddHosts(state, n)
	}
	for state, n := range ports {
		s.metrics.AddPorts(state, n)
	}
}
