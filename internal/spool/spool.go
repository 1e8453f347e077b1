// Package spool periodically imports nmap reports dropped into a directory.
// Every imported file is moved to done/, every rejected one to failed/ next
// to a .err file holding the reason. A file whose import fails for a
// transient reason stays where it is for the next run.
package spool

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/anstrom/scanvault/internal/errors"
	"github.com/anstrom/scanvault/internal/logging"
	"github.com/anstrom/scanvault/internal/services"
)

const (
	doneDir   = "done"
	failedDir = "failed"
)

// Config controls the spool importer.
type Config struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Directory string `yaml:"directory" json:"directory"`
	Schedule  string `yaml:"schedule" json:"schedule"`
	// MinAge skips files modified more recently, so reports still being
	// written by a running scan are picked up on a later run.
	MinAge time.Duration `yaml:"min_age" json:"min_age"`
}

// DefaultConfig returns a disabled spool polling every minute.
func DefaultConfig() Config {
	return Config{
		Directory: "spool",
		Schedule:  "@every 1m",
		MinAge:    10 * time.Second,
	}
}

// Ingester stores one report.
type Ingester interface {
	IngestReader(ctx context.Context, source string, r io.Reader) (*services.Outcome, error)
}

// Summary counts the files handled by one run.
type Summary struct {
	Imported int
	Failed   int
	Skipped  int
}

// Spool imports reports on a cron schedule.
type Spool struct {
	config   Config
	ingester Ingester
	cron     *cron.Cron
	ctx      context.Context
	cancel   context.CancelFunc

	mu      sync.Mutex
	running bool
	now     func() time.Time
}

// New validates cfg and creates the directories the spool uses.
func New(cfg Config, ingester Ingester) (*Spool, error) {
	if cfg.Directory == "" {
		return nil, errors.ErrConfigMissing("spool.directory")
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, errors.NewConfigFieldError(errors.CodeValidation,
			fmt.Sprintf("invalid cron schedule: %v", err), "spool.schedule", cfg.Schedule)
	}
	for _, dir := range []string{cfg.Directory, filepath.Join(cfg.Directory, doneDir), filepath.Join(cfg.Directory, failedDir)} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, errors.WrapConfigError(errors.CodeFilePermission, "cannot create spool directory", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	logger := cronLogger{}
	return &Spool{
		config:   cfg,
		ingester: ingester,
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
	}, nil
}

// Start schedules periodic runs.
func (s *Spool) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("spool is already running")
	}
	if _, err := s.cron.AddFunc(s.config.Schedule, func() {
		if _, err := s.RunOnce(s.ctx); err != nil {
			logging.ErrorIngest("Spool run failed", services.SourceSpool, err)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule spool: %w", err)
	}

	s.cron.Start()
	s.running = true
	logging.InfoIngest("Spool started", services.SourceSpool,
		"directory", s.config.Directory,
		"schedule", s.config.Schedule)
	return nil
}

// Stop cancels the current run and waits for it to return.
func (s *Spool) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.cancel()
	<-s.cron.Stop().Done()
	s.running = false
	logging.InfoIngest("Spool stopped", services.SourceSpool)
}

// RunOnce imports every settled *.xml file currently in the directory.
func (s *Spool) RunOnce(ctx context.Context) (Summary, error) {
	var summary Summary

	files, err := s.pending()
	if err != nil {
		return summary, err
	}

	for _, name := range files {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		path := filepath.Join(s.config.Directory, name)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if s.now().Sub(info.ModTime()) < s.config.MinAge {
			summary.Skipped++
			continue
		}

		if err := s.importFile(ctx, name); err != nil {
			if transient(ctx, err) {
				return summary, fmt.Errorf("import %s deferred: %w", name, err)
			}
			summary.Failed++
			if moveErr := s.reject(name, err); moveErr != nil {
				return summary, moveErr
			}
			continue
		}
		summary.Imported++
	}

	if summary.Imported+summary.Failed > 0 {
		logging.InfoIngest("Spool run finished", services.SourceSpool,
			"imported", summary.Imported,
			"failed", summary.Failed,
			"skipped", summary.Skipped)
	}
	return summary, nil
}

// transient reports whether a failed import may succeed on a later run:
// the spool is stopping, or storage or the worker pool is briefly unavailable.
func transient(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.IsRetryable(err) {
		return true
	}
	switch errors.GetCode(err) {
	case errors.CodeCanceled, errors.CodeServiceUnavailable:
		return true
	default:
		return false
	}
}

func (s *Spool) pending() ([]string, error) {
	entries, err := os.ReadDir(s.config.Directory)
	if err != nil {
		return nil, errors.WrapConfigError(errors.CodeFileNotFound, "cannot read spool directory", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && strings.EqualFold(filepath.Ext(entry.Name()), ".xml") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *Spool) importFile(ctx context.Context, name string) error {
	path := filepath.Join(s.config.Directory, name)
	f, err := os.Open(path) // #nosec G304 -- name comes from the spool directory listing
	if err != nil {
		return fmt.Errorf("open report: %w", err)
	}

	outcome, err := s.ingester.IngestReader(ctx, services.SourceSpool, f)
	_ = f.Close()
	if err != nil {
		return err
	}

	logging.Default().WithScanID(outcome.ScanID).Info("Spooled report imported", "file", name)
	return s.move(name, doneDir)
}

func (s *Spool) reject(name string, cause error) error {
	if err := s.move(name, failedDir); err != nil {
		return err
	}
	errPath := filepath.Join(s.config.Directory, failedDir, name+".err")
	if err := os.WriteFile(errPath, []byte(cause.Error()+"\n"), 0o600); err != nil {
		return fmt.Errorf("write error file: %w", err)
	}
	return nil
}

// move renames name into sub, replacing an older file of the same name.
func (s *Spool) move(name, sub string) error {
	src := filepath.Join(s.config.Directory, name)
	dst := filepath.Join(s.config.Directory, sub, name)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("move %s to %s: %w", name, sub, err)
	}
	return nil
}

// cronLogger routes cron's own messages to the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logging.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logging.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
