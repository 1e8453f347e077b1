package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/anstrom/scanvault/internal/report"
	"github.com/anstrom/scanvault/internal/services"
)

const stdinName = "-"

var importDryRun bool

// importCmd stores reports given on the command line.
var importCmd = &cobra.Command{
	Use:   "import FILE...",
	Short: "Import nmap XML reports",
	Long: `Parse nmap XML reports and store them in the configured backend.
Use - to read a report from standard input. With --dry-run the reports
are only parsed and nothing is stored.`,
	Example: `  scanvault import scan.xml
  scanvault import --dry-run reports/*.xml
  nmap -oX - 10.0.0.0/24 | scanvault import -`,
	Args: cobra.MinimumNArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Parse reports without storing them")
}

// importFunc handles one report.
type importFunc func(ctx context.Context, r io.Reader) (*services.Outcome, error)

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if importDryRun {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		return importFiles(ctx, cmd, args, parseOnly(cfg.Ingest.ChunkSize))
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	p, err := newPipeline(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := p.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close store: %v\n", closeErr)
		}
	}()

	return importFiles(ctx, cmd, args, func(ctx context.Context, r io.Reader) (*services.Outcome, error) {
		return p.ingest.IngestReader(ctx, services.SourceCLI, r)
	})
}

// parseOnly loads reports without storing them.
func parseOnly(chunkSize int) importFunc {
	return func(_ context.Context, r io.Reader) (*services.Outcome, error) {
		result, err := report.ParseAndLoadChunked(r, chunkSize)
		if err != nil {
			return nil, err
		}
		return &services.Outcome{Hosts: len(result.Hosts), Ports: result.PortCount()}, nil
	}
}

// importFiles runs fn for every file and prints one table row per file.
// Every file is attempted; the error reports how many failed.
func importFiles(ctx context.Context, cmd *cobra.Command, files []string, fn importFunc) error {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("File", "Scan ID", "Hosts", "Ports", "Status")

	failed := 0
	for _, name := range files {
		outcome, err := importFile(ctx, cmd.InOrStdin(), name, fn)
		if err != nil {
			failed++
			_ = table.Append([]string{name, "-", "-", "-", "failed: " + err.Error()})
			continue
		}

		scanID := outcome.ScanID
		if scanID == "" {
			scanID = "-"
		}
		_ = table.Append([]string{
			name, scanID,
			strconv.Itoa(outcome.Hosts), strconv.Itoa(outcome.Ports),
			"ok",
		})
	}
	_ = table.Render()

	if failed > 0 {
		return fmt.Errorf("%d of %d reports failed", failed, len(files))
	}
	return nil
}

func importFile(ctx context.Context, stdin io.Reader, name string, fn importFunc) (*services.Outcome, error) {
	if name == stdinName {
		return fn(ctx, stdin)
	}

	f, err := os.Open(name) // #nosec G304 -- files are named by the operator
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return fn(ctx, f)
}
