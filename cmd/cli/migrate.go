package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/anstrom/scanvault/internal/config"
	"github.com/anstrom/scanvault/internal/db"
)

var (
	migrateStatus bool
	migrateReset  bool
	migrateForce  bool
)

// migrateCmd manages the PostgreSQL schema.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply PostgreSQL schema migrations",
	Long: `Apply pending schema migrations to the PostgreSQL backend.
--status lists migrations without applying them. --reset drops every
table and reapplies all migrations; it requires --force.`,
	Example: `  scanvault migrate
  scanvault migrate --status
  scanvault migrate --reset --force`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().BoolVar(&migrateStatus, "status", false, "Show migration status")
	migrateCmd.Flags().BoolVar(&migrateReset, "reset", false, "Drop all tables and reapply migrations")
	migrateCmd.Flags().BoolVar(&migrateForce, "force", false, "Confirm --reset")
	migrateCmd.MarkFlagsMutuallyExclusive("status", "reset")
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	if migrateReset && !migrateForce {
		return fmt.Errorf("--reset destroys all stored scans; add --force to confirm")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Storage.Backend != config.BackendPostgres {
		return fmt.Errorf("migrations apply to the %s backend only, configured backend is %s",
			config.BackendPostgres, cfg.Storage.Backend)
	}

	ctx := cmd.Context()
	database, err := db.Connect(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("error connecting to database: %w", err)
	}
	defer func() { _ = database.Close() }()

	return migrate(ctx, cmd.OutOrStdout(), db.NewMigrator(database.DB))
}

func migrate(ctx context.Context, w io.Writer, m *db.Migrator) error {
	if migrateStatus {
		statuses, err := m.Status(ctx)
		if err != nil {
			return err
		}
		renderMigrations(w, statuses)
		return nil
	}

	run := m.Up
	if migrateReset {
		run = m.Reset
	}
	applied, err := run(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Fprintln(w, "Schema is up to date.")
		return nil
	}
	for _, name := range applied {
		fmt.Fprintf(w, "Applied %s\n", name)
	}
	return nil
}

func renderMigrations(w io.Writer, statuses []db.MigrationStatus) {
	table := tablewriter.NewWriter(w)
	table.Header("Migration", "Applied", "Applied At", "Modified")
	for _, s := range statuses {
		appliedAt := "-"
		if s.Applied {
			appliedAt = formatTime(&s.AppliedAt)
		}
		_ = table.Append([]string{s.Name, yesNo(s.Applied), appliedAt, yesNo(s.Modified)})
	}
	_ = table.Render()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
