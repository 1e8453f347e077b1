package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/anstrom/scanvault/internal/storage"
)

// Listing flags shared by scans and hosts.
var (
	listPage      int
	listPerPage   int
	listSort      string
	listAscending bool
	outputFormat  string
)

// scansCmd lists and shows stored scans.
var scansCmd = &cobra.Command{
	Use:   "scans",
	Short: "Browse stored scans",
	Long:  "List stored scans page by page or show a single scan.",
	Example: `  scanvault scans
  scanvault scans list --page 2 --per-page 20 --sort completed
  scanvault scans show 5f0c2a4e-0d5c-4bb4-9f53-0c3f2e0a6c11`,
	RunE: runScansList,
}

var scansListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored scans",
	Args:  cobra.NoArgs,
	RunE:  runScansList,
}

var scansShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show a stored scan",
	Args:  cobra.ExactArgs(1),
	RunE:  runScansShow,
}

// hostsCmd lists and shows stored hosts.
var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "Browse stored hosts",
	Long:  "List stored hosts page by page or show a host with its ports.",
	Example: `  scanvault hosts
  scanvault hosts list --sort state --asc
  scanvault hosts show 64b7f0c1e13a2b9d8c7f6e5d --output json`,
	RunE: runHostsList,
}

var hostsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored hosts",
	Args:  cobra.NoArgs,
	RunE:  runHostsList,
}

var hostsShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show a stored host and its ports",
	Args:  cobra.ExactArgs(1),
	RunE:  runHostsShow,
}

func init() {
	rootCmd.AddCommand(scansCmd)
	rootCmd.AddCommand(hostsCmd)
	scansCmd.AddCommand(scansListCmd, scansShowCmd)
	hostsCmd.AddCommand(hostsListCmd, hostsShowCmd)

	for _, cmd := range []*cobra.Command{scansCmd, hostsCmd} {
		addListFlags(cmd.PersistentFlags())
	}
}

func addListFlags(flags *pflag.FlagSet) {
	flags.IntVar(&listPage, "page", 0, "Page number, starting at 0")
	flags.IntVar(&listPerPage, "per-page", storage.DefaultItemsPerPage, "Items per page")
	flags.StringVar(&listSort, "sort", storage.DefaultSortColumn, "Column to sort by")
	flags.BoolVar(&listAscending, "asc", false, "Sort ascending")
	flags.StringVarP(&outputFormat, "output", "o", outputTable, "Output format (table, json)")
}

// listPageRequest builds the page request from the listing flags.
func listPageRequest() storage.PageRequest {
	return storage.PageRequest{
		PageNumber:    listPage,
		ItemsPerPage:  listPerPage,
		SortColumn:    listSort,
		SortAscending: listAscending,
	}.Normalize()
}

func checkOutputFormat() error {
	switch outputFormat {
	case outputTable, outputJSON:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (use %s or %s)", outputFormat, outputTable, outputJSON)
	}
}

func runScansList(cmd *cobra.Command, _ []string) error {
	if err := checkOutputFormat(); err != nil {
		return err
	}
	page := listPageRequest()
	return withStore(cmd.Context(), func(ctx context.Context, store storage.Store) error {
		result, err := store.ListScans(ctx, page)
		if err != nil {
			return err
		}
		if outputFormat == outputJSON {
			return writeJSON(cmd.OutOrStdout(), result)
		}
		renderScans(cmd.OutOrStdout(), page, result)
		return nil
	})
}

func runScansShow(cmd *cobra.Command, args []string) error {
	if err := checkOutputFormat(); err != nil {
		return err
	}
	return withStore(cmd.Context(), func(ctx context.Context, store storage.Store) error {
		scan, err := store.GetScan(ctx, args[0])
		if err != nil {
			return err
		}
		if outputFormat == outputJSON {
			return writeJSON(cmd.OutOrStdout(), scan)
		}
		renderScan(cmd.OutOrStdout(), scan)
		return nil
	})
}

func runHostsList(cmd *cobra.Command, _ []string) error {
	if err := checkOutputFormat(); err != nil {
		return err
	}
	page := listPageRequest()
	return withStore(cmd.Context(), func(ctx context.Context, store storage.Store) error {
		result, err := store.ListHosts(ctx, page)
		if err != nil {
			return err
		}
		if outputFormat == outputJSON {
			return writeJSON(cmd.OutOrStdout(), result)
		}
		renderHosts(cmd.OutOrStdout(), page, result)
		return nil
	})
}

func runHostsShow(cmd *cobra.Command, args []string) error {
	if err := checkOutputFormat(); err != nil {
		return err
	}
	return withStore(cmd.Context(), func(ctx context.Context, store storage.Store) error {
		host, err := store.GetHost(ctx, args[0])
		if err != nil {
			return err
		}
		if outputFormat == outputJSON {
			return writeJSON(cmd.OutOrStdout(), host)
		}
		renderHost(cmd.OutOrStdout(), host)
		return nil
	})
}
