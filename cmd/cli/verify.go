package cli

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/anstrom/scanvault/internal/nmaptree"
	"github.com/anstrom/scanvault/internal/report"
)

// verifyCmd cross-checks the streaming loader against the tree loader.
var verifyCmd = &cobra.Command{
	Use:   "verify FILE",
	Short: "Cross-check a report with both loaders",
	Long: `Load a report with the streaming parser and with a whole-document
decoder and report whether both produce the same scan result.`,
	Example: `  scanvault verify scan.xml`,
	Args:    cobra.ExactArgs(1),
	RunE:    runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0]) // #nosec G304 -- file is named by the operator
	if err != nil {
		return err
	}
	return verifyReport(cmd.OutOrStdout(), data)
}

// verifyReport loads data twice and fails when the results differ.
func verifyReport(w io.Writer, data []byte) error {
	streamed, streamErr := report.ParseAndLoad(data)
	tree, treeErr := nmaptree.Load(data)

	table := tablewriter.NewWriter(w)
	table.Header("Loader", "Hosts", "Ports", "Error")
	_ = table.Append(verifyRow("streaming", streamed, streamErr))
	_ = table.Append(verifyRow("tree", tree, treeErr))
	_ = table.Render()

	switch {
	case streamErr != nil && treeErr != nil:
		return fmt.Errorf("both loaders rejected the report: %w", streamErr)
	case streamErr != nil:
		return fmt.Errorf("streaming loader rejected the report: %w", streamErr)
	case treeErr != nil:
		return fmt.Errorf("tree loader rejected the report: %w", treeErr)
	}

	if !reflect.DeepEqual(streamed, tree) {
		return fmt.Errorf("loaders disagree%s", firstDifference(streamed, tree))
	}
	fmt.Fprintln(w, "Results agree.")
	return nil
}

func verifyRow(name string, result report.ScanResult, err error) []string {
	if err != nil {
		return []string{name, "-", "-", err.Error()}
	}
	return []string{name, strconv.Itoa(len(result.Hosts)), strconv.Itoa(result.PortCount()), "-"}
}

// firstDifference names the first host that differs, if any.
func firstDifference(a, b report.ScanResult) string {
	if len(a.Hosts) != len(b.Hosts) {
		return fmt.Sprintf(": %d hosts vs %d", len(a.Hosts), len(b.Hosts))
	}
	for i := range a.Hosts {
		if !reflect.DeepEqual(a.Hosts[i], b.Hosts[i]) {
			return fmt.Sprintf(" at host %d (%s)", i, joinAddresses(a.Hosts[i].Addresses))
		}
	}
	return " in the scan header"
}
