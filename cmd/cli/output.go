package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/anstrom/scanvault/internal/report"
	"github.com/anstrom/scanvault/internal/storage"
)

// Output formats.
const (
	outputTable = "table"
	outputJSON  = "json"
)

const timeLayout = "2006-01-02 15:04:05"

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(timeLayout)
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func joinAddresses(addrs []netip.Addr) string {
	if len(addrs) == 0 {
		return "-"
	}
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = a.String()
	}
	return strings.Join(parts, ", ")
}

func joinHostnames(names []report.Hostname) string {
	if len(names) == 0 {
		return "-"
	}
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = n.Name
	}
	return strings.Join(parts, ", ")
}

// describeService renders "name product version".
func describeService(s *report.Service) string {
	if s == nil {
		return "-"
	}
	parts := []string{s.Name}
	if s.Product != nil {
		parts = append(parts, *s.Product)
	}
	if s.Version != nil {
		parts = append(parts, *s.Version)
	}
	return strings.Join(parts, " ")
}

func portState(s *report.PortState) string {
	if s == nil {
		return "-"
	}
	return s.String()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// pageFooter summarizes the position of a page in the listing.
func pageFooter(w io.Writer, page storage.PageRequest, shown int, total int64) {
	if shown == 0 {
		fmt.Fprintf(w, "Showing 0 of %d (page %d)\n", total, page.PageNumber)
		return
	}
	fmt.Fprintf(w, "Showing %d-%d of %d (page %d)\n", page.Offset()+1, page.Offset()+shown, total, page.PageNumber)
}

func renderScans(w io.Writer, page storage.PageRequest, result storage.PageResult[storage.ScanSummary]) {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Scanner", "Version", "Started", "Completed", "Hosts")
	for _, scan := range result.Items {
		_ = table.Append([]string{
			scan.ID, scan.Scanner, scan.ScannerVersion,
			formatTime(scan.Started), formatTime(scan.Completed),
			strconv.Itoa(scan.HostCount),
		})
	}
	_ = table.Render()
	pageFooter(w, page, len(result.Items), result.TotalCount)
}

func renderScan(w io.Writer, scan *storage.ScanSummary) {
	table := tablewriter.NewWriter(w)
	table.Header("Field", "Value")
	_ = table.Append([]string{"ID", scan.ID})
	_ = table.Append([]string{"Scanner", scan.Scanner})
	_ = table.Append([]string{"Version", scan.ScannerVersion})
	_ = table.Append([]string{"Command", orDash(scan.CommandLine)})
	_ = table.Append([]string{"Started", formatTime(scan.Started)})
	_ = table.Append([]string{"Completed", formatTime(scan.Completed)})
	_ = table.Append([]string{"Hosts", strconv.Itoa(scan.HostCount)})
	_ = table.Render()
}

func renderHosts(w io.Writer, page storage.PageRequest, result storage.PageResult[storage.HostSummary]) {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Scan", "State", "Addresses", "Hostnames", "Started")
	for _, host := range result.Items {
		_ = table.Append([]string{
			host.ID, host.ScanID, host.State.String(),
			joinAddresses(host.Addresses), joinHostnames(host.Hostnames),
			formatTime(host.Started),
		})
	}
	_ = table.Render()
	pageFooter(w, page, len(result.Items), result.TotalCount)
}

func renderHost(w io.Writer, host *storage.HostDetail) {
	fmt.Fprintf(w, "Host %s (scan %s)\n", host.ID, host.ScanID)
	fmt.Fprintf(w, "  State:     %s (%s)\n", host.State, host.StateReason)
	fmt.Fprintf(w, "  Addresses: %s\n", joinAddresses(host.Addresses))
	fmt.Fprintf(w, "  Hostnames: %s\n", joinHostnames(host.Hostnames))
	fmt.Fprintf(w, "  Started:   %s\n", formatTime(host.Started))
	fmt.Fprintf(w, "  Completed: %s\n", formatTime(host.Completed))
	for _, match := range host.OS {
		fmt.Fprintf(w, "  OS:        %s (%d%%)\n", match.Name, match.Accuracy)
	}

	if len(host.Ports) == 0 {
		fmt.Fprintln(w, "No ports recorded.")
		return
	}

	table := tablewriter.NewWriter(w)
	table.Header("Port", "Proto", "State", "Reason", "Service")
	for _, port := range host.Ports {
		_ = table.Append([]string{
			strconv.Itoa(int(port.Number)), port.Transport.String(),
			portState(port.State), port.StateReason,
			describeService(port.Service),
		})
	}
	_ = table.Render()
}
