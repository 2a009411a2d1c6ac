// Package logsave implements the save-logs export of spec.md §6: a plain
// text document with a header block, a tab's visible-plus-scrollback
// terminal content with ANSI styling stripped, and a metrics summary
// table — written when the UI's save-logs key (Ctrl+S / F10) fires.
package logsave

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"gitlab.com/tinyland/lab/sysupdate/pkg/metrics"
)

// Header is the document's leading block: plugin name, export timestamp,
// current phase, and status (spec §6).
type Header struct {
	Plugin string
	Phase  string
	Status string
	Now    time.Time
}

// Write renders header, lines (the terminal's plain-text content, oldest
// first), and a metrics summary table built from rollups to w.
func Write(w io.Writer, header Header, lines []string, rollups []metrics.Rollup) error {
	fmt.Fprintf(w, "plugin:    %s\n", header.Plugin)
	fmt.Fprintf(w, "timestamp: %s\n", header.Now.UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "phase:     %s\n", header.Phase)
	fmt.Fprintf(w, "status:    %s\n", header.Status)
	fmt.Fprintln(w, "---")
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w, "---")
	return writeMetricsTable(w, rollups)
}

// writeMetricsTable renders one row per phase rollup, tab-aligned,
// including the outcome and cumulative resource-usage fields of spec.md
// §3 "Phase metrics" (bytes read/written, bytes sent/received, packages
// touched, exit status).
func writeMetricsTable(w io.Writer, rollups []metrics.Rollup) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "phase\tduration\tpeak_rss\tpeak_cpu%\tavg_cpu%\tsamples\tdisk_r\tdisk_w\tnet_sent\tnet_recv\tpkgs\texit\tresult\terror")
	for _, r := range rollups {
		result := "ok"
		if !r.Success {
			result = "fail"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f\t%.1f\t%d\t%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			r.Phase, r.Duration.Round(time.Millisecond), formatBytes(r.PeakRSS), r.PeakCPU, r.AvgCPU, r.SampleN,
			formatBytes(r.BytesRead), formatBytes(r.BytesWritten), formatBytes(r.BytesSent), formatBytes(r.BytesRecv),
			r.PackagesTouched, r.ExitCode, result, r.ErrorMessage)
	}
	return tw.Flush()
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%dB", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

// Save writes the rendered document to a timestamped file under dir,
// creating dir if necessary, and returns the path written.
func Save(dir string, header Header, lines []string, rollups []metrics.Rollup) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("logsave: create directory: %w", err)
	}
	name := fmt.Sprintf("%s-%s.log", header.Plugin, header.Now.UTC().Format("20060102T150405Z"))
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("logsave: create file: %w", err)
	}
	defer f.Close()

	if err := Write(f, header, lines, rollups); err != nil {
		return "", fmt.Errorf("logsave: write: %w", err)
	}
	return path, nil
}
