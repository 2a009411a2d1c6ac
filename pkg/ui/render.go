package ui

import (
	"fmt"
	"strings"
	"time"

	"gitlab.com/tinyland/lab/sysupdate/pkg/components"
	"gitlab.com/tinyland/lab/sysupdate/pkg/term"
)

const (
	colorAccent  = "#7C3AED"
	colorDim     = "#6B7280"
	colorGreen   = "#22C55E"
	colorAmber   = "#F59E0B"
	colorRed     = "#EF4444"
)

// statusColor returns the border/label color for a tab's status (spec
// §4.10: Completed green, Running amber, Error red, Pending grey, Locked
// dim).
func statusColor(s Status) string {
	switch s {
	case StatusCompleted:
		return colorGreen
	case StatusRunning:
		return colorAmber
	case StatusError:
		return colorRed
	case StatusLocked:
		return colorDim
	default:
		return colorDim
	}
}

// renderCellGrid converts a term.Screen's visible cell grid at the given
// scroll offset into a single ANSI string, applying each cell's style.
func renderCellGrid(s *term.Screen, offset int) string {
	lines := s.VisibleLines(offset)
	out := make([]string, len(lines))
	for i, row := range lines {
		out[i] = renderCellRow(row)
	}
	return strings.Join(out, "\n")
}

func renderCellRow(row []term.Cell) string {
	var b strings.Builder
	var cur term.Style
	open := false
	for _, cell := range row {
		if cell.Style != cur || !open {
			if open {
				b.WriteString(components.Reset())
			}
			writeStyle(&b, cell.Style)
			cur = cell.Style
			open = true
		}
		b.WriteRune(cell.Ch)
	}
	if open {
		b.WriteString(components.Reset())
	}
	return b.String()
}

func writeStyle(b *strings.Builder, st term.Style) {
	if st.FG != "" {
		b.WriteString(components.Color(st.FG))
	}
	if st.BG != "" {
		b.WriteString(components.BgColor(st.BG))
	}
	if st.Bold {
		b.WriteString("\x1b[1m")
	}
	if st.Underline {
		b.WriteString("\x1b[4m")
	}
	if st.Inverse {
		b.WriteString("\x1b[7m")
	}
}

// RenderTab renders a single tab's terminal content inside a bordered box
// titled with the plugin name, colored by status.
func RenderTab(t *Tab, focused bool, width, height int) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	innerW, innerH := width-2, height-2
	if innerW < 1 {
		innerW = 1
	}
	if innerH < 1 {
		innerH = 1
	}

	content := renderCellGrid(t.Screen, t.ScrollOffset)

	border := components.BorderRounded
	fg := statusColor(t.Status)
	if focused {
		fg = colorAccent
	}

	style := components.BoxStyle{
		Border:     border,
		Title:      fmt.Sprintf("%s [%s]", t.PluginName, t.Status),
		TitleAlign: components.AlignLeft,
		FG:         fg,
	}
	return components.RenderBox(content, width, height, style)
}

// RenderTabBar renders the one-line row of tab headers across the top of
// the UI, highlighting the focused tab.
func RenderTabBar(tabs []*Tab, focused int, width int) string {
	if width <= 0 {
		return ""
	}
	var parts []string
	for i, t := range tabs {
		label := fmt.Sprintf(" %d:%s ", i+1, t.PluginName)
		if i == focused {
			label = components.Bold(label)
		}
		parts = append(parts, label)
	}
	return components.Truncate(strings.Join(parts, "|"), width)
}

// statusBarGauge is the shared gauge style for the byte/item progress cell
// of the status bar: compact, percent-only, amber/red at the usual
// near-done thresholds (which for a progress gauge read as "almost done",
// not "in trouble" -- there's no danger semantic here, just a consistent
// look with the aggregate and per-phase gauges elsewhere).
func statusBarGauge() *components.Gauge {
	return components.NewGauge(components.GaugeStyle{
		Width:             10,
		ShowPercent:       true,
		FilledColor:       colorGreen,
		EmptyColor:        colorDim,
		WarningThreshold:  0.7,
		CriticalThreshold: 0.95,
		WarningColor:      colorAmber,
		CriticalColor:     colorGreen,
	})
}

// RenderStatusBar renders the per-tab status line as a single borderless
// DataTable row: phase, ETA, a CPU sparkline, memory, cumulative network
// and disk I/O, and a byte/item progress gauge (spec §4.10, §4.18).
func RenderStatusBar(t *Tab, width int) string {
	if width <= 0 || t == nil {
		return ""
	}

	dt := components.NewDataTable(components.DataTableConfig{
		Columns: []components.Column{
			{Title: "Plugin", Sizing: components.SizingPercent(14)},
			{Title: "Phase", Sizing: components.SizingPercent(10)},
			{Title: "ETA", Sizing: components.SizingPercent(8)},
			{Title: "CPU", Sizing: components.SizingPercent(16)},
			{Title: "Mem", Sizing: components.SizingPercent(10)},
			{Title: "Net", Sizing: components.SizingPercent(16)},
			{Title: "Disk", Sizing: components.SizingPercent(16)},
			{Title: "Progress", Sizing: components.SizingFill()},
		},
	})
	dt.SetShowHeader(false)
	dt.SetShowBorder(false)

	spark := components.NewSparkline(components.SparklineStyle{Width: 10, Color: colorAccent})
	cpuCell := fmt.Sprintf("%s %.0f%%", spark.Render(t.CPUHistory, 10), t.CPUPercent)

	progress := renderStatusProgress(t)

	row := components.Row{Cells: []string{
		t.PluginName,
		t.Phase.String(),
		formatETA(t.ETA),
		cpuCell,
		formatBytesMB(t.PeakRSS),
		fmt.Sprintf("↑%s ↓%s", formatBytes(t.NetSentBytes), formatBytes(t.NetRecvBytes)),
		fmt.Sprintf("r%s w%s", formatBytes(t.DiskReadBytes), formatBytes(t.DiskWriteBytes)),
		progress,
	}}
	dt.SetRows([]components.Row{row})

	line := dt.Render(width, 1)
	if t.Status == StatusError && t.ErrorText != "" {
		line = components.Truncate(line+"  error="+t.ErrorText, width)
	}
	return components.Dim(line)
}

// renderStatusProgress picks the most informative progress gauge for a
// tab's current phase: bytes when known (download phase), else items.
func renderStatusProgress(t *Tab) string {
	g := statusBarGauge()
	switch {
	case t.BytesTotal > 0:
		return g.Render(float64(t.BytesDone), float64(t.BytesTotal), 10) +
			fmt.Sprintf(" %s/%s", formatBytes(uint64(t.BytesDone)), formatBytes(uint64(t.BytesTotal)))
	case t.ItemsTotal > 0:
		return g.Render(float64(t.ItemsCompleted), float64(t.ItemsTotal), 10) +
			fmt.Sprintf(" %d/%d", t.ItemsCompleted, t.ItemsTotal)
	default:
		return g.Render(0, 0, 10)
	}
}

// RenderAggregateBar renders the bottom progress bar aggregating completed
// vs total tabs as a braille time-series graph of completion fraction over
// time (spec §4.10 "a bottom progress bar aggregates across plugins",
// §4.18 "a time-series graph for the bottom aggregate progress bar").
func RenderAggregateBar(tabs []*Tab, history []float64, width int) string {
	if width <= 0 || len(tabs) == 0 {
		return ""
	}
	if len(history) < 2 {
		done := 0
		for _, t := range tabs {
			if t.Status == StatusCompleted || t.Status == StatusError {
				done++
			}
		}
		g := components.NewGauge(components.GaugeStyle{
			Width:       width - 8,
			ShowPercent: true,
			FilledColor: colorGreen,
			EmptyColor:  colorDim,
			Label:       "Overall",
			LabelWidth:  8,
		})
		return g.Render(float64(done), float64(len(tabs)), width-8)
	}

	tg := components.NewTimeGraph(components.TimeGraphConfig{
		Width:      width,
		Height:     3,
		ShowYAxis:  false,
		ShowXAxis:  false,
		ShowLegend: false,
		MinY:       floatPtr(0),
		MaxY:       floatPtr(1),
		TimeWindow: time.Duration(len(history)) * aggSampleInterval,
	})
	idx := tg.AddSeries("overall", colorAccent)
	now := time.Now()
	start := now.Add(-time.Duration(len(history)) * aggSampleInterval)
	points := make([]components.DataPoint, len(history))
	for i, v := range history {
		points[i] = components.DataPoint{Time: start.Add(time.Duration(i) * aggSampleInterval), Value: v}
	}
	tg.SetData(idx, points)
	return tg.Render(width, 3)
}

func floatPtr(f float64) *float64 { return &f }

// formatBytes renders a byte count compactly (B/KB/MB/GB).
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
	return fmt.Sprintf("%.1f%cB", float64(b)/float64(div), "KMGT"[exp])
}

// formatBytesMB renders a byte count in whole megabytes, matching the
// status bar's existing memory display convention.
func formatBytesMB(b uint64) string {
	return fmt.Sprintf("%dMB", b/(1024*1024))
}

// formatETA renders a duration as a compact "3m12s" style string, or "--"
// when no estimate is available yet.
func formatETA(d time.Duration) string {
	if d <= 0 {
		return "--"
	}
	d = d.Round(time.Second)
	m := d / time.Minute
	s := (d % time.Minute) / time.Second
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// RenderHelpOverlay renders the reserved key-binding help overlay (spec
// §4.10 "show-help overlay").
func RenderHelpOverlay(width, height int) string {
	lines := []string{
		"Keys:",
		"  tab / shift+tab   switch tabs",
		"  alt+1..9          jump to tab",
		"  p                 pause/resume",
		"  r                 retry current phase (if errored)",
		"  ctrl+s            save logs",
		"  pgup / pgdown     scroll",
		"  ctrl+c            quit",
		"  f1                close this help",
	}
	content := strings.Join(lines, "\n")
	return components.RenderBox(content, width, height, components.BoxStyle{
		Border: components.BorderDouble,
		Title:  "Help",
		FG:     colorAccent,
	})
}
