package ui

import (
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"gitlab.com/tinyland/lab/sysupdate/pkg/config"
	"gitlab.com/tinyland/lab/sysupdate/pkg/event"
	"gitlab.com/tinyland/lab/sysupdate/pkg/metrics"
	"gitlab.com/tinyland/lab/sysupdate/pkg/plugin"
	"gitlab.com/tinyland/lab/sysupdate/pkg/term"
)

// tickInterval drives the periodic redraw, mirroring the teacher's
// TickCmd-based refresh cycle (pkg/app/tick.go) rather than re-rendering
// on every PTY byte.
const tickInterval = 100 * time.Millisecond

// aggHistoryLen bounds the aggregate-completion history fed to the
// bottom time-series bar (spec §4.18 "a time-series graph for the bottom
// aggregate progress bar").
const aggHistoryLen = 120

// aggSampleInterval is the cadence at which the aggregate completion
// fraction is sampled into aggHistory, decoupled from tickInterval so the
// time-series graph doesn't fill with redundant points.
const aggSampleInterval = 1 * time.Second

// KeystrokeWriter forwards a raw byte sequence to the focused tab's PTY
// stdin, implemented by the executor's active session for that plugin.
type KeystrokeWriter interface {
	WritePTY(pluginName string, data []byte) error
}

// LogSaver persists a tab's plain-text terminal content alongside its
// metrics summary (spec §6's save-logs format), returning the path
// written. Implemented by the orchestrator, which owns the metrics store
// a tab's rollup table is drawn from.
type LogSaver interface {
	SaveLogs(pluginName, phase, status string, lines []string) (path string, err error)
}

// tickMsg drives periodic redraws.
type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// EventMsg wraps an event.Event for delivery into the bubbletea Update
// loop, letting the executor's event queue drive the UI via tea.Send
// instead of a polling goroutine inside Model.
type EventMsg struct {
	Event event.Event
}

// Model is the root Elm-architecture application (spec §4.10): a tab per
// applicable plugin, a focus cursor, scroll state per tab, and the
// process-wide input router (spec §4.11).
type Model struct {
	tabs      []*Tab
	focused   int
	router    *Router
	writer    KeystrokeWriter
	logSaver  LogSaver
	width     int
	height    int
	showHelp  bool
	paused    bool
	statusMsg string

	aggHistory  []float64
	lastAggTick time.Time
}

// SetLogSaver attaches the save-logs destination; until called,
// CommandSaveLogs reports that no destination is configured.
func (m *Model) SetLogSaver(s LogSaver) { m.logSaver = s }

// New creates a Model for the given ordered set of plugin names. screens
// supplies the long-lived *term.Screen each tab renders from; a plugin
// name absent from screens (or a nil map) gets a fresh one. The caller —
// normally the orchestrator — owns these screens and feeds them directly
// from the PTY byte stream (spec §3), so a tab given a screen here views
// the same screen its plugin's phases write to.
func New(pluginNames []string, bindings config.KeyBindingConfig, writer KeystrokeWriter, screens map[string]*term.Screen) *Model {
	tabs := make([]*Tab, len(pluginNames))
	for i, name := range pluginNames {
		tabs[i] = NewTab(name, 80, 24)
		if s, ok := screens[name]; ok && s != nil {
			tabs[i].Screen = s
		}
	}
	return &Model{
		tabs:   tabs,
		router: NewRouter(bindings),
		writer: writer,
	}
}

// Tabs returns the model's tabs in declaration order.
func (m *Model) Tabs() []*Tab { return m.tabs }

// Focused returns the currently focused tab, or nil if there are none.
func (m *Model) Focused() *Tab {
	if len(m.tabs) == 0 {
		return nil
	}
	return m.tabs[m.focused]
}

// Init starts the redraw tick.
func (m *Model) Init() tea.Cmd {
	return tickCmd()
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tickMsg:
		m.sampleAggregate(time.Time(msg))
		return m, tickCmd()

	case EventMsg:
		m.applyEvent(msg.Event)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	cmd, idx := m.router.Classify(msg)

	switch cmd {
	case CommandTabNext:
		m.cycleFocus(1)
	case CommandTabPrev:
		m.cycleFocus(-1)
	case CommandTabIndex:
		if idx >= 0 && idx < len(m.tabs) {
			m.focused = idx
		}
	case CommandQuit:
		return m, tea.Quit
	case CommandHelp:
		m.showHelp = !m.showHelp
	case CommandPause:
		m.paused = !m.paused
	case CommandRetry:
		m.retryFocused()
	case CommandSaveLogs:
		m.saveLogs()
	case CommandScrollUp:
		if t := m.Focused(); t != nil {
			t.ScrollUp(1)
		}
	case CommandScrollDown:
		if t := m.Focused(); t != nil {
			t.ScrollDown(1)
		}
	case CommandScrollTop:
		if t := m.Focused(); t != nil {
			t.ScrollTop()
		}
	case CommandScrollBottom:
		if t := m.Focused(); t != nil {
			t.ScrollBottom()
		}
	case CommandForward:
		m.forwardKey(msg)
	}
	return m, nil
}

// cycleFocus moves focus by delta tabs, wrapping around (spec §4.10
// "switching focus never pauses any running plugin").
func (m *Model) cycleFocus(delta int) {
	if len(m.tabs) == 0 {
		return
	}
	m.focused = ((m.focused+delta)%len(m.tabs) + len(m.tabs)) % len(m.tabs)
}

// retryFocused is only legal if the focused tab is in Error status (spec
// §4.10).
func (m *Model) retryFocused() {
	t := m.Focused()
	if t == nil || t.Status != StatusError {
		return
	}
	t.Status = StatusPending
	t.ErrorText = ""
}

// saveLogs exports the focused tab's terminal content and metrics summary
// via the configured LogSaver (spec §6).
func (m *Model) saveLogs() {
	t := m.Focused()
	if t == nil {
		return
	}
	if m.logSaver == nil {
		m.statusMsg = "save-logs: no destination configured"
		return
	}
	path, err := m.logSaver.SaveLogs(t.PluginName, t.Phase.String(), t.Status.String(), t.Screen.PlainText())
	if err != nil {
		m.statusMsg = "save-logs failed: " + err.Error()
		return
	}
	m.statusMsg = "logs saved to " + path
}

// forwardKey sends the raw key bytes to the focused tab's PTY, leaving
// every non-focused tab untouched (spec §4.11, §8 "only the PTY of the
// focused tab receives the bytes").
func (m *Model) forwardKey(msg tea.KeyMsg) {
	t := m.Focused()
	if t == nil || m.writer == nil {
		return
	}
	_ = m.writer.WritePTY(t.PluginName, []byte(msg.String()))
}

// applyEvent updates tab state from an executor-produced event (spec
// §4.1's event kinds).
func (m *Model) applyEvent(e event.Event) {
	var tab *Tab
	for _, t := range m.tabs {
		if t.PluginName == e.Plugin {
			tab = t
			break
		}
	}
	if tab == nil {
		return
	}

	switch e.Kind {
	case event.KindPhaseStart:
		tab.Status = StatusRunning
		tab.Phase = pluginPhase(e.Phase)
		tab.PhaseStarted = e.Time
		tab.ItemsCompleted, tab.ItemsTotal = 0, 0
		tab.BytesDone, tab.BytesTotal = 0, 0
		tab.ETA = 0
		tab.CPUHistory = nil
	case event.KindPhaseEnd:
		tab.Phase = pluginPhase(e.Phase)
		tab.ETA = 0
		if e.Success {
			tab.Status = StatusCompleted
		} else {
			tab.Status = StatusError
			tab.ErrorText = e.Error
		}
	case event.KindProgress:
		if e.HasItems {
			tab.ItemsCompleted = int(e.ItemsDone)
			tab.ItemsTotal = int(e.ItemsTotal)
		}
		if e.HasBytes {
			tab.BytesDone = e.BytesDone
			tab.BytesTotal = e.BytesTotal
		}
		tab.ETA = tab.estimateETA(e.Time)
	case event.KindMetrics:
		tab.ApplyMetrics(metricsSampleFromEvent(e))
	case event.KindOutput:
		// No-op: tab.Screen is the same *term.Screen the executor feeds
		// directly from the raw PTY byte stream (spec §3 screen ownership).
		// This event carries a re-split copy of the same bytes for
		// consumers like save-logs and error/success pattern matching —
		// feeding it into the screen a second time would duplicate output.
	}
}

// metricsSampleFromEvent converts a KindMetrics event back into a
// metrics.Sample for Tab.ApplyMetrics, so Model stays the single place
// that translates wire events into domain types.
func metricsSampleFromEvent(e event.Event) metrics.Sample {
	return metrics.Sample{
		Time:           e.Time,
		CPUPct:         e.CPUPercent,
		RSSBytes:       e.RSSBytes,
		CPUTimeSeconds: e.CPUTimeSeconds,
		BytesRead:      e.DiskReadBytes,
		BytesWritten:   e.DiskWriteBytes,
		BytesSent:      e.NetSentBytes,
		BytesRecv:      e.NetRecvBytes,
	}
}

// sampleAggregate appends the current across-tab average completion
// fraction to aggHistory at most once per aggSampleInterval, feeding the
// bottom time-series aggregate bar (spec §4.18).
func (m *Model) sampleAggregate(now time.Time) {
	if !m.lastAggTick.IsZero() && now.Sub(m.lastAggTick) < aggSampleInterval {
		return
	}
	m.lastAggTick = now
	m.aggHistory = append(m.aggHistory, m.aggregateFraction())
	if n := len(m.aggHistory); n > aggHistoryLen {
		m.aggHistory = m.aggHistory[n-aggHistoryLen:]
	}
}

// aggregateFraction reports the mean completion fraction across tabs:
// completed tabs count as 1, error tabs as their last known fraction,
// pending tabs as 0, running tabs by their byte/item progress.
func (m *Model) aggregateFraction() float64 {
	if len(m.tabs) == 0 {
		return 0
	}
	var sum float64
	for _, t := range m.tabs {
		switch t.Status {
		case StatusCompleted:
			sum += 1
		case StatusPending, StatusLocked:
			sum += 0
		default:
			sum += t.completionFraction()
		}
	}
	return sum / float64(len(m.tabs))
}

// AggregateHistory returns the sampled aggregate-completion history, for
// RenderAggregateBar's time-series graph.
func (m *Model) AggregateHistory() []float64 { return m.aggHistory }

// pluginPhase maps an event.Phase to the corresponding plugin.Phase, the
// type a Tab tracks its current phase as.
func pluginPhase(p event.Phase) plugin.Phase {
	switch p {
	case event.PhaseDownload:
		return plugin.Download
	case event.PhaseExecute:
		return plugin.Execute
	default:
		return plugin.Check
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	if len(m.tabs) == 0 || m.width == 0 || m.height == 0 {
		return ""
	}

	if m.showHelp {
		return RenderHelpOverlay(m.width, m.height)
	}

	tabBar := RenderTabBar(m.tabs, m.focused, m.width)

	focused := m.Focused()
	contentHeight := m.height - 4 // tab bar + status bar + aggregate bar + margin
	if contentHeight < 1 {
		contentHeight = 1
	}
	pane := RenderTab(focused, true, m.width, contentHeight)
	status := RenderStatusBar(focused, m.width)
	if m.statusMsg != "" {
		status = m.statusMsg + "  " + status
	}
	aggregate := RenderAggregateBar(m.tabs, m.aggHistory, m.width)

	return strings.Join([]string{tabBar, pane, status, aggregate}, "\n")
}
