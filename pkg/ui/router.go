package ui

import (
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"gitlab.com/tinyland/lab/sysupdate/pkg/config"
)

// Command is a reserved UI action the router dispatches instead of
// forwarding to the focused tab's PTY (spec §4.11).
type Command int

const (
	CommandNone Command = iota
	CommandTabNext
	CommandTabPrev
	CommandTabIndex // go to tab N; see Router.Classify's second return value
	CommandQuit
	CommandHelp
	CommandPause
	CommandRetry
	CommandSaveLogs
	CommandScrollUp
	CommandScrollDown
	CommandScrollTop
	CommandScrollBottom
	CommandForward // not a reserved command: forward raw bytes to the PTY
)

// Router is the single, process-wide keystroke classifier of spec §4.11.
// It consults the configured key-binding table; anything that does not
// match a reserved binding is forwarded verbatim to the focused PTY.
type Router struct {
	bindings config.KeyBindingConfig
}

// NewRouter creates a Router using the given key-binding configuration.
func NewRouter(bindings config.KeyBindingConfig) *Router {
	return &Router{bindings: bindings}
}

// Classify maps a bubbletea key message to a reserved Command, or
// CommandForward if the key should be written to the focused tab's PTY.
// index is only meaningful when the returned command is CommandTabIndex
// (Alt+1..Alt+9, spec §6's reserved chord table).
func (r *Router) Classify(msg tea.KeyMsg) (cmd Command, index int) {
	chord := chordString(msg)

	switch chord {
	case r.bindings.TabNext, "ctrl+tab":
		return CommandTabNext, 0
	case r.bindings.TabPrev, "ctrl+shift+tab":
		return CommandTabPrev, 0
	case r.bindings.Quit:
		return CommandQuit, 0
	case r.bindings.Help:
		return CommandHelp, 0
	case r.bindings.Pause:
		return CommandPause, 0
	case r.bindings.Retry:
		return CommandRetry, 0
	case r.bindings.SaveLogs:
		return CommandSaveLogs, 0
	case r.bindings.ScrollUp:
		return CommandScrollUp, 0
	case r.bindings.ScrollDn:
		return CommandScrollDown, 0
	}

	if n, ok := altDigit(chord); ok {
		return CommandTabIndex, n
	}

	return CommandForward, 0
}

// chordString converts a bubbletea KeyMsg into the same chord-string
// vocabulary used by config.KeyBindingConfig ("tab", "shift+tab",
// "ctrl+c", "f1", "pgup", ...).
func chordString(msg tea.KeyMsg) string {
	return msg.String()
}

// altDigit reports whether chord is an Alt+<1-9> tab-select binding
// (spec §6's reserved key table), returning the 0-based tab index.
func altDigit(chord string) (int, bool) {
	const prefix = "alt+"
	if !strings.HasPrefix(chord, prefix) {
		return 0, false
	}
	rest := strings.TrimPrefix(chord, prefix)
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 || n > 9 {
		return 0, false
	}
	return n - 1, true
}
