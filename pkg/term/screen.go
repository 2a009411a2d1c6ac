// Package term implements the terminal emulator of spec §4.4: a fixed
// cols×rows screen buffer with cursor, ANSI/CSI/OSC/DCS escape-sequence
// handling, and a ring scrollback buffer. One Screen per plugin lives for
// the whole run and is shown by that plugin's UI tab, outliving any
// individual PTY session (spec §3 ownership rules).
package term

import (
	"log/slog"
)

// DefaultMaxScrollback is the default ring-buffer capacity in lines.
const DefaultMaxScrollback = 10000

// Style describes the visual attributes of one cell.
type Style struct {
	FG        string // empty = default foreground
	BG        string // empty = default background
	Bold      bool
	Underline bool
	Inverse   bool
}

// Cell is one grid position: a code point plus the style it was written
// with.
type Cell struct {
	Ch    rune
	Style Style
}

// blankCell is the zero-value cell used to clear regions.
var blankCell = Cell{Ch: ' '}

// Cursor is the screen's write position.
type Cursor struct {
	Row, Col int
	Visible  bool
	Style    Style
}

// Screen is a fixed-viewport terminal emulator with scrollback. It is not
// safe for concurrent use by multiple writers; spec §5 assigns it a
// single-writer (the owning executor) / single-reader (the UI render
// task) handoff.
type Screen struct {
	cols, rows int
	grid       [][]Cell

	cursor      Cursor
	curStyle    Style
	wrapPending bool

	scrollback    [][]Cell
	maxScrollback int

	parser parserState
	logger *slog.Logger
}

// NewScreen creates a Screen of the given viewport size. maxScrollback
// <= 0 uses DefaultMaxScrollback.
func NewScreen(cols, rows, maxScrollback int, logger *slog.Logger) *Screen {
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	if maxScrollback <= 0 {
		maxScrollback = DefaultMaxScrollback
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Screen{
		cols:          cols,
		rows:          rows,
		maxScrollback: maxScrollback,
		logger:        logger.With("component", "term"),
	}
	s.grid = newGrid(cols, rows)
	s.cursor = Cursor{Visible: true}
	return s
}

func newGrid(cols, rows int) [][]Cell {
	grid := make([][]Cell, rows)
	for r := range grid {
		row := make([]Cell, cols)
		for c := range row {
			row[c] = blankCell
		}
		grid[r] = row
	}
	return grid
}

// Cols and Rows report the current viewport size.
func (s *Screen) Cols() int { return s.cols }
func (s *Screen) Rows() int { return s.rows }

// CursorPosition returns the current cursor row/col, clamped within the
// viewport by construction.
func (s *Screen) CursorPosition() (row, col int) { return s.cursor.Row, s.cursor.Col }

// ScrollbackLen returns the number of lines currently retained in
// scrollback.
func (s *Screen) ScrollbackLen() int { return len(s.scrollback) }

// clampCursor enforces the invariant that the cursor is always within
// viewport bounds (spec §4.4 invariants).
func (s *Screen) clampCursor() {
	if s.cursor.Row < 0 {
		s.cursor.Row = 0
	}
	if s.cursor.Row >= s.rows {
		s.cursor.Row = s.rows - 1
	}
	if s.cursor.Col < 0 {
		s.cursor.Col = 0
	}
	if s.cursor.Col >= s.cols {
		s.cursor.Col = s.cols - 1
	}
}

// scrollUp shifts the grid up by one line, appending the evicted top line
// to scrollback (trimmed to maxScrollback), and clears the new bottom
// row.
func (s *Screen) scrollUp() {
	evicted := s.grid[0]
	s.scrollback = append(s.scrollback, evicted)
	if len(s.scrollback) > s.maxScrollback {
		s.scrollback = s.scrollback[len(s.scrollback)-s.maxScrollback:]
	}
	copy(s.grid, s.grid[1:])
	blank := make([]Cell, s.cols)
	for c := range blank {
		blank[c] = blankCell
	}
	s.grid[s.rows-1] = blank
}

// lineFeed moves the cursor down one row, scrolling if already on the
// last row.
func (s *Screen) lineFeed() {
	if s.cursor.Row == s.rows-1 {
		s.scrollUp()
	} else {
		s.cursor.Row++
	}
}

// carriageReturn moves the cursor to column 0.
func (s *Screen) carriageReturn() {
	s.cursor.Col = 0
	s.wrapPending = false
}

// writeRune places r at the cursor, honoring the pending xterm-style wrap
// flag, and advances the cursor.
func (s *Screen) writeRune(r rune) {
	if s.wrapPending {
		s.wrapPending = false
		s.carriageReturnNoClearWrap()
		s.lineFeed()
	}
	s.grid[s.cursor.Row][s.cursor.Col] = Cell{Ch: r, Style: s.curStyle}
	if s.cursor.Col == s.cols-1 {
		s.wrapPending = true
	} else {
		s.cursor.Col++
	}
}

func (s *Screen) carriageReturnNoClearWrap() {
	s.cursor.Col = 0
}

// eraseDisplay implements CSI 2J: clears the viewport but never touches
// scrollback, per spec §4.4.
func (s *Screen) eraseDisplay() {
	s.grid = newGrid(s.cols, s.rows)
	s.cursor.Row, s.cursor.Col = 0, 0
	s.wrapPending = false
}

// eraseLine clears the cursor's current row from the cursor to the end.
func (s *Screen) eraseLineToEnd() {
	row := s.grid[s.cursor.Row]
	for c := s.cursor.Col; c < s.cols; c++ {
		row[c] = blankCell
	}
}

// eraseLineFull clears the cursor's entire current row.
func (s *Screen) eraseLineFull() {
	row := s.grid[s.cursor.Row]
	for c := range row {
		row[c] = blankCell
	}
}

// VisibleLines returns rows of styled cells for the given scroll offset.
// At offset 0 it is the live viewport (spec §4.4 view contract); for
// offset k > 0, the top min(k, scrollback_len) rows come from
// scrollback, oldest-available first, shifting the live viewport down.
func (s *Screen) VisibleLines(offset int) [][]Cell {
	if offset <= 0 {
		out := make([][]Cell, s.rows)
		for i, row := range s.grid {
			out[i] = append([]Cell(nil), row...)
		}
		return out
	}
	if offset > len(s.scrollback) {
		offset = len(s.scrollback)
	}
	out := make([][]Cell, 0, s.rows)
	start := len(s.scrollback) - offset
	for i := start; i < len(s.scrollback) && len(out) < s.rows; i++ {
		out = append(out, append([]Cell(nil), s.scrollback[i]...))
	}
	for i := 0; len(out) < s.rows; i++ {
		out = append(out, append([]Cell(nil), s.grid[i]...))
	}
	return out
}

// PlainText returns every retained line — full scrollback followed by the
// current viewport — as plain strings with styling stripped and trailing
// blanks trimmed, for the save-logs format of spec §6 ("the terminal's
// visible + scrollback content with ANSI styling stripped").
func (s *Screen) PlainText() []string {
	out := make([]string, 0, len(s.scrollback)+s.rows)
	for _, row := range s.scrollback {
		out = append(out, plainLine(row))
	}
	for _, row := range s.grid {
		out = append(out, plainLine(row))
	}
	return out
}

func plainLine(row []Cell) string {
	runes := make([]rune, len(row))
	for i, c := range row {
		ch := c.Ch
		if ch == 0 {
			ch = ' '
		}
		runes[i] = ch
	}
	end := len(runes)
	for end > 0 && runes[end-1] == ' ' {
		end--
	}
	return string(runes[:end])
}

// Resize changes the viewport to new dimensions, keeping the overlapping
// top-left region of the grid and the cursor's column position where
// possible (spec §4.4). Rows are cropped or padded with blanks; lines are
// not re-wrapped to the new width, and scrollback is left unchanged.
func (s *Screen) Resize(cols, rows int) {
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	newGridBuf := newGrid(cols, rows)
	for r := 0; r < rows && r < s.rows; r++ {
		for c := 0; c < cols && c < s.cols; c++ {
			newGridBuf[r][c] = s.grid[r][c]
		}
	}
	s.grid = newGridBuf
	s.cols, s.rows = cols, rows
	if s.cursor.Col >= cols {
		s.cursor.Col = cols - 1
	}
	if s.cursor.Row >= rows {
		s.cursor.Row = rows - 1
	}
	s.wrapPending = false
	s.clampCursor()
}
