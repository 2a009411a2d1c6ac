package term

import "strconv"

// dispatchCSI interprets one complete CSI sequence (raw parameter bytes
// plus final byte) and applies it to the screen. Any sequence this
// function does not recognize is discarded after a warning and never
// mutates the grid, per spec §4.4.
func (s *Screen) dispatchCSI(final byte, raw []byte) {
	params := parseCSIParams(raw)

	switch final {
	case 'A': // Cursor up
		s.cursor.Row -= paramOr(params, 0, 1)
		s.clampCursor()
	case 'B': // Cursor down
		s.cursor.Row += paramOr(params, 0, 1)
		s.clampCursor()
	case 'C': // Cursor forward
		s.cursor.Col += paramOr(params, 0, 1)
		s.clampCursor()
	case 'D': // Cursor back
		s.cursor.Col -= paramOr(params, 0, 1)
		s.clampCursor()
	case 'G': // Cursor horizontal absolute (1-based)
		s.cursor.Col = paramOr(params, 0, 1) - 1
		s.clampCursor()
	case 'd': // Line position absolute (1-based)
		s.cursor.Row = paramOr(params, 0, 1) - 1
		s.clampCursor()
	case 'H', 'f': // Cursor position (1-based row;col)
		s.cursor.Row = paramOr(params, 0, 1) - 1
		s.cursor.Col = paramOr(params, 1, 1) - 1
		s.clampCursor()
		s.wrapPending = false
	case 'J': // Erase in display
		switch paramOr(params, 0, 0) {
		case 2, 3:
			s.eraseDisplay()
		default:
			s.eraseFromCursorToEnd()
		}
	case 'K': // Erase in line
		switch paramOr(params, 0, 0) {
		case 1:
			s.eraseLineFromStart()
		case 2:
			s.eraseLineFull()
		default:
			s.eraseLineToEnd()
		}
	case 'm': // SGR: select graphic rendition
		s.applySGR(params)
	case 's': // Save cursor position (no-op: we don't track a saved position)
	case 'u': // Restore cursor position (no-op: we don't track a saved position)
	default:
		s.logger.Warn("unrecognized CSI final byte discarded", "final", string(final))
	}
}

// eraseFromCursorToEnd clears from the cursor to the end of the
// viewport (CSI 0J).
func (s *Screen) eraseFromCursorToEnd() {
	s.eraseLineToEnd()
	for r := s.cursor.Row + 1; r < s.rows; r++ {
		row := s.grid[r]
		for c := range row {
			row[c] = blankCell
		}
	}
}

// eraseLineFromStart clears from the start of the line to the cursor
// (CSI 1K).
func (s *Screen) eraseLineFromStart() {
	row := s.grid[s.cursor.Row]
	for c := 0; c <= s.cursor.Col && c < s.cols; c++ {
		row[c] = blankCell
	}
}

// parseCSIParams splits raw CSI parameter/intermediate bytes on ';' into
// integer parameters, ignoring any leading private-mode prefix byte
// ('?', '>', '=') and any non-digit intermediate bytes.
func parseCSIParams(raw []byte) []int {
	if len(raw) > 0 && (raw[0] == '?' || raw[0] == '>' || raw[0] == '=') {
		raw = raw[1:]
	}
	var params []int
	start := 0
	flush := func(end int) {
		if end <= start {
			params = append(params, -1)
			return
		}
		n, err := strconv.Atoi(string(raw[start:end]))
		if err != nil {
			params = append(params, -1)
			return
		}
		params = append(params, n)
	}
	for i, b := range raw {
		if b == ';' {
			flush(i)
			start = i + 1
		}
	}
	flush(len(raw))
	return params
}

// paramOr returns params[idx] if present and non-negative, else def.
func paramOr(params []int, idx, def int) int {
	if idx < 0 || idx >= len(params) || params[idx] < 0 {
		return def
	}
	return params[idx]
}

// applySGR updates the screen's current style from a Select Graphic
// Rendition parameter list.
func (s *Screen) applySGR(params []int) {
	if len(params) == 0 {
		s.curStyle = Style{}
		return
	}
	st := s.curStyle
	i := 0
	for i < len(params) {
		p := params[i]
		if p < 0 {
			p = 0
		}
		switch {
		case p == 0:
			st = Style{}
		case p == 1:
			st.Bold = true
		case p == 4:
			st.Underline = true
		case p == 7:
			st.Inverse = true
		case p == 22:
			st.Bold = false
		case p == 24:
			st.Underline = false
		case p == 27:
			st.Inverse = false
		case p >= 30 && p <= 37:
			st.FG = ansi16[p-30]
		case p == 39:
			st.FG = ""
		case p >= 40 && p <= 47:
			st.BG = ansi16[p-40]
		case p == 49:
			st.BG = ""
		case p >= 90 && p <= 97:
			st.FG = ansiBright[p-90]
		case p >= 100 && p <= 107:
			st.BG = ansiBright[p-100]
		case p == 38 || p == 48:
			// Extended color: 5;N (256-color) or 2;R;G;B (truecolor).
			consumed, color := parseExtendedColor(params[i+1:])
			i += consumed
			if p == 38 {
				st.FG = color
			} else {
				st.BG = color
			}
		}
		i++
	}
	s.curStyle = st
}

var ansi16 = [8]string{
	"black", "red", "green", "yellow", "blue", "magenta", "cyan", "white",
}

var ansiBright = [8]string{
	"bright-black", "bright-red", "bright-green", "bright-yellow",
	"bright-blue", "bright-magenta", "bright-cyan", "bright-white",
}

// parseExtendedColor parses the parameters following an SGR 38/48 code
// and returns how many extra parameters it consumed plus a color
// identifier string.
func parseExtendedColor(rest []int) (consumed int, color string) {
	if len(rest) == 0 {
		return 0, ""
	}
	switch rest[0] {
	case 5:
		if len(rest) >= 2 {
			return 2, "idx:" + strconv.Itoa(rest[1])
		}
		return 1, ""
	case 2:
		if len(rest) >= 4 {
			return 4, "rgb:" + strconv.Itoa(rest[1]) + "," + strconv.Itoa(rest[2]) + "," + strconv.Itoa(rest[3])
		}
		return len(rest), ""
	default:
		return 1, ""
	}
}
