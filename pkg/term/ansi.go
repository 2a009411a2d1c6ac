package term

import "unicode/utf8"

// parserState is the ANSI-escape-sequence state machine described in
// spec §4.4: ground, escape, CSI, OSC, DCS. It is part of Screen so it
// survives across Feed calls, which is what makes feeding "A" then "B"
// equivalent to feeding "A+B" in one call for any split that doesn't cut
// a UTF-8 code point in half.
type parserState struct {
	mode   parserMode
	params []byte // raw CSI parameter/intermediate bytes collected so far
	escSeq []byte // raw bytes since ESC, for diagnostics
}

type parserMode int

const (
	modeGround parserMode = iota
	modeEscape
	modeCSI
	modeOSC
	modeDCS
)

const (
	cESC = 0x1b
	cBEL = 0x07
	cBS  = 0x08
	cTAB = 0x09
	cLF  = 0x0a
	cVT  = 0x0b
	cFF  = 0x0c
	cCR  = 0x0d
)

// Feed decodes data as UTF-8 and drives the ANSI state machine, per spec
// §4.4. Invalid UTF-8 bytes are skipped (logged once per Feed call, not
// per byte, to avoid log storms on corrupted streams).
func (s *Screen) Feed(data []byte) {
	skipped := 0
	i := 0
	for i < len(data) {
		b := data[i]

		// Fast path: in ground mode, bytes below 0x80 are either
		// controls or ASCII printables and never need UTF-8 decoding.
		if s.parser.mode == modeGround && b < 0x80 {
			s.feedGroundByte(rune(b))
			i++
			continue
		}

		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size <= 1 {
			// Invalid byte, or a code point cut off at the end of data:
			// skip one byte. A code point split across two Feed calls is
			// therefore dropped, which is why split-call equivalence
			// holds only for splits between code points.
			if size == 0 {
				break
			}
			skipped++
			i++
			continue
		}
		s.feedRune(r)
		i += size
	}
	if skipped > 0 {
		s.logger.Debug("invalid UTF-8 bytes skipped", "count", skipped)
	}
}

func (s *Screen) feedRune(r rune) {
	switch s.parser.mode {
	case modeGround:
		s.feedGroundByte(r)
	case modeEscape:
		s.feedEscape(r)
	case modeCSI:
		s.feedCSI(r)
	case modeOSC:
		s.feedOSC(r)
	case modeDCS:
		s.feedDCS(r)
	}
}

func (s *Screen) feedGroundByte(r rune) {
	switch r {
	case cESC:
		s.parser.mode = modeEscape
		s.parser.escSeq = s.parser.escSeq[:0]
	case cLF, cVT, cFF:
		s.lineFeed()
	case cCR:
		s.carriageReturn()
	case cBS:
		if s.cursor.Col > 0 {
			s.cursor.Col--
		}
		s.wrapPending = false
	case cTAB:
		next := (s.cursor.Col/8 + 1) * 8
		if next >= s.cols {
			next = s.cols - 1
		}
		s.cursor.Col = next
		s.wrapPending = false
	case cBEL:
		// No audible bell in a headless emulator; ignored.
	default:
		if r >= 0x20 {
			s.writeRune(r)
		}
		// Other C0 controls are silently discarded.
	}
}

func (s *Screen) feedEscape(r rune) {
	switch r {
	case '[':
		s.parser.mode = modeCSI
		s.parser.params = s.parser.params[:0]
	case ']':
		s.parser.mode = modeOSC
		s.parser.params = s.parser.params[:0]
	case 'P':
		s.parser.mode = modeDCS
		s.parser.params = s.parser.params[:0]
	case '7', '8', 'D', 'E', 'H', 'M', 'c', '=', '>':
		// Cursor save/restore, index, tab-set, full reset, keypad mode:
		// recognized-but-unimplemented single-char escapes. The screen
		// is left unmutated and we return to ground, matching the
		// "unrecognized sequence never mutates the grid" invariant.
		s.parser.mode = modeGround
	default:
		s.logger.Warn("unrecognized escape sequence discarded", "final", string(r))
		s.parser.mode = modeGround
	}
}

func (s *Screen) feedCSI(r rune) {
	// Parameter and intermediate bytes are 0x20-0x3f; a final byte is
	// 0x40-0x7e.
	if r >= 0x20 && r <= 0x3f {
		s.parser.params = append(s.parser.params, byte(r))
		return
	}
	if r >= 0x40 && r <= 0x7e {
		s.dispatchCSI(byte(r), s.parser.params)
		s.parser.mode = modeGround
		return
	}
	// Malformed CSI body; discard and bail to ground.
	s.logger.Warn("malformed CSI sequence discarded")
	s.parser.mode = modeGround
}

func (s *Screen) feedOSC(r rune) {
	if r == cBEL {
		s.parser.mode = modeGround
		return
	}
	if r == cESC {
		// Possible ST (ESC \\); consumed on the following '\\' byte in
		// ground processing would be wrong, so we special-case it here
		// by staying in OSC until we see the backslash.
		s.parser.params = append(s.parser.params, byte(r))
		return
	}
	if r == '\\' && len(s.parser.params) > 0 && s.parser.params[len(s.parser.params)-1] == cESC {
		s.parser.mode = modeGround
		return
	}
	s.parser.params = append(s.parser.params, byte(r))
}

func (s *Screen) feedDCS(r rune) {
	if r == cESC {
		s.parser.params = append(s.parser.params, byte(r))
		return
	}
	if r == '\\' && len(s.parser.params) > 0 && s.parser.params[len(s.parser.params)-1] == cESC {
		s.parser.mode = modeGround
		return
	}
	s.parser.params = append(s.parser.params, byte(r))
}
