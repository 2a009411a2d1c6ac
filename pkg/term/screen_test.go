package term

import (
	"log/slog"
	"testing"
	"unicode/utf8"
)

func newTestScreen(cols, rows int) *Screen {
	return NewScreen(cols, rows, 0, slog.Default())
}

func gridEqual(a, b [][]Cell) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				return false
			}
		}
	}
	return true
}

func TestFeedSplitEquivalence(t *testing.T) {
	whole := newTestScreen(20, 5)
	whole.Feed([]byte("hello \x1b[1mworld\x1b[0m\r\nsecond line\x1b[2A\x1b[3C!"))

	split := newTestScreen(20, 5)
	msg := "hello \x1b[1mworld\x1b[0m\r\nsecond line\x1b[2A\x1b[3C!"
	for i := 0; i < len(msg); i++ {
		split.Feed([]byte{msg[i]})
	}

	if !gridEqual(whole.grid, split.grid) {
		t.Fatal("grid differs between single-shot and byte-by-byte feed")
	}
	if whole.cursor.Row != split.cursor.Row || whole.cursor.Col != split.cursor.Col {
		t.Fatalf("cursor differs: whole=(%d,%d) split=(%d,%d)",
			whole.cursor.Row, whole.cursor.Col, split.cursor.Row, split.cursor.Col)
	}
}

func TestFeedSplitEquivalenceUTF8Boundary(t *testing.T) {
	msg := []byte("caf\xc3\xa9 \xe2\x98\x83 done")

	whole := newTestScreen(20, 3)
	whole.Feed(msg)

	for cut := 1; cut < len(msg); cut++ {
		if !utf8.RuneStart(msg[cut]) {
			// Split-call equivalence covers only splits between code points.
			continue
		}
		split := newTestScreen(20, 3)
		split.Feed(msg[:cut])
		split.Feed(msg[cut:])
		if !gridEqual(whole.grid, split.grid) {
			t.Fatalf("grid differs when split at byte %d", cut)
		}
	}
}

func TestVisibleLinesAtOffsetZeroIsViewport(t *testing.T) {
	s := newTestScreen(10, 3)
	s.Feed([]byte("abc"))
	vis := s.VisibleLines(0)
	if !gridEqual(vis, s.grid) {
		t.Fatal("VisibleLines(0) must equal the live viewport")
	}
}

func TestScrollbackBlendsWithOffset(t *testing.T) {
	s := newTestScreen(5, 2)
	for i := 0; i < 10; i++ {
		s.Feed([]byte{byte('0' + i), '\r', '\n'})
	}
	if s.ScrollbackLen() == 0 {
		t.Fatal("expected scrollback to accumulate after repeated line feeds")
	}
	vis := s.VisibleLines(1)
	if len(vis) != s.rows {
		t.Fatalf("VisibleLines(1) returned %d rows, want %d", len(vis), s.rows)
	}
}

func TestResizeThenWriteProducesExactRows(t *testing.T) {
	s := newTestScreen(10, 10)
	s.Resize(10, 3)
	if s.ScrollbackLen() != 0 {
		t.Fatalf("resize alone must not push scrollback, got %d", s.ScrollbackLen())
	}
	for i := 0; i < 3; i++ {
		s.Feed([]byte("x\r\n"))
	}
	nonEmpty := 0
	for _, row := range s.grid {
		for _, c := range row {
			if c.Ch != ' ' {
				nonEmpty++
				break
			}
		}
	}
	if nonEmpty == 0 {
		t.Fatal("expected at least one non-blank row after writes")
	}
}

func TestScrollbackRingBoundary(t *testing.T) {
	s := NewScreen(5, 1, 3, slog.Default())
	for i := 0; i < 5; i++ {
		s.Feed([]byte{byte('a' + i), '\r', '\n'})
	}
	if got := s.ScrollbackLen(); got != 3 {
		t.Fatalf("scrollback len = %d, want 3 (capped)", got)
	}
}

func TestCursorAlwaysInBounds(t *testing.T) {
	s := newTestScreen(5, 5)
	s.Feed([]byte("\x1b[100;100H"))
	row, col := s.CursorPosition()
	if row < 0 || row >= s.rows || col < 0 || col >= s.cols {
		t.Fatalf("cursor out of bounds after huge CSI H: (%d,%d)", row, col)
	}
	s.Feed([]byte("\x1b[-5;-5H"))
	row, col = s.CursorPosition()
	if row < 0 || row >= s.rows || col < 0 || col >= s.cols {
		t.Fatalf("cursor out of bounds after negative CSI H: (%d,%d)", row, col)
	}
}

func TestUnrecognizedEscapeNeverMutatesGrid(t *testing.T) {
	s := newTestScreen(10, 3)
	s.Feed([]byte("abc"))
	before := make([][]Cell, len(s.grid))
	for i, row := range s.grid {
		before[i] = append([]Cell(nil), row...)
	}
	s.Feed([]byte("\x1bZ"))
	if !gridEqual(before, s.grid) {
		t.Fatal("unrecognized escape sequence mutated the grid")
	}
}

func TestEraseDisplayPreservesScrollback(t *testing.T) {
	s := newTestScreen(5, 2)
	s.Feed([]byte("one\r\ntwo\r\nthree"))
	before := s.ScrollbackLen()
	s.Feed([]byte("\x1b[2J"))
	if s.ScrollbackLen() != before {
		t.Fatalf("CSI 2J changed scrollback length: before=%d after=%d", before, s.ScrollbackLen())
	}
	for _, row := range s.grid {
		for _, c := range row {
			if c != blankCell {
				t.Fatal("CSI 2J left non-blank cell in viewport")
			}
		}
	}
}

func TestSGRAppliesStyle(t *testing.T) {
	s := newTestScreen(10, 1)
	s.Feed([]byte("\x1b[1;31mX"))
	cell := s.grid[0][0]
	if !cell.Style.Bold {
		t.Error("expected bold after SGR 1")
	}
	if cell.Style.FG != "red" {
		t.Errorf("expected red foreground, got %q", cell.Style.FG)
	}
	s.Feed([]byte("\x1b[0mY"))
	if s.grid[0][1].Style.Bold {
		t.Error("expected SGR 0 to reset bold")
	}
}
