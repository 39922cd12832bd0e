package view

import (
	"testing"

	"github.com/gdamore/tcell/v2"

	"github.com/park285/cheese-board/internal/board"
	"github.com/park285/cheese-board/internal/render"
)

func newTestView(t *testing.T) (*View, tcell.SimulationScreen, *[]board.Square) {
	t.Helper()
	s := tcell.NewSimulationScreen("UTF-8")
	if err := s.Init(); err != nil {
		t.Fatalf("init screen: %v", err)
	}
	t.Cleanup(s.Fini)
	w, h := Size()
	s.SetSize(w+10, h+5)
	clicks := &[]board.Square{}
	v := New(s, func(sq board.Square) { *clicks = append(*clicks, sq) })
	return v, s, clicks
}

// center returns the screen cell at the middle of visual (line, column).
func center(line, column int) (int, int) {
	return originX + column*cellWidth + cellWidth/2, originY + line*cellHeight + cellHeight/2
}

func runeAt(s tcell.SimulationScreen, x, y int) rune {
	r, _, _, _ := s.GetContent(x, y)
	return r
}

func bgAt(s tcell.SimulationScreen, x, y int) tcell.Color {
	_, _, st, _ := s.GetContent(x, y)
	_, bg, _ := st.Decompose()
	return bg
}

// cellRune and cellBg read the middle of visual (line, column).
func cellRune(s tcell.SimulationScreen, line, column int) rune {
	x, y := center(line, column)
	return runeAt(s, x, y)
}

func cellBg(s tcell.SimulationScreen, line, column int) tcell.Color {
	x, y := center(line, column)
	return bgAt(s, x, y)
}

func TestDrawOrientation(t *testing.T) {
	v, s, _ := newTestView(t)
	start := board.StartPosition()

	v.Draw(render.Props{Board: start.Board})
	if r := cellRune(s, 0, 0); r != '♖' {
		t.Fatalf("normal top-left = %q, want white rook", r)
	}
	if r := cellRune(s, 7, 4); r != '♚' {
		t.Fatalf("normal bottom row column 4 = %q, want black king", r)
	}

	v.Draw(render.Props{Board: start.Board, Flipped: true})
	if r := cellRune(s, 0, 0); r != '♜' {
		t.Fatalf("flipped top-left = %q, want black rook", r)
	}
}

func TestDrawShadingAndMarkers(t *testing.T) {
	v, s, _ := newTestView(t)
	start := board.StartPosition()
	sel := board.Square{Row: 6, Col: 4}
	v.Draw(render.Props{
		Board:    start.Board,
		Selected: &sel,
		Legal:    []board.Square{{Row: 5, Col: 4}, {Row: 4, Col: 4}},
		Status:   "Turn: White",
		Notice:   "hello",
	})
	// (6,4) is drawn at line 1, column 4
	if bg := cellBg(s, 1, 4); bg != selectedBg {
		t.Fatalf("selected bg = %v", bg)
	}
	// (5,4) at line 2, column 4 is an empty legal target
	if r := cellRune(s, 2, 4); r != '•' {
		t.Fatalf("legal marker = %q", r)
	}
	// (7,0) is dark, (7,1) is light
	if bg := bgAt(s, originX, originY); bg != darkBg {
		t.Fatalf("(7,0) bg = %v", bg)
	}
	if bg := bgAt(s, originX+cellWidth, originY); bg != lightBg {
		t.Fatalf("(7,1) bg = %v", bg)
	}

	statusY := originY + board.Size*cellHeight + 1
	var got []rune
	for x := originX; x < originX+len("Turn: White"); x++ {
		got = append(got, runeAt(s, x, statusY))
	}
	if string(got) != "Turn: White" {
		t.Fatalf("status line = %q", string(got))
	}
}

func TestRankAndFileLabels(t *testing.T) {
	v, s, _ := newTestView(t)
	v.Draw(render.Props{})
	if r := runeAt(s, originX-2, originY+cellHeight/2); r != '1' {
		t.Fatalf("top rank label = %q", r)
	}
	filesY := originY + board.Size*cellHeight
	if r := runeAt(s, originX+cellWidth/2, filesY); r != 'a' {
		t.Fatalf("first file label = %q", r)
	}
	v.Draw(render.Props{Flipped: true})
	if r := runeAt(s, originX-2, originY+cellHeight/2); r != '8' {
		t.Fatalf("flipped top rank label = %q", r)
	}
	if r := runeAt(s, originX+cellWidth/2, filesY); r != 'h' {
		t.Fatalf("flipped first file label = %q", r)
	}
}

func TestHitTest(t *testing.T) {
	v, _, _ := newTestView(t)
	v.Draw(render.Props{})
	for i, want := range board.DrawOrder(false) {
		x, y := center(i/board.Size, i%board.Size)
		got, ok := v.HitTest(x, y)
		if !ok || got != want {
			t.Fatalf("HitTest(%d,%d) = %v %v, want %v", x, y, got, ok, want)
		}
	}
	for _, p := range [][2]int{{0, 0}, {originX - 1, originY}, {originX + board.Size*cellWidth, originY}, {originX, originY + board.Size*cellHeight}} {
		if _, ok := v.HitTest(p[0], p[1]); ok {
			t.Fatalf("HitTest(%d,%d) should miss", p[0], p[1])
		}
	}
	v.Draw(render.Props{Flipped: true})
	if got, _ := v.HitTest(center(0, 0)); got != (board.Square{Row: 0, Col: 7}) {
		t.Fatalf("flipped top-left hit = %v", got)
	}
}

func TestOneCallbackPerPhysicalClick(t *testing.T) {
	v, _, clicks := newTestView(t)
	v.Draw(render.Props{})
	x, y := center(1, 4)

	v.HandleEvent(tcell.NewEventMouse(x, y, tcell.Button1, tcell.ModNone))
	// drag while held, then release
	v.HandleEvent(tcell.NewEventMouse(x+1, y, tcell.Button1, tcell.ModNone))
	v.HandleEvent(tcell.NewEventMouse(x+cellWidth, y, tcell.Button1, tcell.ModNone))
	v.HandleEvent(tcell.NewEventMouse(x+cellWidth, y, tcell.ButtonNone, tcell.ModNone))
	if len(*clicks) != 1 || (*clicks)[0] != (board.Square{Row: 6, Col: 4}) {
		t.Fatalf("clicks = %v", *clicks)
	}

	v.HandleEvent(tcell.NewEventMouse(x, y, tcell.Button1, tcell.ModNone))
	v.HandleEvent(tcell.NewEventMouse(x, y, tcell.ButtonNone, tcell.ModNone))
	if len(*clicks) != 2 {
		t.Fatalf("second click not delivered: %v", *clicks)
	}

	// outside the board: no callback
	v.HandleEvent(tcell.NewEventMouse(0, 0, tcell.Button1, tcell.ModNone))
	v.HandleEvent(tcell.NewEventMouse(0, 0, tcell.ButtonNone, tcell.ModNone))
	// secondary button is not a click
	v.HandleEvent(tcell.NewEventMouse(x, y, tcell.Button2, tcell.ModNone))
	if len(*clicks) != 2 {
		t.Fatalf("unexpected clicks: %v", *clicks)
	}
}

func TestKeyboardCursor(t *testing.T) {
	v, _, clicks := newTestView(t)
	v.Draw(render.Props{})
	// cursor starts top-left on (7,0); Up is clamped
	v.HandleEvent(tcell.NewEventKey(tcell.KeyUp, 0, tcell.ModNone))
	v.HandleEvent(tcell.NewEventKey(tcell.KeyRight, 0, tcell.ModNone))
	v.HandleEvent(tcell.NewEventKey(tcell.KeyEnter, 0, tcell.ModNone))
	if len(*clicks) != 1 || (*clicks)[0] != (board.Square{Row: 7, Col: 1}) {
		t.Fatalf("clicks = %v", *clicks)
	}
	for i := 0; i < 10; i++ {
		v.HandleEvent(tcell.NewEventKey(tcell.KeyDown, 0, tcell.ModNone))
	}
	v.HandleEvent(tcell.NewEventKey(tcell.KeyRune, ' ', tcell.ModNone))
	if (*clicks)[1] != (board.Square{Row: 0, Col: 1}) {
		t.Fatalf("clicks = %v", *clicks)
	}
	if v.HandleEvent(tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone)) {
		t.Fatalf("unrelated key consumed")
	}
}
