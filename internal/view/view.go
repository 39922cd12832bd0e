// Package view draws the board on a terminal and turns mouse clicks into squares.
// It holds no game logic: it shows the props it is given and reports clicks.
package view

import (
	"strconv"
	"sync"

	"github.com/gdamore/tcell/v2"

	"github.com/park285/cheese-board/internal/board"
	"github.com/park285/cheese-board/internal/render"
)

const (
	cellWidth  = 6
	cellHeight = 3
	originX    = 3
	originY    = 1
)

var (
	lightBg    = tcell.NewRGBColor(233, 207, 163)
	darkBg     = tcell.NewRGBColor(187, 136, 96)
	selectedBg = tcell.NewRGBColor(246, 222, 110)
	legalBg    = tcell.NewRGBColor(150, 190, 110)
	pendingBg  = tcell.NewRGBColor(148, 207, 255)
	cursorFg   = tcell.NewRGBColor(200, 30, 30)
	pieceFg    = tcell.ColorBlack
	labelStyle = tcell.StyleDefault.Foreground(tcell.NewRGBColor(8, 214, 120))
)

// View renders render.Props onto a tcell screen.
type View struct {
	screen  tcell.Screen
	onClick func(board.Square)

	// mu guards the fields below; onClick is always called without it.
	mu    sync.Mutex
	props render.Props

	// pressed is true between a primary-button press and its release.
	pressed bool
	cursor  board.Square
	showCur bool
}

// New creates a View. onClick is invoked once per physical click with the square under it.
func New(screen tcell.Screen, onClick func(board.Square)) *View {
	return &View{screen: screen, onClick: onClick, cursor: board.Square{Row: board.Size - 1, Col: 0}}
}

// Size is the screen area the view needs, in cells.
func Size() (width, height int) {
	return originX + board.Size*cellWidth + 1, originY + board.Size*cellHeight + 4
}

// Draw replaces the props and repaints the whole view.
func (v *View) Draw(p render.Props) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.props = p
	v.paint()
}

func (v *View) paint() {
	s := v.screen
	s.Clear()
	p := &v.props
	for i, sq := range board.DrawOrder(p.Flipped) {
		line, column := i/board.Size, i%board.Size
		v.drawCell(sq, originX+column*cellWidth, originY+line*cellHeight)
	}
	v.drawLabels()

	baseY := originY + board.Size*cellHeight + 1
	drawText(s, originX, baseY, tcell.StyleDefault.Bold(true), p.Status)
	drawText(s, originX, baseY+1, tcell.StyleDefault.Italic(true), p.Notice)
	s.Show()
}

func (v *View) drawCell(sq board.Square, x, y int) {
	p := &v.props
	bg := darkBg
	if board.Light(sq) {
		bg = lightBg
	}
	legal := p.IsLegal(sq)
	switch {
	case p.IsSelected(sq):
		bg = selectedBg
	case p.Pending != nil && (p.Pending.From == sq || p.Pending.To == sq):
		bg = pendingBg
	case legal && !p.Board.At(sq).Empty():
		// capture target
		bg = legalBg
	}
	style := tcell.StyleDefault.Background(bg).Foreground(pieceFg)
	for dy := 0; dy < cellHeight; dy++ {
		for dx := 0; dx < cellWidth; dx++ {
			v.screen.SetContent(x+dx, y+dy, ' ', nil, style)
		}
	}

	cx, cy := x+cellWidth/2, y+cellHeight/2
	piece := p.Board.At(sq)
	if g := render.Glyph(piece.Kind, piece.Color); g != "" {
		v.screen.SetContent(cx, cy, []rune(g)[0], nil, style)
	} else if legal {
		v.screen.SetContent(cx, cy, '•', nil, style)
	}
	if v.showCur && sq == v.cursor {
		cs := style.Foreground(cursorFg)
		v.screen.SetContent(x, y, '┌', nil, cs)
		v.screen.SetContent(x+cellWidth-1, y+cellHeight-1, '┘', nil, cs)
	}
}

func (v *View) drawLabels() {
	order := board.DrawOrder(v.props.Flipped)
	for line := 0; line < board.Size; line++ {
		sq := order[line*board.Size]
		drawText(v.screen, originX-2, originY+line*cellHeight+cellHeight/2, labelStyle, strconv.Itoa(board.Size-sq.Row))
	}
	y := originY + board.Size*cellHeight
	for column := 0; column < board.Size; column++ {
		sq := order[(board.Size-1)*board.Size+column]
		v.screen.SetContent(originX+column*cellWidth+cellWidth/2, y, rune('a'+sq.Col), nil, labelStyle)
	}
}

// HitTest maps a screen cell to the square drawn there.
func (v *View) HitTest(x, y int) (board.Square, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hitTest(x, y)
}

func (v *View) hitTest(x, y int) (board.Square, bool) {
	if x < originX || y < originY {
		return board.Square{}, false
	}
	return board.VisualSquare(v.props.Flipped, (y-originY)/cellHeight, (x-originX)/cellWidth)
}

// HandleEvent consumes mouse and cursor-key events. It reports whether ev was used.
func (v *View) HandleEvent(ev tcell.Event) bool {
	v.mu.Lock()
	var (
		used bool
		hit  *board.Square
	)
	switch ev := ev.(type) {
	case *tcell.EventMouse:
		used, hit = v.handleMouse(ev)
	case *tcell.EventKey:
		used, hit = v.handleKey(ev)
	case *tcell.EventResize:
		v.screen.Sync()
		v.paint()
		used = true
	}
	v.mu.Unlock()

	if hit != nil && v.onClick != nil {
		v.onClick(*hit)
	}
	return used
}

func (v *View) handleMouse(ev *tcell.EventMouse) (bool, *board.Square) {
	down := ev.Buttons()&tcell.Button1 != 0
	if !down {
		v.pressed = false
		return false, nil
	}
	// drag reports keep the button bit set; only the transition counts
	if v.pressed {
		return true, nil
	}
	v.pressed = true
	x, y := ev.Position()
	if sq, ok := v.hitTest(x, y); ok {
		return true, &sq
	}
	return true, nil
}

func (v *View) handleKey(ev *tcell.EventKey) (bool, *board.Square) {
	dLine, dColumn := 0, 0
	switch ev.Key() {
	case tcell.KeyUp:
		dLine = -1
	case tcell.KeyDown:
		dLine = 1
	case tcell.KeyLeft:
		dColumn = -1
	case tcell.KeyRight:
		dColumn = 1
	case tcell.KeyEnter:
		sq := v.cursor
		return true, &sq
	default:
		if ev.Key() == tcell.KeyRune && ev.Rune() == ' ' {
			sq := v.cursor
			return true, &sq
		}
		return false, nil
	}
	line, column := v.visualOf(v.cursor)
	line = clamp(line+dLine, 0, board.Size-1)
	column = clamp(column+dColumn, 0, board.Size-1)
	if sq, ok := board.VisualSquare(v.props.Flipped, line, column); ok {
		v.cursor = sq
	}
	v.showCur = true
	v.paint()
	return true, nil
}

func (v *View) visualOf(sq board.Square) (line, column int) {
	for i, s := range board.DrawOrder(v.props.Flipped) {
		if s == sq {
			return i / board.Size, i % board.Size
		}
	}
	return 0, 0
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

func drawText(s tcell.Screen, x, y int, style tcell.Style, text string) {
	for _, r := range text {
		s.SetContent(x, y, r, nil, style)
		x++
	}
}
