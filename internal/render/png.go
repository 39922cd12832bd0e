package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"math"
	"strconv"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"

	"github.com/park285/cheese-board/internal/board"
)

const (
	squareSize   = 72
	boardSize    = squareSize * board.Size
	sideMargin   = 36
	topMargin    = 72
	bottomMargin = 36
	hudHeight    = 32
	gapToBoard   = 18
	panelRadius  = 10
	hudPaddingX  = 20
)

var (
	lightSquare         = color.RGBA{233, 207, 163, 255}
	darkSquare          = color.RGBA{187, 136, 96, 255}
	selectedFill        = color.NRGBA{R: 255, G: 228, B: 120, A: 150}
	legalDotColor       = color.NRGBA{R: 40, G: 40, B: 40, A: 110}
	pendingArrowColor   = color.NRGBA{R: 148, G: 207, B: 255, A: 170}
	backgroundColor     = color.RGBA{22, 24, 36, 255}
	hudPanelColor       = color.NRGBA{R: 28, G: 31, B: 46, A: 250}
	hudShadowColor      = color.NRGBA{0, 0, 0, 50}
	hudTextPrimary      = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	boardShadowColor    = color.NRGBA{0, 0, 0, 60}
	coordinateTextColor = color.NRGBA{R: 8, G: 214, B: 120, A: 255}
)

// captionFace is the fixed bitmap face used for labels.
func captionFace() font.Face { return basicfont.Face7x13 }

// PNG draws props as a PNG image: squares in draw order, selection and legal-move
// markers, the pending move, coordinate labels and the status line.
func PNG(ctx context.Context, props Props) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	totalWidth := boardSize + sideMargin*2
	totalHeight := boardSize + topMargin + bottomMargin
	origin := image.Point{X: sideMargin, Y: topMargin}
	boardRect := image.Rect(origin.X, origin.Y, origin.X+boardSize, origin.Y+boardSize)

	img := image.NewRGBA(image.Rect(0, 0, totalWidth, totalHeight))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)

	layout := newLayout(props.Flipped, origin)
	drawBoardShadow(img, boardRect)
	drawSquares(img, layout)
	if props.Selected != nil {
		drawSquareOverlay(img, layout.rect(*props.Selected), selectedFill)
	}
	if err := drawPieces(img, &props.Board, layout); err != nil {
		return nil, err
	}
	for _, sq := range props.Legal {
		if !sq.Valid() {
			continue
		}
		r := layout.rect(sq)
		drawDisc(img, image.Pt(r.Min.X+squareSize/2, r.Min.Y+squareSize/2), squareSize/8, legalDotColor)
	}
	if props.Pending != nil {
		drawArrow(img, layout.rect(props.Pending.From), layout.rect(props.Pending.To), pendingArrowColor)
	}
	drawCoordinates(img, layout)
	drawHUD(img, boardRect, props.Status)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return pngBuf.Bytes(), nil
}

// layout places squares by their index in the draw order.
type layout struct {
	origin image.Point
	pos    map[board.Square]image.Point // visual (column, line)
	order  []board.Square
}

func newLayout(flipped bool, origin image.Point) *layout {
	order := board.DrawOrder(flipped)
	l := &layout{origin: origin, pos: make(map[board.Square]image.Point, len(order)), order: order}
	for i, sq := range order {
		l.pos[sq] = image.Pt(i%board.Size, i/board.Size)
	}
	return l
}

func (l *layout) rect(sq board.Square) image.Rectangle {
	p, ok := l.pos[sq]
	if !ok {
		return image.Rectangle{}
	}
	x := l.origin.X + p.X*squareSize
	y := l.origin.Y + p.Y*squareSize
	return image.Rect(x, y, x+squareSize, y+squareSize)
}

func drawBoardShadow(img *image.RGBA, boardRect image.Rectangle) {
	shadowRect := image.Rect(
		boardRect.Min.X+4,
		boardRect.Min.Y+8,
		boardRect.Max.X+10,
		boardRect.Max.Y+12,
	)
	imagedraw.Draw(img, shadowRect, image.NewUniform(boardShadowColor), image.Point{}, imagedraw.Over)
}

func drawSquares(dst imagedraw.Image, l *layout) {
	for _, sq := range l.order {
		imagedraw.Draw(dst, l.rect(sq), image.NewUniform(squareColor(sq)), image.Point{}, imagedraw.Src)
	}
}

func drawPieces(dst imagedraw.Image, b *board.Board, l *layout) error {
	for _, sq := range l.order {
		piece := b.At(sq)
		if !piece.Valid() {
			continue
		}
		img, err := renderPieceImage(piece, squareSize)
		if err != nil {
			return err
		}
		imagedraw.Draw(dst, l.rect(sq), img, image.Point{}, imagedraw.Over)
	}
	return nil
}

func drawSquareOverlay(img *image.RGBA, rect image.Rectangle, clr color.Color) {
	if rect.Empty() {
		return
	}
	imagedraw.Draw(img, rect, image.NewUniform(clr), image.Point{}, imagedraw.Over)
}

func drawHUD(img *image.RGBA, boardRect image.Rectangle, status string) {
	status = strings.TrimSpace(status)
	if status == "" {
		return
	}
	face := captionFace()
	drawer := &font.Drawer{Dst: img, Face: face}

	width := drawer.MeasureString(status).Round() + hudPaddingX*2
	if maxWidth := boardRect.Dx() - 40; width > maxWidth {
		width = maxWidth
	}
	bottom := boardRect.Min.Y - gapToBoard
	left := boardRect.Min.X + (boardRect.Dx()-width)/2
	rect := image.Rect(left, bottom-hudHeight, left+width, bottom)

	drawRoundedPanel(img, rect.Add(image.Pt(0, 4)), panelRadius, hudShadowColor)
	drawRoundedPanel(img, rect, panelRadius, hudPanelColor)
	drawer.Src = image.NewUniform(hudTextPrimary)
	text := truncateWithEllipsis(face, status, rect.Dx()-hudPaddingX*2)
	drawCenteredText(drawer, text, rect.Min.X+rect.Dx()/2, middleBaseline(face, rect))
}

// drawCoordinates labels ranks on the left and files along the bottom, following orientation.
func drawCoordinates(dst imagedraw.Image, l *layout) {
	face := captionFace()
	drawer := &font.Drawer{Dst: dst, Face: face, Src: image.NewUniform(coordinateTextColor)}
	ascent := face.Metrics().Ascent.Ceil()
	boardEndY := l.origin.Y + board.Size*squareSize

	for line := 0; line < board.Size; line++ {
		sq := l.order[line*board.Size]
		rankCenter := l.origin.Y + line*squareSize + squareSize/2
		drawCenteredText(drawer, strconv.Itoa(board.Size-sq.Row), l.origin.X-sideMargin/2, rankCenter+ascent/2)
	}
	for column := 0; column < board.Size; column++ {
		sq := l.order[(board.Size-1)*board.Size+column]
		fileCenter := l.origin.X + column*squareSize + squareSize/2
		drawCenteredText(drawer, string(rune('a'+sq.Col)), fileCenter, boardEndY+ascent)
	}
}

func squareColor(sq board.Square) color.Color {
	if board.Light(sq) {
		return lightSquare
	}
	return darkSquare
}

// drawArrow draws a shaft and head from the center of startRect to the center of endRect.
func drawArrow(img *image.RGBA, startRect, endRect image.Rectangle, clr color.Color) {
	if startRect.Empty() || endRect.Empty() || startRect == endRect {
		return
	}
	sx, sy := float64(startRect.Min.X+squareSize/2), float64(startRect.Min.Y+squareSize/2)
	ex, ey := float64(endRect.Min.X+squareSize/2), float64(endRect.Min.Y+squareSize/2)
	length := math.Hypot(ex-sx, ey-sy)
	if length == 0 {
		return
	}
	ux, uy := (ex-sx)/length, (ey-sy)/length
	// unit normal
	nx, ny := -uy, ux

	shaft := length - squareSize*0.45
	if shaft < squareSize*0.35 {
		shaft = length * 0.6
	}
	half := squareSize * 0.18
	head := squareSize * 0.16
	bx, by := sx+ux*shaft, sy+uy*shaft

	at := func(x, y, off float64) pt { return pt{float32(x + nx*off), float32(y + ny*off)} }
	fillPolygon(img, clr, at(sx, sy, -half), at(sx, sy, half), at(bx, by, half), at(bx, by, -half))
	fillPolygon(img, clr, pt{float32(ex), float32(ey)}, at(bx, by, -head), at(bx, by, head))
}
