// Package render maps pieces to glyphs and draws board images.
package render

import "github.com/park285/cheese-board/internal/board"

var glyphs = map[board.Piece]string{
	{Kind: board.King, Color: board.White}:   "♔",
	{Kind: board.Queen, Color: board.White}:  "♕",
	{Kind: board.Rook, Color: board.White}:   "♖",
	{Kind: board.Bishop, Color: board.White}: "♗",
	{Kind: board.Knight, Color: board.White}: "♘",
	{Kind: board.Pawn, Color: board.White}:   "♙",
	{Kind: board.King, Color: board.Black}:   "♚",
	{Kind: board.Queen, Color: board.Black}:  "♛",
	{Kind: board.Rook, Color: board.Black}:   "♜",
	{Kind: board.Bishop, Color: board.Black}: "♝",
	{Kind: board.Knight, Color: board.Black}: "♞",
	{Kind: board.Pawn, Color: board.Black}:   "♟",
}

// Glyph returns the symbol for a piece, or "" for anything that is not one of
// the twelve valid kind/color pairs.
func Glyph(kind board.Kind, color board.Color) string {
	return glyphs[board.Piece{Kind: kind, Color: color}]
}

// Props is the render contract shared by the terminal view and the PNG renderer.
type Props struct {
	Board    board.Board
	Selected *board.Square
	Legal    []board.Square
	Flipped  bool
	// Pending is the move awaiting the authority, drawn as an arrow.
	Pending *board.MoveRequest
	Status  string
	Notice  string
}

// IsSelected reports whether sq is the selected square.
func (p *Props) IsSelected(sq board.Square) bool {
	return p.Selected != nil && *p.Selected == sq
}

// IsLegal reports whether sq is in the legal-move set.
func (p *Props) IsLegal(sq board.Square) bool {
	for _, l := range p.Legal {
		if l == sq {
			return true
		}
	}
	return false
}
