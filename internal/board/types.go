package board

import "fmt"

// Size is the edge length of the board.
const Size = 8

// Color identifies a side. The zero value means "no color".
type Color string

const (
	NoColor Color = ""
	White   Color = "white"
	Black   Color = "black"
)

func (c Color) Valid() bool { return c == White || c == Black }

// Opponent returns the other side; NoColor stays NoColor.
func (c Color) Opponent() Color {
	switch c {
	case White:
		return Black
	case Black:
		return White
	default:
		return NoColor
	}
}

// Kind is a piece type using the authority's one-letter codes.
type Kind string

const (
	NoKind Kind = ""
	King   Kind = "K"
	Queen  Kind = "Q"
	Rook   Kind = "R"
	Bishop Kind = "B"
	Knight Kind = "N"
	Pawn   Kind = "P"
)

func (k Kind) Valid() bool {
	switch k {
	case King, Queen, Rook, Bishop, Knight, Pawn:
		return true
	default:
		return false
	}
}

// promotionNames maps kinds to the names the move API expects for promotion.
var promotionNames = map[Kind]string{
	Queen:  "QUEEN",
	Rook:   "ROOK",
	Bishop: "BISHOP",
	Knight: "KNIGHT",
}

// ParsePromotion accepts a promotion name (QUEEN) or letter (Q), case-insensitive.
func ParsePromotion(s string) (Kind, bool) {
	switch s {
	case "QUEEN", "queen", "Q", "q":
		return Queen, true
	case "ROOK", "rook", "R", "r":
		return Rook, true
	case "BISHOP", "bishop", "B", "b":
		return Bishop, true
	case "KNIGHT", "knight", "N", "n":
		return Knight, true
	default:
		return NoKind, false
	}
}

// Piece is a value; the zero Piece is an empty cell.
type Piece struct {
	Kind  Kind
	Color Color
}

func (p Piece) Empty() bool { return p.Kind == NoKind }

func (p Piece) Valid() bool { return p.Kind.Valid() && p.Color.Valid() }

// Square is a (row, col) coordinate on the authority's 8x8 matrix.
type Square struct {
	Row int
	Col int
}

func (s Square) Valid() bool {
	return s.Row >= 0 && s.Row < Size && s.Col >= 0 && s.Col < Size
}

func (s Square) String() string { return fmt.Sprintf("(%d,%d)", s.Row, s.Col) }

// Board is indexed [row][col]. It is an array so snapshots copy and compare by value.
type Board [Size][Size]Piece

// At returns the piece at s, or an empty piece for out-of-range squares.
func (b *Board) At(s Square) Piece {
	if b == nil || !s.Valid() {
		return Piece{}
	}
	return b[s.Row][s.Col]
}

// Status is the coarse lifecycle of a game as seen by the client.
type Status string

const (
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// Result is only meaningful when Status is finished.
type Result string

const (
	ResultNone  Result = ""
	ResultWhite Result = "white"
	ResultBlack Result = "black"
	ResultDraw  Result = "draw"
)

// MoveRequest is produced once per submission attempt.
type MoveRequest struct {
	From      Square
	To        Square
	Promotion Kind
}
