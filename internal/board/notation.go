package board

import (
	nchess "github.com/corentings/chess/v2"
)

// chessSquare maps the authority's matrix onto algebraic squares.
// Row 7 holds white's home rank, so row r is rank 8-r and column c is file a+c.
func chessSquare(s Square) nchess.Square {
	return nchess.NewSquare(nchess.File(s.Col), nchess.Rank(Size-1-s.Row))
}

// Algebraic returns the square name (e.g. "e2") used in logs and notices.
func (s Square) Algebraic() string {
	if !s.Valid() {
		return "-"
	}
	return chessSquare(s).String()
}

var chessPieces = map[Piece]nchess.Piece{
	{King, White}: nchess.WhiteKing, {Queen, White}: nchess.WhiteQueen, {Rook, White}: nchess.WhiteRook,
	{Bishop, White}: nchess.WhiteBishop, {Knight, White}: nchess.WhiteKnight, {Pawn, White}: nchess.WhitePawn,
	{King, Black}: nchess.BlackKing, {Queen, Black}: nchess.BlackQueen, {Rook, Black}: nchess.BlackRook,
	{Bishop, Black}: nchess.BlackBishop, {Knight, Black}: nchess.BlackKnight, {Pawn, Black}: nchess.BlackPawn,
}

// Placement returns the FEN piece-placement field of the board.
// It is a compact fingerprint for logs and the snapshot cache, not a legality input.
func (b *Board) Placement() string {
	m := make(map[nchess.Square]nchess.Piece)
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if p, ok := chessPieces[b[r][c]]; ok {
				m[chessSquare(Square{Row: r, Col: c})] = p
			}
		}
	}
	return nchess.NewBoard(m).String()
}

// Fingerprint identifies a snapshot for logging: placement, side to move and status.
func (s *Snapshot) Fingerprint() string {
	if s == nil {
		return ""
	}
	fp := s.Board.Placement() + " " + string(s.Turn) + " " + string(s.Status)
	if s.Result != ResultNone {
		fp += " " + string(s.Result)
	}
	return fp
}
