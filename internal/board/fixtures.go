package board

// StartPosition returns the initial arrangement in the authority's layout:
// black on rows 0-1, white on rows 6-7, white to move.
func StartPosition() *Snapshot {
	s := &Snapshot{Turn: White, Status: StatusPlaying}
	back := [Size]Kind{Rook, Knight, Bishop, Queen, King, Bishop, Knight, Rook}
	for c := 0; c < Size; c++ {
		s.Board[0][c] = Piece{Kind: back[c], Color: Black}
		s.Board[1][c] = Piece{Kind: Pawn, Color: Black}
		s.Board[6][c] = Piece{Kind: Pawn, Color: White}
		s.Board[7][c] = Piece{Kind: back[c], Color: White}
	}
	return s
}
