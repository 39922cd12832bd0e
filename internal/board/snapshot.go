package board

// LegalHints are optional per-origin destination lists supplied by the authority.
type LegalHints map[Square][]Square

// Snapshot is a complete authoritative description of a game at one instant.
// It is replaced wholesale; callers must not mutate a Snapshot they did not build.
type Snapshot struct {
	Board  Board
	Turn   Color
	Status Status
	Result Result
	Hints  LegalHints
	// Ply is the number of half-moves played, 0 when unknown.
	Ply int
}

func (s *Snapshot) Finished() bool { return s != nil && s.Status == StatusFinished }

// Owns reports whether sq holds a piece of the side to move.
func (s *Snapshot) Owns(sq Square) bool {
	if s == nil || !sq.Valid() {
		return false
	}
	p := s.Board.At(sq)
	return !p.Empty() && p.Color == s.Turn
}

// LegalFrom returns the authority-supplied destinations for from, or nil.
func (s *Snapshot) LegalFrom(from Square) []Square {
	if s == nil || s.Hints == nil {
		return nil
	}
	dst := s.Hints[from]
	if len(dst) == 0 {
		return nil
	}
	return append([]Square(nil), dst...)
}

// Equal compares two snapshots by value, including hints.
func (s *Snapshot) Equal(o *Snapshot) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.Board != o.Board || s.Ply != o.Ply || s.Turn != o.Turn || s.Status != o.Status || s.Result != o.Result {
		return false
	}
	return hintsEqual(s.Hints, o.Hints)
}

func hintsEqual(a, b LegalHints) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
	}
	return true
}

// Clone returns a deep copy; Board is an array so only the hints need copying.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := *s
	if s.Hints != nil {
		c.Hints = make(LegalHints, len(s.Hints))
		for k, v := range s.Hints {
			c.Hints[k] = append([]Square(nil), v...)
		}
	}
	return &c
}

// Predates reports whether s is known to be older than o. Unknown plies never predate.
func (s *Snapshot) Predates(o *Snapshot) bool {
	if s == nil || o == nil || s.Ply == 0 || o.Ply == 0 {
		return false
	}
	return s.Ply < o.Ply
}

// PromotionRow is the last row a pawn of c reaches. White pawns advance toward row 0.
func PromotionRow(c Color) int {
	if c == Black {
		return Size - 1
	}
	return 0
}
