package board

var (
	normalOrder  = buildOrder(false)
	flippedOrder = buildOrder(true)
)

func buildOrder(flipped bool) [Size * Size]Square {
	var out [Size * Size]Square
	i := 0
	for r := 0; r < Size; r++ {
		row := Size - 1 - r
		if flipped {
			row = r
		}
		for c := 0; c < Size; c++ {
			col := c
			if flipped {
				col = Size - 1 - c
			}
			out[i] = Square{Row: row, Col: col}
			i++
		}
	}
	return out
}

// DrawOrder returns the 64 squares in visual order, top-left to bottom-right.
// Normal orientation walks rows 7..0 and columns 0..7; flipped walks rows 0..7 and columns 7..0.
// Hit-testing depends on this order; do not change it.
func DrawOrder(flipped bool) []Square {
	if flipped {
		return append([]Square(nil), flippedOrder[:]...)
	}
	return append([]Square(nil), normalOrder[:]...)
}

// VisualSquare returns the square drawn at visual (line, column), both 0..7.
func VisualSquare(flipped bool, line, column int) (Square, bool) {
	if line < 0 || line >= Size || column < 0 || column >= Size {
		return Square{}, false
	}
	if flipped {
		return flippedOrder[line*Size+column], true
	}
	return normalOrder[line*Size+column], true
}

// Light reports the shading of a square: light iff (row+col) is even.
func Light(s Square) bool { return (s.Row+s.Col)%2 == 0 }
